package logging

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const maxFieldBytes = 2048

const (
	ActionRedirect = "redirect"
	ActionPass     = "pass"
	ActionNotFound = "not_found"
	ActionReject   = "reject"
	ActionLimited  = "rate_limited"
)

// Decision is written as a single JSON object per request.
type Decision struct {
	Timestamp  time.Time `json:"ts"`
	RequestID  string    `json:"request_id"`
	ClientIP   string    `json:"client_ip"`
	Host       string    `json:"host"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Query      string    `json:"query"`
	Rule       string    `json:"rule,omitempty"`
	Action     string    `json:"action"`
	Location   string    `json:"location,omitempty"`
	StatusCode int       `json:"status_code"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	OriginMS   int64     `json:"origin_ms,omitempty"`
}

type DecisionLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func NewDecisionLogger(w io.Writer) *DecisionLogger {
	return &DecisionLogger{w: w}
}

func OpenDecisionLog(path string) (*DecisionLogger, func() error, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, err
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return NewDecisionLogger(file), file.Close, nil
}

func (l *DecisionLogger) Write(decision Decision) error {
	decision.Path = truncate(decision.Path)
	decision.Query = truncate(decision.Query)
	decision.Location = truncate(decision.Location)

	data, err := json.Marshal(decision)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.w.Write(append(data, '\n'))
	return err
}

func truncate(value string) string {
	if len(value) <= maxFieldBytes {
		return value
	}
	return value[:maxFieldBytes]
}
