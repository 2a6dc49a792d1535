package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestDecisionLoggerWritesJSONL(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDecisionLogger(&buf)

	decision := Decision{
		Timestamp:  time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC),
		RequestID:  "req-1",
		Host:       "www.blackwell-systems.com",
		Path:       "/" + strings.Repeat("a", 5000),
		Action:     ActionRedirect,
		Rule:       "www-to-blog",
		StatusCode: 301,
	}

	if err := logger.Write(decision); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}

	var parsed Decision
	if err := json.Unmarshal([]byte(lines[0]), &parsed); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if parsed.Rule != "www-to-blog" || parsed.StatusCode != 301 {
		t.Fatalf("unexpected decision %+v", parsed)
	}
	if len(parsed.Path) != maxFieldBytes {
		t.Fatalf("expected path length %d, got %d", maxFieldBytes, len(parsed.Path))
	}
}

func TestDecisionLoggerConcurrentWritesStayLineDelimited(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDecisionLogger(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = logger.Write(Decision{Action: ActionPass, StatusCode: 200})
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 50 {
		t.Fatalf("expected 50 lines, got %d", len(lines))
	}
	for _, line := range lines {
		var d Decision
		if err := json.Unmarshal([]byte(line), &d); err != nil {
			t.Fatalf("invalid json line %q: %v", line, err)
		}
	}
}
