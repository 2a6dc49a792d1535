package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/blackwell-systems/edgeredirect/internal/logging"
)

func TestSummarize(t *testing.T) {
	decisions := []logging.Decision{
		{Timestamp: time.Unix(0, 0), Action: logging.ActionRedirect, Rule: "www-to-blog", DurationMS: 1},
		{Timestamp: time.Unix(1, 0), Action: logging.ActionRedirect, Rule: "www-to-blog", DurationMS: 2},
		{Timestamp: time.Unix(2, 0), Action: logging.ActionRedirect, Rule: "apex-catch-all", DurationMS: 1},
		{Timestamp: time.Unix(3, 0), Action: logging.ActionPass, Host: "blog.blackwell-systems.com", DurationMS: 30},
		{Timestamp: time.Unix(4, 0), Action: logging.ActionNotFound, Host: "unknown.example", DurationMS: 1},
		{Timestamp: time.Unix(5, 0), Action: logging.ActionReject, DurationMS: 0},
		{Timestamp: time.Unix(6, 0), Action: logging.ActionLimited, ClientIP: "1.1.1.1", DurationMS: 0},
	}

	summary := Summarize(decisions)
	if summary.Total != 7 {
		t.Fatalf("expected total 7, got %d", summary.Total)
	}
	if summary.Redirected != 3 || summary.Passed != 1 || summary.NotFound != 1 || summary.Rejected != 1 || summary.RateLimited != 1 {
		t.Fatalf("unexpected action counts: %+v", summary)
	}
	if len(summary.TopRules) != 2 || summary.TopRules[0].Key != "www-to-blog" || summary.TopRules[0].Count != 2 {
		t.Fatalf("expected www-to-blog as top rule, got %+v", summary.TopRules)
	}
	if len(summary.TopUnmatched) != 2 || summary.TopUnmatched[0].Key != "blog.blackwell-systems.com" {
		t.Fatalf("expected unmatched hosts sorted by key on ties, got %+v", summary.TopUnmatched)
	}
	if len(summary.TopRateLimited) != 1 || summary.TopRateLimited[0].Key != "1.1.1.1" {
		t.Fatalf("expected rate limited client, got %+v", summary.TopRateLimited)
	}
	if !summary.End.Equal(time.Unix(6, 0)) {
		t.Fatalf("unexpected end %v", summary.End)
	}
}

func TestSummarizeGroupsUnmatchedHosts(t *testing.T) {
	decisions := []logging.Decision{
		{Action: logging.ActionPass, Host: "Blog.example.com:8080"},
		{Action: logging.ActionPass, Host: "blog.example.com"},
		{Action: logging.ActionNotFound, Host: "blog.example.com."},
	}

	summary := Summarize(decisions)
	if len(summary.TopUnmatched) != 1 {
		t.Fatalf("expected one unmatched host, got %+v", summary.TopUnmatched)
	}
	if summary.TopUnmatched[0].Key != "blog.example.com" || summary.TopUnmatched[0].Count != 3 {
		t.Fatalf("unexpected unmatched host entry %+v", summary.TopUnmatched[0])
	}
}

func TestReaderSinceAndRender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.jsonl")
	var buf bytes.Buffer
	logger := logging.NewDecisionLogger(&buf)
	now := time.Now().UTC()
	_ = logger.Write(logging.Decision{Timestamp: now.Add(-2 * time.Hour), Action: logging.ActionRedirect, Rule: "old"})
	_ = logger.Write(logging.Decision{Timestamp: now, Action: logging.ActionRedirect, Rule: "new"})
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("write log: %v", err)
	}

	reader := Reader{Since: now.Add(-time.Hour)}
	decisions, err := reader.Read(path)
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if len(decisions) != 1 || decisions[0].Rule != "new" {
		t.Fatalf("expected only recent decision, got %+v", decisions)
	}

	text := RenderText(Summarize(decisions))
	if !strings.Contains(text, "Redirected: 1") || !strings.Contains(text, "- new: 1") {
		t.Fatalf("unexpected text report:\n%s", text)
	}
	md := RenderMarkdown(Summarize(decisions))
	if !strings.HasPrefix(md, "# Redirect Report") {
		t.Fatalf("unexpected markdown report:\n%s", md)
	}
}

func TestReaderReportsBadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.jsonl")
	if err := os.WriteFile(path, []byte("{\"action\":\"pass\"}\nnot-json\n"), 0o600); err != nil {
		t.Fatalf("write log: %v", err)
	}

	_, err := (&Reader{}).Read(path)
	if err == nil || !strings.Contains(err.Error(), ":2:") {
		t.Fatalf("expected line 2 error, got %v", err)
	}
}

func TestRenderJSON(t *testing.T) {
	_, err := RenderJSON(Summary{Total: 1})
	if err != nil {
		t.Fatalf("expected json render ok: %v", err)
	}
}

func TestWriteOutput(t *testing.T) {
	var out bytes.Buffer
	if err := WriteOutput(&out, "", []byte("hello")); err != nil {
		t.Fatalf("WriteOutput error: %v", err)
	}
	if out.String() != "hello" {
		t.Fatalf("expected stdout content, got %q", out.String())
	}
}
