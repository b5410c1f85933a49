package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Options tune a single completion request.
type Options struct {
	Temperature float32
	TopP        float32
	NumPredict  int
	JSONMode    bool
	Timeout     time.Duration
}

// Provider describes a language-model completion backend.
type Provider interface {
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
}

// ChatTurn is one turn of a student/tutor conversation, as consumed by the
// risk analyzer and the tutor prompt builder.
type ChatTurn struct {
	Role    string
	Content string
}

// TransportError reports a failed gateway call: connection problems and
// non-2xx responses alike. Recovery policy belongs to the caller.
type TransportError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("inference endpoint %s returned status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("inference endpoint %s unreachable: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// extractObject slices the outermost JSON object out of raw model text. Models
// occasionally wrap the payload in prose or fences; everything before the first
// '{' and after the last '}' is discarded. Returns "" when no object exists.
func extractObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return raw[start : end+1]
}

func clampGrade(grade float64) float64 {
	if grade < 0 {
		return 0
	}
	if grade > 100 {
		return 100
	}
	return grade
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
