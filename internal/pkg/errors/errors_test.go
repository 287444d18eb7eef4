package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(CodeValidation, "invalid frame range")

	if err.Code != CodeValidation {
		t.Errorf("expected code=%s, got %s", CodeValidation, err.Code)
	}
	if err.Message != "invalid frame range" {
		t.Errorf("expected message='invalid frame range', got %s", err.Message)
	}
	if len(err.Stack) == 0 {
		t.Error("expected stack trace to be captured")
	}
}

func TestErrorString(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name:     "simple error",
			err:      New(CodeConfig, "missing key"),
			contains: []string{"CONFIG_ERROR", "missing key"},
		},
		{
			name: "error with op",
			err: &Error{
				Code:    CodeValidation,
				Message: "chunk size must be positive",
				Op:      "chunker.range",
			},
			contains: []string{"chunker.range", "VALIDATION_ERROR", "chunk size must be positive"},
		},
		{
			name: "error with underlying",
			err: &Error{
				Code:    CodeChunkExecution,
				Message: "renderer failed",
				Err:     fmt.Errorf("renderer http 500"),
			},
			contains: []string{"renderer failed", "renderer http 500"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			str := tt.err.Error()
			for _, c := range tt.contains {
				if !strings.Contains(str, c) {
					t.Errorf("expected error string to contain %q, got: %s", c, str)
				}
			}
		})
	}
}

func TestWrap(t *testing.T) {
	original := fmt.Errorf("disk full")
	wrapped := Wrap(original, "session.upload", "upload failed")

	if wrapped.Code != CodeInternal {
		t.Errorf("expected code=%s, got %s", CodeInternal, wrapped.Code)
	}
	if wrapped.Op != "session.upload" {
		t.Errorf("expected op='session.upload', got %s", wrapped.Op)
	}
	if errors.Unwrap(wrapped) != original {
		t.Error("Unwrap should return original error")
	}
	if Wrap(nil, "op", "message") != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestWrapPreservesCode(t *testing.T) {
	original := ValidationField("end_frame", "end before start")
	wrapped := Wrap(original, "coordinator.submit", "invalid job")

	if wrapped.Code != CodeValidation {
		t.Errorf("expected code to be preserved as %s, got %s", CodeValidation, wrapped.Code)
	}
	if wrapped.Fields["field"] != "end_frame" {
		t.Errorf("expected fields to be preserved, got %v", wrapped.Fields)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code   Code
		status int
	}{
		{CodeValidation, 400},
		{CodeBadRequest, 400},
		{CodeConfig, 400},
		{CodeNotFound, 404},
		{CodeConflict, 409},
		{CodeCanceled, 499},
		{CodeInternal, 500},
		{CodeChunkExecution, 502},
		{CodeJobFailed, 502},
		{CodeUnavailable, 503},
		{CodeTimeout, 504},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := New(tt.code, "test")
			if err.HTTPStatus() != tt.status {
				t.Errorf("expected status=%d, got %d", tt.status, err.HTTPStatus())
			}
		})
	}
}

func TestConfigKey(t *testing.T) {
	err := ConfigKey("intro", "start_frame", "missing required job-specific key")

	if !IsConfig(err) {
		t.Errorf("expected config error, got %s", err.Code)
	}
	if err.Fields["profile"] != "intro" || err.Fields["key"] != "start_frame" {
		t.Errorf("unexpected fields: %v", err.Fields)
	}
}

func TestChunkExecution(t *testing.T) {
	t.Run("plain cause", func(t *testing.T) {
		err := ChunkExecution(fmt.Errorf("boom"), "intro-1-10", "render failed")
		if err.Code != CodeChunkExecution {
			t.Errorf("expected code=%s, got %s", CodeChunkExecution, err.Code)
		}
		if err.Fields["chunk"] != "intro-1-10" {
			t.Errorf("expected chunk field, got %v", err.Fields)
		}
		if !IsChunkExecution(err) {
			t.Error("expected IsChunkExecution to return true")
		}
	})

	t.Run("timeout cause keeps timeout code", func(t *testing.T) {
		err := ChunkExecution(Timeout("chunk intro-1-10"), "intro-1-10", "render timed out")
		if err.Code != CodeTimeout {
			t.Errorf("expected code=%s, got %s", CodeTimeout, err.Code)
		}
		if !IsChunkExecution(err) {
			t.Error("timeouts are chunk execution failures")
		}
	})

	t.Run("nil cause", func(t *testing.T) {
		err := ChunkExecution(nil, "intro-1-10", "unexpected worker result")
		if err.Err != nil {
			t.Error("expected no underlying error")
		}
		if !strings.Contains(err.Error(), "unexpected worker result") {
			t.Errorf("unexpected message: %s", err.Error())
		}
	})
}

func TestGetCode(t *testing.T) {
	if GetCode(New(CodeNotFound, "not found")) != CodeNotFound {
		t.Error("expected NOT_FOUND")
	}
	if GetCode(fmt.Errorf("standard error")) != CodeInternal {
		t.Error("expected INTERNAL_ERROR for standard errors")
	}
	wrapped := fmt.Errorf("outer: %w", Config("bad profile"))
	if GetCode(wrapped) != CodeConfig {
		t.Errorf("expected CONFIG_ERROR through fmt wrapping, got %s", GetCode(wrapped))
	}
}

type coded struct{}

func (coded) Error() string   { return "coded" }
func (coded) ErrorCode() Code { return CodeJobFailed }

func TestGetCode_Coder(t *testing.T) {
	if GetCode(coded{}) != CodeJobFailed {
		t.Error("expected JOB_FAILED from Coder")
	}
	wrapped := Wrap(coded{}, "coordinator.run", "render failed")
	if wrapped.Code != CodeJobFailed {
		t.Errorf("expected Wrap to keep JOB_FAILED, got %s", wrapped.Code)
	}
	if GetHTTPStatus(wrapped) != 502 {
		t.Errorf("expected 502, got %d", GetHTTPStatus(wrapped))
	}
	if !IsJobFailed(fmt.Errorf("cli: %w", coded{})) {
		t.Error("expected IsJobFailed through fmt wrapping")
	}
}

func TestGetFields(t *testing.T) {
	err := New(CodeValidation, "invalid").WithField("field", "width")

	if GetFields(err)["field"] != "width" {
		t.Errorf("expected field='width', got %v", GetFields(err)["field"])
	}
	if GetFields(fmt.Errorf("standard")) != nil {
		t.Error("expected nil fields for standard error")
	}
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		name string
		fn   func(error) bool
		yes  error
		no   error
	}{
		{"IsNotFound", IsNotFound, New(CodeNotFound, "x"), New(CodeValidation, "x")},
		{"IsValidation", IsValidation, New(CodeValidation, "x"), New(CodeConfig, "x")},
		{"IsConfig", IsConfig, New(CodeConfig, "x"), New(CodeValidation, "x")},
		{"IsJobFailed", IsJobFailed, New(CodeJobFailed, "x"), New(CodeChunkExecution, "x")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.fn(tt.yes) {
				t.Errorf("%s: expected true", tt.name)
			}
			if tt.fn(tt.no) {
				t.Errorf("%s: expected false", tt.name)
			}
		})
	}
}

func TestStackTrace(t *testing.T) {
	stack := New(CodeInternal, "test error").StackTrace()
	if !strings.Contains(stack, ".go:") {
		t.Errorf("expected stack trace to contain file references, got: %s", stack)
	}
}

func TestErrorIs(t *testing.T) {
	err1 := New(CodeJobFailed, "error 1")
	err2 := New(CodeJobFailed, "error 2")
	err3 := New(CodeValidation, "error 3")

	if !errors.Is(err1, err2) {
		t.Error("expected errors with same code to match with Is")
	}
	if errors.Is(err1, err3) {
		t.Error("expected errors with different codes to not match")
	}
}
