package services_test

import (
	"errors"
	"strings"
	"testing"

	"vaultkeeper/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrRemote, "transfer", "move", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrRemote) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"transfer", "move", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "engine failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

type kindError struct{ kind string }

func (e kindError) Error() string     { return "kind " + e.kind }
func (e kindError) ErrorKind() string { return e.kind }

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"validation marker", services.Wrap(services.ErrValidation, "loadout", "parse", "bad", nil), "validation"},
		{"not found marker", services.Wrap(services.ErrNotFound, "store", "find", "", nil), "not_found"},
		{"classifier wins", services.Wrap(services.ErrTransient, "remote", "move", "", kindError{"rate_limited"}), "rate_limited"},
		{"plain", errors.New("x"), "unknown"},
	}
	for _, tc := range cases {
		if got := services.Classify(tc.err); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestRetryable(t *testing.T) {
	if services.Retryable(services.Wrap(services.ErrValidation, "", "", "bad", nil)) {
		t.Fatal("validation errors must not be retryable")
	}
	if !services.Retryable(kindError{"rate_limited"}) {
		t.Fatal("rate limited errors should be retryable")
	}
	if services.Retryable(nil) {
		t.Fatal("nil is not retryable")
	}
}
