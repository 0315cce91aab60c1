package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfDirect(t *testing.T) {
	err := NotFoundf("tenant %s", "t1")
	kind, ok := KindOf(err)
	if !ok || kind != NotFound {
		t.Fatalf("KindOf = %v, %v; want %v, true", kind, ok, NotFound)
	}
}

func TestKindOfWrapped(t *testing.T) {
	inner := Configurationf("failure_threshold must be >= 1")
	wrapped := fmt.Errorf("constructing breaker: %w", inner)
	kind, ok := KindOf(wrapped)
	if !ok || kind != Configuration {
		t.Fatalf("KindOf(wrapped) = %v, %v; want %v, true", kind, ok, Configuration)
	}
}

func TestIsComparesKindNotMessage(t *testing.T) {
	a := New(OutOfBudget, "offers/hour exceeded")
	b := New(OutOfBudget, "api calls/day exceeded")
	if !errors.Is(a, b) {
		t.Fatalf("errors.Is should match on Kind regardless of Message")
	}
	c := New(Integrity, "chain mismatch")
	if errors.Is(a, c) {
		t.Fatalf("errors.Is should not match across different Kinds")
	}
}

func TestKindOfUnrelatedError(t *testing.T) {
	if _, ok := KindOf(errors.New("plain error")); ok {
		t.Fatalf("KindOf on a plain error should return ok=false")
	}
}
