package brainyerr

import (
	"errors"
	"testing"
)

func TestKindRetryable(t *testing.T) {
	retryable := []Kind{StorageFailure, ConcurrencyConflict}
	terminal := []Kind{InvalidArgument, NotFound, ConsensusTimeout, ModeViolation, Timeout, Fatal}

	for _, k := range retryable {
		if !k.Retryable() {
			t.Errorf("%s: expected Retryable() = true", k)
		}
	}
	for _, k := range terminal {
		if k.Retryable() {
			t.Errorf("%s: expected Retryable() = false", k)
		}
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(StorageFailure, "failed to persist shard", cause)

	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause")
	}
	if !Is(err, StorageFailure) {
		t.Fatal("expected Is(err, StorageFailure) to be true")
	}
	if kind, ok := KindOf(err); !ok || kind != StorageFailure {
		t.Fatalf("KindOf() = %v, %v; want StorageFailure, true", kind, ok)
	}
}

func TestWithContext(t *testing.T) {
	base := New(NotFound, "noun not found")
	derived := base.WithContext("nounId", "abc-123")

	if len(base.Context) != 0 {
		t.Fatal("WithContext must not mutate the receiver")
	}
	if derived.Context["nounId"] != "abc-123" {
		t.Fatalf("derived.Context[nounId] = %v, want abc-123", derived.Context["nounId"])
	}
}

func TestKindOfNonBrainyError(t *testing.T) {
	if _, ok := KindOf(errors.New("plain")); ok {
		t.Fatal("KindOf should return false for a non-*Error")
	}
}
