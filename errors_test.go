package polos_test

import (
	"errors"
	"fmt"
	"testing"

	polos "github.com/polos-dev/polos-sub001"
)

func TestKind_String(t *testing.T) {
	cases := []struct {
		kind polos.Kind
		want string
	}{
		{polos.KindUnknown, "unknown"},
		{polos.KindNotFound, "not_found"},
		{polos.KindInvalidArgument, "invalid_argument"},
		{polos.KindConflict, "conflict"},
		{polos.KindUnavailable, "unavailable"},
		{polos.KindInternal, "internal"},
	}
	for _, tc := range cases {
		if got := tc.kind.String(); got != tc.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tc.kind, got, tc.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	if got := polos.KindOf(nil); got != polos.KindUnknown {
		t.Errorf("KindOf(nil) = %v, want unknown", got)
	}
	if got := polos.KindOf(errors.New("plain")); got != polos.KindUnknown {
		t.Errorf("KindOf(plain) = %v, want unknown", got)
	}
	if got := polos.KindOf(polos.ErrExecutionNotFound); got != polos.KindNotFound {
		t.Errorf("KindOf(sentinel) = %v, want not_found", got)
	}
}

func TestKindOf_WrapChain(t *testing.T) {
	wrapped := fmt.Errorf("dispatch: %w", fmt.Errorf("claim: %w", polos.ErrAlreadyTerminal))
	if got := polos.KindOf(wrapped); got != polos.KindConflict {
		t.Errorf("KindOf(wrapped sentinel) = %v, want conflict", got)
	}
	if !errors.Is(wrapped, polos.ErrAlreadyTerminal) {
		t.Error("errors.Is lost the sentinel through the chain")
	}
}

func TestErrorf_OuterKindWins(t *testing.T) {
	err := polos.Errorf(polos.KindInternal, "storage broke: %w", polos.ErrExecutionNotFound)
	if got := polos.KindOf(err); got != polos.KindInternal {
		t.Errorf("KindOf = %v, want the outer internal kind", got)
	}
	if !errors.Is(err, polos.ErrExecutionNotFound) {
		t.Error("errors.Is lost the wrapped sentinel")
	}
}

func TestIsHelpers(t *testing.T) {
	if !polos.IsNotFound(polos.ErrTopicNotFound) {
		t.Error("IsNotFound(ErrTopicNotFound) = false")
	}
	if polos.IsNotFound(polos.ErrInvalidTransition) {
		t.Error("IsNotFound(ErrInvalidTransition) = true")
	}
	if !polos.IsConflict(fmt.Errorf("outer: %w", polos.ErrPublishConflict)) {
		t.Error("IsConflict(wrapped ErrPublishConflict) = false")
	}
}
