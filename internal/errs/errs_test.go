package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorFormatsWithAndWithoutCause(t *testing.T) {
	plain := New(NotFound, "memory 7 not found")
	require.Equal(t, "NotFound: memory 7 not found", plain.Error())

	wrapped := Wrap(StorageFailure, errors.New("disk full"), "writing memory")
	require.Equal(t, "StorageFailure: writing memory: disk full", wrapped.Error())
	require.Equal(t, "disk full", wrapped.Unwrap().Error())
}

func TestNewfFormatsMessage(t *testing.T) {
	e := Newf(Conflict, "rule %d already exists", 42)
	require.Equal(t, "Conflict: rule 42 already exists", e.Error())
}

func TestWithRemediationMutatesAndReturnsSameError(t *testing.T) {
	e := New(CommunionRequired, "call commune.briefing first")
	returned := e.WithRemediation("call commune.briefing before any other tool")
	require.Same(t, e, returned)
	require.Equal(t, "call commune.briefing before any other tool", e.Remediation)
}

func TestAsUnwrapsThroughFmtErrorf(t *testing.T) {
	inner := New(LockHeld, "writer lock held by another process")
	outer := fmt.Errorf("opening store: %w", inner)

	found, ok := As(outer)
	require.True(t, ok)
	require.Same(t, inner, found)
}

func TestAsReturnsFalseForPlainError(t *testing.T) {
	_, ok := As(errors.New("not ours"))
	require.False(t, ok)
}

func TestKindOfDefaultsToInternalError(t *testing.T) {
	require.Equal(t, InternalError, KindOf(errors.New("boom")))
	require.Equal(t, RetrievalFailure, KindOf(New(RetrievalFailure, "timeout")))
}
