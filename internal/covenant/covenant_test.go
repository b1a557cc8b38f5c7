package covenant

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/daem0nmcp/daem0nmcp/internal/errs"
	"github.com/daem0nmcp/daem0nmcp/internal/store"
)

func TestColdStateBlocksMutations(t *testing.T) {
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	sess := NewSession(s, "proj", 5*time.Minute)
	err = sess.Check("inscribe.remember")
	require.Error(t, err)
	require.Equal(t, errs.CommunionRequired, errs.KindOf(err))
}

func TestBriefedWithoutPreflightBlocksMutations(t *testing.T) {
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	sess := NewSession(s, "proj", 5*time.Minute)
	sess.Briefed()

	require.NoError(t, sess.Check("consult.recall"))

	err = sess.Check("inscribe.remember")
	require.Error(t, err)
	require.Equal(t, errs.CounselRequired, errs.KindOf(err))
}

func TestPreflightedAllowsMutationUntilExpiry(t *testing.T) {
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	sess := NewSession(s, "proj", 50*time.Millisecond)
	sess.Briefed()
	_, err = sess.IssuePreflightToken("add a memory")
	require.NoError(t, err)

	require.NoError(t, sess.Check("inscribe.remember"))

	time.Sleep(70 * time.Millisecond)
	err = sess.Check("inscribe.remember")
	require.Error(t, err)
	require.Equal(t, errs.CounselRequired, errs.KindOf(err))
}

func TestIssuePreflightTokenRequiresBriefing(t *testing.T) {
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	sess := NewSession(s, "proj", 5*time.Minute)
	_, err = sess.IssuePreflightToken("x")
	require.Error(t, err)
	require.Equal(t, errs.CommunionRequired, errs.KindOf(err))
}

func TestValidateTokenIsConstantTimeAndRejectsWrongValue(t *testing.T) {
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	sess := NewSession(s, "proj", 5*time.Minute)
	sess.Briefed()
	token, err := sess.IssuePreflightToken("x")
	require.NoError(t, err)

	require.True(t, sess.ValidateToken(token))
	require.False(t, sess.ValidateToken("wrong-value"))
}
