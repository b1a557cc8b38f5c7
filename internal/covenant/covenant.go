// Package covenant implements the session-level gating discipline from
// spec.md §4.7: a COLD → BRIEFED → PREFLIGHTED state machine that blocks
// mutating tool actions until the caller has acknowledged project context
// and obtained a short-lived preflight token. Adapted from the teacher's
// guard-result shape (internal/guards) into a session state machine: gating
// decisions carry the same {action, message, remediation} triad the
// teacher's Result/Severity types did, but the check is binary (gated or
// not) rather than multi-severity, since spec.md draws no distinction
// between soft and hard blocks here.
package covenant

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"sync"
	"time"

	"github.com/daem0nmcp/daem0nmcp/internal/errs"
	"github.com/daem0nmcp/daem0nmcp/internal/store"
)

// State is a session's position in the briefing/preflight discipline.
type State int

const (
	Cold State = iota
	Briefed
	Preflighted
)

func (s State) String() string {
	switch s {
	case Cold:
		return "COLD"
	case Briefed:
		return "BRIEFED"
	case Preflighted:
		return "PREFLIGHTED"
	default:
		return "UNKNOWN"
	}
}

// coldAllowed lists the only actions permitted before any briefing.
var coldAllowed = map[string]bool{
	"commune.briefing":  true,
	"commune.health":    true,
	"consult.preflight": true,
}

// MutatingActions lists every action gated by a live preflight token.
var MutatingActions = map[string]bool{
	"inscribe.remember":       true,
	"inscribe.remember_batch": true,
	"govern.add_rule":         true,
	"govern.update_rule":      true,
	"reflect.outcome":         true,
	"inscribe.link":           true,
	"inscribe.pin":            true,
	"maintain.archive":        true,
	"maintain.prune":          true,
	"maintain.cleanup":        true,
	"maintain.compact":        true,
	"evolve_rule":             true,
}

// Session tracks one project session's covenant state and current token.
type Session struct {
	mu           sync.Mutex
	state        State
	tokenValue   string
	tokenExpires time.Time
	ttl          time.Duration
	store        *store.Store
	project      string
}

// NewSession creates a COLD session for a project. Issued tokens are
// persisted to Store for audit; a new Session does not reload them, so a
// restarted process starts COLD and cannot validate a token issued
// before the restart.
func NewSession(s *store.Store, project string, ttl time.Duration) *Session {
	return &Session{state: Cold, store: s, project: project, ttl: ttl}
}

// State returns the session's current state.
func (sess *Session) State() State {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.effectiveStateLocked()
}

func (sess *Session) effectiveStateLocked() State {
	if sess.state == Preflighted && time.Now().After(sess.tokenExpires) {
		sess.state = Briefed
		sess.tokenValue = ""
	}
	return sess.state
}

// Briefed transitions a session out of COLD after a successful
// commune.briefing call.
func (sess *Session) Briefed() {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.state == Cold {
		sess.state = Briefed
	}
}

// IssuePreflightToken mints a new 128-bit cryptographically random token,
// persists it, and transitions the session to PREFLIGHTED. description is
// hashed (never stored in plaintext) for audit purposes only.
func (sess *Session) IssuePreflightToken(description string) (string, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state == Cold {
		return "", errs.New(errs.CommunionRequired, "briefing required before preflight").
			WithRemediation("call commune.briefing first")
	}

	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", errs.Wrap(errs.InternalError, err, "generating preflight token")
	}
	value := hex.EncodeToString(raw)
	sum := sha256.Sum256([]byte(description))

	now := time.Now().UTC()
	token := store.PreflightToken{
		Value:           value,
		Project:         sess.project,
		DescriptionHash: hex.EncodeToString(sum[:]),
		IssuedAt:        now,
	}
	if sess.store != nil {
		if err := sess.store.PutPreflightToken(token); err != nil {
			return "", err
		}
	}

	sess.state = Preflighted
	sess.tokenValue = value
	sess.tokenExpires = now.Add(sess.ttl)
	return value, nil
}

// Check gates action against the session's current state, per spec.md
// §4.7's table. Read-only actions are always permitted once BRIEFED;
// mutating actions additionally require a live, unexpired token.
func (sess *Session) Check(action string) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	state := sess.effectiveStateLocked()

	if state == Cold && !coldAllowed[action] {
		return errs.New(errs.CommunionRequired, "project briefing required before any other action").
			WithRemediation("call commune.briefing with the project path")
	}

	if !MutatingActions[action] {
		return nil
	}

	if state != Preflighted || !sess.validTokenLocked() {
		return errs.New(errs.CounselRequired, "a valid preflight token is required before mutating the memory store").
			WithRemediation("call consult.preflight with a short description of the intended change")
	}
	return nil
}

func (sess *Session) validTokenLocked() bool {
	if sess.tokenValue == "" {
		return false
	}
	return time.Now().Before(sess.tokenExpires)
}

// ValidateToken performs a constant-time comparison of a candidate token
// value against the session's live token, per spec.md §4.7's requirement
// that validation not leak timing information. Present for callers that
// receive a token explicitly (e.g. cross-process validation); ordinary
// dispatch uses Check, which consults session state directly since tokens
// are auto-consumed from context rather than passed by callers.
func (sess *Session) ValidateToken(candidate string) bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.effectiveStateLocked() != Preflighted {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(sess.tokenValue)) == 1
}
