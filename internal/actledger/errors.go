package actledger

import "errors"

// Every mutating operation validates all preconditions before touching any
// state and returns the first applicable error; no partial state is ever
// committed on failure. Callers match with errors.Is.
var (
	// ErrUnauthorized is returned when the caller lacks the required
	// relationship: an administrator-only action, or a non-submitter
	// amending an entry. For UpdateDescription and AddEvidence it also
	// covers a paused ledger and an already-verified entry — the three
	// conditions are deliberately indistinguishable to the caller.
	ErrUnauthorized = errors.New("caller not authorized")

	// ErrInvalidParam is returned for malformed or out-of-bound input:
	// empty or overlong strings, a zero subject id, an unregistered or
	// inactive activity type, or too many evidence items at creation.
	ErrInvalidParam = errors.New("invalid parameter")

	// ErrNotFound is returned when the referenced entry does not exist.
	ErrNotFound = errors.New("entry not found")

	// ErrAlreadyVerified is returned when verifying an entry whose
	// verified flag is already set.
	ErrAlreadyVerified = errors.New("entry already verified")

	// ErrAlreadyDisputed is returned when disputing an entry whose
	// disputed flag is already set.
	ErrAlreadyDisputed = errors.New("entry already disputed")

	// ErrPaused is returned by ledger-engine mutations while the global
	// pause switch is on. Reads are unaffected.
	ErrPaused = errors.New("ledger is paused")

	// ErrCapacityExceeded is returned when logging would push either the
	// submitter index or the subject index past its per-key bound.
	ErrCapacityExceeded = errors.New("index capacity exceeded")

	// ErrEvidenceFull is returned when an entry already holds the maximum
	// number of evidence items.
	ErrEvidenceFull = errors.New("evidence list is full")

	// ErrAlreadyExists is returned for a duplicate type registration.
	ErrAlreadyExists = errors.New("activity type already registered")
)
