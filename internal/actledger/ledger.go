package actledger

import "context"

// Ledger is the interface for the activity ledger engine.
// Both MemoryLedger and PostgresLedger implement this interface.
//
// Caller identities are opaque strings already authenticated by an external
// layer; the ledger performs relationship checks only (administrator,
// submitter). Verify and dispute intentionally accept any caller — the
// source system defers that authorization to its surrounding role model.
type Ledger interface {
	// RegisterType creates a type-registry entry with Active=true.
	// Administrator only; duplicate names are rejected.
	RegisterType(ctx context.Context, caller, name, description string) error

	// LogActivity appends a new entry and indexes it under both the
	// submitter and the subject. The write is all-or-nothing: if either
	// index is at capacity, nothing is stored. Returns the new log id.
	LogActivity(ctx context.Context, caller string, subjectID uint64, activityType, description string, evidence []Hash, metadata string) (uint64, error)

	// VerifyActivity sets the one-way verified flag and records the caller
	// as verifier. Fails once the flag is set.
	VerifyActivity(ctx context.Context, caller string, logID uint64) error

	// DisputeActivity sets the one-way disputed flag and stores the notes.
	// Fails once the flag is set.
	DisputeActivity(ctx context.Context, caller string, logID uint64, notes string) error

	// UpdateDescription replaces the description. Submitter only, and only
	// while the entry is unverified and the ledger is not paused.
	UpdateDescription(ctx context.Context, caller string, logID uint64, description string) error

	// AddEvidence appends an evidence hash under the same gate as
	// UpdateDescription, bounded by MaxEvidenceItems.
	AddEvidence(ctx context.Context, caller string, logID uint64, hash Hash) error

	// SetPaused toggles the global pause switch. Administrator only.
	SetPaused(ctx context.Context, caller string, paused bool) error

	// GetEntry returns a copy of the entry, with ok=false for absence.
	GetEntry(ctx context.Context, logID uint64) (*Entry, bool, error)

	// GetBySubmitter returns the insertion-ordered log ids for a submitter.
	// An unknown submitter yields an empty slice.
	GetBySubmitter(ctx context.Context, submitter string) ([]uint64, error)

	// GetBySubject returns the insertion-ordered log ids for a subject.
	GetBySubject(ctx context.Context, subjectID uint64) ([]uint64, error)

	// GetTypeInfo returns the registry record, with ok=false for absence.
	GetTypeInfo(ctx context.Context, name string) (*TypeInfo, bool, error)

	// IsPaused reports the pause switch.
	IsPaused(ctx context.Context) (bool, error)

	// EntryCount returns the highest assigned log id.
	EntryCount(ctx context.Context) (uint64, error)

	// MaxEntriesPerKey returns the configured per-key index bound.
	MaxEntriesPerKey() int
}
