package actledger

import "fmt"

// MaxEvidenceItems is the fixed upper bound on evidence hashes per entry.
const MaxEvidenceItems = 5

// Default limits applied when a Config field is left zero.
const (
	DefaultMaxEntriesPerKey   = 100
	DefaultMaxDescriptionLen  = 500
	DefaultMaxDisputeNotesLen = 200
)

// Config holds the construction-time parameters of a ledger.
type Config struct {
	// Admin is the identity allowed to register activity types and toggle
	// the pause switch. Identities are opaque strings supplied by the
	// external authentication layer.
	Admin string

	// MaxEntriesPerKey bounds each secondary-index sequence.
	MaxEntriesPerKey int

	// MaxDescriptionLen bounds entry descriptions and metadata.
	MaxDescriptionLen int

	// MaxDisputeNotesLen bounds dispute notes.
	MaxDisputeNotesLen int
}

// withDefaults returns a copy with zero limits replaced by the defaults.
func (c Config) withDefaults() Config {
	if c.MaxEntriesPerKey == 0 {
		c.MaxEntriesPerKey = DefaultMaxEntriesPerKey
	}
	if c.MaxDescriptionLen == 0 {
		c.MaxDescriptionLen = DefaultMaxDescriptionLen
	}
	if c.MaxDisputeNotesLen == 0 {
		c.MaxDisputeNotesLen = DefaultMaxDisputeNotesLen
	}
	return c
}

// checkNewEntry validates the caller-supplied fields of LogActivity.
// The activity type is checked separately against the registry.
func (c Config) checkNewEntry(subjectID uint64, description string, evidence []Hash, metadata string) error {
	if subjectID == 0 {
		return fmt.Errorf("%w: subject id must be non-zero", ErrInvalidParam)
	}
	if description == "" {
		return fmt.Errorf("%w: description must not be empty", ErrInvalidParam)
	}
	if len(description) > c.MaxDescriptionLen {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidParam, c.MaxDescriptionLen)
	}
	if len(metadata) > c.MaxDescriptionLen {
		return fmt.Errorf("%w: metadata exceeds %d characters", ErrInvalidParam, c.MaxDescriptionLen)
	}
	if len(evidence) > MaxEvidenceItems {
		return fmt.Errorf("%w: at most %d evidence items per entry", ErrInvalidParam, MaxEvidenceItems)
	}
	return nil
}

// checkDescription validates an amended description.
func (c Config) checkDescription(description string) error {
	if description == "" {
		return fmt.Errorf("%w: description must not be empty", ErrInvalidParam)
	}
	if len(description) > c.MaxDescriptionLen {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidParam, c.MaxDescriptionLen)
	}
	return nil
}

// checkDisputeNotes validates dispute notes.
func (c Config) checkDisputeNotes(notes string) error {
	if notes == "" {
		return fmt.Errorf("%w: dispute notes must not be empty", ErrInvalidParam)
	}
	if len(notes) > c.MaxDisputeNotesLen {
		return fmt.Errorf("%w: dispute notes exceed %d characters", ErrInvalidParam, c.MaxDisputeNotesLen)
	}
	return nil
}
