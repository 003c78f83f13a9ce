package actledger

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// HashSize is the byte length of an evidence hash.
const HashSize = 32

// Hash is an opaque fixed-size evidence digest. The ledger stores and returns
// hashes verbatim; it never computes or checks them against any payload.
type Hash [HashSize]byte

// ParseHash decodes a 64-character hex string into a Hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("decode evidence hash: %w", err)
	}
	if len(raw) != HashSize {
		return h, fmt.Errorf("evidence hash must be %d bytes, got %d", HashSize, len(raw))
	}
	copy(h[:], raw)
	return h, nil
}

// String returns the hex encoding of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// MarshalJSON encodes the hash as a hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON decodes a hex string into the hash.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseHash(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Entry is a single activity record in the ledger.
//
// Submitter, SubjectID, ActivityType, Metadata and CreatedAt are immutable
// after creation. Description and Evidence may be amended by the submitter
// until the entry is verified. Verified and Disputed are independent one-way
// flags; neither ever resets to false.
type Entry struct {
	LogID        uint64 `json:"log_id"`
	Submitter    string `json:"submitter"`
	SubjectID    uint64 `json:"subject_id"`
	ActivityType string `json:"activity_type"`
	Description  string `json:"description"`
	Evidence     []Hash `json:"evidence"`
	Metadata     string `json:"metadata,omitempty"`
	CreatedAt    uint64 `json:"created_at"` // ledger clock value at creation
	Verified     bool   `json:"verified"`
	Verifier     string `json:"verifier,omitempty"`
	Disputed     bool   `json:"disputed"`
	DisputeNotes string `json:"dispute_notes,omitempty"`
}

// clone returns a deep copy so callers can never mutate stored state.
func (e *Entry) clone() *Entry {
	cp := *e
	cp.Evidence = append([]Hash(nil), e.Evidence...)
	return &cp
}

// TypeInfo is a type-registry record. Registered types are permanent; the
// current design has no operation that deactivates or removes one.
type TypeInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
}
