package actledger

import (
	"context"
	"fmt"
	"sync"
)

// MemoryLedger is an in-memory, thread-safe Ledger implementation. Every
// mutating operation runs under a single write lock spanning the store and
// both indexes, so readers never observe a partially applied write.
type MemoryLedger struct {
	mu   sync.RWMutex
	cfg  Config
	sink EventSink // nil = events discarded

	entries     map[uint64]*Entry
	bySubmitter map[string][]uint64
	bySubject   map[uint64][]uint64
	types       map[string]*TypeInfo

	nextID uint64 // next log id to assign; ids start at 1
	clock  uint64 // logical timestamp, advanced once per successful mutation
	paused bool
}

// New creates an empty MemoryLedger. Zero limits in cfg fall back to the
// package defaults.
func New(cfg Config) *MemoryLedger {
	return &MemoryLedger{
		cfg:         cfg.withDefaults(),
		entries:     make(map[uint64]*Entry),
		bySubmitter: make(map[string][]uint64),
		bySubject:   make(map[uint64][]uint64),
		types:       make(map[string]*TypeInfo),
		nextID:      1,
	}
}

// SetEventSink configures the sink that receives ledger events.
func (l *MemoryLedger) SetEventSink(sink EventSink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sink = sink
}

// emit publishes an event in a non-fatal manner.
func (l *MemoryLedger) emit(ctx context.Context, ev Event) {
	if l.sink != nil {
		l.sink.Publish(ctx, ev)
	}
}

// RegisterType implements Ledger. Type registration is an administrator
// action and is not gated by the pause switch.
func (l *MemoryLedger) RegisterType(_ context.Context, caller, name, description string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.cfg.Admin {
		return fmt.Errorf("%w: only the administrator may register types", ErrUnauthorized)
	}
	if name == "" {
		return fmt.Errorf("%w: type name must not be empty", ErrInvalidParam)
	}
	if len(description) > l.cfg.MaxDescriptionLen {
		return fmt.Errorf("%w: type description exceeds %d characters", ErrInvalidParam, l.cfg.MaxDescriptionLen)
	}
	if _, ok := l.types[name]; ok {
		return fmt.Errorf("%w: %q", ErrAlreadyExists, name)
	}

	l.types[name] = &TypeInfo{Name: name, Description: description, Active: true}
	l.clock++
	return nil
}

// LogActivity implements Ledger. All preconditions, including both index
// capacity bounds, are checked before any state is touched.
func (l *MemoryLedger) LogActivity(ctx context.Context, caller string, subjectID uint64, activityType, description string, evidence []Hash, metadata string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.paused {
		return 0, ErrPaused
	}
	if err := l.cfg.checkNewEntry(subjectID, description, evidence, metadata); err != nil {
		return 0, err
	}
	t, ok := l.types[activityType]
	if !ok || !t.Active {
		return 0, fmt.Errorf("%w: activity type %q is not registered and active", ErrInvalidParam, activityType)
	}
	if len(l.bySubmitter[caller]) >= l.cfg.MaxEntriesPerKey {
		return 0, fmt.Errorf("%w: submitter %q", ErrCapacityExceeded, caller)
	}
	if len(l.bySubject[subjectID]) >= l.cfg.MaxEntriesPerKey {
		return 0, fmt.Errorf("%w: subject %d", ErrCapacityExceeded, subjectID)
	}

	id := l.nextID
	l.nextID++
	l.clock++

	l.entries[id] = &Entry{
		LogID:        id,
		Submitter:    caller,
		SubjectID:    subjectID,
		ActivityType: activityType,
		Description:  description,
		Evidence:     append([]Hash(nil), evidence...),
		Metadata:     metadata,
		CreatedAt:    l.clock,
	}
	l.bySubmitter[caller] = append(l.bySubmitter[caller], id)
	l.bySubject[subjectID] = append(l.bySubject[subjectID], id)

	l.emit(ctx, newEvent(EventActivityLogged, id, caller, subjectID))
	return id, nil
}

// VerifyActivity implements Ledger.
func (l *MemoryLedger) VerifyActivity(ctx context.Context, caller string, logID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.paused {
		return ErrPaused
	}
	e, ok := l.entries[logID]
	if !ok {
		return fmt.Errorf("%w: log id %d", ErrNotFound, logID)
	}
	if e.Verified {
		return fmt.Errorf("%w: log id %d", ErrAlreadyVerified, logID)
	}

	e.Verified = true
	e.Verifier = caller
	l.clock++

	l.emit(ctx, newEvent(EventActivityVerified, logID, caller, 0))
	return nil
}

// DisputeActivity implements Ledger.
func (l *MemoryLedger) DisputeActivity(ctx context.Context, caller string, logID uint64, notes string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.paused {
		return ErrPaused
	}
	e, ok := l.entries[logID]
	if !ok {
		return fmt.Errorf("%w: log id %d", ErrNotFound, logID)
	}
	if e.Disputed {
		return fmt.Errorf("%w: log id %d", ErrAlreadyDisputed, logID)
	}
	if err := l.cfg.checkDisputeNotes(notes); err != nil {
		return err
	}

	e.Disputed = true
	e.DisputeNotes = notes
	l.clock++

	l.emit(ctx, newEvent(EventActivityDisputed, logID, caller, 0))
	return nil
}

// UpdateDescription implements Ledger. A wrong caller, a paused ledger, and
// an already-verified entry all surface as ErrUnauthorized; callers cannot
// tell them apart.
func (l *MemoryLedger) UpdateDescription(_ context.Context, caller string, logID uint64, description string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[logID]
	if !ok {
		return fmt.Errorf("%w: log id %d", ErrNotFound, logID)
	}
	if caller != e.Submitter || l.paused || e.Verified {
		return fmt.Errorf("%w: entry %d is not amendable by this caller", ErrUnauthorized, logID)
	}
	if err := l.cfg.checkDescription(description); err != nil {
		return err
	}

	e.Description = description
	l.clock++
	return nil
}

// AddEvidence implements Ledger. Same authorization gate as
// UpdateDescription, bounded by MaxEvidenceItems.
func (l *MemoryLedger) AddEvidence(_ context.Context, caller string, logID uint64, hash Hash) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[logID]
	if !ok {
		return fmt.Errorf("%w: log id %d", ErrNotFound, logID)
	}
	if caller != e.Submitter || l.paused || e.Verified {
		return fmt.Errorf("%w: entry %d is not amendable by this caller", ErrUnauthorized, logID)
	}
	if len(e.Evidence) >= MaxEvidenceItems {
		return fmt.Errorf("%w: entry %d", ErrEvidenceFull, logID)
	}

	e.Evidence = append(e.Evidence, hash)
	l.clock++
	return nil
}

// SetPaused implements Ledger.
func (l *MemoryLedger) SetPaused(_ context.Context, caller string, paused bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.cfg.Admin {
		return fmt.Errorf("%w: only the administrator may pause the ledger", ErrUnauthorized)
	}
	l.paused = paused
	l.clock++
	return nil
}

// GetEntry implements Ledger.
func (l *MemoryLedger) GetEntry(_ context.Context, logID uint64) (*Entry, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[logID]
	if !ok {
		return nil, false, nil
	}
	return e.clone(), true, nil
}

// GetBySubmitter implements Ledger.
func (l *MemoryLedger) GetBySubmitter(_ context.Context, submitter string) ([]uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]uint64(nil), l.bySubmitter[submitter]...), nil
}

// GetBySubject implements Ledger.
func (l *MemoryLedger) GetBySubject(_ context.Context, subjectID uint64) ([]uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]uint64(nil), l.bySubject[subjectID]...), nil
}

// GetTypeInfo implements Ledger.
func (l *MemoryLedger) GetTypeInfo(_ context.Context, name string) (*TypeInfo, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.types[name]
	if !ok {
		return nil, false, nil
	}
	cp := *t
	return &cp, true, nil
}

// IsPaused implements Ledger.
func (l *MemoryLedger) IsPaused(_ context.Context) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.paused, nil
}

// EntryCount implements Ledger.
func (l *MemoryLedger) EntryCount(_ context.Context) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.nextID - 1, nil
}

// MaxEntriesPerKey implements Ledger.
func (l *MemoryLedger) MaxEntriesPerKey() int {
	return l.cfg.MaxEntriesPerKey
}
