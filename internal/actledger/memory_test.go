package actledger_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/victoriawisdom39-code/involvement-ledger/internal/actledger"
)

var ctx = context.Background()

const admin = "admin-1"

// newLedger returns a ledger with the "meeting" type pre-registered.
func newLedger(t *testing.T, cfg actledger.Config) *actledger.MemoryLedger {
	t.Helper()
	if cfg.Admin == "" {
		cfg.Admin = admin
	}
	l := actledger.New(cfg)
	if err := l.RegisterType(ctx, admin, "meeting", "attended a school meeting"); err != nil {
		t.Fatal(err)
	}
	return l
}

func mustLog(t *testing.T, l *actledger.MemoryLedger, caller string, subject uint64) uint64 {
	t.Helper()
	id, err := l.LogActivity(ctx, caller, subject, "meeting", "Attended meeting", nil, "")
	if err != nil {
		t.Fatalf("LogActivity: %v", err)
	}
	return id
}

func TestRegisterType_adminOnly(t *testing.T) {
	l := actledger.New(actledger.Config{Admin: admin})

	err := l.RegisterType(ctx, "parent-1", "meeting", "desc")
	if !errors.Is(err, actledger.ErrUnauthorized) {
		t.Errorf("non-admin registration: got %v, want ErrUnauthorized", err)
	}

	if err := l.RegisterType(ctx, admin, "meeting", "desc"); err != nil {
		t.Fatalf("admin registration failed: %v", err)
	}

	err = l.RegisterType(ctx, admin, "meeting", "again")
	if !errors.Is(err, actledger.ErrAlreadyExists) {
		t.Errorf("duplicate registration: got %v, want ErrAlreadyExists", err)
	}

	info, ok, err := l.GetTypeInfo(ctx, "meeting")
	if err != nil || !ok {
		t.Fatalf("GetTypeInfo: ok=%v err=%v", ok, err)
	}
	if !info.Active {
		t.Error("registered type should be active")
	}
}

func TestLogActivity_sequentialIDs(t *testing.T) {
	l := newLedger(t, actledger.Config{})

	for want := uint64(1); want <= 5; want++ {
		id := mustLog(t, l, "parent-1", want)
		if id != want {
			t.Fatalf("log id: got %d, want %d", id, want)
		}
	}

	n, _ := l.EntryCount(ctx)
	if n != 5 {
		t.Errorf("EntryCount: got %d, want 5", n)
	}
}

func TestLogActivity_scenario(t *testing.T) {
	l := newLedger(t, actledger.Config{})

	id, err := l.LogActivity(ctx, "parent-1", 1, "meeting", "Attended meeting", nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if id != 1 {
		t.Fatalf("first log id: got %d, want 1", id)
	}

	e, ok, err := l.GetEntry(ctx, 1)
	if err != nil || !ok {
		t.Fatalf("GetEntry: ok=%v err=%v", ok, err)
	}
	if e.Submitter != "parent-1" {
		t.Errorf("submitter: got %q, want parent-1", e.Submitter)
	}
	if e.Verified || e.Disputed {
		t.Error("new entry must start with verified=false, disputed=false")
	}
}

func TestLogActivity_validation(t *testing.T) {
	l := newLedger(t, actledger.Config{MaxDescriptionLen: 10})

	cases := []struct {
		name    string
		subject uint64
		typ     string
		desc    string
		meta    string
	}{
		{"zero subject", 0, "meeting", "short", ""},
		{"empty description", 1, "meeting", "", ""},
		{"overlong description", 1, "meeting", "this is far too long", ""},
		{"overlong metadata", 1, "meeting", "short", "this is far too long"},
		{"unregistered type", 1, "homework", "short", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := l.LogActivity(ctx, "parent-1", tc.subject, tc.typ, tc.desc, nil, tc.meta)
			if !errors.Is(err, actledger.ErrInvalidParam) {
				t.Errorf("got %v, want ErrInvalidParam", err)
			}
		})
	}

	var six []actledger.Hash
	for i := 0; i < 6; i++ {
		six = append(six, actledger.Hash{byte(i)})
	}
	_, err := l.LogActivity(ctx, "parent-1", 1, "meeting", "short", six, "")
	if !errors.Is(err, actledger.ErrInvalidParam) {
		t.Errorf("six evidence items: got %v, want ErrInvalidParam", err)
	}

	if n, _ := l.EntryCount(ctx); n != 0 {
		t.Errorf("failed writes must not allocate ids; EntryCount=%d", n)
	}
}

func TestLogActivity_submitterCapacity(t *testing.T) {
	l := newLedger(t, actledger.Config{MaxEntriesPerKey: 100})

	for i := 1; i <= 100; i++ {
		id := mustLog(t, l, "parent-1", uint64(i))
		if id != uint64(i) {
			t.Fatalf("log id: got %d, want %d", id, i)
		}
	}

	_, err := l.LogActivity(ctx, "parent-1", 101, "meeting", "Attended meeting", nil, "")
	if !errors.Is(err, actledger.ErrCapacityExceeded) {
		t.Fatalf("101st log: got %v, want ErrCapacityExceeded", err)
	}
}

func TestLogActivity_capacityRejectionIsAtomic(t *testing.T) {
	// Subject 7 fills its index via distinct submitters; the rejected write
	// must leave the store, the submitter index, and the subject index all
	// unchanged.
	l := newLedger(t, actledger.Config{MaxEntriesPerKey: 3})

	for i := 0; i < 3; i++ {
		mustLog(t, l, fmt.Sprintf("parent-%d", i), 7)
	}

	_, err := l.LogActivity(ctx, "parent-new", 7, "meeting", "Attended meeting", nil, "")
	if !errors.Is(err, actledger.ErrCapacityExceeded) {
		t.Fatalf("got %v, want ErrCapacityExceeded", err)
	}

	if n, _ := l.EntryCount(ctx); n != 3 {
		t.Errorf("store changed on rejected write: EntryCount=%d, want 3", n)
	}
	if ids, _ := l.GetBySubmitter(ctx, "parent-new"); len(ids) != 0 {
		t.Errorf("submitter index changed on rejected write: %v", ids)
	}
	if ids, _ := l.GetBySubject(ctx, 7); len(ids) != 3 {
		t.Errorf("subject index changed on rejected write: %v", ids)
	}

	// The next successful write continues the uninterrupted id sequence.
	if id := mustLog(t, l, "parent-new", 8); id != 4 {
		t.Errorf("next id after rejection: got %d, want 4", id)
	}
}

func TestIndexes_insertionOrder(t *testing.T) {
	l := newLedger(t, actledger.Config{})

	mustLog(t, l, "parent-1", 1) // id 1
	mustLog(t, l, "parent-2", 1) // id 2
	mustLog(t, l, "parent-1", 2) // id 3

	bySubmitter, _ := l.GetBySubmitter(ctx, "parent-1")
	if len(bySubmitter) != 2 || bySubmitter[0] != 1 || bySubmitter[1] != 3 {
		t.Errorf("submitter index: got %v, want [1 3]", bySubmitter)
	}

	bySubject, _ := l.GetBySubject(ctx, 1)
	if len(bySubject) != 2 || bySubject[0] != 1 || bySubject[1] != 2 {
		t.Errorf("subject index: got %v, want [1 2]", bySubject)
	}

	if ids, _ := l.GetBySubmitter(ctx, "stranger"); len(ids) != 0 {
		t.Errorf("unknown submitter: got %v, want empty", ids)
	}
}

func TestVerifyActivity_effectOnce(t *testing.T) {
	l := newLedger(t, actledger.Config{})
	id := mustLog(t, l, "parent-1", 1)

	if err := l.VerifyActivity(ctx, "educator-1", id); err != nil {
		t.Fatal(err)
	}

	e, _, _ := l.GetEntry(ctx, id)
	if !e.Verified || e.Verifier != "educator-1" {
		t.Fatalf("after verify: verified=%v verifier=%q", e.Verified, e.Verifier)
	}

	err := l.VerifyActivity(ctx, "educator-2", id)
	if !errors.Is(err, actledger.ErrAlreadyVerified) {
		t.Fatalf("second verify: got %v, want ErrAlreadyVerified", err)
	}

	e, _, _ = l.GetEntry(ctx, id)
	if e.Verifier != "educator-1" {
		t.Errorf("failed verify changed verifier to %q", e.Verifier)
	}

	err = l.VerifyActivity(ctx, "educator-1", 999)
	if !errors.Is(err, actledger.ErrNotFound) {
		t.Errorf("verify missing entry: got %v, want ErrNotFound", err)
	}
}

func TestDisputeActivity_effectOnce(t *testing.T) {
	l := newLedger(t, actledger.Config{})
	id := mustLog(t, l, "parent-1", 1)

	if err := l.DisputeActivity(ctx, "educator-1", id, "dates do not match"); err != nil {
		t.Fatal(err)
	}

	err := l.DisputeActivity(ctx, "educator-2", id, "still wrong")
	if !errors.Is(err, actledger.ErrAlreadyDisputed) {
		t.Fatalf("second dispute: got %v, want ErrAlreadyDisputed", err)
	}

	e, _, _ := l.GetEntry(ctx, id)
	if e.DisputeNotes != "dates do not match" {
		t.Errorf("dispute notes: got %q", e.DisputeNotes)
	}

	err = l.DisputeActivity(ctx, "educator-1", id+1, "")
	if !errors.Is(err, actledger.ErrNotFound) {
		t.Errorf("dispute missing entry: got %v, want ErrNotFound", err)
	}
}

func TestDisputeActivity_notesValidation(t *testing.T) {
	l := newLedger(t, actledger.Config{MaxDisputeNotesLen: 10})
	id := mustLog(t, l, "parent-1", 1)

	if err := l.DisputeActivity(ctx, "educator-1", id, ""); !errors.Is(err, actledger.ErrInvalidParam) {
		t.Errorf("empty notes: got %v, want ErrInvalidParam", err)
	}
	if err := l.DisputeActivity(ctx, "educator-1", id, "these notes are far too long"); !errors.Is(err, actledger.ErrInvalidParam) {
		t.Errorf("overlong notes: got %v, want ErrInvalidParam", err)
	}

	e, _, _ := l.GetEntry(ctx, id)
	if e.Disputed {
		t.Error("failed dispute must not set the flag")
	}
}

func TestVerifyThenDispute_independentFlags(t *testing.T) {
	l := newLedger(t, actledger.Config{})
	id := mustLog(t, l, "parent-1", 1)

	if err := l.VerifyActivity(ctx, "educator-1", id); err != nil {
		t.Fatal(err)
	}
	if err := l.DisputeActivity(ctx, "educator-2", id, "contested anyway"); err != nil {
		t.Fatalf("dispute after verify should succeed: %v", err)
	}

	e, _, _ := l.GetEntry(ctx, id)
	if !e.Verified || !e.Disputed {
		t.Errorf("flags: verified=%v disputed=%v, want both true", e.Verified, e.Disputed)
	}
}

func TestUpdateDescription_gate(t *testing.T) {
	l := newLedger(t, actledger.Config{})
	id := mustLog(t, l, "parent-1", 1)

	if err := l.UpdateDescription(ctx, "parent-1", id, "Attended the spring meeting"); err != nil {
		t.Fatal(err)
	}
	e, _, _ := l.GetEntry(ctx, id)
	if e.Description != "Attended the spring meeting" {
		t.Errorf("description not updated: %q", e.Description)
	}

	// Wrong caller.
	err := l.UpdateDescription(ctx, "parent-2", id, "hijacked")
	if !errors.Is(err, actledger.ErrUnauthorized) {
		t.Errorf("wrong caller: got %v, want ErrUnauthorized", err)
	}

	// Paused — reported as Unauthorized, not Paused, for amendments.
	if err := l.SetPaused(ctx, admin, true); err != nil {
		t.Fatal(err)
	}
	err = l.UpdateDescription(ctx, "parent-1", id, "while paused")
	if !errors.Is(err, actledger.ErrUnauthorized) {
		t.Errorf("paused amendment: got %v, want ErrUnauthorized", err)
	}
	if err := l.SetPaused(ctx, admin, false); err != nil {
		t.Fatal(err)
	}

	// After verification.
	if err := l.VerifyActivity(ctx, "educator-1", id); err != nil {
		t.Fatal(err)
	}
	err = l.UpdateDescription(ctx, "parent-1", id, "after verify")
	if !errors.Is(err, actledger.ErrUnauthorized) {
		t.Errorf("post-verify amendment: got %v, want ErrUnauthorized", err)
	}

	err = l.UpdateDescription(ctx, "parent-1", 999, "missing")
	if !errors.Is(err, actledger.ErrNotFound) {
		t.Errorf("missing entry: got %v, want ErrNotFound", err)
	}
}

func TestAddEvidence_capAtFive(t *testing.T) {
	l := newLedger(t, actledger.Config{})
	id := mustLog(t, l, "parent-1", 1)

	for i := 0; i < actledger.MaxEvidenceItems; i++ {
		if err := l.AddEvidence(ctx, "parent-1", id, actledger.Hash{byte(i)}); err != nil {
			t.Fatalf("evidence %d: %v", i, err)
		}
	}

	err := l.AddEvidence(ctx, "parent-1", id, actledger.Hash{0xff})
	if !errors.Is(err, actledger.ErrEvidenceFull) {
		t.Fatalf("sixth evidence item: got %v, want ErrEvidenceFull", err)
	}

	e, _, _ := l.GetEntry(ctx, id)
	if len(e.Evidence) != actledger.MaxEvidenceItems {
		t.Errorf("evidence count: got %d, want %d", len(e.Evidence), actledger.MaxEvidenceItems)
	}
}

func TestAddEvidence_fullAtCreation(t *testing.T) {
	l := newLedger(t, actledger.Config{})

	var five []actledger.Hash
	for i := 0; i < actledger.MaxEvidenceItems; i++ {
		five = append(five, actledger.Hash{byte(i)})
	}
	id, err := l.LogActivity(ctx, "parent-1", 1, "meeting", "Attended meeting", five, "")
	if err != nil {
		t.Fatal(err)
	}

	err = l.AddEvidence(ctx, "parent-1", id, actledger.Hash{0xff})
	if !errors.Is(err, actledger.ErrEvidenceFull) {
		t.Errorf("got %v, want ErrEvidenceFull", err)
	}
}

func TestAddEvidence_gate(t *testing.T) {
	l := newLedger(t, actledger.Config{})
	id := mustLog(t, l, "parent-1", 1)

	if err := l.AddEvidence(ctx, "parent-2", id, actledger.Hash{1}); !errors.Is(err, actledger.ErrUnauthorized) {
		t.Errorf("wrong caller: got %v, want ErrUnauthorized", err)
	}

	if err := l.VerifyActivity(ctx, "educator-1", id); err != nil {
		t.Fatal(err)
	}
	if err := l.AddEvidence(ctx, "parent-1", id, actledger.Hash{1}); !errors.Is(err, actledger.ErrUnauthorized) {
		t.Errorf("post-verify: got %v, want ErrUnauthorized", err)
	}

	if err := l.AddEvidence(ctx, "parent-1", 999, actledger.Hash{1}); !errors.Is(err, actledger.ErrNotFound) {
		t.Errorf("missing entry: got %v, want ErrNotFound", err)
	}
}

func TestPause_blocksMutationsNotReads(t *testing.T) {
	l := newLedger(t, actledger.Config{})
	id := mustLog(t, l, "parent-1", 1)

	if err := l.SetPaused(ctx, "parent-1", true); !errors.Is(err, actledger.ErrUnauthorized) {
		t.Fatalf("non-admin pause: got %v, want ErrUnauthorized", err)
	}
	if err := l.SetPaused(ctx, admin, true); err != nil {
		t.Fatal(err)
	}

	if _, err := l.LogActivity(ctx, "parent-1", 1, "meeting", "x", nil, ""); !errors.Is(err, actledger.ErrPaused) {
		t.Errorf("log while paused: got %v, want ErrPaused", err)
	}
	if err := l.VerifyActivity(ctx, "educator-1", id); !errors.Is(err, actledger.ErrPaused) {
		t.Errorf("verify while paused: got %v, want ErrPaused", err)
	}
	if err := l.DisputeActivity(ctx, "educator-1", id, "notes"); !errors.Is(err, actledger.ErrPaused) {
		t.Errorf("dispute while paused: got %v, want ErrPaused", err)
	}

	// Reads are unaffected.
	if _, ok, err := l.GetEntry(ctx, id); err != nil || !ok {
		t.Errorf("read while paused: ok=%v err=%v", ok, err)
	}
	if paused, _ := l.IsPaused(ctx); !paused {
		t.Error("IsPaused should report true")
	}

	// Un-pause restores service.
	if err := l.SetPaused(ctx, admin, false); err != nil {
		t.Fatal(err)
	}
	if err := l.VerifyActivity(ctx, "educator-1", id); err != nil {
		t.Errorf("verify after un-pause: %v", err)
	}
}

func TestScenario_verifyThenAmendFails(t *testing.T) {
	l := newLedger(t, actledger.Config{})
	id := mustLog(t, l, "parent-1", 1)

	if err := l.VerifyActivity(ctx, "educator-1", id); err != nil {
		t.Fatal(err)
	}
	if err := l.VerifyActivity(ctx, "educator-1", id); !errors.Is(err, actledger.ErrAlreadyVerified) {
		t.Fatalf("re-verify: got %v, want ErrAlreadyVerified", err)
	}
	if err := l.UpdateDescription(ctx, "parent-1", id, "too late"); !errors.Is(err, actledger.ErrUnauthorized) {
		t.Fatalf("amend after verify: got %v, want ErrUnauthorized", err)
	}
}

func TestGetEntry_returnsCopy(t *testing.T) {
	l := newLedger(t, actledger.Config{})
	id := mustLog(t, l, "parent-1", 1)
	if err := l.AddEvidence(ctx, "parent-1", id, actledger.Hash{1}); err != nil {
		t.Fatal(err)
	}

	e, _, _ := l.GetEntry(ctx, id)
	e.Description = "mutated by caller"
	e.Evidence[0] = actledger.Hash{0xee}

	fresh, _, _ := l.GetEntry(ctx, id)
	if fresh.Description != "Attended meeting" {
		t.Error("caller mutation leaked into stored description")
	}
	if fresh.Evidence[0] != (actledger.Hash{1}) {
		t.Error("caller mutation leaked into stored evidence")
	}
}

func TestCreatedAt_monotonic(t *testing.T) {
	l := newLedger(t, actledger.Config{})

	id1 := mustLog(t, l, "parent-1", 1)
	if err := l.VerifyActivity(ctx, "educator-1", id1); err != nil {
		t.Fatal(err)
	}
	id2 := mustLog(t, l, "parent-1", 2)

	e1, _, _ := l.GetEntry(ctx, id1)
	e2, _, _ := l.GetEntry(ctx, id2)
	if e2.CreatedAt <= e1.CreatedAt {
		t.Errorf("created_at not increasing: %d then %d", e1.CreatedAt, e2.CreatedAt)
	}
}

func TestMaxEntriesPerKey_defaults(t *testing.T) {
	l := actledger.New(actledger.Config{Admin: admin})
	if got := l.MaxEntriesPerKey(); got != actledger.DefaultMaxEntriesPerKey {
		t.Errorf("default MaxEntriesPerKey: got %d, want %d", got, actledger.DefaultMaxEntriesPerKey)
	}
}
