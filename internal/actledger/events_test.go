package actledger_test

import (
	"context"
	"testing"

	"github.com/victoriawisdom39-code/involvement-ledger/internal/actledger"
)

// recordingSink captures published events for assertions.
type recordingSink struct {
	events []actledger.Event
}

func (r *recordingSink) Publish(_ context.Context, ev actledger.Event) {
	r.events = append(r.events, ev)
}

func TestEvents_emittedOnSuccess(t *testing.T) {
	l := newLedger(t, actledger.Config{})
	sink := &recordingSink{}
	l.SetEventSink(sink)

	id := mustLog(t, l, "parent-1", 42)
	if err := l.VerifyActivity(ctx, "educator-1", id); err != nil {
		t.Fatal(err)
	}
	if err := l.DisputeActivity(ctx, "educator-2", id, "contested"); err != nil {
		t.Fatal(err)
	}

	if len(sink.events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(sink.events))
	}

	logged := sink.events[0]
	if logged.Type != actledger.EventActivityLogged || logged.LogID != id ||
		logged.Actor != "parent-1" || logged.SubjectID != 42 {
		t.Errorf("logged event: %+v", logged)
	}

	verified := sink.events[1]
	if verified.Type != actledger.EventActivityVerified || verified.Actor != "educator-1" {
		t.Errorf("verified event: %+v", verified)
	}

	disputed := sink.events[2]
	if disputed.Type != actledger.EventActivityDisputed || disputed.Actor != "educator-2" {
		t.Errorf("disputed event: %+v", disputed)
	}

	if logged.ID == verified.ID {
		t.Error("events must carry distinct ids")
	}
}

func TestEvents_notEmittedOnFailure(t *testing.T) {
	l := newLedger(t, actledger.Config{})
	id := mustLog(t, l, "parent-1", 1)

	sink := &recordingSink{}
	l.SetEventSink(sink)

	if err := l.VerifyActivity(ctx, "educator-1", id+1); err == nil {
		t.Fatal("expected error")
	}
	if _, err := l.LogActivity(ctx, "parent-1", 0, "meeting", "x", nil, ""); err == nil {
		t.Fatal("expected error")
	}

	if len(sink.events) != 0 {
		t.Errorf("failed operations must not emit events, got %d", len(sink.events))
	}
}

func TestParseHash(t *testing.T) {
	h := actledger.Hash{0xab, 0xcd}
	parsed, err := actledger.ParseHash(h.String())
	if err != nil {
		t.Fatal(err)
	}
	if parsed != h {
		t.Errorf("roundtrip mismatch: %s vs %s", parsed, h)
	}

	if _, err := actledger.ParseHash("abcd"); err == nil {
		t.Error("short hash should be rejected")
	}
	if _, err := actledger.ParseHash("zz"); err == nil {
		t.Error("non-hex hash should be rejected")
	}
}
