package audit_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/victoriawisdom39-code/involvement-ledger/internal/actledger"
	"github.com/victoriawisdom39-code/involvement-ledger/internal/audit"
	"go.uber.org/zap"
)

type received struct {
	body      []byte
	signature string
	eventType string
}

func TestDispatcher_deliversSignedEvent(t *testing.T) {
	got := make(chan received, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- received{
			body:      body,
			signature: r.Header.Get("X-Ledger-Signature"),
			eventType: r.Header.Get("X-Ledger-Event"),
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := audit.NewDispatcher([]audit.Subscriber{{URL: srv.URL, Secret: "shhh"}}, zap.NewNop())

	ledger := actledger.New(actledger.Config{Admin: "admin-1"})
	ledger.SetEventSink(d)
	if err := ledger.RegisterType(context.Background(), "admin-1", "meeting", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := ledger.LogActivity(context.Background(), "parent-1", 7, "meeting", "Attended meeting", nil, ""); err != nil {
		t.Fatal(err)
	}

	select {
	case r := <-got:
		var ev actledger.Event
		if err := json.Unmarshal(r.body, &ev); err != nil {
			t.Fatalf("unmarshal delivered event: %v", err)
		}
		if ev.Type != actledger.EventActivityLogged || ev.LogID != 1 ||
			ev.Actor != "parent-1" || ev.SubjectID != 7 {
			t.Errorf("delivered event: %+v", ev)
		}
		if r.eventType != actledger.EventActivityLogged {
			t.Errorf("event header: got %q", r.eventType)
		}

		mac := hmac.New(sha256.New, []byte("shhh"))
		mac.Write(r.body)
		want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
		if r.signature != want {
			t.Errorf("signature: got %q, want %q", r.signature, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no delivery within 5s")
	}
}

func TestDispatcher_noSubscribersIsNoop(t *testing.T) {
	d := audit.NewDispatcher(nil, zap.NewNop())
	// Must not panic or block.
	d.Publish(context.Background(), actledger.Event{Type: actledger.EventActivityLogged})
}
