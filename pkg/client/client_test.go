package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/victoriawisdom39-code/involvement-ledger/internal/actledger"
	"github.com/victoriawisdom39-code/involvement-ledger/internal/api/handler"
	"github.com/victoriawisdom39-code/involvement-ledger/pkg/client"
	"go.uber.org/zap"
)

var ctx = context.Background()

// startServer runs the real handler stack over an in-memory ledger and
// returns its base URL plus a token factory.
func startServer(t *testing.T) (string, *handler.TokenIssuer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ledger := actledger.New(actledger.Config{Admin: "admin-1"})
	tokens := handler.NewTokenIssuer([]byte("client-test-secret"), "http://ledger.test", time.Hour)
	h := handler.NewLedgerHandler(ledger, zap.NewNop())

	r := gin.New()
	h.Register(r.Group("/api/v1"), handler.RequireCaller(tokens))

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv.URL, tokens
}

func newClient(t *testing.T, baseURL string, tokens *handler.TokenIssuer, caller string) *client.Client {
	t.Helper()
	token, err := tokens.Issue(caller)
	if err != nil {
		t.Fatal(err)
	}
	c, err := client.New(baseURL, client.WithBearerToken(token))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestClient_endToEnd(t *testing.T) {
	baseURL, tokens := startServer(t)
	adminC := newClient(t, baseURL, tokens, "admin-1")
	parentC := newClient(t, baseURL, tokens, "parent-1")
	educatorC := newClient(t, baseURL, tokens, "educator-1")

	if err := adminC.RegisterType(ctx, "meeting", "attended a school meeting"); err != nil {
		t.Fatal(err)
	}

	id, err := parentC.LogActivity(ctx, client.LogActivityRequest{
		SubjectID:    1,
		ActivityType: "meeting",
		Description:  "Attended meeting",
	})
	if err != nil {
		t.Fatal(err)
	}
	if id != 1 {
		t.Fatalf("log id: got %d, want 1", id)
	}

	if err := educatorC.VerifyActivity(ctx, id); err != nil {
		t.Fatal(err)
	}

	entry, err := parentC.GetEntry(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !entry.Verified || entry.Verifier != "educator-1" {
		t.Errorf("entry after verify: %+v", entry)
	}

	ids, err := parentC.ActivitiesBySubmitter(ctx, "parent-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != id {
		t.Errorf("by submitter: got %v", ids)
	}

	st, err := parentC.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Entries != 1 || st.Paused {
		t.Errorf("status: %+v", st)
	}
}

func TestClient_apiErrorCodes(t *testing.T) {
	baseURL, tokens := startServer(t)
	parentC := newClient(t, baseURL, tokens, "parent-1")

	_, err := parentC.GetEntry(ctx, 99)
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", apiErr.StatusCode)
	}

	err = parentC.RegisterType(ctx, "meeting", "")
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusForbidden || apiErr.Code != "unauthorized" {
		t.Errorf("non-admin register: status=%d code=%q", apiErr.StatusCode, apiErr.Code)
	}
}
