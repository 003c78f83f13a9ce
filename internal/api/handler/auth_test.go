package handler_test

import (
	"testing"
	"time"

	"github.com/victoriawisdom39-code/involvement-ledger/internal/api/handler"
)

func TestTokenIssuer_roundtrip(t *testing.T) {
	tokens := handler.NewTokenIssuer(testSecret, "http://ledger.test", time.Hour)

	signed, err := tokens.Issue("parent-1")
	if err != nil {
		t.Fatal(err)
	}

	caller, err := tokens.Verify(signed)
	if err != nil {
		t.Fatal(err)
	}
	if caller != "parent-1" {
		t.Errorf("caller: got %q, want parent-1", caller)
	}
}

func TestTokenIssuer_rejectsWrongSecret(t *testing.T) {
	tokens := handler.NewTokenIssuer(testSecret, "http://ledger.test", time.Hour)
	other := handler.NewTokenIssuer([]byte("a-different-secret"), "http://ledger.test", time.Hour)

	signed, err := other.Issue("parent-1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tokens.Verify(signed); err == nil {
		t.Error("token signed with a different secret should be rejected")
	}
}

func TestTokenIssuer_rejectsWrongIssuer(t *testing.T) {
	tokens := handler.NewTokenIssuer(testSecret, "http://ledger.test", time.Hour)
	other := handler.NewTokenIssuer(testSecret, "http://imposter.test", time.Hour)

	signed, err := other.Issue("parent-1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tokens.Verify(signed); err == nil {
		t.Error("token with the wrong issuer should be rejected")
	}
}
