package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"solana-pool-sniper/internal/domain"
)

type failingSender struct{ calls int }

func (f *failingSender) Send(context.Context, string, string) error {
	f.calls++
	return errors.New("boom")
}

func (f *failingSender) Name() string { return "failing" }

func TestNotifier_ContinuesPastFailingSender(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)
	bad := &failingSender{}

	n := NewNotifier(logger, bad, NewLogSender(logger))
	err := n.Notify(context.Background(), "title", "body")

	if err == nil || !strings.Contains(err.Error(), "failing: boom") {
		t.Fatalf("expected combined error, got %v", err)
	}
	if bad.calls != 1 {
		t.Errorf("expected 1 call, got %d", bad.calls)
	}
	if !strings.Contains(buf.String(), "[alert] title: body") {
		t.Errorf("log sender did not write alert: %q", buf.String())
	}
}

func TestNotifier_ReconcileIncludesSignature(t *testing.T) {
	var buf bytes.Buffer
	n := NewNotifier(nil, NewLogSender(log.New(&buf, "", 0)))

	res := domain.TradeExecutionResult{RequestID: "req1", TokenMint: "MINT", Side: domain.SideBuy, Signature: "5igSig",
		FailureKind: domain.FailureLedgerUnreconciled}
	if err := n.Reconcile(context.Background(), "user1", res, errors.New("db down")); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Ledger reconciliation required", "user=user1", "signature=5igSig", "request=req1", "db down"} {
		if !strings.Contains(out, want) {
			t.Errorf("alert missing %q: %s", want, out)
		}
	}

	buf.Reset()
	res.FailureKind = domain.FailureTimeout
	if err := n.Reconcile(context.Background(), "user1", res, errors.New("send outcome unknown")); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if out := buf.String(); !strings.Contains(out, "Trade outcome unknown") || !strings.Contains(out, "kind=TIMEOUT") {
		t.Errorf("unexpected unknown-outcome alert: %s", out)
	}
}

func TestTelegramSender_Send(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	s := NewTelegramSender(server.URL, "TOKEN", "42")
	if err := s.Send(context.Background(), "Hi", "there"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got["chat_id"] != "42" || got["text"] != "*Hi*\nthere" {
		t.Errorf("unexpected payload: %v", got)
	}
}

func TestTelegramSender_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("bot was blocked"))
	}))
	defer server.Close()

	err := NewTelegramSender(server.URL, "T", "1").Send(context.Background(), "a", "b")
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected status error, got %v", err)
	}
}
