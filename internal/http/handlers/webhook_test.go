package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"server/internal/infra"
)

func newWebhookApp(secret string) *App {
	return &App{
		Config: &infra.Config{WebhookSecret: secret},
		Logger: infra.Logger(zerolog.New(io.Discard)),
	}
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookRejectsBadSignatures(t *testing.T) {
	app := newWebhookApp("hook-secret")
	body := []byte(`{"id":"pred-1","status":"succeeded"}`)

	tests := []struct {
		name      string
		signature string
	}{
		{"missing signature", ""},
		{"wrong signature", signBody("other-secret", body)},
		{"signature for different body", signBody("hook-secret", []byte(`{}`))},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/replicate", bytes.NewReader(body))
			if tc.signature != "" {
				req.Header.Set("X-Webhook-Signature", tc.signature)
			}
			rec := httptest.NewRecorder()
			app.WebhookReplicate(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestWebhookRejectsInvalidPayload(t *testing.T) {
	app := newWebhookApp("hook-secret")

	tests := []struct {
		name string
		body []byte
	}{
		{"not json", []byte("not-json")},
		{"missing prediction id", []byte(`{"status":"succeeded"}`)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/replicate", bytes.NewReader(tc.body))
			req.Header.Set("X-Webhook-Signature", signBody("hook-secret", tc.body))
			rec := httptest.NewRecorder()
			app.WebhookReplicate(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestVerifyWebhookSignatureRequiresSecret(t *testing.T) {
	app := newWebhookApp("")
	body := []byte(`{"id":"pred-1"}`)
	if app.verifyWebhookSignature(body, signBody("", body)) {
		t.Fatal("empty secret must never verify")
	}
}
