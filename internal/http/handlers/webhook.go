package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"server/internal/domain"
	"server/internal/providers/replicate"
)

const maxWebhookBodyBytes = 1 << 20

// WebhookReplicate receives provider completion callbacks. The body is
// authenticated with an HMAC-SHA256 signature before any of it is parsed.
func (a *App) WebhookReplicate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "unreadable body")
		return
	}

	if !a.verifyWebhookSignature(body, r.Header.Get("X-Webhook-Signature")) {
		a.error(w, http.StatusUnauthorized, "unauthorized", "invalid signature")
		return
	}

	var pred replicate.Prediction
	if err := json.Unmarshal(body, &pred); err != nil || pred.ID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	job, err := a.Orchestrator.ReconcileWebhook(r.Context(), &pred)
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			// Unknown prediction. Acknowledge so the provider stops retrying.
			a.json(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": string(job.Status)})
}

func (a *App) verifyWebhookSignature(body []byte, signature string) bool {
	if signature == "" || a.Config.WebhookSecret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(a.Config.WebhookSecret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(signature))
}
