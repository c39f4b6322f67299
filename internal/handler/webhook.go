package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/pavelanni/testmaker/internal/webhook"
)

const maxWebhookBody = 1 << 20

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if h.hooks == nil {
		slog.Error("webhook delivery received but no secret is configured")
		writeError(w, r, http.StatusInternalServerError, "WebhookSecretMissing")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "InvalidRequestBody")
		return
	}

	evt, err := h.hooks.Verify(payload, r.Header)
	switch {
	case errors.Is(err, webhook.ErrMissingHeaders):
		writeError(w, r, http.StatusBadRequest, "MissingSvixHeaders")
		return
	case err != nil:
		slog.Warn("webhook verification failed", "error", err)
		writeError(w, r, http.StatusBadRequest, "InvalidSignature")
		return
	}

	if err := h.syncer.Apply(r.Context(), evt); err != nil {
		slog.Error("webhook processing failed", "type", evt.Type, "error", err)
		writeError(w, r, http.StatusInternalServerError, "WebhookFailed")
		return
	}
	writeMessage(w, r, http.StatusOK, "WebhookProcessed", nil)
}
