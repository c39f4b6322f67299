package handler

import (
	"log/slog"
	"net/http"

	"github.com/pavelanni/testmaker/internal/model"
)

// requireIdentity rejects requests without a valid session token.
func (h *Handler) requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := h.identity.VerifyRequest(r)
		if err != nil {
			slog.Debug("identity verification failed", "path", r.URL.Path, "error", err)
			writeMessage(w, r, http.StatusUnauthorized, "Unauthorized", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(model.ContextWithIdentity(r.Context(), id)))
	})
}

// requireUser loads the local user for the verified identity.
func (h *Handler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := model.IdentityFromContext(r.Context())
		if id == nil {
			writeMessage(w, r, http.StatusUnauthorized, "Unauthorized", nil)
			return
		}
		user, err := h.store.GetUserByExternalID(r.Context(), id.UserID)
		if err != nil {
			slog.Error("failed to get user", "external_id", id.UserID, "error", err)
			writeError(w, r, http.StatusInternalServerError, "InternalError")
			return
		}
		if user == nil {
			writeMessage(w, r, http.StatusNotFound, "UserNotFound", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(model.ContextWithUser(r.Context(), user)))
	})
}

func (h *Handler) handleSyncUser(w http.ResponseWriter, r *http.Request) {
	id := model.IdentityFromContext(r.Context())

	existing, err := h.store.GetUserByExternalID(r.Context(), id.UserID)
	if err != nil {
		slog.Error("failed to get user", "external_id", id.UserID, "error", err)
		writeMessage(w, r, http.StatusInternalServerError, "SyncUserFailed", nil)
		return
	}
	if existing != nil {
		writeMessage(w, r, http.StatusOK, "UserAlreadyExists", map[string]any{"user": existing})
		return
	}

	if id.Email == "" {
		writeMessage(w, r, http.StatusBadRequest, "MissingIdentityEmail", nil)
		return
	}
	name := id.Name
	if name == "" {
		name = id.Email
	}
	user, err := h.store.CreateUser(r.Context(), model.User{
		ExternalID: id.UserID,
		Email:      id.Email,
		Name:       name,
	})
	if err != nil {
		slog.Error("failed to create user", "external_id", id.UserID, "error", err)
		writeMessage(w, r, http.StatusInternalServerError, "SyncUserFailed", nil)
		return
	}
	writeMessage(w, r, http.StatusCreated, "UserSynced", map[string]any{"user": user})
}
