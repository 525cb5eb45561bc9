package httphandler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ericfisherdev/datawipe/internal/domain/model"
)

// SetCredential stores an encrypted credential and puts it into use.
func (h *Handler) SetCredential(w http.ResponseWriter, r *http.Request) {
	var req CredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	value := strings.TrimSpace(req.Value)
	if value == "" {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}

	service := r.PathValue("service")
	if err := h.credentials.Set(r.Context(), service, model.Secret(value)); err != nil {
		h.writeServiceError(w, "set credential", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteCredential removes a stored credential.
func (h *Handler) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	service := r.PathValue("service")
	if err := h.credentials.Delete(r.Context(), service); err != nil {
		h.writeServiceError(w, "delete credential", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
