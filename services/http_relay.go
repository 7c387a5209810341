package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/parley-net/parley/api/httpserver"
	"github.com/parley-net/parley/coordinator"
	"github.com/parley-net/parley/crypto"
	"github.com/parley-net/parley/protocol"
)

// RegistrableDirectory extends the read-only directory with registration.
// The relay owns registration; the coordinator only ever reads.
type RegistrableDirectory interface {
	coordinator.Directory
	Register(ctx context.Context, ident *protocol.Identity) error
}

// RelayHandler exposes the coordinator, replay guard, and directory over
// HTTP. Every state-changing request arrives inside a Signed envelope; the
// handler recovers the signer and requires it to match the claimed actor's
// directory key before touching any state.
type RelayHandler struct {
	log       *slog.Logger
	coord     *coordinator.Coordinator
	guard     *coordinator.ReplayGuard
	directory RegistrableDirectory
}

// NewRelayHandler creates a relay handler with the given collaborators.
func NewRelayHandler(log *slog.Logger, coord *coordinator.Coordinator, guard *coordinator.ReplayGuard, directory RegistrableDirectory) *RelayHandler {
	return &RelayHandler{
		log:       log,
		coord:     coord,
		guard:     guard,
		directory: directory,
	}
}

// RegisterRoutes registers the relay API with the router.
func (h *RelayHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/directory/register", h.handleRegisterIdentity)
	r.Get("/api/directory/identity/{id}", h.handleLookupIdentity)
	r.Get("/api/directory/search", h.handleSearchIdentities)

	r.Post("/api/exchanges", h.handleInitiate)
	r.Get("/api/exchanges/{id}", h.handleGetExchange)
	r.Post("/api/exchanges/{id}/respond", h.handleRespond)
	r.Post("/api/exchanges/{id}/confirm", h.handleConfirm)
	r.Get("/api/exchanges/pending/{userID}", h.handlePending)

	r.Post("/api/messages", h.handleSubmitMessage)
	r.Get("/api/messages/{userID}", h.handleFetchMessages)
}

// NewRelayServer wires the relay handler into a BaseServer.
func NewRelayServer(cfg *httpserver.HTTPServerConfig, handler *RelayHandler) (*httpserver.BaseServer, error) {
	return httpserver.New(cfg, handler)
}

func (h *RelayHandler) handleRegisterIdentity(w http.ResponseWriter, r *http.Request) {
	signed, err := protocol.DecodeMessage[protocol.Signed[protocol.Identity]](r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ident, signerKey, err := signed.Recover()
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "invalid envelope signature")
		return
	}
	// Registration is self-signed: the key being registered must be the key
	// that signed the request.
	if !signerKey.Equal(ident.PublicKey) {
		h.writeError(w, http.StatusUnauthorized, "signer does not match registered key")
		return
	}

	if err := h.directory.Register(r.Context(), ident); err != nil {
		h.writeError(w, http.StatusConflict, "registration rejected")
		return
	}

	h.log.Info("Identity registered", "id", ident.ID)
	h.writeJSON(w, http.StatusCreated, &RegisterIdentityResponse{Success: true, ID: ident.ID})
}

func (h *RelayHandler) handleLookupIdentity(w http.ResponseWriter, r *http.Request) {
	ident, err := h.directory.Lookup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ident)
}

func (h *RelayHandler) handleSearchIdentities(w http.ResponseWriter, r *http.Request) {
	idents, err := h.directory.Search(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, &SearchResponse{Identities: idents})
}

func (h *RelayHandler) handleInitiate(w http.ResponseWriter, r *http.Request) {
	signed, err := protocol.DecodeMessage[protocol.Signed[InitiateRequest]](r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req, signerKey, err := signed.Recover()
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "invalid envelope signature")
		return
	}
	if !h.authorize(w, r, req.InitiatorID, signerKey) {
		return
	}

	ephemeralKey, err := crypto.NewEphemeralPublicKey(req.EphemeralKey)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid ephemeral key")
		return
	}

	rec, err := h.coord.Initiate(r.Context(), coordinator.InitiateParams{
		InitiatorID:  req.InitiatorID,
		ResponderID:  req.ResponderID,
		EphemeralKey: ephemeralKey,
		Signature:    req.Signature,
		Timestamp:    req.Timestamp,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, &ExchangeResponse{Exchange: rec})
}

func (h *RelayHandler) handleGetExchange(w http.ResponseWriter, r *http.Request) {
	rec, err := h.coord.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, &ExchangeResponse{Exchange: rec})
}

func (h *RelayHandler) handleRespond(w http.ResponseWriter, r *http.Request) {
	signed, err := protocol.DecodeMessage[protocol.Signed[RespondRequest]](r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req, signerKey, err := signed.Recover()
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "invalid envelope signature")
		return
	}
	if !h.authorize(w, r, req.ResponderID, signerKey) {
		return
	}

	ephemeralKey, err := crypto.NewEphemeralPublicKey(req.EphemeralKey)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid ephemeral key")
		return
	}

	rec, err := h.coord.Respond(r.Context(), chi.URLParam(r, "id"), coordinator.RespondParams{
		CallerID:     req.ResponderID,
		EphemeralKey: ephemeralKey,
		Signature:    req.Signature,
		Timestamp:    req.Timestamp,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, &ExchangeResponse{Exchange: rec})
}

func (h *RelayHandler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	signed, err := protocol.DecodeMessage[protocol.Signed[ConfirmRequest]](r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req, signerKey, err := signed.Recover()
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "invalid envelope signature")
		return
	}
	if !h.authorize(w, r, req.UserID, signerKey) {
		return
	}

	if err := h.coord.Confirm(r.Context(), chi.URLParam(r, "id"), req.UserID, req.ConfirmationTag); err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"confirmed": true})
}

func (h *RelayHandler) handlePending(w http.ResponseWriter, r *http.Request) {
	recs, err := h.coord.PendingFor(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, &PendingResponse{Exchanges: recs})
}

func (h *RelayHandler) handleSubmitMessage(w http.ResponseWriter, r *http.Request) {
	signed, err := protocol.DecodeMessage[protocol.Signed[protocol.SecureMessage]](r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, signerKey, err := signed.Recover()
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "invalid envelope signature")
		return
	}
	if !h.authorize(w, r, msg.SenderID, signerKey) {
		return
	}

	if err := h.guard.Admit(r.Context(), msg); err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, &SubmitMessageResponse{Accepted: true, ID: msg.ID})
}

func (h *RelayHandler) handleFetchMessages(w http.ResponseWriter, r *http.Request) {
	since := time.Time{}
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid since parameter")
			return
		}
		since = parsed
	}

	msgs, err := h.guard.MessagesFor(r.Context(), chi.URLParam(r, "userID"), since)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, &MessagesResponse{Messages: msgs})
}

// authorize checks that the envelope signer holds the directory key of the
// claimed actor. Writes the failure response itself and reports whether the
// request may proceed.
func (h *RelayHandler) authorize(w http.ResponseWriter, r *http.Request, actorID string, signerKey crypto.PublicKey) bool {
	ident, err := h.directory.Lookup(r.Context(), actorID)
	if err != nil {
		h.writeDomainError(w, err)
		return false
	}
	if !ident.PublicKey.Equal(signerKey) {
		h.log.Warn("Envelope signer does not match directory key", "actor", actorID)
		h.writeError(w, http.StatusUnauthorized, "signer does not match directory key")
		return false
	}
	return true
}

// writeDomainError maps core errors to HTTP statuses. Protocol rejections all
// collapse to one generic 409 so an unauthenticated caller cannot probe which
// security check refused the request.
func (h *RelayHandler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, protocol.ErrIdentityNotFound), errors.Is(err, protocol.ErrExchangeNotFound):
		h.writeError(w, http.StatusNotFound, "not found")
	case protocol.IsProtocolReject(err):
		h.writeError(w, http.StatusConflict, "rejected")
	default:
		h.log.Error("Request failed", "err", err)
		h.writeError(w, http.StatusServiceUnavailable, "temporarily unavailable")
	}
}

func (h *RelayHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func (h *RelayHandler) writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg}) //nolint:errcheck
}
