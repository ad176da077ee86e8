// Package control serves the one-shot HTTP endpoints that mutate relay state
// out of band: the wallet provider and the user records.
package control

import (
	"log/slog"
	"net/http"
	"strings"

	"plutus/pkg/api"
	"plutus/pkg/httpx"
	"plutus/pkg/provider"
	"plutus/pkg/store"

	jsoniter "github.com/json-iterator/go"
)

const (
	msgProviderRequired = "Provider is required."
	msgProviderSet      = "Web3 provider set successfully."
	msgProviderFailed   = "Failed to set provider."
)

// ProviderSetter is the write side of the provider registry.
type ProviderSetter interface {
	SetProvider(session string, h provider.Handle) error
	SetAddress(session, address string) error
}

// Handler serves the control and record endpoints. records may be nil, in
// which case the record endpoints answer 503.
type Handler struct {
	providers ProviderSetter
	records   store.Store
}

func New(providers ProviderSetter, records store.Store) *Handler {
	return &Handler{providers: providers, records: records}
}

// Routes lists the endpoints for mounting on a channel's mux.
func (h *Handler) Routes() []api.Route {
	return []api.Route{
		{Pattern: "POST /api/set-provider", Handler: http.HandlerFunc(h.setProvider)},
		{Pattern: "POST /api/add-user", Handler: h.withRecords(h.addUser)},
		{Pattern: "GET /api/users/{email}", Handler: h.withRecords(h.getUser)},
		{Pattern: "POST /api/saved-wallets", Handler: h.withRecords(h.saveWallet)},
		{Pattern: "GET /api/saved-wallets/{email}", Handler: h.withRecords(h.savedWallets)},
	}
}

type setProviderRequest struct {
	Provider  jsoniter.RawMessage `json:"provider"`
	Address   string              `json:"address"`
	SessionID string              `json:"sessionId"`
	Email     string              `json:"email"`
}

func (h *Handler) setProvider(w http.ResponseWriter, r *http.Request) {
	var req setProviderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	handle := provider.Handle(req.Provider)
	if handle.IsEmpty() {
		httpx.WriteError(w, r, httpx.BadRequest(provider.ErrInvalidProvider, msgProviderRequired))
		return
	}

	session := req.SessionID
	if session == "" {
		session = r.URL.Query().Get("session")
	}
	if session == "" {
		session = provider.DefaultSession
	}

	if err := h.providers.SetProvider(session, handle); err != nil {
		httpx.WriteError(w, r, httpx.Internal(err, msgProviderFailed))
		return
	}
	address := strings.TrimSpace(req.Address)
	if address != "" {
		if err := h.providers.SetAddress(session, address); err != nil {
			httpx.WriteError(w, r, httpx.Internal(err, msgProviderFailed))
			return
		}
	}
	slog.InfoContext(r.Context(), "Wallet provider set", "session", session, "address", address)

	if h.records != nil && req.Email != "" && address != "" {
		if _, err := store.SetAddress(r.Context(), h.records, req.Email, address); err != nil {
			slog.WarnContext(r.Context(), "Failed to record wallet address", "email", req.Email, "error", err)
		}
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": msgProviderSet,
	})
}
