package control

import (
	"errors"
	"net/http"
	"strings"

	"plutus/pkg/httpx"
	"plutus/pkg/store"
)

var errRecordsDisabled = errors.New("record store not configured")

func (h *Handler) withRecords(fn http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.records == nil {
			httpx.WriteError(w, r, httpx.NewError(errRecordsDisabled, http.StatusServiceUnavailable, "Records are disabled."))
			return
		}
		fn(w, r)
	})
}

func (h *Handler) addUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		httpx.WriteError(w, r, httpx.BadRequest(nil, "Email is required."))
		return
	}

	u, err := store.AddUser(r.Context(), h.records, req.Email, req.Name)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.records.FindByEmail(r.Context(), r.PathValue("email"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) saveWallet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Address  string `json:"address"`
		Nickname string `json:"nickname"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Address) == "" {
		httpx.WriteError(w, r, httpx.BadRequest(nil, "Email and address are required."))
		return
	}

	u, err := store.SaveWallet(r.Context(), h.records, req.Email, store.Wallet{
		Address:  strings.TrimSpace(req.Address),
		Nickname: req.Nickname,
	})
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) savedWallets(w http.ResponseWriter, r *http.Request) {
	u, err := h.records.FindByEmail(r.Context(), r.PathValue("email"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, u.SavedWallets)
}
