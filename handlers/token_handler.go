package handlers

import (
	"net/http"

	core "taskmarket-backend/core/marketplace"
	"taskmarket-backend/models"
	"taskmarket-backend/token"
)

// TokenHandler handles token holding account requests
type TokenHandler struct {
	*BaseHandler
	vault        *token.Vault
	allowDevMint bool
}

// NewTokenHandler creates a new token handler. When allowDevMint is set,
// holding creation may credit an initial balance; this is a development
// on-ramp and must stay off in production.
func NewTokenHandler(vault *token.Vault, allowDevMint bool) *TokenHandler {
	return &TokenHandler{BaseHandler: NewBaseHandler(), vault: vault, allowDevMint: allowDevMint}
}

// HandleHoldings serves GET (balance lookup) and POST (create holding).
func (h *TokenHandler) HandleHoldings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleGetBalance(w, r)
	case http.MethodPost:
		h.handleCreateHolding(w, r)
	default:
		h.sendMethodNotAllowed(w)
	}
}

func (h *TokenHandler) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := h.addressQuery(r, "holding")
	if err != nil {
		h.sendBadRequest(w, err.Error())
		return
	}

	balance, err := h.vault.Balance(r.Context(), addr)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendSuccess(w, map[string]interface{}{"holding": addr, "balance": balance})
}

func (h *TokenHandler) handleCreateHolding(w http.ResponseWriter, r *http.Request) {
	var req models.CreateHoldingRequest
	if err := h.parseJSON(r, &req); err != nil {
		h.sendBadRequest(w, "invalid JSON body")
		return
	}

	if req.InitialBalance > 0 && !h.allowDevMint {
		h.sendJSON(w, http.StatusForbidden,
			models.NewErrorResponse("dev_mint_disabled", "initial balances are disabled", http.StatusForbidden))
		return
	}

	addr := core.DeriveAddress("holding", req.Owner[:], req.Mint[:])
	auth := core.SignerAuthority(req.Owner)
	if err := h.vault.CreateHolding(r.Context(), addr, req.Owner, req.Mint, auth); err != nil {
		h.sendError(w, err)
		return
	}
	if req.InitialBalance > 0 {
		if err := h.vault.MintTo(r.Context(), addr, req.InitialBalance); err != nil {
			h.sendError(w, err)
			return
		}
	}

	h.sendSuccess(w, map[string]interface{}{"holding": addr, "balance": req.InitialBalance})
}
