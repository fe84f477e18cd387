package handler

import (
	"net/http"

	"sak/internal/wallet"
	"sak/pkg/logger"
	"sak/pkg/validator"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// StateStoreFactory returns the persisted state backing one wallet session.
type StateStoreFactory func(sessionID string) wallet.StateStore

// WalletHandler exposes wallet sessions to browser clients. The browser
// extension reports the address; the server checks and persists it.
type WalletHandler struct {
	stores    StateStoreFactory
	useMock   bool
	validator *validator.Validator
	logger    logger.Logger
}

func NewWalletHandler(stores StateStoreFactory, useMock bool, val *validator.Validator, log logger.Logger) *WalletHandler {
	return &WalletHandler{
		stores:    stores,
		useMock:   useMock,
		validator: val,
		logger:    log,
	}
}

type ConnectWalletRequest struct {
	WalletID  string `json:"walletId" validate:"required,max=64"`
	PublicKey string `json:"publicKey" validate:"omitempty,max=64"`
}

func (h *WalletHandler) session(id string, agent wallet.Agent) *wallet.Session {
	return wallet.NewSession(agent, h.stores(id), wallet.Config{UseMock: h.useMock, Logger: h.logger})
}

func sessionParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid session ID")
		return "", false
	}
	return id.String(), true
}

// Connect handles POST /api/v1/wallet/sessions and starts a new session.
func (h *WalletHandler) Connect(w http.ResponseWriter, r *http.Request) {
	h.connect(w, r, uuid.NewString(), http.StatusCreated)
}

// Reconnect handles POST /api/v1/wallet/sessions/{id}/connect.
func (h *WalletHandler) Reconnect(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionParam(w, r)
	if !ok {
		return
	}
	h.connect(w, r, id, http.StatusOK)
}

func (h *WalletHandler) connect(w http.ResponseWriter, r *http.Request, id string, status int) {
	var req ConnectWalletRequest
	if !parseAndValidateRequest(w, r, h.validator, h.logger, &req) {
		return
	}

	s := h.session(id, wallet.StaticAgent{Address: req.PublicKey})
	defer s.Close()

	if _, err := s.Connect(r.Context(), req.WalletID); err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, status, map[string]interface{}{
		"sessionId": id,
		"state":     s.State(),
	})
}

// State handles GET /api/v1/wallet/sessions/{id}.
func (h *WalletHandler) State(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionParam(w, r)
	if !ok {
		return
	}
	s := h.session(id, wallet.UnavailableAgent{})
	defer s.Close()

	if err := s.Restore(r.Context()); err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	st := s.State()
	resp := map[string]interface{}{
		"sessionId": id,
		"state":     st,
	}
	if st.IsConnected {
		resp["shortKey"] = wallet.ShortenPublicKey(st.PublicKey, 4)
	}
	respondJSON(w, http.StatusOK, resp)
}

// Disconnect handles DELETE /api/v1/wallet/sessions/{id}.
func (h *WalletHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionParam(w, r)
	if !ok {
		return
	}
	s := h.session(id, wallet.UnavailableAgent{})
	defer s.Close()

	if err := s.Disconnect(r.Context()); err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
