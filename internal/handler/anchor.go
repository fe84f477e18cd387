package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"sak/internal/anchor"
	"sak/pkg/domain"
	"sak/pkg/errors"
	"sak/pkg/logger"
	"sak/pkg/validator"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const (
	streamWriteWait    = 10 * time.Second
	streamPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WizardHandler drives anchor conversion wizards over HTTP. Each session
// lives in the manager; every action answers with the wizard snapshot.
type WizardHandler struct {
	manager      *anchor.Manager
	validator    *validator.Validator
	logger       logger.Logger
	pollInterval time.Duration
}

func NewWizardHandler(manager *anchor.Manager, val *validator.Validator, log logger.Logger) *WizardHandler {
	return &WizardHandler{
		manager:      manager,
		validator:    val,
		logger:       log,
		pollInterval: 250 * time.Millisecond,
	}
}

type CreateSessionRequest struct {
	Wallet string `json:"wallet" validate:"required,stellar_key"`
}

type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type DestinationRequest struct {
	Destination string `json:"destination" validate:"required"`
}

// wizard resolves {variant} and {id} to a live session of that variant.
func (h *WizardHandler) wizard(w http.ResponseWriter, r *http.Request) (*anchor.Wizard, uuid.UUID, bool) {
	vars := mux.Vars(r)
	variant, err := anchor.ParseVariant(vars["variant"])
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return nil, uuid.Nil, false
	}
	id, err := uuid.Parse(vars["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid session ID")
		return nil, uuid.Nil, false
	}
	wz, err := h.manager.Get(id)
	if err != nil || wz.Variant() != variant {
		respondError(w, http.StatusNotFound, errors.ErrSessionNotFound.Error())
		return nil, uuid.Nil, false
	}
	return wz, id, true
}

// act runs one wizard action and answers with the resulting snapshot.
func (h *WizardHandler) act(w http.ResponseWriter, r *http.Request, status int, fn func(*anchor.Wizard) error) {
	wz, _, ok := h.wizard(w, r)
	if !ok {
		return
	}
	if err := fn(wz); err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, status, wz.Snapshot())
}

// Create handles POST /api/v1/anchor/{variant}/sessions.
func (h *WizardHandler) Create(w http.ResponseWriter, r *http.Request) {
	variant, err := anchor.ParseVariant(mux.Vars(r)["variant"])
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	var req CreateSessionRequest
	if !parseAndValidateRequest(w, r, h.validator, h.logger, &req) {
		return
	}

	id, wz, err := h.manager.Create(variant, req.Wallet)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"sessionId": id,
		"wizard":    wz.Snapshot(),
	})
}

// Get handles GET /api/v1/anchor/{variant}/sessions/{id}.
func (h *WizardHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, http.StatusOK, func(*anchor.Wizard) error { return nil })
}

// Delete handles DELETE /api/v1/anchor/{variant}/sessions/{id}.
func (h *WizardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	_, id, ok := h.wizard(w, r)
	if !ok {
		return
	}
	if err := h.manager.Delete(id); err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Gate starts the standard variant's KYC gate. Progress is reported through
// the snapshot and the websocket stream.
func (h *WizardHandler) Gate(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, http.StatusAccepted, func(wz *anchor.Wizard) error {
		return wz.StartGate(nil)
	})
}

// BaseKYC submits the bank-style step-1 form.
func (h *WizardHandler) BaseKYC(w http.ResponseWriter, r *http.Request) {
	var form anchor.BaseKYCForm
	if !decodeJSON(w, r, h.logger, &form) {
		return
	}
	h.act(w, r, http.StatusAccepted, func(wz *anchor.Wizard) error {
		return wz.SubmitBaseKYC(form)
	})
}

// Proceed moves from the gate to the amount step.
func (h *WizardHandler) Proceed(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, http.StatusOK, func(wz *anchor.Wizard) error { return wz.Proceed() })
}

func (h *WizardHandler) Amount(w http.ResponseWriter, r *http.Request) {
	var req AmountRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}
	h.act(w, r, http.StatusOK, func(wz *anchor.Wizard) error {
		return wz.SetAmount(req.Amount)
	})
}

func (h *WizardHandler) Destination(w http.ResponseWriter, r *http.Request) {
	var req DestinationRequest
	if !parseAndValidateRequest(w, r, h.validator, h.logger, &req) {
		return
	}
	d, err := anchor.ParseDestination(req.Destination)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	h.act(w, r, http.StatusOK, func(wz *anchor.Wizard) error {
		return wz.SelectDestination(d)
	})
}

// Verify starts inline verification of {tier} at the amount step.
func (h *WizardHandler) Verify(w http.ResponseWriter, r *http.Request) {
	tier, err := domain.ParseTier(mux.Vars(r)["tier"])
	if err != nil {
		respondServiceError(w, r, h.logger, errors.ErrInvalidTier)
		return
	}
	var sub anchor.InlineSubmission
	if !decodeJSON(w, r, h.logger, &sub) {
		return
	}
	h.act(w, r, http.StatusAccepted, func(wz *anchor.Wizard) error {
		return wz.VerifyInline(tier, sub)
	})
}

func (h *WizardHandler) Continue(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, http.StatusOK, func(wz *anchor.Wizard) error { return wz.Continue() })
}

func (h *WizardHandler) Back(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, http.StatusOK, func(wz *anchor.Wizard) error { return wz.Back() })
}

// Confirm executes the conversion and answers with the receipt.
func (h *WizardHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	wz, id, ok := h.wizard(w, r)
	if !ok {
		return
	}
	summary, err := wz.Confirm()
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	h.logger.Info("Conversion confirmed", map[string]interface{}{
		"event":          "anchor_conversion_confirmed",
		"session_id":     id.String(),
		"variant":        string(wz.Variant()),
		"destination":    string(summary.Destination),
		"transaction_id": summary.TransactionID,
	})
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"result":  summary,
		"wizard":  wz.Snapshot(),
	})
}

func (h *WizardHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, http.StatusOK, func(wz *anchor.Wizard) error { return wz.Reset() })
}

// ==============================================================================
// PROGRESS STREAM
// ==============================================================================

// Stream pushes the wizard snapshot over a websocket whenever it changes,
// until the client goes away or the session ends.
func (h *WizardHandler) Stream(w http.ResponseWriter, r *http.Request) {
	wz, id, ok := h.wizard(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer conn.Close()

	// Server read/write timeouts still apply to the hijacked conn.
	_ = conn.SetReadDeadline(time.Time{})
	_ = conn.SetWriteDeadline(time.Time{})

	h.logger.Debug("Wizard stream connected", map[string]interface{}{"session_id": id.String()})

	// Reads only serve to notice the client closing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()
	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	write := func(v interface{}) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		return conn.WriteJSON(v) == nil
	}

	var last []byte
	send := func() bool {
		snap := wz.Snapshot()
		raw, err := json.Marshal(snap)
		if err != nil || bytes.Equal(raw, last) {
			return err == nil
		}
		last = raw
		return write(map[string]interface{}{
			"type":      "snapshot",
			"data":      snap,
			"timestamp": time.Now().Unix(),
		})
	}

	if !send() {
		return
	}
	for {
		select {
		case <-ticker.C:
			if _, err := h.manager.Get(id); err != nil {
				write(map[string]interface{}{
					"type":      "closed",
					"timestamp": time.Now().Unix(),
				})
				return
			}
			if !send() {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
