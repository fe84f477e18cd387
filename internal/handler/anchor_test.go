package handler

import (
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sak/internal/anchor"
	"sak/internal/wallet"
	"sak/pkg/logger"
	"sak/pkg/validator"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastWizardOptions() anchor.Options {
	return anchor.Options{
		BaseVerifier:   anchor.TimerVerifier{Delay: 10 * time.Millisecond},
		InlineVerifier: anchor.TimerVerifier{Delay: 5 * time.Millisecond},
		GateStages: []anchor.GateStage{
			{Offset: 0, Message: "Connecting to SAK..."},
			{Offset: 2 * time.Millisecond, Message: "Finalizing validation..."},
		},
		ReplayDuration: time.Millisecond,
		Rand:           rand.New(rand.NewSource(1)),
	}
}

func newWizardRouter(t *testing.T) *mux.Router {
	t.Helper()
	m := anchor.NewManager(anchor.ManagerConfig{
		Standard:  fastWizardOptions(),
		BankStyle: fastWizardOptions(),
	})
	t.Cleanup(m.Stop)
	h := NewWizardHandler(m, validator.New(), logger.NewNop())
	h.pollInterval = 5 * time.Millisecond
	return newRouter(Handlers{Wizard: h})
}

func createSession(t *testing.T, router http.Handler, variant string) string {
	t.Helper()
	rr := do(t, router, "POST", "/api/v1/anchor/"+variant+"/sessions", map[string]string{"wallet": testWallet}, false)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decodeBody(t, rr)["sessionId"].(string)
}

func snapshot(t *testing.T, router http.Handler, base string) map[string]interface{} {
	t.Helper()
	rr := do(t, router, "GET", base, nil, false)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	return decodeBody(t, rr)
}

func TestWizardHandler_StandardFlow(t *testing.T) {
	router := newWizardRouter(t)
	base := "/api/v1/anchor/standard/sessions/" + createSession(t, router, "standard")

	rr := do(t, router, "POST", base+"/gate", nil, false)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	require.Eventually(t, func() bool {
		return snapshot(t, router, base)["gatePassed"] == true
	}, 2*time.Second, 5*time.Millisecond)

	rr = do(t, router, "POST", base+"/proceed", nil, false)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "amount", decodeBody(t, rr)["stepName"])

	rr = do(t, router, "POST", base+"/amount", map[string]string{"amount": "1000"}, false)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	quote := decodeBody(t, rr)["quote"].(map[string]interface{})
	assert.NotEmpty(t, quote)

	rr = do(t, router, "POST", base+"/continue", nil, false)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "confirm", decodeBody(t, rr)["stepName"])

	rr = do(t, router, "POST", base+"/confirm", nil, false)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decodeBody(t, rr)
	result := body["result"].(map[string]interface{})
	assert.NotEmpty(t, result["transactionId"])
	assert.Equal(t, "result", body["wizard"].(map[string]interface{})["stepName"])

	rr = do(t, router, "POST", base+"/reset", nil, false)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "kyc_gate", decodeBody(t, rr)["stepName"])
}

func TestWizardHandler_StepErrors(t *testing.T) {
	router := newWizardRouter(t)
	base := "/api/v1/anchor/standard/sessions/" + createSession(t, router, "standard")

	// Nothing verified yet.
	rr := do(t, router, "POST", base+"/proceed", nil, false)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, router, "POST", base+"/confirm", nil, false)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, router, "POST", base+"/destination", map[string]string{"destination": "mars"}, false)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, "POST", base+"/verify/gold", map[string]string{}, false)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWizardHandler_DestinationAlert(t *testing.T) {
	router := newWizardRouter(t)
	base := "/api/v1/anchor/standard/sessions/" + createSession(t, router, "standard")

	require.Equal(t, http.StatusAccepted, do(t, router, "POST", base+"/gate", nil, false).Code)
	require.Eventually(t, func() bool {
		return snapshot(t, router, base)["gatePassed"] == true
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, http.StatusOK, do(t, router, "POST", base+"/proceed", nil, false).Code)
	require.Equal(t, http.StatusOK, do(t, router, "POST", base+"/amount", map[string]string{"amount": "500"}, false).Code)
	require.Equal(t, http.StatusOK, do(t, router, "POST", base+"/destination", map[string]string{"destination": "europe"}, false).Code)

	rr := do(t, router, "POST", base+"/continue", nil, false)
	require.Equal(t, http.StatusConflict, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, true, body["alert"])
	assert.Equal(t, anchor.MsgSepaRequired, body["error"])

	rr = do(t, router, "POST", base+"/verify/sepa", map[string]interface{}{
		"iban":  "ES9121000418450200051332",
		"files": map[string]interface{}{
			anchor.SlotSepaSelfie:  map[string]string{"name": "selfie.jpg"},
			anchor.SlotSepaAddress: map[string]string{"name": "utility-bill.pdf"},
		},
	}, false)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	require.Eventually(t, func() bool {
		kyc := snapshot(t, router, base)["kyc"].(map[string]interface{})
		return kyc["sepa"] == true
	}, 2*time.Second, 5*time.Millisecond)

	rr = do(t, router, "POST", base+"/continue", nil, false)
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestWizardHandler_SessionLookup(t *testing.T) {
	router := newWizardRouter(t)
	id := createSession(t, router, "bank-style")

	rr := do(t, router, "GET", "/api/v1/anchor/bank-style/sessions/"+id, nil, false)
	assert.Equal(t, http.StatusOK, rr.Code)

	// Wrong variant for the session.
	rr = do(t, router, "GET", "/api/v1/anchor/standard/sessions/"+id, nil, false)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, router, "GET", "/api/v1/anchor/ripio/sessions/"+id, nil, false)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, router, "POST", "/api/v1/anchor/bank-style/sessions", map[string]string{"wallet": "nope"}, false)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// The gate only exists in the standard variant.
	rr = do(t, router, "POST", "/api/v1/anchor/bank-style/sessions/"+id+"/gate", nil, false)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, router, "DELETE", "/api/v1/anchor/bank-style/sessions/"+id, nil, false)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = do(t, router, "GET", "/api/v1/anchor/bank-style/sessions/"+id, nil, false)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestWizardHandler_BankStyleBaseForm(t *testing.T) {
	router := newWizardRouter(t)
	base := "/api/v1/anchor/bank-style/sessions/" + createSession(t, router, "bank-style")

	rr := do(t, router, "POST", base+"/base-kyc", map[string]interface{}{"fullname": "Ana"}, false)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, "POST", base+"/base-kyc", map[string]interface{}{
		"fullname":   "Ana Perez",
		"email":      "ana@example.com",
		"dob":        "1990-04-12",
		"country":    "AR",
		"idNumber":   "30111222",
		"idDocument": map[string]string{"name": "dni.jpg"},
	}, false)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	require.Eventually(t, func() bool {
		kyc := snapshot(t, router, base)["kyc"].(map[string]interface{})
		return kyc["base"] == true
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWizardHandler_Stream(t *testing.T) {
	router := newWizardRouter(t)
	id := createSession(t, router, "standard")

	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/anchor/standard/sessions/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first map[string]interface{}
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "snapshot", first["type"])
	assert.Equal(t, false, first["data"].(map[string]interface{})["gatePassed"])

	resp, err := http.Post(srv.URL+"/api/v1/anchor/standard/sessions/"+id+"/gate", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg map[string]interface{}
		require.NoError(t, conn.ReadJSON(&msg))
		if msg["data"].(map[string]interface{})["gatePassed"] == true {
			break
		}
	}
}

// --- Wallet sessions ---

func newWalletRouter(useMock bool) *mux.Router {
	stores := map[string]*wallet.MemoryStateStore{}
	factory := func(id string) wallet.StateStore {
		s, ok := stores[id]
		if !ok {
			s = wallet.NewMemoryStateStore()
			stores[id] = s
		}
		return s
	}
	h := NewWalletHandler(factory, useMock, validator.New(), logger.NewNop())
	return newRouter(Handlers{Wallet: h})
}

func TestWalletHandler_Lifecycle(t *testing.T) {
	router := newWalletRouter(false)

	rr := do(t, router, "POST", "/api/v1/wallet/sessions", map[string]string{
		"walletId":  "freighter",
		"publicKey": testWallet,
	}, false)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	body := decodeBody(t, rr)
	id := body["sessionId"].(string)
	assert.Equal(t, true, body["state"].(map[string]interface{})["isConnected"])

	rr = do(t, router, "GET", "/api/v1/wallet/sessions/"+id, nil, false)
	require.Equal(t, http.StatusOK, rr.Code)
	body = decodeBody(t, rr)
	assert.Equal(t, testWallet, body["state"].(map[string]interface{})["publicKey"])
	assert.Equal(t, "GBBB...BBBB", body["shortKey"])

	rr = do(t, router, "DELETE", "/api/v1/wallet/sessions/"+id, nil, false)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = do(t, router, "GET", "/api/v1/wallet/sessions/"+id, nil, false)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, false, decodeBody(t, rr)["state"].(map[string]interface{})["isConnected"])
}

func TestWalletHandler_ConnectErrors(t *testing.T) {
	router := newWalletRouter(false)

	// No address reported counts as the user declining.
	rr := do(t, router, "POST", "/api/v1/wallet/sessions", map[string]string{"walletId": "freighter"}, false)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, "POST", "/api/v1/wallet/sessions", map[string]string{
		"walletId":  "freighter",
		"publicKey": "GSHORT",
	}, false)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, "GET", "/api/v1/wallet/sessions/not-a-uuid", nil, false)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWalletHandler_MockMode(t *testing.T) {
	router := newWalletRouter(true)

	rr := do(t, router, "POST", "/api/v1/wallet/sessions", map[string]string{"walletId": "freighter"}, false)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, wallet.MockPublicKey, decodeBody(t, rr)["state"].(map[string]interface{})["publicKey"])
}
