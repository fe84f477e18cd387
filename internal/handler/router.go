package handler

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Handlers groups everything mounted by RegisterRoutes. Nil entries are
// skipped.
type Handlers struct {
	KYC      *KYCHandler
	Auth     *AuthHandler
	Webhooks *WebhookHandler
	Wallet   *WalletHandler
	Wizard   *WizardHandler
	System   *SystemHandler
	Metrics  http.Handler
}

// Guards are applied to route groups. Nil entries are skipped.
type Guards struct {
	// Authenticate protects the anchor routes.
	Authenticate mux.MiddlewareFunc
	// Idempotency wraps the routes that create or change state.
	Idempotency mux.MiddlewareFunc
	// LoginLimit throttles the login endpoint on top of the global limit.
	LoginLimit mux.MiddlewareFunc
}

func use(r *mux.Router, mw ...mux.MiddlewareFunc) {
	for _, m := range mw {
		if m != nil {
			r.Use(m)
		}
	}
}

// RegisterRoutes mounts the public API on r.
func RegisterRoutes(r *mux.Router, h Handlers, g Guards) {
	// Preflight requests need a route so router-level CORS middleware runs.
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if h.System != nil {
		r.HandleFunc("/health", h.System.Health).Methods("GET")
		r.HandleFunc("/ready", h.System.Ready).Methods("GET")
	}
	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics).Methods("GET")
	}

	api := r.PathPrefix("/api/v1").Subrouter()

	if h.Auth != nil {
		login := api.PathPrefix("/auth/login").Subrouter()
		use(login, g.LoginLimit)
		login.HandleFunc("", h.Auth.Login).Methods("POST")
	}

	// Anchor routes
	anchors := api.NewRoute().Subrouter()
	use(anchors, g.Authenticate)
	if h.Auth != nil {
		anchors.HandleFunc("/auth/logout", h.Auth.Logout).Methods("POST")
	}
	if h.KYC != nil {
		review := anchors.PathPrefix("/kyc/{wallet}").Subrouter()
		review.HandleFunc("", h.KYC.GetStatus).Methods("GET")
		review.HandleFunc("/metadata", h.KYC.GetMetadata).Methods("GET")
		review.HandleFunc("/{tier}", h.KYC.GetTierStatus).Methods("GET")

		actions := review.PathPrefix("/{tier}").Subrouter()
		use(actions, g.Idempotency)
		actions.HandleFunc("/verify", h.KYC.Verify).Methods("POST")
		actions.HandleFunc("/reject", h.KYC.Reject).Methods("POST")
	}
	if h.Webhooks != nil {
		hooks := anchors.PathPrefix("/anchors/webhooks").Subrouter()
		use(hooks, g.Idempotency)
		hooks.HandleFunc("", h.Webhooks.Register).Methods("POST")
		hooks.HandleFunc("", h.Webhooks.List).Methods("GET")
		hooks.HandleFunc("/{id}", h.Webhooks.Delete).Methods("DELETE")
	}

	// Wallet-keyed user routes
	if h.KYC != nil {
		users := api.PathPrefix("/users/{wallet}").Subrouter()
		use(users, g.Idempotency)
		users.HandleFunc("/kyc/{tier}", h.KYC.Submit).Methods("POST")
		users.HandleFunc("/files/{tier}", h.KYC.Upload).Methods("POST")
		users.HandleFunc("/files", h.KYC.DeleteFile).Methods("DELETE")
		users.HandleFunc("/dashboard", h.KYC.Dashboard).Methods("GET")
	}
	if h.Wallet != nil {
		ws := api.PathPrefix("/wallet/sessions").Subrouter()
		ws.HandleFunc("", h.Wallet.Connect).Methods("POST")
		ws.HandleFunc("/{id}", h.Wallet.State).Methods("GET")
		ws.HandleFunc("/{id}", h.Wallet.Disconnect).Methods("DELETE")
		ws.HandleFunc("/{id}/connect", h.Wallet.Reconnect).Methods("POST")
	}
	if h.Wizard != nil {
		wz := api.PathPrefix("/anchor/{variant}/sessions").Subrouter()
		wz.HandleFunc("", h.Wizard.Create).Methods("POST")
		wz.HandleFunc("/{id}", h.Wizard.Get).Methods("GET")
		wz.HandleFunc("/{id}", h.Wizard.Delete).Methods("DELETE")
		wz.HandleFunc("/{id}/ws", h.Wizard.Stream).Methods("GET")
		wz.HandleFunc("/{id}/gate", h.Wizard.Gate).Methods("POST")
		wz.HandleFunc("/{id}/base-kyc", h.Wizard.BaseKYC).Methods("POST")
		wz.HandleFunc("/{id}/proceed", h.Wizard.Proceed).Methods("POST")
		wz.HandleFunc("/{id}/amount", h.Wizard.Amount).Methods("POST")
		wz.HandleFunc("/{id}/destination", h.Wizard.Destination).Methods("POST")
		wz.HandleFunc("/{id}/verify/{tier}", h.Wizard.Verify).Methods("POST")
		wz.HandleFunc("/{id}/continue", h.Wizard.Continue).Methods("POST")
		wz.HandleFunc("/{id}/back", h.Wizard.Back).Methods("POST")
		wz.HandleFunc("/{id}/confirm", h.Wizard.Confirm).Methods("POST")
		wz.HandleFunc("/{id}/reset", h.Wizard.Reset).Methods("POST")
	}
}
