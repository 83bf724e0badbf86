package controller

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/boostfeed/stakeledger/app/ledger/types"
	"github.com/boostfeed/stakeledger/pkg/utils"
)

type Controller struct {
	App *types.App

	// SyncToken is the configured shared secret for the sync trigger; empty
	// means the trigger is open unless SyncAuthRequired forbids that.
	SyncToken        string
	SyncAuthRequired bool
	// SyncHash is the bcrypt form of SyncToken for constant-time comparison.
	SyncHash  []byte
	JWTSecret []byte
}

// NewController returns a new controller.
func NewController(app *types.App) *Controller {
	syncToken := utils.Env("SYNC_TOKEN", "")
	authRequired := utils.EnvBool("SYNC_AUTH_REQUIRED", false)

	var syncHash []byte
	if syncToken != "" {
		syncHash, _ = utils.HashOrRead(syncToken)
	}

	return &Controller{
		App:              app,
		SyncToken:        syncToken,
		SyncAuthRequired: authRequired,
		SyncHash:         syncHash,
		JWTSecret:        []byte(syncToken),
	}
}

// WithCORS is a middleware that adds CORS headers to the response.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", http.MethodGet+", "+http.MethodPost+", "+http.MethodOptions)

		// Fast-path the preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewRouter returns a new router with all the routes defined in this file.
func (c *Controller) NewRouter() (*mux.Router, error) {
	r := mux.NewRouter()

	r.Handle("/health", http.HandlerFunc(c.HandleHealth)).Methods(http.MethodGet)

	r.HandleFunc("/v1/chain/height", c.HandleChainHeight).Methods(http.MethodGet)
	r.Handle("/v1/sync", c.RequireSyncAuth(http.HandlerFunc(c.HandleSync))).Methods(http.MethodPost)
	r.HandleFunc("/v1/posts/{id}/stake", c.HandlePostStake).Methods(http.MethodGet)
	r.HandleFunc("/v1/users/{id}/balance", c.HandleBalanceRefresh).Methods(http.MethodPost)
	r.HandleFunc("/v1/ws", c.HandleHeightStream).Methods(http.MethodGet)

	return r, nil
}
