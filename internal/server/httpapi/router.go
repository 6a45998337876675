// Package httpapi exposes the REST API: wallet sign-in, profiles, points
// and friend requests.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/matenet/backend/internal/common"
	"github.com/matenet/backend/internal/logging"
	"github.com/matenet/backend/internal/server/metrics"
	"github.com/matenet/backend/internal/server/services"
)

// Deps are the collaborators the router dispatches to.
type Deps struct {
	Auth    *services.AuthService
	Users   *services.UserService
	Ledger  *services.LedgerService
	Friends *services.FriendService
	Metrics *metrics.Metrics
	Logger  logging.Logger

	AllowedOrigins []string
	// AuthRateLimit is the per-client request budget per minute for the
	// unauthenticated sign-in and registration routes.
	AuthRateLimit int
}

// NewRouter builds the HTTP handler tree.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger.With("module", "http")
	h := &handlers{
		auth:    d.Auth,
		users:   d.Users,
		ledger:  d.Ledger,
		friends: d.Friends,
		metrics: d.Metrics,
		logger:  logger,
	}
	limiter := newRateLimiter(d.AuthRateLimit, logger)
	authed := func(fn http.HandlerFunc) http.Handler { return requireAuth(d.Auth, fn) }

	r := mux.NewRouter()
	r.Use(requestID, accessLog(logger), recoverer(logger), d.Metrics.Middleware)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, common.ErrorNotFound)
	})

	r.Handle("/metrics", d.Metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/healthcheck", h.healthcheck).Methods(http.MethodGet)

	sign := api.PathPrefix("/auth").Subrouter()
	sign.Use(limiter.Middleware)
	sign.HandleFunc("/siwe/nonce", h.nonce).Methods(http.MethodGet)
	sign.HandleFunc("/siwe/verify", h.siweVerify).Methods(http.MethodPost)
	sign.HandleFunc("/login", h.login).Methods(http.MethodPost)

	api.Handle("/users", limiter.Middleware(http.HandlerFunc(h.createUser))).Methods(http.MethodPost)
	api.Handle("/users", authed(h.updateUser)).Methods(http.MethodPut)
	api.Handle("/users/profile", authed(h.profile)).Methods(http.MethodGet)
	api.Handle("/users/register-nfc", authed(h.registerNfc)).Methods(http.MethodPost)
	api.Handle("/users/profile-picture", authed(h.uploadProfilePicture)).Methods(http.MethodPost)
	api.Handle("/users/points", authed(h.points)).Methods(http.MethodGet)
	api.Handle("/users/interactions", authed(h.interactions)).Methods(http.MethodGet)

	api.Handle("/friends/requests", authed(h.listRequests)).Methods(http.MethodGet)
	api.Handle("/friends/requests", authed(h.sendRequest)).Methods(http.MethodPost)
	api.Handle("/friends/scan-nfc", authed(h.scanNfc)).Methods(http.MethodPost)
	api.Handle("/friends/accept", authed(h.accept)).Methods(http.MethodPost)
	api.Handle("/friends/reject", authed(h.reject)).Methods(http.MethodPost)

	return cors(d.AllowedOrigins, r)
}
