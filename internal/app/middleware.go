package app

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Tenant scope travels in headers until the upstream gateway handles
// authentication. The API trusts these values as-is.
const (
	headerBusinessID   = "X-Business-ID"
	headerActorID      = "X-Actor-ID"
	headerBranchID     = "X-Branch-ID"
	headerBranchAccess = "X-Accessible-Branches"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
}

// MiddlewareStack installs the Meridian middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLRedirect:        cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}

	writeLimit := 120
	if cfg.Config != nil && cfg.Config.WriteRateLimit > 0 {
		writeLimit = cfg.Config.WriteRateLimit
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		mutatingRateLimit(writeLimit),
		authorizationMiddleware(cfg.Logger),
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, func(next http.Handler) http.Handler {
			return cfg.Metrics.Middleware(next)
		})
	}
	return middlewares
}

// mutatingRateLimit throttles writes per client IP; reads pass untouched.
func mutatingRateLimit(perMinute int) func(http.Handler) http.Handler {
	limiter := httprate.Limit(perMinute, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))
	return func(next http.Handler) http.Handler {
		limited := limiter(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
			default:
				limited.ServeHTTP(w, r)
			}
		})
	}
}

// authorizationMiddleware lifts the tenant scope off the request headers.
// Requests without a business id proceed unscoped and are refused by the
// handlers, so unauthenticated probes of /healthz and /metrics still work.
func authorizationMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawBusiness := r.Header.Get(headerBusinessID)
			if rawBusiness == "" {
				next.ServeHTTP(w, r)
				return
			}
			businessID, err := strconv.ParseInt(rawBusiness, 10, 64)
			if err != nil || businessID <= 0 {
				http.Error(w, "invalid "+headerBusinessID+" header", http.StatusBadRequest)
				return
			}
			authz := shared.AuthorizationContext{BusinessID: businessID}
			if raw := r.Header.Get(headerActorID); raw != "" {
				if actorID, err := strconv.ParseInt(raw, 10, 64); err == nil {
					authz.ActorID = actorID
				}
			}
			if raw := r.Header.Get(headerBranchID); raw != "" {
				branchID, err := strconv.ParseInt(raw, 10, 64)
				if err != nil || branchID <= 0 {
					http.Error(w, "invalid "+headerBranchID+" header", http.StatusBadRequest)
					return
				}
				authz.SelectedBranchID = branchID
			}
			if raw := r.Header.Get(headerBranchAccess); raw != "" {
				for _, part := range strings.Split(raw, ",") {
					part = strings.TrimSpace(part)
					if part == "" {
						continue
					}
					branchID, err := strconv.ParseInt(part, 10, 64)
					if err != nil || branchID <= 0 {
						http.Error(w, "invalid "+headerBranchAccess+" header", http.StatusBadRequest)
						return
					}
					authz.AccessibleBranchIDs = append(authz.AccessibleBranchIDs, branchID)
				}
			}
			if err := authz.Validate(); err != nil {
				if logger != nil {
					logger.Warn("rejected tenant scope", slog.Any("error", err))
				}
				http.Error(w, err.Error(), http.StatusForbidden)
				return
			}
			ctx := shared.ContextWithAuthorization(r.Context(), authz)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
