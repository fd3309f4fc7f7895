package api

import (
	"net/http"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/crmhub/crm-api/internal/api/handler"
	"github.com/crmhub/crm-api/internal/api/middleware"
	"github.com/crmhub/crm-api/internal/api/schema"
	"github.com/crmhub/crm-api/internal/core/policy"
	"github.com/crmhub/crm-api/internal/core/ports"
	"github.com/crmhub/crm-api/internal/infrastructure/http/handlers"
)

// Deps holds everything the router needs. Services and stores are built by
// the caller (cmd/server or tests).
type Deps struct {
	Auth      ports.AuthService
	Users     ports.UserService
	Customers ports.CustomerService
	Blobs     ports.BlobStore

	// MediaURL is the public prefix of stored blobs, e.g. "/media/".
	MediaURL string
	// BodyLimit caps request bodies, e.g. "10M".
	BodyLimit string
	// Checks are the readiness probes behind /health/ready.
	Checks []handlers.Check

	// Registerer and Gatherer default to the prometheus default registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer

	Logger zerolog.Logger
}

// access describes who may call a route.
type access int

const (
	public access = iota
	authenticated
)

// route is one row of the route table.
type route struct {
	method  string
	path    string
	handler echo.HandlerFunc
	access  access
	kind    policy.ResourceKind
	op      policy.Operation
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.JSONSerializer = handler.StrictJSONSerializer{}
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Logger)

	if d.Registerer == nil {
		d.Registerer = prometheus.DefaultRegisterer
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	if d.MediaURL == "" {
		d.MediaURL = "/media/"
	}
	if d.BodyLimit == "" {
		d.BodyLimit = "10M"
	}

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(d.Logger))
	e.Use(echomiddleware.BodyLimit(d.BodyLimit))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  "crm",
		Subsystem:  "http",
		Registerer: d.Registerer,
	}))

	authn := middleware.Auth(d.Auth)
	for _, r := range routes(d) {
		var mws []echo.MiddlewareFunc
		if r.access == authenticated {
			mws = append(mws, authn)
			if r.kind != "" {
				mws = append(mws, middleware.Authorize(r.kind, r.op))
			}
		}
		e.Add(r.method, r.path, r.handler, mws...)
	}

	// --- Operational endpoints (no auth required) ---
	healthHandler := handlers.NewHealthHandler()
	healthDepsHandler := handlers.NewHealthDependenciesHandler(d.Checks...)

	e.GET("/health", healthHandler.Liveness)
	e.GET("/health/ready", healthDepsHandler.Readiness)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))

	return e
}

// routes is the explicit route table of the API.
func routes(d Deps) []route {
	auth := handler.NewAuthHandler(d.Auth)
	customers := handler.NewCustomerHandler(d.Customers, d.MediaURL)
	users := handler.NewUserHandler(d.Users)
	media := handler.NewMediaHandler(d.Blobs)

	const (
		cust = policy.KindCustomer
		user = policy.KindUser
	)

	return []route{
		// --- Auth ---
		{http.MethodPost, "/auth/login", auth.Login, public, "", ""},
		{http.MethodPost, "/auth/registration", auth.Register, public, "", ""},
		{http.MethodPost, "/auth/google", auth.GoogleLogin, public, "", ""},
		{http.MethodPost, "/auth/logout", auth.Logout, authenticated, "", ""},
		{http.MethodGet, "/auth/google/url", auth.GoogleAuthURL, public, "", ""},
		{http.MethodGet, "/auth/user", auth.Me, authenticated, "", ""},
		{http.MethodPut, "/auth/user", auth.UpdateProfile, authenticated, "", ""},
		{http.MethodPatch, "/auth/user", auth.PartialUpdateProfile, authenticated, "", ""},
		{http.MethodOptions, "/auth/user", handler.Describe(schema.Profile), authenticated, "", ""},
		{http.MethodPost, "/auth/password/change", auth.ChangePassword, authenticated, "", ""},

		// --- Customers ---
		{http.MethodGet, "/customers", customers.List, authenticated, cust, policy.OpList},
		{http.MethodPost, "/customers", customers.Create, authenticated, cust, policy.OpCreate},
		{http.MethodGet, "/customers/:id", customers.Get, authenticated, cust, policy.OpRead},
		{http.MethodPut, "/customers/:id", customers.Update, authenticated, cust, policy.OpUpdate},
		{http.MethodPatch, "/customers/:id", customers.PartialUpdate, authenticated, cust, policy.OpUpdate},
		{http.MethodDelete, "/customers/:id", customers.Delete, authenticated, cust, policy.OpDelete},
		{http.MethodOptions, "/customers", handler.Describe(schema.Customer), authenticated, cust, policy.OpList},
		{http.MethodOptions, "/customers/:id", handler.Describe(schema.Customer), authenticated, cust, policy.OpRead},

		// --- Users (admin only) ---
		{http.MethodGet, "/users", users.List, authenticated, user, policy.OpList},
		{http.MethodPost, "/users", users.Create, authenticated, user, policy.OpCreate},
		{http.MethodGet, "/users/:id", users.Get, authenticated, user, policy.OpRead},
		{http.MethodPut, "/users/:id", users.Update, authenticated, user, policy.OpUpdate},
		{http.MethodPatch, "/users/:id", users.PartialUpdate, authenticated, user, policy.OpUpdate},
		{http.MethodDelete, "/users/:id", users.Delete, authenticated, user, policy.OpDelete},
		{http.MethodPatch, "/users/:id/set-admin-status", users.SetAdminStatus, authenticated, user, policy.OpSetAdminStatus},
		{http.MethodOptions, "/users", handler.Describe(schema.User), authenticated, user, policy.OpList},
		{http.MethodOptions, "/users/:id", handler.Describe(schema.User), authenticated, user, policy.OpRead},

		// --- Media ---
		{http.MethodGet, "/media/*", media.Serve, public, "", ""},
	}
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
