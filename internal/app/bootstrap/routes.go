// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"
	"strings"

	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/pantry/fileserver"
	"github.com/dalemusser/waffle/pantry/templates"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	authapifeature "github.com/dalemusser/esiagate/internal/app/features/authapi"
	healthfeature "github.com/dalemusser/esiagate/internal/app/features/health"
	orgsapifeature "github.com/dalemusser/esiagate/internal/app/features/orgsapi"
	usersapifeature "github.com/dalemusser/esiagate/internal/app/features/usersapi"
	webfeature "github.com/dalemusser/esiagate/internal/app/features/web"
	"github.com/dalemusser/esiagate/internal/app/reconcile"
	"github.com/dalemusser/esiagate/internal/app/store/authrequests"
	membershipstore "github.com/dalemusser/esiagate/internal/app/store/memberships"
	addressstore "github.com/dalemusser/esiagate/internal/app/store/orgaddresses"
	orggroupstore "github.com/dalemusser/esiagate/internal/app/store/orggroups"
	organizationstore "github.com/dalemusser/esiagate/internal/app/store/organizations"
	tokenstore "github.com/dalemusser/esiagate/internal/app/store/tokens"
	userstore "github.com/dalemusser/esiagate/internal/app/store/users"
	"github.com/dalemusser/esiagate/internal/app/system/auth"
	"github.com/dalemusser/esiagate/internal/app/system/metrics"
	"github.com/dalemusser/esiagate/internal/app/system/requestlog"
	"github.com/dalemusser/esiagate/internal/esia"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed. At this point you have access to:
//   - coreCfg: WAFFLE core configuration (ports, env, timeouts, etc.)
//   - appCfg: app-specific configuration defined in AppConfig
//   - deps: any DB or backend clients bundled in DBDeps
//   - logger: the fully configured zap.Logger for this app
//
// The gateway initializes the session store and template engine, builds
// the ESIA client and the stores over the shared Postgres pool, and
// mounts the web pages plus the /api/v1 surface.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	if err := auth.InitSessionStore(appCfg.SessionKey, appCfg.SessionDomain, secure, logger); err != nil {
		logger.Error("session store init failed", zap.Error(err))
		return nil, err
	}

	// Initialize and boot the template engine once at startup.
	// Dev mode enables template reloading for faster iteration.
	eng := templates.New(coreCfg.Env == "dev")
	if err := eng.Boot(logger); err != nil {
		logger.Error("template engine boot failed", zap.Error(err))
		return nil, err
	}
	templates.UseEngine(eng, logger)

	esiaClient, err := esia.NewClient(esia.Config{
		BaseURL:      appCfg.ESIABaseURL,
		ClientID:     appCfg.ESIAClientID,
		ClientSecret: appCfg.ESIAClientSecret,
		RedirectURI:  appCfg.ESIARedirectURI,
	}, logger)
	if err != nil {
		logger.Error("ESIA client init failed", zap.Error(err))
		return nil, err
	}

	scopes := esia.NewScopeSet(strings.Fields(appCfg.AllowedScopes))

	users := userstore.New(deps.DB)
	orgs := organizationstore.New(deps.DB)
	memberships := membershipstore.New(deps.DB)
	groups := orggroupstore.New(deps.DB)
	addresses := addressstore.New(deps.DB)
	tokens := tokenstore.New(deps.DB)
	ledger := authrequests.New(deps.DB)

	reconciler := reconcile.New(users, orgs, memberships, groups, tokens, logger)

	r := chi.NewRouter()

	r.Use(metrics.Instrument)
	r.Use(requestlog.Middleware(logger))

	// Global auth middleware: loads SessionUser into context if logged in.
	// This makes the current user available to all handlers via auth.CurrentUser(r).
	r.Use(auth.LoadSessionUser)

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.DB, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	// Prometheus scrape endpoint
	r.Handle("/metrics", metrics.Handler())

	// Static assets with pre-compressed file support (gzip/brotli)
	r.Handle("/static/*", fileserver.Handler("/static", "public"))

	// Browser-facing pages: landing, login, callback, profile, scopes
	webHandler := webfeature.NewHandler(esiaClient, scopes, ledger, reconciler,
		users, orgs, tokens, logger)
	r.Mount("/", webfeature.Routes(webHandler))

	// OAuth flow API
	authHandler := authapifeature.NewHandler(esiaClient, scopes, ledger, reconciler, logger)
	r.Mount("/api/v1/auth", authapifeature.Routes(authHandler))

	// User management API
	usersHandler := usersapifeature.NewHandler(users, logger)
	r.Mount("/api/v1/users", usersapifeature.Routes(usersHandler))

	// Organization management API
	orgsHandler := orgsapifeature.NewHandler(orgs, addresses, groups, esiaClient, reconciler, logger)
	r.Mount("/api/v1/organizations", orgsapifeature.Routes(orgsHandler))

	return r, nil
}
