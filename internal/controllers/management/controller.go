// Package management serves the token-protected API used to inspect, test
// and re-enable vendor API keys.
package management

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/chrissnell/launchplanner/internal/controllers"
	"github.com/chrissnell/launchplanner/internal/diagnostics"
	"github.com/chrissnell/launchplanner/internal/keys"
	"github.com/chrissnell/launchplanner/pkg/config"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	defaultPort = 8081
	sessionName = "lp_session"
)

// KeyStore is the part of the key manager the API drives
type KeyStore interface {
	Status() []keys.ServiceStatus
	Reload() error
	Enable(s keys.Service) error
}

// Checker probes keys against their vendors
type Checker interface {
	Check(ctx context.Context, svc keys.Service) []diagnostics.Result
	CheckAll(ctx context.Context) []diagnostics.Result
}

// Controller represents the management API controller
type Controller struct {
	ctx              context.Context
	wg               *sync.WaitGroup
	configProvider   config.ConfigProvider
	managementConfig config.ManagementAPIData
	Server           http.Server
	keys             KeyStore
	checker          Checker
	started          time.Time
	logger           *zap.SugaredLogger
	handlers         *Handlers
}

// NewController creates a new management API controller
func NewController(ctx context.Context, wg *sync.WaitGroup, configProvider config.ConfigProvider, mc config.ManagementAPIData,
	ks KeyStore, checker Checker, logger *zap.SugaredLogger) (*Controller, error) {
	if ks == nil || checker == nil {
		return nil, errors.New("management API requires a key manager and a key checker")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	ctrl := &Controller{
		ctx:              ctx,
		wg:               wg,
		configProvider:   configProvider,
		managementConfig: mc,
		keys:             ks,
		checker:          checker,
		started:          time.Now(),
		logger:           logger,
	}

	if ctrl.managementConfig.Port == 0 {
		logger.Infof("management API port not specified; defaulting to %d", defaultPort)
		ctrl.managementConfig.Port = defaultPort
	}
	if ctrl.managementConfig.ListenAddr == "" {
		logger.Info("management API listen-addr not provided; defaulting to 127.0.0.1 (localhost only)")
		ctrl.managementConfig.ListenAddr = "127.0.0.1"
	}

	if mc.AuthToken == "" {
		ctrl.managementConfig.AuthToken = generateAuthToken()
		ctrl.persistToken()
	} else {
		logger.Info("management API token loaded from configuration")
	}

	ctrl.handlers = NewHandlers(ctrl)

	ctrl.Server.Addr = controllers.ListenAddress(ctrl.managementConfig.ListenAddr, ctrl.managementConfig.Port, defaultPort)
	var handler http.Handler = ctrl.setupRouter()
	if mc.EnableCORS {
		handler = corsMiddleware(handler)
	}
	ctrl.Server.Handler = handler
	ctrl.Server.ReadHeaderTimeout = 10 * time.Second

	return ctrl, nil
}

// generateAuthToken returns a standard UUID string with hyphens
func generateAuthToken() string {
	return uuid.New().String()
}

// persistToken saves a generated token so it survives restarts. Read-only
// providers keep it for this run only.
func (c *Controller) persistToken() {
	token := c.managementConfig.AuthToken
	saved := false
	if c.configProvider != nil {
		mc := c.managementConfig
		err := c.configProvider.UpdateController("management", &config.ControllerData{
			Type:          "management",
			ManagementAPI: &mc,
		})
		switch {
		case err == nil:
			saved = true
		case errors.Is(err, config.ErrReadOnly):
			c.logger.Warn("configuration is read-only; the generated management token will change on restart")
		default:
			c.logger.Errorf("failed to save management token: %v", err)
		}
	}

	c.logger.Info("═══════════════════════════════════════════════════════════════")
	c.logger.Info("        NEW MANAGEMENT API ACCESS TOKEN GENERATED              ")
	c.logger.Info("═══════════════════════════════════════════════════════════════")
	c.logger.Infof("   Token: %s", token)
	if saved {
		c.logger.Info("   *** SAVE THIS TOKEN - IT WILL NOT CHANGE ON RESTART ***")
	}
	c.logger.Info("═══════════════════════════════════════════════════════════════")
}

// AuthToken returns the token clients must present
func (c *Controller) AuthToken() string {
	return c.managementConfig.AuthToken
}

// Handler returns the server's router
func (c *Controller) Handler() http.Handler {
	return c.Server.Handler
}

// StartController starts the management API server
func (c *Controller) StartController() error {
	c.logger.Infof("Starting management API controller on %s...", c.Server.Addr)
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		var err error
		if c.managementConfig.Cert != "" && c.managementConfig.Key != "" {
			c.logger.Info("Starting management API server with TLS")
			err = c.Server.ListenAndServeTLS(c.managementConfig.Cert, c.managementConfig.Key)
		} else {
			c.logger.Info("Starting management API server without TLS")
			err = c.Server.ListenAndServe()
		}

		if err != http.ErrServerClosed {
			c.logger.Errorf("Management API server error: %v", err)
		}
	}()

	go func() {
		<-c.ctx.Done()
		c.logger.Info("Shutting down the management API server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		c.Server.Shutdown(shutdownCtx)
	}()

	return nil
}

// setupRouter configures the HTTP router with all endpoints
func (c *Controller) setupRouter() *mux.Router {
	router := mux.NewRouter()
	router.Use(c.loggingMiddleware)

	// Authentication routes (no auth required)
	router.HandleFunc("/login", c.handlers.Login).Methods("POST")
	router.HandleFunc("/logout", c.handlers.Logout).Methods("POST")
	router.HandleFunc("/auth/status", c.handlers.GetAuthStatus).Methods("GET")

	// API routes (with authentication)
	api := router.PathPrefix("/api").Subrouter()
	api.Use(c.authMiddleware)

	api.HandleFunc("/status", c.handlers.GetStatus).Methods("GET")

	api.HandleFunc("/keys", c.handlers.GetKeys).Methods("GET")
	api.HandleFunc("/keys/reload", c.handlers.ReloadKeys).Methods("POST")
	api.HandleFunc("/keys/test", c.handlers.TestAllKeys).Methods("POST")
	api.HandleFunc("/keys/{service}/enable", c.handlers.EnableService).Methods("POST")
	api.HandleFunc("/keys/{service}/test", c.handlers.TestServiceKeys).Methods("POST")

	api.HandleFunc("/guides", c.handlers.GetGuides).Methods("GET")
	api.HandleFunc("/guides/{service}", c.handlers.GetGuide).Methods("GET")

	return router
}

// loggingMiddleware logs all requests
func (c *Controller) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		c.logger.Infof("%s %s %s %v", r.Method, r.RequestURI, r.RemoteAddr, time.Since(start))
	})
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authenticated reports whether the request carries the token as a bearer
// header or session cookie
func (c *Controller) authenticated(r *http.Request) bool {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if auth == "Bearer "+c.managementConfig.AuthToken {
			return true
		}
	}
	if cookie, err := r.Cookie(sessionName); err == nil {
		return cookie.Value == c.managementConfig.AuthToken
	}
	return false
}

// authMiddleware validates the bearer token or session cookie
func (c *Controller) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !c.authenticated(r) {
			c.logger.Debugf("auth failed for %s", r.URL.Path)
			c.handlers.sendError(w, http.StatusUnauthorized, "Authentication required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
