// Package restserver serves the public JSON API: pricing plans, sales agents,
// plan assignments and customer segmentation.
package restserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chrissnell/launchplanner/internal/controllers"
	"github.com/chrissnell/launchplanner/internal/pricing"
	"github.com/chrissnell/launchplanner/internal/segmentation"
	"github.com/chrissnell/launchplanner/pkg/config"
	"github.com/chrissnell/launchplanner/pkg/responseformat"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const defaultPort = 8080

// Controller represents the REST server controller
type Controller struct {
	ctx            context.Context
	wg             *sync.WaitGroup
	configProvider config.ConfigProvider
	restConfig     config.RESTServerData
	Server         http.Server
	pricing        *pricing.Service
	agent          *segmentation.Agent
	limiter        *RateLimiter
	formatter      *responseformat.Formatter
	logger         *zap.SugaredLogger
	handlers       *Handlers
}

// NewController creates a new REST server controller
func NewController(ctx context.Context, wg *sync.WaitGroup, configProvider config.ConfigProvider, rc config.RESTServerData,
	ps *pricing.Service, agent *segmentation.Agent, logger *zap.SugaredLogger) (*Controller, error) {
	if ps == nil {
		return nil, fmt.Errorf("REST server requires a pricing service")
	}
	if agent == nil {
		return nil, fmt.Errorf("REST server requires a segmentation agent")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	ctrl := &Controller{
		ctx:            ctx,
		wg:             wg,
		configProvider: configProvider,
		restConfig:     rc,
		pricing:        ps,
		agent:          agent,
		formatter:      responseformat.NewFormatter(),
		logger:         logger,
	}

	if rc.ListenAddr == "" {
		logger.Info("rest.listen-addr not provided; defaulting to 0.0.0.0 (all interfaces)")
		rc.ListenAddr = "0.0.0.0"
	}
	if rc.Port == 0 {
		logger.Infof("rest.port not provided; defaulting to %d", defaultPort)
	}

	if rc.RequestsPerSecond > 0 {
		trusted, err := ParseTrustedProxies(rc.TrustedProxies)
		if err != nil {
			return nil, fmt.Errorf("rest: %w", err)
		}
		ctrl.limiter = NewRateLimiter(rc.RequestsPerSecond, rc.Burst, trusted)
	}

	ctrl.handlers = NewHandlers(ctrl)

	ctrl.Server.Addr = controllers.ListenAddress(rc.ListenAddr, rc.Port, defaultPort)
	var handler http.Handler = ctrl.setupRouter()
	// Preflight requests never match a route, so CORS wraps the router
	if rc.EnableCORS {
		handler = corsMiddleware(handler)
	}
	ctrl.Server.Handler = handler
	ctrl.Server.ReadHeaderTimeout = 10 * time.Second

	return ctrl, nil
}

// StartController starts the REST server
func (c *Controller) StartController() error {
	c.logger.Infof("Starting REST server controller on %s...", c.Server.Addr)
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		if c.restConfig.Cert != "" && c.restConfig.Key != "" {
			if err := c.Server.ListenAndServeTLS(c.restConfig.Cert, c.restConfig.Key); err != http.ErrServerClosed {
				c.logger.Errorf("REST server error: %v", err)
			}
		} else {
			if err := c.Server.ListenAndServe(); err != http.ErrServerClosed {
				c.logger.Errorf("REST server error: %v", err)
			}
		}
	}()

	go func() {
		<-c.ctx.Done()
		c.logger.Info("Shutting down the REST server...")
		if c.limiter != nil {
			c.limiter.Stop()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		c.Server.Shutdown(shutdownCtx)
	}()

	return nil
}

// Handler returns the server's router
func (c *Controller) Handler() http.Handler {
	return c.Server.Handler
}

// setupRouter configures the HTTP router with all endpoints
func (c *Controller) setupRouter() *mux.Router {
	router := mux.NewRouter()

	router.Use(c.loggingMiddleware)
	if c.limiter != nil {
		router.Use(c.limiter.Middleware)
	}

	router.HandleFunc("/healthz", c.handlers.Health).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()

	// Pricing plans
	api.HandleFunc("/plans", c.handlers.ListPlans).Methods("GET")
	api.HandleFunc("/plans", c.handlers.CreatePlan).Methods("POST")
	api.HandleFunc("/plans/{id}", c.handlers.GetPlan).Methods("GET")
	api.HandleFunc("/plans/{id}", c.handlers.UpdatePlan).Methods("PUT")
	api.HandleFunc("/plans/{id}", c.handlers.DeletePlan).Methods("DELETE")

	// Sales agents
	api.HandleFunc("/agents", c.handlers.ListAgents).Methods("GET")
	api.HandleFunc("/agents", c.handlers.CreateAgent).Methods("POST")
	api.HandleFunc("/agents/{id}", c.handlers.GetAgent).Methods("GET")

	// Assignments
	api.HandleFunc("/assign", c.handlers.Assign).Methods("POST")
	api.HandleFunc("/assignments", c.handlers.ListAssignments).Methods("GET")

	// Customer segmentation
	api.HandleFunc("/segments/demographic", c.handlers.DemographicSegments).Methods("GET")
	api.HandleFunc("/segments/behavioral", c.handlers.BehavioralSegments).Methods("POST")
	api.HandleFunc("/segments/analysis", c.handlers.Analysis).Methods("GET")
	api.HandleFunc("/segments/clusters", c.handlers.ClusterSegments).Methods("GET")

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.handlers.sendError(w, r, http.StatusNotFound, "Not found", nil)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.handlers.sendError(w, r, http.StatusMethodNotAllowed, "Method not allowed", nil)
	})

	return router
}
