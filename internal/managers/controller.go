package managers

import (
	"context"
	"fmt"
	"sync"

	"github.com/chrissnell/launchplanner/internal/controllers/keymonitor"
	"github.com/chrissnell/launchplanner/internal/controllers/management"
	"github.com/chrissnell/launchplanner/internal/controllers/restserver"
	"github.com/chrissnell/launchplanner/pkg/config"
	"go.uber.org/zap"
)

// ControllerManager interface for the controller manager
type ControllerManager interface {
	StartControllers() error
}

// Controller is an interface that provides standard methods for various controller backends
type Controller interface {
	StartController() error
}

// NewControllerManager creates a new controller manager
func NewControllerManager(ctx context.Context, wg *sync.WaitGroup, configProvider config.ConfigProvider, services *ServiceManager, logger *zap.SugaredLogger) (ControllerManager, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	cm := &controllerManager{
		ctx:            ctx,
		wg:             wg,
		configProvider: configProvider,
		services:       services,
		logger:         logger,
		controllers:    make([]Controller, 0),
	}

	controllerConfigs, err := configProvider.GetControllers()
	if err != nil {
		return nil, fmt.Errorf("error loading controller configurations: %w", err)
	}

	for _, con := range controllerConfigs {
		controller, err := cm.createController(con)
		if err != nil {
			return nil, fmt.Errorf("error creating %s controller: %w", con.Type, err)
		}
		cm.controllers = append(cm.controllers, controller)
	}

	return cm, nil
}

type controllerManager struct {
	ctx            context.Context
	wg             *sync.WaitGroup
	configProvider config.ConfigProvider
	services       *ServiceManager
	logger         *zap.SugaredLogger
	controllers    []Controller
}

func (c *controllerManager) StartControllers() error {
	c.logger.Info("Starting controller manager...")

	for _, controller := range c.controllers {
		err := controller.StartController()
		if err != nil {
			return fmt.Errorf("error starting controller: %w", err)
		}
	}

	c.logger.Infof("Started %d controllers successfully", len(c.controllers))
	return nil
}

// createController creates a controller based on the controller configuration
func (cm *controllerManager) createController(cc config.ControllerData) (Controller, error) {
	s := cm.services
	switch cc.Type {
	case "restserver", "rest":
		if cc.RESTServer == nil {
			cc.RESTServer = &config.RESTServerData{}
		}
		return restserver.NewController(cm.ctx, cm.wg, cm.configProvider, *cc.RESTServer, s.Pricing, s.Agent, cm.logger)
	case "management":
		if cc.ManagementAPI == nil {
			cc.ManagementAPI = &config.ManagementAPIData{}
		}
		return management.NewController(cm.ctx, cm.wg, cm.configProvider, *cc.ManagementAPI, s.Keys, s.Prober, cm.logger)
	case "keymonitor":
		if cc.KeyMonitor == nil {
			cc.KeyMonitor = &config.KeyMonitorData{}
		}
		return keymonitor.NewController(cm.ctx, cm.wg, *cc.KeyMonitor, s.Prober, cm.logger)
	default:
		return nil, fmt.Errorf("unknown controller type: %s", cc.Type)
	}
}
