// Package keymonitor periodically probes every configured API key so that
// dead keys leave rotation before a user request trips over them.
package keymonitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chrissnell/launchplanner/internal/controllers"
	"github.com/chrissnell/launchplanner/internal/diagnostics"
	"github.com/chrissnell/launchplanner/pkg/config"
	"go.uber.org/zap"
)

// Checker probes every configured key
type Checker interface {
	CheckAll(ctx context.Context) []diagnostics.Result
}

// Controller runs the periodic key check
type Controller struct {
	ctx      context.Context
	wg       *sync.WaitGroup
	checker  Checker
	interval time.Duration
	logger   *zap.SugaredLogger

	mu   sync.Mutex
	last diagnostics.Summary
	runs int
}

// NewController creates a key monitor. An empty interval means every
// config.DefaultKeyMonitorPeriod.
func NewController(ctx context.Context, wg *sync.WaitGroup, kc config.KeyMonitorData, checker Checker, logger *zap.SugaredLogger) (*Controller, error) {
	if checker == nil {
		return nil, fmt.Errorf("key monitor requires a key checker")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	interval := config.DefaultKeyMonitorPeriod
	if kc.Interval != "" {
		d, err := time.ParseDuration(kc.Interval)
		if err != nil {
			return nil, fmt.Errorf("invalid keymonitor interval %q: %w", kc.Interval, err)
		}
		if d < time.Minute {
			return nil, fmt.Errorf("keymonitor interval must be at least 1m, got %v", d)
		}
		interval = d
	}

	return &Controller{
		ctx:      ctx,
		wg:       wg,
		checker:  checker,
		interval: interval,
		logger:   logger,
	}, nil
}

// StartController starts the periodic check in the background
func (c *Controller) StartController() error {
	c.logger.Infof("Starting API key monitor (every %v)...", c.interval)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		controllers.RunPeriodicTask(c.ctx, controllers.PeriodicTask{
			Name:           "api key check",
			Interval:       c.interval,
			Task:           c.check,
			RunImmediately: true,
		}, c.logger)
	}()
	return nil
}

// check probes all keys once and logs the outcome. Failed keys are reported
// to the key manager by the checker.
func (c *Controller) check(ctx context.Context) error {
	results := c.checker.CheckAll(ctx)
	if ctx.Err() != nil {
		return nil
	}
	summary := diagnostics.Summarize(results)

	c.mu.Lock()
	c.last = summary
	c.runs++
	c.mu.Unlock()

	for _, r := range results {
		if r.OK() || r.Status == diagnostics.StatusMissing {
			continue
		}
		c.logger.Warnw("API key check failed",
			"service", r.Service,
			"key", r.KeyMasked,
			"status", r.Status,
			"message", r.Message)
	}
	c.logger.Infow("API key check complete",
		"total", summary.Total,
		"ok", summary.OK,
		"failed", summary.Failed,
		"missing", summary.Missing)
	return nil
}

// LastSummary returns the outcome of the most recent check and the number
// of checks run so far
func (c *Controller) LastSummary() (diagnostics.Summary, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.runs
}
