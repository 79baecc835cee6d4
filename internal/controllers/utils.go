package controllers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// NewHTTPClient creates a standardized HTTP client with timeout
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
	}
}

// ValidateRequiredFields checks that required configuration fields are set
func ValidateRequiredFields(fields map[string]string) error {
	for fieldName, fieldValue := range fields {
		if fieldValue == "" {
			return fmt.Errorf("%s must be set", fieldName)
		}
	}
	return nil
}

// ListenAddress joins a listen address and port, defaulting the address to
// all interfaces and the port to def
func ListenAddress(addr string, port, def int) string {
	if port == 0 {
		port = def
	}
	return fmt.Sprintf("%s:%d", addr, port)
}

// PeriodicTask represents a periodic task configuration
type PeriodicTask struct {
	Name     string
	Interval time.Duration
	Task     func(ctx context.Context) error
	// RunImmediately runs the task once before the first tick
	RunImmediately bool
}

// RunPeriodicTask runs a task periodically until context is cancelled
func RunPeriodicTask(ctx context.Context, task PeriodicTask, logger *zap.SugaredLogger) {
	logger.Infof("Starting periodic task: %s (interval: %v)", task.Name, task.Interval)

	run := func() {
		if err := task.Task(ctx); err != nil {
			logger.Errorf("Error in periodic task %s: %v", task.Name, err)
		}
	}
	if task.RunImmediately {
		run()
	}

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			run()
		case <-ctx.Done():
			logger.Infof("Stopping periodic task: %s", task.Name)
			return
		}
	}
}
