package controllers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestValidateRequiredFields(t *testing.T) {
	assert.NoError(t, ValidateRequiredFields(map[string]string{"a": "x"}))
	assert.EqualError(t, ValidateRequiredFields(map[string]string{"listen-addr": ""}), "listen-addr must be set")
}

func TestListenAddress(t *testing.T) {
	assert.Equal(t, ":8080", ListenAddress("", 0, 8080))
	assert.Equal(t, "127.0.0.1:9000", ListenAddress("127.0.0.1", 9000, 8080))
}

func TestNewHTTPClient(t *testing.T) {
	assert.Equal(t, 5*time.Second, NewHTTPClient(0).Timeout)
	assert.Equal(t, time.Second, NewHTTPClient(time.Second).Timeout)
}

func TestRunPeriodicTask(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var runs atomic.Int32
	done := make(chan struct{})

	go func() {
		defer close(done)
		RunPeriodicTask(ctx, PeriodicTask{
			Name:           "test",
			Interval:       5 * time.Millisecond,
			RunImmediately: true,
			Task: func(context.Context) error {
				if runs.Add(1) == 2 {
					return errors.New("logged, not fatal")
				}
				return nil
			},
		}, zap.NewNop().Sugar())
	}()

	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("periodic task did not stop")
	}
}
