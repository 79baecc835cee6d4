// Package diagnostics checks that configured API keys work and explains how
// to obtain the ones that are missing.
package diagnostics

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/chrissnell/launchplanner/internal/connectors"
	"github.com/chrissnell/launchplanner/internal/keys"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MaxInFlight bounds the number of concurrent probes
const MaxInFlight = 4

// Status is the outcome of probing one key
type Status string

const (
	StatusOK            Status = "ok"
	StatusInvalidKey    Status = "invalid_key"
	StatusRateLimited   Status = "rate_limited"
	StatusQuotaExceeded Status = "quota_exceeded"
	StatusNetworkError  Status = "network_error"
	StatusMissing       Status = "missing"
	StatusError         Status = "error"
)

// Result is the outcome of probing one key of one service
type Result struct {
	Service     keys.Service  `json:"service"`
	DisplayName string        `json:"display_name"`
	KeyMasked   string        `json:"key,omitempty"`
	Source      string        `json:"source,omitempty"`
	Status      Status        `json:"status"`
	Message     string        `json:"message,omitempty"`
	HTTPStatus  int           `json:"http_status,omitempty"`
	Duration    time.Duration `json:"duration_ns"`

	index int
}

// OK reports whether the key works
func (r Result) OK() bool {
	return r.Status == StatusOK
}

// KeySource is what the prober needs from the key manager
type KeySource interface {
	Keys(s keys.Service) []keys.KeyState
	ReportFailure(s keys.Service, key string, cause error)
	ReportSuccess(s keys.Service, key string)
}

// Prober runs one cheap authenticated call per key
type Prober struct {
	set     *connectors.Set
	keys    KeySource
	logger  *zap.SugaredLogger
	timeout time.Duration
	now     func() time.Time
}

// NewProber returns a Prober over the given connectors and keys
func NewProber(set *connectors.Set, ks KeySource, logger *zap.SugaredLogger) *Prober {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Prober{
		set:     set,
		keys:    ks,
		logger:  logger,
		timeout: 15 * time.Second,
		now:     time.Now,
	}
}

// CheckKey probes a single key without touching the key manager
func (p *Prober) CheckKey(ctx context.Context, svc keys.Service, key string) Result {
	res := Result{Service: svc, DisplayName: displayName(svc), KeyMasked: keys.Mask(key)}

	probe, ok := p.set.Prober(svc)
	if !ok {
		res.Status = StatusError
		res.Message = "no diagnostic call for this service"
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := p.now()
	err := probe(ctx, key)
	res.Duration = p.now().Sub(start)

	res.Status = StatusOf(err)
	res.HTTPStatus = connectors.StatusCodeOf(err)
	if err != nil {
		res.Message = err.Error()
	} else {
		res.Message = "key accepted"
	}
	return res
}

// Check probes every key of one service and reports the outcome to the key
// manager. A service without keys yields a single missing result.
func (p *Prober) Check(ctx context.Context, svc keys.Service) []Result {
	return p.run(ctx, []keys.Service{svc})
}

// CheckAll probes every key of every known service, at most MaxInFlight at
// a time. Results are ordered by service, then by key rotation order.
func (p *Prober) CheckAll(ctx context.Context) []Result {
	return p.run(ctx, keys.AllServices())
}

type job struct {
	svc   keys.Service
	state keys.KeyState
	index int
}

func (p *Prober) run(ctx context.Context, services []keys.Service) []Result {
	var (
		results []Result
		jobs    []job
	)
	for _, svc := range services {
		states := p.keys.Keys(svc)
		if len(states) == 0 {
			results = append(results, missingResult(svc))
			continue
		}
		for i, st := range states {
			jobs = append(jobs, job{svc: svc, state: st, index: i})
		}
	}

	out := make([]Result, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxInFlight)
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			res := p.CheckKey(gctx, j.svc, j.state.Value)
			res.Source = j.state.Source
			res.index = j.index
			p.report(j.svc, j.state.Value, res)
			out[i] = res
			return nil
		})
	}
	_ = g.Wait()

	results = append(results, out...)
	sort.SliceStable(results, func(a, b int) bool {
		if results[a].Service != results[b].Service {
			return results[a].Service < results[b].Service
		}
		return results[a].index < results[b].index
	})
	return results
}

// report feeds a probe outcome back into key rotation. Network failures
// say nothing about the key.
func (p *Prober) report(svc keys.Service, key string, res Result) {
	switch res.Status {
	case StatusOK:
		p.keys.ReportSuccess(svc, key)
	case StatusInvalidKey, StatusRateLimited, StatusQuotaExceeded:
		p.keys.ReportFailure(svc, key, errors.New(res.Message))
		p.logger.Warnw("API key check failed", "service", svc, "key", res.KeyMasked, "status", res.Status)
	}
}

func missingResult(svc keys.Service) Result {
	msg := "no API key configured"
	if info, ok := keys.Lookup(svc); ok && len(info.EnvVars) > 0 {
		msg += "; set " + info.EnvVars[0]
	}
	return Result{Service: svc, DisplayName: displayName(svc), Status: StatusMissing, Message: msg}
}

func displayName(svc keys.Service) string {
	if info, ok := keys.Lookup(svc); ok {
		return info.DisplayName
	}
	return string(svc)
}

// StatusOf maps a probe error to a Status
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	if errors.Is(err, keys.ErrNoKey) {
		return StatusMissing
	}
	switch connectors.KindOf(err) {
	case connectors.KindUnauthorized:
		return StatusInvalidKey
	case connectors.KindRateLimited:
		return StatusRateLimited
	case connectors.KindQuotaExceeded:
		return StatusQuotaExceeded
	case connectors.KindNetwork:
		return StatusNetworkError
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return StatusNetworkError
	}
	return StatusError
}

// Summary counts results by outcome
type Summary struct {
	Total   int `json:"total"`
	OK      int `json:"ok"`
	Failed  int `json:"failed"`
	Missing int `json:"missing"`
}

// Summarize counts results by outcome
func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		s.Total++
		switch r.Status {
		case StatusOK:
			s.OK++
		case StatusMissing:
			s.Missing++
		default:
			s.Failed++
		}
	}
	return s
}
