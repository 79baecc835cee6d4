package keys

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chrissnell/launchplanner/internal/constants"
	"github.com/chrissnell/launchplanner/pkg/config"
	"go.uber.org/zap"
)

var (
	// ErrNoKey is returned when a service has no configured key
	ErrNoKey = errors.New("no API key configured")
	// ErrAllKeysDisabled is returned when every key of a service has been
	// taken out of rotation
	ErrAllKeysDisabled = errors.New("all API keys disabled")
)

// KeyState tracks one key of one service
type KeyState struct {
	Service    Service
	Value      string
	Source     string
	Priority   int
	Active     bool
	ErrorCount int
	UseCount   int
	LastError  string
	LastUsed   time.Time
	DisabledAt time.Time
}

// KeyStatus is the display form of a KeyState. It never carries the key.
type KeyStatus struct {
	Masked     string    `json:"key"`
	Source     string    `json:"source"`
	Active     bool      `json:"active"`
	ErrorCount int       `json:"error_count"`
	UseCount   int       `json:"use_count"`
	LastError  string    `json:"last_error,omitempty"`
	LastUsed   time.Time `json:"last_used,omitempty"`
}

// ServiceStatus summarises a service's keys
type ServiceStatus struct {
	Service     Service     `json:"service"`
	DisplayName string      `json:"display_name"`
	Enabled     bool        `json:"enabled"`
	Total       int         `json:"total"`
	Active      int         `json:"active"`
	Keys        []KeyStatus `json:"keys"`
}

// Manager merges keys from its sources and hands them out round-robin.
// It is safe for concurrent use.
type Manager struct {
	mu        sync.Mutex
	sources   []Source
	threshold int
	disabled  map[Service]bool
	keys      map[Service][]*KeyState
	cursor    map[Service]int
	now       func() time.Time
	logger    *zap.SugaredLogger
}

// Option configures a Manager
type Option func(*Manager)

// WithErrorThreshold sets the consecutive failure count that disables a key
func WithErrorThreshold(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.threshold = n
		}
	}
}

// WithLogger sets the manager's logger
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithDisabledServices keeps the named services out of rotation entirely
func WithDisabledServices(services []string) Option {
	return func(m *Manager) {
		for _, s := range services {
			m.disabled[Service(s)] = true
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager loads every source and merges the results
func NewManager(sources []Source, opts ...Option) (*Manager, error) {
	m := &Manager{
		sources:   sources,
		threshold: constants.DefaultKeyErrorThreshold,
		disabled:  make(map[Service]bool),
		keys:      make(map[Service][]*KeyState),
		cursor:    make(map[Service]int),
		now:       time.Now,
		logger:    zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(m)
	}

	merged, err := m.load()
	if err != nil {
		return nil, err
	}
	m.keys = merged

	for _, s := range AllServices() {
		if n := len(m.keys[s]); n > 0 {
			m.logger.Debugf("loaded %d key(s) for %s", n, s)
		}
	}

	return m, nil
}

// NewManagerFromConfig builds a manager over the standard sources: the
// process environment, then the .env file, then config.json
func NewManagerFromConfig(kd config.KeysData, logger *zap.SugaredLogger) (*Manager, error) {
	sources := []Source{
		EnvSource{},
		DotEnvSource{Path: kd.EnvFile},
		JSONSource{Path: kd.ConfigJSON},
	}
	return NewManager(sources,
		WithErrorThreshold(kd.ErrorThreshold),
		WithDisabledServices(kd.DisabledServices),
		WithLogger(logger),
	)
}

// load reads all sources and merges them by priority
func (m *Manager) load() (map[Service][]*KeyState, error) {
	sources := make([]Source, len(m.sources))
	copy(sources, m.sources)
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].Priority() < sources[j].Priority()
	})

	merged := make(map[Service][]*KeyState)
	for _, src := range sources {
		found, err := src.Load()
		if err != nil {
			return nil, fmt.Errorf("error loading keys from %s: %w", src.Name(), err)
		}

		for _, s := range AllServices() {
			for _, value := range found[s] {
				if containsValue(merged[s], value) {
					continue
				}
				merged[s] = append(merged[s], &KeyState{
					Service:  s,
					Value:    value,
					Source:   src.Name(),
					Priority: src.Priority(),
					Active:   true,
				})
			}
		}
	}

	return merged, nil
}

// Reload re-reads the sources. Keys that are still present keep their
// counters and active flag.
func (m *Manager) Reload() error {
	merged, err := m.load()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for s, states := range merged {
		for i, st := range states {
			for _, old := range m.keys[s] {
				if old.Value == st.Value {
					old.Source = st.Source
					old.Priority = st.Priority
					states[i] = old
					break
				}
			}
		}
	}
	m.keys = merged
	m.cursor = make(map[Service]int)

	m.logger.Info("API keys reloaded")
	return nil
}

// Key returns the next active key for a service
func (m *Manager) Key(s Service) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disabled[s] {
		return "", fmt.Errorf("%w for %s (service disabled)", ErrNoKey, s)
	}

	states := m.keys[s]
	n := len(states)
	if n == 0 {
		return "", fmt.Errorf("%w for %s", ErrNoKey, s)
	}

	start := m.cursor[s] % n
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		st := states[idx]
		if !st.Active {
			continue
		}
		m.cursor[s] = idx + 1
		st.UseCount++
		st.LastUsed = m.now()
		return st.Value, nil
	}

	return "", fmt.Errorf("%w for %s", ErrAllKeysDisabled, s)
}

// HasKey reports whether the service has at least one active key
func (m *Manager) HasKey(s Service) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disabled[s] {
		return false
	}
	for _, st := range m.keys[s] {
		if st.Active {
			return true
		}
	}
	return false
}

// ReportFailure records a failed call made with key. The key is taken out of
// rotation once it reaches the error threshold.
func (m *Manager) ReportFailure(s Service, key string, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.find(s, key)
	if st == nil {
		return
	}

	st.ErrorCount++
	if cause != nil {
		st.LastError = cause.Error()
	}

	if st.Active && st.ErrorCount >= m.threshold {
		st.Active = false
		st.DisabledAt = m.now()
		m.logger.Warnw("API key disabled after repeated failures",
			"service", s, "key", Mask(key), "errors", st.ErrorCount, "last_error", st.LastError)
	}
}

// ReportSuccess clears the key's consecutive error count
func (m *Manager) ReportSuccess(s Service, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st := m.find(s, key); st != nil {
		st.ErrorCount = 0
		st.LastError = ""
	}
}

// Enable puts every key of a service back into rotation
func (m *Manager) Enable(s Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := registry[s]; !ok {
		return fmt.Errorf("unknown service: %s", s)
	}
	delete(m.disabled, s)
	for _, st := range m.keys[s] {
		st.Active = true
		st.ErrorCount = 0
		st.LastError = ""
		st.DisabledAt = time.Time{}
	}
	return nil
}

// Reset re-enables every key of every service
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, states := range m.keys {
		for _, st := range states {
			st.Active = true
			st.ErrorCount = 0
			st.LastError = ""
			st.DisabledAt = time.Time{}
		}
	}
	m.cursor = make(map[Service]int)
}

// Keys returns copies of a service's key states in rotation order
func (m *Manager) Keys(s Service) []KeyState {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]KeyState, 0, len(m.keys[s]))
	for _, st := range m.keys[s] {
		out = append(out, *st)
	}
	return out
}

// Status summarises every known service, sorted by service name
func (m *Manager) Status() []ServiceStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []ServiceStatus
	for _, s := range AllServices() {
		info := registry[s]
		ss := ServiceStatus{
			Service:     s,
			DisplayName: info.DisplayName,
			Enabled:     !m.disabled[s],
			Total:       len(m.keys[s]),
			Keys:        []KeyStatus{},
		}
		for _, st := range m.keys[s] {
			if st.Active {
				ss.Active++
			}
			ss.Keys = append(ss.Keys, KeyStatus{
				Masked:     Mask(st.Value),
				Source:     st.Source,
				Active:     st.Active,
				ErrorCount: st.ErrorCount,
				UseCount:   st.UseCount,
				LastError:  st.LastError,
				LastUsed:   st.LastUsed,
			})
		}
		out = append(out, ss)
	}
	return out
}

func (m *Manager) find(s Service, key string) *KeyState {
	for _, st := range m.keys[s] {
		if st.Value == key {
			return st
		}
	}
	return nil
}

func containsValue(states []*KeyState, v string) bool {
	for _, st := range states {
		if st.Value == v {
			return true
		}
	}
	return false
}

// Mask hides all but the first and last four characters of a key
func Mask(key string) string {
	if len(key) < 10 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
