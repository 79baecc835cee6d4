package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

const (
	plansFile       = "plans.json"
	agentsFile      = "agents.json"
	assignmentsFile = "assignments.json"
)

// FileStore keeps each collection in a JSON file under a data directory.
// Every write replaces the whole file atomically.
type FileStore struct {
	dir string

	mu          sync.RWMutex
	plans       []Plan
	agents      []Agent
	assignments []Assignment
}

// OpenFileStore loads the collections in dir, creating the directory if
// needed. Missing files are empty collections.
func OpenFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create data directory %s: %w", dir, err)
	}
	s := &FileStore{dir: dir}
	if err := s.load(plansFile, &s.plans); err != nil {
		return nil, err
	}
	if err := s.load(agentsFile, &s.agents); err != nil {
		return nil, err
	}
	if err := s.load(assignmentsFile, &s.assignments); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load(name string, out any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not read %s: %w", name, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("could not parse %s: %w", name, err)
	}
	return nil
}

// save writes v to a temp file in the data directory and renames it over
// the target
func (s *FileStore) save(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("could not create temp file for %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("could not write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("could not replace %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) ListPlans(_ context.Context) ([]Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Plan, len(s.plans))
	for i, p := range s.plans {
		out[i] = clonePlan(p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *FileStore) GetPlan(_ context.Context, id string) (Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.plans {
		if p.ID == id {
			return clonePlan(p), nil
		}
	}
	return Plan{}, ErrNotFound
}

func (s *FileStore) CreatePlan(_ context.Context, p Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.plans {
		if existing.ID == p.ID {
			return fmt.Errorf("plan %s: %w", p.ID, ErrConflict)
		}
	}
	plans := append(append([]Plan(nil), s.plans...), clonePlan(p))
	if err := s.save(plansFile, plans); err != nil {
		return err
	}
	s.plans = plans
	return nil
}

func (s *FileStore) UpdatePlan(_ context.Context, p Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.plans {
		if existing.ID != p.ID {
			continue
		}
		plans := append([]Plan(nil), s.plans...)
		plans[i] = clonePlan(p)
		if err := s.save(plansFile, plans); err != nil {
			return err
		}
		s.plans = plans
		return nil
	}
	return ErrNotFound
}

func (s *FileStore) DeletePlan(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.plans {
		if existing.ID != id {
			continue
		}
		plans := append(append([]Plan(nil), s.plans[:i]...), s.plans[i+1:]...)
		if err := s.save(plansFile, plans); err != nil {
			return err
		}
		s.plans = plans
		return nil
	}
	return ErrNotFound
}

func (s *FileStore) ListAgents(_ context.Context) ([]Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := append([]Agent(nil), s.agents...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *FileStore) GetAgent(_ context.Context, id string) (Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.agents {
		if a.ID == id {
			return a, nil
		}
	}
	return Agent{}, ErrNotFound
}

func (s *FileStore) CreateAgent(_ context.Context, a Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.agents {
		if existing.ID == a.ID {
			return fmt.Errorf("agent %s: %w", a.ID, ErrConflict)
		}
	}
	agents := append(append([]Agent(nil), s.agents...), a)
	if err := s.save(agentsFile, agents); err != nil {
		return err
	}
	s.agents = agents
	return nil
}

func (s *FileStore) ListAssignments(_ context.Context) ([]Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Assignment, len(s.assignments))
	copy(out, s.assignments)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].AssignedAt.Equal(out[j].AssignedAt) {
			return out[i].AssignedAt.Before(out[j].AssignedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *FileStore) CreateAssignment(_ context.Context, a Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.assignments {
		if existing.ID == a.ID || (existing.AgentID == a.AgentID && existing.PlanID == a.PlanID) {
			return fmt.Errorf("assignment of plan %s to agent %s: %w", a.PlanID, a.AgentID, ErrConflict)
		}
	}
	assignments := append(append([]Assignment(nil), s.assignments...), a)
	if err := s.save(assignmentsFile, assignments); err != nil {
		return err
	}
	s.assignments = assignments
	return nil
}

// Close is a no-op; every write is already on disk
func (s *FileStore) Close() error {
	return nil
}

func clonePlan(p Plan) Plan {
	features := make([]string, len(p.Features))
	copy(features, p.Features)
	p.Features = features
	return p
}
