package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chrissnell/launchplanner/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeBackends(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"file": func(t *testing.T) Store {
			s, err := OpenFileStore(t.TempDir())
			require.NoError(t, err)
			return s
		},
		"sqlite": func(t *testing.T) Store {
			s, err := OpenGormStore(database.BackendSQLite, filepath.Join(t.TempDir(), "pricing.db"), nil)
			require.NoError(t, err)
			return s
		},
	}
}

func TestStoreContract(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, open := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			defer s.Close()

			plans, err := s.ListPlans(ctx)
			require.NoError(t, err)
			assert.Empty(t, plans)

			p1 := Plan{ID: "p1", Name: "Basic", Price: 29, Currency: "USD", Tier: TierBasic, Features: []string{"5G"}, Active: true, CreatedAt: base, UpdatedAt: base}
			p2 := Plan{ID: "p2", Name: "Ultra", Price: 79, Currency: "USD", Tier: TierPremium, Features: []string{}, Active: false, CreatedAt: base.Add(time.Minute), UpdatedAt: base}
			require.NoError(t, s.CreatePlan(ctx, p2))
			require.NoError(t, s.CreatePlan(ctx, p1))
			assert.True(t, errors.Is(s.CreatePlan(ctx, p1), ErrConflict))

			plans, err = s.ListPlans(ctx)
			require.NoError(t, err)
			require.Len(t, plans, 2)
			assert.Equal(t, "p1", plans[0].ID)
			assert.Equal(t, []string{"5G"}, plans[0].Features)
			assert.False(t, plans[1].Active)

			got, err := s.GetPlan(ctx, "p1")
			require.NoError(t, err)
			assert.Equal(t, "Basic", got.Name)
			assert.True(t, got.CreatedAt.Equal(base))

			_, err = s.GetPlan(ctx, "missing")
			assert.True(t, errors.Is(err, ErrNotFound))

			got.Price = 35
			got.Active = false
			require.NoError(t, s.UpdatePlan(ctx, got))
			got, err = s.GetPlan(ctx, "p1")
			require.NoError(t, err)
			assert.Equal(t, 35.0, got.Price)
			assert.False(t, got.Active)
			assert.True(t, errors.Is(s.UpdatePlan(ctx, Plan{ID: "missing"}), ErrNotFound))

			require.NoError(t, s.CreateAgent(ctx, Agent{ID: "a2", Name: "Zoe", Email: "zoe@example.com", Active: true}))
			require.NoError(t, s.CreateAgent(ctx, Agent{ID: "a1", Name: "Ann", Email: "ann@example.com", Region: "West", Active: true}))
			agents, err := s.ListAgents(ctx)
			require.NoError(t, err)
			require.Len(t, agents, 2)
			assert.Equal(t, "Ann", agents[0].Name)
			_, err = s.GetAgent(ctx, "nobody")
			assert.True(t, errors.Is(err, ErrNotFound))

			require.NoError(t, s.CreateAssignment(ctx, Assignment{ID: "s1", AgentID: "a1", PlanID: "p1", AssignedAt: base}))
			err = s.CreateAssignment(ctx, Assignment{ID: "s2", AgentID: "a1", PlanID: "p1", AssignedAt: base})
			assert.True(t, errors.Is(err, ErrConflict), "duplicate pair: %v", err)
			assignments, err := s.ListAssignments(ctx)
			require.NoError(t, err)
			assert.Len(t, assignments, 1)

			require.NoError(t, s.DeletePlan(ctx, "p2"))
			assert.True(t, errors.Is(s.DeletePlan(ctx, "p2"), ErrNotFound))
			plans, err = s.ListPlans(ctx)
			require.NoError(t, err)
			assert.Len(t, plans, 1)
		})
	}
}

func TestFileStorePersists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := OpenFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.CreatePlan(ctx, Plan{ID: "p1", Name: "Basic", Price: 29}))
	require.NoError(t, s.CreateAgent(ctx, Agent{ID: "a1", Name: "Ann"}))

	reopened, err := OpenFileStore(dir)
	require.NoError(t, err)
	p, err := reopened.GetPlan(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Basic", p.Name)
	_, err = reopened.GetAgent(ctx, "a1")
	assert.NoError(t, err)

	// No temp files are left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"plans.json", "agents.json"}, names)
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, plansFile), []byte("{not json"), 0o644))
	_, err := OpenFileStore(dir)
	assert.Error(t, err)
}

func TestFileStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s, err := OpenFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.CreatePlan(ctx, Plan{ID: "p1", Features: []string{"a"}}))

	p, err := s.GetPlan(ctx, "p1")
	require.NoError(t, err)
	p.Features[0] = "changed"

	p, err = s.GetPlan(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, p.Features)
}

func TestStoreEmptyListsEncodeAsArrays(t *testing.T) {
	for name, open := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			defer s.Close()

			assignments, err := s.ListAssignments(ctx)
			require.NoError(t, err)
			b, err := json.Marshal(assignments)
			require.NoError(t, err)
			assert.Equal(t, "[]", string(b))

			require.NoError(t, s.CreatePlan(ctx, Plan{ID: "p1", Name: "Bare", Currency: "USD", Tier: TierBasic}))

			p, err := s.GetPlan(ctx, "p1")
			require.NoError(t, err)
			b, err = json.Marshal(p)
			require.NoError(t, err)
			assert.Contains(t, string(b), `"features":[]`)

			plans, err := s.ListPlans(ctx)
			require.NoError(t, err)
			require.Len(t, plans, 1)
			assert.NotNil(t, plans[0].Features)
		})
	}
}
