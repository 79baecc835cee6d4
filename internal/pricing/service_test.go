package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/chrissnell/launchplanner/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := OpenFileStore(t.TempDir())
	require.NoError(t, err)

	svc := NewService(store, nil)
	clock := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	var n int
	svc.newID = func() string {
		n++
		return fmt.Sprintf("id-%02d", n)
	}
	return svc
}

func TestCreatePlanDefaults(t *testing.T) {
	svc := newTestService(t)
	p, err := svc.CreatePlan(context.Background(), PlanInput{Name: "  Galaxy Go ", Price: ptr(19.5), Currency: "eur"})
	require.NoError(t, err)

	assert.Equal(t, "id-01", p.ID)
	assert.Equal(t, "Galaxy Go", p.Name)
	assert.Equal(t, "EUR", p.Currency)
	assert.Equal(t, TierStandard, p.Tier)
	assert.True(t, p.Active)
	assert.Equal(t, []string{}, p.Features)
	assert.Equal(t, p.CreatedAt, p.UpdatedAt)
}

func TestCreatePlanValidation(t *testing.T) {
	tests := []struct {
		name  string
		in    PlanInput
		field string
	}{
		{"missing name", PlanInput{Price: ptr(1.0)}, "name"},
		{"missing price", PlanInput{Name: "x"}, "price"},
		{"negative price", PlanInput{Name: "x", Price: ptr(-1.0)}, "price"},
		{"bad currency", PlanInput{Name: "x", Price: ptr(1.0), Currency: "dollars"}, "currency"},
		{"numeric currency", PlanInput{Name: "x", Price: ptr(1.0), Currency: "840"}, "currency"},
		{"bad tier", PlanInput{Name: "x", Price: ptr(1.0), Tier: "gold"}, "tier"},
		{"empty feature", PlanInput{Name: "x", Price: ptr(1.0), Features: []string{""}}, "features[0]"},
	}

	svc := newTestService(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreatePlan(context.Background(), tt.in)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			require.Len(t, ve.Fields, 1)
			assert.Equal(t, tt.field, ve.Fields[0].Field)
			assert.Contains(t, ve.Error(), "validation failed")
		})
	}
}

func TestUpdatePlan(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	p, err := svc.CreatePlan(ctx, PlanInput{Name: "Plus", Price: ptr(49.0), Tier: TierStandard})
	require.NoError(t, err)

	updated, err := svc.UpdatePlan(ctx, p.ID, PlanInput{Name: "Plus+", Price: ptr(55.0), Tier: "PREMIUM", Active: ptr(false)})
	require.NoError(t, err)
	assert.Equal(t, "Plus+", updated.Name)
	assert.Equal(t, TierPremium, updated.Tier)
	assert.False(t, updated.Active)
	assert.Equal(t, p.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(p.UpdatedAt))

	_, err = svc.UpdatePlan(ctx, "missing", PlanInput{Name: "x", Price: ptr(1.0)})
	assert.True(t, errors.Is(err, ErrNotFound))

	active, err := svc.ListPlans(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)
	all, err := svc.ListPlans(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCreateAgentValidation(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.CreateAgent(context.Background(), AgentInput{Name: "Ann", Email: "not-an-email"})
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "email", ve.Fields[0].Field)
	assert.Equal(t, "email must be a valid email address", ve.Fields[0].Message)

	a, err := svc.CreateAgent(context.Background(), AgentInput{Name: "Ann", Email: " Ann@Example.com "})
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", a.Email)
	assert.True(t, a.Active)
}

func TestAssign(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	plan, err := svc.CreatePlan(ctx, PlanInput{Name: "Basic", Price: ptr(29.0)})
	require.NoError(t, err)
	inactive, err := svc.CreatePlan(ctx, PlanInput{Name: "Old", Price: ptr(9.0), Active: ptr(false)})
	require.NoError(t, err)
	agent, err := svc.CreateAgent(ctx, AgentInput{Name: "Ann", Email: "ann@example.com"})
	require.NoError(t, err)

	a, err := svc.Assign(ctx, AssignInput{AgentID: agent.ID, PlanID: plan.ID})
	require.NoError(t, err)
	assert.Equal(t, agent.ID, a.AgentID)
	assert.False(t, a.AssignedAt.IsZero())

	tests := []struct {
		name string
		in   AssignInput
		want error
	}{
		{"duplicate", AssignInput{AgentID: agent.ID, PlanID: plan.ID}, ErrConflict},
		{"inactive plan", AssignInput{AgentID: agent.ID, PlanID: inactive.ID}, ErrConflict},
		{"unknown agent", AssignInput{AgentID: "nobody", PlanID: plan.ID}, ErrNotFound},
		{"unknown plan", AssignInput{AgentID: agent.ID, PlanID: "nothing"}, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Assign(ctx, tt.in)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	_, err = svc.Assign(ctx, AssignInput{})
	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))

	mine, err := svc.ListAssignments(ctx, agent.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
	none, err := svc.ListAssignments(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, none)
	b, err := json.Marshal(none)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(b))

	// An assigned plan cannot be deleted
	assert.True(t, errors.Is(svc.DeletePlan(ctx, plan.ID), ErrConflict))
	assert.NoError(t, svc.DeletePlan(ctx, inactive.ID))
	assert.True(t, errors.Is(svc.DeletePlan(ctx, inactive.ID), ErrNotFound))
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	n, err := svc.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	plans, err := svc.ListPlans(ctx, false)
	require.NoError(t, err)
	require.Len(t, plans, 3)
	assert.Equal(t, "Galaxy Basic", plans[0].Name)
	assert.Equal(t, 29.0, plans[0].Price)
	assert.Equal(t, "Galaxy Ultra", plans[2].Name)
	assert.Equal(t, 79.0, plans[2].Price)
	for _, p := range plans {
		assert.Equal(t, "USD", p.Currency)
	}

	n, err = svc.Seed(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewServiceFromConfig(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	svc, err := NewServiceFromConfig(ctx, config.PricingData{Backend: "file", DataDir: dir}, nil)
	require.NoError(t, err)
	plans, err := svc.ListPlans(ctx, false)
	require.NoError(t, err)
	assert.Len(t, plans, 3)
	require.NoError(t, svc.Close())

	svc, err = NewServiceFromConfig(ctx, config.PricingData{Backend: "file", DataDir: t.TempDir(), Seed: ptr(false)}, nil)
	require.NoError(t, err)
	plans, err = svc.ListPlans(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, plans)

	_, err = NewServiceFromConfig(ctx, config.PricingData{Backend: "mongo"}, nil)
	assert.Error(t, err)
}
