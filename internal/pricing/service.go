package pricing

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PlanInput is the writable part of a plan
type PlanInput struct {
	Name        string   `json:"name" validate:"required,max=100"`
	Description string   `json:"description" validate:"max=1000"`
	Price       *float64 `json:"price" validate:"required,gte=0"`
	Currency    string   `json:"currency" validate:"omitempty,len=3,alpha"`
	Tier        Tier     `json:"tier" validate:"omitempty,oneof=basic standard premium enterprise"`
	Features    []string `json:"features" validate:"dive,required"`
	Active      *bool    `json:"active"`
}

// AgentInput is the writable part of an agent
type AgentInput struct {
	Name   string `json:"name" validate:"required,max=100"`
	Email  string `json:"email" validate:"required,email"`
	Region string `json:"region" validate:"max=50"`
	Active *bool  `json:"active"`
}

// AssignInput requests that an agent sell a plan
type AssignInput struct {
	AgentID string `json:"agent_id" validate:"required"`
	PlanID  string `json:"plan_id" validate:"required"`
}

// FieldError describes one invalid input field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when input fails validation
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Service applies the pricing business rules on top of a Store
type Service struct {
	store    Store
	validate *validator.Validate
	logger   *zap.SugaredLogger
	now      func() time.Time
	newID    func() string

	// serialises check-then-write sequences
	mu sync.Mutex
}

// NewService returns a Service over store
func NewService(store Store, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return &Service{
		store:    store,
		validate: v,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// Close closes the underlying store
func (s *Service) Close() error {
	return s.store.Close()
}

func (s *Service) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	ve := &ValidationError{}
	for _, fe := range verrs {
		ve.Fields = append(ve.Fields, FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return ve
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "gte":
		return fe.Field() + " must be at least " + fe.Param()
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	case "len":
		return fe.Field() + " must be exactly " + fe.Param() + " characters"
	case "alpha":
		return fe.Field() + " must contain letters only"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	default:
		return fe.Field() + " is invalid"
	}
}

func normalizePlanInput(in *PlanInput) {
	in.Name = strings.TrimSpace(in.Name)
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if in.Currency == "" {
		in.Currency = "USD"
	}
	in.Tier = Tier(strings.ToLower(string(in.Tier)))
	if in.Tier == "" {
		in.Tier = TierStandard
	}
}

// ListPlans returns every plan, or only the active ones
func (s *Service) ListPlans(ctx context.Context, activeOnly bool) ([]Plan, error) {
	plans, err := s.store.ListPlans(ctx)
	if err != nil || !activeOnly {
		return plans, err
	}
	active := make([]Plan, 0, len(plans))
	for _, p := range plans {
		if p.Active {
			active = append(active, p)
		}
	}
	return active, nil
}

// GetPlan returns one plan
func (s *Service) GetPlan(ctx context.Context, id string) (Plan, error) {
	return s.store.GetPlan(ctx, id)
}

// CreatePlan validates the input and stores a new plan
func (s *Service) CreatePlan(ctx context.Context, in PlanInput) (Plan, error) {
	normalizePlanInput(&in)
	if err := s.check(in); err != nil {
		return Plan{}, err
	}

	now := s.now()
	p := Plan{
		ID:          s.newID(),
		Name:        in.Name,
		Description: in.Description,
		Price:       *in.Price,
		Currency:    in.Currency,
		Tier:        in.Tier,
		Features:    in.Features,
		Active:      in.Active == nil || *in.Active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if p.Features == nil {
		p.Features = []string{}
	}
	if err := s.store.CreatePlan(ctx, p); err != nil {
		return Plan{}, err
	}
	s.logger.Infow("plan created", "id", p.ID, "name", p.Name, "price", p.Price)
	return p, nil
}

// UpdatePlan replaces a plan's writable fields
func (s *Service) UpdatePlan(ctx context.Context, id string, in PlanInput) (Plan, error) {
	normalizePlanInput(&in)
	if err := s.check(in); err != nil {
		return Plan{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.store.GetPlan(ctx, id)
	if err != nil {
		return Plan{}, err
	}
	p.Name = in.Name
	p.Description = in.Description
	p.Price = *in.Price
	p.Currency = in.Currency
	p.Tier = in.Tier
	p.Features = in.Features
	if p.Features == nil {
		p.Features = []string{}
	}
	if in.Active != nil {
		p.Active = *in.Active
	}
	p.UpdatedAt = s.now()

	if err := s.store.UpdatePlan(ctx, p); err != nil {
		return Plan{}, err
	}
	s.logger.Infow("plan updated", "id", p.ID)
	return p, nil
}

// DeletePlan removes a plan. A plan that is still assigned to an agent
// cannot be deleted.
func (s *Service) DeletePlan(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.store.GetPlan(ctx, id); err != nil {
		return err
	}
	assignments, err := s.store.ListAssignments(ctx)
	if err != nil {
		return err
	}
	var n int
	for _, a := range assignments {
		if a.PlanID == id {
			n++
		}
	}
	if n > 0 {
		return fmt.Errorf("plan %s has %d assignment(s): %w", id, n, ErrConflict)
	}

	if err := s.store.DeletePlan(ctx, id); err != nil {
		return err
	}
	s.logger.Infow("plan deleted", "id", id)
	return nil
}

// ListAgents returns every agent
func (s *Service) ListAgents(ctx context.Context) ([]Agent, error) {
	return s.store.ListAgents(ctx)
}

// GetAgent returns one agent
func (s *Service) GetAgent(ctx context.Context, id string) (Agent, error) {
	return s.store.GetAgent(ctx, id)
}

// CreateAgent validates the input and stores a new agent
func (s *Service) CreateAgent(ctx context.Context, in AgentInput) (Agent, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := s.check(in); err != nil {
		return Agent{}, err
	}

	a := Agent{
		ID:     s.newID(),
		Name:   in.Name,
		Email:  in.Email,
		Region: in.Region,
		Active: in.Active == nil || *in.Active,
	}
	if err := s.store.CreateAgent(ctx, a); err != nil {
		return Agent{}, err
	}
	s.logger.Infow("agent created", "id", a.ID, "name", a.Name)
	return a, nil
}

// ListAssignments returns every assignment, or one agent's when agentID is set
func (s *Service) ListAssignments(ctx context.Context, agentID string) ([]Assignment, error) {
	assignments, err := s.store.ListAssignments(ctx)
	if err != nil || agentID == "" {
		return assignments, err
	}
	out := make([]Assignment, 0)
	for _, a := range assignments {
		if a.AgentID == agentID {
			out = append(out, a)
		}
	}
	return out, nil
}

// Assign gives a plan to an agent. Both must exist, the plan must be active
// and the pair must not already be assigned.
func (s *Service) Assign(ctx context.Context, in AssignInput) (Assignment, error) {
	if err := s.check(in); err != nil {
		return Assignment{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.store.GetAgent(ctx, in.AgentID); err != nil {
		return Assignment{}, fmt.Errorf("agent %s: %w", in.AgentID, err)
	}
	plan, err := s.store.GetPlan(ctx, in.PlanID)
	if err != nil {
		return Assignment{}, fmt.Errorf("plan %s: %w", in.PlanID, err)
	}
	if !plan.Active {
		return Assignment{}, fmt.Errorf("plan %s is inactive: %w", in.PlanID, ErrConflict)
	}

	a := Assignment{
		ID:         s.newID(),
		AgentID:    in.AgentID,
		PlanID:     in.PlanID,
		AssignedAt: s.now(),
	}
	if err := s.store.CreateAssignment(ctx, a); err != nil {
		return Assignment{}, err
	}
	s.logger.Infow("plan assigned", "agent", a.AgentID, "plan", a.PlanID)
	return a, nil
}

// DefaultPlans are created in an empty store
var DefaultPlans = []PlanInput{
	{
		Name:        "Galaxy Basic",
		Description: "Entry plan with essential Galaxy services",
		Price:       ptr(29.0),
		Currency:    "USD",
		Tier:        TierBasic,
		Features:    []string{"5G data", "Samsung Cloud 50GB", "Standard support"},
	},
	{
		Name:        "Galaxy Plus",
		Description: "Device protection and more cloud storage",
		Price:       ptr(49.0),
		Currency:    "USD",
		Tier:        TierStandard,
		Features:    []string{"5G data", "Samsung Cloud 200GB", "Samsung Care+", "Priority support"},
	},
	{
		Name:        "Galaxy Ultra",
		Description: "Annual upgrade with premium care",
		Price:       ptr(79.0),
		Currency:    "USD",
		Tier:        TierPremium,
		Features:    []string{"Unlimited 5G", "Samsung Cloud 2TB", "Samsung Care+ with theft", "Annual upgrade", "Premium support"},
	},
}

func ptr[T any](v T) *T {
	return &v
}

// Seed creates the default plans when the store has none and returns how
// many were created
func (s *Service) Seed(ctx context.Context) (int, error) {
	plans, err := s.store.ListPlans(ctx)
	if err != nil {
		return 0, err
	}
	if len(plans) > 0 {
		return 0, nil
	}
	for i, in := range DefaultPlans {
		if _, err := s.CreatePlan(ctx, in); err != nil {
			return i, fmt.Errorf("could not seed plan %q: %w", in.Name, err)
		}
	}
	s.logger.Infof("seeded %d default pricing plans", len(DefaultPlans))
	return len(DefaultPlans), nil
}
