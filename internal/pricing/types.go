// Package pricing manages pricing plans, the sales agents that sell them and
// the assignment of plans to agents.
package pricing

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a plan, agent or assignment does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an operation would violate a uniqueness
	// or reference rule
	ErrConflict = errors.New("conflict")
)

// Tier is a plan's market tier
type Tier string

const (
	TierBasic      Tier = "basic"
	TierStandard   Tier = "standard"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

// Plan is a priced offering
type Plan struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	Name        string    `json:"name" gorm:"not null"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Currency    string    `json:"currency" gorm:"size:3"`
	Tier        Tier      `json:"tier" gorm:"size:16"`
	Features    []string  `json:"features" gorm:"serializer:json;type:text"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime:false"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime:false"`
}

// Agent is a sales agent
type Agent struct {
	ID     string `json:"id" gorm:"primaryKey;size:36"`
	Name   string `json:"name" gorm:"not null"`
	Email  string `json:"email" gorm:"not null"`
	Region string `json:"region"`
	Active bool   `json:"active"`
}

// Assignment links an agent to a plan they sell
type Assignment struct {
	ID         string    `json:"id" gorm:"primaryKey;size:36"`
	AgentID    string    `json:"agent_id" gorm:"size:36;uniqueIndex:idx_assignment_agent_plan"`
	PlanID     string    `json:"plan_id" gorm:"size:36;uniqueIndex:idx_assignment_agent_plan;index"`
	AssignedAt time.Time `json:"assigned_at"`
}

// Store persists plans, agents and assignments. Implementations return
// ErrNotFound for unknown IDs and ErrConflict for duplicate IDs or a
// duplicate agent/plan pair; all other business rules live in Service.
type Store interface {
	ListPlans(ctx context.Context) ([]Plan, error)
	GetPlan(ctx context.Context, id string) (Plan, error)
	CreatePlan(ctx context.Context, p Plan) error
	UpdatePlan(ctx context.Context, p Plan) error
	DeletePlan(ctx context.Context, id string) error

	ListAgents(ctx context.Context) ([]Agent, error)
	GetAgent(ctx context.Context, id string) (Agent, error)
	CreateAgent(ctx context.Context, a Agent) error

	ListAssignments(ctx context.Context) ([]Assignment, error)
	CreateAssignment(ctx context.Context, a Assignment) error

	Close() error
}
