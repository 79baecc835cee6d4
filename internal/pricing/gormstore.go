package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/chrissnell/launchplanner/internal/database"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GormStore keeps plans, agents and assignments in a postgres or sqlite
// database
type GormStore struct {
	db *gorm.DB
}

// OpenGormStore connects to the database and migrates the schema
func OpenGormStore(backend, dsn string, zl *zap.Logger) (*GormStore, error) {
	db, err := database.Open(backend, dsn, zl)
	if err != nil {
		return nil, err
	}
	s, err := NewGormStore(db)
	if err != nil {
		database.Close(db)
		return nil, err
	}
	return s, nil
}

// NewGormStore migrates the schema on an open connection
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&Plan{}, &Agent{}, &Assignment{}); err != nil {
		return nil, fmt.Errorf("could not migrate pricing schema: %w", err)
	}
	return &GormStore{db: db}, nil
}

func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", what, ErrConflict)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func (s *GormStore) ListPlans(ctx context.Context) ([]Plan, error) {
	plans := make([]Plan, 0)
	err := s.db.WithContext(ctx).Order("created_at, id").Find(&plans).Error
	for i := range plans {
		plans[i].Features = nonNilFeatures(plans[i].Features)
	}
	return plans, translate(err, "list plans")
}

func (s *GormStore) GetPlan(ctx context.Context, id string) (Plan, error) {
	var p Plan
	err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error
	p.Features = nonNilFeatures(p.Features)
	return p, translate(err, "get plan")
}

// nonNilFeatures keeps an empty feature list encoding as [] rather than null
func nonNilFeatures(f []string) []string {
	if f == nil {
		return []string{}
	}
	return f
}

func (s *GormStore) CreatePlan(ctx context.Context, p Plan) error {
	return translate(s.db.WithContext(ctx).Create(&p).Error, "create plan "+p.ID)
}

func (s *GormStore) UpdatePlan(ctx context.Context, p Plan) error {
	res := s.db.WithContext(ctx).Model(&Plan{}).Where("id = ?", p.ID).Select("*").Omit("id", "created_at").Updates(&p)
	if res.Error != nil {
		return translate(res.Error, "update plan "+p.ID)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) DeletePlan(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&Plan{}, "id = ?", id)
	if res.Error != nil {
		return translate(res.Error, "delete plan "+id)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ListAgents(ctx context.Context) ([]Agent, error) {
	var agents []Agent
	err := s.db.WithContext(ctx).Order("name, id").Find(&agents).Error
	return agents, translate(err, "list agents")
}

func (s *GormStore) GetAgent(ctx context.Context, id string) (Agent, error) {
	var a Agent
	err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error
	return a, translate(err, "get agent")
}

func (s *GormStore) CreateAgent(ctx context.Context, a Agent) error {
	return translate(s.db.WithContext(ctx).Create(&a).Error, "create agent "+a.ID)
}

func (s *GormStore) ListAssignments(ctx context.Context) ([]Assignment, error) {
	assignments := make([]Assignment, 0)
	err := s.db.WithContext(ctx).Order("assigned_at, id").Find(&assignments).Error
	return assignments, translate(err, "list assignments")
}

func (s *GormStore) CreateAssignment(ctx context.Context, a Assignment) error {
	return translate(s.db.WithContext(ctx).Create(&a).Error, "create assignment "+a.ID)
}

func (s *GormStore) Close() error {
	return database.Close(s.db)
}
