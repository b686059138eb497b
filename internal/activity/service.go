package activity

import (
	"context"
	"fmt"
	"time"
)

// Service provides the activity feed over a Repository.
type Service struct {
	repo Repository
}

// NewService creates a new activity Service.
func NewService(repo Repository) *Service {
	if repo == nil {
		panic("activity.NewService: repo is nil")
	}
	return &Service{repo: repo}
}

// Record stores one executed action, filling CreatedAt when unset.
func (s *Service) Record(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("recording activity: missing id")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if err := s.repo.Insert(ctx, rec); err != nil {
		return fmt.Errorf("recording activity %s: %w", rec.ID, err)
	}
	return nil
}

// List returns the account's most recent actions, newest first.
func (s *Service) List(ctx context.Context, account string, limit int) ([]Record, error) {
	return s.repo.List(ctx, account, limit)
}
