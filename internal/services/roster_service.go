// Package services – RosterService
//
// This file implements subscription management: member rows are created on
// first interaction and mutated on join/leave; they are never deleted.
package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-coffee-bot/internal/domain"
	"github.com/tbourn/go-coffee-bot/internal/repo"
)

// RosterService manages the set of opted-in members.
type RosterService struct {
	DB *gorm.DB

	// Now is a clock seam; defaults to time.Now via NewRosterService.
	Now func() time.Time
}

// NewRosterService constructs a RosterService on the wall clock.
func NewRosterService(db *gorm.DB) *RosterService {
	return &RosterService{DB: db, Now: time.Now}
}

// Touch creates or refreshes the member row from identity parts seen on an
// interaction, without changing subscription state.
func (s *RosterService) Touch(ctx context.Context, id int64, username, firstName, lastName string) (*domain.Member, error) {
	return repo.UpsertMember(ctx, s.DB, id, username, firstName, lastName)
}

// Join opts the member in. The member row must already exist (Touch runs
// on every interaction before this).
func (s *RosterService) Join(ctx context.Context, id int64) error {
	err := repo.Subscribe(ctx, s.DB, id, s.Now())
	if errors.Is(err, repo.ErrNotFound) {
		return ErrMemberNotFound
	}
	return err
}

// Leave opts the member out. Their history and streak survive; only the
// subscription flag is cleared.
func (s *RosterService) Leave(ctx context.Context, id int64) error {
	err := repo.Unsubscribe(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrMemberNotFound
	}
	return err
}

// Status returns the member row, or ErrMemberNotFound for someone the bot
// has never seen.
func (s *RosterService) Status(ctx context.Context, id int64) (*domain.Member, error) {
	m, err := repo.GetMember(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrMemberNotFound
	}
	return m, err
}

// Subscribers returns the current roster.
func (s *RosterService) Subscribers(ctx context.Context) ([]domain.Member, error) {
	return repo.ListSubscribers(ctx, s.DB)
}

// SubscriberCount returns the current roster size.
func (s *RosterService) SubscriberCount(ctx context.Context) (int64, error) {
	return repo.CountSubscribers(ctx, s.DB)
}
