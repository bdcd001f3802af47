// Package services – InactivityService
//
// This file implements inactivity pruning: members whose consecutive-miss
// streak reaches the threshold are unsubscribed, their streak is reset so
// a future resubscribe starts clean, and they are told why.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-coffee-bot/internal/domain"
	"github.com/tbourn/go-coffee-bot/internal/notify"
	"github.com/tbourn/go-coffee-bot/internal/repo"
)

// DefaultInactivityThreshold is the number of consecutive missed meetings
// after which a member is removed.
const DefaultInactivityThreshold = 3

// InactivitySummary reports one pruning run.
type InactivitySummary struct {
	Removed  int `json:"removed"`
	Notified int `json:"notified"`
}

// InactivityService removes chronically inactive members.
type InactivityService struct {
	DB        *gorm.DB
	Gateway   notify.Gateway
	Log       zerolog.Logger
	Threshold int

	// Now is a clock seam; defaults to time.Now via NewInactivityService.
	Now func() time.Time
}

// NewInactivityService constructs an InactivityService. A threshold below
// 1 falls back to the default.
func NewInactivityService(db *gorm.DB, gw notify.Gateway, threshold int, log zerolog.Logger) *InactivityService {
	if threshold < 1 {
		threshold = DefaultInactivityThreshold
	}
	return &InactivityService{DB: db, Gateway: gw, Log: log, Threshold: threshold, Now: time.Now}
}

// RemoveInactive unsubscribes every currently subscribed member whose
// consecutive-miss counter has reached the threshold. Callers must run the
// unanswered-follow-up sweep first so silence is already counted. Delivery
// failures on the goodbye note are non-fatal per recipient.
func (s *InactivityService) RemoveInactive(ctx context.Context) (*InactivitySummary, error) {
	ids, err := repo.InactiveMemberIDs(ctx, s.DB, s.Threshold)
	if err != nil {
		return nil, err
	}

	sum := &InactivitySummary{}
	periodKey := domain.PeriodKey(s.Now())

	for _, id := range ids {
		m, err := repo.GetMember(ctx, s.DB, id)
		if errors.Is(err, repo.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		if err := repo.Unsubscribe(ctx, s.DB, id); err != nil {
			return nil, err
		}
		if err := repo.ResetStreak(ctx, s.DB, id, periodKey); err != nil {
			return nil, err
		}
		sum.Removed++
		s.Log.Info().Int64("member", id).Int("threshold", s.Threshold).
			Msg("removed inactive member")

		outcome, derr := s.Gateway.Deliver(ctx, id, notify.RemovalNotice(*m), nil)
		switch outcome {
		case notify.Delivered:
			sum.Notified++
		case notify.PermanentRejection:
			if err := repo.SetCanReceiveDM(ctx, s.DB, id, false); err != nil {
				s.Log.Error().Err(err).Int64("member", id).Msg("clear delivery flag")
			}
		default:
			s.Log.Warn().Err(derr).Int64("member", id).Msg("removal notice failed")
		}
	}

	return sum, nil
}
