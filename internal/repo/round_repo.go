// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Round
// model, including the atomic create-if-absent that underpins the
// once-per-period idempotency protocol.
//
// The protocol is a two-phase state machine per period key:
//
//	[absent] --CreateRoundAtomic (atomic insert)--> [placeholder: 0/0]
//	[placeholder] --UpdateRoundStats--> [finalized]
//
// There is no transition back to [absent]. A caller observing
// ErrRoundExists must skip all matching and notification work for that
// period and report it as already done.
package repo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-coffee-bot/internal/domain"
)

// ErrRoundExists indicates that a round already exists for the requested
// period key. It is the expected outcome of a retried or concurrently
// triggered matching job, not a failure.
var ErrRoundExists = errors.New("round already exists for period")

// isUniqueViolation reports whether err is a UNIQUE-constraint failure.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations,
// so string matching is needed alongside gorm's sentinel.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}

// CreateRoundAtomic inserts the placeholder round for periodKey and returns
// ErrRoundExists if one is already present. This is a single atomic insert
// against the unique index on period_key, not a read-then-write, so it is
// race-safe across overlapping job triggers (manual + scheduled).
func CreateRoundAtomic(ctx context.Context, db *gorm.DB, periodKey string) (*domain.Round, error) {
	r := &domain.Round{PeriodKey: periodKey}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrRoundExists
		}
		return nil, err
	}
	return r, nil
}

// UpdateRoundStats backfills the aggregate stats once matching completes,
// finalizing the round.
func UpdateRoundStats(ctx context.Context, db *gorm.DB, roundID uint, totalSubscribers, totalGroups int) error {
	res := db.WithContext(ctx).
		Model(&domain.Round{}).
		Where("id = ?", roundID).
		Updates(map[string]interface{}{
			"total_subscribers": totalSubscribers,
			"total_groups":      totalGroups,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRound fetches the round for a specific period key, or ErrNotFound.
func GetRound(ctx context.Context, db *gorm.DB, periodKey string) (*domain.Round, error) {
	var r domain.Round
	if err := db.WithContext(ctx).First(&r, "period_key = ?", periodKey).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// LatestRound returns the most recently created round, or ErrNotFound when
// no round has ever run.
func LatestRound(ctx context.Context, db *gorm.DB) (*domain.Round, error) {
	var r domain.Round
	if err := db.WithContext(ctx).Order("created_at desc, id desc").First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}
