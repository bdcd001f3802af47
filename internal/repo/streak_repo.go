// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// MeetingStreak model: the consecutive-miss counter behind inactivity
// pruning.
//
// Period guard: IncrementMiss records at most one miss per (member,
// period). The stored LastPeriod is compared inside the same transaction
// as the write, so re-processing a period (overlapping sweep + button
// press) cannot double-increment. ResetStreak always wins regardless of
// period: a "yes" must undo a sweep-synthesized "no".
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/go-coffee-bot/internal/domain"
)

// IncrementMiss adds one to the member's consecutive-miss counter for
// periodKey, creating the streak row if absent. A second increment for the
// same period is a no-op.
func IncrementMiss(ctx context.Context, db *gorm.DB, memberID int64, periodKey string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s domain.MeetingStreak
		err := tx.First(&s, "member_id = ?", memberID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&domain.MeetingStreak{
				MemberID:          memberID,
				ConsecutiveMisses: 1,
				LastPeriod:        periodKey,
			}).Error
		case err != nil:
			return err
		}
		if s.LastPeriod == periodKey && s.ConsecutiveMisses > 0 {
			// Already counted a miss for this period.
			return nil
		}
		return tx.Model(&domain.MeetingStreak{}).
			Where("member_id = ?", memberID).
			Updates(map[string]interface{}{
				"consecutive_misses": s.ConsecutiveMisses + 1,
				"last_period":        periodKey,
			}).Error
	})
}

// ResetStreak zeroes the member's consecutive-miss counter, creating the
// row if absent. Used both on a "yes" response and on removal, so a future
// resubscribe starts clean.
func ResetStreak(ctx context.Context, db *gorm.DB, memberID int64, periodKey string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s domain.MeetingStreak
		err := tx.First(&s, "member_id = ?", memberID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&domain.MeetingStreak{
				MemberID:          memberID,
				ConsecutiveMisses: 0,
				LastPeriod:        periodKey,
			}).Error
		}
		if err != nil {
			return err
		}
		return tx.Model(&domain.MeetingStreak{}).
			Where("member_id = ?", memberID).
			Updates(map[string]interface{}{
				"consecutive_misses": 0,
				"last_period":        periodKey,
			}).Error
	})
}

// GetStreak fetches the member's streak, or ErrNotFound when the member has
// never had a follow-up recorded.
func GetStreak(ctx context.Context, db *gorm.DB, memberID int64) (*domain.MeetingStreak, error) {
	var s domain.MeetingStreak
	if err := db.WithContext(ctx).First(&s, "member_id = ?", memberID).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// InactiveMemberIDs returns the ids of currently subscribed members whose
// consecutive-miss counter has reached threshold.
func InactiveMemberIDs(ctx context.Context, db *gorm.DB, threshold int) ([]int64, error) {
	var ids []int64
	err := db.WithContext(ctx).
		Model(&domain.MeetingStreak{}).
		Joins("JOIN members ON members.id = meeting_streaks.member_id").
		Where("meeting_streaks.consecutive_misses >= ? AND members.subscribed = ?", threshold, true).
		Pluck("meeting_streaks.member_id", &ids).Error
	return ids, err
}
