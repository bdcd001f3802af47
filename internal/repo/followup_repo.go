// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the FollowUp
// model: prompt bookkeeping, response recording, and the staleness query
// the auto-timeout sweep is built on.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-coffee-bot/internal/domain"
)

// UpsertFollowUp records that the follow-up prompt reached the member.
// Keyed by (group_id, member_id); a retried send refreshes the sent
// timestamp instead of creating a duplicate row. Callers must only invoke
// this after confirmed delivery, so a failed send never marks the prompt
// as sent.
func UpsertFollowUp(ctx context.Context, db *gorm.DB, groupID uint, memberID int64, sentAt time.Time) error {
	f := &domain.FollowUp{
		GroupID:      groupID,
		MemberID:     memberID,
		PromptSentAt: sentAt.UTC(),
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "group_id"}, {Name: "member_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"prompt_sent_at"}),
		}).
		Create(f).Error
}

// GetFollowUp fetches the follow-up for (groupID, memberID), or ErrNotFound.
func GetFollowUp(ctx context.Context, db *gorm.DB, groupID uint, memberID int64) (*domain.FollowUp, error) {
	var f domain.FollowUp
	err := db.WithContext(ctx).
		Where("group_id = ? AND member_id = ?", groupID, memberID).
		First(&f).Error
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// RecordFollowUpResponse stores the member's answer. Last write wins, so a
// member pressing the button twice (or changing their mind after the sweep
// synthesized a "no") simply overwrites. Returns ErrNotFound when no
// prompt row exists for the pair.
func RecordFollowUpResponse(ctx context.Context, db *gorm.DB, groupID uint, memberID int64, response string, at time.Time) error {
	at = at.UTC()
	res := db.WithContext(ctx).
		Model(&domain.FollowUp{}).
		Where("group_id = ? AND member_id = ?", groupID, memberID).
		Updates(map[string]interface{}{
			"response":     response,
			"responded_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UnansweredFollowUps returns follow-ups with no response whose prompt was
// sent at or before cutoff. The sweep turns each of these into a
// synthesized "no".
func UnansweredFollowUps(ctx context.Context, db *gorm.DB, cutoff time.Time) ([]domain.FollowUp, error) {
	var out []domain.FollowUp
	err := db.WithContext(ctx).
		Where("response IS NULL AND prompt_sent_at <= ?", cutoff.UTC()).
		Order("id asc").
		Find(&out).Error
	return out, err
}
