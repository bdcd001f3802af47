// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// GroupBinding singleton: the one community this deployment serves.
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-coffee-bot/internal/domain"
)

// GetBinding returns the group binding, or ErrNotFound when /setup has not
// run yet.
func GetBinding(ctx context.Context, db *gorm.DB) (*domain.GroupBinding, error) {
	var b domain.GroupBinding
	if err := db.WithContext(ctx).First(&b, "id = 1").Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// SetBinding creates or replaces the group binding. The row id is pinned
// to 1; running /setup again simply re-points the binding.
func SetBinding(ctx context.Context, db *gorm.DB, b *domain.GroupBinding) error {
	b.ID = 1
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"chat_id", "topic_id", "info_message_id", "bot_username", "updated_at"}),
		}).
		Create(b).Error
}

// UpdateInfoMessage records the id of the pinned join message (and its
// topic) after it is posted or re-posted.
func UpdateInfoMessage(ctx context.Context, db *gorm.DB, messageID int, topicID *int) error {
	return db.WithContext(ctx).
		Model(&domain.GroupBinding{}).
		Where("id = 1").
		Updates(map[string]interface{}{
			"info_message_id": messageID,
			"topic_id":        topicID,
		}).Error
}
