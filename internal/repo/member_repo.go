// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Member
// model: creation on first contact, subscription state, and the delivery
// capability flag.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a member is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-coffee-bot/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for consistency across the service
// layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// UpsertMember inserts or refreshes a member row from the identity parts
// seen on an interaction. Name parts are only overwritten with non-empty
// values so a partial update cannot erase what we already know.
// Subscription state is never touched here.
func UpsertMember(ctx context.Context, db *gorm.DB, id int64, username, firstName, lastName string) (*domain.Member, error) {
	m := &domain.Member{
		ID:        id,
		Username:  username,
		FirstName: firstName,
		LastName:  lastName,
	}
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"username":   gorm.Expr("CASE WHEN excluded.username != '' THEN excluded.username ELSE members.username END"),
			"first_name": gorm.Expr("CASE WHEN excluded.first_name != '' THEN excluded.first_name ELSE members.first_name END"),
			"last_name":  gorm.Expr("CASE WHEN excluded.last_name != '' THEN excluded.last_name ELSE members.last_name END"),
			"updated_at": time.Now().UTC(),
		}),
	}).Create(m).Error
	if err != nil {
		return nil, err
	}
	return GetMember(ctx, db, id)
}

// GetMember fetches a member by id, or ErrNotFound if missing.
func GetMember(ctx context.Context, db *gorm.DB, id int64) (*domain.Member, error) {
	var m domain.Member
	if err := db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// Subscribe marks the member as opted in and records the opt-in time.
// Re-subscribing also restores the delivery-capability flag, since the
// member must have reached the bot to opt in again.
func Subscribe(ctx context.Context, db *gorm.DB, id int64, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Member{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"subscribed":     true,
			"subscribed_at":  now.UTC(),
			"can_receive_dm": true,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Unsubscribe clears the member's subscription flag. It is a no-op for an
// already unsubscribed member and returns ErrNotFound only when the member
// row itself is missing.
func Unsubscribe(ctx context.Context, db *gorm.DB, id int64) error {
	res := db.WithContext(ctx).
		Model(&domain.Member{}).
		Where("id = ?", id).
		Update("subscribed", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSubscribers returns all currently subscribed members ordered by
// opt-in time. The roster is community-scale (tens to low hundreds), so it
// is returned whole.
func ListSubscribers(ctx context.Context, db *gorm.DB) ([]domain.Member, error) {
	var out []domain.Member
	err := db.WithContext(ctx).
		Where("subscribed = ?", true).
		Order("subscribed_at asc").
		Find(&out).Error
	return out, err
}

// CountSubscribers returns the number of currently subscribed members.
func CountSubscribers(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Member{}).
		Where("subscribed = ?", true).
		Count(&total).Error
	return total, err
}

// SetCanReceiveDM flips the member's delivery-capability flag. It is set to
// false after a permanent delivery rejection and restored on re-subscribe.
func SetCanReceiveDM(ctx context.Context, db *gorm.DB, id int64, can bool) error {
	return db.WithContext(ctx).
		Model(&domain.Member{}).
		Where("id = ?", id).
		Update("can_receive_dm", can).Error
}
