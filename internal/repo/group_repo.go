// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// MatchGroup model. Groups are immutable once created; only reads follow.
package repo

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-coffee-bot/internal/domain"
)

// CreateGroup inserts a group of two or three members for the given round.
// memberIDs must contain exactly 2 or 3 ids; anything else is a programming
// error and is rejected.
func CreateGroup(ctx context.Context, db *gorm.DB, roundID uint, memberIDs []int64) (*domain.MatchGroup, error) {
	if len(memberIDs) < 2 || len(memberIDs) > 3 {
		return nil, fmt.Errorf("group must have 2 or 3 members, got %d", len(memberIDs))
	}
	g := &domain.MatchGroup{
		RoundID:   roundID,
		Member1ID: memberIDs[0],
		Member2ID: memberIDs[1],
		CreatedAt: time.Now().UTC(),
	}
	if len(memberIDs) == 3 {
		third := memberIDs[2]
		g.Member3ID = &third
	}
	if err := db.WithContext(ctx).Create(g).Error; err != nil {
		return nil, err
	}
	return g, nil
}

// GroupsForRound returns all groups produced by a round, in insertion order.
func GroupsForRound(ctx context.Context, db *gorm.DB, roundID uint) ([]domain.MatchGroup, error) {
	var out []domain.MatchGroup
	err := db.WithContext(ctx).
		Where("round_id = ?", roundID).
		Order("id asc").
		Find(&out).Error
	return out, err
}

// GetGroup fetches a single group by id, or ErrNotFound.
func GetGroup(ctx context.Context, db *gorm.DB, id uint) (*domain.MatchGroup, error) {
	var g domain.MatchGroup
	if err := db.WithContext(ctx).First(&g, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

// GroupForMember returns the group containing memberID within a round, or
// ErrNotFound when the member was not matched that round.
func GroupForMember(ctx context.Context, db *gorm.DB, roundID uint, memberID int64) (*domain.MatchGroup, error) {
	var g domain.MatchGroup
	err := db.WithContext(ctx).
		Where("round_id = ? AND (member1_id = ? OR member2_id = ? OR member3_id = ?)",
			roundID, memberID, memberID, memberID).
		First(&g).Error
	if err != nil {
		return nil, err
	}
	return &g, nil
}
