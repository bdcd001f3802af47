// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// PairHistory model. Pairs are stored in canonical order (smaller id
// first) so the unique index gives insert-if-absent semantics regardless
// of argument order.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-coffee-bot/internal/domain"
	"github.com/tbourn/go-coffee-bot/internal/match"
)

// RecordPair records that two members have been matched, if not already
// recorded. The insert is ON CONFLICT DO NOTHING against the canonical
// pair's unique index, so recording (A,B) and (B,A) stores at most one row
// and re-recording is a no-op.
func RecordPair(ctx context.Context, db *gorm.DB, x, y int64, roundID uint, matchedOn time.Time) error {
	p := match.MakePair(x, y)
	rec := &domain.PairHistory{
		MemberAID: p.A,
		MemberBID: p.B,
		MatchedOn: matchedOn.UTC(),
		RoundID:   &roundID,
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "member_a_id"}, {Name: "member_b_id"}},
			DoNothing: true,
		}).
		Create(rec).Error
}

// AllPairs loads the full pair history as the engine's in-memory set.
// The table grows by at most roster/2 rows per period, so loading it whole
// stays cheap at community scale.
func AllPairs(ctx context.Context, db *gorm.DB) (match.History, error) {
	var rows []domain.PairHistory
	if err := db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	h := make(match.History, len(rows))
	for _, r := range rows {
		h.Add(r.MemberAID, r.MemberBID)
	}
	return h, nil
}

// HaveBeenMatched reports whether two members share a history record, in
// either argument order.
func HaveBeenMatched(ctx context.Context, db *gorm.DB, x, y int64) (bool, error) {
	p := match.MakePair(x, y)
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.PairHistory{}).
		Where("member_a_id = ? AND member_b_id = ?", p.A, p.B).
		Count(&n).Error
	return n > 0, err
}
