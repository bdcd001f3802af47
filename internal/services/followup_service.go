// Package services – FollowUpService
//
// This file implements the follow-up flow: prompting every matched member
// a week after matching, recording yes/no responses (from button presses
// or the auto-timeout sweep) and feeding them into the per-member
// consecutive-miss streak.
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

// FollowUpSummary reports one prompt run.
type FollowUpSummary struct {
	PeriodKey string `json:"period_key"`
	Groups    int    `json:"groups"`
	Sent      int    `json:"sent"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

// FollowUpService sends meeting follow-up prompts and tracks responses.
type FollowUpService struct {
	DB      *gorm.DB
	Gateway notify.Gateway
	Log     zerolog.Logger

	// Now is a clock seam; defaults to time.Now via NewFollowUpService.
	Now func() time.Time
}

// NewFollowUpService constructs a FollowUpService on the wall clock.
func NewFollowUpService(db *gorm.DB, gw notify.Gateway, log zerolog.Logger) *FollowUpService {
	return &FollowUpService{DB: db, Gateway: gw, Log: log, Now: time.Now}
}

// SendPrompts delivers the yes/no prompt to every member of the current
// period's groups who does not already have a follow-up record. The record
// is created only after confirmed delivery, so a failed send is retried by
// the next run instead of being silently counted as asked.
//
// A missing round for the period is a quiet no-op: matching has not
// happened (or was skipped), so there is nothing to ask about.
func (s *FollowUpService) SendPrompts(ctx context.Context) (*FollowUpSummary, error) {
	now := s.Now()
	periodKey := domain.PeriodKey(now)
	sum := &FollowUpSummary{PeriodKey: periodKey}

	round, err := repo.GetRound(ctx, s.DB, periodKey)
	if errors.Is(err, repo.ErrNotFound) {
		s.Log.Info().Str("period", periodKey).Msg("no round this period, skipping follow-ups")
		return sum, nil
	}
	if err != nil {
		return nil, err
	}

	groups, err := repo.GroupsForRound(ctx, s.DB, round.ID)
	if err != nil {
		return nil, err
	}
	sum.Groups = len(groups)

	for _, grp := range groups {
		members, err := s.loadMembers(ctx, grp.MemberIDs())
		if err != nil {
			return nil, err
		}
		for i, m := range members {
			if _, err := repo.GetFollowUp(ctx, s.DB, grp.ID, m.ID); err == nil {
				sum.Skipped++
				continue
			} else if !errors.Is(err, repo.ErrNotFound) {
				return nil, err
			}

			partners := make([]domain.Member, 0, len(members)-1)
			for j, p := range members {
				if j != i {
					partners = append(partners, p)
				}
			}
			text := notify.FollowUpPrompt(m, notify.PartnerNames(partners))
			outcome, derr := s.Gateway.Deliver(ctx, m.ID, text, notify.FollowUpChoices(grp.ID))
			switch outcome {
			case notify.Delivered:
				if err := repo.UpsertFollowUp(ctx, s.DB, grp.ID, m.ID, now); err != nil {
					return nil, err
				}
				sum.Sent++
			case notify.PermanentRejection:
				sum.Failed++
				if err := repo.SetCanReceiveDM(ctx, s.DB, m.ID, false); err != nil {
					s.Log.Error().Err(err).Int64("member", m.ID).Msg("clear delivery flag")
				}
			default:
				sum.Failed++
				s.Log.Error().Err(derr).Int64("member", m.ID).Msg("follow-up prompt failed")
			}
		}
	}

	s.Log.Info().Str("period", periodKey).Int("sent", sum.Sent).Int("failed", sum.Failed).
		Msg("follow-up prompts done")
	return sum, nil
}

// RecordResponse stores a member's answer for a group and updates their
// streak: reset on "yes", one increment per period on "no". The upsert is
// idempotent; last write wins, so a later "yes" overrides a
// sweep-synthesized "no" and repairs the streak. Answers for a group that
// does not exist (a stale button from a deleted round) get
// ErrGroupNotFound.
func (s *FollowUpService) RecordResponse(ctx context.Context, groupID uint, memberID int64, response string) error {
	if response != domain.ResponseYes && response != domain.ResponseNo {
		return ErrInvalidResponse
	}
	if _, err := repo.GetGroup(ctx, s.DB, groupID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrGroupNotFound
		}
		return err
	}
	now := s.Now()

	err := repo.RecordFollowUpResponse(ctx, s.DB, groupID, memberID, response, now)
	if errors.Is(err, repo.ErrNotFound) {
		// No prompt row (e.g. an admin test flow). Create it, then record.
		if err := repo.UpsertFollowUp(ctx, s.DB, groupID, memberID, now); err != nil {
			return err
		}
		err = repo.RecordFollowUpResponse(ctx, s.DB, groupID, memberID, response, now)
	}
	if err != nil {
		return err
	}

	periodKey := domain.PeriodKey(now)
	if response == domain.ResponseYes {
		s.Log.Info().Int64("member", memberID).Msg("member met their match, streak reset")
		return repo.ResetStreak(ctx, s.DB, memberID, periodKey)
	}
	s.Log.Info().Int64("member", memberID).Msg("member missed their meeting")
	return repo.IncrementMiss(ctx, s.DB, memberID, periodKey)
}

// SweepUnanswered synthesizes a "no" for every follow-up still unanswered
// after the grace period, feeding it through the same streak path as an
// explicit reply. Run before the inactivity pass so that silence counts
// exactly like a decline.
func (s *FollowUpService) SweepUnanswered(ctx context.Context, grace time.Duration) (int, error) {
	cutoff := s.Now().Add(-grace)
	stale, err := repo.UnansweredFollowUps(ctx, s.DB, cutoff)
	if err != nil {
		return 0, err
	}
	processed := 0
	for _, f := range stale {
		if err := s.RecordResponse(ctx, f.GroupID, f.MemberID, domain.ResponseNo); err != nil {
			return processed, err
		}
		processed++
	}
	if processed > 0 {
		s.Log.Info().Int("count", processed).Msg("auto-marked unanswered follow-ups as no")
	}
	return processed, nil
}

// loadMembers resolves group member ids to member rows, skipping ids that
// no longer resolve (should not happen; members are never deleted).
func (s *FollowUpService) loadMembers(ctx context.Context, ids []int64) ([]domain.Member, error) {
	out := make([]domain.Member, 0, len(ids))
	for _, id := range ids {
		m, err := repo.GetMember(ctx, s.DB, id)
		if errors.Is(err, repo.ErrNotFound) {
			s.Log.Warn().Int64("member", id).Msg("group references missing member")
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, nil
}
