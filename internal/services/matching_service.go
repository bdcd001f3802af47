// Package services – MatchingService
//
// This file implements the monthly matching run: the once-per-period
// idempotency protocol around the round ledger, the call into the matching
// engine, persistence of the produced groups and their pair history, and
// per-member delivery with a thin per-recipient error boundary.
package services

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-coffee-bot/internal/domain"
	"github.com/tbourn/go-coffee-bot/internal/match"
	"github.com/tbourn/go-coffee-bot/internal/notify"
	"github.com/tbourn/go-coffee-bot/internal/repo"
)

// Match run statuses surfaced to admins and the ops API. AlreadyDone and
// NotEnough are expected outcomes, not failures.
const (
	StatusMatched     = "matched"
	StatusAlreadyDone = "already_done"
	StatusNotEnough   = "not_enough_subscribers"
)

// MatchSummary is the final report of one matching run: counts an admin
// sees after a manual trigger, and what the scheduled job logs.
type MatchSummary struct {
	Status           string `json:"status"`
	PeriodKey        string `json:"period_key"`
	TotalSubscribers int    `json:"total_subscribers"`
	TotalGroups      int    `json:"total_groups"`
	RepeatPairs      int    `json:"repeat_pairs"`
	Delivered        int    `json:"delivered"`
	Failed           int    `json:"failed"`
}

// MatchingService runs the monthly matching process. It owns no state
// beyond its dependencies; all cross-run memory lives in the store.
type MatchingService struct {
	DB      *gorm.DB
	Gateway notify.Gateway
	Log     zerolog.Logger

	// DirectoryURL optionally links match notifications to a community
	// profile directory.
	DirectoryURL string

	// Rand drives the engine's shuffle. Injected so tests can be
	// deterministic.
	Rand *rand.Rand

	// Now is a clock seam; defaults to time.Now via NewMatchingService.
	Now func() time.Time
}

// NewMatchingService constructs a MatchingService with a time-seeded rng
// and wall clock.
func NewMatchingService(db *gorm.DB, gw notify.Gateway, directoryURL string, log zerolog.Logger) *MatchingService {
	return &MatchingService{
		DB:           db,
		Gateway:      gw,
		Log:          log,
		DirectoryURL: directoryURL,
		Rand:         rand.New(rand.NewSource(time.Now().UnixNano())),
		Now:          time.Now,
	}
}

// Run executes matching for the current period.
//
// Sequence: atomically claim the period's round → fetch the roster → with
// fewer than two subscribers, finalize zero stats and report NotEnough →
// otherwise run the engine, persist groups and pair history, finalize
// stats, DM every member, and post the group announcement.
//
// Idempotency: a concurrent or retried trigger loses the atomic insert,
// gets StatusAlreadyDone with the stored stats, and performs no work. If
// the process dies between claiming the round and finalizing it, the
// period stays claimed with zero stats; recovery is manual, by design.
func (s *MatchingService) Run(ctx context.Context) (*MatchSummary, error) {
	now := s.Now()
	periodKey := domain.PeriodKey(now)
	periodName := domain.PeriodName(now)

	round, err := repo.CreateRoundAtomic(ctx, s.DB, periodKey)
	if errors.Is(err, repo.ErrRoundExists) {
		existing, gerr := repo.GetRound(ctx, s.DB, periodKey)
		if gerr != nil {
			return nil, gerr
		}
		s.Log.Info().Str("period", periodKey).Msg("matching already done for period")
		return &MatchSummary{
			Status:           StatusAlreadyDone,
			PeriodKey:        periodKey,
			TotalSubscribers: existing.TotalSubscribers,
			TotalGroups:      existing.TotalGroups,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	subscribers, err := repo.ListSubscribers(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	if len(subscribers) < 2 {
		if err := repo.UpdateRoundStats(ctx, s.DB, round.ID, len(subscribers), 0); err != nil {
			return nil, err
		}
		s.Log.Info().Str("period", periodKey).Int("subscribers", len(subscribers)).
			Msg("not enough subscribers for matching")
		return &MatchSummary{
			Status:           StatusNotEnough,
			PeriodKey:        periodKey,
			TotalSubscribers: len(subscribers),
		}, nil
	}

	history, err := repo.AllPairs(ctx, s.DB)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]domain.Member, len(subscribers))
	ids := make([]int64, 0, len(subscribers))
	for _, m := range subscribers {
		byID[m.ID] = m
		ids = append(ids, m.ID)
	}

	groups, repeats := match.GenerateGroups(ids, history, s.Rand)
	if repeats > 0 {
		s.Log.Info().Str("period", periodKey).Int("repeat_pairs", repeats).
			Msg("history exhausted for some members, repeats accepted")
	}

	persisted := make([]domain.MatchGroup, 0, len(groups))
	for _, g := range groups {
		grp, err := repo.CreateGroup(ctx, s.DB, round.ID, g.Members)
		if err != nil {
			return nil, err
		}
		for i := 0; i < len(g.Members); i++ {
			for j := i + 1; j < len(g.Members); j++ {
				if err := repo.RecordPair(ctx, s.DB, g.Members[i], g.Members[j], round.ID, now); err != nil {
					return nil, err
				}
			}
		}
		persisted = append(persisted, *grp)
	}

	if err := repo.UpdateRoundStats(ctx, s.DB, round.ID, len(subscribers), len(persisted)); err != nil {
		return nil, err
	}

	delivered, failed := s.notifyGroups(ctx, persisted, byID, periodName)
	if err := s.announce(ctx, periodName); err != nil {
		if errors.Is(err, ErrNotConfigured) {
			s.Log.Info().Str("period", periodKey).Msg("no group binding, skipping announcement")
		} else {
			s.Log.Warn().Err(err).Msg("could not post group announcement")
		}
	}

	s.Log.Info().
		Str("period", periodKey).
		Int("subscribers", len(subscribers)).
		Int("groups", len(persisted)).
		Int("delivered", delivered).
		Int("failed", failed).
		Msg("matching complete")

	return &MatchSummary{
		Status:           StatusMatched,
		PeriodKey:        periodKey,
		TotalSubscribers: len(subscribers),
		TotalGroups:      len(persisted),
		RepeatPairs:      repeats,
		Delivered:        delivered,
		Failed:           failed,
	}, nil
}

// notifyGroups DMs every member of every group. A failed delivery to one
// member never aborts the loop: a single blocked chat must not stop the
// whole run.
func (s *MatchingService) notifyGroups(ctx context.Context, groups []domain.MatchGroup, byID map[int64]domain.Member, periodName string) (delivered, failed int) {
	for _, grp := range groups {
		members := grp.MemberIDs()
		for _, id := range members {
			m, ok := byID[id]
			if !ok {
				continue
			}
			partners := make([]domain.Member, 0, len(members)-1)
			for _, pid := range members {
				if pid != id {
					partners = append(partners, byID[pid])
				}
			}
			text := notify.MatchMessage(m, partners, periodName, s.DirectoryURL)
			outcome, err := s.Gateway.Deliver(ctx, m.ID, text, notify.RematchChoices(grp.ID))
			switch outcome {
			case notify.Delivered:
				delivered++
			case notify.PermanentRejection:
				failed++
				s.Log.Warn().Int64("member", m.ID).Msg("member unreachable, clearing delivery flag")
				if derr := repo.SetCanReceiveDM(ctx, s.DB, m.ID, false); derr != nil {
					s.Log.Error().Err(derr).Int64("member", m.ID).Msg("clear delivery flag")
				}
			default:
				failed++
				s.Log.Error().Err(err).Int64("member", m.ID).Msg("match notification failed")
			}
		}
	}
	return delivered, failed
}

// announce posts the group-channel summary. ErrNotConfigured means /setup
// has never bound a group; the caller decides how loudly to report it. The
// matches themselves stand regardless.
func (s *MatchingService) announce(ctx context.Context, periodName string) error {
	binding, err := repo.GetBinding(ctx, s.DB)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrNotConfigured
	}
	if err != nil {
		return err
	}
	if _, err := s.Gateway.Announce(ctx, binding.ChatID, binding.TopicID, notify.GroupAnnouncement(periodName)); err != nil {
		return err
	}
	return nil
}
