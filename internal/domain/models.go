// Package domain defines the persistence models for members, matching
// rounds, groups, pair history, follow-ups, and meeting streaks. These
// types are mapped with GORM and form the core data layer of the Random
// Coffee bot.
package domain

import "time"

// ResponseYes and ResponseNo are the two accepted follow-up answers.
// An absent response means the member has not replied yet.
const (
	ResponseYes = "yes"
	ResponseNo  = "no"
)

// Member represents a community member who has interacted with the bot.
// Members are created on first interaction and never deleted; leaving the
// programme only clears the subscription flag.
//
// Fields:
//   - ID: the Telegram user id (stable, externally assigned).
//   - Username / FirstName / LastName: display name parts as last seen.
//   - Subscribed: whether the member currently takes part in matching.
//   - SubscribedAt: when the member last opted in.
//   - CanReceiveDM: cleared once a delivery fails with a permanent
//     rejection (member blocked the bot or deleted their account).
type Member struct {
	ID           int64      `json:"id"            gorm:"primaryKey"`
	Username     string     `json:"username"      gorm:"type:varchar(64)"`
	FirstName    string     `json:"first_name"    gorm:"type:varchar(128)"`
	LastName     string     `json:"last_name"     gorm:"type:varchar(128)"`
	Subscribed   bool       `json:"subscribed"    gorm:"not null;default:false;index"`
	SubscribedAt *time.Time `json:"subscribed_at"`
	CanReceiveDM bool       `json:"can_receive_dm" gorm:"not null;default:true"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Member.
func (Member) TableName() string { return "members" }

// GroupBinding is the single community binding for this deployment: the
// group chat the bot serves, plus the optional forum topic and the pinned
// join message it keeps up to date. The CHECK constraint pins the table to
// one row.
type GroupBinding struct {
	ID            int       `json:"id"              gorm:"primaryKey;check:id = 1"`
	ChatID        int64     `json:"chat_id"         gorm:"not null"`
	TopicID       *int      `json:"topic_id,omitempty"`
	InfoMessageID *int      `json:"info_message_id,omitempty"`
	BotUsername   string    `json:"bot_username"    gorm:"type:varchar(64)"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for GroupBinding.
func (GroupBinding) TableName() string { return "group_binding" }

// Round is the matching run for one calendar period. The unique index on
// PeriodKey is the linchpin of the idempotency protocol: the atomic
// insert-if-absent against it decides exactly one winner per period.
//
// A Round is created as an empty placeholder (zero stats) and finalized
// once matching completes. A round left at zero stats with groups attached
// indicates a crash between the two phases; recovery is a manual
// re-trigger, never automatic.
type Round struct {
	ID               uint      `json:"id"                gorm:"primaryKey"`
	PeriodKey        string    `json:"period_key"        gorm:"type:varchar(7);not null;uniqueIndex:ux_rounds_period"`
	TotalSubscribers int       `json:"total_subscribers" gorm:"not null;default:0"`
	TotalGroups      int       `json:"total_groups"      gorm:"not null;default:0"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName returns the database table name for Round.
func (Round) TableName() string { return "rounds" }

// MatchGroup is a set of two or three members matched together within a
// round. Immutable once created. Member3ID is set only for the single
// triple an odd-sized roster produces.
type MatchGroup struct {
	ID        uint      `json:"id"         gorm:"primaryKey"`
	RoundID   uint      `json:"round_id"   gorm:"not null;index"`
	Member1ID int64     `json:"member1_id" gorm:"not null"`
	Member2ID int64     `json:"member2_id" gorm:"not null"`
	Member3ID *int64    `json:"member3_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// Round is the owning matching round.
	Round Round `json:"-" gorm:"foreignKey:RoundID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for MatchGroup.
func (MatchGroup) TableName() string { return "match_groups" }

// MemberIDs returns the group's member ids (two or three of them).
func (g MatchGroup) MemberIDs() []int64 {
	ids := []int64{g.Member1ID, g.Member2ID}
	if g.Member3ID != nil {
		ids = append(ids, *g.Member3ID)
	}
	return ids
}

// PairHistory records that two members have ever been grouped together.
// Rows are stored with MemberAID < MemberBID so the unique index enforces
// at most one record per unordered pair. The table grows monotonically and
// is never pruned; it is the matching engine's memory.
type PairHistory struct {
	ID        uint      `json:"id"          gorm:"primaryKey"`
	MemberAID int64     `json:"member_a_id" gorm:"not null;uniqueIndex:ux_pair_history,priority:1"`
	MemberBID int64     `json:"member_b_id" gorm:"not null;uniqueIndex:ux_pair_history,priority:2"`
	MatchedOn time.Time `json:"matched_on"  gorm:"not null"`
	RoundID   *uint     `json:"round_id,omitempty" gorm:"index"`
}

// TableName returns the database table name for PairHistory.
func (PairHistory) TableName() string { return "pair_history" }

// FollowUp is one prompt-and-response about whether a group actually met,
// per (group, member). The unique index guarantees at most one row per
// pair; the row is created only after the prompt was confirmed delivered.
//
// Response is nil until the member answers (or the auto-timeout sweep
// synthesizes a "no" after the grace period).
type FollowUp struct {
	ID           uint       `json:"id"             gorm:"primaryKey"`
	GroupID      uint       `json:"group_id"       gorm:"not null;index;uniqueIndex:ux_followups_group_member,priority:1"`
	MemberID     int64      `json:"member_id"      gorm:"not null;uniqueIndex:ux_followups_group_member,priority:2"`
	PromptSentAt time.Time  `json:"prompt_sent_at" gorm:"not null"`
	Response     *string    `json:"response,omitempty" gorm:"type:varchar(8)"`
	RespondedAt  *time.Time `json:"responded_at,omitempty"`

	// Group is the match this follow-up asks about.
	Group MatchGroup `json:"-" gorm:"foreignKey:GroupID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for FollowUp.
func (FollowUp) TableName() string { return "follow_ups" }

// Answered reports whether the member has responded (explicitly or via the
// auto-timeout sweep).
func (f FollowUp) Answered() bool { return f.Response != nil }

// MeetingStreak tracks a member's consecutive missed meetings. LastPeriod
// records the period the counter was last updated for, so re-processing the
// same period cannot double-increment. The inactivity sweep reads the
// counter to decide removal; removal resets it so a future resubscribe
// starts clean.
type MeetingStreak struct {
	MemberID          int64     `json:"member_id"          gorm:"primaryKey"`
	ConsecutiveMisses int       `json:"consecutive_misses" gorm:"not null;default:0"`
	LastPeriod        string    `json:"last_period"        gorm:"type:varchar(7)"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName returns the database table name for MeetingStreak.
func (MeetingStreak) TableName() string { return "meeting_streaks" }

// PeriodKey formats t as the calendar-period key rounds are keyed by,
// e.g. "2024-06".
func PeriodKey(t time.Time) string { return t.Format("2006-01") }

// PeriodName formats t as the human-readable period name used in outbound
// messages, e.g. "June 2024".
func PeriodName(t time.Time) string { return t.Format("January 2006") }
