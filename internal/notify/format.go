package notify

import (
	"fmt"
	"strings"

	"github.com/tbourn/go-coffee-bot/internal/domain"
)

// DisplayName formats a member's human-readable name from the parts we
// have. Falls back to "Someone" when even the first name is missing.
func DisplayName(m domain.Member) string {
	name := m.FirstName
	if name == "" {
		name = "Someone"
	}
	if m.LastName != "" {
		name += " " + m.LastName
	}
	return name
}

// Mention formats a member's name with their @username when available.
func Mention(m domain.Member) string {
	name := DisplayName(m)
	if m.Username != "" {
		return fmt.Sprintf("%s (@%s)", name, m.Username)
	}
	return name
}

// PartnerNames joins partner display names for the follow-up prompt,
// e.g. "Ada" or "Ada and Grace".
func PartnerNames(partners []domain.Member) string {
	names := make([]string, 0, len(partners))
	for _, p := range partners {
		names = append(names, DisplayName(p))
	}
	return strings.Join(names, " and ")
}

// MatchMessage is the DM announcing a member's match for the period.
// periodName is e.g. "June 2024"; directoryURL is an optional link to the
// community profile directory and is omitted when empty.
func MatchMessage(m domain.Member, partners []domain.Member, periodName, directoryURL string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "☕️ Your %s Coffee Match is here!\n\n", periodName)
	if len(partners) == 1 {
		fmt.Fprintf(&b, "Hey %s! You've been matched with:\n\n", m.FirstName)
		fmt.Fprintf(&b, "👤 %s\n", Mention(partners[0]))
	} else {
		fmt.Fprintf(&b, "Hey %s! You're in a group of 3 this month:\n\n", m.FirstName)
		for _, p := range partners {
			fmt.Fprintf(&b, "👤 %s\n", Mention(p))
		}
	}
	if directoryURL != "" {
		fmt.Fprintf(&b, "\nLearn more about them here:\n%s\n", directoryURL)
	}
	if len(partners) == 1 {
		b.WriteString("\nReach out and schedule your chat — new connections start with one conversation! 💛")
	} else {
		b.WriteString("\nSchedule a group chat — great conversations often start as three! 💛")
	}
	return b.String()
}

// FollowUpPrompt asks whether the member managed to meet their partner(s).
func FollowUpPrompt(m domain.Member, partnerNames string) string {
	return fmt.Sprintf(
		"👋 Hey %s!\n\nDid you get a chance to connect with %s for your Random Coffee chat?",
		m.FirstName, partnerNames,
	)
}

// RemovalNotice tells a member their subscription was paused after too many
// consecutive missed meetings.
func RemovalNotice(m domain.Member) string {
	return fmt.Sprintf(
		"👋 Hey %s,\n\n"+
			"We noticed you haven't been able to connect for the past few months, "+
			"so we've paused your Random Coffee matches.\n\n"+
			"No worries — you can rejoin anytime from the group chat when you're ready!\n\n"+
			"See you soon ☕️",
		m.FirstName,
	)
}

// WelcomeMessage confirms a member's opt-in via DM.
func WelcomeMessage(firstName string) string {
	return fmt.Sprintf(
		"🎉 You're in, %s!\n\n"+
			"Welcome to Random Coffee. On the 1st of each month, "+
			"I'll send you your match right here.\n\n"+
			"Get ready to meet someone new from our community!",
		firstName,
	)
}

// LeaveMessage confirms a member's opt-out.
func LeaveMessage(firstName string) string {
	return fmt.Sprintf(
		"👋 Got it, %s — you won't receive any more Random Coffee matches.\n\n"+
			"You can rejoin anytime from the group chat. Hope to see you back soon ☕️",
		firstName,
	)
}

// GroupAnnouncement is the channel post telling everyone matches are out.
func GroupAnnouncement(periodName string) string {
	return fmt.Sprintf(
		"☕️ %s Random Coffee matches are out!\n\n"+
			"Check your DMs to see who you've been paired with this month.\n\n"+
			"Happy connecting! 💛",
		periodName,
	)
}

// JoinInfoMessage is the pinned group post carrying the join button.
func JoinInfoMessage() string {
	return "✨ Random Coffee — Connecting Our Community ✨\n\n" +
		"Every month, get matched with another member for a casual chat.\n\n" +
		"Click below to join and start making new connections!"
}

// JoinButtonLabel renders the join button text with the live subscriber
// count when there is one.
func JoinButtonLabel(subscriberCount int64) string {
	if subscriberCount > 0 {
		return fmt.Sprintf("☕️ Join Random Coffee (%d joined)", subscriberCount)
	}
	return "☕️ Join Random Coffee"
}
