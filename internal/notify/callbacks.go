package notify

import (
	"fmt"
	"strconv"
	"strings"
)

// Callback kinds carried in button payloads. The payload format is
// "<kind>_<group id>" for match-scoped buttons and a bare kind for the
// join/leave flow.
const (
	CallbackFollowUpYes = "followup_yes"
	CallbackFollowUpNo  = "followup_no"
	CallbackRematch     = "request_rematch"
	CallbackJoin        = "join_coffee"
	CallbackLeave       = "leave_coffee"
)

// FollowUpChoices builds the yes/no button row for a follow-up prompt.
func FollowUpChoices(groupID uint) [][]Choice {
	return [][]Choice{{
		{Label: "Yes, we met! ✅", Data: fmt.Sprintf("%s_%d", CallbackFollowUpYes, groupID)},
		{Label: "Not yet ❌", Data: fmt.Sprintf("%s_%d", CallbackFollowUpNo, groupID)},
	}}
}

// RematchChoices builds the "Request Different Match" button row attached
// to match notifications.
func RematchChoices(groupID uint) [][]Choice {
	return [][]Choice{{
		{Label: "Request Different Match", Data: fmt.Sprintf("%s_%d", CallbackRematch, groupID)},
	}}
}

// JoinChoices builds the join button row for the pinned group message.
func JoinChoices(subscriberCount int64) [][]Choice {
	return [][]Choice{{
		{Label: JoinButtonLabel(subscriberCount), Data: CallbackJoin},
	}}
}

// ParseGroupCallback splits a match-scoped payload into its kind and group
// id. ok is false for payloads that do not match "<kind>_<number>".
func ParseGroupCallback(data string) (kind string, groupID uint, ok bool) {
	i := strings.LastIndexByte(data, '_')
	if i <= 0 || i == len(data)-1 {
		return "", 0, false
	}
	kind = data[:i]
	switch kind {
	case CallbackFollowUpYes, CallbackFollowUpNo, CallbackRematch:
	default:
		return "", 0, false
	}
	n, err := strconv.ParseUint(data[i+1:], 10, 32)
	if err != nil {
		return "", 0, false
	}
	return kind, uint(n), true
}
