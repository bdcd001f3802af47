package notify

import "testing"

func TestParseGroupCallback_Valid(t *testing.T) {
	cases := []struct {
		data     string
		wantKind string
		wantID   uint
	}{
		{"followup_yes_12", CallbackFollowUpYes, 12},
		{"followup_no_3", CallbackFollowUpNo, 3},
		{"request_rematch_901", CallbackRematch, 901},
	}
	for _, tc := range cases {
		kind, id, ok := ParseGroupCallback(tc.data)
		if !ok || kind != tc.wantKind || id != tc.wantID {
			t.Fatalf("ParseGroupCallback(%q) = %q, %d, %v", tc.data, kind, id, ok)
		}
	}
}

func TestParseGroupCallback_Invalid(t *testing.T) {
	for _, data := range []string{
		"",
		"join_coffee",
		"leave_coffee",
		"followup_yes_",
		"followup_yes_abc",
		"followup_maybe_12",
		"_12",
		"followup_yes_-3",
	} {
		if kind, id, ok := ParseGroupCallback(data); ok {
			t.Fatalf("ParseGroupCallback(%q) accepted: %q, %d", data, kind, id)
		}
	}
}

func TestChoices_RoundTripThroughParser(t *testing.T) {
	for _, row := range FollowUpChoices(42) {
		for _, ch := range row {
			kind, id, ok := ParseGroupCallback(ch.Data)
			if !ok || id != 42 {
				t.Fatalf("payload %q does not round-trip: %q, %d, %v", ch.Data, kind, id, ok)
			}
		}
	}
	kind, id, ok := ParseGroupCallback(RematchChoices(7)[0][0].Data)
	if !ok || kind != CallbackRematch || id != 7 {
		t.Fatalf("rematch payload: %q, %d, %v", kind, id, ok)
	}
}

func TestJoinChoices_BareKind(t *testing.T) {
	data := JoinChoices(5)[0][0].Data
	if data != CallbackJoin {
		t.Fatalf("join payload = %q", data)
	}
	if _, _, ok := ParseGroupCallback(data); ok {
		t.Fatalf("join payload should not parse as group-scoped")
	}
}
