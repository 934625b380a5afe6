package chat

import "testing"

func TestConversationKeyOrderIndependent(t *testing.T) {
	cases := []struct {
		a, b int64
		want string
	}{
		{1, 2, "chat_1_2"},
		{2, 1, "chat_1_2"},
		{42, 7, "chat_7_42"},
		{7, 42, "chat_7_42"},
		{5, 5, "chat_5_5"},
	}
	for _, tc := range cases {
		if got := ConversationKey(tc.a, tc.b); got != tc.want {
			t.Errorf("ConversationKey(%d, %d) = %q, want %q", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestConversationKeyDistinctPairs(t *testing.T) {
	// Numeric ordering, not string ordering: user 10 sorts after user 2.
	if got := ConversationKey(10, 2); got != "chat_2_10" {
		t.Errorf("ConversationKey(10, 2) = %q, want chat_2_10", got)
	}
	if ConversationKey(1, 2) == ConversationKey(1, 3) {
		t.Error("different pairs must produce different keys")
	}
}
