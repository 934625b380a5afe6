package protocol

import (
	"encoding/json"
	"testing"
)

// ---------------------------------------------------------------------------
// Test: Parsing a valid send_message message
// ---------------------------------------------------------------------------

func TestParseClientMessage_SendMessage(t *testing.T) {
	input := []byte(`{"type":"send_message","receiver_id":42,"content":"Hello!","kind":"text"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeSendMessage {
		t.Fatalf("expected type %q, got %q", TypeSendMessage, msgType)
	}

	sm, ok := msg.(SendMessageMsg)
	if !ok {
		t.Fatalf("expected SendMessageMsg, got %T", msg)
	}
	if sm.ReceiverID != 42 {
		t.Errorf("expected receiver_id 42, got %d", sm.ReceiverID)
	}
	if sm.Content != "Hello!" {
		t.Errorf("expected content %q, got %q", "Hello!", sm.Content)
	}
	if sm.Kind != "text" {
		t.Errorf("expected kind %q, got %q", "text", sm.Kind)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing a mark_read message with and without an id subset
// ---------------------------------------------------------------------------

func TestParseClientMessage_MarkRead(t *testing.T) {
	input := []byte(`{"type":"mark_read","peer_id":7,"message_ids":[1,2,3]}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeMarkRead {
		t.Fatalf("expected type %q, got %q", TypeMarkRead, msgType)
	}

	mr, ok := msg.(MarkReadMsg)
	if !ok {
		t.Fatalf("expected MarkReadMsg, got %T", msg)
	}
	if mr.PeerID != 7 {
		t.Errorf("expected peer_id 7, got %d", mr.PeerID)
	}
	if len(mr.MessageIDs) != 3 {
		t.Fatalf("expected 3 message ids, got %d", len(mr.MessageIDs))
	}
}

func TestParseClientMessage_MarkReadAll(t *testing.T) {
	input := []byte(`{"type":"mark_read","peer_id":7}`)

	_, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mr := msg.(MarkReadMsg)
	if mr.MessageIDs != nil {
		t.Errorf("expected nil message_ids for mark-all, got %v", mr.MessageIDs)
	}
}

// ---------------------------------------------------------------------------
// Test: Creating a new_message server message
// ---------------------------------------------------------------------------

func TestNewServerMessage_NewMessage(t *testing.T) {
	payload := NewMessageMsg{
		Message: MessageBody{
			ID:         101,
			SenderID:   1,
			ReceiverID: 2,
			Content:    "hi there",
			Kind:       "text",
			CreatedAt:  1700000000,
		},
	}

	data, err := NewServerMessage(TypeNewMessage, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Decode back and verify structure.
	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}

	if result["type"] != TypeNewMessage {
		t.Errorf("expected type %q, got %v", TypeNewMessage, result["type"])
	}

	msg, ok := result["message"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected message to be an object, got %T", result["message"])
	}
	if id, _ := msg["id"].(float64); int64(id) != 101 {
		t.Errorf("expected message id 101, got %v", msg["id"])
	}
	if msg["content"] != "hi there" {
		t.Errorf("expected content %q, got %v", "hi there", msg["content"])
	}
	if _, present := msg["edited_at"]; present {
		t.Error("expected edited_at to be omitted for a never-edited message")
	}
}

// ---------------------------------------------------------------------------
// Test: messages_read keeps an explicit null for a mark-all transition
// ---------------------------------------------------------------------------

func TestNewServerMessage_MessagesReadNull(t *testing.T) {
	data, err := NewServerMessage(TypeMessagesRead, MessagesReadMsg{ReaderID: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}
	ids, present := result["message_ids"]
	if !present {
		t.Fatal("expected message_ids key to be present")
	}
	if ids != nil {
		t.Errorf("expected message_ids to be null, got %v", ids)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing an unknown message type returns an error
// ---------------------------------------------------------------------------

func TestParseClientMessage_UnknownType(t *testing.T) {
	input := []byte(`{"type":"unknown_type","data":"something"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err == nil {
		t.Fatal("expected an error for unknown message type, got nil")
	}
	if msg != nil {
		t.Errorf("expected nil message for unknown type, got %v", msg)
	}
	if msgType != "unknown_type" {
		t.Errorf("expected returned type %q, got %q", "unknown_type", msgType)
	}
}

// ---------------------------------------------------------------------------
// Test: Envelope UnmarshalJSON edge cases
// ---------------------------------------------------------------------------

func TestEnvelope_MissingType(t *testing.T) {
	input := []byte(`{"data":"no type field"}`)
	var env Envelope
	if err := json.Unmarshal(input, &env); err == nil {
		t.Fatal("expected error for missing type field, got nil")
	}
}

func TestEnvelope_InvalidJSON(t *testing.T) {
	input := []byte(`{invalid json}`)
	var env Envelope
	if err := json.Unmarshal(input, &env); err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing all client message types succeeds
// ---------------------------------------------------------------------------

func TestParseClientMessage_AllTypes(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		wantType string
	}{
		{"join_chat", `{"type":"join_chat","peer_id":2}`, TypeJoinChat},
		{"leave_chat", `{"type":"leave_chat","peer_id":2}`, TypeLeaveChat},
		{"send_message", `{"type":"send_message","receiver_id":2,"content":"hi"}`, TypeSendMessage},
		{"typing_start", `{"type":"typing_start","peer_id":2}`, TypeTypingStart},
		{"typing_stop", `{"type":"typing_stop","peer_id":2}`, TypeTypingStop},
		{"mark_read", `{"type":"mark_read","peer_id":2}`, TypeMarkRead},
		{"ping", `{"type":"ping"}`, TypePing},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msgType, msg, err := ParseClientMessage([]byte(tc.input))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msgType != tc.wantType {
				t.Errorf("expected type %q, got %q", tc.wantType, msgType)
			}
			if msg == nil {
				t.Error("expected non-nil message")
			}
		})
	}
}
