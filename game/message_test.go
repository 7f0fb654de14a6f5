package game

import (
	"encoding/json"
	"testing"
)

func TestMessageRoundTrip(t *testing.T) {
	m, err := NewMessage(TypeBuzzIn, "alice", BuzzInPayload{Timestamp: 1234})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if m.Timestamp == 0 {
		t.Fatal("envelope not stamped")
	}

	data, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := DecodeMessage(data)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if got.Type != TypeBuzzIn || got.Sender != "alice" {
		t.Fatalf("got type=%s sender=%s", got.Type, got.Sender)
	}

	var p BuzzInPayload
	if err := json.Unmarshal(got.Payload, &p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if p.Timestamp != 1234 {
		t.Fatalf("timestamp = %d, want 1234", p.Timestamp)
	}
}

func TestDecodeMessageRejectsGarbage(t *testing.T) {
	cases := []string{
		``,
		`not json`,
		`{}`,
		`{"type":"BUZZ_IN"}`,
		`{"sender":"alice"}`,
	}
	for _, c := range cases {
		if _, err := DecodeMessage([]byte(c)); err == nil {
			t.Fatalf("DecodeMessage(%q) accepted garbage", c)
		}
	}
}
