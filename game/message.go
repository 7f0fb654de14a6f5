package game

import (
	"encoding/json"
	"errors"
	"time"
)

// MessageType discriminates game messages on the wire.
type MessageType string

const (
	TypeStartGame         MessageType = "START_GAME"
	TypeConfigureRounds   MessageType = "CONFIGURE_ROUNDS"
	TypeSetContent        MessageType = "SET_CONTENT"
	TypeNewQuestion       MessageType = "NEW_QUESTION"
	TypeBuzzIn            MessageType = "BUZZ_IN"
	TypeBuzzWinner        MessageType = "BUZZ_WINNER"
	TypeAnswerSubmitted   MessageType = "ANSWER_SUBMITTED"
	TypeFollowUpReady     MessageType = "FOLLOWUP_READY"
	TypeFollowUpSubmitted MessageType = "FOLLOWUP_ANSWER_SUBMITTED"
	TypeScoreReady        MessageType = "SCORE_READY"
	TypeNextRound         MessageType = "NEXT_ROUND"
	TypeEndGame           MessageType = "END_GAME"
)

// Message is the envelope every game event travels in. It is created
// on a local action, broadcast, decoded by peers, applied, and then
// discarded; the only durable state is the Session it mutates.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"timestamp"` // unix milliseconds, sender's clock
	Sender    string          `json:"sender"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Payloads, one struct per message type that carries one.

type ConfigureRoundsPayload struct {
	TotalRounds int `json:"totalRounds"`
}

type SetContentPayload struct {
	ContentID string `json:"contentId"`
}

type NewQuestionPayload struct {
	Question Question `json:"question"`
}

type BuzzInPayload struct {
	Timestamp int64 `json:"timestamp"` // origin buzz time, sender's clock
}

type BuzzWinnerPayload struct {
	Winner string `json:"winner"`
}

type AnswerSubmittedPayload struct {
	Transcript string `json:"transcript"`
	Answerer   string `json:"answerer"`
}

type FollowUpReadyPayload struct {
	Question FollowUpQuestion `json:"question"`
}

type FollowUpSubmittedPayload struct {
	Transcript string `json:"transcript"`
}

type ScoreReadyPayload struct {
	FinalScore FinalScore `json:"finalScore"`
	Answerer   string     `json:"answerer"`
}

// NewMessage stamps an envelope with the current wall clock.
func NewMessage(t MessageType, sender string, payload any) (Message, error) {
	msg := Message{
		Type:      t,
		Timestamp: time.Now().UnixMilli(),
		Sender:    sender,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Message{}, err
		}
		msg.Payload = raw
	}
	return msg, nil
}

// Encode serializes a message for broadcast.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMessage parses an incoming frame. Frames that do not carry a
// type or sender are rejected so the caller can drop them silently.
func DecodeMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, err
	}
	if msg.Type == "" || msg.Sender == "" {
		return Message{}, errors.New("game: message missing type or sender")
	}
	return msg, nil
}
