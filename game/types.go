package game

// Player is one participant's entry in the locally rebuilt roster.
// Entries are created when a peer's first message is observed; there is
// no join handshake.
type Player struct {
	Identity    string `json:"identity"`
	Score       int    `json:"score"`
	IsAnswering bool   `json:"isAnswering"`
	HasAnswered bool   `json:"hasAnswered"`
}

// Question is produced by the judge service and broadcast verbatim.
// Immutable once created.
type Question struct {
	ID         string `json:"id"`
	Topic      string `json:"topic"`
	TopicName  string `json:"topicName"`
	Content    string `json:"content"`
	Difficulty string `json:"difficulty"`
}

// BuzzAttempt records one buzz signal. The timestamp is the sender's
// own clock; clocks are not synchronized across peers, which is an
// accepted imprecision of the race.
type BuzzAttempt struct {
	Identity  string `json:"identity"`
	Timestamp int64  `json:"timestamp"`
}

// Answer is a transcript collected for the active answerer.
type Answer struct {
	Transcript string `json:"transcript"`
}

// FollowUpQuestion is a judge-generated probe for the same answerer.
type FollowUpQuestion struct {
	Question string `json:"question"`
	Purpose  string `json:"purpose,omitempty"`
}

// ScoreDimension is one judged axis of the final score.
type ScoreDimension struct {
	Name     string `json:"name"`
	Score    int    `json:"score"`
	MaxScore int    `json:"maxScore"`
	Feedback string `json:"feedback"`
}

// FinalScore is the judge's verdict for a round.
type FinalScore struct {
	Dimensions      []ScoreDimension `json:"dimensions"`
	TotalScore      int              `json:"totalScore"`
	TotalMaxScore   int              `json:"totalMaxScore"`
	OverallFeedback string           `json:"overallFeedback"`
}
