package game

import "encoding/json"

// Rules are the fixed per-game parameters every replica shares.
// Countdowns are expressed in ticks; the engine decides how long a
// tick lasts, so tests can run them fast.
type Rules struct {
	QuestionTicks int // QUESTION_DISPLAY countdown before buzzing opens
	AnswerTicks   int // answer window shown during ANSWERING
	FollowUpTicks int // window for each follow-up answer
	TotalRounds   int // default, overridden by CONFIGURE_ROUNDS
}

// DefaultRules mirror the stock game: 10 ticks to read the question,
// 90 to answer, 30 per follow-up, five rounds.
func DefaultRules() Rules {
	return Rules{
		QuestionTicks: 10,
		AnswerTicks:   90,
		FollowUpTicks: 30,
		TotalRounds:   5,
	}
}

// Effect tells the engine what timer, if any, a state transition
// requires. The reducer itself never touches the clock.
type Effect int

const (
	EffectNone Effect = iota
	EffectQuestionCountdown
	EffectBuzzWindow
	EffectAnswerCountdown
	EffectFollowUpCountdown
)

// Session is one peer's replica of the shared game state. It is not
// safe for concurrent use; the engine serializes access to it.
type Session struct {
	Stage           Stage
	Active          bool
	ContentID       string
	CurrentQuestion *Question
	CurrentAnswerer string
	BuzzAttempts    []BuzzAttempt
	Players         map[string]*Player
	Answer          *Answer
	FollowUps       []FollowUpQuestion
	FollowUpAnswers []Answer
	FinalScore      *FinalScore
	Countdown       int
	CurrentRound    int
	TotalRounds     int

	rules Rules
}

// NewSession returns an idle replica in WAITING.
func NewSession(rules Rules) *Session {
	return &Session{
		Stage:       StageWaiting,
		Players:     make(map[string]*Player),
		TotalRounds: rules.TotalRounds,
		rules:       rules,
	}
}

// RegisterPlayer adds an identity to the roster if it is new. Every
// observed message sender passes through here, so the roster converges
// on the set of peers that have spoken.
func (s *Session) RegisterPlayer(identity string) *Player {
	if identity == "" {
		return nil
	}
	if p, ok := s.Players[identity]; ok {
		return p
	}
	p := &Player{Identity: identity}
	s.Players[identity] = p
	return p
}

// Apply is the reducer: it folds one message into the replica and
// reports the timer the engine should arm. It is total over
// (stage, message type); any combination not handled below is a no-op,
// never an error. Local actions and replayed remote messages go
// through the exact same path.
func (s *Session) Apply(msg Message) Effect {
	s.RegisterPlayer(msg.Sender)

	switch msg.Type {
	case TypeStartGame:
		return s.applyStartGame()
	case TypeConfigureRounds:
		return s.applyConfigureRounds(msg)
	case TypeSetContent:
		return s.applySetContent(msg)
	case TypeNewQuestion:
		return s.applyNewQuestion(msg)
	case TypeBuzzIn:
		return s.applyBuzzIn(msg)
	case TypeBuzzWinner:
		return s.applyBuzzWinner(msg)
	case TypeAnswerSubmitted:
		return s.applyAnswerSubmitted(msg)
	case TypeFollowUpReady:
		return s.applyFollowUpReady(msg)
	case TypeFollowUpSubmitted:
		return s.applyFollowUpSubmitted(msg)
	case TypeScoreReady:
		return s.applyScoreReady(msg)
	case TypeNextRound:
		return s.applyNextRound()
	case TypeEndGame:
		return s.applyEndGame()
	}
	return EffectNone
}

func (s *Session) applyStartGame() Effect {
	if s.Stage != StageWaiting {
		return EffectNone
	}
	s.Active = true
	s.CurrentRound = 1
	return EffectNone
}

func (s *Session) applyConfigureRounds(msg Message) Effect {
	if s.Stage != StageWaiting {
		return EffectNone
	}
	var p ConfigureRoundsPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil || p.TotalRounds < 1 {
		return EffectNone
	}
	s.TotalRounds = p.TotalRounds
	return EffectNone
}

func (s *Session) applySetContent(msg Message) Effect {
	if s.Stage == StageGameOver {
		return EffectNone
	}
	var p SetContentPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return EffectNone
	}
	s.ContentID = p.ContentID
	return EffectNone
}

func (s *Session) applyNewQuestion(msg Message) Effect {
	if !s.Active || s.Stage == StageGameOver {
		return EffectNone
	}
	var p NewQuestionPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return EffectNone
	}
	q := p.Question
	s.Stage = StageQuestionDisplay
	s.CurrentQuestion = &q
	s.CurrentAnswerer = ""
	s.BuzzAttempts = nil
	s.Answer = nil
	s.FollowUps = nil
	s.FollowUpAnswers = nil
	s.FinalScore = nil
	s.Countdown = s.rules.QuestionTicks
	for _, player := range s.Players {
		player.IsAnswering = false
	}
	return EffectQuestionCountdown
}

func (s *Session) applyBuzzIn(msg Message) Effect {
	if s.Stage != StageBuzzing {
		return EffectNone
	}
	for _, a := range s.BuzzAttempts {
		if a.Identity == msg.Sender {
			// One buzz per player; repeats are dropped here, not in the UI.
			return EffectNone
		}
	}
	var p BuzzInPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil || p.Timestamp == 0 {
		// Fall back to the envelope clock for senders that omit one.
		p.Timestamp = msg.Timestamp
	}
	if p.Timestamp == 0 {
		return EffectNone
	}
	s.BuzzAttempts = append(s.BuzzAttempts, BuzzAttempt{
		Identity:  msg.Sender,
		Timestamp: p.Timestamp,
	})
	return EffectBuzzWindow
}

func (s *Session) applyBuzzWinner(msg Message) Effect {
	if s.Stage != StageBuzzing {
		// A duplicate BUZZ_WINNER after resolution lands here and no-ops.
		return EffectNone
	}
	var p BuzzWinnerPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil || p.Winner == "" {
		return EffectNone
	}
	s.Stage = StageAnswering
	s.CurrentAnswerer = p.Winner
	s.Countdown = s.rules.AnswerTicks
	if w := s.RegisterPlayer(p.Winner); w != nil {
		w.IsAnswering = true
	}
	return EffectAnswerCountdown
}

func (s *Session) applyAnswerSubmitted(msg Message) Effect {
	if s.Stage != StageAnswering {
		return EffectNone
	}
	var p AnswerSubmittedPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return EffectNone
	}
	if p.Answerer != "" && p.Answerer != s.CurrentAnswerer {
		return EffectNone
	}
	s.Answer = &Answer{Transcript: p.Transcript}
	s.Stage = StageScoring
	s.Countdown = 0
	return EffectNone
}

func (s *Session) applyFollowUpReady(msg Message) Effect {
	// Follow-ups arrive after the answer, while the round awaits its
	// verdict. Once a score landed the exchange is over.
	if s.Stage != StageScoring || s.FinalScore != nil {
		return EffectNone
	}
	var p FollowUpReadyPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil || p.Question.Question == "" {
		return EffectNone
	}
	s.FollowUps = append(s.FollowUps, p.Question)
	s.Stage = StageFollowUp
	s.Countdown = s.rules.FollowUpTicks
	return EffectFollowUpCountdown
}

func (s *Session) applyFollowUpSubmitted(msg Message) Effect {
	if s.Stage != StageFollowUp {
		return EffectNone
	}
	// Only the current answerer responds to follow-ups.
	if msg.Sender != s.CurrentAnswerer {
		return EffectNone
	}
	var p FollowUpSubmittedPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return EffectNone
	}
	s.FollowUpAnswers = append(s.FollowUpAnswers, Answer{Transcript: p.Transcript})
	s.Stage = StageScoring
	s.Countdown = 0
	return EffectNone
}

func (s *Session) applyScoreReady(msg Message) Effect {
	if s.Stage != StageScoring || s.FinalScore != nil {
		// FinalScore gates the credit so a duplicate SCORE_READY cannot
		// pay out twice in one round.
		return EffectNone
	}
	var p ScoreReadyPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return EffectNone
	}
	score := p.FinalScore
	s.FinalScore = &score
	if player, ok := s.Players[s.CurrentAnswerer]; ok {
		if score.TotalScore > 0 {
			player.Score += score.TotalScore
		}
		player.HasAnswered = true
		player.IsAnswering = false
	}
	return EffectNone
}

func (s *Session) applyNextRound() Effect {
	if s.Stage != StageScoring {
		return EffectNone
	}
	if s.CurrentRound+1 > s.TotalRounds {
		s.Stage = StageGameOver
		return EffectNone
	}
	s.CurrentRound++
	return EffectNone
}

func (s *Session) applyEndGame() Effect {
	if s.Stage == StageGameOver {
		return EffectNone
	}
	s.Stage = StageGameOver
	return EffectNone
}

// resolveWinner picks the buzz attempt with the smallest origin
// timestamp. Exact timestamp ties break toward the lexicographically
// smaller identity so every replica lands on the same player no matter
// what order the attempts arrived in.
func (s *Session) resolveWinner() (string, bool) {
	if len(s.BuzzAttempts) == 0 {
		return "", false
	}
	best := s.BuzzAttempts[0]
	for _, a := range s.BuzzAttempts[1:] {
		if a.Timestamp < best.Timestamp ||
			(a.Timestamp == best.Timestamp && a.Identity < best.Identity) {
			best = a
		}
	}
	return best.Identity, true
}

// Reset returns the replica to WAITING. Scores and per-round flags are
// wiped but the roster itself survives, matching a fresh game between
// the same peers.
func (s *Session) Reset() {
	s.Stage = StageWaiting
	s.Active = false
	s.CurrentQuestion = nil
	s.CurrentAnswerer = ""
	s.BuzzAttempts = nil
	s.Answer = nil
	s.FollowUps = nil
	s.FollowUpAnswers = nil
	s.FinalScore = nil
	s.Countdown = 0
	s.CurrentRound = 0
	s.TotalRounds = s.rules.TotalRounds
	for _, p := range s.Players {
		p.Score = 0
		p.IsAnswering = false
		p.HasAnswered = false
	}
}

// clone deep-copies the replica for snapshot readers.
func (s *Session) clone() Session {
	out := *s
	out.Players = make(map[string]*Player, len(s.Players))
	for id, p := range s.Players {
		cp := *p
		out.Players[id] = &cp
	}
	out.BuzzAttempts = append([]BuzzAttempt(nil), s.BuzzAttempts...)
	out.FollowUps = append([]FollowUpQuestion(nil), s.FollowUps...)
	out.FollowUpAnswers = append([]Answer(nil), s.FollowUpAnswers...)
	if s.CurrentQuestion != nil {
		q := *s.CurrentQuestion
		out.CurrentQuestion = &q
	}
	if s.Answer != nil {
		a := *s.Answer
		out.Answer = &a
	}
	if s.FinalScore != nil {
		fs := *s.FinalScore
		fs.Dimensions = append([]ScoreDimension(nil), s.FinalScore.Dimensions...)
		out.FinalScore = &fs
	}
	return out
}
