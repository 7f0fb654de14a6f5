package game

import (
	"testing"
)

func mkMsg(t *testing.T, typ MessageType, sender string, payload any) Message {
	t.Helper()
	m, err := NewMessage(typ, sender, payload)
	if err != nil {
		t.Fatalf("NewMessage(%s): %v", typ, err)
	}
	return m
}

func buzz(t *testing.T, sender string, ts int64) Message {
	t.Helper()
	return mkMsg(t, TypeBuzzIn, sender, BuzzInPayload{Timestamp: ts})
}

func question(t *testing.T, sender string) Message {
	t.Helper()
	return mkMsg(t, TypeNewQuestion, sender, NewQuestionPayload{
		Question: Question{
			ID:         "q1",
			Topic:      "emergence",
			TopicName:  "Emergence",
			Content:    "How do simple rules produce complex behavior?",
			Difficulty: "medium",
		},
	})
}

func startedSession(t *testing.T, totalRounds int) *Session {
	t.Helper()
	s := NewSession(DefaultRules())
	s.Apply(mkMsg(t, TypeStartGame, "host", nil))
	s.Apply(mkMsg(t, TypeConfigureRounds, "host", ConfigureRoundsPayload{TotalRounds: totalRounds}))
	if !s.Active || s.CurrentRound != 1 || s.TotalRounds != totalRounds {
		t.Fatalf("bad start: active=%v round=%d total=%d", s.Active, s.CurrentRound, s.TotalRounds)
	}
	return s
}

func TestResolveWinnerSmallestTimestampAnyOrder(t *testing.T) {
	attempts := []BuzzAttempt{
		{Identity: "alice", Timestamp: 100},
		{Identity: "bob", Timestamp: 90},
		{Identity: "carol", Timestamp: 140},
	}
	orders := [][]int{
		{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0},
	}
	for _, order := range orders {
		s := startedSession(t, 3)
		s.Stage = StageBuzzing
		for _, i := range order {
			a := attempts[i]
			s.Apply(buzz(t, a.Identity, a.Timestamp))
		}
		winner, ok := s.resolveWinner()
		if !ok {
			t.Fatalf("order %v: no winner", order)
		}
		if winner != "bob" {
			t.Fatalf("order %v: winner = %q, want bob", order, winner)
		}
	}
}

func TestResolveWinnerTieBreaksOnIdentity(t *testing.T) {
	s := startedSession(t, 3)
	s.Stage = StageBuzzing
	s.Apply(buzz(t, "zoe", 100))
	s.Apply(buzz(t, "ann", 100))

	winner, ok := s.resolveWinner()
	if !ok {
		t.Fatal("no winner")
	}
	if winner != "ann" {
		t.Fatalf("winner = %q, want ann (lexical tie-break)", winner)
	}
}

func TestResolveWinnerEmpty(t *testing.T) {
	s := startedSession(t, 3)
	s.Stage = StageBuzzing
	if _, ok := s.resolveWinner(); ok {
		t.Fatal("expected no winner with no attempts")
	}
}

func TestRepeatBuzzFromSamePlayerIgnored(t *testing.T) {
	s := startedSession(t, 3)
	s.Stage = StageBuzzing
	s.Apply(buzz(t, "alice", 200))
	s.Apply(buzz(t, "alice", 100))

	if len(s.BuzzAttempts) != 1 {
		t.Fatalf("attempts = %d, want 1", len(s.BuzzAttempts))
	}
	if s.BuzzAttempts[0].Timestamp != 200 {
		t.Fatalf("kept timestamp %d, want the first buzz (200)", s.BuzzAttempts[0].Timestamp)
	}
}

func TestBuzzOutsideBuzzingIsNoOp(t *testing.T) {
	s := startedSession(t, 3)
	s.Stage = StageScoring

	before := len(s.Players)
	s.Apply(buzz(t, "newcomer", 50))

	if len(s.BuzzAttempts) != 0 {
		t.Fatalf("attempts = %d, want 0", len(s.BuzzAttempts))
	}
	if s.Stage != StageScoring {
		t.Fatalf("stage = %s, want SCORING", s.Stage)
	}
	// The only permitted side effect is roster auto-registration.
	if len(s.Players) != before+1 {
		t.Fatalf("players = %d, want %d", len(s.Players), before+1)
	}
}

func TestBuzzAttemptsClearedByNewQuestion(t *testing.T) {
	s := startedSession(t, 3)
	s.Stage = StageBuzzing
	s.Apply(buzz(t, "alice", 100))
	s.Apply(buzz(t, "bob", 90))

	s.Apply(question(t, "host"))

	if len(s.BuzzAttempts) != 0 {
		t.Fatalf("attempts = %d after NEW_QUESTION, want 0", len(s.BuzzAttempts))
	}
	if s.Stage != StageQuestionDisplay {
		t.Fatalf("stage = %s, want QUESTION_DISPLAY", s.Stage)
	}
	if s.Countdown != DefaultRules().QuestionTicks {
		t.Fatalf("countdown = %d, want %d", s.Countdown, DefaultRules().QuestionTicks)
	}
}

func TestBuzzWinnerTransition(t *testing.T) {
	s := startedSession(t, 3)
	s.Stage = StageBuzzing
	s.Apply(buzz(t, "bob", 90))

	eff := s.Apply(mkMsg(t, TypeBuzzWinner, "alice", BuzzWinnerPayload{Winner: "bob"}))
	if eff != EffectAnswerCountdown {
		t.Fatalf("effect = %v, want answer countdown", eff)
	}
	if s.Stage != StageAnswering || s.CurrentAnswerer != "bob" {
		t.Fatalf("stage=%s answerer=%q", s.Stage, s.CurrentAnswerer)
	}
	if !s.Players["bob"].IsAnswering {
		t.Fatal("winner not marked as answering")
	}

	// A duplicate winner broadcast after resolution changes nothing.
	s.Apply(mkMsg(t, TypeBuzzWinner, "carol", BuzzWinnerPayload{Winner: "carol"}))
	if s.CurrentAnswerer != "bob" {
		t.Fatalf("answerer overwritten to %q", s.CurrentAnswerer)
	}
}

func TestScoreCreditedExactlyOnce(t *testing.T) {
	s := startedSession(t, 3)
	s.Stage = StageBuzzing
	s.Apply(buzz(t, "bob", 90))
	s.Apply(mkMsg(t, TypeBuzzWinner, "host", BuzzWinnerPayload{Winner: "bob"}))
	s.Apply(mkMsg(t, TypeAnswerSubmitted, "bob", AnswerSubmittedPayload{Transcript: "because feedback", Answerer: "bob"}))

	if s.Stage != StageScoring {
		t.Fatalf("stage = %s, want SCORING", s.Stage)
	}

	score := FinalScore{TotalScore: 85, TotalMaxScore: 100}
	s.Apply(mkMsg(t, TypeScoreReady, "bob", ScoreReadyPayload{FinalScore: score, Answerer: "bob"}))

	if got := s.Players["bob"].Score; got != 85 {
		t.Fatalf("score = %d, want 85", got)
	}
	if !s.Players["bob"].HasAnswered || s.Players["bob"].IsAnswering {
		t.Fatal("answerer flags not updated")
	}

	// Duplicate delivery must not pay out twice.
	s.Apply(mkMsg(t, TypeScoreReady, "bob", ScoreReadyPayload{FinalScore: score, Answerer: "bob"}))
	if got := s.Players["bob"].Score; got != 85 {
		t.Fatalf("score after duplicate = %d, want 85", got)
	}
}

func TestScoreNeverDecreases(t *testing.T) {
	s := startedSession(t, 3)
	s.Stage = StageScoring
	s.CurrentAnswerer = "bob"
	s.RegisterPlayer("bob").Score = 40

	s.Apply(mkMsg(t, TypeScoreReady, "bob", ScoreReadyPayload{
		FinalScore: FinalScore{TotalScore: -10, TotalMaxScore: 100},
	}))

	if got := s.Players["bob"].Score; got != 40 {
		t.Fatalf("score = %d, want 40 (never decreases)", got)
	}
}

func TestAnswerFromWrongPlayerIgnored(t *testing.T) {
	s := startedSession(t, 3)
	s.Stage = StageAnswering
	s.CurrentAnswerer = "bob"

	s.Apply(mkMsg(t, TypeAnswerSubmitted, "mallory", AnswerSubmittedPayload{Transcript: "me!", Answerer: "mallory"}))

	if s.Answer != nil || s.Stage != StageAnswering {
		t.Fatalf("wrong player's answer was accepted: stage=%s", s.Stage)
	}
}

func TestNextRoundProgressionToGameOver(t *testing.T) {
	s := startedSession(t, 3)

	rounds := []struct {
		wantRound int
		wantStage Stage
	}{
		{2, StageScoring},
		{3, StageScoring},
		{3, StageGameOver},
	}
	for i, want := range rounds {
		s.Stage = StageScoring
		s.Apply(mkMsg(t, TypeNextRound, "host", nil))
		if s.CurrentRound != want.wantRound {
			t.Fatalf("after %d NEXT_ROUND: round = %d, want %d", i+1, s.CurrentRound, want.wantRound)
		}
		if want.wantStage == StageGameOver && s.Stage != StageGameOver {
			t.Fatalf("after %d NEXT_ROUND: stage = %s, want GAME_OVER", i+1, s.Stage)
		}
	}
	if s.CurrentRound > s.TotalRounds {
		t.Fatalf("round %d exceeded total %d", s.CurrentRound, s.TotalRounds)
	}
}

func TestEndGameFromAnyStage(t *testing.T) {
	for _, stage := range []Stage{StageWaiting, StageQuestionDisplay, StageBuzzing, StageAnswering, StageFollowUp, StageScoring} {
		s := startedSession(t, 3)
		s.Stage = stage
		s.Apply(mkMsg(t, TypeEndGame, "host", nil))
		if s.Stage != StageGameOver {
			t.Fatalf("END_GAME from %s: stage = %s", stage, s.Stage)
		}
	}
}

func TestGameOverIsTerminal(t *testing.T) {
	s := startedSession(t, 3)
	s.Stage = StageGameOver

	s.Apply(question(t, "host"))
	if s.Stage != StageGameOver {
		t.Fatalf("NEW_QUESTION escaped GAME_OVER: stage = %s", s.Stage)
	}
	s.Apply(mkMsg(t, TypeStartGame, "host", nil))
	if s.Stage != StageGameOver {
		t.Fatalf("START_GAME escaped GAME_OVER: stage = %s", s.Stage)
	}
}

func TestFollowUpExchange(t *testing.T) {
	s := startedSession(t, 3)
	s.Stage = StageAnswering
	s.CurrentAnswerer = "bob"
	s.RegisterPlayer("bob")

	s.Apply(mkMsg(t, TypeAnswerSubmitted, "bob", AnswerSubmittedPayload{Transcript: "first answer", Answerer: "bob"}))

	eff := s.Apply(mkMsg(t, TypeFollowUpReady, "bob", FollowUpReadyPayload{
		Question: FollowUpQuestion{Question: "Can you give an example?"},
	}))
	if eff != EffectFollowUpCountdown || s.Stage != StageFollowUp {
		t.Fatalf("stage = %s, effect = %v", s.Stage, eff)
	}

	// Only the answerer's reply counts.
	s.Apply(mkMsg(t, TypeFollowUpSubmitted, "carol", FollowUpSubmittedPayload{Transcript: "ants"}))
	if len(s.FollowUpAnswers) != 0 {
		t.Fatal("reply from non-answerer was accepted")
	}

	s.Apply(mkMsg(t, TypeFollowUpSubmitted, "bob", FollowUpSubmittedPayload{Transcript: "ant colonies"}))
	if len(s.FollowUpAnswers) != 1 || s.Stage != StageScoring {
		t.Fatalf("answers = %d, stage = %s", len(s.FollowUpAnswers), s.Stage)
	}

	// Once the score landed, further follow-ups are refused.
	s.Apply(mkMsg(t, TypeScoreReady, "bob", ScoreReadyPayload{FinalScore: FinalScore{TotalScore: 70, TotalMaxScore: 100}}))
	s.Apply(mkMsg(t, TypeFollowUpReady, "bob", FollowUpReadyPayload{
		Question: FollowUpQuestion{Question: "One more?"},
	}))
	if s.Stage != StageScoring || len(s.FollowUps) != 1 {
		t.Fatalf("post-score follow-up accepted: stage=%s followUps=%d", s.Stage, len(s.FollowUps))
	}
}

func TestMalformedPayloadIsDropped(t *testing.T) {
	s := startedSession(t, 3)
	s.Stage = StageBuzzing

	m := mkMsg(t, TypeBuzzWinner, "host", nil)
	m.Payload = []byte(`{"winner": 42`)
	s.Apply(m)

	if s.Stage != StageBuzzing || s.CurrentAnswerer != "" {
		t.Fatalf("malformed payload mutated state: stage=%s answerer=%q", s.Stage, s.CurrentAnswerer)
	}
}

func TestResetKeepsRosterWipesScores(t *testing.T) {
	s := startedSession(t, 3)
	s.Stage = StageScoring
	s.CurrentAnswerer = "bob"
	s.RegisterPlayer("bob").Score = 55

	s.Reset()

	if s.Stage != StageWaiting || s.Active {
		t.Fatalf("stage=%s active=%v after reset", s.Stage, s.Active)
	}
	p, ok := s.Players["bob"]
	if !ok {
		t.Fatal("roster lost on reset")
	}
	if p.Score != 0 || p.HasAnswered || p.IsAnswering {
		t.Fatalf("player state not wiped: %+v", p)
	}
}

func TestConfigureRoundsRejectsBadValues(t *testing.T) {
	s := startedSession(t, 3)
	s.Apply(mkMsg(t, TypeConfigureRounds, "host", ConfigureRoundsPayload{TotalRounds: 0}))
	if s.TotalRounds != 3 {
		t.Fatalf("total rounds = %d, want 3", s.TotalRounds)
	}
}
