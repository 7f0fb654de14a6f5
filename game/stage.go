package game

// Stage is the current phase of the per-round state machine. Every
// replica holds its own copy and advances it either from a locally
// expired countdown (started by a shared trigger message) or from an
// explicit control message.
type Stage int

const (
	// StageWaiting is the idle stage, before a game starts and after a reset.
	StageWaiting Stage = iota

	// StageQuestionDisplay shows the question while a local countdown
	// runs down to the buzzing window.
	StageQuestionDisplay

	// StageBuzzing is the open window during which players may buzz in.
	StageBuzzing

	// StageAnswering means exactly one player, the resolved buzz winner,
	// is giving their answer.
	StageAnswering

	// StageFollowUp is the optional timed follow-up exchange between the
	// judge and the current answerer.
	StageFollowUp

	// StageScoring shows the judged result and waits for the host to
	// advance or end the game.
	StageScoring

	// StageGameOver is terminal; only a full reset leaves it.
	StageGameOver
)

var stageNames = map[Stage]string{
	StageWaiting:         "WAITING",
	StageQuestionDisplay: "QUESTION_DISPLAY",
	StageBuzzing:         "BUZZING",
	StageAnswering:       "ANSWERING",
	StageFollowUp:        "AI_FOLLOWUP",
	StageScoring:         "SCORING",
	StageGameOver:        "GAME_OVER",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}
