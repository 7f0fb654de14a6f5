package game

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// Transport is the broadcast primitive the engine publishes through.
// Delivery is best-effort: frames reach all currently connected peers,
// possibly including an echo of the sender's own frame, with no
// ordering guarantee across senders.
type Transport interface {
	Publish(data []byte, reliable bool) error
}

// Judge is the external question/evaluation service. Calls may block
// on the network; the engine never holds its lock across them.
type Judge interface {
	GenerateQuestion(ctx context.Context, difficulty, contentID string) (*Question, error)
	EvaluateAnswer(ctx context.Context, question Question, answer string) (*FollowUpQuestion, error)
	FinalScore(ctx context.Context, req ScoreRequest) (*FinalScore, error)
}

// ScoreRequest bundles everything the judge needs for a verdict.
type ScoreRequest struct {
	Question        string
	TopicName       string
	Answer          string
	FollowUps       []FollowUpQuestion
	FollowUpAnswers []Answer
}

// ErrWrongStage is returned when a local action is not legal in the
// replica's current stage. Remote messages in the same situation are
// silently ignored; local callers get told so the UI can say why.
var ErrWrongStage = errors.New("game: action not valid in current stage")

// ErrNoJudge is returned by actions that need the external judge when
// none was configured.
var ErrNoJudge = errors.New("game: no judge configured")

const (
	// DefaultBuzzWindow bounds how long competing buzz signals are
	// collected before a winner is picked.
	DefaultBuzzWindow = 200 * time.Millisecond

	// DefaultTickInterval is the wall-clock length of one countdown tick.
	DefaultTickInterval = time.Second
)

// Config assembles an Engine.
type Config struct {
	Identity  string
	Transport Transport
	Judge     Judge // optional; required to host rounds or answer

	Rules        Rules
	Difficulty   string        // passed to the judge, defaults to "medium"
	FollowUps    int           // judge follow-ups per round, 0 disables the stage
	BuzzWindow   time.Duration // defaults to DefaultBuzzWindow
	TickInterval time.Duration // defaults to DefaultTickInterval

	// OnChange, if set, is called after every state mutation, outside
	// the engine lock. Meant for UI refresh, not for reading state.
	OnChange func()
}

// Engine is the replication chokepoint: every local action and every
// remote frame funnels into the same reducer on the same replica.
// Handlers, timer fires and the transport read pump are serialized by
// one mutex, so the replica only ever changes one step at a time.
type Engine struct {
	identity  string
	transport Transport
	judge     Judge
	cfg       Config

	mu           sync.Mutex
	session      *Session
	countdownSeq uint64
	buzzArmed    bool
	closed       bool
}

// New wires up an engine around a fresh WAITING replica. The local
// identity is registered immediately so the roster is never empty.
func New(cfg Config) (*Engine, error) {
	if cfg.Identity == "" {
		return nil, errors.New("game: identity is required")
	}
	if cfg.Transport == nil {
		return nil, errors.New("game: transport is required")
	}
	if cfg.Rules == (Rules{}) {
		cfg.Rules = DefaultRules()
	}
	if cfg.Difficulty == "" {
		cfg.Difficulty = "medium"
	}
	if cfg.BuzzWindow <= 0 {
		cfg.BuzzWindow = DefaultBuzzWindow
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}

	e := &Engine{
		identity:  cfg.Identity,
		transport: cfg.Transport,
		judge:     cfg.Judge,
		cfg:       cfg,
		session:   NewSession(cfg.Rules),
	}
	e.session.RegisterPlayer(cfg.Identity)
	return e, nil
}

// Identity returns the local participant identity.
func (e *Engine) Identity() string { return e.identity }

// Snapshot returns a deep copy of the replica for display.
func (e *Engine) Snapshot() Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.clone()
}

// Close invalidates pending timers. The engine stays readable but
// stops mutating state.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
}

// HandleFrame feeds one raw transport frame into the replica. Echoes
// of our own messages are discarded; undecodable frames are dropped.
// It never panics and never stops the caller's read loop.
func (e *Engine) HandleFrame(data []byte) {
	msg, err := DecodeMessage(data)
	if err != nil {
		log.Printf("game: dropping frame: %v", err)
		return
	}
	if msg.Sender == e.identity {
		return
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	eff := e.session.Apply(msg)
	e.scheduleLocked(eff)
	e.mu.Unlock()
	e.changed()
}

// send applies a local action optimistically and broadcasts it. A
// transport failure is logged and the local application stands; the
// replicas may diverge, which the protocol accepts.
func (e *Engine) send(t MessageType, payload any) error {
	msg, err := NewMessage(t, e.identity, payload)
	if err != nil {
		return fmt.Errorf("game: encode %s payload: %w", t, err)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return errors.New("game: engine closed")
	}
	eff := e.session.Apply(msg)
	e.scheduleLocked(eff)
	e.mu.Unlock()

	data, err := msg.Encode()
	if err != nil {
		log.Printf("game: encode %s: %v", t, err)
	} else if err := e.transport.Publish(data, true); err != nil {
		log.Printf("game: publish %s: %v", t, err)
	}
	e.changed()
	return nil
}

// StartGame begins a fresh game and announces the round count.
func (e *Engine) StartGame(totalRounds int) error {
	if e.stage() != StageWaiting {
		return ErrWrongStage
	}
	if err := e.send(TypeStartGame, nil); err != nil {
		return err
	}
	if totalRounds > 0 {
		return e.send(TypeConfigureRounds, ConfigureRoundsPayload{TotalRounds: totalRounds})
	}
	return nil
}

// SetContent pins the topic the judge should draw questions from.
func (e *Engine) SetContent(contentID string) error {
	if e.stage() == StageGameOver {
		return ErrWrongStage
	}
	return e.send(TypeSetContent, SetContentPayload{ContentID: contentID})
}

// StartQuestion fetches a question from the judge and broadcasts it.
// Every receiving peer, this one included, starts its own display
// countdown from the shared trigger.
func (e *Engine) StartQuestion(ctx context.Context) error {
	if e.judge == nil {
		return ErrNoJudge
	}
	e.mu.Lock()
	ok := e.session.Active &&
		(e.session.Stage == StageWaiting || e.session.Stage == StageScoring)
	contentID := e.session.ContentID
	e.mu.Unlock()
	if !ok {
		return ErrWrongStage
	}

	q, err := e.judge.GenerateQuestion(ctx, e.cfg.Difficulty, contentID)
	if err != nil {
		return fmt.Errorf("generate question: %w", err)
	}
	return e.send(TypeNewQuestion, NewQuestionPayload{Question: *q})
}

// BuzzIn submits this player's buzz for the current question. The
// origin timestamp is our clock; peers compare it against other
// attempts as-is, clock skew and all.
func (e *Engine) BuzzIn() error {
	if e.stage() != StageBuzzing {
		return ErrWrongStage
	}
	return e.send(TypeBuzzIn, BuzzInPayload{Timestamp: time.Now().UnixMilli()})
}

// SubmitAnswer records the answerer's transcript and drives the rest
// of the round: either a follow-up exchange or straight to the judge
// for a verdict. Only the resolved answerer may call it.
func (e *Engine) SubmitAnswer(ctx context.Context, transcript string) error {
	e.mu.Lock()
	ok := e.session.Stage == StageAnswering && e.session.CurrentAnswerer == e.identity
	e.mu.Unlock()
	if !ok {
		return ErrWrongStage
	}

	err := e.send(TypeAnswerSubmitted, AnswerSubmittedPayload{
		Transcript: transcript,
		Answerer:   e.identity,
	})
	if err != nil {
		return err
	}
	return e.continueRound(ctx)
}

// SubmitFollowUpAnswer records a reply to the pending follow-up and
// continues the exchange or finalizes the round.
func (e *Engine) SubmitFollowUpAnswer(ctx context.Context, transcript string) error {
	e.mu.Lock()
	ok := e.session.Stage == StageFollowUp && e.session.CurrentAnswerer == e.identity
	e.mu.Unlock()
	if !ok {
		return ErrWrongStage
	}

	err := e.send(TypeFollowUpSubmitted, FollowUpSubmittedPayload{Transcript: transcript})
	if err != nil {
		return err
	}
	return e.continueRound(ctx)
}

// continueRound decides, after an answer landed, whether the judge
// should probe further or deliver the verdict. Runs on the answerer's
// peer only; everyone else just replays the resulting broadcasts.
func (e *Engine) continueRound(ctx context.Context) error {
	if e.judge == nil {
		return ErrNoJudge
	}

	e.mu.Lock()
	snap := e.session.clone()
	e.mu.Unlock()
	if snap.CurrentQuestion == nil {
		return ErrWrongStage
	}

	if len(snap.FollowUps) < e.cfg.FollowUps {
		answer := ""
		if snap.Answer != nil {
			answer = snap.Answer.Transcript
		}
		fu, err := e.judge.EvaluateAnswer(ctx, *snap.CurrentQuestion, answer)
		if err != nil {
			return fmt.Errorf("evaluate answer: %w", err)
		}
		return e.send(TypeFollowUpReady, FollowUpReadyPayload{Question: *fu})
	}

	req := ScoreRequest{
		Question:        snap.CurrentQuestion.Content,
		TopicName:       snap.CurrentQuestion.TopicName,
		FollowUps:       snap.FollowUps,
		FollowUpAnswers: snap.FollowUpAnswers,
	}
	if snap.Answer != nil {
		req.Answer = snap.Answer.Transcript
	}
	score, err := e.judge.FinalScore(ctx, req)
	if err != nil {
		return fmt.Errorf("final score: %w", err)
	}
	return e.send(TypeScoreReady, ScoreReadyPayload{
		FinalScore: *score,
		Answerer:   snap.CurrentAnswerer,
	})
}

// NextRound advances the game, ending it when rounds run out; when it
// continues, the next question is fetched and broadcast right away.
func (e *Engine) NextRound(ctx context.Context) error {
	e.mu.Lock()
	over := e.session.CurrentRound+1 > e.session.TotalRounds
	ok := e.session.Stage == StageScoring
	e.mu.Unlock()
	if !ok {
		return ErrWrongStage
	}

	if over {
		return e.send(TypeEndGame, nil)
	}
	if err := e.send(TypeNextRound, nil); err != nil {
		return err
	}
	return e.StartQuestion(ctx)
}

// EndGame terminates the game for everyone.
func (e *Engine) EndGame() error {
	if e.stage() == StageGameOver {
		return ErrWrongStage
	}
	return e.send(TypeEndGame, nil)
}

// Reset returns the local replica to WAITING. Local-only; peers reset
// themselves the same way.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.countdownSeq++ // invalidate any pending countdown
	e.session.Reset()
	e.mu.Unlock()
	e.changed()
}

func (e *Engine) stage() Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Stage
}

func (e *Engine) changed() {
	if e.cfg.OnChange != nil {
		e.cfg.OnChange()
	}
}

// scheduleLocked arms whatever timer the reducer asked for. Caller
// holds e.mu.
func (e *Engine) scheduleLocked(eff Effect) {
	switch eff {
	case EffectQuestionCountdown:
		e.startCountdownLocked(StageQuestionDisplay)
	case EffectAnswerCountdown:
		e.startCountdownLocked(StageAnswering)
	case EffectFollowUpCountdown:
		e.startCountdownLocked(StageFollowUp)
	case EffectBuzzWindow:
		if !e.buzzArmed {
			e.buzzArmed = true
			time.AfterFunc(e.cfg.BuzzWindow, e.resolveBuzz)
		}
	}
}

// startCountdownLocked begins ticking the display countdown for the
// given stage. Each start bumps the sequence number, so a countdown
// superseded by a later transition dies on its next fire.
func (e *Engine) startCountdownLocked(stage Stage) {
	e.countdownSeq++
	seq := e.countdownSeq
	time.AfterFunc(e.cfg.TickInterval, func() { e.tick(seq, stage) })
}

func (e *Engine) tick(seq uint64, stage Stage) {
	e.mu.Lock()
	if e.closed || seq != e.countdownSeq || e.session.Stage != stage || e.session.Countdown <= 0 {
		e.mu.Unlock()
		return
	}
	e.session.Countdown--
	if e.session.Countdown <= 0 {
		if stage == StageQuestionDisplay {
			// The shared NEW_QUESTION trigger started this countdown on
			// every peer; each opens the buzz window on its own clock.
			e.session.Stage = StageBuzzing
		}
		// The answer and follow-up countdowns only bound the display;
		// nothing is forced when they run out.
	} else {
		time.AfterFunc(e.cfg.TickInterval, func() { e.tick(seq, stage) })
	}
	e.mu.Unlock()
	e.changed()
}

// resolveBuzz fires when the collection window elapses. If a remote
// BUZZ_WINNER already moved us out of BUZZING this is a no-op;
// otherwise the minimum-timestamp attempt wins and the result is
// broadcast for peers to apply as received.
func (e *Engine) resolveBuzz() {
	e.mu.Lock()
	e.buzzArmed = false
	if e.closed || e.session.Stage != StageBuzzing {
		e.mu.Unlock()
		return
	}
	winner, ok := e.session.resolveWinner()
	if !ok {
		e.mu.Unlock()
		return
	}
	msg, err := NewMessage(TypeBuzzWinner, e.identity, BuzzWinnerPayload{Winner: winner})
	if err != nil {
		e.mu.Unlock()
		return
	}
	eff := e.session.Apply(msg)
	e.scheduleLocked(eff)
	e.mu.Unlock()

	if data, err := msg.Encode(); err == nil {
		if err := e.transport.Publish(data, true); err != nil {
			log.Printf("game: publish %s: %v", msg.Type, err)
		}
	}
	e.changed()
}
