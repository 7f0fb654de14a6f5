package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/chengchew0204/buzzbox/game"
	"github.com/chengchew0204/buzzbox/judge"
	"github.com/chengchew0204/buzzbox/relay"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func runPlay(ctx context.Context, cfg *Config) error {
	// Optional .env for OPENAI_API_KEY and friends.
	_ = godotenv.Load()

	name := cfg.name
	if name == "" {
		name = "player"
	}
	identity := name + "-" + uuid.NewString()[:8]

	jcfg := judge.FromEnv()
	var j game.Judge
	if err := jcfg.CheckConfig(); err != nil {
		fmt.Printf("NOTE: %v\n", err)
		fmt.Println("You can still join and buzz, but hosting rounds and answering need the judge.")
	} else {
		j = judge.New(jcfg)
	}

	var eng *game.Engine
	ready := make(chan struct{})
	client, err := relay.Dial(cfg.server, cfg.room, identity, func(data []byte) {
		<-ready
		eng.HandleFrame(data)
	})
	if err != nil {
		return err
	}
	defer client.Close()

	p := &printer{identity: identity}

	eng, err = game.New(game.Config{
		Identity:   identity,
		Transport:  client,
		Judge:      j,
		Difficulty: cfg.difficulty,
		FollowUps:  cfg.followUps,
		OnChange: func() {
			p.update(eng.Snapshot())
		},
	})
	if err != nil {
		return err
	}
	defer eng.Close()
	close(ready)

	fmt.Printf("Joined room %s as %s\n", cfg.room, identity)
	fmt.Println("Commands: /start [rounds], /topics, /topic <id>, /question, /buzz, /answer <text>, /followup <text>, /next, /end, /state, /reset, /quit")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := dispatch(ctx, cfg, eng, line)
			if err != nil {
				switch {
				case errors.Is(err, game.ErrWrongStage):
					fmt.Println("Not now: that action does not fit the current stage.")
				case errors.Is(err, game.ErrNoJudge):
					fmt.Println("The judge is not configured; set OPENAI_API_KEY and rejoin.")
				default:
					fmt.Printf("ERROR: %v\n", err)
				}
			}
			if quit {
				return nil
			}
		}
	}
}

func dispatch(ctx context.Context, cfg *Config, eng *game.Engine, line string) (quit bool, err error) {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "":
		return false, nil

	case "/start":
		rounds := cfg.rounds
		if rest != "" {
			rounds, err = strconv.Atoi(rest)
			if err != nil || rounds < 1 {
				return false, fmt.Errorf("invalid round count: %q", rest)
			}
		}
		if err := eng.StartGame(rounds); err != nil {
			return false, err
		}
		if cfg.topic != "" {
			if err := eng.SetContent(cfg.topic); err != nil {
				return false, err
			}
		}
		fmt.Printf("Game started: %d rounds. Fetching the first question...\n", rounds)
		return false, eng.StartQuestion(ctx)

	case "/topics":
		for _, t := range judge.Topics() {
			fmt.Printf("  %-24s %s\n", t.ID, t.Name)
		}
		return false, nil

	case "/topic":
		if rest == "" {
			return false, errors.New("usage: /topic <id>")
		}
		return false, eng.SetContent(rest)

	case "/question":
		fmt.Println("Fetching a question...")
		return false, eng.StartQuestion(ctx)

	case "/buzz":
		return false, eng.BuzzIn()

	case "/answer":
		if rest == "" {
			return false, errors.New("usage: /answer <your answer>")
		}
		fmt.Println("Answer sent, judging...")
		return false, eng.SubmitAnswer(ctx, rest)

	case "/followup":
		if rest == "" {
			return false, errors.New("usage: /followup <your answer>")
		}
		fmt.Println("Follow-up answer sent...")
		return false, eng.SubmitFollowUpAnswer(ctx, rest)

	case "/next":
		return false, eng.NextRound(ctx)

	case "/end":
		return false, eng.EndGame()

	case "/state":
		printState(eng.Snapshot(), eng.Identity())
		return false, nil

	case "/reset":
		eng.Reset()
		fmt.Println("Local game reset.")
		return false, nil

	case "/quit":
		return true, nil
	}

	fmt.Printf("Unknown command %q\n", cmd)
	return false, nil
}

// printer renders state transitions. It keeps the previous snapshot so
// the steady stream of countdown ticks does not flood the terminal.
type printer struct {
	mu       sync.Mutex
	identity string
	prev     game.Session
	seeded   bool
}

func (p *printer) update(s game.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev := p.prev
	p.prev = s
	if !p.seeded {
		p.seeded = true
		return
	}

	if len(s.Players) > len(prev.Players) {
		for id := range s.Players {
			if _, ok := prev.Players[id]; !ok && id != p.identity {
				fmt.Printf("* %s joined (%d players)\n", id, len(s.Players))
			}
		}
	}

	if s.Stage != prev.Stage {
		p.printStageChange(s)
	} else if s.Stage == game.StageQuestionDisplay && s.Countdown != prev.Countdown && s.Countdown <= 3 && s.Countdown > 0 {
		fmt.Printf("%d...\n", s.Countdown)
	}

	if s.FinalScore != nil && prev.FinalScore == nil {
		p.printScore(s)
	}
}

func (p *printer) printStageChange(s game.Session) {
	switch s.Stage {
	case game.StageQuestionDisplay:
		q := s.CurrentQuestion
		fmt.Printf("\n=== Round %d/%d — %s (%s) ===\n%s\n(buzzing opens in %d)\n",
			s.CurrentRound, s.TotalRounds, q.TopicName, q.Difficulty, q.Content, s.Countdown)
	case game.StageBuzzing:
		fmt.Println(">>> BUZZ NOW: /buzz <<<")
	case game.StageAnswering:
		if s.CurrentAnswerer == p.identity {
			fmt.Printf("You won the buzz! Answer with /answer <text> (%d seconds)\n", s.Countdown)
		} else {
			fmt.Printf("%s won the buzz and is answering...\n", s.CurrentAnswerer)
		}
	case game.StageFollowUp:
		if n := len(s.FollowUps); n > 0 {
			fmt.Printf("Follow-up: %s\n", s.FollowUps[n-1].Question)
			if s.CurrentAnswerer == p.identity {
				fmt.Printf("Reply with /followup <text> (%d seconds)\n", s.Countdown)
			}
		}
	case game.StageScoring:
		if s.FinalScore == nil {
			fmt.Println("Waiting for the judge...")
		}
	case game.StageGameOver:
		fmt.Println("\n=== GAME OVER ===")
		printScoreboard(s)
	}
}

func (p *printer) printScore(s game.Session) {
	fs := s.FinalScore
	fmt.Printf("\n--- Verdict for %s ---\n", s.CurrentAnswerer)
	for _, d := range fs.Dimensions {
		fmt.Printf("  %-28s %d/%d  %s\n", d.Name, d.Score, d.MaxScore, d.Feedback)
	}
	fmt.Printf("  TOTAL: %d/%d\n%s\n", fs.TotalScore, fs.TotalMaxScore, fs.OverallFeedback)
	printScoreboard(s)
	fmt.Println("Host: /next for the next round, /end to finish.")
}

func printState(s game.Session, identity string) {
	fmt.Printf("you=%s stage=%s round=%d/%d countdown=%d answerer=%s\n",
		identity, s.Stage, s.CurrentRound, s.TotalRounds, s.Countdown, s.CurrentAnswerer)
	if s.CurrentQuestion != nil {
		fmt.Printf("question: [%s] %s\n", s.CurrentQuestion.TopicName, s.CurrentQuestion.Content)
	}
	printScoreboard(s)
}

func printScoreboard(s game.Session) {
	players := make([]*game.Player, 0, len(s.Players))
	for _, p := range s.Players {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool {
		if players[i].Score != players[j].Score {
			return players[i].Score > players[j].Score
		}
		return players[i].Identity < players[j].Identity
	})
	fmt.Println("Scoreboard:")
	for _, p := range players {
		fmt.Printf("  %-32s %d\n", p.Identity, p.Score)
	}
}
