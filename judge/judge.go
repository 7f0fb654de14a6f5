// Package judge is the client for the generative question and scoring
// service, an OpenAI-compatible chat-completions API. Calls are
// fallible and retryable; a failure is reported to the caller and
// never advances or corrupts game state.
package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/chengchew0204/buzzbox/game"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 30 * time.Second
)

// Config holds the API connection settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// FromEnv builds a Config from OPENAI_API_KEY, with optional
// OPENAI_BASE_URL and OPENAI_MODEL overrides.
func FromEnv() Config {
	return Config{
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		BaseURL: getEnvOrDefault("OPENAI_BASE_URL", defaultBaseURL),
		Model:   getEnvOrDefault("OPENAI_MODEL", defaultModel),
	}
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// CheckConfig reports whether the judge is usable, with enough detail
// for the user to fix their environment before a game starts.
func (c Config) CheckConfig() error {
	if c.APIKey == "" {
		return errors.New("judge: OPENAI_API_KEY is not set; add it to your environment or .env file")
	}
	return nil
}

// Client talks to the judge service. It implements game.Judge.
type Client struct {
	cfg   Config
	httpc *http.Client
}

// New returns a client for the given config.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg:   cfg,
		httpc: &http.Client{Timeout: cfg.Timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// complete runs one JSON-mode chat completion and unmarshals the
// model's reply into out.
func (c *Client) complete(ctx context.Context, system, user string, temperature float64, out any) error {
	if err := c.cfg.CheckConfig(); err != nil {
		return err
	}

	reqBody := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: temperature,
	}
	reqBody.ResponseFormat.Type = "json_object"

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("judge: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimSuffix(c.cfg.BaseURL, "/")+"/chat/completions",
		bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("judge: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("judge: request failed (check network and OPENAI_API_KEY): %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("judge: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("judge: API returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return fmt.Errorf("judge: decode response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return errors.New("judge: response contained no choices")
	}
	if err := json.Unmarshal([]byte(cr.Choices[0].Message.Content), out); err != nil {
		return fmt.Errorf("judge: model did not return the requested JSON: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// GenerateQuestion asks for a short open-ended discussion question on
// the topic named by contentID, or a random topic when empty.
func (c *Client) GenerateQuestion(ctx context.Context, difficulty, contentID string) (*game.Question, error) {
	topic := pickTopic(contentID)
	if difficulty == "" {
		difficulty = "medium"
	}

	user := fmt.Sprintf(`You are an expert educator and interviewer specializing in complexity science and emergence theory. Generate a concise, open-ended discussion question based on the following topic.

Topic: %s
Description: %s
Keywords: %s
Difficulty: %s

Requirements:
1. Keep the question SHORT (maximum 2-3 sentences) and GENERAL
2. Ask about relationships between concepts or real-world applications
3. Should be answerable in 90 seconds without requiring extensive background
4. Use clear, accessible language - avoid overly technical jargon
5. Focus on ONE main concept or comparison, not multiple ideas
6. Make it thought-provoking but not overwhelming

Return in JSON format:
{
  "question": "The question content (SHORT and GENERAL)"
}`, topic.Name, topic.Description, strings.Join(topic.Keywords, ", "), difficulty)

	var result struct {
		Question string `json:"question"`
	}
	err := c.complete(ctx,
		"You are an expert interviewer specializing in complexity science, emergence theory, and systems thinking. You excel at designing thought-provoking scenario-based questions.",
		user, 0.8, &result)
	if err != nil {
		return nil, err
	}
	if result.Question == "" {
		return nil, errors.New("judge: model returned an empty question")
	}

	return &game.Question{
		ID:         fmt.Sprintf("q_%d", time.Now().UnixMilli()),
		Topic:      topic.ID,
		TopicName:  topic.Name,
		Content:    result.Question,
		Difficulty: difficulty,
	}, nil
}

// EvaluateAnswer analyzes an answer and returns exactly one follow-up
// question probing its weakest point.
func (c *Client) EvaluateAnswer(ctx context.Context, question game.Question, answer string) (*game.FollowUpQuestion, error) {
	user := fmt.Sprintf(`You are a rigorous but supportive examiner. The candidate just provided an oral response to the following question:

Topic: %s
Question: %s

Candidate's Answer:
%s

As the examiner, analyze this answer and:
1. Identify strengths and areas for improvement
2. Based on gaps, ambiguities, or underdeveloped points in the answer, formulate EXACTLY ONE sharp but fair follow-up question
3. Question should test genuine understanding, not trick the candidate
4. Question should be concise and suitable for oral response (within 30 seconds)

Return in JSON format:
{
  "followUpQuestions": [
    {
      "question": "Follow-up question content",
      "purpose": "What this question aims to test"
    }
  ]
}`, question.TopicName, question.Content, answer)

	var result struct {
		FollowUpQuestions []game.FollowUpQuestion `json:"followUpQuestions"`
	}
	err := c.complete(ctx,
		"You are an expert examiner in complexity science and emergence theory, skilled at using follow-up questions to probe deeper understanding.",
		user, 0.7, &result)
	if err != nil {
		return nil, err
	}
	if len(result.FollowUpQuestions) == 0 || result.FollowUpQuestions[0].Question == "" {
		return nil, errors.New("judge: model returned no follow-up question")
	}
	fu := result.FollowUpQuestions[0]
	return &fu, nil
}

// FinalScore produces the multi-dimensional verdict for a complete
// round: the original answer plus any follow-up exchange.
func (c *Client) FinalScore(ctx context.Context, req game.ScoreRequest) (*game.FinalScore, error) {
	var followUpContext strings.Builder
	for i, fq := range req.FollowUps {
		answer := "(No answer)"
		if i < len(req.FollowUpAnswers) {
			answer = req.FollowUpAnswers[i].Transcript
		}
		fmt.Fprintf(&followUpContext, "\nFollow-up %d: %s\nCandidate's Answer: %s\n", i+1, fq.Question, answer)
	}

	user := fmt.Sprintf(`You are an expert evaluator. Provide an objective, multi-dimensional assessment of the candidate's complete performance.

Topic: %s
Original Question: %s

Original Answer:
%s
%s
Evaluate based on the following four dimensions (25 points each):

1. Conceptual Accuracy: Correctness and precision of concepts and terminology
2. Argument Structure: Logic, organization, and completeness of response
3. Examples & Applications: Ability to provide relevant examples or real-world applications
4. Follow-up Response Quality: Understanding and quality of responses to follow-up questions

Return in JSON format:
{
  "dimensions": [
    {
      "name": "Conceptual Accuracy",
      "score": 20,
      "maxScore": 25,
      "feedback": "Specific feedback"
    }
  ],
  "totalScore": 85,
  "totalMaxScore": 100,
  "overallFeedback": "Overall feedback and suggestions (3-4 sentences)"
}`, req.TopicName, req.Question, req.Answer, followUpContext.String())

	var result game.FinalScore
	err := c.complete(ctx,
		"You are a fair and professional evaluator who can objectively assess a candidate's understanding and communication abilities.",
		user, 0.5, &result)
	if err != nil {
		return nil, err
	}
	if result.TotalMaxScore == 0 {
		return nil, errors.New("judge: model returned an empty score")
	}
	return &result, nil
}
