// Package extractor is the boundary to the text-analysis model: entity
// extraction, window summaries and the summary of summaries.
package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"council-pipeline-go/internal/config"
	"council-pipeline-go/internal/logger"
	"council-pipeline-go/internal/retry"
	"council-pipeline-go/internal/types"
)

var ErrNoJSON = errors.New("no JSON object in model reply")

// Client sends one prompt and returns the model's raw reply.
type Client interface {
	Complete(ctx context.Context, task Task, prompt string) (string, error)
}

// NewClient returns the mock when cfg.Mock is set (USE_MOCK_LLM=true),
// otherwise an OpenAI-compatible chat client.
func NewClient(cfg config.LLM, httpCfg config.HTTP, log *logger.Logger) Client {
	if cfg.Mock {
		return Mock{}
	}
	return NewChatClient(cfg, httpCfg, log)
}

// ChatClient calls /chat/completions on an OpenAI-compatible server.
// Ollama serves one at http://localhost:11434/v1.
type ChatClient struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	maxElapsed  time.Duration
	log         *logger.Logger
}

func NewChatClient(cfg config.LLM, httpCfg config.HTTP, log *logger.Logger) *ChatClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = cfg.BaseURL
	oc.HTTPClient = &http.Client{Timeout: httpCfg.Timeout}
	return &ChatClient{
		client:      openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		maxElapsed:  httpCfg.MaxRetryElapsed,
		log:         log.Component("llm"),
	}
}

func (c *ChatClient) Complete(ctx context.Context, task Task, prompt string) (string, error) {
	var reply string
	start := time.Now()
	err := retry.Do(ctx, c.maxElapsed, func() error {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.model,
			Temperature: c.temperature,
			MaxTokens:   c.maxTokens,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		})
		if err != nil {
			c.log.WithError(err).WithField("task", task).Warn("llm call failed")
			return retry.OpenAI(err)
		}
		if len(resp.Choices) == 0 {
			return errors.New("llm returned no choices")
		}
		reply = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("llm %s: %w", task, err)
	}
	c.log.WithField("task", task).
		WithField("duration_ms", time.Since(start).Milliseconds()).
		Debug("llm call done")
	return reply, nil
}

// Mock answers every task with the same canned JSON. Each task reads only
// its own key.
type Mock struct{}

func (Mock) Complete(_ context.Context, task Task, prompt string) (string, error) {
	return `{
  "proper_names": ["Helena Moreno", "JP Morrell"],
  "ordinance_numbers": ["34,567"],
  "docket_numbers": ["12-24"],
  "street_addresses": ["1300 Perdido Street"],
  "summary": "- MOCK SUMMARY: council discussed ordinance 34,567 and docket 12-24."
}`, nil
}

// Extractor builds the prompts, calls the model and decodes the replies.
type Extractor struct {
	client Client
	log    *logger.Logger
}

func New(client Client, log *logger.Logger) *Extractor {
	return &Extractor{client: client, log: log.Component("extractor")}
}

// ExtractEntities runs the four entity prompts against text.
func (e *Extractor) ExtractEntities(ctx context.Context, text string) (types.Entities, error) {
	var ents types.Entities
	targets := []struct {
		task Task
		dst  *[]string
	}{
		{TaskProperNames, &ents.ProperNames},
		{TaskOrdinanceNumbers, &ents.OrdinanceNumbers},
		{TaskDocketNumbers, &ents.DocketNumbers},
		{TaskStreetAddresses, &ents.StreetAddresses},
	}
	for _, t := range targets {
		list, err := e.list(ctx, t.task, text)
		if err != nil {
			return types.Entities{}, err
		}
		*t.dst = list
	}
	return ents, nil
}

func (e *Extractor) list(ctx context.Context, task Task, text string) ([]string, error) {
	reply, err := e.client.Complete(ctx, task, BuildListPrompt(task, text))
	if err != nil {
		return nil, err
	}
	var out map[string]json.RawMessage
	if err := DecodeJSON(reply, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", task, err)
	}
	return decodeStrings(out[string(task)]), nil
}

// FocusedSummary summarizes one window, steering the model toward the
// entities already found in it.
func (e *Extractor) FocusedSummary(ctx context.Context, text string, ents types.Entities) (string, error) {
	return e.summary(ctx, TaskFocusedSummary, BuildFocusedPrompt(text, ents))
}

// OverallSummary summarizes the newline-joined window summaries.
func (e *Extractor) OverallSummary(ctx context.Context, text string) (string, error) {
	return e.summary(ctx, TaskOverallSummary, BuildOverallPrompt(text))
}

func (e *Extractor) summary(ctx context.Context, task Task, prompt string) (string, error) {
	reply, err := e.client.Complete(ctx, task, prompt)
	if err != nil {
		return "", err
	}
	var out struct {
		Summary json.RawMessage `json:"summary"`
	}
	if err := DecodeJSON(reply, &out); err != nil {
		// Models sometimes answer in plain prose; keep the text.
		e.log.WithField("task", task).Debug("summary reply was not JSON, using raw text")
		return strings.TrimSpace(reply), nil
	}
	return decodeText(out.Summary), nil
}

// DecodeJSON unmarshals the object found between the first '{' and the last
// '}' of reply into v.
func DecodeJSON(reply string, v any) error {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return ErrNoJSON
	}
	if err := json.Unmarshal([]byte(reply[start:end+1]), v); err != nil {
		return fmt.Errorf("decode model reply: %w", err)
	}
	return nil
}

// decodeStrings accepts a JSON list of strings or scalars, or a single
// string. Anything else yields nil.
func decodeStrings(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []any
	if err := json.Unmarshal(raw, &list); err != nil {
		var one string
		if json.Unmarshal(raw, &one) == nil && strings.TrimSpace(one) != "" {
			return []string{strings.TrimSpace(one)}
		}
		return nil
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		s := strings.TrimSpace(fmt.Sprint(v))
		if v == nil || s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

// decodeText accepts a JSON string or a list of strings (bullets) and
// returns text. Lists are joined one item per line.
func decodeText(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	if items := decodeStrings(raw); len(items) > 0 {
		return strings.Join(items, "\n")
	}
	return ""
}
