package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/yungbote/progressledger/internal/observability"
	"github.com/yungbote/progressledger/internal/platform/logger"
)

const (
	DefaultOpenAIModel = "gpt-4o-mini"
	defaultRPS         = 1.0
	defaultBurst       = 1
)

type OpenAIConfig struct {
	APIKey  string  `yaml:"api_key"`
	Model   string  `yaml:"model"`
	BaseURL string  `yaml:"base_url"`
	RPS     float64 `yaml:"rps"`
}

// chatCompleter is the slice of the go-openai client the adapter uses.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type OpenAI struct {
	client  chatCompleter
	model   string
	limiter *rate.Limiter
	log     *logger.Logger
}

func NewOpenAI(cfg OpenAIConfig, baseLog *logger.Logger) (*OpenAI, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, fmt.Errorf("openai api key not configured")
	}
	ocfg := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		ocfg.BaseURL = cfg.BaseURL
	}
	return newOpenAI(openai.NewClientWithConfig(ocfg), cfg, baseLog), nil
}

func newOpenAI(client chatCompleter, cfg OpenAIConfig, baseLog *logger.Logger) *OpenAI {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultOpenAIModel
	}
	rps := cfg.RPS
	if rps <= 0 {
		rps = defaultRPS
	}
	return &OpenAI{
		client:  client,
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(rps), defaultBurst),
		log:     baseLog.With("classifier", "openai", "model", model),
	}
}

const attributionSystemPrompt = `You classify bracketed LitRPG system notifications from a serialized story and attribute each one to a character.

Event types: class_obtained, class_evolution, class_consolidation, class_removed, level_up,
skill_obtained, skill_removed, skill_change, skill_consolidation, spell_obtained, spell_removed,
condition, title, other, false_positive.

Use false_positive for dialogue, jokes, or anything that mimics the System without being a real event.
Use other for bracketed class or skill mentions that are not progression events.
Attribute by the surrounding text: pronouns, the point-of-view character, dialogue tags, who is in the scene.
Only name characters from the provided list. Use null when the character cannot be determined.

Respond with JSON only:
{"attributions":[{"event_id":0,"event_type":"level_up","character_name":"Name or null",
"parsed_data":{"class_name":"","level":0,"skill_name":"","spell_name":"","from_class":"","to_class":"",
"condition_name":"","title_name":""},"confidence":0.95,"reasoning":"short explanation"}]}

Only include parsed_data keys that apply. Confidence is 0.90-1.00 when explicit, 0.70-0.89 when likely, lower when unsure.`

type promptEvent struct {
	EventID         int    `json:"event_id"`
	RawText         string `json:"raw_text"`
	SurroundingText string `json:"surrounding_text"`
	Chapter         int    `json:"chapter"`
}

type promptCharacter struct {
	Name    string   `json:"name"`
	Aliases []string `json:"aliases,omitempty"`
}

type attributionResponse struct {
	Attributions []struct {
		EventID       int             `json:"event_id"`
		EventType     string          `json:"event_type"`
		CharacterName *string         `json:"character_name"`
		ParsedData    json.RawMessage `json:"parsed_data"`
		Confidence    float64         `json:"confidence"`
		Reasoning     string          `json:"reasoning"`
	} `json:"attributions"`
}

func (o *OpenAI) Classify(ctx context.Context, req Request) ([]Verdict, error) {
	if len(req.Candidates) == 0 {
		return nil, nil
	}
	if len(req.Candidates) > MaxBatch {
		return nil, fmt.Errorf("batch of %d exceeds %d candidates", len(req.Candidates), MaxBatch)
	}
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	prompt, err := buildUserPrompt(req)
	if err != nil {
		return nil, err
	}
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: attributionSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    0,
	})
	if err != nil {
		observability.ObserveClassifier("openai", "error")
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		observability.ObserveClassifier("openai", "empty")
		o.log.Warn("openai returned no choices")
		return Complete(req, nil), nil
	}
	verdicts, err := parseAttributions(req, resp.Choices[0].Message.Content)
	if err != nil {
		observability.ObserveClassifier("openai", "unparseable")
		o.log.Warn("openai response unparseable", "error", err)
		return Complete(req, nil), nil
	}
	observability.ObserveClassifier("openai", "ok")
	return verdicts, nil
}

func buildUserPrompt(req Request) (string, error) {
	events := make([]promptEvent, 0, len(req.Candidates))
	for i, c := range req.Candidates {
		events = append(events, promptEvent{
			EventID:         i,
			RawText:         c.RawText,
			SurroundingText: c.SurroundingText,
			Chapter:         c.ChapterOrder,
		})
	}
	chars := make([]promptCharacter, 0, len(req.Characters))
	for _, c := range req.Characters {
		chars = append(chars, promptCharacter{Name: c.Name, Aliases: c.Aliases})
	}
	eb, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return "", err
	}
	cb, err := json.MarshalIndent(chars, "", "  ")
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if req.KnownContext != "" {
		b.WriteString("Context: " + req.KnownContext + "\n\n")
	}
	b.WriteString("Known characters:\n")
	b.Write(cb)
	b.WriteString("\n\nEvents:\n")
	b.Write(eb)
	return b.String(), nil
}

// parseAttributions maps the batch-local event ids in content back onto the
// request's candidates.
func parseAttributions(req Request, content string) ([]Verdict, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	var parsed attributionResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &parsed); err != nil {
		return nil, err
	}
	idx := indexCharacters(req.Characters)
	got := make([]Verdict, 0, len(parsed.Attributions))
	for _, a := range parsed.Attributions {
		if a.EventID < 0 || a.EventID >= len(req.Candidates) {
			continue
		}
		v := Verdict{
			NotificationID: req.Candidates[a.EventID].NotificationID,
			Type:           a.EventType,
			Fields:         a.ParsedData,
			Confidence:     a.Confidence,
			Rationale:      a.Reasoning,
		}
		if a.CharacterName != nil {
			v.CharacterID = idx.lookup(*a.CharacterName)
		}
		got = append(got, v)
	}
	return Complete(req, got), nil
}
