package llm

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
	"github.com/xeipuuv/gojsonschema"

	"github.com/pavelanni/bandcoach/internal/apperr"
	"github.com/pavelanni/bandcoach/internal/llm/prompts"
	"github.com/pavelanni/bandcoach/internal/model"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const (
	schemaEvaluation = "evaluation"
	schemaBrainstorm = "brainstorm"
	schemaUpgrade    = "upgrade"
)

var (
	schemaOnce sync.Once
	schemaErr  error
	schemas    map[string]*gojsonschema.Schema
	schemaRaw  map[string][]byte
)

func loadSchemas() error {
	schemaOnce.Do(func() {
		schemas = make(map[string]*gojsonschema.Schema)
		schemaRaw = make(map[string][]byte)
		for _, name := range []string{schemaEvaluation, schemaBrainstorm, schemaUpgrade} {
			raw, err := schemaFS.ReadFile("schemas/" + name + ".json")
			if err != nil {
				schemaErr = fmt.Errorf("read schema %s: %w", name, err)
				return
			}
			s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
			if err != nil {
				schemaErr = fmt.Errorf("compile schema %s: %w", name, err)
				return
			}
			schemas[name] = s
			schemaRaw[name] = raw
		}
	})
	return schemaErr
}

// EvaluationRequest is one essay submitted for grading.
type EvaluationRequest struct {
	TaskType        model.TaskType
	Prompt          string
	Essay           string
	TaskImage       string
	SubmissionImage string
	Language        string
}

// Evaluate grades an essay. The returned evaluation has a locally recomputed
// overall band and word count.
func (c *Client) Evaluate(ctx context.Context, req EvaluationRequest) (*model.Evaluation, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	instruction, err := prompts.BuildEvaluation(req.TaskType, req.Prompt, req.Essay, req.Language,
		req.TaskImage != "", req.SubmissionImage != "")
	if err != nil {
		return nil, fmt.Errorf("build evaluation prompt: %w", err)
	}
	format, err := responseFormat(schemaEvaluation)
	if err != nil {
		return nil, err
	}

	seed := 42
	raw, err := c.complete(ctx, openai.ChatCompletionRequest{
		Messages:       []openai.ChatCompletionMessage{userMessage(instruction, req.TaskImage, req.SubmissionImage)},
		ResponseFormat: format,
		Temperature:    0.1,
		Seed:           &seed,
	})
	if err != nil {
		return nil, err
	}

	var eval model.Evaluation
	if err := decodeValidated(raw, schemaEvaluation, &eval); err != nil {
		return nil, err
	}
	eval.OverallBand = OverallBand(eval)
	eval.WordCount = model.WordCount(req.Essay)
	return &eval, nil
}

func userMessage(text string, images ...string) openai.ChatCompletionMessage {
	var parts []openai.ChatMessagePart
	for _, img := range images {
		if img == "" {
			continue
		}
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: dataURL(img)},
		})
	}
	if len(parts) == 0 {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text}
	}
	parts = append([]openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: text}}, parts...)
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, MultiContent: parts}
}

// dataURL accepts either a data URL or bare base64 JPEG data.
func dataURL(img string) string {
	if strings.HasPrefix(img, "data:") || strings.HasPrefix(img, "http://") || strings.HasPrefix(img, "https://") {
		return img
	}
	return "data:image/jpeg;base64," + img
}

func responseFormat(name string) (*openai.ChatCompletionResponseFormat, error) {
	if err := loadSchemas(); err != nil {
		return nil, err
	}
	return &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
		JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
			Name:   "ielts_" + name,
			Schema: json.RawMessage(schemaRaw[name]),
		},
	}, nil
}

// extractJSON returns the text between the first '{' and the last '}'.
func extractJSON(raw string) (string, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return "", errors.New("no JSON object in response")
	}
	return raw[start : end+1], nil
}

// decodeValidated isolates, validates and decodes a JSON reply.
func decodeValidated(raw, schemaName string, v any) error {
	if err := loadSchemas(); err != nil {
		return err
	}
	obj, err := extractJSON(raw)
	if err != nil {
		return apperr.NewMalformedResponse(err)
	}
	result, err := schemas[schemaName].Validate(gojsonschema.NewStringLoader(obj))
	if err != nil {
		return apperr.NewMalformedResponse(fmt.Errorf("parse LLM response: %w", err))
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return apperr.NewMalformedResponse(fmt.Errorf("response does not match %s schema: %s",
			schemaName, strings.Join(msgs, "; ")))
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return apperr.NewMalformedResponse(fmt.Errorf("decode LLM response: %w", err))
	}
	return nil
}

// RoundBand applies IELTS rounding to a mean band: a fraction below .25 rounds
// down, below .75 becomes .5, anything higher goes to the next whole band.
func RoundBand(mean float64) float64 {
	whole := math.Floor(mean)
	frac := mean - whole
	switch {
	case frac < 0.25:
		return whole
	case frac < 0.75:
		return whole + 0.5
	default:
		return whole + 1
	}
}

// OverallBand is the rounded mean of the four criterion scores.
func OverallBand(e model.Evaluation) float64 {
	var sum float64
	criteria := e.Criteria()
	for _, c := range criteria {
		sum += c.Score
	}
	return RoundBand(sum / float64(len(criteria)))
}
