package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/bandcoach/internal/apperr"
	"github.com/pavelanni/bandcoach/internal/llm/prompts"
	"github.com/pavelanni/bandcoach/internal/model"
)

// maxSpeechRunes is the input limit of the speech endpoint.
const maxSpeechRunes = 4096

// GenerateTopic returns a fresh exam question for the task type.
func (c *Client) GenerateTopic(ctx context.Context, taskType model.TaskType) (string, error) {
	instruction, err := prompts.BuildTopic(taskType)
	if err != nil {
		return "", fmt.Errorf("build topic prompt: %w", err)
	}
	raw, err := c.complete(ctx, openai.ChatCompletionRequest{
		Messages:    []openai.ChatCompletionMessage{userMessage(instruction)},
		Temperature: 0.9,
	})
	if err != nil {
		return "", err
	}
	return nonEmpty(raw)
}

// Brainstorm returns ideas, vocabulary and a paragraph plan for a question.
func (c *Client) Brainstorm(ctx context.Context, taskType model.TaskType, prompt string) (*model.Brainstorm, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, apperr.NewInvalidRequest("prompt is required")
	}
	instruction, err := prompts.BuildBrainstorm(taskType, prompt)
	if err != nil {
		return nil, fmt.Errorf("build brainstorm prompt: %w", err)
	}
	var out model.Brainstorm
	if err := c.structured(ctx, instruction, schemaBrainstorm, 0.7, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpgradeVocabulary suggests band 7, 8 and 9 replacements for a word or phrase.
func (c *Client) UpgradeVocabulary(ctx context.Context, word string) (*model.Upgrade, error) {
	return c.upgrade(ctx, prompts.Vocabulary, word)
}

// UpgradeSentence rewrites a sentence at band 7, 8 and 9.
func (c *Client) UpgradeSentence(ctx context.Context, sentence string) (*model.Upgrade, error) {
	return c.upgrade(ctx, prompts.Sentence, sentence)
}

func (c *Client) upgrade(ctx context.Context, n prompts.Name, text string) (*model.Upgrade, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperr.NewInvalidRequest("text is required")
	}
	instruction, err := prompts.BuildText(n, text)
	if err != nil {
		return nil, fmt.Errorf("build %s prompt: %w", n, err)
	}
	var out model.Upgrade
	if err := c.structured(ctx, instruction, schemaUpgrade, 0.5, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// QuickScan returns a short list of the most visible problems in an essay.
func (c *Client) QuickScan(ctx context.Context, essay string) (string, error) {
	if strings.TrimSpace(essay) == "" {
		return "", apperr.NewInvalidRequest("essay is required")
	}
	instruction, err := prompts.BuildText(prompts.QuickScan, essay)
	if err != nil {
		return "", fmt.Errorf("build quick scan prompt: %w", err)
	}
	raw, err := c.complete(ctx, openai.ChatCompletionRequest{
		Messages:    []openai.ChatCompletionMessage{userMessage(instruction)},
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}
	return nonEmpty(raw)
}

func (c *Client) structured(ctx context.Context, instruction, schemaName string, temperature float32, v any) error {
	format, err := responseFormat(schemaName)
	if err != nil {
		return err
	}
	raw, err := c.complete(ctx, openai.ChatCompletionRequest{
		Messages:       []openai.ChatCompletionMessage{userMessage(instruction)},
		ResponseFormat: format,
		Temperature:    temperature,
	})
	if err != nil {
		return err
	}
	return decodeValidated(raw, schemaName, v)
}

// SynthesizeSpeech reads text aloud and returns MP3 audio.
func (c *Client) SynthesizeSpeech(ctx context.Context, text string) ([]byte, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.NewInvalidRequest("text is required")
	}
	if r := []rune(text); len(r) > maxSpeechRunes {
		text = string(r[:maxSpeechRunes])
	}

	var audio []byte
	err := c.withRetry(ctx, func() error {
		resp, err := c.api.CreateSpeech(ctx, openai.CreateSpeechRequest{
			Model:          openai.SpeechModel(c.speechModel),
			Input:          text,
			Voice:          openai.SpeechVoice(c.voice),
			ResponseFormat: openai.SpeechResponseFormatMp3,
		})
		if err != nil {
			return classify(err)
		}
		defer resp.Close()
		audio, err = io.ReadAll(resp)
		if err != nil {
			return apperr.NewTransient(fmt.Errorf("read speech: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, apperr.NewMalformedResponse(errors.New("speech endpoint returned no audio"))
	}
	return audio, nil
}

// ChatRequest is one follow-up question with its conversation so far.
type ChatRequest struct {
	Essay    string
	Analysis string
	Language string
	History  []model.ChatMessage
	Message  string
}

func (c *Client) chatRequest(req ChatRequest) (openai.ChatCompletionRequest, error) {
	if strings.TrimSpace(req.Message) == "" {
		return openai.ChatCompletionRequest{}, apperr.NewInvalidRequest("message is required")
	}
	system, err := prompts.BuildChatSystem(req.Essay, req.Analysis, req.Language)
	if err != nil {
		return openai.ChatCompletionRequest{}, fmt.Errorf("build chat prompt: %w", err)
	}
	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
	}
	for _, m := range req.History {
		role := openai.ChatMessageRoleUser
		if m.Role == model.ChatRoleExaminer {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Text})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Message})
	return openai.ChatCompletionRequest{Model: c.model, Messages: msgs, Temperature: 0.4}, nil
}

// Chat answers a follow-up question.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	creq, err := c.chatRequest(req)
	if err != nil {
		return "", err
	}
	raw, err := c.complete(ctx, creq)
	if err != nil {
		return "", err
	}
	return nonEmpty(raw)
}

// ChatStream answers a follow-up question, passing each token to onDelta.
// It returns the full reply.
func (c *Client) ChatStream(ctx context.Context, req ChatRequest, onDelta func(string) error) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	creq, err := c.chatRequest(req)
	if err != nil {
		return "", err
	}
	creq.Stream = true

	var stream *openai.ChatCompletionStream
	err = c.withRetry(ctx, func() error {
		var err error
		stream, err = c.api.CreateChatCompletionStream(ctx, creq)
		return classify(err)
	})
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sb.String(), classify(err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		sb.WriteString(delta)
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return sb.String(), err
			}
		}
	}
	return nonEmpty(sb.String())
}

func nonEmpty(raw string) (string, error) {
	out := strings.TrimSpace(raw)
	if out == "" {
		return "", apperr.NewMalformedResponse(errors.New("LLM returned an empty reply"))
	}
	return out, nil
}
