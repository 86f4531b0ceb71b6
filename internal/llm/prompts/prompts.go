package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/bandcoach/internal/model"
)

//go:embed templates/*.tmpl
var embedded embed.FS

// MaxInputRunes limits any candidate text placed into a prompt.
const MaxInputRunes = 10000

var (
	inputTagRegex = regexp.MustCompile(`(?i)</?\s*(essay|task-prompt|text|assessment|system-instructions)\b[^>]*>`)
)

// Name identifies a prompt template.
type Name string

const (
	Evaluate   Name = "evaluate"
	Topic      Name = "topic"
	Brainstorm Name = "brainstorm"
	Vocabulary Name = "vocabulary"
	Sentence   Name = "sentence"
	QuickScan  Name = "quick_scan"
	Chat       Name = "chat"
)

var allNames = []Name{Evaluate, Topic, Brainstorm, Vocabulary, Sentence, QuickScan, Chat}

var (
	loadOnce  sync.Once
	loadErr   error
	templates map[Name]*template.Template
)

// EvalData holds template data for the evaluation prompt.
type EvalData struct {
	TaskType           model.TaskType
	TaskLabel          string
	Prompt             string
	Essay              string
	WordCount          int
	MinWords           int
	UnderLength        bool
	HasTaskImage       bool
	HasSubmissionImage bool
	Language           string
}

// TaskData holds template data for topic and brainstorm prompts.
type TaskData struct {
	TaskType  model.TaskType
	TaskLabel string
	Prompt    string
}

// TextData holds template data for single-text tools.
type TextData struct {
	Text string
}

// ChatData holds template data for the chat system prompt.
type ChatData struct {
	Essay    string
	Analysis string
	Language string
}

// Load parses the embedded templates once.
func Load() error {
	return load(embedded)
}

func load(fsys fs.FS) error {
	loadOnce.Do(func() {
		templates = make(map[Name]*template.Template, len(allNames))
		for _, n := range allNames {
			file := "templates/" + string(n) + ".tmpl"
			content, err := fs.ReadFile(fsys, file)
			if err != nil {
				loadErr = errors.New("failed to read prompt file " + file + ": " + err.Error())
				return
			}
			tmpl, err := template.New(string(n)).Parse(string(content))
			if err != nil {
				loadErr = errors.New("failed to parse prompt template " + file + ": " + err.Error())
				return
			}
			templates[n] = tmpl
		}
	})
	return loadErr
}

func render(n Name, data any) (string, error) {
	if err := Load(); err != nil {
		return "", fmt.Errorf("templates load failed: %w", err)
	}
	tmpl, ok := templates[n]
	if !ok {
		return "", errors.New("unknown prompt: " + string(n))
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

// BuildEvaluation builds the grading instruction for one essay.
func BuildEvaluation(taskType model.TaskType, prompt, essay, language string, hasTaskImage, hasSubmissionImage bool) (string, error) {
	words := model.WordCount(essay)
	data := EvalData{
		TaskType:           taskType,
		TaskLabel:          taskType.Label(),
		Prompt:             sanitize(prompt),
		Essay:              sanitize(essay),
		WordCount:          words,
		MinWords:           taskType.MinWords(),
		UnderLength:        words < taskType.MinWords(),
		HasTaskImage:       hasTaskImage,
		HasSubmissionImage: hasSubmissionImage,
		Language:           LanguageName(language),
	}
	return render(Evaluate, data)
}

// BuildTopic builds the topic generation instruction.
func BuildTopic(taskType model.TaskType) (string, error) {
	return render(Topic, TaskData{TaskType: taskType, TaskLabel: taskType.Label()})
}

// BuildBrainstorm builds the planning instruction for a question.
func BuildBrainstorm(taskType model.TaskType, prompt string) (string, error) {
	return render(Brainstorm, TaskData{TaskType: taskType, TaskLabel: taskType.Label(), Prompt: sanitize(prompt)})
}

// BuildText builds one of the single-text tool instructions.
func BuildText(n Name, text string) (string, error) {
	switch n {
	case Vocabulary, Sentence, QuickScan:
	default:
		return "", errors.New("not a text prompt: " + string(n))
	}
	return render(n, TextData{Text: sanitize(text)})
}

// BuildChatSystem builds the examiner persona for follow-up chat.
func BuildChatSystem(essay, analysis, language string) (string, error) {
	data := ChatData{Language: LanguageName(language)}
	if strings.TrimSpace(essay) != "" {
		data.Essay = sanitize(essay)
	}
	if strings.TrimSpace(analysis) != "" {
		data.Analysis = sanitize(analysis)
	}
	return render(Chat, data)
}

// LanguageName maps a language tag to the name used in instructions.
func LanguageName(tag string) string {
	if strings.HasPrefix(strings.ToLower(tag), "ru") {
		return "Russian"
	}
	return "English"
}

func sanitize(s string) string {
	s = inputTagRegex.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	if s == "" {
		return "[No text provided]"
	}

	if utf8.RuneCountInString(s) > MaxInputRunes {
		runes := []rune(s)
		s = string(runes[:MaxInputRunes]) + "\n\n[Text truncated due to length]"
	}
	return s
}
