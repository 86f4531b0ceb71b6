package model

import (
	"context"
	"strings"
	"time"
)

// Mode is the practice mode a draft belongs to.
type Mode string

const (
	// ModeExam is timed exam simulation.
	ModeExam Mode = "exam"
	// ModeCheck is direct grading of a finished essay.
	ModeCheck Mode = "check"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(s)) {
	case ModeExam:
		return ModeExam, true
	case ModeCheck:
		return ModeCheck, true
	}
	return "", false
}

// TaskType is the IELTS writing task.
type TaskType string

const (
	TaskType1 TaskType = "task1"
	TaskType2 TaskType = "task2"
)

// ParseTaskType validates a task type name.
func ParseTaskType(s string) (TaskType, bool) {
	switch TaskType(strings.ToLower(s)) {
	case TaskType1:
		return TaskType1, true
	case TaskType2:
		return TaskType2, true
	}
	return "", false
}

// MinWords returns the minimum word count expected for the task.
func (t TaskType) MinWords() int {
	if t == TaskType1 {
		return 150
	}
	return 250
}

// TimeLimit returns the exam time allowance in seconds.
func (t TaskType) TimeLimit() int {
	if t == TaskType1 {
		return 1200
	}
	return 2400
}

// Label is the human readable task name used in prompts.
func (t TaskType) Label() string {
	if t == TaskType1 {
		return "Task 1"
	}
	return "Task 2"
}

// Draft is the in-progress state of one practice mode.
type Draft struct {
	TaskType         TaskType  `json:"taskType"`
	Prompt           string    `json:"prompt"`
	Essay            string    `json:"essay"`
	RemainingSeconds int       `json:"remainingSeconds"`
	TimerRunning     bool      `json:"timerRunning"`
	TaskImage        string    `json:"taskImage,omitempty"`
	SubmissionImage  string    `json:"submissionImage,omitempty"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// NewDraft returns an empty draft with the default timer for the task.
func NewDraft(t TaskType) Draft {
	if t == "" {
		t = TaskType2
	}
	return Draft{TaskType: t, RemainingSeconds: t.TimeLimit()}
}

// WordCount counts whitespace separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// Criterion holds the band and comments for one IELTS criterion.
type Criterion struct {
	Score      float64  `json:"score"`
	Feedback   string   `json:"feedback"`
	Strengths  []string `json:"strengths,omitempty"`
	Weaknesses []string `json:"weaknesses,omitempty"`
}

// VocabularyHighlight is a suggested word replacement.
type VocabularyHighlight struct {
	Word       string `json:"word"`
	Suggestion string `json:"suggestion"`
	Reason     string `json:"reason"`
}

// DetailedError is one error found in the essay.
type DetailedError struct {
	Original    string `json:"original"`
	Correction  string `json:"correction"`
	Explanation string `json:"explanation"`
	Type        string `json:"type"`
}

// Evaluation is the structured assessment returned by the model.
type Evaluation struct {
	OverallBand          float64               `json:"overallBand"`
	CEFRLevel            string                `json:"cefrLevel,omitempty"`
	MentorNote           string                `json:"mentorNote,omitempty"`
	TaskResponse         Criterion             `json:"taskResponse"`
	CoherenceCohesion    Criterion             `json:"coherenceCohesion"`
	LexicalResource      Criterion             `json:"lexicalResource"`
	GrammaticalRange     Criterion             `json:"grammaticalRange"`
	DetailedAnalysis     string                `json:"detailedAnalysis,omitempty"`
	CorrectedText        string                `json:"correctedText"`
	KeyImprovements      []string              `json:"keyImprovements,omitempty"`
	VocabularyHighlights []VocabularyHighlight `json:"vocabularyHighlights,omitempty"`
	DetailedErrors       []DetailedError       `json:"detailedErrors,omitempty"`
	WordCount            int                   `json:"wordCount"`
}

// Criteria returns the four criteria in rubric order.
func (e Evaluation) Criteria() []Criterion {
	return []Criterion{e.TaskResponse, e.CoherenceCohesion, e.LexicalResource, e.GrammaticalRange}
}

// Submission is an immutable record of a successfully evaluated attempt.
type Submission struct {
	ID              string     `json:"id"`
	ProfileID       string     `json:"profileId"`
	Mode            Mode       `json:"mode"`
	CreatedAt       time.Time  `json:"createdAt"`
	TaskType        TaskType   `json:"taskType"`
	Prompt          string     `json:"prompt"`
	Essay           string     `json:"essay"`
	TaskImage       string     `json:"taskImage,omitempty"`
	SubmissionImage string     `json:"submissionImage,omitempty"`
	Evaluation      Evaluation `json:"evaluation"`
}

// Theme is the UI colour preference.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Profile holds per-visitor access, credit and preference state.
type Profile struct {
	ID        string    `json:"id"`
	Unlocked  bool      `json:"unlocked"`
	Credits   int       `json:"credits"`
	Theme     Theme     `json:"theme"`
	Language  string    `json:"language"`
	CreatedAt time.Time `json:"createdAt"`
}

// Brainstorm is the structured idea list for a prompt.
type Brainstorm struct {
	Ideas      []string `json:"ideas"`
	Vocabulary []string `json:"vocabulary"`
	Structure  []string `json:"structure"`
}

// Upgrade holds band 7, 8 and 9 rewrites of a word or sentence.
type Upgrade struct {
	Band7 string `json:"band7"`
	Band8 string `json:"band8"`
	Band9 string `json:"band9"`
}

// ChatRole is the author of a chat turn.
type ChatRole string

const (
	ChatRoleUser     ChatRole = "user"
	ChatRoleExaminer ChatRole = "examiner"
)

// ChatMessage is one turn of the follow-up conversation.
type ChatMessage struct {
	Role ChatRole `json:"role"`
	Text string   `json:"text"`
}

// AppConfig holds runtime parameters set via CLI flags.
type AppConfig struct {
	RequireAccess  bool   // Submissions need an unlocked profile
	CreditsEnabled bool   // Submissions spend credits
	InitialCredits int    // Balance after creation or refill
	HistoryCap     int    // Maximum submissions kept per profile
	BasePath       string // URL prefix for sub-path deployments (e.g. "/ru")
	SecureCookies  bool   // Set Secure flag on cookies (disable for local dev)
	// AllowedOrigins are the cross-origin sites (cors-origins) that may open
	// the chat websocket.
	AllowedOrigins []string
}

type profileCtxKey struct{}

// ContextWithProfile stores the profile ID in the request context.
func ContextWithProfile(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, profileCtxKey{}, id)
}

// ProfileFromContext retrieves the profile ID from context (empty string if not set).
func ProfileFromContext(ctx context.Context) string {
	id, _ := ctx.Value(profileCtxKey{}).(string)
	return id
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}
