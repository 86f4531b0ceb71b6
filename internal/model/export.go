package model

import "time"

// HistoryExport is the top-level JSON structure for history export.
type HistoryExport struct {
	ProfileID   string             `json:"profile_id"`
	ExportedAt  time.Time          `json:"exported_at"`
	Count       int                `json:"count"`
	AverageBand float64            `json:"average_band"`
	Submissions []SubmissionExport `json:"submissions"`
}

// SubmissionExport holds one submission flattened for export.
type SubmissionExport struct {
	ID                string    `json:"id"`
	Mode              Mode      `json:"mode"`
	TaskType          TaskType  `json:"task_type"`
	CreatedAt         time.Time `json:"created_at"`
	Prompt            string    `json:"prompt"`
	Essay             string    `json:"essay"`
	WordCount         int       `json:"word_count"`
	OverallBand       float64   `json:"overall_band"`
	TaskResponse      float64   `json:"task_response"`
	CoherenceCohesion float64   `json:"coherence_cohesion"`
	LexicalResource   float64   `json:"lexical_resource"`
	GrammaticalRange  float64   `json:"grammatical_range"`
	CorrectedText     string    `json:"corrected_text"`
}

// NewSubmissionExport flattens a submission.
func NewSubmissionExport(s Submission) SubmissionExport {
	e := s.Evaluation
	return SubmissionExport{
		ID:                s.ID,
		Mode:              s.Mode,
		TaskType:          s.TaskType,
		CreatedAt:         s.CreatedAt,
		Prompt:            s.Prompt,
		Essay:             s.Essay,
		WordCount:         e.WordCount,
		OverallBand:       e.OverallBand,
		TaskResponse:      e.TaskResponse.Score,
		CoherenceCohesion: e.CoherenceCohesion.Score,
		LexicalResource:   e.LexicalResource.Score,
		GrammaticalRange:  e.GrammaticalRange.Score,
		CorrectedText:     e.CorrectedText,
	}
}
