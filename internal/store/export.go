package store

import (
	"fmt"
	"time"

	"github.com/pavelanni/bandcoach/internal/model"
)

// ExportHistory builds an export-ready view of a profile's history.
func (s *Store) ExportHistory(profileID string) (model.HistoryExport, error) {
	subs, err := s.ListSubmissions(profileID)
	if err != nil {
		return model.HistoryExport{}, fmt.Errorf("list submissions: %w", err)
	}

	export := model.HistoryExport{
		ProfileID:   profileID,
		ExportedAt:  time.Now().UTC(),
		Count:       len(subs),
		Submissions: make([]model.SubmissionExport, 0, len(subs)),
	}

	var total float64
	for _, sub := range subs {
		export.Submissions = append(export.Submissions, model.NewSubmissionExport(sub))
		total += sub.Evaluation.OverallBand
	}
	if len(subs) > 0 {
		export.AverageBand = total / float64(len(subs))
	}
	return export, nil
}
