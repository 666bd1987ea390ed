package ingest

import (
	"time"

	"github.com/dvloznov/transaction-processor/internal/domain"
)

// Report is the serialisable form of a BatchResult, emitted for audit and
// exposed through the jobs API.
type Report struct {
	Batch            domain.BatchLocation `json:"batch"`
	Status           BatchState           `json:"status"`
	ProvisionEnabled bool                 `json:"provision_enabled"`
	Total            int                  `json:"total"`
	Succeeded        int                  `json:"succeeded"`
	PartiallyFailed  int                  `json:"partially_failed"`
	Failed           int                  `json:"failed"`
	StartedAt        time.Time            `json:"started_at"`
	FinishedAt       time.Time            `json:"finished_at"`
	Items            []ItemReport         `json:"items"`
}

// ItemReport is one entry of the per-item outcome map.
type ItemReport struct {
	RecordID    string      `json:"record_id"`
	Outcome     ItemOutcome `json:"outcome"`
	ProvisionID string      `json:"provision_id,omitempty"`
	Error       string      `json:"error,omitempty"`
	ErrorKind   ErrorKind   `json:"error_kind,omitempty"`
}

// Report builds the serialisable report.
func (r *BatchResult) Report() *Report {
	rep := &Report{
		Batch:            r.Location,
		Status:           r.State,
		ProvisionEnabled: r.ProvisionEnabled,
		Total:            len(r.Items),
		Succeeded:        r.Count(OutcomeSucceeded),
		PartiallyFailed:  r.Count(OutcomePartiallyFailed),
		Failed:           r.Count(OutcomeFailed),
		StartedAt:        r.StartedAt,
		FinishedAt:       r.FinishedAt,
		Items:            make([]ItemReport, 0, len(r.Items)),
	}

	for _, item := range r.Items {
		ir := ItemReport{
			RecordID:    item.RecordID,
			Outcome:     item.Outcome,
			ProvisionID: item.ProvisionID,
		}
		if item.Err != nil {
			ir.Error = item.Err.Error()
			ir.ErrorKind = item.Kind()
		}
		rep.Items = append(rep.Items, ir)
	}

	return rep
}

// Merge folds a re-drive report into prev. Items of next replace the
// entries of prev with the same record id; counts and status are
// recomputed over the combined item set. Either argument may be nil.
func Merge(prev, next *Report) *Report {
	if prev == nil {
		return next
	}
	if next == nil {
		return prev
	}

	merged := &Report{
		Batch:            next.Batch,
		ProvisionEnabled: next.ProvisionEnabled,
		StartedAt:        prev.StartedAt,
		FinishedAt:       next.FinishedAt,
		Items:            make([]ItemReport, 0, len(prev.Items)),
	}

	replaced := make(map[string]ItemReport, len(next.Items))
	for _, item := range next.Items {
		replaced[item.RecordID] = item
	}

	seen := make(map[string]bool, len(prev.Items))
	for _, item := range prev.Items {
		if r, ok := replaced[item.RecordID]; ok {
			item = r
		}
		seen[item.RecordID] = true
		merged.Items = append(merged.Items, item)
	}
	for _, item := range next.Items {
		if !seen[item.RecordID] {
			merged.Items = append(merged.Items, item)
		}
	}

	merged.Total = len(merged.Items)
	for _, item := range merged.Items {
		switch item.Outcome {
		case OutcomeSucceeded:
			merged.Succeeded++
		case OutcomePartiallyFailed:
			merged.PartiallyFailed++
		case OutcomeFailed:
			merged.Failed++
		}
	}

	merged.Status = StateSucceeded
	if merged.Succeeded != merged.Total {
		merged.Status = StateFailed
	}

	return merged
}
