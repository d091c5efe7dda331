package checkin

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pavulla/kiosk/core"
)

var (
	// HistoryOrderingFields are the fields history queries can be ordered by.
	HistoryOrderingFields = []string{"started_at", "finished_at", "guest_id", "outcome"}

	DefaultHistoryOrdering = []core.DBOrdering{{Field: "started_at"}}
)

type (
	// Record is a settled scan as kept in the check-in history.
	Record struct {
		ID          string          `json:"id"`
		ScanID      string          `json:"scan_id"`
		GuestID     string          `json:"guest_id"`
		GuestName   string          `json:"guest_name,omitempty"`
		RawText     string          `json:"raw_text,omitempty"`
		ExtractedID string          `json:"extracted_id,omitempty"`
		ActivityID  string          `json:"activity_id,omitempty"`
		Outcome     OutcomeKind     `json:"outcome"`
		Reason      string          `json:"reason,omitempty"`
		Result      json.RawMessage `json:"result,omitempty"`
		StartedAt   time.Time       `json:"started_at"`
		FinishedAt  time.Time       `json:"finished_at"`
	}

	// QueryFilter narrows history queries; zero fields match everything.
	QueryFilter struct {
		GuestID  string        `json:"guest"`
		Outcomes []OutcomeKind `json:"outcome" validate:"dive,outcome"`
		From     time.Time     `json:"from"`
		To       time.Time     `json:"to" validate:"omitempty,gtefield=From"`
	}

	Repository interface {
		CreateRecord(ctx context.Context, rec Record) (Record, error)
		// QueryRecords applies AND operation on the QueryFilter fields, OR within QueryFilter.Outcomes.
		QueryRecords(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Record, error)
	}
)

// Match reports whether rec passes the filter; used by repositories that filter in memory.
func (f *QueryFilter) Match(rec Record) bool {
	if f == nil {
		return true
	}
	if f.GuestID != "" && rec.GuestID != f.GuestID {
		return false
	}
	if len(f.Outcomes) > 0 {
		found := false
		for _, o := range f.Outcomes {
			if rec.Outcome == o {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.From.IsZero() && rec.StartedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && rec.StartedAt.After(f.To) {
		return false
	}
	return true
}
