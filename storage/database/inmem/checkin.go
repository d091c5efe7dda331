package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/pavulla/kiosk/core"
	"github.com/pavulla/kiosk/core/checkin"
)

type checkinRepository struct {
	db *checkinTable
}

var _ checkin.Repository = (*checkinRepository)(nil) // interface compliance check

func NewCheckinRepository(db *DB) *checkinRepository {
	return &checkinRepository{db: db.checkin}
}

func (repo *checkinRepository) CreateRecord(_ context.Context, rec checkin.Record) (checkin.Record, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	rec.ID = uuid.New().String()
	rec.StartedAt = rec.StartedAt.UTC()
	rec.FinishedAt = rec.FinishedAt.UTC()
	if rec.Result != nil {
		rec.Result = append([]byte(nil), rec.Result...)
	}
	repo.db.table[rec.ID] = &rec
	return rec, nil
}

func (repo *checkinRepository) QueryRecords(_ context.Context, filter *checkin.QueryFilter, ordering []core.DBOrdering) ([]checkin.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	records := make([]checkin.Record, 0, len(repo.db.table))
	for _, rec := range repo.db.table {
		if filter.Match(*rec) {
			records = append(records, *rec)
		}
	}
	sort.SliceStable(records, func(i, j int) bool { return less(records[i], records[j], ordering) })
	return records, nil
}

// less compares on each ordering in turn; ties fall back to the ID for a stable result.
func less(a, b checkin.Record, ordering []core.DBOrdering) bool {
	for _, ord := range ordering {
		c := compare(a, b, ord.Field)
		if c == 0 {
			continue
		}
		if ord.Ascending {
			return c < 0
		}
		return c > 0
	}
	return a.ID < b.ID
}

func compare(a, b checkin.Record, field string) int {
	switch field {
	case "started_at":
		return compareTimes(a.StartedAt.UnixNano(), b.StartedAt.UnixNano())
	case "finished_at":
		return compareTimes(a.FinishedAt.UnixNano(), b.FinishedAt.UnixNano())
	case "guest_id":
		return strings.Compare(a.GuestID, b.GuestID)
	case "outcome":
		return strings.Compare(string(a.Outcome), string(b.Outcome))
	}
	return 0
}

func compareTimes(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
