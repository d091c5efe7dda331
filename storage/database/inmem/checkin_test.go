package inmemdb_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavulla/kiosk/core"
	"github.com/pavulla/kiosk/core/checkin"
	"github.com/pavulla/kiosk/storage/database/inmem"
)

func TestCheckinRepository(t *testing.T) {
	ctx := context.Background()
	repo := inmemdb.NewCheckinRepository(inmemdb.Open())
	base := time.Date(2021, 3, 1, 10, 0, 0, 0, time.FixedZone("CAT", 2*3600))

	result := json.RawMessage(`{"ok":true}`)
	first, err := repo.CreateRecord(ctx, checkin.Record{GuestID: "g-2", Outcome: checkin.OutcomeSuccess, Result: result, StartedAt: base})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, time.UTC, first.StartedAt.Location())

	// the stored copy does not alias the caller's buffer
	result[1] = 'X'
	records, err := repo.QueryRecords(ctx, nil, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(records[0].Result))

	_, err = repo.CreateRecord(ctx, checkin.Record{GuestID: "g-1", Outcome: checkin.OutcomeError, StartedAt: base.Add(time.Minute)})
	require.NoError(t, err)
	_, err = repo.CreateRecord(ctx, checkin.Record{GuestID: "g-1", Outcome: checkin.OutcomeSuccess, StartedAt: base.Add(2 * time.Minute)})
	require.NoError(t, err)

	tests := []struct {
		name     string
		filter   *checkin.QueryFilter
		ordering []core.DBOrdering
		want     []string
	}{
		{name: "default newest first", ordering: checkin.DefaultHistoryOrdering, want: []string{"g-1/success", "g-1/error", "g-2/success"}},
		{
			name:     "guest then time",
			ordering: core.ParseOrdering("guest_id,started_at", checkin.HistoryOrderingFields...),
			want:     []string{"g-1/error", "g-1/success", "g-2/success"},
		},
		{
			name:     "outcome filter",
			filter:   &checkin.QueryFilter{Outcomes: []checkin.OutcomeKind{checkin.OutcomeSuccess}},
			ordering: checkin.DefaultHistoryOrdering,
			want:     []string{"g-1/success", "g-2/success"},
		},
		{name: "no match", filter: &checkin.QueryFilter{GuestID: "g-3"}, want: []string{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			records, err := repo.QueryRecords(ctx, tc.filter, tc.ordering)
			require.NoError(t, err)
			got := make([]string, 0, len(records))
			for _, rec := range records {
				got = append(got, rec.GuestID+"/"+string(rec.Outcome))
			}
			assert.Equal(t, tc.want, got)
		})
	}
}
