package sqlxrepos

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/pavulla/kiosk/core"
	"github.com/pavulla/kiosk/core/checkin"
)

const checkinColumns = "id, scan_id, guest_id, guest_name, raw_text, extracted_id, activity_id, outcome, reason, result, started_at, finished_at"

type checkinRow struct {
	ID          string      `db:"id"`
	ScanID      string      `db:"scan_id"`
	GuestID     string      `db:"guest_id"`
	GuestName   null.String `db:"guest_name"`
	RawText     null.String `db:"raw_text"`
	ExtractedID null.String `db:"extracted_id"`
	ActivityID  null.String `db:"activity_id"`
	Outcome     string      `db:"outcome"`
	Reason      null.String `db:"reason"`
	Result      null.JSON   `db:"result"`
	StartedAt   time.Time   `db:"started_at"`
	FinishedAt  time.Time   `db:"finished_at"`
}

func toRow(rec checkin.Record) checkinRow {
	return checkinRow{
		ID:          rec.ID,
		ScanID:      rec.ScanID,
		GuestID:     rec.GuestID,
		GuestName:   null.NewString(rec.GuestName, rec.GuestName != ""),
		RawText:     null.NewString(rec.RawText, rec.RawText != ""),
		ExtractedID: null.NewString(rec.ExtractedID, rec.ExtractedID != ""),
		ActivityID:  null.NewString(rec.ActivityID, rec.ActivityID != ""),
		Outcome:     string(rec.Outcome),
		Reason:      null.NewString(rec.Reason, rec.Reason != ""),
		Result:      null.NewJSON(rec.Result, len(rec.Result) > 0),
		StartedAt:   rec.StartedAt.UTC(),
		FinishedAt:  rec.FinishedAt.UTC(),
	}
}

func (row checkinRow) record() checkin.Record {
	rec := checkin.Record{
		ID:          row.ID,
		ScanID:      row.ScanID,
		GuestID:     row.GuestID,
		GuestName:   row.GuestName.String,
		RawText:     row.RawText.String,
		ExtractedID: row.ExtractedID.String,
		ActivityID:  row.ActivityID.String,
		Outcome:     checkin.OutcomeKind(row.Outcome),
		Reason:      row.Reason.String,
		StartedAt:   row.StartedAt.UTC(),
		FinishedAt:  row.FinishedAt.UTC(),
	}
	if row.Result.Valid {
		rec.Result = row.Result.JSON
	}
	return rec
}

// database/sql does not export its closed-pool error
const dbClosedMsg = "sql: database is closed"

// dbError wraps err. A lost database becomes a shutdown error: the kiosk cannot keep its check-in history without it.
func dbError(err error, msg string) error {
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) || err.Error() == dbClosedMsg {
		return core.NewShutdownError(msg + ": " + err.Error())
	}
	return errors.Wrap(err, msg)
}

type checkinRepository struct {
	db *sqlx.DB
}

var _ checkin.Repository = (*checkinRepository)(nil) // interface compliance check

func NewCheckinRepository(db *sqlx.DB) *checkinRepository {
	return &checkinRepository{db: db}
}

func (repo *checkinRepository) CreateRecord(ctx context.Context, rec checkin.Record) (checkin.Record, error) {
	rec.ID = uuid.New().String()
	row := toRow(rec)
	q := "INSERT INTO checkin (" + checkinColumns + ") VALUES " +
		"(:id, :scan_id, :guest_id, :guest_name, :raw_text, :extracted_id, :activity_id, :outcome, :reason, :result, :started_at, :finished_at)"
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return checkin.Record{}, dbError(err, "inserting checkin")
	}
	return row.record(), nil
}

func (repo *checkinRepository) QueryRecords(ctx context.Context, filter *checkin.QueryFilter, ordering []core.DBOrdering) ([]checkin.Record, error) {
	q, args := buildQuery(filter, ordering)
	var rows []checkinRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, dbError(err, "querying checkins")
	}
	records := make([]checkin.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.record())
	}
	return records, nil
}

func buildQuery(filter *checkin.QueryFilter, ordering []core.DBOrdering) (string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter != nil {
		if filter.GuestID != "" {
			where = append(where, "guest_id = "+arg(filter.GuestID))
		}
		if len(filter.Outcomes) > 0 {
			outcomes := make([]string, 0, len(filter.Outcomes))
			for _, o := range filter.Outcomes {
				outcomes = append(outcomes, string(o))
			}
			where = append(where, "outcome = ANY("+arg(pq.Array(outcomes))+")")
		}
		if !filter.From.IsZero() {
			where = append(where, "started_at >= "+arg(filter.From.UTC()))
		}
		if !filter.To.IsZero() {
			where = append(where, "started_at <= "+arg(filter.To.UTC()))
		}
	}

	q := "SELECT " + checkinColumns + " FROM checkin"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}

	orderList := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		if isOrderingField(ord.Field) {
			orderList = append(orderList, ord.String())
		}
	}
	orderList = append(orderList, "id ASC")
	q += " ORDER BY " + strings.Join(orderList, ", ")
	return q, args
}

// isOrderingField guards ORDER BY, which cannot take bind parameters.
func isOrderingField(field string) bool {
	for _, f := range checkin.HistoryOrderingFields {
		if f == field {
			return true
		}
	}
	return false
}
