package echoapi

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pavulla/kiosk/core"
	"github.com/pavulla/kiosk/core/checkin"
)

const orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind reads `?ordering=a,-b`, keeping only the `allowed` fields.
func (ord *Ordering) Bind(ctx echo.Context, allowed ...string) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}
	ord.Orderings = core.ParseOrdering(val, allowed...)
}

// bindHistoryFilter reads the history query parameters: guest, outcome (repeatable or
// comma-separated), from and to (RFC3339).
func bindHistoryFilter(ctx echo.Context) (*checkin.QueryFilter, error) {
	filter := &checkin.QueryFilter{GuestID: ctx.QueryParam("guest")}
	for _, val := range ctx.QueryParams()["outcome"] {
		for _, o := range strings.Split(val, ",") {
			if o = core.CleanString(o, true /* lower */); o != "" {
				filter.Outcomes = append(filter.Outcomes, checkin.OutcomeKind(o))
			}
		}
	}

	var fldErrs []core.FieldError
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{
		{"from", &filter.From},
		{"to", &filter.To},
	} {
		val := ctx.QueryParam(p.name)
		if val == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, val)
		if err != nil {
			fldErrs = append(fldErrs, core.FieldError{Field: p.name, Error: "invalid date, expected RFC3339"})
			continue
		}
		*p.dst = t
	}
	if fldErrs != nil {
		return nil, core.NewValidationError(nil, fldErrs...)
	}
	return filter, nil
}
