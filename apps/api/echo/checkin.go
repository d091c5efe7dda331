package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pavulla/kiosk/core/checkin"
	"github.com/pavulla/kiosk/core/user"
)

type checkinApi struct {
	svc      CheckinService
	validate *validator.Validate
}

func registerCheckinAPI(g *echo.Group, jwt, guest echo.MiddlewareFunc, svc CheckinService, validate *validator.Validate) {
	api := checkinApi{svc: svc, validate: validate}

	cg := g.Group("/checkins", jwt, guest, rolesMiddleware(user.RoleAdmin))
	cg.GET("", api.query)
}

// Handlers

func (api *checkinApi) query(ctx echo.Context) error {
	filter, err := bindHistoryFilter(ctx)
	if err != nil {
		return err
	}
	if err := filter.Validate(api.validate); err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx, checkin.HistoryOrderingFields...)

	records, err := api.svc.History(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying check-ins")
	}
	if records == nil {
		records = []checkin.Record{}
	}
	return ctx.JSON(http.StatusOK, records)
}
