package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pavulla/kiosk/core"
	"github.com/pavulla/kiosk/core/checkin"
	"github.com/pavulla/kiosk/core/user"
)

const contextScanKey = "scan"

// CheckinService is what the API needs from checkin.Service.
type CheckinService interface {
	StartScan(guest user.Guest, token string) (checkin.ScanView, error)
	GetScan(id string) (checkin.ScanView, error)
	StopScan(id string) error
	History(ctx context.Context, filter *checkin.QueryFilter, ordering []core.DBOrdering) ([]checkin.Record, error)
}

var _ CheckinService = (*checkin.Service)(nil)

type scanApi struct {
	svc CheckinService
}

func registerScanAPI(g *echo.Group, jwt, guest echo.MiddlewareFunc, svc CheckinService) {
	api := scanApi{svc: svc}

	sg := g.Group("/scans", jwt, guest)
	sg.POST("", api.create, rolesMiddleware(user.ScanRoles...))

	// detail endpoints
	dg := sg.Group("/:id", scanOwnerOrAdminMiddleware(svc))
	dg.GET("", api.retrieve)
	dg.DELETE("", api.destroy)
}

// Handlers

func (api *scanApi) create(ctx echo.Context) error {
	g, err := getContextGuest(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context guest")
	}
	token, _, err := getContextToken(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context token")
	}

	view, err := api.svc.StartScan(g, token.Raw)
	if err != nil {
		return errors.Wrap(err, "starting scan")
	}
	return ctx.JSON(http.StatusCreated, view)
}

func (api *scanApi) retrieve(ctx echo.Context) error {
	view, ok := ctx.Get(contextScanKey).(checkin.ScanView)
	if !ok {
		return errors.New("scan not found in echo.Context")
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *scanApi) destroy(ctx echo.Context) error {
	if err := api.svc.StopScan(ctx.Param("id")); err != nil {
		return errors.Wrap(err, "stopping scan")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// scanOwnerOrAdminMiddleware loads the scan; other guests' scans look like missing ones.
func scanOwnerOrAdminMiddleware(svc CheckinService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			g, err := getContextGuest(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context guest")
			}
			view, err := svc.GetScan(ctx.Param("id"))
			if err != nil {
				if errors.Cause(err) == checkin.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "getting scan")
			}
			if view.GuestID != g.ID && !g.CanAdminister() {
				return errHttpNotFound
			}
			ctx.Set(contextScanKey, view)
			return next(ctx)
		}
	}
}
