package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/pavulla/kiosk/core"
	"github.com/pavulla/kiosk/core/checkin"
	"github.com/pavulla/kiosk/services/camera"
	"github.com/pavulla/kiosk/services/portal"
)

var errNoCode = errors.New("no QR code found")

// scan checks the logged-in guest in from the frames in dir, printing the outcome as JSON.
func (cli *commandLine) scan(dir string, timeout time.Duration) error {
	sess, err := cli.session()
	if err != nil {
		return err
	}
	repo, err := cli.historyRepo()
	if err != nil {
		return err
	}

	scannerConf := cli.conf.Scanner
	scannerConf.Camera = core.CameraFrameDir
	scannerConf.FramesDir = dir
	cam, err := camera.New(scannerConf, cli.logger)
	if err != nil {
		return err
	}

	svc := checkin.NewService(checkin.ServiceOptions{
		Provider:  cam,
		Repo:      repo,
		Endpoints: cli.endpoints(),
		NewDoer: func(token string) checkin.Doer {
			return portal.NewHTTPClient(cli.conf.Portal.APIBaseURL, token, cli.conf.Portal.Timeout)
		},
		SampleInterval: scannerConf.SampleInterval,
		Constraints:    camera.ConstraintsFromConfig(scannerConf),
		Logger:         cli.logger,
	})
	defer svc.Close()

	view, err := svc.StartScan(sess.Guest, sess.Token)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	view, err = svc.Wait(ctx, view.ID)
	if errors.Is(err, context.DeadlineExceeded) {
		_ = svc.StopScan(view.ID)
		return errNoCode
	}
	if err != nil {
		return err
	}
	if view.Outcome == nil {
		return errNoCode
	}
	return cli.printJSON(view.Outcome)
}

func (cli *commandLine) history(guestID, outcome string) error {
	repo, err := cli.historyRepo()
	if err != nil {
		return err
	}

	filter := &checkin.QueryFilter{GuestID: core.CleanString(guestID)}
	if o := core.CleanString(outcome, true /* lower */); o != "" {
		filter.Outcomes = []checkin.OutcomeKind{checkin.OutcomeKind(o)}
	}
	records, err := repo.QueryRecords(context.Background(), filter, checkin.DefaultHistoryOrdering)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(cli.out, "No check-ins.")
		return nil
	}
	for _, rec := range records {
		line := fmt.Sprintf("%s  %-10s %-8s %s", rec.StartedAt.Format(time.RFC3339), rec.Outcome, rec.GuestID, rec.GuestName)
		if rec.ActivityID != "" {
			line += "  activity=" + rec.ActivityID
		}
		if rec.Reason != "" {
			line += "  reason=" + rec.Reason
		}
		fmt.Fprintln(cli.out, line)
	}
	return nil
}
