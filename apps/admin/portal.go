package main

import (
	"encoding/json"
	"fmt"

	"github.com/pavulla/kiosk/core/checkin"
	"github.com/pavulla/kiosk/services/portal"
)

func (cli *commandLine) login(phone, password string) error {
	ctx, cancel := cli.context()
	defer cancel()

	sess, err := portal.NewClient(cli.conf.Portal, "", cli.logger).Login(ctx, phone, password)
	if err != nil {
		return err
	}
	if err = cli.tokens.Save(sess); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Logged in as %s (%s)\n", sess.Guest.FullName, sess.Guest.EffectiveRole())
	return nil
}

func (cli *commandLine) agenda() error {
	sess, err := cli.session()
	if err != nil {
		return err
	}
	ctx, cancel := cli.context()
	defer cancel()

	activities, err := portal.NewClient(cli.conf.Portal, sess.Token, cli.logger).Activities(ctx)
	if err != nil {
		return err
	}
	if len(activities) == 0 {
		fmt.Fprintln(cli.out, "No activities.")
		return nil
	}
	for _, a := range activities {
		mark := " "
		if a.HasSigned {
			mark = "x"
		}
		fmt.Fprintf(cli.out, "[%s] %-8s %s %s-%s  %s (%d signed)\n",
			mark, a.ID, a.ActivityDate, a.StartTime, a.EndTime, a.Name, a.SignatureCount)
	}
	return nil
}

func (cli *commandLine) memories(activityID string) error {
	sess, err := cli.session()
	if err != nil {
		return err
	}
	ctx, cancel := cli.context()
	defer cancel()

	memories, err := portal.NewClient(cli.conf.Portal, sess.Token, cli.logger).Memories(ctx, activityID)
	if err != nil {
		return err
	}
	if len(memories) == 0 {
		fmt.Fprintln(cli.out, "No memories.")
		return nil
	}
	for _, m := range memories {
		content := m.ContentType
		switch {
		case m.ContentText != nil:
			content = *m.ContentText
		case m.FileURL != nil:
			content = *m.FileURL
		}
		fmt.Fprintf(cli.out, "%s  %s: %s\n", m.CreatedAt, m.UserName, content)
	}
	return nil
}

func (cli *commandLine) users() error {
	sess, err := cli.session()
	if err != nil {
		return err
	}
	ctx, cancel := cli.context()
	defer cancel()

	users, err := portal.NewClient(cli.conf.Portal, sess.Token, cli.logger).Users(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		fmt.Fprintf(cli.out, "%-8s %-10s %-16s %s\n", u.ID, u.Role, u.Phone, u.FullName)
	}
	return nil
}

// sign confirms attendance to activityID directly, as a scan would after resolving the code.
func (cli *commandLine) sign(activityID string) error {
	sess, err := cli.session()
	if err != nil {
		return err
	}
	ctx, cancel := cli.context()
	defer cancel()

	protocol := checkin.NewProtocol(
		portal.NewHTTPClient(cli.conf.Portal.APIBaseURL, sess.Token, cli.conf.Portal.Timeout),
		cli.endpoints(),
		cli.logger,
	)
	result, err := protocol.Confirm(ctx, activityID)
	if err != nil {
		return err
	}
	return cli.printJSON(result)
}

func (cli *commandLine) endpoints() checkin.Endpoints {
	return checkin.Endpoints{
		ScanBaseURL: cli.conf.Portal.ScanBaseURL,
		APIBaseURL:  cli.conf.Portal.APIBaseURL,
		ClientAppID: cli.conf.Portal.ClientAppID,
	}
}

func (cli *commandLine) printJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, string(data))
	return nil
}
