package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/pavulla/kiosk/core"
	"github.com/pavulla/kiosk/core/checkin"
	"github.com/pavulla/kiosk/services/portal"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf   *core.Config
	logger core.Logger
	out    io.Writer
	tokens *portal.TokenStore

	// history store, opened on first use
	openRepo func() (checkin.Repository, error)
	repo     checkin.Repository
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate up|down|redo                - apply the database migrations")
	fmt.Fprintln(cli.out, "  login -phone PHONE                  - log in to the portal (the password is prompted)")
	fmt.Fprintln(cli.out, "  logout                              - forget the saved login")
	fmt.Fprintln(cli.out, "  agenda                              - list the activities and their signature status")
	fmt.Fprintln(cli.out, "  memories -activity ID               - list the memories shared for an activity")
	fmt.Fprintln(cli.out, "  users                               - list the portal accounts (admin only)")
	fmt.Fprintln(cli.out, "  scan -frames DIR [-timeout 30s]     - scan a QR code from image files and check in")
	fmt.Fprintln(cli.out, "  sign -activity ID                   - sign an activity without scanning")
	fmt.Fprintln(cli.out, "  history [-guest ID] [-outcome KIND] - list recorded check-ins")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	loginCmd := flag.NewFlagSet("login", flag.ContinueOnError)
	loginPhone := loginCmd.String("phone", "", "The guest's phone number. The password will be prompted next.")

	scanCmd := flag.NewFlagSet("scan", flag.ContinueOnError)
	scanFrames := scanCmd.String("frames", "", "Directory of PNG/JPEG frames to scan, in name order.")
	scanTimeout := scanCmd.Duration("timeout", 30*time.Second, "Give up when no QR code is found within this time.")

	signCmd := flag.NewFlagSet("sign", flag.ContinueOnError)
	signActivity := signCmd.String("activity", "", "The activity to sign.")

	memoriesCmd := flag.NewFlagSet("memories", flag.ContinueOnError)
	memoriesActivity := memoriesCmd.String("activity", "", "The activity whose memories to list.")

	historyCmd := flag.NewFlagSet("history", flag.ContinueOnError)
	historyGuest := historyCmd.String("guest", "", "Only this guest's check-ins.")
	historyOutcome := historyCmd.String("outcome", "", "Only this outcome: success, error or no-camera.")

	for _, fs := range []*flag.FlagSet{loginCmd, scanCmd, signCmd, memoriesCmd, historyCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2])

	case "login":
		if err := loginCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *loginPhone == "" {
			loginCmd.Usage()
			return errHelp
		}
		fmt.Fprint(cli.out, "Enter password:")
		pwd, err := readPasswordFunc(int(syscall.Stdin))
		fmt.Fprintln(cli.out)
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			loginCmd.Usage()
			return errHelp
		}
		return cli.login(*loginPhone, string(pwd))

	case "logout":
		return cli.tokens.Clear()

	case "agenda":
		return cli.agenda()

	case "memories":
		if err := memoriesCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *memoriesActivity == "" {
			memoriesCmd.Usage()
			return errHelp
		}
		return cli.memories(*memoriesActivity)

	case "users":
		return cli.users()

	case "scan":
		if err := scanCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *scanFrames == "" || *scanTimeout <= 0 {
			scanCmd.Usage()
			return errHelp
		}
		return cli.scan(*scanFrames, *scanTimeout)

	case "sign":
		if err := signCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *signActivity == "" {
			signCmd.Usage()
			return errHelp
		}
		return cli.sign(*signActivity)

	case "history":
		if err := historyCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.history(*historyGuest, *historyOutcome)

	default:
		cli.printUsage()
		return errHelp
	}
}

// session returns the saved login.
func (cli *commandLine) session() (portal.Session, error) {
	return cli.tokens.Load()
}

func (cli *commandLine) historyRepo() (checkin.Repository, error) {
	if cli.repo == nil {
		repo, err := cli.openRepo()
		if err != nil {
			return nil, err
		}
		cli.repo = repo
	}
	return cli.repo, nil
}

func (cli *commandLine) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), cli.conf.Portal.Timeout)
}
