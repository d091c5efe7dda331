package logsvc

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/pavulla/kiosk/core"
	"github.com/pavulla/kiosk/core/user"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var levelNames = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
	LevelFatal: "FATAL",
}

func (lvl Level) String() string { return levelNames[lvl] }

// RollbarLogger reports to Rollbar and mirrors every entry at or above its level to a std logger.
type RollbarLogger struct {
	std   *log.Logger
	level Level
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)

	level := LevelInfo
	if conf.Debug {
		level = LevelDebug
	}
	return &RollbarLogger{std: std, level: level}
}

func (l *RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

func (l *RollbarLogger) SetLevel(level Level) {
	l.level = level
}

// expected fmt: msg | error, map[string]interface{}, user.Guest
func (l *RollbarLogger) prepare(msg string, args []interface{}) (rbArgs []interface{}, guest *user.Guest) {
	rbArgs = make([]interface{}, 0, len(args)+1)
	rbArgs = append(rbArgs, msg)
	for _, arg := range args {
		if g, ok := arg.(user.Guest); ok {
			if guest == nil { // only report one Guest
				g := g
				guest = &g
			}
			continue
		}
		rbArgs = append(rbArgs, arg)
	}
	return rbArgs, guest
}

// report sends one item to Rollbar. The guest rides on the item's context:
// the client's person setting is global and loggers are shared across goroutines.
func (l *RollbarLogger) report(level string, rbArgs []interface{}, guest *user.Guest) {
	if guest != nil {
		ctx := rollbar.NewPersonContext(context.Background(), &rollbar.Person{
			Id:       guest.ID,
			Username: guest.FullName,
			Email:    guest.Phone,
		})
		rbArgs = append(rbArgs[:len(rbArgs):len(rbArgs)], ctx)
	}
	rollbar.Log(level, rbArgs...)
}

func (l *RollbarLogger) print(level Level, msg string, args []interface{}, guest *user.Guest) {
	if level < l.level {
		return
	}
	var b strings.Builder
	b.WriteString(level.String())
	b.WriteString(" ")
	b.WriteString(msg)
	if guest != nil {
		fmt.Fprintf(&b, " guest=%s", guest.ID)
	}
	for _, arg := range args[1:] { // args[0] is msg
		switch v := arg.(type) {
		case error:
			fmt.Fprintf(&b, " err=%q", v.Error())
		case map[string]interface{}:
			for k, val := range v {
				fmt.Fprintf(&b, " %s=%v", k, val)
			}
		default:
			fmt.Fprintf(&b, " %+v", v)
		}
	}
	l.std.Println(b.String())
}

func (l *RollbarLogger) Debug(msg string, args ...interface{}) {
	rbArgs, guest := l.prepare(msg, args)
	l.report(rollbar.DEBUG, rbArgs, guest)
	l.print(LevelDebug, msg, rbArgs, guest)
}

func (l *RollbarLogger) Info(msg string, args ...interface{}) {
	rbArgs, guest := l.prepare(msg, args)
	l.report(rollbar.INFO, rbArgs, guest)
	l.print(LevelInfo, msg, rbArgs, guest)
}

func (l *RollbarLogger) Warn(msg string, args ...interface{}) {
	rbArgs, guest := l.prepare(msg, args)
	l.report(rollbar.WARN, rbArgs, guest)
	l.print(LevelWarn, msg, rbArgs, guest)
}

func (l *RollbarLogger) Error(msg string, args ...interface{}) {
	rbArgs, guest := l.prepare(msg, args)
	l.report(rollbar.ERR, rbArgs, guest)
	l.print(LevelError, msg, rbArgs, guest)
}

func (l *RollbarLogger) Fatal(msg string, args ...interface{}) {
	rbArgs, guest := l.prepare(msg, args)
	l.report(rollbar.CRIT, rbArgs, guest)
	rollbar.Wait()
	l.print(LevelFatal, msg, rbArgs, guest)
	l.std.Fatal(msg)
}
