package core

// Logger is implemented by every logging backend.
// Extra args may be errors, maps of extra data or the acting user.Guest.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
