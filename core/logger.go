package core

// Logger is implemented by the application loggers.
//
// Expected args: error, map[string]interface{} and optionally the signed-in user.Profile.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
