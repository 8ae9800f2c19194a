package logger

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// Channel selects the destination of an entry.
type Channel string

const (
	// UserChannel carries short status lines for the person running the pipeline (stdout).
	UserChannel Channel = "user"
	// OpChannel carries structured operational detail (stderr).
	OpChannel Channel = "op"
)

const (
	channelKey = "channel"
	markKey    = "mark"
)

var (
	User *UserLogger
	Op   *OpLogger

	base = logrus.New()
)

func init() {
	base.SetOutput(os.Stdout)
	base.SetLevel(logrus.InfoLevel)
	base.SetFormatter(&CLIFormatter{DisableTimestamp: true, DisableLevel: true})
	bind(base)
}

func bind(l *logrus.Logger) {
	User = &UserLogger{logger: l}
	Op = &OpLogger{logger: l}
}

// Level is the level both channels currently log at.
func Level() logrus.Level {
	return base.GetLevel()
}

// Setup configures both channels. TASKGRAPH_LOG_MODE (quiet, verbose, debug)
// and TASKGRAPH_LOG_FORMAT (json, text) override the flags.
func Setup(verbose bool, jsonLogs bool, quiet bool) {
	SetupWithWriters(verbose, jsonLogs, quiet, os.Stdout, os.Stderr)
}

// SetupWithWriters is Setup with explicit destinations for the user and op channels.
func SetupWithWriters(verbose bool, jsonLogs bool, quiet bool, userOut, opOut io.Writer) {
	switch os.Getenv("TASKGRAPH_LOG_MODE") {
	case "quiet":
		quiet, verbose = true, false
	case "verbose", "debug":
		quiet, verbose = false, true
	}
	switch os.Getenv("TASKGRAPH_LOG_FORMAT") {
	case "json":
		jsonLogs = true
	case "text":
		jsonLogs = false
	}

	level := logrus.InfoLevel
	if quiet {
		level = logrus.ErrorLevel
	} else if verbose {
		level = logrus.DebugLevel
	}

	router := &channelRouter{
		user: route{out: userOut},
		op:   route{out: opOut},
	}
	switch {
	case jsonLogs:
		router.user.formatter = &logrus.JSONFormatter{}
		router.op.formatter = &logrus.JSONFormatter{}
	case verbose:
		router.user.formatter = &CLIFormatter{DisableTimestamp: true, DisableLevel: true}
		router.op.formatter = &logrus.TextFormatter{FullTimestamp: true, ForceColors: isTerminal(opOut)}
	default:
		router.user.formatter = &CLIFormatter{DisableTimestamp: true, DisableLevel: true}
		router.op.formatter = &CLIFormatter{DisableTimestamp: true, DisableColors: !isTerminal(opOut)}
	}

	// Entries are written by the router only.
	base.ReplaceHooks(logrus.LevelHooks{})
	base.SetOutput(io.Discard)
	base.SetLevel(level)
	base.AddHook(router)
	bind(base)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

// UserLogger writes status lines, each prefixed with a mark for its kind.
type UserLogger struct {
	logger *logrus.Logger
}

const (
	markError   = "❌"
	markWarn    = "⚠️"
	markSuccess = "✅"
	markSkipped = "⏭️"
	markRetry   = "🔁"
)

func (u *UserLogger) with(mark string) *logrus.Entry {
	fields := logrus.Fields{channelKey: string(UserChannel)}
	if mark != "" {
		fields[markKey] = mark
	}
	return u.logger.WithFields(fields)
}

// Print writes msg as is.
func (u *UserLogger) Print(msg string) { u.with("").Info(msg) }

func (u *UserLogger) Info(msg string) { u.with("").Info(msg) }

func (u *UserLogger) Infof(format string, args ...interface{}) { u.with("").Infof(format, args...) }

func (u *UserLogger) Errorf(format string, args ...interface{}) {
	u.with(markError).Errorf(format, args...)
}

func (u *UserLogger) Warnf(format string, args ...interface{}) {
	u.with(markWarn).Warnf(format, args...)
}

func (u *UserLogger) Successf(format string, args ...interface{}) {
	u.with(markSuccess).Infof(format, args...)
}

func (u *UserLogger) Skippedf(format string, args ...interface{}) {
	u.with(markSkipped).Infof(format, args...)
}

func (u *UserLogger) Retryf(format string, args ...interface{}) {
	u.with(markRetry).Warnf(format, args...)
}

// OpLogger writes operational detail. Prefer WithFields so entries carry
// the module, run or connector they concern.
type OpLogger struct {
	logger *logrus.Logger
}

func (o *OpLogger) entry() *logrus.Entry {
	return o.logger.WithField(channelKey, string(OpChannel))
}

func (o *OpLogger) Info(msg string) { o.entry().Info(msg) }

func (o *OpLogger) Warnf(format string, args ...interface{}) { o.entry().Warnf(format, args...) }

func (o *OpLogger) Debug(msg string) { o.entry().Debug(msg) }

func (o *OpLogger) Debugf(format string, args ...interface{}) { o.entry().Debugf(format, args...) }

func (o *OpLogger) WithFields(fields map[string]interface{}) *logrus.Entry {
	return o.entry().WithFields(fields)
}
