// Package telemetry is the receiver's structured logging surface.
// It wraps github.com/sirupsen/logrus the way the CLI-focused repo in
// the retrieval pack does (dsmmcken-dh-cli, runZeroInc-sockstats both
// depend on logrus for exactly this), carried as ambient
// instrumentation even though the spec keeps "logging" itself out of
// scope as an external collaborator — that exclusion is about not
// designing the outer entity's log sink, not about this core running
// unobserved during development.
package telemetry

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the receiver-facing logging handle: every entry the
// receiver emits is tagged with the owning transaction.
type Logger struct {
	entry *logrus.Entry
}

// New creates a root logger writing JSON lines to stdout at the given
// level ("debug", "info", "warn", "error"; unrecognized values fall
// back to "info").
func New(level string) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.JSONFormatter{})
	if lvl, err := logrus.ParseLevel(level); err == nil {
		l.SetLevel(lvl)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return &Logger{entry: logrus.NewEntry(l)}
}

// ForTransaction returns a logger scoped to one transaction, tagging
// every subsequent entry with source_entity_id and transaction_seq.
func (l *Logger) ForTransaction(sourceEntityID, seqNo uint64) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields{
		"source_entity_id": sourceEntityID,
		"transaction_seq":  seqNo,
	})}
}

// Event logs a state-machine transition at info level.
func (l *Logger) Event(state, event string) {
	l.entry.WithFields(logrus.Fields{"state": state, "event": event}).Info("event")
}

// Fault logs a raised condition code at warn level.
func (l *Logger) Fault(state string, code string, err error) {
	e := l.entry.WithFields(logrus.Fields{"state": state, "condition_code": code})
	if err != nil {
		e = e.WithError(err)
	}
	e.Warn("fault")
}

// Info logs a free-form informational message with fields.
func (l *Logger) Info(msg string, fields map[string]interface{}) {
	l.entry.WithFields(fields).Info(msg)
}
