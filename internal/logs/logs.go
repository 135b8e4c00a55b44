// Package logs holds the operator-facing log messages of the processing
// pipeline. Every message goes through a *slog.Logger; none of them return
// errors.
package logs

import (
	"log/slog"
	"time"

	"github.com/roach88/docpost/internal/config"
)

// Logger emits pipeline events.
type Logger struct {
	l *slog.Logger
}

// New wraps l. A nil l uses slog.Default().
func New(l *slog.Logger) *Logger {
	if l == nil {
		l = slog.Default()
	}
	return &Logger{l: l}
}

// Slog returns the underlying logger.
func (lg *Logger) Slog() *slog.Logger {
	return lg.l
}

// With returns a Logger that adds attrs to every message.
func (lg *Logger) With(args ...any) *Logger {
	return &Logger{l: lg.l.With(args...)}
}

// Init logs the configuration with secrets obfuscated.
func (lg *Logger) Init(cfg config.Config) {
	lg.l.Info("initializing with configuration", configAttrs(cfg)...)
}

// Start logs the start of one document-write invocation.
func (lg *Logger) Start(path string) {
	lg.l.Debug("started processing document write", "path", path)
}

// Complete logs the end of one document-write invocation.
func (lg *Logger) Complete(path string) {
	lg.l.Debug("completed processing document write", "path", path)
}

// Error logs a per-document failure.
func (lg *Logger) Error(path string, err error) {
	lg.l.Error("error when processing document", "path", path, "error", err)
}

// FieldNamesNotDifferent logs a configuration where input and output are
// the same field.
func (lg *Logger) FieldNamesNotDifferent(field string) {
	lg.l.Error("the input and output field names must be different", "field", field)
}

// UpdateDocument logs a write about to be committed.
func (lg *Logger) UpdateDocument(path string) {
	lg.l.Info("updating document", "path", path)
}

// UpdateDocumentComplete logs a committed write.
func (lg *Logger) UpdateDocumentComplete(path string) {
	lg.l.Info("finished updating document", "path", path)
}

// Skipped logs a document the version gate left alone.
func (lg *Logger) Skipped(path, reason string) {
	lg.l.Debug("document skipped", "path", path, "reason", reason)
}

// BackfillPage logs one processed backfill page.
func (lg *Logger) BackfillPage(jobID string, offset, size, success, failed int) {
	lg.l.Info("backfill page processed",
		"job", jobID,
		"offset", offset,
		"size", size,
		"success", success,
		"errors", failed,
	)
}

// BackfillPageReplayed logs a redelivered page whose recorded result was
// reused.
func (lg *Logger) BackfillPageReplayed(jobID string, offset int) {
	lg.l.Warn("backfill page already recorded, reusing result", "job", jobID, "offset", offset)
}

// BackfillContinued logs an enqueued continuation.
func (lg *Logger) BackfillContinued(jobID string, offset int, inserted bool) {
	lg.l.Info("backfill continuation enqueued", "job", jobID, "offset", offset, "new", inserted)
}

// BackfillDone logs the terminal report of a job.
func (lg *Logger) BackfillDone(jobID, state, message string, elapsed time.Duration) {
	lg.l.Info("backfill complete", "job", jobID, "state", state, "message", message, "elapsed", elapsed)
}

func configAttrs(cfg config.Config) []any {
	r := cfg.Redacted()
	return []any{
		"collection", r.Collection,
		"input_field", r.InputField,
		"output_field", r.OutputField,
		"version_field", r.VersionField,
		"api_url", r.APIURL,
		"preset", r.Preset,
		"bearer_token", r.BearerToken,
		"response_field", r.ResponseField,
		"template_path", r.TemplatePath,
		"strategy", r.Strategy,
		"do_backfill", r.DoBackfill,
		"batch_size", r.BatchSize,
		"instance", r.InstanceID,
	}
}
