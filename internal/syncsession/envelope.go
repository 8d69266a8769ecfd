package syncsession

import (
	"time"

	"github.com/morango-sync/morango/internal/synclog"
)

// OperationEnvelope wraps a callable operation with start-log,
// completion-log (and elapsed time), and error-log. It only observes; it
// never alters the wrapped operation's outcome.
type OperationEnvelope struct {
	StartMessage    string
	CompleteMessage string
}

// Run invokes fn, logging its start and completion (with elapsed time).
// fn's error, if any, is logged and returned unchanged.
func (e OperationEnvelope) Run(fn func() error) error {
	logger := synclog.WithComponent("operation")
	logger.Info().Msg(e.StartMessage)
	start := time.Now()

	err := fn()
	elapsed := time.Since(start)

	if err != nil {
		logger.Error().Err(err).Dur("elapsed", elapsed).Msg(e.StartMessage + " failed")
		return err
	}
	logger.Info().Dur("elapsed", elapsed).Msg(e.CompleteMessage)
	return nil
}
