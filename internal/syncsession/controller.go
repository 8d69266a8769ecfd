package syncsession

import (
	"fmt"
	"time"

	"github.com/morango-sync/morango/internal/model"
	"github.com/morango-sync/morango/internal/syncerr"
	"github.com/morango-sync/morango/internal/synclog"
	"github.com/morango-sync/morango/internal/syncmetrics"
	"github.com/morango-sync/morango/internal/transport"
)

// SessionController drives a Context through the staged pipeline by
// invoking middleware in stage order, honoring the status each one
// returns.
type SessionController struct {
	middleware     []StageHandler
	context        Context
	loggingEnabled bool
}

// BuildLocal returns a controller over a fresh LocalSessionContext and the
// given registry, locking its order.
func BuildLocal(registry *MiddlewareRegistry, syncSession *model.SyncSession, transferSession *model.TransferSession, requestCapabilities []string, isServer bool, enableLogging bool) *SessionController {
	ctx := NewLocalSessionContext(syncSession, transferSession, requestCapabilities, isServer)
	return NewController(registry, ctx, enableLogging)
}

// BuildNetwork returns a controller over a fresh NetworkSessionContext.
// Invocation logging stays off on this path so it never interleaves with
// the synchronous client output.
func BuildNetwork(registry *MiddlewareRegistry, connection transport.SyncConnection, syncSession *model.SyncSession, transferSession *model.TransferSession) *SessionController {
	ctx := NewNetworkSessionContext(connection, syncSession, transferSession)
	return NewController(registry, ctx, false)
}

// NewController wraps an already-built context directly, for callers (like
// TransferClient) that construct a specific context variant themselves.
func NewController(registry *MiddlewareRegistry, ctx Context, enableLogging bool) *SessionController {
	return &SessionController{
		middleware:     registry.lock(),
		context:        ctx,
		loggingEnabled: enableLogging,
	}
}

// Context returns the controller's underlying session context.
func (c *SessionController) Context() Context { return c.context }

// ProceedTo advances the context through middleware up to and including
// target's stage. Middleware run incrementally: to proceed past a given
// stage, its middleware must return COMPLETED, otherwise that status is
// returned and the caller may call ProceedTo again later.
func (c *SessionController) ProceedTo(target model.Stage) model.Status {
	current := c.context.Stage()
	if current.After(target) {
		return model.StatusCompleted
	}
	status := c.context.StageStatus()
	if status == model.StatusStarted || status == model.StatusErrored {
		return status
	}

	result := model.StatusCompleted
	for _, mw := range c.middleware {
		stage := mw.RelatedStage()
		if stage.After(target) {
			break
		}
		// Stages the context has already moved past are not re-entered,
		// nor is the current stage once it has completed.
		if stage.Before(current) || (stage == current && status == model.StatusCompleted) {
			continue
		}
		result = c.invokeMiddleware(mw)
		if result != model.StatusCompleted {
			break
		}
	}
	return result
}

// ProceedToAndWait repeatedly calls ProceedTo until a finished status
// (COMPLETED or ERRORED) is returned, sleeping interval between attempts.
func (c *SessionController) ProceedToAndWait(target model.Stage, interval time.Duration) model.Status {
	result := c.ProceedTo(target)
	for !result.Finished() {
		time.Sleep(interval)
		result = c.ProceedTo(target)
	}
	return result
}

func (c *SessionController) logInvocation(stage model.Stage, result *model.Status) {
	if !c.loggingEnabled {
		return
	}
	logger := synclog.WithStage(string(stage))
	switch {
	case result == nil:
		logger.Info().Msg("starting stage")
	case *result == model.StatusCompleted:
		logger.Info().Msg("completed stage")
	case *result == model.StatusStarted:
		logger.Info().Msg("stage in progress")
	case *result == model.StatusErrored:
		logger.Info().Msg("encountered error during stage")
	}
}

// invokeMiddleware is the sole recover() site in the engine: any panic
// inside a middleware is caught here exactly once, converted into an
// ErrIntegrity-wrapped error recorded on the context, and surfaced as
// ERRORED. It is never re-raised and never silently swallowed anywhere
// else.
func (c *SessionController) invokeMiddleware(mw StageHandler) (result model.Status) {
	stage := mw.RelatedStage()
	c.logInvocation(stage, nil)

	if err := c.context.Update(ContextUpdate{Stage: stage, StageStatus: model.StatusPending}); err != nil {
		synclog.Errorf("updating context before stage invocation", err)
	}

	timer := syncmetrics.NewTimer()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: panic in stage %s: %v", syncerr.ErrIntegrity, stage, r)
			synclog.Errorf("stage panicked", err)
			result = model.StatusErrored
			_ = c.context.Update(ContextUpdate{StageStatus: model.StatusErrored, Err: err})
			c.logInvocation(stage, &result)
		}
		timer.ObserveDurationVec(syncmetrics.StageDuration, string(stage))
		syncmetrics.StagesTotal.WithLabelValues(string(stage), string(result)).Inc()
	}()

	result = mw.Handle(c.context)
	c.logInvocation(stage, &result)
	if err := c.context.Update(ContextUpdate{StageStatus: result}); err != nil {
		synclog.Errorf("updating context after stage invocation", err)
	}
	return result
}
