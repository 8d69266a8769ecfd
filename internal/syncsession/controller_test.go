package syncsession

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morango-sync/morango/internal/model"
)

// spyHandler records every invocation and returns a fixed status.
type spyHandler struct {
	stage  model.Stage
	status model.Status
	calls  *int
	panic  bool
}

func (h spyHandler) RelatedStage() model.Stage { return h.stage }

func (h spyHandler) Handle(Context) model.Status {
	*h.calls++
	if h.panic {
		panic("boom")
	}
	return h.status
}

func TestSessionController_StageMonotonicity(t *testing.T) {
	calls := 0
	registry := NewMiddlewareRegistry()
	require.NoError(t, registry.Register(spyHandler{stage: model.StageInitializing, status: model.StatusCompleted, calls: &calls}))

	syncSession := &model.SyncSession{ID: "sess1"}
	ctx := NewLocalSessionContext(syncSession, nil, nil, false)
	require.NoError(t, ctx.Update(ContextUpdate{Stage: model.StageCleanup, StageStatus: model.StatusCompleted}))

	controller := NewController(registry, ctx, false)
	status := controller.ProceedTo(model.StageInitializing)

	assert.Equal(t, model.StatusCompleted, status)
	assert.Equal(t, 0, calls, "middleware must not run once context.stage is already past the target")
}

func TestSessionController_ProceedTo_RunsInOrderAndStopsOnNonCompleted(t *testing.T) {
	var order []string
	registry := NewMiddlewareRegistry()
	calls := 0

	require.NoError(t, registry.Register(StageHandlerFunc{Stage: model.StageQueuing, Fn: func(Context) model.Status {
		order = append(order, "queuing")
		return model.StatusCompleted
	}}))
	require.NoError(t, registry.Register(StageHandlerFunc{Stage: model.StageInitializing, Fn: func(Context) model.Status {
		order = append(order, "initializing")
		return model.StatusErrored
	}}))
	require.NoError(t, registry.Register(spyHandler{stage: model.StageSerializing, status: model.StatusCompleted, calls: &calls}))

	syncSession := &model.SyncSession{ID: "sess1"}
	ctx := NewLocalSessionContext(syncSession, nil, nil, false)
	controller := NewController(registry, ctx, false)

	status := controller.ProceedTo(model.StageTransferring)

	assert.Equal(t, model.StatusErrored, status)
	assert.Equal(t, []string{"initializing"}, order, "handlers run in stage order and stop at the first non-completed status")
	assert.Equal(t, 0, calls, "serializing must never run once initializing errors")
}

func TestSessionController_CompletedStagesAreNotReentered(t *testing.T) {
	initCalls, queueCalls := 0, 0
	registry := NewMiddlewareRegistry()
	require.NoError(t, registry.Register(spyHandler{stage: model.StageInitializing, status: model.StatusCompleted, calls: &initCalls}))
	require.NoError(t, registry.Register(spyHandler{stage: model.StageQueuing, status: model.StatusCompleted, calls: &queueCalls}))

	syncSession := &model.SyncSession{ID: "sess1"}
	ctx := NewLocalSessionContext(syncSession, nil, nil, false)
	controller := NewController(registry, ctx, false)

	require.Equal(t, model.StatusCompleted, controller.ProceedTo(model.StageInitializing))
	require.Equal(t, model.StatusCompleted, controller.ProceedTo(model.StageQueuing))

	assert.Equal(t, 1, initCalls, "a completed stage must not re-run on a later, higher-target call")
	assert.Equal(t, 1, queueCalls)
}

func TestSessionController_PanicIsCaughtAndRecordedAsErrored(t *testing.T) {
	calls := 0
	registry := NewMiddlewareRegistry()
	require.NoError(t, registry.Register(spyHandler{stage: model.StageInitializing, calls: &calls, panic: true}))

	syncSession := &model.SyncSession{ID: "sess1"}
	ctx := NewLocalSessionContext(syncSession, nil, nil, false)
	controller := NewController(registry, ctx, false)

	status := controller.ProceedTo(model.StageInitializing)

	assert.Equal(t, model.StatusErrored, status)
	assert.Equal(t, 1, calls)
	require.Error(t, ctx.Err())
	assert.Equal(t, model.StatusErrored, ctx.StageStatus())
}

func TestMiddlewareRegistry_SortsByStageOrderAndLocksAfterBuild(t *testing.T) {
	registry := NewMiddlewareRegistry()
	calls := 0
	require.NoError(t, registry.Register(spyHandler{stage: model.StageCleanup, calls: &calls}))
	require.NoError(t, registry.Register(spyHandler{stage: model.StageInitializing, calls: &calls}))

	ordered := registry.lock()
	require.Len(t, ordered, 2)
	assert.Equal(t, model.StageInitializing, ordered[0].RelatedStage())
	assert.Equal(t, model.StageCleanup, ordered[1].RelatedStage())

	err := registry.Register(spyHandler{stage: model.StageQueuing, calls: &calls})
	assert.Error(t, err, "registration must be refused once a controller build has locked the registry")
}
