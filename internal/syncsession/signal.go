package syncsession

import "github.com/morango-sync/morango/internal/syncmetrics"

// SignalHandler receives the keyword-style payload fired by a signal.
type SignalHandler func(kwargs map[string]interface{})

// Signal is a simple fan-out of handlers, fired synchronously and in
// registration order. Independent signals never cross-fire — each keeps
// its own handler slice.
type Signal struct {
	name     string
	handlers []SignalHandler
}

// Connect registers a handler. Handlers connected before Fire is called
// receive that firing; later connections do not retroactively fire.
func (s *Signal) Connect(h SignalHandler) {
	s.handlers = append(s.handlers, h)
}

// Fire invokes every connected handler synchronously, in order.
func (s *Signal) Fire(kwargs map[string]interface{}) {
	for _, h := range s.handlers {
		h(kwargs)
	}
}

// SignalGroup bundles the started/in_progress/completed triple fired
// around one stage boundary.
type SignalGroup struct {
	name       string
	Started    Signal
	InProgress Signal
	Completed  Signal
}

// NewSignalGroup builds a named signal group; the name is only used to
// label the fired-signals metric.
func NewSignalGroup(name string) *SignalGroup {
	return &SignalGroup{name: name}
}

// Send fires Started with the merged kwargs, runs fn, and fires Completed
// on the way out even if fn panics — the panic propagates after Completed
// fires, so callers further up still see it.
func (g *SignalGroup) Send(kwargs map[string]interface{}, fn func()) {
	merged := mergeKwargs(kwargs)
	g.Started.Fire(merged)
	syncmetrics.SignalsFired.WithLabelValues(g.name, "started").Inc()

	defer func() {
		g.Completed.Fire(merged)
		syncmetrics.SignalsFired.WithLabelValues(g.name, "completed").Inc()
	}()

	fn()
}

// FireInProgress fires the in_progress signal; unlike Started/Completed
// this is user-driven, not automatically scoped by Send.
func (g *SignalGroup) FireInProgress(kwargs map[string]interface{}) {
	g.InProgress.Fire(mergeKwargs(kwargs))
	syncmetrics.SignalsFired.WithLabelValues(g.name, "in_progress").Inc()
}

func mergeKwargs(kwargs map[string]interface{}) map[string]interface{} {
	if kwargs == nil {
		return map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(kwargs))
	for k, v := range kwargs {
		out[k] = v
	}
	return out
}
