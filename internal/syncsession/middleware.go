package syncsession

import (
	"fmt"
	"sort"
	"sync"

	"github.com/morango-sync/morango/internal/model"
)

// StageHandler is a middleware: any value bound to one stage of the
// pipeline and invocable against a context to produce a status.
type StageHandler interface {
	RelatedStage() model.Stage
	Handle(ctx Context) model.Status
}

// StageHandlerFunc adapts a plain function to StageHandler for stateless
// stage operations that don't need their own type.
type StageHandlerFunc struct {
	Stage model.Stage
	Fn    func(ctx Context) model.Status
}

func (f StageHandlerFunc) RelatedStage() model.Stage       { return f.Stage }
func (f StageHandlerFunc) Handle(ctx Context) model.Status { return f.Fn(ctx) }

// MiddlewareRegistry is the ordered set of stage handlers a
// SessionController walks. Registration must be complete before the first
// controller is built — the registry refuses further registration once a
// controller has locked it in.
type MiddlewareRegistry struct {
	mu     sync.Mutex
	items  []StageHandler
	sorted bool
	locked bool
}

// NewMiddlewareRegistry builds an empty registry. Application code
// typically registers against DefaultRegistry instead of building its own,
// but a fresh registry is useful for isolated tests.
func NewMiddlewareRegistry() *MiddlewareRegistry {
	return &MiddlewareRegistry{}
}

// Register appends a middleware to the registry. Returns an error if the
// registry has already been locked by a controller build.
func (r *MiddlewareRegistry) Register(h StageHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.locked {
		return fmt.Errorf("middleware registry: cannot register %T, already locked by a controller build", h)
	}
	r.items = append(r.items, h)
	r.sorted = false
	return nil
}

// MustRegister is Register but panics on failure, for package-init-time
// registration where there is no caller to hand an error back to.
func (r *MiddlewareRegistry) MustRegister(h StageHandler) {
	if err := r.Register(h); err != nil {
		panic(err)
	}
}

// lock freezes the registry's stage order and forbids further
// registration; called by every SessionController build against it.
func (r *MiddlewareRegistry) lock() []StageHandler {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.sorted {
		sort.SliceStable(r.items, func(i, j int) bool {
			return r.items[i].RelatedStage().Ordinal() < r.items[j].RelatedStage().Ordinal()
		})
		r.sorted = true
	}
	r.locked = true
	out := make([]StageHandler, len(r.items))
	copy(out, r.items)
	return out
}

// DefaultRegistry is the process-global middleware registry. Application
// code registers custom stage handlers on it (or builds its own registry
// for isolated tests) before the first controller runs.
var DefaultRegistry = NewMiddlewareRegistry()
