package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	api "github.com/GriffinCanCode/lifescope/internal/api/http"
	"github.com/GriffinCanCode/lifescope/internal/domain/persistence"
	"github.com/GriffinCanCode/lifescope/internal/domain/profile"
	"github.com/GriffinCanCode/lifescope/internal/domain/scope"
	"github.com/GriffinCanCode/lifescope/internal/domain/session"
	"github.com/GriffinCanCode/lifescope/internal/infrastructure/logging"
	"github.com/GriffinCanCode/lifescope/internal/infrastructure/resilience"
)

// NoteViewModel backs "note" windows. It has no dependencies and opens in
// any session.
type NoteViewModel struct {
	OpenedAt time.Time
}

// Initialize implements view.Initializer
func (n *NoteViewModel) Initialize(context.Context) error {
	n.OpenedAt = time.Now()
	return nil
}

// OrderDraft is shared by every order window of one workflow:order session.
type OrderDraft struct {
	mu    sync.Mutex
	lines []string
}

// AddLine appends a line to the draft
func (d *OrderDraft) AddLine(line string) {
	d.mu.Lock()
	d.lines = append(d.lines, line)
	d.mu.Unlock()
}

// Lines returns a copy of the draft lines
func (d *OrderDraft) Lines() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.lines...)
}

// OrderViewModel backs "order" windows. It needs an enclosing
// workflow:order session.
type OrderViewModel struct {
	Draft *OrderDraft
}

// Modules returns the root scope registrations of the server.
func Modules() scope.Module {
	return scope.NewModule("lifescope",
		scope.Provide(func(scope.Resolver) (*NoteViewModel, error) {
			return &NoteViewModel{}, nil
		}, scope.Transient),
		scope.ProvideShared(func(scope.Resolver) (*OrderDraft, error) {
			return &OrderDraft{}, nil
		}, scope.Workflow("order")),
		scope.Provide(func(r scope.Resolver) (*OrderViewModel, error) {
			draft, err := scope.Resolve[*OrderDraft](r)
			if err != nil {
				return nil, err
			}
			return &OrderViewModel{Draft: draft}, nil
		}, scope.Transient),
	)
}

// Catalog returns the modules session profiles may reference. Every
// "memory-store" session gets its own unit of work over one process-wide
// store. Commits share a circuit breaker so a failing store does not stall
// every session close.
func Catalog(logger *logging.Logger) profile.Catalog {
	logger = logging.OrNop(logger)
	store := persistence.NewStore()
	breaker := resilience.New("memory-store", resilience.Settings{
		Timeout: 10 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Store circuit breaker changed state",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})
	return profile.Catalog{
		"memory-store": scope.Provide(func(scope.Resolver) (persistence.UnitOfWork, error) {
			return persistence.Guard(persistence.NewMemoryUnit(store), breaker), nil
		}, scope.Scoped),
	}
}

// Openers returns the window kinds exposed by the control API.
func Openers() map[string]api.Opener {
	return map[string]api.Opener{
		"note":  session.OpenWindow[*NoteViewModel],
		"order": session.OpenWindow[*OrderViewModel],
	}
}
