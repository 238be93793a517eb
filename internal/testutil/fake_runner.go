package testutil

import (
	"context"
	"sync"

	"github.com/turtacn/dockpipe/internal/infrastructure/external"
)

// RunnerFunc handles one fake command invocation.
type RunnerFunc func(ctx context.Context, cmd external.Command) (*external.Result, error)

// FakeRunner implements external.Runner.  Every command is recorded; the
// Handler, when set, decides the outcome.  Without a Handler every command
// succeeds with empty output.
type FakeRunner struct {
	mu      sync.Mutex
	calls   []external.Command
	Handler RunnerFunc
}

// NewFakeRunner returns a FakeRunner using h.
func NewFakeRunner(h RunnerFunc) *FakeRunner {
	return &FakeRunner{Handler: h}
}

// Run implements external.Runner.
func (f *FakeRunner) Run(ctx context.Context, cmd external.Command) (*external.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()

	if f.Handler == nil {
		return &external.Result{}, nil
	}
	return f.Handler(ctx, cmd)
}

// Calls returns a copy of the recorded commands.
func (f *FakeRunner) Calls() []external.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]external.Command, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsTo returns the recorded commands whose Name is name.
func (f *FakeRunner) CallsTo(name string) []external.Command {
	var out []external.Command
	for _, c := range f.Calls() {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}
