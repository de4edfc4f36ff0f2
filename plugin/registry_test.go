package plugin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
)

type basePlugin struct {
	name string
}

func (p *basePlugin) Name() string { return p.name }

// settledCounter implements OnPaymentSettled and counts dispatches.
type settledCounter struct {
	basePlugin
	count atomic.Int64
	fail  bool
}

func (p *settledCounter) OnPaymentSettled(ctx context.Context, event interface{}) error {
	p.count.Add(1)
	if p.fail {
		return errors.New("boom")
	}
	return nil
}

type fakeSwapProvider struct {
	basePlugin
	adapter interface{}
}

func (p *fakeSwapProvider) Adapter() interface{} { return p.adapter }

func newTestRegistry() *Registry {
	return NewRegistry().WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegisterDuplicate(t *testing.T) {
	r := newTestRegistry()

	if err := r.Register(&basePlugin{name: "metrics"}); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if err := r.Register(&basePlugin{name: "metrics"}); err == nil {
		t.Error("Duplicate registration should fail")
	}
	if r.Count() != 1 {
		t.Errorf("Count: got %d, want 1", r.Count())
	}
}

func TestGetAndList(t *testing.T) {
	r := newTestRegistry()

	for _, name := range []string{"a", "b"} {
		if err := r.Register(&basePlugin{name: name}); err != nil {
			t.Fatal(err)
		}
	}

	if got := r.Get("b"); got == nil || got.Name() != "b" {
		t.Errorf("Get(b): got %v", got)
	}
	if got := r.Get("missing"); got != nil {
		t.Errorf("Get(missing): got %v, want nil", got)
	}
	if got := r.List(); len(got) != 2 {
		t.Errorf("List: got %d plugins, want 2", len(got))
	}
}

func TestEmitDispatchesToImplementers(t *testing.T) {
	r := newTestRegistry()

	hooked := &settledCounter{basePlugin: basePlugin{name: "hooked"}}
	if err := r.Register(hooked); err != nil {
		t.Fatal(err)
	}
	// A plugin without the hook must not be dispatched to.
	if err := r.Register(&basePlugin{name: "plain"}); err != nil {
		t.Fatal(err)
	}

	r.EmitPaymentSettled(context.Background(), nil)
	r.EmitPaymentSettled(context.Background(), nil)

	if got := hooked.count.Load(); got != 2 {
		t.Errorf("OnPaymentSettled dispatches: got %d, want 2", got)
	}
}

func TestEmitSwallowsPluginErrors(t *testing.T) {
	r := newTestRegistry()

	failing := &settledCounter{basePlugin: basePlugin{name: "failing"}, fail: true}
	after := &settledCounter{basePlugin: basePlugin{name: "after"}}
	if err := r.Register(failing); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(after); err != nil {
		t.Fatal(err)
	}

	// A failing hook must not stop dispatch to the remaining plugins.
	r.EmitPaymentSettled(context.Background(), nil)

	if got := after.count.Load(); got != 1 {
		t.Errorf("Dispatch after failure: got %d, want 1", got)
	}
}

func TestGetSwapProviders(t *testing.T) {
	r := newTestRegistry()

	if err := r.Register(&fakeSwapProvider{basePlugin: basePlugin{name: "venue"}}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(&basePlugin{name: "plain"}); err != nil {
		t.Fatal(err)
	}

	providers := r.GetSwapProviders()
	if len(providers) != 1 {
		t.Fatalf("Swap providers: got %d, want 1", len(providers))
	}
	if providers[0].Name() != "venue" {
		t.Errorf("Provider name: got %q, want %q", providers[0].Name(), "venue")
	}
}
