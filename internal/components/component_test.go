package components

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeComponent struct {
	name    string
	deps    []string
	initErr error
	log     *[]string
}

func (f *fakeComponent) Name() string           { return f.name }
func (f *fakeComponent) Dependencies() []string { return f.deps }
func (f *fakeComponent) Validate() error        { return nil }

func (f *fakeComponent) Initialize(ctx context.Context) error {
	if f.initErr != nil {
		return f.initErr
	}
	*f.log = append(*f.log, "init "+f.name)
	return nil
}

func (f *fakeComponent) Close(ctx context.Context) error {
	*f.log = append(*f.log, "close "+f.name)
	return nil
}

func TestRegistryInitializesInDependencyOrder(t *testing.T) {
	var log []string
	r := NewRegistry()
	for _, c := range []*fakeComponent{
		{name: "classifier", deps: []string{"platforms", "limiter"}, log: &log},
		{name: "platforms", log: &log},
		{name: "limiter", log: &log},
	} {
		if err := r.Register(c); err != nil {
			t.Fatal(err)
		}
	}
	if err := r.Register(&fakeComponent{name: "limiter", log: &log}); err == nil {
		t.Error("duplicate component was accepted")
	}

	if err := r.InitializeAll(context.Background()); err != nil {
		t.Fatalf("InitializeAll() error = %v", err)
	}
	if err := r.CloseAll(context.Background()); err != nil {
		t.Fatalf("CloseAll() error = %v", err)
	}

	want := "init limiter,init platforms,init classifier,close classifier,close platforms,close limiter"
	if got := strings.Join(log, ","); got != want {
		t.Errorf("order = %s\nwant %s", got, want)
	}
}

func TestRegistryClosesOnInitFailure(t *testing.T) {
	var log []string
	r := NewRegistry()
	_ = r.Register(&fakeComponent{name: "storage", log: &log})
	_ = r.Register(&fakeComponent{name: "server", deps: []string{"storage"}, initErr: errors.New("port in use"), log: &log})

	err := r.InitializeAll(context.Background())
	if err == nil || !strings.Contains(err.Error(), "port in use") {
		t.Fatalf("InitializeAll() error = %v", err)
	}
	if got := strings.Join(log, ","); got != "init storage,close storage" {
		t.Errorf("log = %s", got)
	}
}

func TestLookup(t *testing.T) {
	var log []string
	r := NewRegistry()
	_ = r.Register(&fakeComponent{name: "storage", log: &log})

	if c, err := Lookup[*fakeComponent](r, "storage"); err != nil || c.name != "storage" {
		t.Errorf("Lookup() = %v, %v", c, err)
	}
	if _, err := Lookup[*StorageComponent](r, "storage"); err == nil {
		t.Error("Lookup() with the wrong type succeeded")
	}
	if _, err := Lookup[*fakeComponent](r, "server"); err == nil {
		t.Error("Lookup() of a missing component succeeded")
	}
}
