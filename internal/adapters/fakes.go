package adapters

import (
	"context"
	"fmt"
	"sync"
)

// FakeSourceControl is an in-memory SourceControl double for tests. It
// tracks created workspaces by name and lets tests script rebase outcomes.
type FakeSourceControl struct {
	mu         sync.Mutex
	RootPath   string
	workspaces map[string]string // name -> path
	RebaseFunc func(workspace, onto string) (RebaseResult, error)
}

// NewFakeSourceControl returns a FakeSourceControl rooted at root.
func NewFakeSourceControl(root string) *FakeSourceControl {
	return &FakeSourceControl{RootPath: root, workspaces: map[string]string{}}
}

func (f *FakeSourceControl) WorkspaceCreate(_ context.Context, name, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.workspaces[name]; exists {
		return "", fmt.Errorf("workspace %q already exists", name)
	}
	path := f.RootPath + "/workspaces/" + name
	f.workspaces[name] = path
	return path, nil
}

func (f *FakeSourceControl) WorkspaceAbandon(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.workspaces[name]; !exists {
		return fmt.Errorf("workspace %q does not exist", name)
	}
	delete(f.workspaces, name)
	return nil
}

func (f *FakeSourceControl) WorkspaceList(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.workspaces))
	for name := range f.workspaces {
		out = append(out, name)
	}
	return out, nil
}

func (f *FakeSourceControl) Rebase(_ context.Context, workspace, onto string) (RebaseResult, error) {
	if f.RebaseFunc != nil {
		return f.RebaseFunc(workspace, onto)
	}
	return RebaseResult{OK: true}, nil
}

func (f *FakeSourceControl) Root(_ context.Context) (string, error) {
	return f.RootPath, nil
}

// FakeBeadTracker is an in-memory BeadTracker double for tests.
type FakeBeadTracker struct {
	mu    sync.Mutex
	beads map[string]BeadStatus
}

// NewFakeBeadTracker returns a FakeBeadTracker seeded with ids, all open.
func NewFakeBeadTracker(ids ...string) *FakeBeadTracker {
	b := &FakeBeadTracker{beads: map[string]BeadStatus{}}
	for _, id := range ids {
		b.beads[id] = BeadStatusOpen
	}
	return b
}

func (f *FakeBeadTracker) Get(_ context.Context, id string) (Bead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.beads[id]
	if !ok {
		return Bead{}, fmt.Errorf("bead %q not found", id)
	}
	return Bead{ID: id, Status: status}, nil
}

func (f *FakeBeadTracker) SetStatus(_ context.Context, id string, status BeadStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.beads[id]; !ok {
		return fmt.Errorf("bead %q not found", id)
	}
	f.beads[id] = status
	return nil
}

func (f *FakeBeadTracker) ListReady(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for id, status := range f.beads {
		if status == BeadStatusOpen {
			out = append(out, id)
		}
	}
	return out, nil
}

// TerminateCall records one Terminate invocation, in order, for tests that
// need to assert the graceful-then-forceful sequence happened.
type TerminateCall struct {
	PID   int
	Grace bool
}

// FakeProcessSpawner is an in-memory ProcessSpawner double. Spawned pids are
// sequential starting at 1. A graceful Terminate call (grace=true) only
// kills the process if IgnoresGraceful is false; a forceful call
// (grace=false) always kills it, mirroring a real SIGTERM-then-SIGKILL
// sequence where a process may ignore the polite request.
type FakeProcessSpawner struct {
	mu              sync.Mutex
	nextPID         int
	Alive           map[int]bool
	TerminateErr    error
	IgnoresGraceful bool
	Calls           []TerminateCall
}

// NewFakeProcessSpawner returns an empty FakeProcessSpawner.
func NewFakeProcessSpawner() *FakeProcessSpawner {
	return &FakeProcessSpawner{nextPID: 1, Alive: map[int]bool{}}
}

func (f *FakeProcessSpawner) Spawn(_ context.Context, _ string, _ []string, _ []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pid := f.nextPID
	f.nextPID++
	f.Alive[pid] = true
	return pid, nil
}

func (f *FakeProcessSpawner) Terminate(_ context.Context, pid int, grace bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, TerminateCall{PID: pid, Grace: grace})
	if f.TerminateErr != nil {
		return f.TerminateErr
	}
	if grace && f.IgnoresGraceful {
		return nil
	}
	delete(f.Alive, pid)
	return nil
}

// FakeTerminalMultiplexer is a no-op TerminalMultiplexer double that records
// calls for assertions.
type FakeTerminalMultiplexer struct {
	mu         sync.Mutex
	NewTabs    []string
	FocusCalls []string
	Err        error
}

func NewFakeTerminalMultiplexer() *FakeTerminalMultiplexer {
	return &FakeTerminalMultiplexer{}
}

func (f *FakeTerminalMultiplexer) NewTab(name, _ string) error {
	if f.Err != nil {
		return f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.NewTabs = append(f.NewTabs, name)
	return nil
}

func (f *FakeTerminalMultiplexer) FocusTab(name string) error {
	if f.Err != nil {
		return f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FocusCalls = append(f.FocusCalls, name)
	return nil
}
