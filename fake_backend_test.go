package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fansqz/cli-debugger/constants"
	"github.com/fansqz/cli-debugger/debugger"
	e "github.com/fansqz/cli-debugger/error"
)

type scriptRequest string

func (r scriptRequest) String() string {
	return string(r)
}

// scriptBackend 按脚本返回事件的后端
type scriptBackend struct {
	calls   []string
	batches [][]debugger.Event
	// onResume Resume成功后调用，一般用来追加下一批事件
	onResume  func(b *scriptBackend, request debugger.Request)
	resumeErr error

	pendingStep debugger.Request
	frames      []debugger.Frame
	variables   []debugger.LocalVariable
	values      map[string]debugger.Value
	lines       []debugger.SourceLocation
}

func newScriptBackend() *scriptBackend {
	return &scriptBackend{
		frames: []debugger.Frame{{
			ID:       10,
			Function: "main.main",
			Location: debugger.NewSourceLocation("main.go", 8),
		}},
		variables: []debugger.LocalVariable{{Name: "x", Type: "int"}},
		values:    map[string]debugger.Value{"x": debugger.Primitive{Text: "1"}},
		lines: []debugger.SourceLocation{
			debugger.NewSourceLocation("main.go", 6),
			debugger.NewSourceLocation("main.go", 8),
			debugger.NewSourceLocation("main.go", 9),
		},
	}
}

func (b *scriptBackend) push(events ...debugger.Event) {
	b.batches = append(b.batches, events)
}

func (b *scriptBackend) count(name string) int {
	n := 0
	for _, c := range b.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (b *scriptBackend) LaunchOrAttach(ctx context.Context, target string, suspendOnStart bool) (debugger.Handle, error) {
	b.calls = append(b.calls, "LaunchOrAttach")
	return debugger.Handle{Target: target, Pid: 1}, nil
}

func (b *scriptBackend) AllThreads(ctx context.Context) ([]debugger.ThreadRef, error) {
	b.calls = append(b.calls, "AllThreads")
	return []debugger.ThreadRef{{ID: 1, Name: "main"}}, nil
}

func (b *scriptBackend) AllClasses(ctx context.Context) ([]string, error) {
	b.calls = append(b.calls, "AllClasses")
	return []string{"main.go"}, nil
}

func (b *scriptBackend) ResolveLines(ctx context.Context, className string) ([]debugger.SourceLocation, error) {
	b.calls = append(b.calls, "ResolveLines")
	if className != "main.go" {
		return nil, nil
	}
	return b.lines, nil
}

func (b *scriptBackend) SetBreakpoint(ctx context.Context, location debugger.SourceLocation) (debugger.Request, error) {
	b.calls = append(b.calls, "SetBreakpoint")
	return scriptRequest("breakpoint " + location.String()), nil
}

func (b *scriptBackend) Enable(ctx context.Context, request debugger.Request) error {
	b.calls = append(b.calls, "Enable")
	return nil
}

func (b *scriptBackend) Disable(ctx context.Context, request debugger.Request) error {
	b.calls = append(b.calls, "Disable")
	return nil
}

func (b *scriptBackend) DeleteRequest(ctx context.Context, request debugger.Request) error {
	b.calls = append(b.calls, "DeleteRequest")
	return nil
}

func (b *scriptBackend) CreateStepRequest(ctx context.Context, thread debugger.ThreadRef, unit constants.StepUnit,
	mode constants.StepMode, count int) (debugger.Request, error) {
	b.calls = append(b.calls, "CreateStepRequest")
	b.pendingStep = scriptRequest(fmt.Sprintf("%s thread %d", mode, thread.ID))
	return b.pendingStep, nil
}

func (b *scriptBackend) Resume(ctx context.Context) error {
	b.calls = append(b.calls, "Resume")
	if b.resumeErr != nil {
		return b.resumeErr
	}
	if b.onResume != nil {
		b.onResume(b, b.pendingStep)
	}
	b.pendingStep = nil
	return nil
}

func (b *scriptBackend) NextEventBatch(ctx context.Context, timeout time.Duration) ([]debugger.Event, error) {
	b.calls = append(b.calls, "NextEventBatch")
	if len(b.batches) == 0 {
		return nil, e.ErrBackendUnavailable
	}
	batch := b.batches[0]
	b.batches = b.batches[1:]
	return batch, nil
}

func (b *scriptBackend) Frames(ctx context.Context, thread debugger.ThreadRef) ([]debugger.Frame, error) {
	b.calls = append(b.calls, "Frames")
	return b.frames, nil
}

func (b *scriptBackend) VisibleVariables(ctx context.Context, frame debugger.Frame) ([]debugger.LocalVariable, error) {
	b.calls = append(b.calls, "VisibleVariables")
	return b.variables, nil
}

func (b *scriptBackend) ValueOf(ctx context.Context, frame debugger.Frame, variable debugger.LocalVariable) (debugger.Value, error) {
	b.calls = append(b.calls, "ValueOf")
	return b.values[variable.Name], nil
}

func (b *scriptBackend) Dispose(ctx context.Context) error {
	b.calls = append(b.calls, "Dispose")
	return nil
}
