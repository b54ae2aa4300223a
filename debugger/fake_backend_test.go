package debugger

import (
	"context"
	"fmt"
	"time"

	"github.com/fansqz/cli-debugger/constants"
	e "github.com/fansqz/cli-debugger/error"
)

type fakeRequest struct {
	name    string
	enabled bool
	deleted bool
}

func (r *fakeRequest) String() string {
	return r.name
}

// fakeBackend 记录调用，按脚本返回事件
type fakeBackend struct {
	calls []string
	errs  map[string]error

	threads   []ThreadRef
	frames    map[int][]Frame
	variables map[int][]LocalVariable
	values    map[string]Value
	classes   []string
	lines     map[string][]SourceLocation

	batches  [][]Event
	requests []*fakeRequest
	// onResume 每次Resume后追加的事件
	onResume func(b *fakeBackend)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		errs:      map[string]error{},
		threads:   []ThreadRef{{ID: 1, Name: "main"}, {ID: 2, Name: "worker"}},
		frames:    map[int][]Frame{},
		variables: map[int][]LocalVariable{},
		values:    map[string]Value{},
		lines:     map[string][]SourceLocation{},
	}
}

func (b *fakeBackend) record(name string) error {
	b.calls = append(b.calls, name)
	return b.errs[name]
}

func (b *fakeBackend) count(name string) int {
	n := 0
	for _, c := range b.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (b *fakeBackend) push(events ...Event) {
	b.batches = append(b.batches, events)
}

func (b *fakeBackend) LaunchOrAttach(ctx context.Context, target string, suspendOnStart bool) (Handle, error) {
	if err := b.record("LaunchOrAttach"); err != nil {
		return Handle{}, err
	}
	return Handle{Target: target, Pid: 4242}, nil
}

func (b *fakeBackend) AllThreads(ctx context.Context) ([]ThreadRef, error) {
	if err := b.record("AllThreads"); err != nil {
		return nil, err
	}
	return b.threads, nil
}

func (b *fakeBackend) AllClasses(ctx context.Context) ([]string, error) {
	if err := b.record("AllClasses"); err != nil {
		return nil, err
	}
	return b.classes, nil
}

func (b *fakeBackend) ResolveLines(ctx context.Context, className string) ([]SourceLocation, error) {
	if err := b.record("ResolveLines"); err != nil {
		return nil, err
	}
	return b.lines[className], nil
}

func (b *fakeBackend) SetBreakpoint(ctx context.Context, location SourceLocation) (Request, error) {
	if err := b.record("SetBreakpoint"); err != nil {
		return nil, err
	}
	r := &fakeRequest{name: "breakpoint " + location.String()}
	b.requests = append(b.requests, r)
	return r, nil
}

func (b *fakeBackend) Enable(ctx context.Context, request Request) error {
	if err := b.record("Enable"); err != nil {
		return err
	}
	request.(*fakeRequest).enabled = true
	return nil
}

func (b *fakeBackend) Disable(ctx context.Context, request Request) error {
	if err := b.record("Disable"); err != nil {
		return err
	}
	request.(*fakeRequest).enabled = false
	return nil
}

func (b *fakeBackend) DeleteRequest(ctx context.Context, request Request) error {
	if err := b.record("DeleteRequest"); err != nil {
		return err
	}
	r := request.(*fakeRequest)
	r.enabled = false
	r.deleted = true
	return nil
}

func (b *fakeBackend) CreateStepRequest(ctx context.Context, thread ThreadRef, unit constants.StepUnit,
	mode constants.StepMode, count int) (Request, error) {
	if err := b.record("CreateStepRequest"); err != nil {
		return nil, err
	}
	r := &fakeRequest{name: fmt.Sprintf("%s thread %d", mode, thread.ID)}
	b.requests = append(b.requests, r)
	return r, nil
}

func (b *fakeBackend) Resume(ctx context.Context) error {
	if err := b.record("Resume"); err != nil {
		return err
	}
	if b.onResume != nil {
		b.onResume(b)
	}
	return nil
}

// NextEventBatch 脚本里的事件用完后返回 ErrBackendUnavailable
func (b *fakeBackend) NextEventBatch(ctx context.Context, timeout time.Duration) ([]Event, error) {
	if err := b.record("NextEventBatch"); err != nil {
		return nil, err
	}
	if len(b.batches) == 0 {
		return nil, e.ErrBackendUnavailable
	}
	batch := b.batches[0]
	b.batches = b.batches[1:]
	return batch, nil
}

func (b *fakeBackend) Frames(ctx context.Context, thread ThreadRef) ([]Frame, error) {
	if err := b.record("Frames"); err != nil {
		return nil, err
	}
	return b.frames[thread.ID], nil
}

func (b *fakeBackend) VisibleVariables(ctx context.Context, frame Frame) ([]LocalVariable, error) {
	if err := b.record("VisibleVariables"); err != nil {
		return nil, err
	}
	return b.variables[frame.ID], nil
}

func (b *fakeBackend) ValueOf(ctx context.Context, frame Frame, variable LocalVariable) (Value, error) {
	if err := b.record("ValueOf"); err != nil {
		return nil, err
	}
	return b.values[variable.Name], nil
}

func (b *fakeBackend) Dispose(ctx context.Context) error {
	return b.record("Dispose")
}

// presenterFunc 测试用的Presenter
type presenterFunc func(ctx context.Context, session *Session) error

func (f presenterFunc) Present(ctx context.Context, session *Session) error {
	return f(ctx, session)
}
