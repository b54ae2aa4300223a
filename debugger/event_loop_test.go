package debugger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/fansqz/cli-debugger/constants"
	e "github.com/fansqz/cli-debugger/error"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unknownEvent 后端不应该产生的事件
type unknownEvent struct{}

func (unknownEvent) isEvent() {}

var (
	mainRef   = ThreadRef{ID: 1, Name: "main"}
	workerRef = ThreadRef{ID: 2, Name: "worker"}
)

func newLoop(t *testing.T, presenter Presenter) (*EventLoop, *Session, *fakeBackend, *bytes.Buffer) {
	t.Helper()
	b := newFakeBackend()
	out := &bytes.Buffer{}
	s := NewSession(b, out)
	return NewEventLoop(s, presenter, 0), s, b, out
}

func resumeOnPresent(calls *int) Presenter {
	return presenterFunc(func(ctx context.Context, s *Session) error {
		*calls++
		return s.Resume(ctx)
	})
}

func TestEventLoopEntryThenExit(t *testing.T) {
	presents := 0
	loop, s, b, out := newLoop(t, resumeOnPresent(&presents))
	entry := &fakeRequest{name: "entry main.main", enabled: true}
	b.push(StartEvent{}, EntryEvent{Thread: mainRef, Request: entry})
	b.push()
	b.push(TargetDiedEvent{ExitCode: 3})

	require.NoError(t, loop.Run(context.Background()))
	assert.Equal(t, 1, presents)
	assert.True(t, entry.deleted)
	assert.Equal(t, constants.Terminated, s.State())
	assert.Equal(t, "== Started debugging! ==\n== Debugee exited with code 3 ==\n", out.String())
	// Terminated 之后不再读取事件
	assert.Equal(t, 3, b.count("NextEventBatch"))
}

func TestEventLoopPresentOncePerBatch(t *testing.T) {
	presents := 0
	loop, _, b, _ := newLoop(t, presenterFunc(func(ctx context.Context, s *Session) error {
		presents++
		current, err := s.CurrentThread(ctx)
		require.NoError(t, err)
		// 最后一个暂停事件的线程成为当前线程
		assert.Equal(t, workerRef, current)
		return s.Resume(ctx)
	}))
	b.push(
		EntryEvent{Thread: mainRef},
		BreakpointHitEvent{Thread: mainRef, Request: &fakeRequest{name: "bp1"}},
		BreakpointHitEvent{Thread: workerRef, Request: &fakeRequest{name: "bp2"}},
	)
	b.push(DisconnectEvent{})

	require.NoError(t, loop.Run(context.Background()))
	assert.Equal(t, 1, presents)
}

func TestEventLoopBreakpointOutput(t *testing.T) {
	presents := 0
	loop, _, b, out := newLoop(t, resumeOnPresent(&presents))
	b.frames[1] = []Frame{{ID: 10, Function: "main.main", Location: NewSourceLocation("main.go", 8)}}
	b.variables[10] = []LocalVariable{{Name: "x", Type: "int"}}
	b.values["x"] = Primitive{Text: "5"}
	b.push(BreakpointHitEvent{Thread: mainRef})
	b.push(BreakpointHitEvent{Thread: workerRef})

	require.NoError(t, loop.Run(context.Background()))
	assert.Equal(t, 2, presents)
	assert.Equal(t, "== [BREAKPOINT] Location: 8 in main.main ==\n"+
		"int x = 5\n"+
		"== No StackFrame found for thread worker ==\n"+
		"== Debugee terminated ==\n", out.String())
}

func TestEventLoopStepRoundTrip(t *testing.T) {
	steps := 0
	loop, s, b, out := newLoop(t, presenterFunc(func(ctx context.Context, s *Session) error {
		steps++
		if steps == 1 {
			return s.StepOver(ctx, mainRef)
		}
		return s.Exit(ctx)
	}))
	b.frames[1] = []Frame{{ID: 10, Function: "main.main", Location: NewSourceLocation("main.go", 7)}}
	b.push(EntryEvent{Thread: mainRef})
	b.onResume = func(b *fakeBackend) {
		if len(b.requests) == 1 {
			b.push(StepCompleteEvent{Thread: mainRef, Request: b.requests[0]})
		}
	}

	require.NoError(t, loop.Run(context.Background()))
	assert.Equal(t, 2, steps)
	require.Len(t, b.requests, 1)
	assert.True(t, b.requests[0].deleted)
	assert.Empty(t, s.pendingSteps)
	assert.True(t, s.Exited())
	assert.Contains(t, out.String(), "== [STEP] Location: 7 in main.main ==\n")
}

func TestEventLoopBreakpointCancelsStep(t *testing.T) {
	presents := 0
	loop, s, b, _ := newLoop(t, presenterFunc(func(ctx context.Context, s *Session) error {
		presents++
		if presents == 1 {
			return s.StepOver(ctx, mainRef)
		}
		// 单步被断点取消后可以再次单步
		assert.Empty(t, s.pendingSteps)
		return s.Exit(ctx)
	}))
	b.push(EntryEvent{Thread: mainRef})
	b.onResume = func(b *fakeBackend) {
		b.push(BreakpointHitEvent{Thread: mainRef, Request: &fakeRequest{name: "bp"}})
	}

	require.NoError(t, loop.Run(context.Background()))
	assert.Equal(t, 2, presents)
	assert.True(t, b.requests[0].deleted)
	assert.Equal(t, constants.Terminated, s.State())
}

func TestEventLoopIgnoresEventsAfterTerminated(t *testing.T) {
	presents := 0
	loop, _, b, out := newLoop(t, resumeOnPresent(&presents))
	b.push(DisconnectEvent{}, BreakpointHitEvent{Thread: mainRef}, unknownEvent{})

	require.NoError(t, loop.Run(context.Background()))
	assert.Equal(t, 0, presents)
	assert.Equal(t, "== Target disconnected ==\n", out.String())
}

func TestEventLoopUnknownEvent(t *testing.T) {
	presents := 0
	loop, _, b, _ := newLoop(t, resumeOnPresent(&presents))
	b.push(EntryEvent{Thread: mainRef}, unknownEvent{})

	err := loop.Run(context.Background())
	assert.ErrorIs(t, err, e.ErrProtocolViolation)
	assert.Equal(t, 0, presents)
}

func TestEventLoopBackendGone(t *testing.T) {
	presents := 0
	loop, s, _, out := newLoop(t, resumeOnPresent(&presents))

	require.NoError(t, loop.Run(context.Background()))
	assert.Equal(t, constants.Terminated, s.State())
	assert.Equal(t, "== Debugee terminated ==\n", out.String())
}

func TestEventLoopBackendError(t *testing.T) {
	presents := 0
	loop, _, b, _ := newLoop(t, resumeOnPresent(&presents))
	b.errs["NextEventBatch"] = e.ErrRequestTimeout

	assert.ErrorIs(t, loop.Run(context.Background()), e.ErrRequestTimeout)
}

func TestEventLoopPresenterError(t *testing.T) {
	boom := errors.New("boom")
	loop, _, b, _ := newLoop(t, presenterFunc(func(ctx context.Context, s *Session) error {
		return boom
	}))
	b.push(EntryEvent{Thread: mainRef})

	assert.ErrorIs(t, loop.Run(context.Background()), boom)
}

func TestEventLoopContextCanceled(t *testing.T) {
	presents := 0
	loop, _, b, _ := newLoop(t, resumeOnPresent(&presents))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, loop.Run(ctx), context.Canceled)
	assert.Equal(t, 0, b.count("NextEventBatch"))
}
