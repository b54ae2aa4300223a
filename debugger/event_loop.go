package debugger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fansqz/cli-debugger/constants"
	e "github.com/fansqz/cli-debugger/error"
)

// DefaultEventWait NextEventBatch 的等待时间，只影响响应速度
const DefaultEventWait = 500 * time.Millisecond

// EventLoop 从后端读取事件并驱动Session
// 处理一批事件后如果目标处于暂停状态，调用一次Presenter
type EventLoop struct {
	session   *Session
	presenter Presenter
	wait      time.Duration
}

func NewEventLoop(session *Session, presenter Presenter, wait time.Duration) *EventLoop {
	if wait <= 0 {
		wait = DefaultEventWait
	}
	return &EventLoop{
		session:   session,
		presenter: presenter,
		wait:      wait,
	}
}

// Run 运行直到目标退出、断开或用户执行Exit
// 遇到无法识别的事件时返回 ErrProtocolViolation
func (l *EventLoop) Run(ctx context.Context) error {
	s := l.session
	s.log.Infof("[EventLoop] Run")
	for !s.statusManager.Is(constants.Terminated) {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := s.backend.NextEventBatch(ctx, l.wait)
		if err != nil {
			if errors.Is(err, e.ErrBackendUnavailable) {
				s.terminate()
				s.Println("Debugee terminated")
				return nil
			}
			return err
		}
		suspended, err := l.handleBatch(ctx, batch)
		if err != nil {
			return err
		}
		if !suspended || !s.statusManager.Is(constants.Suspended) {
			continue
		}
		if err = l.presenter.Present(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// handleBatch 按顺序处理一批事件，返回这批事件是否让目标暂停
func (l *EventLoop) handleBatch(ctx context.Context, batch []Event) (bool, error) {
	s := l.session
	suspended := false
	for _, event := range batch {
		// Terminated 之后的事件全部忽略
		if s.statusManager.Is(constants.Terminated) {
			return false, nil
		}
		switch ev := event.(type) {
		case StartEvent:
			s.log.Infof("[EventLoop] target started")
			s.Println("Started debugging!")
		case EntryEvent:
			s.log.Infof("[EventLoop] entry, thread %d", ev.Thread.ID)
			s.deleteRequest(ctx, ev.Request)
			l.suspend(ev.Thread)
			suspended = true
		case BreakpointHitEvent:
			s.log.Infof("[EventLoop] breakpoint hit, thread %d", ev.Thread.ID)
			// 到达断点时取消该线程上未完成的单步
			if pending, ok := s.pendingSteps[ev.Thread.ID]; ok {
				s.deleteRequest(ctx, pending)
				delete(s.pendingSteps, ev.Thread.ID)
			}
			l.suspend(ev.Thread)
			l.printStop(ctx, "BREAKPOINT", ev.Thread)
			suspended = true
		case StepCompleteEvent:
			s.log.Infof("[EventLoop] step complete, thread %d", ev.Thread.ID)
			request := ev.Request
			if pending, ok := s.pendingSteps[ev.Thread.ID]; ok {
				request = pending
				delete(s.pendingSteps, ev.Thread.ID)
			}
			s.deleteRequest(ctx, request)
			l.suspend(ev.Thread)
			l.printStop(ctx, "STEP", ev.Thread)
			suspended = true
		case DisconnectEvent:
			s.log.Infof("[EventLoop] disconnect")
			s.terminate()
			s.Println("Target disconnected")
		case TargetDiedEvent:
			s.log.Infof("[EventLoop] target died, exit code %d", ev.ExitCode)
			s.terminate()
			s.Println("Debugee exited with code %d", ev.ExitCode)
		default:
			return false, fmt.Errorf("event %T: %w", event, e.ErrProtocolViolation)
		}
	}
	return suspended, nil
}

func (l *EventLoop) suspend(thread ThreadRef) {
	t := thread
	l.session.currentThread = &t
	l.session.statusManager.Set(constants.Suspended)
}

// printStop 输出暂停位置和第0个栈帧的变量
func (l *EventLoop) printStop(ctx context.Context, kind string, thread ThreadRef) {
	s := l.session
	frame, err := s.topFrame(ctx, thread)
	if err != nil {
		s.log.Warnf("[EventLoop] get frame fail, err = %v", err)
		s.Println("No StackFrame found for thread %s", thread.Name)
		return
	}
	s.Println("[%s] Location: %d in %s", kind, frame.Location.Line, frame.Function)
	if err = s.printVariables(ctx, frame); err != nil {
		s.log.Warnf("[EventLoop] print variables fail, err = %v", err)
	}
}
