package debugger

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fansqz/cli-debugger/constants"
	e "github.com/fansqz/cli-debugger/error"
	"github.com/fansqz/cli-debugger/utils"
	"github.com/sirupsen/logrus"
)

const mainThreadName = "main"

// Session 一次调试会话
// 持有运行状态、断点注册表和单步请求，所有命令都在前台协程中执行
type Session struct {
	ID string

	backend     Backend
	breakpoints *BreakpointRegistry

	// statusManager 调试的状态管理
	statusManager *StatusManager

	out    io.Writer
	handle Handle

	// currentThread 最近一次暂停事件所在的线程
	currentThread *ThreadRef
	// pendingSteps 每个线程最多一个未完成的单步请求
	pendingSteps map[int]Request

	exited bool
	log    *logrus.Entry
}

// StatusManager 与utils中的类型相同，这里只是便于其他包引用
type StatusManager = utils.StatusManager

func NewSession(backend Backend, out io.Writer) *Session {
	id := utils.GetUUID()
	return &Session{
		ID:            id,
		backend:       backend,
		breakpoints:   NewBreakpointRegistry(backend),
		statusManager: utils.NewStatusManager(),
		out:           out,
		pendingSteps:  map[int]Request{},
		log:           logrus.WithField("session", id),
	}
}

func (s *Session) State() constants.RunState {
	return s.statusManager.Get()
}

// Exited 用户执行了Exit
func (s *Session) Exited() bool {
	return s.exited
}

func (s *Session) Handle() Handle {
	return s.handle
}

func (s *Session) Out() io.Writer {
	return s.out
}

// Start 启动目标程序，状态保持Initializing直到第一次暂停
func (s *Session) Start(ctx context.Context, target string, suspendOnStart bool) (Handle, error) {
	s.log.Infof("[Session] Start %s", target)
	handle, err := s.backend.LaunchOrAttach(ctx, target, suspendOnStart)
	if err != nil {
		return Handle{}, err
	}
	s.handle = handle
	return handle, nil
}

// Println 输出 "== value =="
func (s *Session) Println(format string, args ...interface{}) {
	fmt.Fprintf(s.out, "== %s ==\n", fmt.Sprintf(format, args...))
}

func (s *Session) checkSuspended() error {
	if !s.statusManager.Is(constants.Suspended) {
		return fmt.Errorf("%s: %w", s.State(), e.ErrInvalidState)
	}
	return nil
}

// checkBackend 后端不可用时结束会话
func (s *Session) checkBackend(err error) error {
	if err != nil && errors.Is(err, e.ErrBackendUnavailable) {
		s.terminate()
		s.Println("Debuggee finished execution during debugger menu. Sorry for the inconvenience!")
	}
	return err
}

func (s *Session) terminate() {
	s.statusManager.Set(constants.Terminated)
	s.currentThread = nil
	s.pendingSteps = map[int]Request{}
}

// ListBreakpoints 按位置排序的断点列表
func (s *Session) ListBreakpoints() ([]*Breakpoint, error) {
	if err := s.checkSuspended(); err != nil {
		return nil, err
	}
	return s.breakpoints.List(), nil
}

// Classes 可以设置断点的类
func (s *Session) Classes(ctx context.Context) ([]string, error) {
	if err := s.checkSuspended(); err != nil {
		return nil, err
	}
	classes, err := s.backend.AllClasses(ctx)
	return classes, s.checkBackend(err)
}

// Lines 类中可以设置断点的位置
func (s *Session) Lines(ctx context.Context, className string) ([]SourceLocation, error) {
	if err := s.checkSuspended(); err != nil {
		return nil, err
	}
	lines, err := s.backend.ResolveLines(ctx, className)
	return lines, s.checkBackend(err)
}

func (s *Session) SetBreakpoint(ctx context.Context, location SourceLocation) (*Breakpoint, error) {
	s.log.Infof("[Session] SetBreakpoint %s", location)
	if err := s.checkSuspended(); err != nil {
		return nil, err
	}
	bp, err := s.breakpoints.Set(ctx, location)
	return bp, s.checkBackend(err)
}

func (s *Session) DeleteBreakpoint(ctx context.Context, index int) (*Breakpoint, error) {
	s.log.Infof("[Session] DeleteBreakpoint %d", index)
	if err := s.checkSuspended(); err != nil {
		return nil, err
	}
	bp, err := s.breakpoints.Delete(ctx, index)
	return bp, s.checkBackend(err)
}

// Resume 继续执行直到下一个断点
func (s *Session) Resume(ctx context.Context) error {
	s.log.Infof("[Session] Resume")
	if err := s.checkSuspended(); err != nil {
		return err
	}
	if err := s.backend.Resume(ctx); err != nil {
		return s.checkBackend(err)
	}
	s.statusManager.Set(constants.Running)
	return nil
}

// StepOver 在thread上单步一行，不进入函数内部
func (s *Session) StepOver(ctx context.Context, thread ThreadRef) error {
	s.log.Infof("[Session] StepOver %d", thread.ID)
	if err := s.checkSuspended(); err != nil {
		return err
	}
	if _, ok := s.pendingSteps[thread.ID]; ok {
		return fmt.Errorf("thread %d: %w", thread.ID, e.ErrStepPending)
	}
	request, err := s.backend.CreateStepRequest(ctx, thread, constants.StepLine, constants.StepOver, 1)
	if err != nil {
		return s.checkBackend(err)
	}
	if err = s.backend.Enable(ctx, request); err != nil {
		s.deleteRequest(ctx, request)
		return s.checkBackend(err)
	}
	if err = s.backend.Resume(ctx); err != nil {
		s.deleteRequest(ctx, request)
		return s.checkBackend(err)
	}
	s.pendingSteps[thread.ID] = request
	s.statusManager.Set(constants.Running)
	return nil
}

// CurrentThread 最近一次暂停的线程，没有时选择main线程或第一个线程
func (s *Session) CurrentThread(ctx context.Context) (ThreadRef, error) {
	if err := s.checkSuspended(); err != nil {
		return ThreadRef{}, err
	}
	if s.currentThread != nil {
		return *s.currentThread, nil
	}
	threads, err := s.backend.AllThreads(ctx)
	if err != nil {
		return ThreadRef{}, s.checkBackend(err)
	}
	if len(threads) == 0 {
		return ThreadRef{}, e.ErrNoSuchThread
	}
	for _, t := range threads {
		if t.Name == mainThreadName {
			return t, nil
		}
	}
	return threads[0], nil
}

// PrintStack 输出线程的调用栈
func (s *Session) PrintStack(ctx context.Context, thread ThreadRef) error {
	s.log.Infof("[Session] PrintStack %d", thread.ID)
	if err := s.checkSuspended(); err != nil {
		return err
	}
	thread, err := s.findThread(ctx, thread)
	if err != nil {
		return err
	}
	frames, err := s.backend.Frames(ctx, thread)
	if err != nil {
		return s.checkBackend(err)
	}
	for _, f := range frames {
		fmt.Fprintf(s.out, "%s in %s, (Thread: %s)\n", f.Location, f.Function, thread.Name)
	}
	return nil
}

// PrintVariables 输出线程第0个栈帧中的变量
func (s *Session) PrintVariables(ctx context.Context, thread ThreadRef) error {
	s.log.Infof("[Session] PrintVariables %d", thread.ID)
	if err := s.checkSuspended(); err != nil {
		return err
	}
	frame, err := s.topFrame(ctx, thread)
	if err != nil {
		return err
	}
	return s.printVariables(ctx, frame)
}

// Exit 禁用所有断点，结束后端
func (s *Session) Exit(ctx context.Context) error {
	s.log.Infof("[Session] Exit")
	if err := s.checkSuspended(); err != nil {
		return err
	}
	return s.teardown(ctx)
}

// Close 在任何状态下结束会话，用于异常退出
func (s *Session) Close(ctx context.Context) error {
	s.log.Infof("[Session] Close")
	if s.exited {
		return nil
	}
	return s.teardown(ctx)
}

// teardown 先禁用断点再结束后端，保证没有请求在会话结束后仍然有效
func (s *Session) teardown(ctx context.Context) error {
	var errs []error
	if err := s.breakpoints.Clear(ctx); err != nil {
		errs = append(errs, err)
	}
	for _, request := range s.pendingSteps {
		s.deleteRequest(ctx, request)
	}
	if err := s.backend.Dispose(ctx); err != nil {
		errs = append(errs, err)
	}
	s.exited = true
	s.terminate()
	return errors.Join(errs...)
}

func (s *Session) findThread(ctx context.Context, thread ThreadRef) (ThreadRef, error) {
	threads, err := s.backend.AllThreads(ctx)
	if err != nil {
		return ThreadRef{}, s.checkBackend(err)
	}
	for _, t := range threads {
		if t.ID == thread.ID {
			return t, nil
		}
	}
	return ThreadRef{}, fmt.Errorf("thread %d: %w", thread.ID, e.ErrNoSuchThread)
}

func (s *Session) topFrame(ctx context.Context, thread ThreadRef) (Frame, error) {
	frames, err := s.backend.Frames(ctx, thread)
	if err != nil {
		return Frame{}, s.checkBackend(err)
	}
	if len(frames) == 0 {
		return Frame{}, fmt.Errorf("thread %d: %w", thread.ID, e.ErrNoFrame)
	}
	return frames[0], nil
}

func (s *Session) printVariables(ctx context.Context, frame Frame) error {
	variables, err := s.backend.VisibleVariables(ctx, frame)
	if err != nil {
		return s.checkBackend(err)
	}
	for _, v := range variables {
		value, err := s.backend.ValueOf(ctx, frame, v)
		if err != nil {
			return s.checkBackend(err)
		}
		fmt.Fprintln(s.out, FormatVariable(v, value))
	}
	return nil
}

func (s *Session) deleteRequest(ctx context.Context, request Request) {
	if request == nil {
		return
	}
	if err := s.backend.DeleteRequest(ctx, request); err != nil {
		s.log.Warnf("[Session] delete request %s fail, err = %v", request, err)
	}
}
