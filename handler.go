package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/fansqz/cli-debugger/constants"
	"github.com/fansqz/cli-debugger/debugger"
	e "github.com/fansqz/cli-debugger/error"
	"github.com/sirupsen/logrus"
)

// handle 执行一个菜单命令
// 只有输入读取失败和协议错误会返回，其他错误输出给用户后重新显示菜单
func (c *Console) handle(ctx context.Context, s *debugger.Session, option constants.MenuOption) error {
	logrus.Infof("[Console] handle %s", option)
	var err error
	switch option {
	case constants.BreakpointList:
		err = c.handleBreakpointList(s)
	case constants.BreakpointDelete:
		err = c.handleBreakpointDelete(ctx, s)
	case constants.BreakpointSet:
		err = c.handleBreakpointSet(ctx, s)
	case constants.RunToBreakpoint:
		err = c.handleRunToBreakpoint(ctx, s)
	case constants.RunStep:
		err = c.handleRunStep(ctx, s)
	case constants.PrintStacktrace:
		err = c.handlePrintStacktrace(ctx, s)
	case constants.PrintVariables:
		err = c.handlePrintVariables(ctx, s)
	case constants.Exit:
		err = c.handleExit(ctx, s)
	default:
		err = fmt.Errorf("menu option %d: %w", option, e.ErrOutOfRange)
	}
	return c.report(option, err)
}

// report 处理命令的错误
func (c *Console) report(option constants.MenuOption, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, e.ErrProtocolViolation), errors.Is(err, io.EOF):
		return err
	case errors.Is(err, e.ErrBackendUnavailable):
		// 会话已经结束并输出了提示
		logrus.Warnf("[Console] %s: backend unavailable, err = %v", option, err)
		return nil
	}
	logrus.Warnf("[Console] %s fail, err = %v", option, err)
	c.println("Not able to %s: %v", option, err)
	return nil
}

func (c *Console) handleBreakpointList(s *debugger.Session) error {
	list, err := s.ListBreakpoints()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(c.out, "No breakpoints are currently set")
		return nil
	}
	for i, bp := range list {
		fmt.Fprintf(c.out, "%d -> %s\n", i, bp.Location)
	}
	return nil
}

func (c *Console) handleBreakpointDelete(ctx context.Context, s *debugger.Session) error {
	c.println("Delete currently active breakpoints:")
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "-1 -> exit this menu without deleting a breakpoint")
	list, err := s.ListBreakpoints()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(c.out, "No breakpoints are currently set")
	}
	for i, bp := range list {
		fmt.Fprintf(c.out, "%d -> %s\n", i, bp.Location)
	}
	fmt.Fprint(c.out, "Your input: ")
	selection, err := c.readIntInRange(-1, len(list))
	if err != nil {
		return err
	}
	if selection < 0 {
		fmt.Fprintln(c.out, "No breakpoint was deleted...")
		return nil
	}
	bp, err := s.DeleteBreakpoint(ctx, selection)
	if errors.Is(err, e.ErrOutOfRange) {
		fmt.Fprintln(c.out, "No breakpoint was deleted...")
		return nil
	}
	if err != nil {
		return err
	}
	c.println("Deleted breakpoint at position %s", bp.Location)
	return nil
}

func (c *Console) handleBreakpointSet(ctx context.Context, s *debugger.Session) error {
	classes, err := s.Classes(ctx)
	if err != nil {
		return err
	}
	for _, class := range classes {
		fmt.Fprintln(c.out, class)
	}
	defaultClass := c.defaultClass
	if defaultClass == "" && len(classes) > 0 {
		defaultClass = classes[0]
	}
	fmt.Fprintf(c.out, "In which class should the breakpoint be set? [%s]: ", defaultClass)
	className, err := c.readLine()
	if err != nil {
		return err
	}
	if className == "" {
		className = defaultClass
	}
	c.println("Looking for methods in %s", className)

	locations, err := s.Lines(ctx, className)
	if err != nil {
		return err
	}
	if len(locations) == 0 {
		return fmt.Errorf("%s: %w", className, e.ErrNoLocation)
	}
	sort.Slice(locations, func(i, j int) bool {
		return locations[i].Line < locations[j].Line
	})
	from, to := locations[0].Line, locations[len(locations)-1].Line
	c.println("Breakpoints can be set in lines between %d and %d", from, to)

	for {
		fmt.Fprintf(c.out, "Line number [%d..%d]: ", from, to)
		line, err := c.readIntInRange(from, to+1)
		if err != nil {
			return err
		}
		location, ok := findLine(locations, line)
		if !ok {
			continue
		}
		_, err = s.SetBreakpoint(ctx, location)
		if errors.Is(err, e.ErrNoLocation) {
			// 适配器认为这一行没有代码
			continue
		}
		if err != nil {
			return err
		}
		c.println("Breakpoint set successfully!")
		return nil
	}
}

func findLine(locations []debugger.SourceLocation, line int) (debugger.SourceLocation, bool) {
	for _, l := range locations {
		if l.Line == line {
			return l, true
		}
	}
	return debugger.SourceLocation{}, false
}

func (c *Console) handleRunToBreakpoint(ctx context.Context, s *debugger.Session) error {
	fmt.Fprintln(c.out, "Run to next breakpoint")
	return s.Resume(ctx)
}

func (c *Console) handleRunStep(ctx context.Context, s *debugger.Session) error {
	thread, err := s.CurrentThread(ctx)
	if err != nil {
		return err
	}
	return s.StepOver(ctx, thread)
}

func (c *Console) handlePrintStacktrace(ctx context.Context, s *debugger.Session) error {
	thread, err := s.CurrentThread(ctx)
	if err == nil {
		err = s.PrintStack(ctx, thread)
	}
	if errors.Is(err, e.ErrNoSuchThread) {
		c.println("StackTrace not found")
		return nil
	}
	return err
}

func (c *Console) handlePrintVariables(ctx context.Context, s *debugger.Session) error {
	thread, err := s.CurrentThread(ctx)
	if err == nil {
		err = s.PrintVariables(ctx, thread)
	}
	if errors.Is(err, e.ErrNoSuchThread) || errors.Is(err, e.ErrNoFrame) {
		c.println("No StackFrame found. Unable to print variables")
		return nil
	}
	return err
}

func (c *Console) handleExit(ctx context.Context, s *debugger.Session) error {
	err := s.Exit(ctx)
	if err != nil {
		logrus.Warnf("[Console] exit fail, err = %v", err)
	}
	c.println("Goodbye!")
	return nil
}
