package dap_debugger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/creack/pty"
	"github.com/fansqz/cli-debugger/constants"
	e "github.com/fansqz/cli-debugger/error"
	"github.com/fansqz/cli-debugger/utils"
	"github.com/fansqz/cli-debugger/utils/gosync"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

const (
	dialInterval = 100 * time.Millisecond
	stopTimeout  = 2 * time.Second
)

// Adapter 调试适配器进程（例如 dlv dap）
// 目标程序的stdout和stderr由两个协程转发给用户
type Adapter struct {
	Transport Transport

	cmd    *exec.Cmd
	exited chan struct{}

	// EventStdout / EventStderr DAP output事件写入的位置
	EventStdout io.Writer
	EventStderr io.Writer

	outW *io.PipeWriter
	errR *io.PipeReader
	errW *io.PipeWriter
	ptm  *os.File
	pts  *os.File

	pumps []<-chan struct{}
}

// LaunchAdapter 启动适配器并建立DAP连接
func LaunchAdapter(ctx context.Context, option *Option) (*Adapter, error) {
	if len(option.AdapterArgs) == 0 {
		return nil, errors.New("adapter command cannot be empty")
	}
	switch option.AdapterMode {
	case constants.AdapterTCP:
		return launchTCPAdapter(ctx, option)
	default:
		return launchStdioAdapter(ctx, option)
	}
}

func newAdapter(args []string, option *Option) (*Adapter, io.Reader, error) {
	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	a := &Adapter{
		cmd:         exec.Command(args[0], args[1:]...),
		exited:      make(chan struct{}),
		EventStdout: outW,
		EventStderr: errW,
		outW:        outW,
		errR:        errR,
		errW:        errW,
	}
	a.cmd.Stderr = errW

	var stdoutSrc io.Reader = outR
	if option.TTY {
		// 目标程序的stdout使用伪终端
		ptm, pts, err := pty.Open()
		if err != nil {
			return nil, nil, fmt.Errorf("pty open fail: %w", err)
		}
		if _, err = term.MakeRaw(int(ptm.Fd())); err != nil {
			_ = ptm.Close()
			_ = pts.Close()
			return nil, nil, fmt.Errorf("pty make raw fail: %w", err)
		}
		a.ptm = ptm
		a.pts = pts
		stdoutSrc = ptm
		a.EventStdout = option.Stdout
	}
	return a, stdoutSrc, nil
}

func (a *Adapter) start(ctx context.Context, stdoutSrc io.Reader, option *Option) error {
	if err := a.cmd.Start(); err != nil {
		return fmt.Errorf("start adapter fail: %w", err)
	}
	logrus.Infof("[Adapter] started %s, pid = %d", strings.Join(a.cmd.Args, " "), a.cmd.Process.Pid)
	gosync.Go(ctx, func(ctx context.Context) {
		err := a.cmd.Wait()
		logrus.Infof("[Adapter] exited, err = %v", err)
		close(a.exited)
	})
	a.pumps = append(a.pumps,
		utils.Redirect(ctx, constants.StdoutCategory, stdoutSrc, option.Stdout),
		utils.Redirect(ctx, constants.StderrCategory, a.errR, option.Stderr),
	)
	return nil
}

func launchStdioAdapter(ctx context.Context, option *Option) (*Adapter, error) {
	a, stdoutSrc, err := newAdapter(option.AdapterArgs, option)
	if err != nil {
		return nil, err
	}
	stdin, err := a.cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := a.cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err = a.start(ctx, stdoutSrc, option); err != nil {
		return nil, err
	}
	a.Transport = NewStreamTransport(stdout, stdin, stdin)
	return a, nil
}

func launchTCPAdapter(ctx context.Context, option *Option) (*Adapter, error) {
	port, err := freePort()
	if err != nil {
		return nil, err
	}
	args := substitutePort(option.AdapterArgs, strconv.Itoa(port))
	a, stdoutSrc, err := newAdapter(args, option)
	if err != nil {
		return nil, err
	}
	if a.pts != nil {
		a.cmd.Stdout = a.pts
	} else {
		a.cmd.Stdout = a.outW
	}
	if err = a.start(ctx, stdoutSrc, option); err != nil {
		return nil, err
	}

	address := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	conn, err := a.dial(ctx, address, option.DialTimeout)
	if err != nil {
		_ = a.Stop()
		return nil, err
	}
	a.Transport = NewConnTransport(conn)
	return a, nil
}

// dial 重试连接适配器直到超时
func (a *Adapter) dial(ctx context.Context, address string, timeout time.Duration) (net.Conn, error) {
	deadline := time.Now().Add(timeout)
	var dialer net.Dialer
	for {
		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err == nil {
			logrus.Infof("[Adapter] connected %s", address)
			return conn, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("dial adapter %s: %w: %w", address, e.ErrBackendUnavailable, err)
		}
		select {
		case <-a.exited:
			return nil, fmt.Errorf("adapter exited before listening: %w", e.ErrBackendUnavailable)
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(dialInterval):
		}
	}
}

// Stop 关闭连接并结束适配器进程
func (a *Adapter) Stop() error {
	var errs []error
	if a.Transport != nil {
		if err := a.Transport.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.cmd.Process != nil {
		select {
		case <-a.exited:
		case <-time.After(stopTimeout):
			logrus.Warnf("[Adapter] adapter did not exit, kill it")
			if err := a.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				errs = append(errs, err)
			}
			<-a.exited
		}
	}
	_ = a.outW.Close()
	_ = a.errW.Close()
	if a.ptm != nil {
		_ = a.pts.Close()
		_ = a.ptm.Close()
	}
	// 等待输出转发完
	for _, done := range a.pumps {
		select {
		case <-done:
		case <-time.After(stopTimeout):
		}
	}
	return errors.Join(errs...)
}

func freePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("allocate port fail: %w", err)
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

func substitutePort(args []string, port string) []string {
	answer := make([]string, len(args))
	for i, arg := range args {
		answer[i] = strings.ReplaceAll(arg, constants.PortPlaceholder, port)
	}
	return answer
}
