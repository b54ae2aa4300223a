package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fansqz/cli-debugger/config"
	"github.com/fansqz/cli-debugger/constants"
	"github.com/fansqz/cli-debugger/debugger"
	"github.com/fansqz/cli-debugger/debugger/dap_debugger"
	e "github.com/fansqz/cli-debugger/error"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// 定义版本号
const Version = "2.0.0"

func main() {
	cfg, showVersion, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	// 检查是否需要显示版本信息
	if showVersion {
		fmt.Printf("Version: %s\n", Version)
		return
	}

	//启动日志
	if err = SetupLogger(cfg.LogPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		logrus.SetOutput(io.Discard)
	}

	ctx := context.Background()
	session, loop, err := startDebug(ctx, cfg, os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		logrus.Errorf("start debug fail, err = %v", err)
		fmt.Fprintf(os.Stderr, "start debug fail, err = %v\n", err)
		CloseLogger()
		os.Exit(1)
	}

	if err = runDebug(ctx, session, loop); err != nil {
		fmt.Fprintf(os.Stderr, "debug fail, err = %v\n", err)
		// 协议错误说明后端和调试器不匹配，直接终止
		if errors.Is(err, e.ErrProtocolViolation) {
			logrus.Fatalf("protocol violation, err = %v", err)
		}
		logrus.Errorf("debug fail, err = %v", err)
		CloseLogger()
		os.Exit(1)
	}
	// 目标结束、断开或用户退出
	CloseLogger()
	os.Exit(0)
}

// parseFlags 默认配置 < 配置文件 < 命令行中显式给出的参数
// runDebug 运行事件循环，结束后总是关闭会话
// 关闭会话会清除断点并等待目标的输出转发完
func runDebug(ctx context.Context, session *debugger.Session, loop *debugger.EventLoop) error {
	err := loop.Run(ctx)
	if closeErr := session.Close(ctx); closeErr != nil {
		logrus.Warnf("close session fail, err = %v", closeErr)
	}
	return err
}

func parseFlags(args []string, output io.Writer) (config.Config, bool, error) {
	defaults := config.DefaultConfig()
	fs := flag.NewFlagSet("cli-debugger", flag.ContinueOnError)
	fs.SetOutput(output)

	showVersion := fs.Bool("version", false, "Show the version number")
	configPath := fs.String("config", "", "YAML config file")
	adapter := fs.String("adapter", defaults.Adapter, "Command that starts the debug adapter")
	adapterMode := fs.String("adapter-mode", string(defaults.AdapterMode), "How to talk to the adapter: tcp or stdio")
	mode := fs.String("mode", defaults.Mode, "Launch mode passed to the adapter")
	entry := fs.String("entry", defaults.Entry, "Function to stop at when the target starts, empty to use stopOnEntry")
	attach := fs.Int("attach", 0, "Attach to a running process instead of launching")
	tty := fs.Bool("tty", defaults.TTY, "Run the target with a pseudo terminal")
	logPath := fs.String("log", defaults.LogPath, "Log file")
	wait := fs.Duration("wait", defaults.Wait, "How long to wait for a debug event batch")
	requestTimeout := fs.Duration("request-timeout", defaults.RequestTimeout, "Timeout of one adapter request")
	maxDepth := fs.Int("max-depth", defaults.MaxDepth, "How deep variables are expanded")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: cli-debugger [flags] [target]\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return config.Config{}, false, err
	}
	if fs.NArg() > 1 {
		return config.Config{}, false, fmt.Errorf("only one target can be given, got %s", strings.Join(fs.Args(), " "))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return config.Config{}, false, err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "adapter":
			cfg.Adapter = *adapter
		case "adapter-mode":
			cfg.AdapterMode = constants.AdapterMode(*adapterMode)
		case "mode":
			cfg.Mode = *mode
		case "entry":
			cfg.Entry = *entry
		case "attach":
			cfg.AttachPid = *attach
		case "tty":
			cfg.TTY = *tty
		case "log":
			cfg.LogPath = *logPath
		case "wait":
			cfg.Wait = *wait
		case "request-timeout":
			cfg.RequestTimeout = *requestTimeout
		case "max-depth":
			cfg.MaxDepth = *maxDepth
		}
	})
	if fs.NArg() == 1 {
		cfg.Target = fs.Arg(0)
	}
	if *showVersion {
		return cfg, true, nil
	}
	if err = cfg.Validate(); err != nil {
		return config.Config{}, false, err
	}
	return cfg, false, nil
}

// newBackend 根据配置创建DAP后端
func newBackend(cfg config.Config, stdout io.Writer, stderr io.Writer) *dap_debugger.DAPDebugger {
	return dap_debugger.NewDAPDebugger(&dap_debugger.Option{
		AdapterArgs:    cfg.AdapterArgs(),
		AdapterMode:    cfg.AdapterMode,
		Mode:           cfg.Mode,
		Entry:          cfg.Entry,
		AttachPid:      cfg.AttachPid,
		TTY:            cfg.TTY,
		RequestTimeout: cfg.RequestTimeout,
		DialTimeout:    cfg.DialTimeout,
		MaxDepth:       cfg.MaxDepth,
		Stdout:         stdout,
		Stderr:         stderr,
	})
}

// startDebug 启动目标程序并创建事件循环
func startDebug(ctx context.Context, cfg config.Config, in *os.File, stdout *os.File,
	stderr *os.File) (*debugger.Session, *debugger.EventLoop, error) {
	session := debugger.NewSession(newBackend(cfg, stdout, stderr), stdout)
	logrus.WithField("session", session.ID).Infof("[main] start %s", cfg.Target)
	if _, err := session.Start(ctx, cfg.Target, true); err != nil {
		_ = session.Close(ctx)
		return nil, nil, err
	}
	echo := !term.IsTerminal(int(in.Fd()))
	console := NewConsole(in, stdout, defaultClass(cfg.Target), echo)
	return session, debugger.NewEventLoop(session, console, cfg.Wait), nil
}

// defaultClass 目标是go文件时作为设置断点的默认文件
func defaultClass(target string) string {
	if !strings.HasSuffix(target, ".go") {
		return ""
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return target
	}
	return abs
}
