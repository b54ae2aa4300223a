package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fansqz/cli-debugger/constants"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultTarget 没有指定目标时调试当前目录
	DefaultTarget        = "."
	DefaultEntry         = "main.main"
	DefaultAdapter       = "dlv dap --listen=127.0.0.1:{port}"
	DefaultWait          = 500 * time.Millisecond
	DefaultRequestTimout = 10 * time.Second
	DefaultDialTimeout   = 10 * time.Second
	DefaultMaxDepth      = 3
)

// Config 调试器配置
type Config struct {
	// Target 调试目标，main包目录或者main文件
	Target string `yaml:"target"`
	// Adapter 启动调试适配器的命令，tcp模式下需要包含{port}
	Adapter     string                `yaml:"adapter"`
	AdapterMode constants.AdapterMode `yaml:"adapter_mode"`
	// Mode 传给适配器launch请求的mode，例如debug、exec、test
	Mode string `yaml:"mode"`
	// Entry 入口陷阱所在的函数，为空时不在入口暂停
	Entry string `yaml:"entry"`
	// AttachPid 大于0时附加到已有进程
	AttachPid int `yaml:"attach_pid"`
	// TTY 适配器的stdout使用伪终端
	TTY            bool          `yaml:"tty"`
	LogPath        string        `yaml:"log"`
	Wait           time.Duration `yaml:"wait"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	// MaxDepth 读取变量时展开的最大层数
	MaxDepth int `yaml:"max_depth"`
}

func DefaultConfig() Config {
	return Config{
		Target:         DefaultTarget,
		Adapter:        DefaultAdapter,
		AdapterMode:    constants.AdapterTCP,
		Mode:           "debug",
		Entry:          DefaultEntry,
		LogPath:        filepath.Join(os.TempDir(), "cli-debugger.log"),
		Wait:           DefaultWait,
		RequestTimeout: DefaultRequestTimout,
		DialTimeout:    DefaultDialTimeout,
		MaxDepth:       DefaultMaxDepth,
	}
}

// Load 在默认配置上叠加配置文件，path为空时返回默认配置
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// AdapterArgs 适配器命令按空白切分
func (c Config) AdapterArgs() []string {
	return strings.Fields(c.Adapter)
}

// Validate 校验配置
func (c Config) Validate() error {
	var errs []error
	if len(c.AdapterArgs()) == 0 {
		errs = append(errs, errors.New("adapter command cannot be empty"))
	}
	switch c.AdapterMode {
	case constants.AdapterStdio:
		if c.TTY {
			errs = append(errs, errors.New("tty requires adapter mode tcp"))
		}
	case constants.AdapterTCP:
		if !strings.Contains(c.Adapter, constants.PortPlaceholder) {
			errs = append(errs, fmt.Errorf("adapter command must contain %s in tcp mode", constants.PortPlaceholder))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported adapter mode %q", c.AdapterMode))
	}
	if c.AttachPid < 0 {
		errs = append(errs, fmt.Errorf("invalid attach pid %d", c.AttachPid))
	}
	if c.AttachPid == 0 && c.Target == "" {
		errs = append(errs, errors.New("target cannot be empty"))
	}
	if c.Wait <= 0 {
		errs = append(errs, errors.New("wait must be positive"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}
	if c.MaxDepth < 1 {
		errs = append(errs, errors.New("max depth must be at least 1"))
	}
	return errors.Join(errs...)
}
