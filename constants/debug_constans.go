package constants

import "strings"

// RunState 调试会话的运行状态
type RunState string

const (
	// Initializing 目标程序已启动，还未停在入口
	Initializing RunState = "initializing"
	// Suspended 目标程序暂停，可以接受命令
	Suspended RunState = "suspended"
	// Running 目标程序运行中
	Running RunState = "running"
	// Terminated 调试结束状态，不可再迁移
	Terminated RunState = "terminated"
)

// MenuOption 菜单选项，序号即为用户输入的数字
type MenuOption int

const (
	BreakpointList MenuOption = iota
	BreakpointDelete
	BreakpointSet
	RunToBreakpoint
	RunStep
	PrintStacktrace
	PrintVariables
	Exit
)

var menuOptionNames = map[MenuOption]string{
	BreakpointList:   "BREAKPOINT_LIST",
	BreakpointDelete: "BREAKPOINT_DELETE",
	BreakpointSet:    "BREAKPOINT_SET",
	RunToBreakpoint:  "RUN_TO_BREAKPOINT",
	RunStep:          "RUN_STEP",
	PrintStacktrace:  "PRINT_STACKTRACE",
	PrintVariables:   "PRINT_VARIABLES",
	Exit:             "EXIT",
}

// MenuOptions 按序号排列的全部选项
func MenuOptions() []MenuOption {
	return []MenuOption{
		BreakpointList, BreakpointDelete, BreakpointSet, RunToBreakpoint,
		RunStep, PrintStacktrace, PrintVariables, Exit,
	}
}

// String "RUN_TO_BREAKPOINT" -> "run to breakpoint"
func (m MenuOption) String() string {
	name, ok := menuOptionNames[m]
	if !ok {
		return "unknown"
	}
	return strings.ToLower(strings.ReplaceAll(name, "_", " "))
}

// StepUnit 单步的粒度
type StepUnit string

const (
	StepLine        StepUnit = "line"
	StepStatement   StepUnit = "statement"
	StepInstruction StepUnit = "instruction"
)

// StepMode 单步方式
type StepMode string

const (
	StepIn   StepMode = "stepIn"
	StepOut  StepMode = "stepOut"
	StepOver StepMode = "stepOver"
)

// AdapterMode 与调试适配器的通信方式
type AdapterMode string

const (
	// AdapterStdio 适配器使用stdin/stdout传输DAP消息
	AdapterStdio AdapterMode = "stdio"
	// AdapterTCP 适配器监听{port}端口，由我们连接
	AdapterTCP AdapterMode = "tcp"
)

// PortPlaceholder 适配器参数中的端口占位符
const PortPlaceholder = "{port}"

// StdoutCategory / StderrCategory DAP output事件的类别
const (
	StdoutCategory = "stdout"
	StderrCategory = "stderr"
)
