package debugger

import (
	"fmt"
	"strings"
)

// SourceLocation 源码位置，按文件再按行排序
type SourceLocation struct {
	File string // 文件或类名
	Line int    // 行号
}

func NewSourceLocation(file string, line int) SourceLocation {
	return SourceLocation{File: file, Line: line}
}

// Compare 返回 -1, 0, 1
func (l SourceLocation) Compare(other SourceLocation) int {
	if c := strings.Compare(l.File, other.File); c != 0 {
		return c
	}
	switch {
	case l.Line < other.Line:
		return -1
	case l.Line > other.Line:
		return 1
	}
	return 0
}

func (l SourceLocation) String() string {
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// Request 后端创建的事件请求（断点、单步、入口陷阱），对核心是不透明的
type Request interface {
	fmt.Stringer
}

// Handle LaunchOrAttach 的结果
type Handle struct {
	Target string
	Pid    int
}

// ThreadRef 线程引用
type ThreadRef struct {
	ID   int
	Name string
}

// Frame 栈帧快照，只在下一次resume/step之前有效
type Frame struct {
	ID       int
	Index    int // 0为最内层
	Thread   ThreadRef
	Function string
	Location SourceLocation
}

// LocalVariable 栈帧中可见的变量
type LocalVariable struct {
	Name string
	Type string
	// Reference 后端使用的变量引用
	Reference string
}

// Value 变量的值，Primitive / *Array / *Object 之一
type Value interface {
	isValue()
}

// Primitive 基本类型、字符串或无法展开的值，Text为后端给出的文本
type Primitive struct {
	Text string
}

// Array 数组类型
type Array struct {
	Elements []Value
}

// Object 复合对象，Identity 只用于检测环
type Object struct {
	TypeName string
	Identity string
	Fields   []Field
}

// Field 对象属性，按后端声明顺序排列
type Field struct {
	Name  string
	Type  string
	Value Value
}

func (Primitive) isValue() {}
func (*Array) isValue()    {}
func (*Object) isValue()   {}

// Event 后端事件。只有本包定义的事件类型
type Event interface {
	isEvent()
}

// StartEvent 目标程序启动
type StartEvent struct{}

// EntryEvent 目标程序停在入口陷阱
type EntryEvent struct {
	Thread  ThreadRef
	Request Request // 入口陷阱，可能为nil
}

// BreakpointHitEvent 到达断点
type BreakpointHitEvent struct {
	Thread  ThreadRef
	Request Request
}

// StepCompleteEvent 单步完成
type StepCompleteEvent struct {
	Thread  ThreadRef
	Request Request
}

// DisconnectEvent 与目标断开
type DisconnectEvent struct{}

// TargetDiedEvent 目标程序退出
type TargetDiedEvent struct {
	ExitCode int
}

func (StartEvent) isEvent()         {}
func (EntryEvent) isEvent()         {}
func (BreakpointHitEvent) isEvent() {}
func (StepCompleteEvent) isEvent()  {}
func (DisconnectEvent) isEvent()    {}
func (TargetDiedEvent) isEvent()    {}
