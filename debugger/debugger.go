package debugger

import (
	"context"
	"time"

	"github.com/fansqz/cli-debugger/constants"
)

// Backend
// 调试后端，核心只通过这个接口控制和查看目标程序
// 后端在目标继续执行后让栈帧和变量失效
type Backend interface {
	// LaunchOrAttach 启动或附加目标程序，suspendOnStart 为true时在入口处暂停
	LaunchOrAttach(ctx context.Context, target string, suspendOnStart bool) (Handle, error)
	// AllThreads 获取所有线程
	AllThreads(ctx context.Context) ([]ThreadRef, error)
	// AllClasses 获取所有可以设置断点的类（源文件）
	AllClasses(ctx context.Context) ([]string, error)
	// ResolveLines 获取类中所有可以设置断点的位置，有序
	ResolveLines(ctx context.Context, className string) ([]SourceLocation, error)
	// SetBreakpoint 创建断点请求，需要Enable才会生效
	SetBreakpoint(ctx context.Context, location SourceLocation) (Request, error)
	Enable(ctx context.Context, request Request) error
	Disable(ctx context.Context, request Request) error
	// DeleteRequest 删除请求，已启用的请求会先被禁用
	DeleteRequest(ctx context.Context, request Request) error
	// CreateStepRequest 创建单步请求，count为单步次数
	CreateStepRequest(ctx context.Context, thread ThreadRef, unit constants.StepUnit, mode constants.StepMode, count int) (Request, error)
	// Resume 继续执行
	Resume(ctx context.Context) error
	// NextEventBatch 阻塞直到至少一个事件，超时返回空
	NextEventBatch(ctx context.Context, timeout time.Duration) ([]Event, error)
	// Frames 获取线程的栈帧，0为最内层
	Frames(ctx context.Context, thread ThreadRef) ([]Frame, error)
	// VisibleVariables 获取栈帧中可见的变量
	VisibleVariables(ctx context.Context, frame Frame) ([]LocalVariable, error)
	// ValueOf 读取变量的值
	ValueOf(ctx context.Context, frame Frame, variable LocalVariable) (Value, error)
	// Dispose 终止调试
	Dispose(ctx context.Context) error
}

// Presenter 目标暂停时把控制权交给用户，每批事件最多调用一次
// Present 在会话离开Suspended状态（resume、step、exit）后返回
type Presenter interface {
	Present(ctx context.Context, session *Session) error
}
