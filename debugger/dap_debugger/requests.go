package dap_debugger

import (
	"fmt"

	"github.com/fansqz/cli-debugger/constants"
	"github.com/fansqz/cli-debugger/debugger"
)

// lineBreakpoint 行断点，Enable之后才发送给适配器
type lineBreakpoint struct {
	location debugger.SourceLocation
	// id 适配器返回的断点id
	id      int
	enabled bool
}

func (b *lineBreakpoint) String() string {
	return "breakpoint " + b.location.String()
}

// stepRequest 单步请求，Enable后下一次Resume发送next/stepIn/stepOut
type stepRequest struct {
	thread debugger.ThreadRef
	mode   constants.StepMode
}

func (s *stepRequest) String() string {
	return fmt.Sprintf("%s thread %d", s.mode, s.thread.ID)
}

// entryRequest 入口陷阱，用函数断点实现
type entryRequest struct {
	function string
	id       int
}

func (r *entryRequest) String() string {
	return "entry " + r.function
}
