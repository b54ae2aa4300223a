package debugger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
	e "github.com/fansqz/cli-debugger/error"
	"github.com/sirupsen/logrus"
)

// Breakpoint 表示断点，位置唯一
type Breakpoint struct {
	Location SourceLocation
	Request  Request
	Enabled  bool
}

// BreakpointRegistry 当前会话中的所有断点
// 按位置排序，Delete 的序号对应最近一次 List 的结果
type BreakpointRegistry struct {
	backend Backend

	mutex       sync.Mutex
	breakpoints *treemap.Map // SourceLocation -> *Breakpoint
	snapshot    []*Breakpoint
}

func NewBreakpointRegistry(backend Backend) *BreakpointRegistry {
	return &BreakpointRegistry{
		backend:     backend,
		breakpoints: treemap.NewWith(compareLocation),
	}
}

func compareLocation(a, b interface{}) int {
	return a.(SourceLocation).Compare(b.(SourceLocation))
}

// List 按位置返回全部断点，并记录为Delete使用的快照
func (r *BreakpointRegistry) List() []*Breakpoint {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	values := r.breakpoints.Values()
	answer := make([]*Breakpoint, len(values))
	for i, v := range values {
		answer[i] = v.(*Breakpoint)
	}
	r.snapshot = answer
	return answer
}

func (r *BreakpointRegistry) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.breakpoints.Size()
}

// Set 在location处创建并启用断点
// 位置重复时丢弃新建的请求并返回 ErrDuplicateBreakpoint
func (r *BreakpointRegistry) Set(ctx context.Context, location SourceLocation) (*Breakpoint, error) {
	logrus.Infof("[BreakpointRegistry] Set %s", location)
	r.mutex.Lock()
	defer r.mutex.Unlock()

	request, err := r.backend.SetBreakpoint(ctx, location)
	if err != nil {
		return nil, err
	}
	if _, found := r.breakpoints.Get(location); found {
		r.discard(ctx, request)
		return nil, fmt.Errorf("%s: %w", location, e.ErrDuplicateBreakpoint)
	}
	if err = r.backend.Enable(ctx, request); err != nil {
		r.discard(ctx, request)
		return nil, err
	}
	bp := &Breakpoint{Location: location, Request: request, Enabled: true}
	r.breakpoints.Put(location, bp)
	return bp, nil
}

// Delete 删除最近一次List结果中第index个断点
// index越界时不做任何修改，返回 ErrOutOfRange
func (r *BreakpointRegistry) Delete(ctx context.Context, index int) (*Breakpoint, error) {
	logrus.Infof("[BreakpointRegistry] Delete %d", index)
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if index < 0 || index >= len(r.snapshot) {
		return nil, fmt.Errorf("breakpoint %d: %w", index, e.ErrOutOfRange)
	}
	bp := r.snapshot[index]
	if _, found := r.breakpoints.Get(bp.Location); !found {
		return nil, fmt.Errorf("breakpoint %d: %w", index, e.ErrOutOfRange)
	}
	// 后端禁用失败时保持注册表不变
	if err := r.backend.Disable(ctx, bp.Request); err != nil {
		return nil, err
	}
	bp.Enabled = false
	r.breakpoints.Remove(bp.Location)
	r.snapshot = nil
	if err := r.backend.DeleteRequest(ctx, bp.Request); err != nil {
		logrus.Warnf("[BreakpointRegistry] delete request %s fail, err = %v", bp.Request, err)
	}
	return bp, nil
}

// Clear 会话结束时禁用所有断点并清空
func (r *BreakpointRegistry) Clear(ctx context.Context) error {
	logrus.Infof("[BreakpointRegistry] Clear")
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var errs []error
	for _, v := range r.breakpoints.Values() {
		bp := v.(*Breakpoint)
		if err := r.backend.Disable(ctx, bp.Request); err != nil {
			errs = append(errs, fmt.Errorf("disable %s: %w", bp.Location, err))
			continue
		}
		bp.Enabled = false
	}
	r.breakpoints.Clear()
	r.snapshot = nil
	return errors.Join(errs...)
}

// discard 删除一个没有被注册的请求
func (r *BreakpointRegistry) discard(ctx context.Context, request Request) {
	if err := r.backend.DeleteRequest(ctx, request); err != nil {
		logrus.Warnf("[BreakpointRegistry] discard request %s fail, err = %v", request, err)
	}
}
