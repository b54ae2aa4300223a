package dap_debugger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/emirpasic/gods/sets/hashset"
	"github.com/fansqz/cli-debugger/constants"
	"github.com/fansqz/cli-debugger/debugger"
	e "github.com/fansqz/cli-debugger/error"
	"github.com/fansqz/cli-debugger/protocol"
	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"
)

// 适配器的能力
const (
	capabilityConfigurationDone   = "configurationDone"
	capabilityFunctionBreakpoints = "functionBreakpoints"
	capabilityLoadedSources       = "loadedSources"
)

// stopped事件的reason
const (
	reasonEntry              = "entry"
	reasonPause              = "pause"
	reasonStep               = "step"
	reasonBreakpoint         = "breakpoint"
	reasonFunctionBreakpoint = "function breakpoint"
)

type Option struct {
	AdapterArgs []string
	AdapterMode constants.AdapterMode
	// Mode launch请求的mode
	Mode string
	// Entry 入口陷阱的函数名，为空时使用stopOnEntry
	Entry     string
	AttachPid int
	TTY       bool

	RequestTimeout time.Duration
	DialTimeout    time.Duration
	MaxDepth       int

	Stdout io.Writer
	Stderr io.Writer
}

// DAPDebugger 通过DAP协议驱动调试适配器的后端
// 除了client的读协程，所有方法都在会话的前台协程中调用
type DAPDebugger struct {
	option *Option

	adapter *Adapter
	client  *client

	capabilities *hashset.Set
	target       string

	entry *entryRequest
	// pauseAsEntry attach时用pause请求在入口暂停
	pauseAsEntry bool

	// breakpoints 每个文件中已经启用的断点，按行排序发送
	breakpoints map[string][]*lineBreakpoint
	// steps 每个线程上已启用的单步请求
	steps map[int]*stepRequest

	// synthetic 由后端生成、还未返回的事件
	synthetic []debugger.Event
	// lastThread 最近一次stopped事件的线程
	lastThread int

	// variables 当前暂停点的变量，Resume后失效
	variables map[string]dap.Variable

	disposed bool
}

func NewDAPDebugger(option *Option) *DAPDebugger {
	if option.RequestTimeout <= 0 {
		option.RequestTimeout = 10 * time.Second
	}
	if option.DialTimeout <= 0 {
		option.DialTimeout = 10 * time.Second
	}
	if option.MaxDepth <= 0 {
		option.MaxDepth = 3
	}
	if option.Stdout == nil {
		option.Stdout = os.Stdout
	}
	if option.Stderr == nil {
		option.Stderr = os.Stderr
	}
	return &DAPDebugger{
		option:       option,
		capabilities: hashset.New(),
		breakpoints:  map[string][]*lineBreakpoint{},
		steps:        map[int]*stepRequest{},
		variables:    map[string]dap.Variable{},
	}
}

// newDAPDebuggerWithTransport 使用已经建立的连接，不启动适配器
func newDAPDebuggerWithTransport(option *Option, transport Transport) *DAPDebugger {
	d := NewDAPDebugger(option)
	d.client = newClient(transport, option.RequestTimeout, option.Stdout, option.Stderr)
	return d
}

func (d *DAPDebugger) LaunchOrAttach(ctx context.Context, target string, suspendOnStart bool) (debugger.Handle, error) {
	logrus.Infof("[DAPDebugger] LaunchOrAttach %s", target)
	if d.client == nil {
		adapter, err := LaunchAdapter(ctx, d.option)
		if err != nil {
			return debugger.Handle{}, err
		}
		d.adapter = adapter
		d.client = newClient(adapter.Transport, d.option.RequestTimeout, adapter.EventStdout, adapter.EventStderr)
	}
	d.target = target

	if err := d.initialize(ctx); err != nil {
		return debugger.Handle{}, err
	}

	useEntryTrap := suspendOnStart && d.option.AttachPid == 0 && d.option.Entry != "" &&
		d.capabilities.Contains(capabilityFunctionBreakpoints)
	if d.option.AttachPid > 0 {
		attach := &dap.AttachRequest{Request: newRequest("attach"), Arguments: protocol.NewAttachArguments(d.option.AttachPid)}
		if _, err := call[*dap.AttachResponse](ctx, d.client, attach); err != nil {
			return debugger.Handle{}, err
		}
	} else {
		stopOnEntry := suspendOnStart && !useEntryTrap
		launch := &dap.LaunchRequest{Request: newRequest("launch"), Arguments: protocol.NewLaunchArguments(d.option.Mode, target, stopOnEntry)}
		if _, err := call[*dap.LaunchResponse](ctx, d.client, launch); err != nil {
			return debugger.Handle{}, err
		}
	}
	if err := d.client.WaitInitialized(ctx); err != nil {
		return debugger.Handle{}, err
	}

	if useEntryTrap {
		if err := d.setEntryTrap(ctx, d.option.Entry); err != nil {
			return debugger.Handle{}, err
		}
	}
	if d.capabilities.Contains(capabilityConfigurationDone) {
		done := &dap.ConfigurationDoneRequest{Request: newRequest("configurationDone")}
		if _, err := call[*dap.ConfigurationDoneResponse](ctx, d.client, done); err != nil {
			return debugger.Handle{}, err
		}
	}
	if suspendOnStart && d.option.AttachPid > 0 {
		if err := d.pause(ctx); err != nil {
			return debugger.Handle{}, err
		}
	}
	d.synthetic = append(d.synthetic, debugger.StartEvent{})

	pid := d.option.AttachPid
	if pid == 0 {
		pid = d.client.Pid()
	}
	return debugger.Handle{Target: target, Pid: pid}, nil
}

func (d *DAPDebugger) initialize(ctx context.Context) error {
	req := &dap.InitializeRequest{
		Request: newRequest("initialize"),
		Arguments: dap.InitializeRequestArguments{
			ClientID:             "cli-debugger",
			ClientName:           "cli-debugger",
			AdapterID:            "go",
			Locale:               "en-US",
			LinesStartAt1:        true,
			ColumnsStartAt1:      true,
			PathFormat:           "path",
			SupportsVariableType: true,
		},
	}
	resp, err := call[*dap.InitializeResponse](ctx, d.client, req)
	if err != nil {
		return err
	}
	if resp.Body.SupportsConfigurationDoneRequest {
		d.capabilities.Add(capabilityConfigurationDone)
	}
	if resp.Body.SupportsFunctionBreakpoints {
		d.capabilities.Add(capabilityFunctionBreakpoints)
	}
	if resp.Body.SupportsLoadedSourcesRequest {
		d.capabilities.Add(capabilityLoadedSources)
	}
	return nil
}

func (d *DAPDebugger) setEntryTrap(ctx context.Context, function string) error {
	req := &dap.SetFunctionBreakpointsRequest{
		Request: newRequest("setFunctionBreakpoints"),
		Arguments: dap.SetFunctionBreakpointsArguments{
			Breakpoints: []dap.FunctionBreakpoint{{Name: function}},
		},
	}
	resp, err := call[*dap.SetFunctionBreakpointsResponse](ctx, d.client, req)
	if err != nil {
		return err
	}
	if len(resp.Body.Breakpoints) == 0 || !resp.Body.Breakpoints[0].Verified {
		return fmt.Errorf("entry %s: %w", function, e.ErrNoLocation)
	}
	d.entry = &entryRequest{function: function, id: resp.Body.Breakpoints[0].Id}
	return nil
}

func (d *DAPDebugger) clearEntryTrap(ctx context.Context) error {
	if d.entry == nil {
		return nil
	}
	d.entry = nil
	req := &dap.SetFunctionBreakpointsRequest{
		Request:   newRequest("setFunctionBreakpoints"),
		Arguments: dap.SetFunctionBreakpointsArguments{Breakpoints: []dap.FunctionBreakpoint{}},
	}
	_, err := call[*dap.SetFunctionBreakpointsResponse](ctx, d.client, req)
	return err
}

func (d *DAPDebugger) pause(ctx context.Context) error {
	threads, err := d.AllThreads(ctx)
	if err != nil {
		return err
	}
	threadID := 1
	if len(threads) > 0 {
		threadID = threads[0].ID
	}
	d.pauseAsEntry = true
	req := &dap.PauseRequest{Request: newRequest("pause"), Arguments: dap.PauseArguments{ThreadId: threadID}}
	_, err = call[*dap.PauseResponse](ctx, d.client, req)
	return err
}

func (d *DAPDebugger) AllThreads(ctx context.Context) ([]debugger.ThreadRef, error) {
	logrus.Infof("[DAPDebugger] AllThreads")
	resp, err := call[*dap.ThreadsResponse](ctx, d.client, &dap.ThreadsRequest{Request: newRequest("threads")})
	if err != nil {
		return nil, err
	}
	answer := make([]debugger.ThreadRef, 0, len(resp.Body.Threads))
	for _, t := range resp.Body.Threads {
		answer = append(answer, debugger.ThreadRef{ID: t.Id, Name: t.Name})
	}
	return answer, nil
}

// AllClasses 可以设置断点的源文件
// 适配器支持loadedSources时只保留目标目录下的文件
func (d *DAPDebugger) AllClasses(ctx context.Context) ([]string, error) {
	logrus.Infof("[DAPDebugger] AllClasses")
	dir := d.targetDir()
	if d.capabilities.Contains(capabilityLoadedSources) {
		resp, err := call[*dap.LoadedSourcesResponse](ctx, d.client, &dap.LoadedSourcesRequest{Request: newRequest("loadedSources")})
		if err != nil {
			return nil, err
		}
		var answer []string
		for _, source := range resp.Body.Sources {
			if source.Path != "" && strings.HasPrefix(source.Path, dir) {
				answer = append(answer, source.Path)
			}
		}
		if len(answer) > 0 {
			sort.Strings(answer)
			return answer, nil
		}
	}
	if strings.HasSuffix(d.target, ".go") {
		abs, err := filepath.Abs(d.target)
		if err != nil {
			return nil, err
		}
		return []string{abs}, nil
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.go"))
	if err != nil {
		return nil, err
	}
	answer := make([]string, 0, len(files))
	for _, f := range files {
		if !strings.HasSuffix(f, "_test.go") {
			answer = append(answer, f)
		}
	}
	sort.Strings(answer)
	return answer, nil
}

func (d *DAPDebugger) targetDir() string {
	dir := d.target
	if strings.HasSuffix(dir, ".go") {
		dir = filepath.Dir(dir)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return dir
	}
	return abs
}

func (d *DAPDebugger) ResolveLines(ctx context.Context, className string) ([]debugger.SourceLocation, error) {
	logrus.Infof("[DAPDebugger] ResolveLines %s", className)
	return ResolveLines(ctx, className)
}

func (d *DAPDebugger) SetBreakpoint(ctx context.Context, location debugger.SourceLocation) (debugger.Request, error) {
	logrus.Infof("[DAPDebugger] SetBreakpoint %s", location)
	return &lineBreakpoint{location: location}, nil
}

func (d *DAPDebugger) Enable(ctx context.Context, request debugger.Request) error {
	logrus.Infof("[DAPDebugger] Enable %s", request)
	switch r := request.(type) {
	case *lineBreakpoint:
		if r.enabled {
			return nil
		}
		r.enabled = true
		file := r.location.File
		d.breakpoints[file] = append(d.breakpoints[file], r)
		if err := d.syncBreakpoints(ctx, file); err != nil {
			d.removeBreakpoint(r)
			_ = d.syncBreakpoints(ctx, file)
			return err
		}
		if r.id < 0 {
			d.removeBreakpoint(r)
			_ = d.syncBreakpoints(ctx, file)
			return fmt.Errorf("%s: %w", r.location, e.ErrNoLocation)
		}
		return nil
	case *stepRequest:
		d.steps[r.thread.ID] = r
		return nil
	case *entryRequest:
		return nil
	}
	return fmt.Errorf("request %T: %w", request, e.ErrProtocolViolation)
}

func (d *DAPDebugger) Disable(ctx context.Context, request debugger.Request) error {
	logrus.Infof("[DAPDebugger] Disable %s", request)
	switch r := request.(type) {
	case *lineBreakpoint:
		if !r.enabled {
			return nil
		}
		if err := d.sendBreakpoints(ctx, r.location.File, d.without(r)); err != nil {
			return err
		}
		d.removeBreakpoint(r)
		return nil
	case *stepRequest:
		if d.steps[r.thread.ID] == r {
			delete(d.steps, r.thread.ID)
		}
		return nil
	case *entryRequest:
		if d.entry == r {
			return d.clearEntryTrap(ctx)
		}
		return nil
	}
	return fmt.Errorf("request %T: %w", request, e.ErrProtocolViolation)
}

func (d *DAPDebugger) DeleteRequest(ctx context.Context, request debugger.Request) error {
	logrus.Infof("[DAPDebugger] DeleteRequest %s", request)
	return d.Disable(ctx, request)
}

func (d *DAPDebugger) removeBreakpoint(bp *lineBreakpoint) {
	bp.enabled = false
	d.breakpoints[bp.location.File] = d.without(bp)
	if len(d.breakpoints[bp.location.File]) == 0 {
		delete(d.breakpoints, bp.location.File)
	}
}

func (d *DAPDebugger) without(bp *lineBreakpoint) []*lineBreakpoint {
	list := d.breakpoints[bp.location.File]
	answer := make([]*lineBreakpoint, 0, len(list))
	for _, b := range list {
		if b != bp {
			answer = append(answer, b)
		}
	}
	return answer
}

// syncBreakpoints 把文件中已启用的断点全部发送给适配器，并记录返回的id
// 没有通过校验的断点id为-1
func (d *DAPDebugger) syncBreakpoints(ctx context.Context, file string) error {
	return d.sendBreakpoints(ctx, file, d.breakpoints[file])
}

func (d *DAPDebugger) sendBreakpoints(ctx context.Context, file string, list []*lineBreakpoint) error {
	sort.Slice(list, func(i, j int) bool {
		return list[i].location.Line < list[j].location.Line
	})
	sourceBreakpoints := make([]dap.SourceBreakpoint, len(list))
	for i, bp := range list {
		sourceBreakpoints[i] = dap.SourceBreakpoint{Line: bp.location.Line}
	}
	req := &dap.SetBreakpointsRequest{
		Request: newRequest("setBreakpoints"),
		Arguments: dap.SetBreakpointsArguments{
			Source:      dap.Source{Path: file},
			Breakpoints: sourceBreakpoints,
		},
	}
	resp, err := call[*dap.SetBreakpointsResponse](ctx, d.client, req)
	if err != nil {
		return err
	}
	for i, bp := range list {
		bp.id = -1
		if i < len(resp.Body.Breakpoints) && resp.Body.Breakpoints[i].Verified {
			bp.id = resp.Body.Breakpoints[i].Id
		}
	}
	return nil
}

func (d *DAPDebugger) findBreakpoint(ids []int) *lineBreakpoint {
	for _, list := range d.breakpoints {
		for _, bp := range list {
			for _, id := range ids {
				if bp.id == id {
					return bp
				}
			}
		}
	}
	return nil
}

func (d *DAPDebugger) CreateStepRequest(ctx context.Context, thread debugger.ThreadRef, unit constants.StepUnit,
	mode constants.StepMode, count int) (debugger.Request, error) {
	logrus.Infof("[DAPDebugger] CreateStepRequest %s %s thread %d", unit, mode, thread.ID)
	if unit != constants.StepLine || count != 1 {
		return nil, fmt.Errorf("%s x%d: %w", unit, count, e.ErrUnsupportedStep)
	}
	switch mode {
	case constants.StepOver, constants.StepIn, constants.StepOut:
	default:
		return nil, fmt.Errorf("%s: %w", mode, e.ErrUnsupportedStep)
	}
	return &stepRequest{thread: thread, mode: mode}, nil
}

// Resume 有已启用的单步请求时发送单步，否则continue
func (d *DAPDebugger) Resume(ctx context.Context) error {
	logrus.Infof("[DAPDebugger] Resume")
	d.variables = map[string]dap.Variable{}
	if step := d.pendingStep(); step != nil {
		return d.step(ctx, step)
	}
	threadID := d.lastThread
	if threadID == 0 {
		threadID = 1
	}
	req := &dap.ContinueRequest{Request: newRequest("continue"), Arguments: dap.ContinueArguments{ThreadId: threadID}}
	_, err := call[*dap.ContinueResponse](ctx, d.client, req)
	return err
}

// pendingStep 优先返回最近暂停的线程上的单步请求
func (d *DAPDebugger) pendingStep() *stepRequest {
	if step, ok := d.steps[d.lastThread]; ok {
		return step
	}
	ids := make([]int, 0, len(d.steps))
	for id := range d.steps {
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil
	}
	sort.Ints(ids)
	return d.steps[ids[0]]
}

func (d *DAPDebugger) step(ctx context.Context, step *stepRequest) error {
	var err error
	threadID := step.thread.ID
	switch step.mode {
	case constants.StepOver:
		req := &dap.NextRequest{Request: newRequest("next"), Arguments: dap.NextArguments{ThreadId: threadID}}
		_, err = call[*dap.NextResponse](ctx, d.client, req)
	case constants.StepIn:
		req := &dap.StepInRequest{Request: newRequest("stepIn"), Arguments: dap.StepInArguments{ThreadId: threadID}}
		_, err = call[*dap.StepInResponse](ctx, d.client, req)
	case constants.StepOut:
		req := &dap.StepOutRequest{Request: newRequest("stepOut"), Arguments: dap.StepOutArguments{ThreadId: threadID}}
		_, err = call[*dap.StepOutResponse](ctx, d.client, req)
	}
	return err
}

// NextEventBatch 等待事件，返回已经到达的全部事件
func (d *DAPDebugger) NextEventBatch(ctx context.Context, timeout time.Duration) ([]debugger.Event, error) {
	if d.disposed {
		return nil, fmt.Errorf("%w: %w", e.ErrDebuggerIsClosed, e.ErrBackendUnavailable)
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		batch, err := d.drain(ctx)
		if err != nil || len(batch) > 0 {
			return batch, err
		}
		if d.client.Closed() {
			return nil, e.ErrBackendUnavailable
		}
		select {
		case <-d.client.signal:
		case <-d.client.Done():
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (d *DAPDebugger) drain(ctx context.Context) ([]debugger.Event, error) {
	batch := d.synthetic
	d.synthetic = nil
	for _, msg := range d.client.Drain() {
		event, err := d.convertEvent(ctx, msg)
		if err != nil {
			return batch, err
		}
		if event != nil {
			batch = append(batch, event)
		}
	}
	return batch, nil
}

// convertEvent DAP事件转换为会话事件，不关心的事件返回nil
func (d *DAPDebugger) convertEvent(ctx context.Context, msg dap.EventMessage) (debugger.Event, error) {
	switch m := msg.(type) {
	case *dap.StoppedEvent:
		return d.convertStopped(ctx, m.Body)
	case *dap.ExitedEvent:
		return debugger.TargetDiedEvent{ExitCode: m.Body.ExitCode}, nil
	case *dap.TerminatedEvent:
		return debugger.DisconnectEvent{}, nil
	}
	logrus.Debugf("[DAPDebugger] skip event %s", msg.GetEvent().Event)
	return nil, nil
}

func (d *DAPDebugger) convertStopped(ctx context.Context, body dap.StoppedEventBody) (debugger.Event, error) {
	d.lastThread = body.ThreadId
	d.variables = map[string]dap.Variable{}
	thread := d.threadRef(ctx, body.ThreadId)
	switch body.Reason {
	case reasonEntry:
		return debugger.EntryEvent{Thread: thread}, nil
	case reasonPause:
		if d.pauseAsEntry {
			d.pauseAsEntry = false
			return debugger.EntryEvent{Thread: thread}, nil
		}
	case reasonFunctionBreakpoint:
		if d.entry != nil {
			return debugger.EntryEvent{Thread: thread, Request: d.entry}, nil
		}
	case reasonStep:
		event := debugger.StepCompleteEvent{Thread: thread}
		if step, ok := d.steps[thread.ID]; ok {
			event.Request = step
		}
		return event, nil
	}
	// breakpoint、exception、goto、data breakpoint、hardcoded breakpoint等都按断点处理
	if d.entry != nil && containsID(body.HitBreakpointIds, d.entry.id) {
		return debugger.EntryEvent{Thread: thread, Request: d.entry}, nil
	}
	event := debugger.BreakpointHitEvent{Thread: thread}
	if bp := d.findBreakpoint(body.HitBreakpointIds); bp != nil {
		event.Request = bp
	}
	return event, nil
}

func containsID(ids []int, id int) bool {
	for _, i := range ids {
		if i == id {
			return true
		}
	}
	return false
}

func (d *DAPDebugger) threadRef(ctx context.Context, id int) debugger.ThreadRef {
	threads, err := d.AllThreads(ctx)
	if err != nil {
		logrus.Warnf("[DAPDebugger] get threads fail, err = %v", err)
	}
	for _, t := range threads {
		if t.ID == id {
			return t
		}
	}
	return debugger.ThreadRef{ID: id, Name: fmt.Sprintf("thread %d", id)}
}

func (d *DAPDebugger) Frames(ctx context.Context, thread debugger.ThreadRef) ([]debugger.Frame, error) {
	logrus.Infof("[DAPDebugger] Frames %d", thread.ID)
	req := &dap.StackTraceRequest{Request: newRequest("stackTrace"), Arguments: dap.StackTraceArguments{ThreadId: thread.ID}}
	resp, err := call[*dap.StackTraceResponse](ctx, d.client, req)
	if err != nil {
		return nil, err
	}
	answer := make([]debugger.Frame, 0, len(resp.Body.StackFrames))
	for i, sf := range resp.Body.StackFrames {
		frame := debugger.Frame{
			ID:       sf.Id,
			Index:    i,
			Thread:   thread,
			Function: sf.Name,
			Location: debugger.SourceLocation{Line: sf.Line},
		}
		if sf.Source != nil {
			frame.Location.File = sf.Source.Path
		}
		answer = append(answer, frame)
	}
	return answer, nil
}

func (d *DAPDebugger) Dispose(ctx context.Context) error {
	logrus.Infof("[DAPDebugger] Dispose")
	if d.client == nil || d.disposed {
		return nil
	}
	d.disposed = true
	if !d.client.Closed() {
		req := &dap.DisconnectRequest{
			Request:   newRequest("disconnect"),
			Arguments: &dap.DisconnectArguments{TerminateDebuggee: d.option.AttachPid == 0},
		}
		if _, err := call[*dap.DisconnectResponse](ctx, d.client, req); err != nil {
			logrus.Warnf("[DAPDebugger] disconnect fail, err = %v", err)
		}
	}
	_ = d.client.Close()
	if d.adapter != nil {
		return d.adapter.Stop()
	}
	return nil
}
