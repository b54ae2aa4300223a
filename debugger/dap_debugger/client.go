package dap_debugger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emirpasic/gods/queues/linkedlistqueue"
	"github.com/fansqz/cli-debugger/constants"
	e "github.com/fansqz/cli-debugger/error"
	"github.com/fansqz/cli-debugger/utils/gosync"
	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"
)

// client DAP客户端
// readLoop把响应交给等待的请求，事件放入队列，output事件直接写到输出
type client struct {
	transport Transport
	timeout   time.Duration

	seq int64

	mutex   sync.Mutex
	pending map[int]chan dap.Message
	events  *linkedlistqueue.Queue
	pid     int

	// signal 有新事件时通知
	signal chan struct{}

	initialized chan struct{}
	initOnce    sync.Once

	done     chan struct{}
	doneOnce sync.Once

	stdout io.Writer
	stderr io.Writer
}

func newClient(transport Transport, timeout time.Duration, stdout io.Writer, stderr io.Writer) *client {
	c := &client{
		transport:   transport,
		timeout:     timeout,
		pending:     map[int]chan dap.Message{},
		events:      linkedlistqueue.New(),
		signal:      make(chan struct{}, 1),
		initialized: make(chan struct{}),
		done:        make(chan struct{}),
		stdout:      stdout,
		stderr:      stderr,
	}
	gosync.Go(context.Background(), c.readLoop)
	return c
}

func (c *client) readLoop(ctx context.Context) {
	defer c.shutdown()
	for {
		msg, err := c.transport.ReadMessage()
		if err != nil {
			// 无法解析的消息跳过，其他错误说明连接已经断开
			var fieldErr *dap.DecodeProtocolMessageFieldError
			if errors.As(err, &fieldErr) {
				logrus.Warnf("[dapClient] skip message, err = %v", err)
				continue
			}
			if !isClosedError(err) {
				logrus.Errorf("[dapClient] read message fail, err = %v", err)
			}
			return
		}
		c.dispatch(msg)
	}
}

func isClosedError(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, e.ErrBackendUnavailable)
}

func (c *client) dispatch(msg dap.Message) {
	switch m := msg.(type) {
	case dap.ResponseMessage:
		resp := m.GetResponse()
		c.mutex.Lock()
		ch, ok := c.pending[resp.RequestSeq]
		delete(c.pending, resp.RequestSeq)
		c.mutex.Unlock()
		if !ok {
			logrus.Warnf("[dapClient] no request waiting for response %d (%s)", resp.RequestSeq, resp.Command)
			return
		}
		ch <- msg
	case *dap.OutputEvent:
		c.writeOutput(m.Body)
	case *dap.InitializedEvent:
		c.initOnce.Do(func() {
			close(c.initialized)
		})
	case *dap.ProcessEvent:
		c.mutex.Lock()
		c.pid = m.Body.SystemProcessId
		c.mutex.Unlock()
	case dap.EventMessage:
		c.mutex.Lock()
		c.events.Enqueue(m)
		c.mutex.Unlock()
		c.notify()
	default:
		logrus.Warnf("[dapClient] unexpected message %T", msg)
	}
}

func (c *client) writeOutput(body dap.OutputEventBody) {
	var w io.Writer
	switch body.Category {
	case constants.StdoutCategory, "":
		w = c.stdout
	case "telemetry":
		return
	default:
		w = c.stderr
	}
	if w == nil {
		return
	}
	if _, err := io.WriteString(w, body.Output); err != nil {
		logrus.Warnf("[dapClient] write output fail, err = %v", err)
	}
}

func (c *client) notify() {
	select {
	case c.signal <- struct{}{}:
	default:
	}
}

func (c *client) shutdown() {
	c.doneOnce.Do(func() {
		close(c.done)
		c.notify()
	})
}

// Done 连接断开后关闭
func (c *client) Done() <-chan struct{} {
	return c.done
}

func (c *client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *client) Pid() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.pid
}

// Drain 取出队列中的全部事件
func (c *client) Drain() []dap.EventMessage {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	answer := make([]dap.EventMessage, 0, c.events.Size())
	for {
		v, ok := c.events.Dequeue()
		if !ok {
			return answer
		}
		answer = append(answer, v.(dap.EventMessage))
	}
}

// WaitInitialized 等待适配器的initialized事件
func (c *client) WaitInitialized(ctx context.Context) error {
	select {
	case <-c.initialized:
		return nil
	case <-c.done:
		return fmt.Errorf("wait initialized: %w", e.ErrBackendUnavailable)
	case <-time.After(c.timeout):
		return fmt.Errorf("wait initialized: %w", e.ErrRequestTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// send 发送请求并等待响应，响应失败时返回错误
func (c *client) send(ctx context.Context, req dap.RequestMessage) (dap.Message, error) {
	request := req.GetRequest()
	request.Seq = int(atomic.AddInt64(&c.seq, 1))
	request.Type = "request"

	ch := make(chan dap.Message, 1)
	c.mutex.Lock()
	c.pending[request.Seq] = ch
	c.mutex.Unlock()

	if c.Closed() {
		c.forget(request.Seq)
		return nil, fmt.Errorf("%s: %w", request.Command, e.ErrBackendUnavailable)
	}
	if err := c.transport.WriteMessage(req); err != nil {
		c.forget(request.Seq)
		return nil, fmt.Errorf("%s: %w: %w", request.Command, e.ErrBackendUnavailable, err)
	}

	select {
	case msg := <-ch:
		resp := msg.(dap.ResponseMessage).GetResponse()
		if !resp.Success {
			return nil, responseError(msg)
		}
		return msg, nil
	case <-c.done:
		c.forget(request.Seq)
		return nil, fmt.Errorf("%s: %w", request.Command, e.ErrBackendUnavailable)
	case <-time.After(c.timeout):
		c.forget(request.Seq)
		return nil, fmt.Errorf("%s: %w", request.Command, e.ErrRequestTimeout)
	case <-ctx.Done():
		c.forget(request.Seq)
		return nil, ctx.Err()
	}
}

func (c *client) forget(seq int) {
	c.mutex.Lock()
	delete(c.pending, seq)
	c.mutex.Unlock()
}

func responseError(msg dap.Message) error {
	resp := msg.(dap.ResponseMessage).GetResponse()
	message := resp.Message
	if er, ok := msg.(*dap.ErrorResponse); ok && er.Body.Error != nil && er.Body.Error.Format != "" {
		message = er.Body.Error.Format
	}
	return fmt.Errorf("%s fail: %s", resp.Command, message)
}

func (c *client) Close() error {
	err := c.transport.Close()
	c.shutdown()
	return err
}

// call 发送请求并把响应转换为T
func call[T dap.ResponseMessage](ctx context.Context, c *client, req dap.RequestMessage) (T, error) {
	var zero T
	msg, err := c.send(ctx, req)
	if err != nil {
		return zero, err
	}
	resp, ok := msg.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected response %T: %w", msg, e.ErrProtocolViolation)
	}
	return resp, nil
}

func newRequest(command string) dap.Request {
	return dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Type: "request"},
		Command:         command,
	}
}
