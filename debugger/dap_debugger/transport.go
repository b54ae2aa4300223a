package dap_debugger

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	e "github.com/fansqz/cli-debugger/error"
	"github.com/google/go-dap"
)

// Transport DAP消息的读写
type Transport interface {
	ReadMessage() (dap.Message, error)
	WriteMessage(msg dap.Message) error
	Close() error
}

// streamTransport 基于字节流的Transport，tcp连接和stdio管道共用
type streamTransport struct {
	reader  *bufio.Reader
	writer  *bufio.Writer
	closers []io.Closer

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

func NewStreamTransport(r io.Reader, w io.Writer, closers ...io.Closer) Transport {
	return &streamTransport{
		reader:  bufio.NewReader(r),
		writer:  bufio.NewWriter(w),
		closers: closers,
	}
}

func NewConnTransport(conn net.Conn) Transport {
	return NewStreamTransport(conn, conn, conn)
}

func (t *streamTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *streamTransport) ReadMessage() (dap.Message, error) {
	if t.isClosed() {
		return nil, e.ErrBackendUnavailable
	}
	return dap.ReadProtocolMessage(t.reader)
}

func (t *streamTransport) WriteMessage(msg dap.Message) error {
	if t.isClosed() {
		return e.ErrBackendUnavailable
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := dap.WriteProtocolMessage(t.writer, msg); err != nil {
		return fmt.Errorf("write DAP message: %w", err)
	}
	if err := t.writer.Flush(); err != nil {
		return fmt.Errorf("flush DAP message: %w", err)
	}
	return nil
}

func (t *streamTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	var errs []error
	for _, c := range t.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
