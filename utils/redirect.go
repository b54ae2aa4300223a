package utils

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/fansqz/cli-debugger/utils/gosync"
	"github.com/sirupsen/logrus"
)

// Redirect 循环把src的输出写到dst，src关闭后结束
// 返回的channel在协程结束时关闭
func Redirect(ctx context.Context, name string, src io.Reader, dst io.Writer) <-chan struct{} {
	done := make(chan struct{})
	gosync.Go(ctx, func(ctx context.Context) {
		defer close(done)
		b := make([]byte, 1024)
		for {
			n, err := src.Read(b)
			if n > 0 {
				if _, werr := dst.Write(b[0:n]); werr != nil {
					logrus.Warnf("[Redirect] %s write fail, err = %v", name, werr)
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
					logrus.Warnf("[Redirect] %s read fail, err = %v", name, err)
				}
				return
			}
		}
	})
	return done
}
