package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fansqz/cli-debugger/constants"
	"github.com/fansqz/cli-debugger/debugger"
	"github.com/sirupsen/logrus"
)

const invalidNumber = "This is not a valid number, please try again."

// Console 文本菜单，目标暂停时由EventLoop调用
// 每次读取一行输入，执行一个菜单命令，直到目标继续执行或退出
type Console struct {
	in  *bufio.Reader
	out io.Writer
	// defaultClass 设置断点时默认的源文件
	defaultClass string
	// echo 输入不是终端时把读到的内容写回输出
	echo bool
}

func NewConsole(in io.Reader, out io.Writer, defaultClass string, echo bool) *Console {
	return &Console{
		in:           bufio.NewReader(in),
		out:          out,
		defaultClass: defaultClass,
		echo:         echo,
	}
}

// Present 循环处理菜单命令，会话离开Suspended后返回
func (c *Console) Present(ctx context.Context, session *debugger.Session) error {
	options := constants.MenuOptions()
	for session.State() == constants.Suspended && !session.Exited() {
		c.printMenu()
		selection, err := c.readIntInRange(0, len(options))
		if err == nil {
			err = c.handle(ctx, session, options[selection])
		}
		if errors.Is(err, io.EOF) {
			// 输入结束按Exit处理
			logrus.Infof("[Console] input closed")
			return c.handle(ctx, session, constants.Exit)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Console) printMenu() {
	fmt.Fprint(c.out, "\n\n")
	c.println("Welcome to Debugger for Go Version %s", Version)
	c.println("Please choose one of the following commands to continue:")
	fmt.Fprintln(c.out)
	for i, option := range constants.MenuOptions() {
		fmt.Fprintf(c.out, "%d --> %s\n", i, option)
	}
	fmt.Fprint(c.out, "Your selection: ")
}

// println 输出 "== value =="
func (c *Console) println(format string, args ...interface{}) {
	fmt.Fprintf(c.out, "== %s ==\n", fmt.Sprintf(format, args...))
}

// readLine 读取一行，去掉首尾空白
func (c *Console) readLine() (string, error) {
	line, err := c.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	if c.echo {
		fmt.Fprintln(c.out, strings.TrimRight(line, "\r\n"))
	}
	return strings.TrimSpace(line), nil
}

// readIntInRange 读取[from, to)中的整数，输入不合法时重新读取
func (c *Console) readIntInRange(from, to int) (int, error) {
	for {
		line, err := c.readLine()
		if err != nil {
			return 0, err
		}
		v, err := strconv.Atoi(line)
		if err == nil && v >= from && v < to {
			return v, nil
		}
		c.println(invalidNumber)
	}
}
