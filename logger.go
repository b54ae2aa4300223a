package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

var logFile *os.File

// SetupLogger 日志写入文件，避免和菜单输出混在一起
func SetupLogger(logPath string) error {
	if err := os.MkdirAll(filepath.Dir(logPath), os.ModePerm); err != nil {
		return fmt.Errorf("create log dir fail: %w", err)
	}
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file fail: %w", err)
	}
	logFile = file
	logrus.SetOutput(logFile)
	logrus.SetFormatter(&logrus.TextFormatter{
		DisableColors: true,
		FullTimestamp: true,
	})
	logrus.SetLevel(logrus.InfoLevel)
	return nil
}

func CloseLogger() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}
