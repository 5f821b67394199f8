package logger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultRotatingMaxSizeMB  = 100
	defaultRotatingMaxBackups = 10
	defaultRotatingMaxAgeDays = 30
)

type RotatingLoggerConfig struct {
	MaxSizeInMB  int  `json:"maxSizeInMB" yaml:"maxSizeInMB"`
	MaxBackups   int  `json:"maxBackups" yaml:"maxBackups"`
	MaxAgeInDays int  `json:"maxAgeInDays" yaml:"maxAgeInDays"`
	Compress     bool `json:"compress" yaml:"compress"`
}

type LoggerConfig struct {
	LogLevel            hclog.Level          `json:"logLevel"`
	JSONLogFormat       bool                 `json:"jsonLogFormat"`
	AppendFile          bool                 `json:"appendFile"`
	LogFilePath         string               `json:"logFilePath"`
	Name                string               `json:"name"`
	RotatingLogsEnabled bool                 `json:"rotatingLogsEnabled"`
	RotatingLogerConfig RotatingLoggerConfig `json:"rotatingLogerConfig"`
}

func NewLogger(config LoggerConfig) (hclog.Logger, error) {
	var output io.Writer

	if config.RotatingLogsEnabled {
		if strings.TrimSpace(config.LogFilePath) == "" {
			return nil, errors.New("log file path must be set when rotating logs are enabled")
		}

		output = getRotatingLogWriter(config)
	} else {
		file, err := getLogFileWriter(config)
		if err != nil {
			return nil, err
		}

		// avoid a typed nil writer, hclog falls back to stderr only for a nil interface
		if file != nil {
			output = file
		}
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       config.Name,
		Level:      config.LogLevel,
		Output:     output,
		JSONFormat: config.JSONLogFormat,
	}), nil
}

func getRotatingLogWriter(config LoggerConfig) *lumberjack.Logger {
	rotating := config.RotatingLogerConfig

	return &lumberjack.Logger{
		Filename:   config.LogFilePath,
		MaxSize:    valueOrDefault(rotating.MaxSizeInMB, defaultRotatingMaxSizeMB),
		MaxBackups: valueOrDefault(rotating.MaxBackups, defaultRotatingMaxBackups),
		MaxAge:     valueOrDefault(rotating.MaxAgeInDays, defaultRotatingMaxAgeDays),
		Compress:   rotating.Compress,
	}
}

func getLogFileWriter(config LoggerConfig) (*os.File, error) {
	logFilePath := strings.TrimSpace(config.LogFilePath)
	if logFilePath == "" {
		return nil, nil
	}

	if dir := filepath.Dir(logFilePath); dir != "/" && strings.TrimLeft(dir, ".") != "" {
		if err := os.MkdirAll(dir, 0770); err != nil {
			return nil, fmt.Errorf("could not create log directory, %w", err)
		}
	}

	if !config.AppendFile {
		ext := filepath.Ext(logFilePath)
		timestamp := strings.NewReplacer(":", "_", "-", "_").Replace(time.Now().UTC().Format(time.RFC3339))
		logFilePath = strings.TrimSuffix(logFilePath, ext) + "_" + timestamp + ext
	}

	file, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("could not create or open log file, %w", err)
	}

	return file, nil
}

func valueOrDefault(value, defaultValue int) int {
	if value <= 0 {
		return defaultValue
	}

	return value
}
