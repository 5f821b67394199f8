package logger

import (
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-hclog"
)

type ILoggerContainer interface {
	GetLogger(name string) (hclog.Logger, error)
}

// LoggerContainerImpl creates one logger per component. When a log directory is configured
// every component writes into its own file inside it.
type LoggerContainerImpl struct {
	lock sync.Mutex

	loggers map[string]hclog.Logger
	config  LoggerConfig
}

var (
	_ ILoggerContainer = (*LoggerContainerImpl)(nil)
	_ ILoggerContainer = (*NullLoggerContainer)(nil)
)

func NewLoggerContainer(config LoggerConfig) *LoggerContainerImpl {
	return &LoggerContainerImpl{
		loggers: map[string]hclog.Logger{},
		config:  config,
	}
}

func (l *LoggerContainerImpl) GetLogger(name string) (hclog.Logger, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if logger, exists := l.loggers[name]; exists {
		return logger, nil
	}

	config := l.config
	config.Name = name

	if config.LogFilePath != "" {
		config.LogFilePath = filepath.Join(config.LogFilePath, name+".log")
	}

	logger, err := NewLogger(config)
	if err != nil {
		return nil, err
	}

	l.loggers[name] = logger

	return logger, nil
}

type NullLoggerContainer struct{}

func NewNullLoggerContainer() *NullLoggerContainer {
	return &NullLoggerContainer{}
}

func (l *NullLoggerContainer) GetLogger(string) (hclog.Logger, error) {
	return hclog.NewNullLogger(), nil
}
