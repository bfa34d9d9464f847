package logging

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the process logger.
type Options struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // text or json
	File       string `mapstructure:"file"`   // optional rotating log file
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

var (
	mu     sync.RWMutex
	logger = newDefault()
)

func newDefault() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// Logger returns the SDK logger. Before Setup is called it logs text to stderr at info level.
func Logger() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Setup replaces the SDK logger according to opts and returns it.
// An unknown level falls back to info.
func Setup(opts Options) *logrus.Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	switch opts.Format {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	var out io.Writer = os.Stderr
	if opts.File != "" {
		rolling := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     30, //days
			Compress:   true,
		}
		out = io.MultiWriter(os.Stderr, rolling)
	}
	l.SetOutput(out)

	if err != nil && opts.Level != "" {
		l.Warnf("Unknown log level %q, using info", opts.Level)
	}

	mu.Lock()
	logger = l
	mu.Unlock()
	return l
}

// SetOutput redirects the current logger, mostly useful in tests.
func SetOutput(w io.Writer) {
	Logger().SetOutput(w)
}
