// Package logger wraps logrus for application-wide logging: colorized
// console output by default, rotated files via lfshook when an output
// directory is configured.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"

	"github.com/mensylisir/xmspawn/common"
)

// Log is the global logger instance.
var Log *XMLog

func init() {
	// A console logger is always available; InitGlobalLogger replaces it
	// when the CLI has parsed its flags.
	if err := InitGlobalLogger("", false, logrus.InfoLevel); err != nil {
		panic(err)
	}
}

// XMLog wraps logrus.Logger for application-specific logging.
type XMLog struct {
	*logrus.Logger
}

var defaultFieldsOrder = []string{
	common.LogFieldApp, common.LogFieldJob, common.LogFieldRunID,
	common.LogFieldFile, common.LogFieldStream,
}

// InitGlobalLogger initializes the global Log variable. With a non-empty
// outputPath, entries go to a daily-rotated file under that directory;
// otherwise they go to stdout.
func InitGlobalLogger(outputPath string, verbose bool, defaultLevel logrus.Level) error {
	l, err := NewXMLog(outputPath, verbose, defaultLevel)
	if err != nil {
		return err
	}
	Log = l
	return nil
}

// NewXMLog creates a logger instance with the application's formatter.
func NewXMLog(outputPath string, verbose bool, defaultLevel logrus.Level) (*XMLog, error) {
	logger := logrus.New()

	level := defaultLevel
	if verbose {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)
	logger.SetReportCaller(true)

	displayLevel := ShowAboveWarn
	if verbose {
		displayLevel = ShowAll
	}

	if outputPath != "" {
		if err := os.MkdirAll(outputPath, common.FileMode0755); err != nil {
			return nil, fmt.Errorf("failed to create log output directory %s: %w", outputPath, err)
		}
		logFilePath := filepath.Join(outputPath, common.AppName+".log")

		writer, err := rotatelogs.New(
			logFilePath+".%Y%m%d",
			rotatelogs.WithLinkName(logFilePath),
			rotatelogs.WithMaxAge(7*24*time.Hour),
			rotatelogs.WithRotationTime(24*time.Hour),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize rotatelogs for %s: %w", logFilePath, err)
		}

		fileFormatter := &Formatter{
			TimestampFormat:        "2006-01-02 15:04:05.000 MST",
			NoColors:               true,
			DisplayLevelName:       displayLevel,
			FieldsDisplayWithOrder: defaultFieldsOrder,
			CustomCallerFormatter: func(frame *runtime.Frame) string {
				return fmt.Sprintf(" [%s:%d %s]", filepath.Base(frame.File), frame.Line, filepath.Base(frame.Function))
			},
		}
		logger.SetFormatter(fileFormatter)

		writers := lfshook.WriterMap{}
		for _, lvl := range logrus.AllLevels {
			if logger.IsLevelEnabled(lvl) {
				writers[lvl] = writer
			}
		}
		logger.Hooks.Add(lfshook.NewHook(writers, fileFormatter))
		// The hook owns file output; discard the default stream so
		// entries are not written twice.
		logger.SetOutput(io.Discard)
	} else {
		logger.SetFormatter(&Formatter{
			TimestampFormat:        "15:04:05",
			DisplayLevelName:       displayLevel,
			DisableCaller:          true,
			FieldsDisplayWithOrder: defaultFieldsOrder,
		})
		logger.SetOutput(os.Stdout)
	}

	return &XMLog{Logger: logger}, nil
}
