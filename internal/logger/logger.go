package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tunnel-keeper/internal/config"
	"tunnel-keeper/internal/env"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	defaultLogger *zerolog.Logger
	logRotate     *lumberjack.Logger
)

// GetLogLevelFromString 将字符串转换为日志级别
func GetLogLevelFromString(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.WarnLevel
	}
}

func consoleWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    true,
		TimeFormat: time.RFC3339,
		FormatLevel: func(i interface{}) string {
			return "[" + strings.ToUpper(fmt.Sprint(i)) + "]"
		},
	}
}

/**
 * Initialize the logging system
 * @param {*config.LogConfig} cfg - Log level, file path and rotation limits
 * @param {bool} isServerMode - Server mode also mirrors records to stdout
 * @description
 * - File output goes through lumberjack so long-running daemons rotate their log
 * - An empty or "console" path falls back to <data dir>/logs/tunnel-keeper.log
 */
func InitLogger(cfg *config.LogConfig, isServerMode bool) {
	logPath := cfg.Path
	if logPath == "" || logPath == "console" {
		logPath = filepath.Join(env.KeeperDir, "logs", "tunnel-keeper.log")
	}

	var writers []io.Writer
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log directory: %v\n", err)
		writers = append(writers, consoleWriter(os.Stdout))
	} else {
		logRotate = &lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   true,
		}
		writers = append(writers, consoleWriter(logRotate))
		if isServerMode {
			writers = append(writers, consoleWriter(os.Stdout))
		}
	}

	l := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(GetLogLevelFromString(cfg.Level)).
		With().Timestamp().CallerWithSkipFrameCount(3).Logger()
	defaultLogger = &l
}

// InitWithWriter routes all records to w, used by tests
func InitWithWriter(w io.Writer, level string) {
	l := zerolog.New(w).Level(GetLogLevelFromString(level)).With().Timestamp().Logger()
	defaultLogger = &l
}

// Close flushes and closes the rotating log file
func Close() {
	if logRotate != nil {
		logRotate.Close()
	}
}

// Debugf 输出格式化调试日志
func Debugf(format string, v ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Debug().Msgf(format, v...)
	}
}

// Infof 输出格式化信息日志
func Infof(format string, v ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Info().Msgf(format, v...)
	}
}

// Warnf 输出格式化警告日志
func Warnf(format string, v ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Warn().Msgf(format, v...)
	}
}

// Errorf 输出格式化错误日志
func Errorf(format string, v ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Error().Msgf(format, v...)
	}
}

// Fatal 输出致命错误日志并退出程序
func Fatal(v ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Fatal().Msg(fmt.Sprint(v...))
	} else {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", fmt.Sprint(v...))
		os.Exit(1)
	}
}

// Fatalf 输出格式化致命错误日志并退出程序
func Fatalf(format string, v ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Fatal().Msgf(format, v...)
	} else {
		fmt.Fprintf(os.Stderr, "FATAL: "+format+"\n", v...)
		os.Exit(1)
	}
}
