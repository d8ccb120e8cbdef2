package migration

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	repositoryLogFileSuffixConstant               = ".log"
	repositoryLogFilePermissionsConstant          = 0o644
	repositoryLogOpenFailureTemplateConstant      = "unable to open repository log %s: %w"
	repositoryLogDirectoryFailureTemplateConstant = "unable to create log directory %s: %w"
)

// NewRepositoryLogger returns a logger that mirrors every event of the parent
// logger into <logsDirectory>/<slug>.log as JSON, plus a close function that
// flushes and releases the file.
func NewRepositoryLogger(parentLogger *zap.Logger, logsDirectory string, slug string) (*zap.Logger, func(), error) {
	if directoryError := os.MkdirAll(logsDirectory, 0o755); directoryError != nil {
		return nil, nil, fmt.Errorf(repositoryLogDirectoryFailureTemplateConstant, logsDirectory, directoryError)
	}

	logFilePath := filepath.Join(logsDirectory, slug+repositoryLogFileSuffixConstant)
	logFile, openError := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, repositoryLogFilePermissionsConstant)
	if openError != nil {
		return nil, nil, fmt.Errorf(repositoryLogOpenFailureTemplateConstant, logFilePath, openError)
	}

	fileEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	fileCore := zapcore.NewCore(fileEncoder, zapcore.AddSync(logFile), zapcore.DebugLevel)

	repositoryLogger := parentLogger.WithOptions(zap.WrapCore(func(parentCore zapcore.Core) zapcore.Core {
		return zapcore.NewTee(parentCore, fileCore)
	}))
	closeFunction := func() {
		_ = repositoryLogger.Sync()
		_ = logFile.Close()
	}
	return repositoryLogger, closeFunction, nil
}
