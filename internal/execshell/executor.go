package execshell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	gitCommandNameConstant                    = "git"
	gitLFSCommandNameConstant                 = "git-lfs"
	loggerNotConfiguredMessageConstant        = "logger not configured"
	commandRunnerNotConfiguredMessageConstant = "command runner not configured"
	commandFailedErrorTemplateConstant        = "%s exited with code %d%s"
	commandExecutionErrorTemplateConstant     = "%s could not be executed: %s"
	standardErrorDetailTemplateConstant       = ": %s"
	commandStartedLogMessageConstant          = "external command started"
	commandCompletedLogMessageConstant        = "external command completed"
	commandFailedLogMessageConstant           = "external command failed"
	commandExecutionFailedLogMessageConstant  = "external command execution failed"
	logFieldCommandConstant                   = "command"
	logFieldArgumentsConstant                 = "arguments"
	logFieldWorkingDirectoryConstant          = "working_directory"
	logFieldExitCodeConstant                  = "exit_code"
	logFieldStandardErrorConstant             = "standard_error"
)

// CommandName identifies an external executable supported by the executor.
type CommandName string

// Supported executables.
const (
	CommandGit    CommandName = CommandName(gitCommandNameConstant)
	CommandGitLFS CommandName = CommandName(gitLFSCommandNameConstant)
)

// CommandDetails describes a single invocation of an external executable.
type CommandDetails struct {
	Arguments            []string
	WorkingDirectory     string
	EnvironmentVariables map[string]string
	StandardInput        []byte
}

// ShellCommand combines a CommandName with its invocation details.
type ShellCommand struct {
	Name    CommandName
	Details CommandDetails
}

// ExecutionResult captures the observable outputs of an executed command.
type ExecutionResult struct {
	StandardOutput string
	StandardError  string
	ExitCode       int
}

// CommandRunner abstracts process execution for testability.
type CommandRunner interface {
	Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error)
}

// StreamingCommandRunner is implemented by runners that can deliver stdout
// lines incrementally instead of buffering the whole output. handleLine
// returning false terminates the subprocess early.
type StreamingCommandRunner interface {
	RunStreaming(executionContext context.Context, command ShellCommand, handleLine func(outputLine string) bool) (ExecutionResult, error)
}

// Construction sentinel errors.
var (
	ErrLoggerNotConfigured        = errors.New(loggerNotConfiguredMessageConstant)
	ErrCommandRunnerNotConfigured = errors.New(commandRunnerNotConfiguredMessageConstant)
)

// CommandFailedError reports a command that ran to completion with a non-zero exit code.
type CommandFailedError struct {
	Command ShellCommand
	Result  ExecutionResult
}

// Error describes the command failure including trailing standard error output.
func (failure CommandFailedError) Error() string {
	standardErrorDetail := ""
	if len(failure.Result.StandardError) > 0 {
		standardErrorDetail = fmt.Sprintf(standardErrorDetailTemplateConstant, failure.Result.StandardError)
	}
	return fmt.Sprintf(commandFailedErrorTemplateConstant, failure.Command.Name, failure.Result.ExitCode, standardErrorDetail)
}

// CommandExecutionError reports a command that could not be executed at all.
type CommandExecutionError struct {
	Command ShellCommand
	Cause   error
}

// Error describes the execution failure.
func (failure CommandExecutionError) Error() string {
	return fmt.Sprintf(commandExecutionErrorTemplateConstant, failure.Command.Name, failure.Cause)
}

// Unwrap exposes the underlying cause.
func (failure CommandExecutionError) Unwrap() error {
	return failure.Cause
}

// ShellExecutor runs external commands with structured lifecycle logging.
type ShellExecutor struct {
	logger               *zap.Logger
	commandRunner        CommandRunner
	messageFormatter     CommandMessageFormatter
	eventObserver        CommandEventObserver
	humanReadableLogging bool
}

// NewShellExecutor constructs a ShellExecutor with the provided logger and runner.
func NewShellExecutor(logger *zap.Logger, commandRunner CommandRunner, humanReadableLogging bool) (*ShellExecutor, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if commandRunner == nil {
		return nil, ErrCommandRunnerNotConfigured
	}

	return &ShellExecutor{
		logger:               logger,
		commandRunner:        commandRunner,
		messageFormatter:     CommandMessageFormatter{},
		eventObserver:        discardingCommandEventObserver{},
		humanReadableLogging: humanReadableLogging,
	}, nil
}

// SetCommandEventObserver registers an observer notified about command lifecycle events.
func (executor *ShellExecutor) SetCommandEventObserver(observer CommandEventObserver) {
	if observer == nil {
		executor.eventObserver = discardingCommandEventObserver{}
		return
	}
	executor.eventObserver = observer
}

// ExecuteGit runs git with the supplied details.
func (executor *ShellExecutor) ExecuteGit(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.Execute(executionContext, ShellCommand{Name: CommandGit, Details: details})
}

// ExecuteGitLFS runs git-lfs with the supplied details.
func (executor *ShellExecutor) ExecuteGitLFS(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.Execute(executionContext, ShellCommand{Name: CommandGitLFS, Details: details})
}

// ExecuteGitStreaming runs git with the supplied details, handing each stdout
// line to handleLine as the subprocess produces it. Returning false from
// handleLine stops the command without error. Runners without streaming
// support fall back to a buffered run scanned line by line.
func (executor *ShellExecutor) ExecuteGitStreaming(executionContext context.Context, details CommandDetails, handleLine func(outputLine string) bool) error {
	command := ShellCommand{Name: CommandGit, Details: details}
	executor.logCommandStarted(command)
	executor.eventObserver.CommandStarted(command)

	executionResult, runError := executor.runStreaming(executionContext, command, handleLine)
	if runError != nil {
		executor.logExecutionFailure(command, runError)
		executor.eventObserver.CommandExecutionFailed(command, runError)
		return CommandExecutionError{Command: command, Cause: runError}
	}

	executor.eventObserver.CommandCompleted(command, executionResult)

	if executionResult.ExitCode != 0 {
		executor.logCommandFailure(command, executionResult)
		return CommandFailedError{Command: command, Result: executionResult}
	}

	executor.logCommandSuccess(command)
	return nil
}

func (executor *ShellExecutor) runStreaming(executionContext context.Context, command ShellCommand, handleLine func(outputLine string) bool) (ExecutionResult, error) {
	if streamingRunner, supportsStreaming := executor.commandRunner.(StreamingCommandRunner); supportsStreaming {
		return streamingRunner.RunStreaming(executionContext, command, handleLine)
	}

	executionResult, runError := executor.commandRunner.Run(executionContext, command)
	if runError != nil {
		return ExecutionResult{}, runError
	}
	lineScanner := bufio.NewScanner(strings.NewReader(executionResult.StandardOutput))
	for lineScanner.Scan() {
		if !handleLine(lineScanner.Text()) {
			break
		}
	}
	executionResult.StandardOutput = ""
	return executionResult, lineScanner.Err()
}

// Execute runs the supplied command, logging lifecycle events and translating failures into typed errors.
func (executor *ShellExecutor) Execute(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	executor.logCommandStarted(command)
	executor.eventObserver.CommandStarted(command)

	executionResult, runError := executor.commandRunner.Run(executionContext, command)
	if runError != nil {
		executor.logExecutionFailure(command, runError)
		executor.eventObserver.CommandExecutionFailed(command, runError)
		return ExecutionResult{}, CommandExecutionError{Command: command, Cause: runError}
	}

	executor.eventObserver.CommandCompleted(command, executionResult)

	if executionResult.ExitCode != 0 {
		executor.logCommandFailure(command, executionResult)
		return ExecutionResult{}, CommandFailedError{Command: command, Result: executionResult}
	}

	executor.logCommandSuccess(command)
	return executionResult, nil
}

func (executor *ShellExecutor) logCommandStarted(command ShellCommand) {
	if executor.humanReadableLogging {
		executor.logger.Debug(executor.messageFormatter.BuildStartedMessage(command))
		return
	}
	executor.logger.Debug(
		commandStartedLogMessageConstant,
		zap.String(logFieldCommandConstant, string(command.Name)),
		zap.Strings(logFieldArgumentsConstant, command.Details.Arguments),
		zap.String(logFieldWorkingDirectoryConstant, command.Details.WorkingDirectory),
	)
}

func (executor *ShellExecutor) logCommandSuccess(command ShellCommand) {
	if executor.humanReadableLogging {
		executor.logger.Debug(executor.messageFormatter.BuildSuccessMessage(command))
		return
	}
	executor.logger.Debug(
		commandCompletedLogMessageConstant,
		zap.String(logFieldCommandConstant, string(command.Name)),
		zap.Strings(logFieldArgumentsConstant, command.Details.Arguments),
	)
}

func (executor *ShellExecutor) logCommandFailure(command ShellCommand, result ExecutionResult) {
	if executor.humanReadableLogging {
		executor.logger.Warn(executor.messageFormatter.BuildFailureMessage(command, result))
		return
	}
	executor.logger.Warn(
		commandFailedLogMessageConstant,
		zap.String(logFieldCommandConstant, string(command.Name)),
		zap.Strings(logFieldArgumentsConstant, command.Details.Arguments),
		zap.Int(logFieldExitCodeConstant, result.ExitCode),
		zap.String(logFieldStandardErrorConstant, result.StandardError),
	)
}

func (executor *ShellExecutor) logExecutionFailure(command ShellCommand, failure error) {
	if executor.humanReadableLogging {
		executor.logger.Error(executor.messageFormatter.BuildExecutionFailureMessage(command, failure))
		return
	}
	executor.logger.Error(
		commandExecutionFailedLogMessageConstant,
		zap.String(logFieldCommandConstant, string(command.Name)),
		zap.Strings(logFieldArgumentsConstant, command.Details.Arguments),
		zap.Error(failure),
	)
}
