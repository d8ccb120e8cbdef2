package execshell_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/execshell"
)

const (
	successfulExecutionTestCaseNameConstant  = "successful_execution"
	nonZeroExitCodeTestCaseNameConstant      = "non_zero_exit_code"
	runnerFailureTestCaseNameConstant        = "runner_failure"
	missingLoggerTestCaseNameConstant        = "missing_logger"
	missingCommandRunnerTestCaseNameConstant = "missing_command_runner"
	standardOutputFixtureConstant            = "refs/heads/main abc123\n"
	standardErrorFixtureConstant             = "fatal: repository not found"
	runnerFailureMessageConstant             = "executable not found"
	workingDirectoryFixtureConstant          = "/tmp/mirrors/team__service.git"
)

type recordingCommandRunner struct {
	recordedCommands []execshell.ShellCommand
	resultToReturn   execshell.ExecutionResult
	errorToReturn    error
}

func (runner *recordingCommandRunner) Run(_ context.Context, command execshell.ShellCommand) (execshell.ExecutionResult, error) {
	runner.recordedCommands = append(runner.recordedCommands, command)
	return runner.resultToReturn, runner.errorToReturn
}

type recordingEventObserver struct {
	startedCommands   []execshell.ShellCommand
	completedCommands []execshell.ShellCommand
	failedCommands    []execshell.ShellCommand
}

func (observer *recordingEventObserver) CommandStarted(command execshell.ShellCommand) {
	observer.startedCommands = append(observer.startedCommands, command)
}

func (observer *recordingEventObserver) CommandCompleted(command execshell.ShellCommand, _ execshell.ExecutionResult) {
	observer.completedCommands = append(observer.completedCommands, command)
}

func (observer *recordingEventObserver) CommandExecutionFailed(command execshell.ShellCommand, _ error) {
	observer.failedCommands = append(observer.failedCommands, command)
}

func TestNewShellExecutorValidation(testInstance *testing.T) {
	testCases := []struct {
		name          string
		logger        *zap.Logger
		commandRunner execshell.CommandRunner
		expectedError error
	}{
		{
			name:          missingLoggerTestCaseNameConstant,
			logger:        nil,
			commandRunner: &recordingCommandRunner{},
			expectedError: execshell.ErrLoggerNotConfigured,
		},
		{
			name:          missingCommandRunnerTestCaseNameConstant,
			logger:        zap.NewNop(),
			commandRunner: nil,
			expectedError: execshell.ErrCommandRunnerNotConfigured,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtest *testing.T) {
			executor, creationError := execshell.NewShellExecutor(testCase.logger, testCase.commandRunner, false)
			require.Nil(subtest, executor)
			require.ErrorIs(subtest, creationError, testCase.expectedError)
		})
	}
}

func TestShellExecutorExecute(testInstance *testing.T) {
	testCases := []struct {
		name                 string
		runnerResult         execshell.ExecutionResult
		runnerError          error
		expectFailedError    bool
		expectExecutionError bool
	}{
		{
			name:         successfulExecutionTestCaseNameConstant,
			runnerResult: execshell.ExecutionResult{StandardOutput: standardOutputFixtureConstant, ExitCode: 0},
		},
		{
			name:              nonZeroExitCodeTestCaseNameConstant,
			runnerResult:      execshell.ExecutionResult{StandardError: standardErrorFixtureConstant, ExitCode: 128},
			expectFailedError: true,
		},
		{
			name:                 runnerFailureTestCaseNameConstant,
			runnerError:          errors.New(runnerFailureMessageConstant),
			expectExecutionError: true,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtest *testing.T) {
			commandRunner := &recordingCommandRunner{resultToReturn: testCase.runnerResult, errorToReturn: testCase.runnerError}
			executor, creationError := execshell.NewShellExecutor(zap.NewNop(), commandRunner, false)
			require.NoError(subtest, creationError)

			eventObserver := &recordingEventObserver{}
			executor.SetCommandEventObserver(eventObserver)

			executionResult, executionError := executor.ExecuteGit(context.Background(), execshell.CommandDetails{
				Arguments:        []string{"for-each-ref"},
				WorkingDirectory: workingDirectoryFixtureConstant,
			})

			require.Len(subtest, commandRunner.recordedCommands, 1)
			require.Equal(subtest, execshell.CommandGit, commandRunner.recordedCommands[0].Name)
			require.Len(subtest, eventObserver.startedCommands, 1)

			switch {
			case testCase.expectExecutionError:
				executionFailure := execshell.CommandExecutionError{}
				require.ErrorAs(subtest, executionError, &executionFailure)
				require.ErrorContains(subtest, executionError, runnerFailureMessageConstant)
				require.Len(subtest, eventObserver.failedCommands, 1)
			case testCase.expectFailedError:
				commandFailure := execshell.CommandFailedError{}
				require.ErrorAs(subtest, executionError, &commandFailure)
				require.Equal(subtest, 128, commandFailure.Result.ExitCode)
				require.ErrorContains(subtest, executionError, standardErrorFixtureConstant)
				require.Len(subtest, eventObserver.completedCommands, 1)
			default:
				require.NoError(subtest, executionError)
				require.Equal(subtest, standardOutputFixtureConstant, executionResult.StandardOutput)
				require.Len(subtest, eventObserver.completedCommands, 1)
			}
		})
	}
}

type streamingCommandRunner struct {
	recordingCommandRunner
	linesToStream      []string
	deliveredLineCount int
}

func (runner *streamingCommandRunner) RunStreaming(_ context.Context, command execshell.ShellCommand, handleLine func(outputLine string) bool) (execshell.ExecutionResult, error) {
	runner.recordedCommands = append(runner.recordedCommands, command)
	if runner.errorToReturn != nil {
		return execshell.ExecutionResult{}, runner.errorToReturn
	}
	for _, streamedLine := range runner.linesToStream {
		runner.deliveredLineCount++
		if !handleLine(streamedLine) {
			break
		}
	}
	return runner.resultToReturn, nil
}

func TestShellExecutorExecuteGitStreamingDeliversLinesIncrementally(testInstance *testing.T) {
	commandRunner := &streamingCommandRunner{linesToStream: []string{"blob 12", "blob 104857600", "blob 99"}}
	executor, creationError := execshell.NewShellExecutor(zap.NewNop(), commandRunner, false)
	require.NoError(testInstance, creationError)

	collectedLines := []string{}
	executionError := executor.ExecuteGitStreaming(context.Background(), execshell.CommandDetails{
		Arguments:        []string{"cat-file", "--batch-all-objects", "--batch-check=%(objecttype) %(objectsize)"},
		WorkingDirectory: workingDirectoryFixtureConstant,
	}, func(outputLine string) bool {
		collectedLines = append(collectedLines, outputLine)
		return outputLine != "blob 104857600"
	})

	require.NoError(testInstance, executionError)
	require.Equal(testInstance, []string{"blob 12", "blob 104857600"}, collectedLines)
	require.Equal(testInstance, 2, commandRunner.deliveredLineCount)
	require.Len(testInstance, commandRunner.recordedCommands, 1)
	require.Equal(testInstance, execshell.CommandGit, commandRunner.recordedCommands[0].Name)
}

func TestShellExecutorExecuteGitStreamingFallsBackToBufferedRunner(testInstance *testing.T) {
	commandRunner := &recordingCommandRunner{resultToReturn: execshell.ExecutionResult{StandardOutput: "blob 12\nblob 104857600\nblob 99\n"}}
	executor, creationError := execshell.NewShellExecutor(zap.NewNop(), commandRunner, false)
	require.NoError(testInstance, creationError)

	collectedLines := []string{}
	executionError := executor.ExecuteGitStreaming(context.Background(), execshell.CommandDetails{
		Arguments: []string{"cat-file", "--batch-all-objects", "--batch-check=%(objecttype) %(objectsize)"},
	}, func(outputLine string) bool {
		collectedLines = append(collectedLines, outputLine)
		return outputLine != "blob 104857600"
	})

	require.NoError(testInstance, executionError)
	require.Equal(testInstance, []string{"blob 12", "blob 104857600"}, collectedLines)
}

func TestShellExecutorExecuteGitStreamingReportsCommandFailure(testInstance *testing.T) {
	commandRunner := &streamingCommandRunner{}
	commandRunner.resultToReturn = execshell.ExecutionResult{StandardError: standardErrorFixtureConstant, ExitCode: 128}
	executor, creationError := execshell.NewShellExecutor(zap.NewNop(), commandRunner, false)
	require.NoError(testInstance, creationError)

	executionError := executor.ExecuteGitStreaming(context.Background(), execshell.CommandDetails{
		Arguments: []string{"cat-file", "--batch-all-objects", "--batch-check=%(objecttype) %(objectsize)"},
	}, func(string) bool { return true })

	commandFailure := execshell.CommandFailedError{}
	require.ErrorAs(testInstance, executionError, &commandFailure)
	require.Equal(testInstance, 128, commandFailure.Result.ExitCode)
}

func TestShellExecutorExecuteGitLFSUsesLFSExecutable(testInstance *testing.T) {
	commandRunner := &recordingCommandRunner{}
	executor, creationError := execshell.NewShellExecutor(zap.NewNop(), commandRunner, false)
	require.NoError(testInstance, creationError)

	_, executionError := executor.ExecuteGitLFS(context.Background(), execshell.CommandDetails{Arguments: []string{"push", "--all", "origin"}})
	require.NoError(testInstance, executionError)
	require.Len(testInstance, commandRunner.recordedCommands, 1)
	require.Equal(testInstance, execshell.CommandGitLFS, commandRunner.recordedCommands[0].Name)
}

func TestShellExecutorHumanReadableLoggingEmitsFormattedMessages(testInstance *testing.T) {
	observedCore, observedLogs := observer.New(zap.DebugLevel)
	commandRunner := &recordingCommandRunner{resultToReturn: execshell.ExecutionResult{ExitCode: 0}}
	executor, creationError := execshell.NewShellExecutor(zap.New(observedCore), commandRunner, true)
	require.NoError(testInstance, creationError)

	_, executionError := executor.ExecuteGit(context.Background(), execshell.CommandDetails{
		Arguments:        []string{"fetch", "--all", "--tags", "--prune"},
		WorkingDirectory: workingDirectoryFixtureConstant,
	})
	require.NoError(testInstance, executionError)

	loggedEntries := observedLogs.All()
	require.Len(testInstance, loggedEntries, 2)
	require.Equal(testInstance, "Fetching all references in "+workingDirectoryFixtureConstant, loggedEntries[0].Message)
	require.Equal(testInstance, "Fetched all references in "+workingDirectoryFixtureConstant, loggedEntries[1].Message)
}
