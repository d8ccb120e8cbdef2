package execshell

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

const environmentAssignmentTemplateConstant = "%s=%s"

// OSCommandRunner executes git and git-lfs commands through os/exec.
type OSCommandRunner struct{}

// NewOSCommandRunner constructs a runner backed by the operating system.
func NewOSCommandRunner() *OSCommandRunner {
	return &OSCommandRunner{}
}

// Run executes the supplied command and captures its output streams. Non-zero
// exit codes are reported through the result rather than as errors so callers
// can inspect stderr before deciding how to react.
func (runner *OSCommandRunner) Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	executable := exec.CommandContext(executionContext, string(command.Name), append([]string{}, command.Details.Arguments...)...)
	executable.Dir = command.Details.WorkingDirectory
	executable.Env = mergedEnvironment(command.Details.EnvironmentVariables)

	var standardOutputBuffer bytes.Buffer
	var standardErrorBuffer bytes.Buffer
	executable.Stdout = &standardOutputBuffer
	executable.Stderr = &standardErrorBuffer
	if len(command.Details.StandardInput) > 0 {
		executable.Stdin = bytes.NewReader(command.Details.StandardInput)
	}

	runError := executable.Run()
	executionResult := ExecutionResult{
		StandardOutput: standardOutputBuffer.String(),
		StandardError:  standardErrorBuffer.String(),
	}
	if runError != nil {
		exitError := &exec.ExitError{}
		if !errors.As(runError, &exitError) {
			return ExecutionResult{}, runError
		}
		executionResult.ExitCode = exitError.ExitCode()
	}
	return executionResult, nil
}

// RunStreaming executes the command while delivering each stdout line to
// handleLine as it arrives, so output is never buffered whole. When handleLine
// returns false the subprocess is terminated and the partial run is treated as
// a clean early stop.
func (runner *OSCommandRunner) RunStreaming(executionContext context.Context, command ShellCommand, handleLine func(outputLine string) bool) (ExecutionResult, error) {
	streamContext, cancelStream := context.WithCancel(executionContext)
	defer cancelStream()

	executable := exec.CommandContext(streamContext, string(command.Name), append([]string{}, command.Details.Arguments...)...)
	executable.Dir = command.Details.WorkingDirectory
	executable.Env = mergedEnvironment(command.Details.EnvironmentVariables)

	var standardErrorBuffer bytes.Buffer
	executable.Stderr = &standardErrorBuffer

	standardOutputPipe, pipeError := executable.StdoutPipe()
	if pipeError != nil {
		return ExecutionResult{}, pipeError
	}
	if startError := executable.Start(); startError != nil {
		return ExecutionResult{}, startError
	}

	stoppedEarly := false
	lineScanner := bufio.NewScanner(standardOutputPipe)
	for lineScanner.Scan() {
		if !handleLine(lineScanner.Text()) {
			stoppedEarly = true
			cancelStream()
			break
		}
	}
	scanError := lineScanner.Err()

	waitError := executable.Wait()
	executionResult := ExecutionResult{StandardError: standardErrorBuffer.String()}
	if stoppedEarly {
		return executionResult, nil
	}
	if scanError != nil {
		return ExecutionResult{}, scanError
	}
	if waitError != nil {
		exitError := &exec.ExitError{}
		if !errors.As(waitError, &exitError) {
			return ExecutionResult{}, waitError
		}
		executionResult.ExitCode = exitError.ExitCode()
	}
	return executionResult, nil
}

func mergedEnvironment(environmentVariables map[string]string) []string {
	if len(environmentVariables) == 0 {
		return nil
	}
	environmentEntries := append([]string{}, os.Environ()...)
	for environmentKey, environmentValue := range environmentVariables {
		environmentEntries = append(environmentEntries, fmt.Sprintf(environmentAssignmentTemplateConstant, environmentKey, environmentValue))
	}
	return environmentEntries
}
