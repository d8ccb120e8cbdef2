package execshell

import (
	"fmt"
	"strings"
)

type messageStage int

const (
	messageStageStart messageStage = iota
	messageStageSuccess
	messageStageFailure
	messageStageExecutionFailure
)

const (
	genericStartTemplateConstant            = "Running %s"
	genericSuccessTemplateConstant          = "Completed %s"
	genericFailureTemplateConstant          = "%s failed with exit code %d%s"
	genericExecutionFailureTemplateConstant = "%s failed: %s"
	commandLabelTemplateConstant            = "%s%s"
	workingDirectorySuffixTemplateConstant  = " (in %s)"
	commandArgumentsJoinSeparatorConstant   = " "
	standardErrorSuffixTemplateConstant     = ": %s"
	unknownFailureMessageConstant           = "unknown error"
	emptyStringConstant                     = ""
	defaultWorkingDirectoryLabelConstant    = "current directory"
	fallbackUnknownValueLabelConstant       = "unknown"
)

const (
	gitCloneSubcommandNameConstant      = "clone"
	gitFetchSubcommandNameConstant      = "fetch"
	gitPushSubcommandNameConstant       = "push"
	gitLSRemoteSubcommandNameConstant   = "ls-remote"
	gitForEachRefSubcommandNameConstant = "for-each-ref"
	gitCatFileSubcommandNameConstant    = "cat-file"
	gitMirrorFlagConstant               = "--mirror"
	gitDryRunFlagConstant               = "--dry-run"
	lfsMigrateSubcommandNameConstant    = "migrate"
	lfsFetchSubcommandNameConstant      = "fetch"
	lfsPushSubcommandNameConstant       = "push"
)

const (
	gitCloneStartTemplateConstant               = "Cloning %s into %s"
	gitCloneMirrorStartTemplateConstant         = "Mirroring %s into %s"
	gitCloneSuccessTemplateConstant             = "Cloned %s into %s"
	gitCloneFailureTemplateConstant             = "Failed to clone %s into %s (exit code %d%s)"
	gitCloneExecutionFailureTemplateConstant    = "Unable to clone %s into %s: %s"
	gitFetchStartTemplateConstant               = "Fetching all references in %s"
	gitFetchSuccessTemplateConstant             = "Fetched all references in %s"
	gitFetchFailureTemplateConstant             = "Failed to fetch references in %s (exit code %d%s)"
	gitFetchExecutionFailureTemplateConstant    = "Unable to fetch references in %s: %s"
	gitPushStartTemplateConstant                = "Pushing references from %s"
	gitPushMirrorStartTemplateConstant          = "Mirror-pushing every reference from %s"
	gitPushSuccessTemplateConstant              = "Pushed references from %s"
	gitPushFailureTemplateConstant              = "Failed to push references from %s (exit code %d%s)"
	gitPushExecutionFailureTemplateConstant     = "Unable to push references from %s: %s"
	gitLSRemoteStartTemplateConstant            = "Listing remote references of %s"
	gitLSRemoteSuccessTemplateConstant          = "Listed remote references of %s"
	gitLSRemoteFailureTemplateConstant          = "Failed to list remote references of %s (exit code %d%s)"
	gitLSRemoteExecutionFailureTemplateConstant = "Unable to list remote references of %s: %s"
	gitRefListStartTemplateConstant             = "Enumerating references in %s"
	gitRefListSuccessTemplateConstant           = "Enumerated references in %s"
	gitRefListFailureTemplateConstant           = "Failed to enumerate references in %s (exit code %d%s)"
	gitRefListExecutionFailureTemplateConstant  = "Unable to enumerate references in %s: %s"
	gitObjectsStartTemplateConstant             = "Scanning object graph in %s"
	gitObjectsSuccessTemplateConstant           = "Scanned object graph in %s"
	gitObjectsFailureTemplateConstant           = "Failed to scan object graph in %s (exit code %d%s)"
	gitObjectsExecutionFailureTemplateConstant  = "Unable to scan object graph in %s: %s"
	lfsMigrateStartTemplateConstant             = "Rewriting large objects in %s"
	lfsMigrateSuccessTemplateConstant           = "Rewrote large objects in %s"
	lfsMigrateFailureTemplateConstant           = "Failed to rewrite large objects in %s (exit code %d%s)"
	lfsMigrateExecutionFailureTemplateConstant  = "Unable to rewrite large objects in %s: %s"
	lfsFetchStartTemplateConstant               = "Fetching large objects in %s"
	lfsFetchSuccessTemplateConstant             = "Fetched large objects in %s"
	lfsFetchFailureTemplateConstant             = "Failed to fetch large objects in %s (exit code %d%s)"
	lfsFetchExecutionFailureTemplateConstant    = "Unable to fetch large objects in %s: %s"
	lfsPushStartTemplateConstant                = "Pushing large objects from %s"
	lfsPushDryRunStartTemplateConstant          = "Checking pending large objects in %s"
	lfsPushSuccessTemplateConstant              = "Pushed large objects from %s"
	lfsPushDryRunSuccessTemplateConstant        = "Checked pending large objects in %s"
	lfsPushFailureTemplateConstant              = "Failed to push large objects from %s (exit code %d%s)"
	lfsPushExecutionFailureTemplateConstant     = "Unable to push large objects from %s: %s"
)

// CommandMessageFormatter builds human-readable messages for command lifecycle events.
type CommandMessageFormatter struct{}

// BuildStartedMessage formats the message describing a command about to run.
func (formatter CommandMessageFormatter) BuildStartedMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageStart)
}

// BuildSuccessMessage formats the message describing a completed command with a zero exit code.
func (formatter CommandMessageFormatter) BuildSuccessMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageSuccess)
}

// BuildFailureMessage formats the message describing a command that returned a non-zero exit code.
func (formatter CommandMessageFormatter) BuildFailureMessage(command ShellCommand, result ExecutionResult) string {
	return formatter.buildMessage(command, result, nil, messageStageFailure)
}

// BuildExecutionFailureMessage formats the message describing an unexpected execution failure.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(command ShellCommand, failure error) string {
	return formatter.buildMessage(command, ExecutionResult{}, failure, messageStageExecutionFailure)
}

func (formatter CommandMessageFormatter) buildMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	switch command.Name {
	case CommandGit:
		return formatter.describeGitMessage(command, result, failure, stage)
	case CommandGitLFS:
		return formatter.describeLFSMessage(command, result, failure, stage)
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeGitMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	if len(command.Details.Arguments) == 0 {
		return formatter.buildGenericMessage(command, result, failure, stage)
	}

	subcommand := strings.TrimSpace(command.Details.Arguments[0])
	switch subcommand {
	case gitCloneSubcommandNameConstant:
		return formatter.describeGitCloneMessage(command, result, failure, stage)
	case gitFetchSubcommandNameConstant:
		return formatter.describeWorkingDirectoryMessage(command, result, failure, stage,
			gitFetchStartTemplateConstant, gitFetchSuccessTemplateConstant, gitFetchFailureTemplateConstant, gitFetchExecutionFailureTemplateConstant)
	case gitPushSubcommandNameConstant:
		startTemplate := gitPushStartTemplateConstant
		if containsArgument(command.Details.Arguments, gitMirrorFlagConstant) {
			startTemplate = gitPushMirrorStartTemplateConstant
		}
		return formatter.describeWorkingDirectoryMessage(command, result, failure, stage,
			startTemplate, gitPushSuccessTemplateConstant, gitPushFailureTemplateConstant, gitPushExecutionFailureTemplateConstant)
	case gitLSRemoteSubcommandNameConstant:
		return formatter.describeGitLSRemoteMessage(command, result, failure, stage)
	case gitForEachRefSubcommandNameConstant:
		return formatter.describeWorkingDirectoryMessage(command, result, failure, stage,
			gitRefListStartTemplateConstant, gitRefListSuccessTemplateConstant, gitRefListFailureTemplateConstant, gitRefListExecutionFailureTemplateConstant)
	case gitCatFileSubcommandNameConstant:
		return formatter.describeWorkingDirectoryMessage(command, result, failure, stage,
			gitObjectsStartTemplateConstant, gitObjectsSuccessTemplateConstant, gitObjectsFailureTemplateConstant, gitObjectsExecutionFailureTemplateConstant)
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeLFSMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	if len(command.Details.Arguments) == 0 {
		return formatter.buildGenericMessage(command, result, failure, stage)
	}

	subcommand := strings.TrimSpace(command.Details.Arguments[0])
	switch subcommand {
	case lfsMigrateSubcommandNameConstant:
		return formatter.describeWorkingDirectoryMessage(command, result, failure, stage,
			lfsMigrateStartTemplateConstant, lfsMigrateSuccessTemplateConstant, lfsMigrateFailureTemplateConstant, lfsMigrateExecutionFailureTemplateConstant)
	case lfsFetchSubcommandNameConstant:
		return formatter.describeWorkingDirectoryMessage(command, result, failure, stage,
			lfsFetchStartTemplateConstant, lfsFetchSuccessTemplateConstant, lfsFetchFailureTemplateConstant, lfsFetchExecutionFailureTemplateConstant)
	case lfsPushSubcommandNameConstant:
		startTemplate := lfsPushStartTemplateConstant
		successTemplate := lfsPushSuccessTemplateConstant
		if containsArgument(command.Details.Arguments, gitDryRunFlagConstant) {
			startTemplate = lfsPushDryRunStartTemplateConstant
			successTemplate = lfsPushDryRunSuccessTemplateConstant
		}
		return formatter.describeWorkingDirectoryMessage(command, result, failure, stage,
			startTemplate, successTemplate, lfsPushFailureTemplateConstant, lfsPushExecutionFailureTemplateConstant)
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeGitCloneMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	sourceLabel, destinationLabel := formatter.extractCloneEndpoints(command.Details.Arguments)
	switch stage {
	case messageStageStart:
		if containsArgument(command.Details.Arguments, gitMirrorFlagConstant) {
			return fmt.Sprintf(gitCloneMirrorStartTemplateConstant, sourceLabel, destinationLabel)
		}
		return fmt.Sprintf(gitCloneStartTemplateConstant, sourceLabel, destinationLabel)
	case messageStageSuccess:
		return fmt.Sprintf(gitCloneSuccessTemplateConstant, sourceLabel, destinationLabel)
	case messageStageFailure:
		return fmt.Sprintf(gitCloneFailureTemplateConstant, sourceLabel, destinationLabel, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(gitCloneExecutionFailureTemplateConstant, sourceLabel, destinationLabel, formatter.describeFailure(failure))
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeGitLSRemoteMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	remoteLabel := formatter.ensureValue(formatter.extractFirstNonFlagArgument(command.Details.Arguments[1:]))
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(gitLSRemoteStartTemplateConstant, remoteLabel)
	case messageStageSuccess:
		return fmt.Sprintf(gitLSRemoteSuccessTemplateConstant, remoteLabel)
	case messageStageFailure:
		return fmt.Sprintf(gitLSRemoteFailureTemplateConstant, remoteLabel, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(gitLSRemoteExecutionFailureTemplateConstant, remoteLabel, formatter.describeFailure(failure))
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeWorkingDirectoryMessage(
	command ShellCommand,
	result ExecutionResult,
	failure error,
	stage messageStage,
	startTemplate string,
	successTemplate string,
	failureTemplate string,
	executionFailureTemplate string,
) string {
	workingDirectory := formatter.describeWorkingDirectory(command)
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(startTemplate, workingDirectory)
	case messageStageSuccess:
		return fmt.Sprintf(successTemplate, workingDirectory)
	case messageStageFailure:
		return fmt.Sprintf(failureTemplate, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(executionFailureTemplate, workingDirectory, formatter.describeFailure(failure))
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) buildGenericMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	commandLabel := formatter.formatCommandLabel(command)
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(genericStartTemplateConstant, commandLabel)
	case messageStageSuccess:
		return fmt.Sprintf(genericSuccessTemplateConstant, commandLabel)
	case messageStageFailure:
		return fmt.Sprintf(genericFailureTemplateConstant, commandLabel, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(genericExecutionFailureTemplateConstant, commandLabel, formatter.describeFailure(failure))
	default:
		return emptyStringConstant
	}
}

func (formatter CommandMessageFormatter) formatCommandLabel(command ShellCommand) string {
	commandLabel := string(command.Name)
	if len(command.Details.Arguments) > 0 {
		commandLabel = fmt.Sprintf("%s %s", commandLabel, strings.Join(command.Details.Arguments, commandArgumentsJoinSeparatorConstant))
	}
	workingDirectorySuffix := formatter.formatWorkingDirectorySuffix(command)
	return fmt.Sprintf(commandLabelTemplateConstant, commandLabel, workingDirectorySuffix)
}

func (formatter CommandMessageFormatter) formatWorkingDirectorySuffix(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(workingDirectorySuffixTemplateConstant, trimmedWorkingDirectory)
}

func (formatter CommandMessageFormatter) formatStandardErrorSuffix(standardError string) string {
	trimmedStandardError := strings.TrimSpace(standardError)
	if len(trimmedStandardError) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(standardErrorSuffixTemplateConstant, trimmedStandardError)
}

func (formatter CommandMessageFormatter) describeWorkingDirectory(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return defaultWorkingDirectoryLabelConstant
	}
	return trimmedWorkingDirectory
}

func (formatter CommandMessageFormatter) describeFailure(failure error) string {
	if failure == nil {
		return unknownFailureMessageConstant
	}
	return failure.Error()
}

func (formatter CommandMessageFormatter) extractCloneEndpoints(arguments []string) (string, string) {
	positionalArguments := []string{}
	for _, argument := range arguments[1:] {
		trimmed := strings.TrimSpace(argument)
		if len(trimmed) == 0 || strings.HasPrefix(trimmed, "-") {
			continue
		}
		positionalArguments = append(positionalArguments, trimmed)
	}
	switch len(positionalArguments) {
	case 0:
		return fallbackUnknownValueLabelConstant, fallbackUnknownValueLabelConstant
	case 1:
		return positionalArguments[0], defaultWorkingDirectoryLabelConstant
	default:
		return positionalArguments[0], positionalArguments[1]
	}
}

func (formatter CommandMessageFormatter) extractFirstNonFlagArgument(arguments []string) string {
	for _, argument := range arguments {
		trimmed := strings.TrimSpace(argument)
		if len(trimmed) == 0 {
			continue
		}
		if strings.HasPrefix(trimmed, "-") {
			continue
		}
		return trimmed
	}
	return emptyStringConstant
}

func (formatter CommandMessageFormatter) ensureValue(value string) string {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) == 0 {
		return fallbackUnknownValueLabelConstant
	}
	return trimmed
}

func containsArgument(arguments []string, value string) bool {
	for _, argument := range arguments {
		if strings.TrimSpace(argument) == value {
			return true
		}
	}
	return false
}
