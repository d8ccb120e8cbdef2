package execshell

// CommandEventObserver receives lifecycle notifications while the executor
// runs git, git-lfs, and other migration commands.
type CommandEventObserver interface {
	// CommandStarted fires immediately before the command is launched.
	CommandStarted(command ShellCommand)
	// CommandCompleted fires once the command produced an execution result.
	CommandCompleted(command ShellCommand, result ExecutionResult)
	// CommandExecutionFailed fires when the command could not run at all.
	CommandExecutionFailed(command ShellCommand, failure error)
}

// discardingCommandEventObserver drops every notification.
type discardingCommandEventObserver struct{}

func (discardingCommandEventObserver) CommandStarted(ShellCommand) {}

func (discardingCommandEventObserver) CommandCompleted(ShellCommand, ExecutionResult) {}

func (discardingCommandEventObserver) CommandExecutionFailed(ShellCommand, error) {}
