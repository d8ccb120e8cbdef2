package execshell_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/execshell"
)

const (
	mirrorCloneStartTestCaseNameConstant = "mirror_clone_start"
	plainCloneStartTestCaseNameConstant  = "plain_clone_start"
	mirrorPushStartTestCaseNameConstant  = "mirror_push_start"
	lsRemoteStartTestCaseNameConstant    = "ls_remote_start"
	lfsDryRunStartTestCaseNameConstant   = "lfs_dry_run_start"
	genericCommandTestCaseNameConstant   = "generic_command"
)

func TestCommandMessageFormatterBuildStartedMessage(testInstance *testing.T) {
	testCases := []struct {
		name            string
		command         execshell.ShellCommand
		expectedMessage string
	}{
		{
			name: mirrorCloneStartTestCaseNameConstant,
			command: execshell.ShellCommand{
				Name: execshell.CommandGit,
				Details: execshell.CommandDetails{
					Arguments: []string{"clone", "--mirror", "https://gitlab.example.com/team/service.git", "/work/mirrors/team__service.git"},
				},
			},
			expectedMessage: "Mirroring https://gitlab.example.com/team/service.git into /work/mirrors/team__service.git",
		},
		{
			name: plainCloneStartTestCaseNameConstant,
			command: execshell.ShellCommand{
				Name: execshell.CommandGit,
				Details: execshell.CommandDetails{
					Arguments: []string{"clone", "--bare", "/work/mirrors/team__service.git", "/work/rewrite/team__service.git"},
				},
			},
			expectedMessage: "Cloning /work/mirrors/team__service.git into /work/rewrite/team__service.git",
		},
		{
			name: mirrorPushStartTestCaseNameConstant,
			command: execshell.ShellCommand{
				Name: execshell.CommandGit,
				Details: execshell.CommandDetails{
					Arguments:        []string{"push", "--mirror", "https://github.example.com/org/service.git"},
					WorkingDirectory: "/work/mirrors/team__service.git",
				},
			},
			expectedMessage: "Mirror-pushing every reference from /work/mirrors/team__service.git",
		},
		{
			name: lsRemoteStartTestCaseNameConstant,
			command: execshell.ShellCommand{
				Name: execshell.CommandGit,
				Details: execshell.CommandDetails{
					Arguments: []string{"ls-remote", "https://github.example.com/org/service.git"},
				},
			},
			expectedMessage: "Listing remote references of https://github.example.com/org/service.git",
		},
		{
			name: lfsDryRunStartTestCaseNameConstant,
			command: execshell.ShellCommand{
				Name: execshell.CommandGitLFS,
				Details: execshell.CommandDetails{
					Arguments:        []string{"push", "--all", "--dry-run", "destination"},
					WorkingDirectory: "/work/mirrors/team__service.git",
				},
			},
			expectedMessage: "Checking pending large objects in /work/mirrors/team__service.git",
		},
		{
			name: genericCommandTestCaseNameConstant,
			command: execshell.ShellCommand{
				Name: execshell.CommandGit,
				Details: execshell.CommandDetails{
					Arguments:        []string{"gc", "--aggressive"},
					WorkingDirectory: "/work/mirrors/team__service.git",
				},
			},
			expectedMessage: "Running git gc --aggressive (in /work/mirrors/team__service.git)",
		},
	}

	formatter := execshell.CommandMessageFormatter{}
	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtest *testing.T) {
			require.Equal(subtest, testCase.expectedMessage, formatter.BuildStartedMessage(testCase.command))
		})
	}
}

func TestCommandMessageFormatterBuildFailureMessageIncludesStandardError(testInstance *testing.T) {
	formatter := execshell.CommandMessageFormatter{}
	command := execshell.ShellCommand{
		Name: execshell.CommandGit,
		Details: execshell.CommandDetails{
			Arguments:        []string{"fetch", "--all"},
			WorkingDirectory: "/work/mirrors/team__service.git",
		},
	}
	result := execshell.ExecutionResult{ExitCode: 128, StandardError: "fatal: unable to access remote\n"}

	failureMessage := formatter.BuildFailureMessage(command, result)
	require.Equal(testInstance, "Failed to fetch references in /work/mirrors/team__service.git (exit code 128: fatal: unable to access remote)", failureMessage)
}

func TestCommandMessageFormatterBuildExecutionFailureMessage(testInstance *testing.T) {
	formatter := execshell.CommandMessageFormatter{}
	command := execshell.ShellCommand{
		Name: execshell.CommandGitLFS,
		Details: execshell.CommandDetails{
			Arguments:        []string{"migrate", "import", "--everything", "--above=104857600"},
			WorkingDirectory: "/work/rewrite/team__service.git",
		},
	}

	failureMessage := formatter.BuildExecutionFailureMessage(command, errors.New("executable file not found"))
	require.Equal(testInstance, "Unable to rewrite large objects in /work/rewrite/team__service.git: executable file not found", failureMessage)
}
