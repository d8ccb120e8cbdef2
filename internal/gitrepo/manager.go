package gitrepo

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/execshell"
	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/retry"
)

const (
	cloneSubcommandConstant            = "clone"
	fetchSubcommandConstant            = "fetch"
	pushSubcommandConstant             = "push"
	remoteSubcommandConstant           = "remote"
	setURLSubcommandConstant           = "set-url"
	lsRemoteSubcommandConstant         = "ls-remote"
	forEachRefSubcommandConstant       = "for-each-ref"
	catFileSubcommandConstant          = "cat-file"
	worktreeSubcommandConstant         = "worktree"
	configSubcommandConstant           = "config"
	addSubcommandConstant              = "add"
	commitSubcommandConstant           = "commit"
	lfsMigrateSubcommandConstant       = "migrate"
	lfsImportSubcommandConstant        = "import"
	lfsFetchSubcommandConstant         = "fetch"
	lfsPushSubcommandConstant          = "push"
	mirrorFlagConstant                 = "--mirror"
	allFlagConstant                    = "--all"
	pruneFlagConstant                  = "--prune"
	pruneTagsFlagConstant              = "--prune-tags"
	dryRunFlagConstant                 = "--dry-run"
	everythingFlagConstant             = "--everything"
	forceFlagConstant                  = "--force"
	fileFlagConstant                   = "-f"
	messageFlagConstant                = "-m"
	getRegexpFlagConstant              = "--get-regexp"
	removeWorktreeSubcommandConstant   = "remove"
	originRemoteNameConstant           = "origin"
	aboveFlagTemplateConstant          = "--above=%d"
	referenceFormatFlagConstant        = "--format=%(objectname) %(refname)"
	batchAllObjectsFlagConstant        = "--batch-all-objects"
	batchCheckFormatFlagConstant       = "--batch-check=%(objecttype) %(objectsize)"
	gitModulesFileNameConstant         = ".gitmodules"
	submoduleURLPatternConstant        = `^submodule\..*\.url$`
	peeledReferenceSuffixConstant      = "^{}"
	headReferenceNameConstant          = "HEAD"
	pendingObjectLinePrefixConstant    = "push "
	lfsTransfersConfigCountEnvConstant = "GIT_CONFIG_COUNT"
	lfsTransfersConfigKeyEnvConstant   = "GIT_CONFIG_KEY_0"
	lfsTransfersConfigValueEnvAlias    = "GIT_CONFIG_VALUE_0"
	lfsTransfersConfigKeyConstant      = "lfs.concurrenttransfers"

	syncMirrorOperationTemplateConstant   = "mirror sync %s"
	pushMirrorOperationTemplateConstant   = "mirror push from %s"
	lsRemoteOperationTemplateConstant     = "list remote references of %s"
	lfsFetchOperationTemplateConstant     = "fetch large objects in %s"
	lfsPushOperationTemplateConstant      = "push large objects from %s"
	lfsDryRunOperationTemplateConstant    = "check pending large objects in %s"
	loggerRequiredMessageConstant         = "repository manager requires logger"
	executorRequiredMessageConstant       = "repository manager requires command executor"
	retryExecutorRequiredMessageWording   = "repository manager requires retry executor"
	malformedReferenceLineTemplateWording = "malformed reference line %q"
	malformedObjectLineTemplateConstant   = "malformed object line %q"
	removeWorkingCopyFailureTemplate      = "remove working copy %s: %w"
)

// CommandExecutor runs git and git-lfs commands. *execshell.ShellExecutor
// satisfies it; tests substitute stubs.
type CommandExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
	ExecuteGitStreaming(executionContext context.Context, details execshell.CommandDetails, handleLine func(outputLine string) bool) error
	ExecuteGitLFS(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// RepositoryManagerDependencies collects the collaborators required by RepositoryManager.
type RepositoryManagerDependencies struct {
	Logger          *zap.Logger
	CommandExecutor CommandExecutor
	RetryExecutor   *retry.Executor
}

// RepositoryManager performs source-control operations against local mirrors,
// working copies, and remote endpoints. Network operations pass through the
// retry executor; purely local operations do not.
type RepositoryManager struct {
	logger          *zap.Logger
	commandExecutor CommandExecutor
	retryExecutor   *retry.Executor
}

// NewRepositoryManager validates dependencies and constructs a RepositoryManager.
func NewRepositoryManager(dependencies RepositoryManagerDependencies) (*RepositoryManager, error) {
	if dependencies.Logger == nil {
		return nil, fmt.Errorf(loggerRequiredMessageConstant)
	}
	if dependencies.CommandExecutor == nil {
		return nil, fmt.Errorf(executorRequiredMessageConstant)
	}
	if dependencies.RetryExecutor == nil {
		return nil, fmt.Errorf(retryExecutorRequiredMessageWording)
	}
	return &RepositoryManager{
		logger:          dependencies.Logger,
		commandExecutor: dependencies.CommandExecutor,
		retryExecutor:   dependencies.RetryExecutor,
	}, nil
}

// MirrorExists reports whether a mirror directory is already present on disk.
func (manager *RepositoryManager) MirrorExists(mirrorPath string) bool {
	pathInfo, statError := os.Stat(mirrorPath)
	return statError == nil && pathInfo.IsDir()
}

// SyncMirror makes the local mirror an exact copy of the source endpoint: a
// full mirror clone when no mirror exists yet, otherwise a refreshed origin
// URL plus a pruning fetch of every reference and tag.
func (manager *RepositoryManager) SyncMirror(executionContext context.Context, sourceURL string, mirrorPath string) error {
	if !manager.MirrorExists(mirrorPath) {
		return manager.retryExecutor.Execute(executionContext, fmt.Sprintf(syncMirrorOperationTemplateConstant, mirrorPath), func(operationContext context.Context) error {
			_, executionError := manager.commandExecutor.ExecuteGit(operationContext, execshell.CommandDetails{
				Arguments: []string{cloneSubcommandConstant, mirrorFlagConstant, sourceURL, mirrorPath},
			})
			return executionError
		})
	}

	_, setURLError := manager.commandExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{remoteSubcommandConstant, setURLSubcommandConstant, originRemoteNameConstant, sourceURL},
		WorkingDirectory: mirrorPath,
	})
	if setURLError != nil {
		return setURLError
	}

	return manager.retryExecutor.Execute(executionContext, fmt.Sprintf(syncMirrorOperationTemplateConstant, mirrorPath), func(operationContext context.Context) error {
		_, executionError := manager.commandExecutor.ExecuteGit(operationContext, execshell.CommandDetails{
			Arguments:        []string{fetchSubcommandConstant, pruneFlagConstant, pruneTagsFlagConstant},
			WorkingDirectory: mirrorPath,
		})
		return executionError
	})
}

// CreateWorkingCopy derives a disposable bare copy of the mirror, replacing
// any leftover working copy from a previous run.
func (manager *RepositoryManager) CreateWorkingCopy(executionContext context.Context, mirrorPath string, workingCopyPath string) error {
	if removeError := manager.RemoveWorkingCopy(workingCopyPath); removeError != nil {
		return removeError
	}
	_, executionError := manager.commandExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments: []string{cloneSubcommandConstant, mirrorFlagConstant, mirrorPath, workingCopyPath},
	})
	return executionError
}

// RemoveWorkingCopy deletes a working copy directory if present.
func (manager *RepositoryManager) RemoveWorkingCopy(workingCopyPath string) error {
	if removeError := os.RemoveAll(workingCopyPath); removeError != nil {
		return fmt.Errorf(removeWorkingCopyFailureTemplate, workingCopyPath, removeError)
	}
	return nil
}

// PushMirror pushes every reference from repositoryPath to the destination,
// pruning destination references absent locally. The destination may be a
// local mirror path or a credentialed remote URL.
func (manager *RepositoryManager) PushMirror(executionContext context.Context, repositoryPath string, destination string) error {
	return manager.retryExecutor.Execute(executionContext, fmt.Sprintf(pushMirrorOperationTemplateConstant, repositoryPath), func(operationContext context.Context) error {
		_, executionError := manager.commandExecutor.ExecuteGit(operationContext, execshell.CommandDetails{
			Arguments:        []string{pushSubcommandConstant, mirrorFlagConstant, destination},
			WorkingDirectory: repositoryPath,
		})
		return executionError
	})
}

// ListLocalReferences returns every reference in the repository mapped to its
// content identifier.
func (manager *RepositoryManager) ListLocalReferences(executionContext context.Context, repositoryPath string) (map[string]string, error) {
	executionResult, executionError := manager.commandExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{forEachRefSubcommandConstant, referenceFormatFlagConstant},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return nil, executionError
	}
	return parseReferenceLines(executionResult.StandardOutput)
}

// ListRemoteReferences returns every reference advertised by the remote mapped
// to its content identifier. Symbolic HEAD and peeled tag entries are dropped
// so the result is comparable with ListLocalReferences.
func (manager *RepositoryManager) ListRemoteReferences(executionContext context.Context, remoteURL string) (map[string]string, error) {
	var listedReferences map[string]string
	listError := manager.retryExecutor.Execute(executionContext, fmt.Sprintf(lsRemoteOperationTemplateConstant, redactCredentials(remoteURL)), func(operationContext context.Context) error {
		executionResult, executionError := manager.commandExecutor.ExecuteGit(operationContext, execshell.CommandDetails{
			Arguments: []string{lsRemoteSubcommandConstant, remoteURL},
		})
		if executionError != nil {
			return executionError
		}
		parsedReferences, parseError := parseRemoteReferenceLines(executionResult.StandardOutput)
		if parseError != nil {
			return parseError
		}
		listedReferences = parsedReferences
		return nil
	})
	if listError != nil {
		return nil, listError
	}
	return listedReferences, nil
}

// ForEachObject enumerates every object in the repository and calls visit with
// its type and size, stopping early when visit returns false. Object metadata
// streams from the subprocess line by line; the listing is never buffered
// whole, and an early stop terminates the enumeration command.
func (manager *RepositoryManager) ForEachObject(executionContext context.Context, repositoryPath string, visit func(objectType string, objectSize int64) bool) error {
	var malformedLineError error
	streamError := manager.commandExecutor.ExecuteGitStreaming(executionContext, execshell.CommandDetails{
		Arguments:        []string{catFileSubcommandConstant, batchAllObjectsFlagConstant, batchCheckFormatFlagConstant},
		WorkingDirectory: repositoryPath,
	}, func(outputLine string) bool {
		objectLine := strings.TrimSpace(outputLine)
		if len(objectLine) == 0 {
			return true
		}
		lineFields := strings.Fields(objectLine)
		if len(lineFields) != 2 {
			malformedLineError = fmt.Errorf(malformedObjectLineTemplateConstant, objectLine)
			return false
		}
		objectSize, sizeError := strconv.ParseInt(lineFields[1], 10, 64)
		if sizeError != nil {
			malformedLineError = fmt.Errorf(malformedObjectLineTemplateConstant, objectLine)
			return false
		}
		return visit(lineFields[0], objectSize)
	})
	if streamError != nil {
		return streamError
	}
	return malformedLineError
}

// MigrateLargeObjects rewrites history across every reference of the working
// copy so blobs at or above the threshold move to pointer files.
func (manager *RepositoryManager) MigrateLargeObjects(executionContext context.Context, workingCopyPath string, thresholdBytes int64) error {
	_, executionError := manager.commandExecutor.ExecuteGitLFS(executionContext, execshell.CommandDetails{
		Arguments:        []string{lfsMigrateSubcommandConstant, lfsImportSubcommandConstant, everythingFlagConstant, fmt.Sprintf(aboveFlagTemplateConstant, thresholdBytes)},
		WorkingDirectory: workingCopyPath,
	})
	return executionError
}

// FetchLargeObjects downloads every externalized object from the remote into
// the repository's local large-object store.
func (manager *RepositoryManager) FetchLargeObjects(executionContext context.Context, repositoryPath string, remoteURL string) error {
	return manager.retryExecutor.Execute(executionContext, fmt.Sprintf(lfsFetchOperationTemplateConstant, repositoryPath), func(operationContext context.Context) error {
		_, executionError := manager.commandExecutor.ExecuteGitLFS(operationContext, execshell.CommandDetails{
			Arguments:        []string{lfsFetchSubcommandConstant, allFlagConstant, remoteURL},
			WorkingDirectory: repositoryPath,
		})
		return executionError
	})
}

// PushLargeObjects uploads every externalized object to the remote's
// large-object store, bounded by the configured transfer concurrency.
func (manager *RepositoryManager) PushLargeObjects(executionContext context.Context, repositoryPath string, remoteURL string, concurrentTransfers int) error {
	return manager.retryExecutor.Execute(executionContext, fmt.Sprintf(lfsPushOperationTemplateConstant, repositoryPath), func(operationContext context.Context) error {
		_, executionError := manager.commandExecutor.ExecuteGitLFS(operationContext, execshell.CommandDetails{
			Arguments:            []string{lfsPushSubcommandConstant, allFlagConstant, remoteURL},
			WorkingDirectory:     repositoryPath,
			EnvironmentVariables: transferConcurrencyEnvironment(concurrentTransfers),
		})
		return executionError
	})
}

// ListPendingLargeObjects dry-runs a full large-object push and returns one
// entry per object the remote is still missing.
func (manager *RepositoryManager) ListPendingLargeObjects(executionContext context.Context, repositoryPath string, remoteURL string) ([]string, error) {
	var pendingObjects []string
	dryRunError := manager.retryExecutor.Execute(executionContext, fmt.Sprintf(lfsDryRunOperationTemplateConstant, repositoryPath), func(operationContext context.Context) error {
		executionResult, executionError := manager.commandExecutor.ExecuteGitLFS(operationContext, execshell.CommandDetails{
			Arguments:        []string{lfsPushSubcommandConstant, allFlagConstant, dryRunFlagConstant, remoteURL},
			WorkingDirectory: repositoryPath,
		})
		if executionError != nil {
			return executionError
		}
		pendingObjects = parsePendingObjectLines(executionResult.StandardOutput)
		return nil
	})
	if dryRunError != nil {
		return nil, dryRunError
	}
	return pendingObjects, nil
}

// AddWorktree attaches a throwaway worktree for the supplied branch.
func (manager *RepositoryManager) AddWorktree(executionContext context.Context, repositoryPath string, worktreePath string, branchName string) error {
	_, executionError := manager.commandExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{worktreeSubcommandConstant, addSubcommandConstant, worktreePath, branchName},
		WorkingDirectory: repositoryPath,
	})
	return executionError
}

// RemoveWorktree detaches a worktree previously created with AddWorktree.
func (manager *RepositoryManager) RemoveWorktree(executionContext context.Context, repositoryPath string, worktreePath string) error {
	_, executionError := manager.commandExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{worktreeSubcommandConstant, removeWorktreeSubcommandConstant, forceFlagConstant, worktreePath},
		WorkingDirectory: repositoryPath,
	})
	return executionError
}

// ListSubmoduleURLs reads the submodule url entries from the worktree's
// link-declaration file, keyed by their configuration name.
func (manager *RepositoryManager) ListSubmoduleURLs(executionContext context.Context, worktreePath string) (map[string]string, error) {
	executionResult, executionError := manager.commandExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{configSubcommandConstant, fileFlagConstant, gitModulesFileNameConstant, getRegexpFlagConstant, submoduleURLPatternConstant},
		WorkingDirectory: worktreePath,
	})
	if executionError != nil {
		return nil, executionError
	}

	submoduleURLs := map[string]string{}
	lineScanner := bufio.NewScanner(strings.NewReader(executionResult.StandardOutput))
	for lineScanner.Scan() {
		configLine := strings.TrimSpace(lineScanner.Text())
		if len(configLine) == 0 {
			continue
		}
		keyAndValue := strings.SplitN(configLine, " ", 2)
		if len(keyAndValue) != 2 {
			continue
		}
		submoduleURLs[keyAndValue[0]] = strings.TrimSpace(keyAndValue[1])
	}
	return submoduleURLs, lineScanner.Err()
}

// SetSubmoduleURL rewrites one submodule url entry in the worktree's
// link-declaration file.
func (manager *RepositoryManager) SetSubmoduleURL(executionContext context.Context, worktreePath string, configurationKey string, submoduleURL string) error {
	_, executionError := manager.commandExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{configSubcommandConstant, fileFlagConstant, gitModulesFileNameConstant, configurationKey, submoduleURL},
		WorkingDirectory: worktreePath,
	})
	return executionError
}

// CommitPaths stages the supplied paths and records a commit with the message.
func (manager *RepositoryManager) CommitPaths(executionContext context.Context, worktreePath string, paths []string, commitMessage string) error {
	addArguments := append([]string{addSubcommandConstant}, paths...)
	if _, executionError := manager.commandExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        addArguments,
		WorkingDirectory: worktreePath,
	}); executionError != nil {
		return executionError
	}
	_, commitError := manager.commandExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{commitSubcommandConstant, messageFlagConstant, commitMessage},
		WorkingDirectory: worktreePath,
	})
	return commitError
}

func transferConcurrencyEnvironment(concurrentTransfers int) map[string]string {
	if concurrentTransfers <= 0 {
		return nil
	}
	return map[string]string{
		lfsTransfersConfigCountEnvConstant: "1",
		lfsTransfersConfigKeyEnvConstant:   lfsTransfersConfigKeyConstant,
		lfsTransfersConfigValueEnvAlias:    strconv.Itoa(concurrentTransfers),
	}
}

func parseReferenceLines(commandOutput string) (map[string]string, error) {
	references := map[string]string{}
	lineScanner := bufio.NewScanner(strings.NewReader(commandOutput))
	for lineScanner.Scan() {
		referenceLine := strings.TrimSpace(lineScanner.Text())
		if len(referenceLine) == 0 {
			continue
		}
		lineFields := strings.Fields(referenceLine)
		if len(lineFields) != 2 {
			return nil, fmt.Errorf(malformedReferenceLineTemplateWording, referenceLine)
		}
		references[lineFields[1]] = lineFields[0]
	}
	return references, lineScanner.Err()
}

func parseRemoteReferenceLines(commandOutput string) (map[string]string, error) {
	parsedReferences, parseError := parseReferenceLines(commandOutput)
	if parseError != nil {
		return nil, parseError
	}
	for referenceName := range parsedReferences {
		if referenceName == headReferenceNameConstant || strings.HasSuffix(referenceName, peeledReferenceSuffixConstant) {
			delete(parsedReferences, referenceName)
		}
	}
	return parsedReferences, nil
}

func parsePendingObjectLines(commandOutput string) []string {
	pendingObjects := []string{}
	lineScanner := bufio.NewScanner(strings.NewReader(commandOutput))
	for lineScanner.Scan() {
		outputLine := strings.TrimSpace(lineScanner.Text())
		if strings.HasPrefix(outputLine, pendingObjectLinePrefixConstant) {
			pendingObjects = append(pendingObjects, strings.TrimPrefix(outputLine, pendingObjectLinePrefixConstant))
		}
	}
	return pendingObjects
}

func redactCredentials(remoteValue string) string {
	schemeSplitIndex := strings.Index(remoteValue, "//")
	if schemeSplitIndex == -1 {
		return remoteValue
	}
	credentialSplitIndex := strings.Index(remoteValue[schemeSplitIndex:], sshUserDelimiterConstant)
	if credentialSplitIndex == -1 {
		return remoteValue
	}
	return remoteValue[:schemeSplitIndex+2] + remoteValue[schemeSplitIndex+credentialSplitIndex+1:]
}
