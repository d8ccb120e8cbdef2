package largeobjects

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

const (
	// LinkRewriteCommitMessageConstant is the fixed message of the synthetic
	// commit recording rewritten cross-repository link URLs.
	LinkRewriteCommitMessageConstant = "Point submodule URLs at the migrated organization"

	gitModulesFileNameConstant          = ".gitmodules"
	linkFixWorktreeSuffixConstant       = "-linkfix"
	rewriterLoggerRequiredMessage       = "rewriter requires logger"
	rewriterManagerRequiredMessage      = "rewriter requires repository manager"
	rewriterMapperRequiredMessage       = "link rewrite requires a destination URL mapper"
	rewriteStartedLogMessageConstant    = "rewriting large objects"
	rewriteFinishedLogMessageConstant   = "uploaded externalized objects to source store"
	linkRewrittenLogMessageConstant     = "rewrote cross-repository link"
	noLinkFileLogMessageConstant        = "no link-declaration file present"
	linkMappingSkippedLogMessageWording = "left cross-repository link unchanged"
	logFieldWorkingCopyConstant         = "working_copy"
	logFieldThresholdBytesConstant      = "threshold_bytes"
	logFieldLinkKeyConstant             = "link_key"
	logFieldLinkURLConstant             = "link_url"
)

// RepositoryRewriter is the subset of source-control operations the rewriter needs.
type RepositoryRewriter interface {
	MigrateLargeObjects(executionContext context.Context, workingCopyPath string, thresholdBytes int64) error
	PushLargeObjects(executionContext context.Context, repositoryPath string, remoteURL string, concurrentTransfers int) error
	AddWorktree(executionContext context.Context, repositoryPath string, worktreePath string, branchName string) error
	RemoveWorktree(executionContext context.Context, repositoryPath string, worktreePath string) error
	ListSubmoduleURLs(executionContext context.Context, worktreePath string) (map[string]string, error)
	SetSubmoduleURL(executionContext context.Context, worktreePath string, configurationKey string, submoduleURL string) error
	CommitPaths(executionContext context.Context, worktreePath string, paths []string, commitMessage string) error
}

// RewriterDependencies collects the collaborators required by Rewriter.
type RewriterDependencies struct {
	Logger            *zap.Logger
	RepositoryManager RepositoryRewriter
}

// RewriteOptions parameterizes one rewrite of a working copy.
type RewriteOptions struct {
	ThresholdBytes int64
	// SourceLFSRemoteURL receives the externalized objects; later pipeline
	// stages assume the source store already holds them.
	SourceLFSRemoteURL  string
	TransferConcurrency int
}

// LinkRewriteOptions parameterizes the optional cross-repository link rewrite.
type LinkRewriteOptions struct {
	DefaultBranch string
	// MapLinkURL translates a source link URL into its destination
	// counterpart; an empty result leaves the link unchanged.
	MapLinkURL func(sourceLinkURL string) string
}

// Rewriter moves qualifying blobs into the external content store and
// optionally repoints cross-repository links at the destination organization.
type Rewriter struct {
	logger            *zap.Logger
	repositoryManager RepositoryRewriter
}

// NewRewriter validates dependencies and constructs a Rewriter.
func NewRewriter(dependencies RewriterDependencies) (*Rewriter, error) {
	if dependencies.Logger == nil {
		return nil, fmt.Errorf(rewriterLoggerRequiredMessage)
	}
	if dependencies.RepositoryManager == nil {
		return nil, fmt.Errorf(rewriterManagerRequiredMessage)
	}
	return &Rewriter{logger: dependencies.Logger, repositoryManager: dependencies.RepositoryManager}, nil
}

// Migrate rewrites history across every reference of the working copy so
// blobs at or above the threshold become pointer files, then uploads the
// externalized objects to the source content store.
func (rewriter *Rewriter) Migrate(executionContext context.Context, workingCopyPath string, options RewriteOptions) error {
	rewriter.logger.Info(
		rewriteStartedLogMessageConstant,
		zap.String(logFieldWorkingCopyConstant, workingCopyPath),
		zap.Int64(logFieldThresholdBytesConstant, options.ThresholdBytes),
	)

	if migrateError := rewriter.repositoryManager.MigrateLargeObjects(executionContext, workingCopyPath, options.ThresholdBytes); migrateError != nil {
		return migrateError
	}

	if pushError := rewriter.repositoryManager.PushLargeObjects(executionContext, workingCopyPath, options.SourceLFSRemoteURL, options.TransferConcurrency); pushError != nil {
		return pushError
	}

	rewriter.logger.Info(rewriteFinishedLogMessageConstant, zap.String(logFieldWorkingCopyConstant, workingCopyPath))
	return nil
}

// RewriteLinks repoints submodule URLs in the working copy's link-declaration
// file and records the change as a synthetic commit on the default branch.
// Callers treat a returned error as a warning, not a pipeline failure.
func (rewriter *Rewriter) RewriteLinks(executionContext context.Context, workingCopyPath string, options LinkRewriteOptions) error {
	if options.MapLinkURL == nil {
		return fmt.Errorf(rewriterMapperRequiredMessage)
	}

	worktreePath := workingCopyPath + linkFixWorktreeSuffixConstant
	if addError := rewriter.repositoryManager.AddWorktree(executionContext, workingCopyPath, worktreePath, options.DefaultBranch); addError != nil {
		return addError
	}
	defer func() {
		_ = rewriter.repositoryManager.RemoveWorktree(executionContext, workingCopyPath, worktreePath)
	}()

	if _, statError := os.Stat(filepath.Join(worktreePath, gitModulesFileNameConstant)); statError != nil {
		rewriter.logger.Debug(noLinkFileLogMessageConstant, zap.String(logFieldWorkingCopyConstant, workingCopyPath))
		return nil
	}

	submoduleURLs, listError := rewriter.repositoryManager.ListSubmoduleURLs(executionContext, worktreePath)
	if listError != nil {
		return listError
	}

	rewrittenLinkCount := 0
	for configurationKey, currentURL := range submoduleURLs {
		mappedURL := options.MapLinkURL(currentURL)
		if len(mappedURL) == 0 || mappedURL == currentURL {
			rewriter.logger.Debug(
				linkMappingSkippedLogMessageWording,
				zap.String(logFieldLinkKeyConstant, configurationKey),
				zap.String(logFieldLinkURLConstant, currentURL),
			)
			continue
		}
		if setError := rewriter.repositoryManager.SetSubmoduleURL(executionContext, worktreePath, configurationKey, mappedURL); setError != nil {
			return setError
		}
		rewriter.logger.Info(
			linkRewrittenLogMessageConstant,
			zap.String(logFieldLinkKeyConstant, configurationKey),
			zap.String(logFieldLinkURLConstant, mappedURL),
		)
		rewrittenLinkCount++
	}
	if rewrittenLinkCount == 0 {
		return nil
	}

	return rewriter.repositoryManager.CommitPaths(executionContext, worktreePath, []string{gitModulesFileNameConstant}, LinkRewriteCommitMessageConstant)
}
