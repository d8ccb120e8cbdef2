package migration

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/githubapi"
	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/gitrepo"
	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/largeobjects"
	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/progress"
	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/verify"
)

const (
	repositoryDirectorySuffixConstant = ".git"
	sourceCredentialUsernameConstant  = "oauth2"
	destinationCredentialUserConstant = "x-access-token"

	alreadySkippedLogMessageConstant         = "repository previously skipped, nothing to do"
	skippingExistingLogMessageConstant       = "destination already has references, skipping repository"
	mirrorSyncedLogMessageConstant           = "mirror synchronized"
	rewriteUnnecessaryLogMessageConstant     = "no objects at or above threshold"
	linkRewriteFailedLogMessageConstant      = "cross-repository link rewrite failed"
	workingCopyCleanupLogMessageConstant     = "working copy cleanup failed"
	dryRunShortCircuitLogMessageConstant     = "dry run: skipping provisioning, push, and verification"
	defaultBranchFailedLogMessageConstant    = "default branch enforcement failed"
	largeObjectPushFailedLogMessageConstant  = "large object push failed, reference history already transferred"
	largeObjectFetchFailedLogMessageConstant = "large object fetch from source failed"
	verificationFailedLogMessageConstant     = "verification could not be completed"
	correctivePushLogMessageConstant         = "verification mismatch, attempting corrective large object push"
	knownDivergenceLogMessageConstant        = "destination still diverges from mirror, accepted as known divergence"
	repositoryMigratedLogMessageConstant     = "repository migrated"
	pipelineStageFailureTemplateConstant     = "%s: %s: %w"
	missingCloneURLMessageTemplateConstant   = "destination metadata for %s carries no clone url"

	stageNamePreCheckConstant      = "destination pre-check"
	stageNameMirrorSyncConstant    = "mirror sync"
	stageNameRewriteConstant       = "working copy rewrite"
	stageNameProvisioningConstant  = "destination provisioning"
	stageNamePushConstant          = "push"
	logFieldSlugPipelineConstant   = "slug"
	logFieldStageConstant          = "stage"
	logFieldReferenceCountConstant = "reference_count"
)

// ProgressStore records and reads per-repository checkpoints.
type ProgressStore interface {
	Append(slug string, marker progress.Marker) error
	Has(slug string, marker progress.Marker) (bool, error)
}

// SourceControlManager is the subset of repository operations the pipeline drives.
type SourceControlManager interface {
	SyncMirror(executionContext context.Context, sourceURL string, mirrorPath string) error
	CreateWorkingCopy(executionContext context.Context, mirrorPath string, workingCopyPath string) error
	RemoveWorkingCopy(workingCopyPath string) error
	PushMirror(executionContext context.Context, repositoryPath string, destination string) error
	ListRemoteReferences(executionContext context.Context, remoteURL string) (map[string]string, error)
	FetchLargeObjects(executionContext context.Context, repositoryPath string, remoteURL string) error
	PushLargeObjects(executionContext context.Context, repositoryPath string, remoteURL string, concurrentTransfers int) error
}

// LargeObjectClassifier decides whether a repository needs a rewrite.
type LargeObjectClassifier interface {
	HasLargeObjects(executionContext context.Context, repositoryPath string, thresholdBytes int64) (bool, error)
}

// LargeObjectRewriter rewrites qualifying history and cross-repository links.
type LargeObjectRewriter interface {
	Migrate(executionContext context.Context, workingCopyPath string, options largeobjects.RewriteOptions) error
	RewriteLinks(executionContext context.Context, workingCopyPath string, options largeobjects.LinkRewriteOptions) error
}

// DestinationClient provisions and adjusts destination repositories.
type DestinationClient interface {
	GetRepository(executionContext context.Context, repositoryName string) (githubapi.RepositoryMetadata, bool, error)
	EnsureRepository(executionContext context.Context, repositoryName string, description string) (githubapi.RepositoryMetadata, error)
	SetDefaultBranch(executionContext context.Context, repositoryName string, defaultBranch string) error
}

// ReferenceVerifier reconciles a pushed repository against its mirror.
type ReferenceVerifier interface {
	Verify(executionContext context.Context, mirrorPath string, destinationURL string) (verify.Report, error)
}

// PipelineSettings carries the per-run tunables the pipeline needs.
type PipelineSettings struct {
	MirrorsDirectory        string
	RewriteDirectory        string
	SourceToken             string
	DestinationToken        string
	DestinationHost         string
	DestinationOrganization string
	ThresholdBytes          int64
	TransferConcurrency     int
	SkipExisting            bool
	RewriteLinks            bool
	DryRun                  bool
}

// PipelineDependencies collects the collaborators required by Pipeline.
type PipelineDependencies struct {
	Logger            *zap.Logger
	ProgressStore     ProgressStore
	SourceControl     SourceControlManager
	Classifier        LargeObjectClassifier
	Rewriter          LargeObjectRewriter
	DestinationClient DestinationClient
	Verifier          ReferenceVerifier
}

// Pipeline drives a single repository through the migration state machine.
// Completed stages are recorded in the progress store, so an interrupted
// pipeline resumes from its last marker instead of redoing work.
type Pipeline struct {
	logger            *zap.Logger
	progressStore     ProgressStore
	sourceControl     SourceControlManager
	classifier        LargeObjectClassifier
	rewriter          LargeObjectRewriter
	destinationClient DestinationClient
	verifier          ReferenceVerifier
	settings          PipelineSettings
}

// NewPipeline validates dependencies and constructs a Pipeline.
func NewPipeline(dependencies PipelineDependencies, settings PipelineSettings) (*Pipeline, error) {
	switch {
	case dependencies.Logger == nil:
		return nil, fmt.Errorf("pipeline requires logger")
	case dependencies.ProgressStore == nil:
		return nil, fmt.Errorf("pipeline requires progress store")
	case dependencies.SourceControl == nil:
		return nil, fmt.Errorf("pipeline requires source control manager")
	case dependencies.Classifier == nil:
		return nil, fmt.Errorf("pipeline requires classifier")
	case dependencies.Rewriter == nil:
		return nil, fmt.Errorf("pipeline requires rewriter")
	case dependencies.DestinationClient == nil:
		return nil, fmt.Errorf("pipeline requires destination client")
	case dependencies.Verifier == nil:
		return nil, fmt.Errorf("pipeline requires verifier")
	}
	return &Pipeline{
		logger:            dependencies.Logger,
		progressStore:     dependencies.ProgressStore,
		sourceControl:     dependencies.SourceControl,
		classifier:        dependencies.Classifier,
		rewriter:          dependencies.Rewriter,
		destinationClient: dependencies.DestinationClient,
		verifier:          dependencies.Verifier,
		settings:          settings,
	}, nil
}

// Run migrates one repository. A returned error is a per-repository failure;
// recoverable problems are logged as warnings and the pipeline continues.
func (pipeline *Pipeline) Run(executionContext context.Context, descriptor RepositoryDescriptor) error {
	slug := descriptor.Slug()
	mirrorPath := filepath.Join(pipeline.settings.MirrorsDirectory, slug+repositoryDirectorySuffixConstant)
	workingCopyPath := filepath.Join(pipeline.settings.RewriteDirectory, slug+repositoryDirectorySuffixConstant)

	sourceURL, sourceURLError := gitrepo.WithCredentials(descriptor.CloneURL, sourceCredentialUsernameConstant, pipeline.settings.SourceToken)
	if sourceURLError != nil {
		return pipeline.stageFailure(stageNameMirrorSyncConstant, slug, sourceURLError)
	}

	alreadySkipped, skippedReadError := pipeline.progressStore.Has(slug, progress.MarkerSkippedExisting)
	if skippedReadError != nil {
		return pipeline.stageFailure(stageNamePreCheckConstant, slug, skippedReadError)
	}
	if alreadySkipped {
		pipeline.logger.Info(alreadySkippedLogMessageConstant, zap.String(logFieldSlugPipelineConstant, slug))
		return nil
	}

	if terminated, preCheckError := pipeline.runDestinationPreCheck(executionContext, slug); preCheckError != nil {
		return pipeline.stageFailure(stageNamePreCheckConstant, slug, preCheckError)
	} else if terminated {
		return nil
	}

	if syncError := pipeline.sourceControl.SyncMirror(executionContext, sourceURL, mirrorPath); syncError != nil {
		return pipeline.stageFailure(stageNameMirrorSyncConstant, slug, syncError)
	}
	if appendError := pipeline.progressStore.Append(slug, progress.MarkerMirrorCloned); appendError != nil {
		return pipeline.stageFailure(stageNameMirrorSyncConstant, slug, appendError)
	}
	pipeline.logger.Info(mirrorSyncedLogMessageConstant, zap.String(logFieldSlugPipelineConstant, slug))

	if rewriteError := pipeline.runRewriteStage(executionContext, descriptor, slug, sourceURL, mirrorPath, workingCopyPath); rewriteError != nil {
		return pipeline.stageFailure(stageNameRewriteConstant, slug, rewriteError)
	}

	if pipeline.settings.DryRun {
		pipeline.logger.Info(dryRunShortCircuitLogMessageConstant, zap.String(logFieldSlugPipelineConstant, slug))
		return nil
	}

	destinationMetadata, provisioningError := pipeline.destinationClient.EnsureRepository(executionContext, slug, descriptor.Description)
	if provisioningError != nil {
		return pipeline.stageFailure(stageNameProvisioningConstant, slug, provisioningError)
	}
	if len(destinationMetadata.CloneURL) == 0 {
		return pipeline.stageFailure(stageNameProvisioningConstant, slug, fmt.Errorf(missingCloneURLMessageTemplateConstant, slug))
	}
	if branchError := pipeline.destinationClient.SetDefaultBranch(executionContext, slug, descriptor.DefaultBranch); branchError != nil {
		pipeline.logger.Warn(defaultBranchFailedLogMessageConstant, zap.String(logFieldSlugPipelineConstant, slug), zap.Error(branchError))
	}

	destinationURL, destinationURLError := gitrepo.WithCredentials(destinationMetadata.CloneURL, destinationCredentialUserConstant, pipeline.settings.DestinationToken)
	if destinationURLError != nil {
		return pipeline.stageFailure(stageNameProvisioningConstant, slug, destinationURLError)
	}

	if pushError := pipeline.runPushStage(executionContext, slug, sourceURL, mirrorPath, destinationURL); pushError != nil {
		return pipeline.stageFailure(stageNamePushConstant, slug, pushError)
	}

	pipeline.runVerificationStage(executionContext, descriptor, slug, mirrorPath, destinationURL)
	pipeline.logger.Info(repositoryMigratedLogMessageConstant, zap.String(logFieldSlugPipelineConstant, slug))
	return nil
}

// runDestinationPreCheck terminates the pipeline early when the destination
// already holds references. A destination whose only reference is an
// auto-initialized default branch still counts as non-empty and is skipped.
func (pipeline *Pipeline) runDestinationPreCheck(executionContext context.Context, slug string) (bool, error) {
	if !pipeline.settings.SkipExisting {
		return false, nil
	}
	alreadyPushed, pushedReadError := pipeline.progressStore.Has(slug, progress.MarkerPushed)
	if pushedReadError != nil {
		return false, pushedReadError
	}
	if alreadyPushed {
		// This run populated the destination earlier; re-verify instead of skipping.
		return false, nil
	}

	destinationMetadata, destinationExists, getError := pipeline.destinationClient.GetRepository(executionContext, slug)
	if getError != nil {
		return false, getError
	}
	if !destinationExists || len(destinationMetadata.CloneURL) == 0 {
		return false, nil
	}

	preCheckURL, preCheckURLError := gitrepo.WithCredentials(destinationMetadata.CloneURL, destinationCredentialUserConstant, pipeline.settings.DestinationToken)
	if preCheckURLError != nil {
		return false, preCheckURLError
	}
	remoteReferences, listError := pipeline.sourceControl.ListRemoteReferences(executionContext, preCheckURL)
	if listError != nil {
		return false, listError
	}
	if len(remoteReferences) == 0 {
		return false, nil
	}

	pipeline.logger.Warn(
		skippingExistingLogMessageConstant,
		zap.String(logFieldSlugPipelineConstant, slug),
		zap.Int(logFieldReferenceCountConstant, len(remoteReferences)),
	)
	if appendError := pipeline.progressStore.Append(slug, progress.MarkerSkippedExisting); appendError != nil {
		return false, appendError
	}
	return true, nil
}

func (pipeline *Pipeline) runRewriteStage(executionContext context.Context, descriptor RepositoryDescriptor, slug string, sourceURL string, mirrorPath string, workingCopyPath string) error {
	alreadyRewritten, rewriteReadError := pipeline.progressStore.Has(slug, progress.MarkerLFSMigrated)
	if rewriteReadError != nil {
		return rewriteReadError
	}
	if alreadyRewritten {
		return nil
	}

	if createError := pipeline.sourceControl.CreateWorkingCopy(executionContext, mirrorPath, workingCopyPath); createError != nil {
		return createError
	}

	rewriteRequired, classificationError := pipeline.classifier.HasLargeObjects(executionContext, workingCopyPath, pipeline.settings.ThresholdBytes)
	if classificationError != nil {
		return classificationError
	}
	if rewriteRequired {
		migrateError := pipeline.rewriter.Migrate(executionContext, workingCopyPath, largeobjects.RewriteOptions{
			ThresholdBytes:      pipeline.settings.ThresholdBytes,
			SourceLFSRemoteURL:  sourceURL,
			TransferConcurrency: pipeline.settings.TransferConcurrency,
		})
		if migrateError != nil {
			return migrateError
		}
	} else {
		pipeline.logger.Info(rewriteUnnecessaryLogMessageConstant, zap.String(logFieldSlugPipelineConstant, slug))
	}

	if pipeline.settings.RewriteLinks {
		linkRewriteError := pipeline.rewriter.RewriteLinks(executionContext, workingCopyPath, largeobjects.LinkRewriteOptions{
			DefaultBranch: descriptor.DefaultBranch,
			MapLinkURL:    pipeline.mapLinkURL,
		})
		if linkRewriteError != nil {
			pipeline.logger.Warn(linkRewriteFailedLogMessageConstant, zap.String(logFieldSlugPipelineConstant, slug), zap.Error(linkRewriteError))
		}
	}

	// The (possibly rewritten) working copy overwrites the mirror's
	// references; this is how rewritten history becomes canonical.
	if pushError := pipeline.sourceControl.PushMirror(executionContext, workingCopyPath, mirrorPath); pushError != nil {
		return pushError
	}
	if removeError := pipeline.sourceControl.RemoveWorkingCopy(workingCopyPath); removeError != nil {
		pipeline.logger.Warn(workingCopyCleanupLogMessageConstant, zap.String(logFieldSlugPipelineConstant, slug), zap.Error(removeError))
	}
	return pipeline.progressStore.Append(slug, progress.MarkerLFSMigrated)
}

func (pipeline *Pipeline) runPushStage(executionContext context.Context, slug string, sourceURL string, mirrorPath string, destinationURL string) error {
	alreadyPushed, pushedReadError := pipeline.progressStore.Has(slug, progress.MarkerPushed)
	if pushedReadError != nil {
		return pushedReadError
	}
	if alreadyPushed {
		return nil
	}

	if pushError := pipeline.sourceControl.PushMirror(executionContext, mirrorPath, destinationURL); pushError != nil {
		return pushError
	}

	if fetchError := pipeline.sourceControl.FetchLargeObjects(executionContext, mirrorPath, sourceURL); fetchError != nil {
		pipeline.logger.Warn(largeObjectFetchFailedLogMessageConstant, zap.String(logFieldSlugPipelineConstant, slug), zap.Error(fetchError))
	} else if lfsPushError := pipeline.sourceControl.PushLargeObjects(executionContext, mirrorPath, destinationURL, pipeline.settings.TransferConcurrency); lfsPushError != nil {
		pipeline.logger.Warn(largeObjectPushFailedLogMessageConstant, zap.String(logFieldSlugPipelineConstant, slug), zap.Error(lfsPushError))
	}

	return pipeline.progressStore.Append(slug, progress.MarkerPushed)
}

func (pipeline *Pipeline) runVerificationStage(executionContext context.Context, descriptor RepositoryDescriptor, slug string, mirrorPath string, destinationURL string) {
	verificationReport, verificationError := pipeline.verifier.Verify(executionContext, mirrorPath, destinationURL)
	switch {
	case verificationError != nil:
		pipeline.logger.Warn(verificationFailedLogMessageConstant, zap.String(logFieldSlugPipelineConstant, slug), zap.Error(verificationError))
	case !verificationReport.Consistent():
		pipeline.logger.Warn(correctivePushLogMessageConstant, zap.String(logFieldSlugPipelineConstant, slug))
		if correctiveError := pipeline.sourceControl.PushLargeObjects(executionContext, mirrorPath, destinationURL, pipeline.settings.TransferConcurrency); correctiveError != nil {
			pipeline.logger.Warn(largeObjectPushFailedLogMessageConstant, zap.String(logFieldSlugPipelineConstant, slug), zap.Error(correctiveError))
		}
		followUpReport, followUpError := pipeline.verifier.Verify(executionContext, mirrorPath, destinationURL)
		if followUpError != nil {
			pipeline.logger.Warn(verificationFailedLogMessageConstant, zap.String(logFieldSlugPipelineConstant, slug), zap.Error(followUpError))
		} else if !followUpReport.Consistent() {
			pipeline.logger.Warn(knownDivergenceLogMessageConstant, zap.String(logFieldSlugPipelineConstant, slug))
		}
	}

	// References definitely exist on the destination now; re-apply the hint.
	if branchError := pipeline.destinationClient.SetDefaultBranch(executionContext, slug, descriptor.DefaultBranch); branchError != nil {
		pipeline.logger.Warn(defaultBranchFailedLogMessageConstant, zap.String(logFieldSlugPipelineConstant, slug), zap.Error(branchError))
	}
}

// mapLinkURL translates a source link URL to its destination counterpart,
// returning an empty string when the URL should stay untouched.
func (pipeline *Pipeline) mapLinkURL(sourceLinkURL string) string {
	parsedRemote, parseError := gitrepo.ParseRemoteURL(sourceLinkURL)
	if parseError != nil {
		return ""
	}
	destinationRemote, formatError := gitrepo.FormatRemoteURL(gitrepo.RemoteURL{
		Protocol:       gitrepo.RemoteProtocolHTTPS,
		Host:           pipeline.settings.DestinationHost,
		NamespacedPath: pipeline.settings.DestinationOrganization + "/" + Slugify(parsedRemote.NamespacedPath),
	})
	if formatError != nil {
		return ""
	}
	return destinationRemote
}

func (pipeline *Pipeline) stageFailure(stageName string, slug string, failure error) error {
	return fmt.Errorf(pipelineStageFailureTemplateConstant, slug, stageName, failure)
}
