// Package archiver freezes source repositories after a completed migration
// so contributors stop pushing to the superseded host.
package archiver

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/migration"
)

const (
	serviceRequiresLoggerMessageConstant   = "archiver service requires logger"
	serviceRequiresPlatformMessageConstant = "archiver service requires source platform"
	listingFailureTemplateConstant         = "repository listing failed: %w"
	alreadyArchivedLogMessageConstant      = "repository already archived"
	archiveFailedLogMessageConstant        = "unable to archive repository"
	repositoryArchivedLogMessageConstant   = "repository archived"
	archiveRunCompletedLogMessageConstant  = "archive run completed"
	dryRunArchiveLogMessageConstant        = "dry run: would archive repository"

	logFieldPathConstant     = "path"
	logFieldGroupConstant    = "group"
	logFieldArchivedConstant = "archived"
	logFieldFailedConstant   = "failed"
	logFieldSkippedConstant  = "skipped"
)

// SourcePlatform lists and archives repositories on the source host.
type SourcePlatform interface {
	ListGroupProjects(executionContext context.Context, groupIdentity string, includeArchived bool) ([]migration.RepositoryDescriptor, error)
	ArchiveProject(executionContext context.Context, projectIdentity string) error
}

// ServiceDependencies collects the collaborators required by Service.
type ServiceDependencies struct {
	Logger         *zap.Logger
	SourcePlatform SourcePlatform
}

// Service archives every repository of a group, skipping the ones already
// archived. Individual failures are logged and counted, not fatal.
type Service struct {
	logger         *zap.Logger
	sourcePlatform SourcePlatform
}

// NewService validates dependencies and constructs a Service.
func NewService(dependencies ServiceDependencies) (*Service, error) {
	if dependencies.Logger == nil {
		return nil, fmt.Errorf(serviceRequiresLoggerMessageConstant)
	}
	if dependencies.SourcePlatform == nil {
		return nil, fmt.Errorf(serviceRequiresPlatformMessageConstant)
	}
	return &Service{logger: dependencies.Logger, sourcePlatform: dependencies.SourcePlatform}, nil
}

// ArchiveGroup archives all active repositories of the group and returns the
// number of repositories that could not be archived.
func (service *Service) ArchiveGroup(executionContext context.Context, groupIdentity string, dryRun bool) (int, error) {
	descriptors, listError := service.sourcePlatform.ListGroupProjects(executionContext, groupIdentity, true)
	if listError != nil {
		return 0, fmt.Errorf(listingFailureTemplateConstant, listError)
	}

	archivedCount := 0
	skippedCount := 0
	failedCount := 0
	for _, descriptor := range descriptors {
		if descriptor.Archived {
			service.logger.Info(alreadyArchivedLogMessageConstant, zap.String(logFieldPathConstant, descriptor.PathWithNamespace))
			skippedCount++
			continue
		}
		if dryRun {
			service.logger.Info(dryRunArchiveLogMessageConstant, zap.String(logFieldPathConstant, descriptor.PathWithNamespace))
			skippedCount++
			continue
		}
		if archiveError := service.sourcePlatform.ArchiveProject(executionContext, descriptor.PathWithNamespace); archiveError != nil {
			service.logger.Warn(
				archiveFailedLogMessageConstant,
				zap.String(logFieldPathConstant, descriptor.PathWithNamespace),
				zap.Error(archiveError),
			)
			failedCount++
			continue
		}
		service.logger.Info(repositoryArchivedLogMessageConstant, zap.String(logFieldPathConstant, descriptor.PathWithNamespace))
		archivedCount++
	}

	service.logger.Info(
		archiveRunCompletedLogMessageConstant,
		zap.String(logFieldGroupConstant, groupIdentity),
		zap.Int(logFieldArchivedConstant, archivedCount),
		zap.Int(logFieldSkippedConstant, skippedCount),
		zap.Int(logFieldFailedConstant, failedCount),
	)
	return failedCount, nil
}
