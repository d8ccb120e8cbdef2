package migration

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/gitrepo"
)

const (
	workspaceDirectoryPermissionsConstant = 0o755

	serviceRequiresLoggerMessageConstant        = "migration service requires logger"
	serviceRequiresListerMessageConstant        = "migration service requires repository lister"
	serviceRequiresFactoryMessageConstant       = "migration service requires pipeline factory"
	discoveryFailureTemplateConstant            = "repository discovery failed: %w"
	singleRepositoryFailureTemplateConstant     = "unable to resolve repository %s: %w"
	workspaceFailureTemplateConstant            = "unable to prepare workspace directory %s: %w"
	discoveredRepositoriesLogMessageConstant    = "discovered repositories"
	manifestWrittenLogMessageConstant           = "run manifest written"
	noRepositoriesLogMessageConstant            = "no repositories to migrate"
	runCompletedLogMessageConstant              = "migration run completed"
	repositoryLoggerFailureLogMessageConstant   = "unable to open repository log, using run logger"
	pipelineConstructionFailureTemplateConstant = "unable to construct pipeline for %s: %w"

	logFieldGroupConstant        = "group"
	logFieldCountConstant        = "count"
	logFieldManifestPathConstant = "manifest_path"
	logFieldSucceededConstant    = "succeeded"
	logFieldFailedConstant       = "failed"
	logFieldSkippedFlagConstant  = "dry_run"
)

// RepositoryLister discovers repositories on the source host.
type RepositoryLister interface {
	ListGroupProjects(executionContext context.Context, groupIdentity string, includeArchived bool) ([]RepositoryDescriptor, error)
	GetProject(executionContext context.Context, projectIdentity string) (RepositoryDescriptor, error)
}

// PipelineFactory builds a pipeline bound to a per-repository logger.
type PipelineFactory func(repositoryLogger *zap.Logger) (*Pipeline, error)

// ServiceDependencies collects the collaborators required by Service.
type ServiceDependencies struct {
	Logger           *zap.Logger
	RepositoryLister RepositoryLister
	PipelineFactory  PipelineFactory
}

// Service orchestrates a whole migration run from discovery to summary.
type Service struct {
	logger           *zap.Logger
	repositoryLister RepositoryLister
	pipelineFactory  PipelineFactory
}

// NewService validates dependencies and constructs a Service.
func NewService(dependencies ServiceDependencies) (*Service, error) {
	switch {
	case dependencies.Logger == nil:
		return nil, fmt.Errorf(serviceRequiresLoggerMessageConstant)
	case dependencies.RepositoryLister == nil:
		return nil, fmt.Errorf(serviceRequiresListerMessageConstant)
	case dependencies.PipelineFactory == nil:
		return nil, fmt.Errorf(serviceRequiresFactoryMessageConstant)
	}
	return &Service{
		logger:           dependencies.Logger,
		repositoryLister: dependencies.RepositoryLister,
		pipelineFactory:  dependencies.PipelineFactory,
	}, nil
}

// Migrate discovers repositories in the source group and runs each through
// the transfer pipeline. Per-repository failures are logged and counted, not
// returned; only discovery and workspace failures abort the run.
func (service *Service) Migrate(executionContext context.Context, groupIdentity string, singleRepositoryURL string, configuration Configuration) error {
	descriptors, discoveryError := service.discoverRepositories(executionContext, groupIdentity, singleRepositoryURL, configuration)
	if discoveryError != nil {
		return discoveryError
	}
	if uniquenessError := VerifySlugUniqueness(descriptors); uniquenessError != nil {
		return uniquenessError
	}
	service.logger.Info(
		discoveredRepositoriesLogMessageConstant,
		zap.String(logFieldGroupConstant, groupIdentity),
		zap.Int(logFieldCountConstant, len(descriptors)),
	)
	if len(descriptors) == 0 {
		service.logger.Info(noRepositoriesLogMessageConstant, zap.String(logFieldGroupConstant, groupIdentity))
		return nil
	}

	if workspaceError := service.prepareWorkspace(configuration); workspaceError != nil {
		return workspaceError
	}

	manifest := BuildManifest(groupIdentity, configuration.DestinationOrganization, descriptors, time.Now())
	if manifestError := WriteManifest(configuration.ManifestPath(), manifest); manifestError != nil {
		return manifestError
	}
	service.logger.Info(manifestWrittenLogMessageConstant, zap.String(logFieldManifestPathConstant, configuration.ManifestPath()))

	scheduler, schedulerError := NewScheduler(service.logger, configuration.PipelineConcurrency, service.migrateRepository(configuration))
	if schedulerError != nil {
		return schedulerError
	}
	failures := scheduler.Run(executionContext, descriptors)

	service.logger.Info(
		runCompletedLogMessageConstant,
		zap.Int(logFieldSucceededConstant, len(descriptors)-len(failures)),
		zap.Int(logFieldFailedConstant, len(failures)),
		zap.Bool(logFieldSkippedFlagConstant, configuration.DryRun),
	)
	return nil
}

func (service *Service) migrateRepository(configuration Configuration) WorkerFunction {
	return func(executionContext context.Context, descriptor RepositoryDescriptor) error {
		repositoryLogger, closeRepositoryLogger, loggerError := NewRepositoryLogger(service.logger, configuration.LogsDirectory(), descriptor.Slug())
		if loggerError != nil {
			service.logger.Warn(repositoryLoggerFailureLogMessageConstant, zap.Error(loggerError))
			repositoryLogger = service.logger
			closeRepositoryLogger = func() {}
		}
		defer closeRepositoryLogger()

		pipeline, pipelineError := service.pipelineFactory(repositoryLogger)
		if pipelineError != nil {
			return fmt.Errorf(pipelineConstructionFailureTemplateConstant, descriptor.Slug(), pipelineError)
		}
		return pipeline.Run(executionContext, descriptor)
	}
}

func (service *Service) discoverRepositories(executionContext context.Context, groupIdentity string, singleRepositoryURL string, configuration Configuration) ([]RepositoryDescriptor, error) {
	if len(singleRepositoryURL) > 0 {
		parsedRemote, parseError := gitrepo.ParseRemoteURL(singleRepositoryURL)
		if parseError != nil {
			return nil, fmt.Errorf(singleRepositoryFailureTemplateConstant, singleRepositoryURL, parseError)
		}
		descriptor, lookupError := service.repositoryLister.GetProject(executionContext, parsedRemote.NamespacedPath)
		if lookupError != nil {
			return nil, fmt.Errorf(singleRepositoryFailureTemplateConstant, singleRepositoryURL, lookupError)
		}
		return []RepositoryDescriptor{descriptor}, nil
	}

	descriptors, listError := service.repositoryLister.ListGroupProjects(executionContext, groupIdentity, configuration.IncludeArchived)
	if listError != nil {
		return nil, fmt.Errorf(discoveryFailureTemplateConstant, listError)
	}
	return descriptors, nil
}

func (service *Service) prepareWorkspace(configuration Configuration) error {
	workspaceDirectories := []string{
		configuration.ExpandedWorkRoot(),
		configuration.MirrorsDirectory(),
		configuration.RewriteDirectory(),
		configuration.StateDirectory(),
		configuration.LogsDirectory(),
	}
	for _, workspaceDirectory := range workspaceDirectories {
		if directoryError := os.MkdirAll(workspaceDirectory, workspaceDirectoryPermissionsConstant); directoryError != nil {
			return fmt.Errorf(workspaceFailureTemplateConstant, workspaceDirectory, directoryError)
		}
	}
	return nil
}
