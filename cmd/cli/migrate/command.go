package migratecmd

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/execshell"
	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/githubapi"
	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/gitlabapi"
	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/gitrepo"
	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/largeobjects"
	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/migration"
	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/progress"
	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/retry"
	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/verify"
)

const (
	migrateCommandUseConstant   = "migrate <source-group> [repository-url]"
	migrateCommandShortConstant = "Migrate every repository of a source group to the destination organization"
	migrateCommandLongConstant  = "migrate lists every project of the given group including subgroups, mirrors each " +
		"repository locally, rewrites oversized history into large object storage, provisions the destination " +
		"repository, pushes all references, and verifies the transfer. Passing a repository URL as the second " +
		"argument restricts the run to that single repository."

	defaultPublicDestinationHostConstant = "github.com"

	minimumArgumentCountConstant = 1
	maximumArgumentCountConstant = 2

	configurationInvalidTemplateConstant = "invalid migrate configuration: %w"
	destinationHostFailureConstant       = "unable to determine destination host from %s: %w"
)

// CommandBuilder assembles the migrate command.
type CommandBuilder struct {
	LoggerProvider               func() *zap.Logger
	ConfigurationProvider        func() migration.Configuration
	HumanReadableLoggingProvider func() bool
}

// Build constructs the migrate command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   migrateCommandUseConstant,
		Short: migrateCommandShortConstant,
		Long:  migrateCommandLongConstant,
		Args:  cobra.RangeArgs(minimumArgumentCountConstant, maximumArgumentCountConstant),
		RunE: func(command *cobra.Command, arguments []string) error {
			return builder.run(command, arguments)
		},
	}
	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	logger := builder.resolveLogger()
	configuration := builder.resolveConfiguration()
	if validationError := configuration.Validate(); validationError != nil {
		return fmt.Errorf(configurationInvalidTemplateConstant, validationError)
	}
	thresholdBytes, thresholdError := configuration.ThresholdBytes()
	if thresholdError != nil {
		return fmt.Errorf(configurationInvalidTemplateConstant, thresholdError)
	}
	destinationHost, destinationHostError := resolveDestinationHost(configuration.DestinationAPIBaseURL)
	if destinationHostError != nil {
		return destinationHostError
	}

	retryExecutor, retryError := retry.NewExecutor(logger, retry.ExecutorOptions{})
	if retryError != nil {
		return retryError
	}
	sourceClient, sourceClientError := gitlabapi.NewClient(gitlabapi.ClientDependencies{
		Logger:        logger,
		RetryExecutor: retryExecutor,
		BaseURL:       configuration.SourceAPIBaseURL,
		Token:         configuration.SourceToken,
		PageSize:      configuration.PageSize,
	})
	if sourceClientError != nil {
		return sourceClientError
	}
	destinationClient, destinationClientError := githubapi.NewClient(githubapi.ClientDependencies{
		Logger:        logger,
		RetryExecutor: retryExecutor,
		APIBaseURL:    configuration.DestinationAPIBaseURL,
		Token:         configuration.DestinationToken,
		Organization:  configuration.DestinationOrganization,
	})
	if destinationClientError != nil {
		return destinationClientError
	}
	progressStore, progressStoreError := progress.NewStore(logger, configuration.StateDirectory())
	if progressStoreError != nil {
		return progressStoreError
	}

	pipelineSettings := migration.PipelineSettings{
		MirrorsDirectory:        configuration.MirrorsDirectory(),
		RewriteDirectory:        configuration.RewriteDirectory(),
		SourceToken:             configuration.SourceToken,
		DestinationToken:        configuration.DestinationToken,
		DestinationHost:         destinationHost,
		DestinationOrganization: configuration.DestinationOrganization,
		ThresholdBytes:          thresholdBytes,
		TransferConcurrency:     configuration.TransferConcurrency,
		SkipExisting:            configuration.SkipExisting,
		RewriteLinks:            configuration.RewriteLinks,
		DryRun:                  configuration.DryRun,
	}
	pipelineFactory := builder.newPipelineFactory(destinationClient, progressStore, pipelineSettings)

	service, serviceError := migration.NewService(migration.ServiceDependencies{
		Logger:           logger,
		RepositoryLister: sourceClient,
		PipelineFactory:  pipelineFactory,
	})
	if serviceError != nil {
		return serviceError
	}

	groupIdentity := arguments[0]
	singleRepositoryURL := ""
	if len(arguments) > 1 {
		singleRepositoryURL = arguments[1]
	}
	return service.Migrate(command.Context(), groupIdentity, singleRepositoryURL, configuration)
}

// newPipelineFactory wires one pipeline per repository so every git and
// git-lfs invocation logs through the repository's own logger.
func (builder *CommandBuilder) newPipelineFactory(destinationClient *githubapi.Client, progressStore *progress.Store, settings migration.PipelineSettings) migration.PipelineFactory {
	return func(repositoryLogger *zap.Logger) (*migration.Pipeline, error) {
		shellExecutor, executorError := execshell.NewShellExecutor(repositoryLogger, execshell.NewOSCommandRunner(), builder.resolveHumanReadableLogging())
		if executorError != nil {
			return nil, executorError
		}
		repositoryRetryExecutor, retryError := retry.NewExecutor(repositoryLogger, retry.ExecutorOptions{})
		if retryError != nil {
			return nil, retryError
		}
		repositoryManager, managerError := gitrepo.NewRepositoryManager(gitrepo.RepositoryManagerDependencies{
			Logger:          repositoryLogger,
			CommandExecutor: shellExecutor,
			RetryExecutor:   repositoryRetryExecutor,
		})
		if managerError != nil {
			return nil, managerError
		}
		classifier, classifierError := largeobjects.NewClassifier(largeobjects.ClassifierDependencies{
			Logger:           repositoryLogger,
			ObjectEnumerator: repositoryManager,
		})
		if classifierError != nil {
			return nil, classifierError
		}
		rewriter, rewriterError := largeobjects.NewRewriter(largeobjects.RewriterDependencies{
			Logger:            repositoryLogger,
			RepositoryManager: repositoryManager,
		})
		if rewriterError != nil {
			return nil, rewriterError
		}
		verifier, verifierError := verify.NewVerifier(verify.VerifierDependencies{
			Logger:             repositoryLogger,
			ReferenceInspector: repositoryManager,
		})
		if verifierError != nil {
			return nil, verifierError
		}
		return migration.NewPipeline(migration.PipelineDependencies{
			Logger:            repositoryLogger,
			ProgressStore:     progressStore,
			SourceControl:     repositoryManager,
			Classifier:        classifier,
			Rewriter:          rewriter,
			DestinationClient: destinationClient,
			Verifier:          verifier,
		}, settings)
	}
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider != nil {
		if providedLogger := builder.LoggerProvider(); providedLogger != nil {
			return providedLogger
		}
	}
	return zap.NewNop()
}

func (builder *CommandBuilder) resolveConfiguration() migration.Configuration {
	if builder.ConfigurationProvider != nil {
		return builder.ConfigurationProvider()
	}
	return migration.DefaultConfiguration()
}

func (builder *CommandBuilder) resolveHumanReadableLogging() bool {
	if builder.HumanReadableLoggingProvider != nil {
		return builder.HumanReadableLoggingProvider()
	}
	return false
}

// resolveDestinationHost derives the clone host from the API base URL. The
// public API host maps to the public clone host; an enterprise base URL
// shares its host with the clone endpoints.
func resolveDestinationHost(destinationAPIBaseURL string) (string, error) {
	if len(destinationAPIBaseURL) == 0 || destinationAPIBaseURL == githubapi.DefaultAPIBaseURLConstant {
		return defaultPublicDestinationHostConstant, nil
	}
	parsedBaseURL, parseError := url.Parse(destinationAPIBaseURL)
	if parseError != nil || len(parsedBaseURL.Host) == 0 {
		if parseError == nil {
			parseError = fmt.Errorf("missing host")
		}
		return "", fmt.Errorf(destinationHostFailureConstant, destinationAPIBaseURL, parseError)
	}
	if strings.EqualFold(parsedBaseURL.Host, "api."+defaultPublicDestinationHostConstant) {
		return defaultPublicDestinationHostConstant, nil
	}
	return parsedBaseURL.Host, nil
}
