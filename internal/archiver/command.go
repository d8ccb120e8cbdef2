package archiver

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/gitlabapi"
	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/migration"
	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/retry"
)

const (
	archiveCommandUseConstant   = "archive <source-group>"
	archiveCommandShortConstant = "Archive every migrated repository on the source host"
	archiveCommandLongConstant  = "archive marks every repository of the group and its subgroups as archived on the " +
		"source host so contributors stop pushing there. Repositories that are already archived are left alone."

	configurationInvalidTemplateConstant = "invalid archive configuration: %w"
	missingConfigurationTemplateConstant = "configuration value %s is required"
	archiveFailuresTemplateConstant      = "%d repositories could not be archived"
	sourceAPIBaseURLKeyConstant          = "source_api_base_url"
	sourceTokenKeyConstant               = "source_token"

	argumentCountConstant = 1
)

// CommandBuilder assembles the archive command.
type CommandBuilder struct {
	LoggerProvider        func() *zap.Logger
	ConfigurationProvider func() migration.Configuration
}

// Build constructs the archive command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   archiveCommandUseConstant,
		Short: archiveCommandShortConstant,
		Long:  archiveCommandLongConstant,
		Args:  cobra.ExactArgs(argumentCountConstant),
		RunE: func(command *cobra.Command, arguments []string) error {
			return builder.run(command, arguments)
		},
	}
	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	logger := builder.resolveLogger()
	configuration := builder.resolveConfiguration()
	if len(configuration.SourceAPIBaseURL) == 0 {
		return fmt.Errorf(configurationInvalidTemplateConstant, fmt.Errorf(missingConfigurationTemplateConstant, sourceAPIBaseURLKeyConstant))
	}
	if len(configuration.SourceToken) == 0 {
		return fmt.Errorf(configurationInvalidTemplateConstant, fmt.Errorf(missingConfigurationTemplateConstant, sourceTokenKeyConstant))
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
	service, serviceError := NewService(ServiceDependencies{Logger: logger, SourcePlatform: sourceClient})
	if serviceError != nil {
		return serviceError
	}

	failedCount, archiveError := service.ArchiveGroup(command.Context(), arguments[0], configuration.DryRun)
	if archiveError != nil {
		return archiveError
	}
	if failedCount > 0 {
		return fmt.Errorf(archiveFailuresTemplateConstant, failedCount)
	}
	return nil
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
