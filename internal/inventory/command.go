package inventory

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/gitlabapi"
	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/migration"
	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/retry"
)

const (
	inventoryCommandUseConstant   = "inventory <source-group>"
	inventoryCommandShortConstant = "List every repository a migration of the group would cover"
	inventoryCommandLongConstant  = "inventory walks the group and all of its subgroups and prints the manifest a " +
		"migration run would record, without cloning or pushing anything."

	configurationInvalidTemplateConstant = "invalid inventory configuration: %w"
	missingConfigurationTemplateConstant = "configuration value %s is required"
	sourceAPIBaseURLKeyConstant          = "source_api_base_url"
	sourceTokenKeyConstant               = "source_token"

	argumentCountConstant = 1
)

// CommandBuilder assembles the inventory command.
type CommandBuilder struct {
	LoggerProvider        func() *zap.Logger
	ConfigurationProvider func() migration.Configuration
}

// Build constructs the inventory command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   inventoryCommandUseConstant,
		Short: inventoryCommandShortConstant,
		Long:  inventoryCommandLongConstant,
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
	service, serviceError := NewService(ServiceDependencies{Logger: logger, RepositoryLister: sourceClient})
	if serviceError != nil {
		return serviceError
	}
	return service.WriteInventory(command.Context(), command.OutOrStdout(), arguments[0], configuration.DestinationOrganization, configuration.IncludeArchived)
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
