package migration

import (
	"fmt"
	"path/filepath"

	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/bytesize"
	pathutils "github.com/schauderb/gitlab-to-github-full-org-migration/internal/utils/path"
)

const (
	configurationSourceAPIBaseURLKeyConstant      = "source_api_base_url"
	configurationSourceTokenKeyConstant           = "source_token"
	configurationDestinationAPIBaseURLKeyConstant = "destination_api_base_url"
	configurationDestinationTokenKeyConstant      = "destination_token"
	configurationDestinationOrgKeyConstant        = "destination_organization"
	configurationIncludeArchivedKeyConstant       = "include_archived"
	configurationThresholdKeyConstant             = "large_object_threshold"
	configurationPipelineConcurrencyKeyConstant   = "pipeline_concurrency"
	configurationTransferConcurrencyKeyConstant   = "transfer_concurrency"
	configurationSkipExistingKeyConstant          = "skip_existing"
	configurationRewriteLinksKeyConstant          = "rewrite_links"
	configurationDryRunKeyConstant                = "dry_run"
	configurationWorkRootKeyConstant              = "work_root"
	configurationPageSizeKeyConstant              = "page_size"

	defaultDestinationAPIBaseURLConstant = "https://api.github.com/"
	defaultLargeObjectThresholdConstant  = "100MB"
	defaultPipelineConcurrencyConstant   = 3
	defaultTransferConcurrencyConstant   = 4
	defaultWorkRootConstant              = "./migration-workspace"
	defaultPageSizeConstant              = 100

	mirrorsDirectoryNameConstant = "mirrors"
	rewriteDirectoryNameConstant = "rewrite"
	stateDirectoryNameConstant   = "state"
	logsDirectoryNameConstant    = "logs"
	manifestFileNameConstant     = "manifest.yaml"

	missingConfigurationTemplateConstant    = "configuration value %s is required"
	invalidThresholdMessageTemplateConstant = "invalid large object threshold: %w"
	invalidConcurrencyTemplateConstant      = "configuration value %s must be positive"
)

// Configuration holds every tunable of a migration run.
type Configuration struct {
	SourceAPIBaseURL        string `mapstructure:"source_api_base_url"`
	SourceToken             string `mapstructure:"source_token"`
	DestinationAPIBaseURL   string `mapstructure:"destination_api_base_url"`
	DestinationToken        string `mapstructure:"destination_token"`
	DestinationOrganization string `mapstructure:"destination_organization"`
	IncludeArchived         bool   `mapstructure:"include_archived"`
	LargeObjectThreshold    string `mapstructure:"large_object_threshold"`
	PipelineConcurrency     int    `mapstructure:"pipeline_concurrency"`
	TransferConcurrency     int    `mapstructure:"transfer_concurrency"`
	SkipExisting            bool   `mapstructure:"skip_existing"`
	RewriteLinks            bool   `mapstructure:"rewrite_links"`
	DryRun                  bool   `mapstructure:"dry_run"`
	WorkRoot                string `mapstructure:"work_root"`
	PageSize                int    `mapstructure:"page_size"`
}

// DefaultConfiguration returns the built-in defaults for a migration run.
func DefaultConfiguration() Configuration {
	return Configuration{
		DestinationAPIBaseURL: defaultDestinationAPIBaseURLConstant,
		IncludeArchived:       true,
		LargeObjectThreshold:  defaultLargeObjectThresholdConstant,
		PipelineConcurrency:   defaultPipelineConcurrencyConstant,
		TransferConcurrency:   defaultTransferConcurrencyConstant,
		SkipExisting:          true,
		RewriteLinks:          false,
		DryRun:                false,
		WorkRoot:              defaultWorkRootConstant,
		PageSize:              defaultPageSizeConstant,
	}
}

// DefaultConfigurationValues produces Viper defaults for the migrate command.
// Required keys carry empty-string defaults so Viper registers them and
// AutomaticEnv can resolve their ORG_MIGRATE_MIGRATE_* overrides.
func DefaultConfigurationValues(rootKey string) map[string]any {
	defaults := DefaultConfiguration()
	return map[string]any{
		rootKey + "." + configurationSourceAPIBaseURLKeyConstant:      "",
		rootKey + "." + configurationSourceTokenKeyConstant:           "",
		rootKey + "." + configurationDestinationTokenKeyConstant:      "",
		rootKey + "." + configurationDestinationOrgKeyConstant:        "",
		rootKey + "." + configurationDestinationAPIBaseURLKeyConstant: defaults.DestinationAPIBaseURL,
		rootKey + "." + configurationIncludeArchivedKeyConstant:       defaults.IncludeArchived,
		rootKey + "." + configurationThresholdKeyConstant:             defaults.LargeObjectThreshold,
		rootKey + "." + configurationPipelineConcurrencyKeyConstant:   defaults.PipelineConcurrency,
		rootKey + "." + configurationTransferConcurrencyKeyConstant:   defaults.TransferConcurrency,
		rootKey + "." + configurationSkipExistingKeyConstant:          defaults.SkipExisting,
		rootKey + "." + configurationRewriteLinksKeyConstant:          defaults.RewriteLinks,
		rootKey + "." + configurationDryRunKeyConstant:                defaults.DryRun,
		rootKey + "." + configurationWorkRootKeyConstant:              defaults.WorkRoot,
		rootKey + "." + configurationPageSizeKeyConstant:              defaults.PageSize,
	}
}

// Validate verifies required values and numeric ranges.
func (configuration Configuration) Validate() error {
	requiredValues := []struct {
		key   string
		value string
	}{
		{key: configurationSourceAPIBaseURLKeyConstant, value: configuration.SourceAPIBaseURL},
		{key: configurationSourceTokenKeyConstant, value: configuration.SourceToken},
		{key: configurationDestinationTokenKeyConstant, value: configuration.DestinationToken},
		{key: configurationDestinationOrgKeyConstant, value: configuration.DestinationOrganization},
	}
	for _, requiredValue := range requiredValues {
		if len(requiredValue.value) == 0 {
			return fmt.Errorf(missingConfigurationTemplateConstant, requiredValue.key)
		}
	}
	if _, thresholdError := configuration.ThresholdBytes(); thresholdError != nil {
		return thresholdError
	}
	if configuration.PipelineConcurrency <= 0 {
		return fmt.Errorf(invalidConcurrencyTemplateConstant, configurationPipelineConcurrencyKeyConstant)
	}
	if configuration.TransferConcurrency <= 0 {
		return fmt.Errorf(invalidConcurrencyTemplateConstant, configurationTransferConcurrencyKeyConstant)
	}
	if configuration.PageSize <= 0 {
		return fmt.Errorf(invalidConcurrencyTemplateConstant, configurationPageSizeKeyConstant)
	}
	return nil
}

// ThresholdBytes parses the configured large object threshold.
func (configuration Configuration) ThresholdBytes() (int64, error) {
	thresholdBytes, parseError := bytesize.ParseBytes(configuration.LargeObjectThreshold)
	if parseError != nil {
		return 0, fmt.Errorf(invalidThresholdMessageTemplateConstant, parseError)
	}
	return thresholdBytes, nil
}

// ExpandedWorkRoot resolves a leading tilde in the configured work root.
func (configuration Configuration) ExpandedWorkRoot() string {
	return pathutils.NewHomeExpander().Expand(configuration.WorkRoot)
}

// MirrorsDirectory returns the directory holding bare mirrors.
func (configuration Configuration) MirrorsDirectory() string {
	return filepath.Join(configuration.ExpandedWorkRoot(), mirrorsDirectoryNameConstant)
}

// RewriteDirectory returns the directory holding temporary working copies.
func (configuration Configuration) RewriteDirectory() string {
	return filepath.Join(configuration.ExpandedWorkRoot(), rewriteDirectoryNameConstant)
}

// StateDirectory returns the directory holding per-repository progress files.
func (configuration Configuration) StateDirectory() string {
	return filepath.Join(configuration.ExpandedWorkRoot(), stateDirectoryNameConstant)
}

// LogsDirectory returns the directory holding per-repository log files.
func (configuration Configuration) LogsDirectory() string {
	return filepath.Join(configuration.ExpandedWorkRoot(), logsDirectoryNameConstant)
}

// ManifestPath returns the path of the run manifest.
func (configuration Configuration) ManifestPath() string {
	return filepath.Join(configuration.ExpandedWorkRoot(), manifestFileNameConstant)
}
