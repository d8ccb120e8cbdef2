package cli

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	migrateCommandNameConstant   = "migrate"
	inventoryCommandNameConstant = "inventory"
	archiveCommandNameConstant   = "archive"
)

func TestNewApplicationRegistersSubcommands(t *testing.T) {
	application := NewApplication()

	registeredNames := map[string]bool{}
	for _, registeredCommand := range application.rootCommand.Commands() {
		registeredNames[registeredCommand.Name()] = true
	}

	for _, expectedName := range []string{migrateCommandNameConstant, inventoryCommandNameConstant, archiveCommandNameConstant} {
		require.True(t, registeredNames[expectedName], "command %s not registered", expectedName)
	}
}

func TestHumanReadableLoggingEnabled(t *testing.T) {
	testCases := []struct {
		name      string
		logFormat string
		expected  bool
	}{
		{name: "console_format", logFormat: "console", expected: true},
		{name: "console_format_mixed_case", logFormat: " Console ", expected: true},
		{name: "structured_format", logFormat: "structured", expected: false},
		{name: "empty_format", logFormat: "", expected: false},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			application := &Application{logger: zap.NewNop()}
			application.configuration.Common.LogFormat = testCase.logFormat
			require.Equal(t, testCase.expected, application.humanReadableLoggingEnabled())
		})
	}
}

func TestInitializeConfigurationAppliesDefaultsAndFlagOverrides(t *testing.T) {
	application := NewApplication()
	application.logLevelFlagValue = "debug"
	require.NoError(t, application.rootCommand.PersistentFlags().Set(logLevelFlagNameConstant, "debug"))

	require.NoError(t, application.initializeConfiguration(application.rootCommand))

	require.Equal(t, "debug", application.configuration.Common.LogLevel)
	require.Equal(t, "https://api.github.com/", application.configuration.Migrate.DestinationAPIBaseURL)
	require.Equal(t, "100MB", application.configuration.Migrate.LargeObjectThreshold)
	require.Equal(t, 3, application.configuration.Migrate.PipelineConcurrency)
	require.True(t, application.configuration.Migrate.SkipExisting)
	require.True(t, application.configuration.Migrate.IncludeArchived)
}

func TestInitializeConfigurationResolvesRequiredValuesFromEnvironment(t *testing.T) {
	t.Setenv("ORG_MIGRATE_MIGRATE_SOURCE_API_BASE_URL", "https://gitlab.example.com/api/v4")
	t.Setenv("ORG_MIGRATE_MIGRATE_SOURCE_TOKEN", "env-source-token")
	t.Setenv("ORG_MIGRATE_MIGRATE_DESTINATION_TOKEN", "env-destination-token")
	t.Setenv("ORG_MIGRATE_MIGRATE_DESTINATION_ORGANIZATION", "env-org")
	t.Setenv("ORG_MIGRATE_MIGRATE_DRY_RUN", "true")

	application := NewApplication()
	require.NoError(t, application.initializeConfiguration(application.rootCommand))

	require.Equal(t, "https://gitlab.example.com/api/v4", application.configuration.Migrate.SourceAPIBaseURL)
	require.Equal(t, "env-source-token", application.configuration.Migrate.SourceToken)
	require.Equal(t, "env-destination-token", application.configuration.Migrate.DestinationToken)
	require.Equal(t, "env-org", application.configuration.Migrate.DestinationOrganization)
	require.True(t, application.configuration.Migrate.DryRun)
	require.NoError(t, application.configuration.Migrate.Validate())
}
