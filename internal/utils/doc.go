// Package utils holds the shared configuration and logging plumbing behind
// the org-migrate CLI: a Viper-backed ConfigurationLoader that layers
// embedded defaults, configuration files, and ORG_MIGRATE_* environment
// overrides, and a LoggerFactory that builds the zap logger every command
// and per-repository log file derives from.
package utils
