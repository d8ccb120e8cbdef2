// Package inventory produces a migration manifest without touching any
// repository contents, so operators can review the scope of a run first.
package inventory

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/migration"
)

const (
	serviceRequiresLoggerMessageConstant = "inventory service requires logger"
	serviceRequiresListerMessageConstant = "inventory service requires repository lister"
	listingFailureTemplateConstant       = "repository listing failed: %w"
	encodingFailureTemplateConstant      = "unable to encode inventory: %w"
	inventoryWrittenLogMessageConstant   = "inventory written"

	logFieldGroupConstant           = "group"
	logFieldRepositoryCountConstant = "repository_count"
)

// RepositoryLister discovers repositories on the source host.
type RepositoryLister interface {
	ListGroupProjects(executionContext context.Context, groupIdentity string, includeArchived bool) ([]migration.RepositoryDescriptor, error)
}

// ServiceDependencies collects the collaborators required by Service.
type ServiceDependencies struct {
	Logger           *zap.Logger
	RepositoryLister RepositoryLister
}

// Service lists a group's repositories and renders them as a manifest.
type Service struct {
	logger           *zap.Logger
	repositoryLister RepositoryLister
}

// NewService validates dependencies and constructs a Service.
func NewService(dependencies ServiceDependencies) (*Service, error) {
	if dependencies.Logger == nil {
		return nil, fmt.Errorf(serviceRequiresLoggerMessageConstant)
	}
	if dependencies.RepositoryLister == nil {
		return nil, fmt.Errorf(serviceRequiresListerMessageConstant)
	}
	return &Service{logger: dependencies.Logger, repositoryLister: dependencies.RepositoryLister}, nil
}

// WriteInventory lists every repository of the group and writes the manifest
// as YAML to the given writer.
func (service *Service) WriteInventory(executionContext context.Context, outputWriter io.Writer, groupIdentity string, destinationOrganization string, includeArchived bool) error {
	descriptors, listError := service.repositoryLister.ListGroupProjects(executionContext, groupIdentity, includeArchived)
	if listError != nil {
		return fmt.Errorf(listingFailureTemplateConstant, listError)
	}
	if uniquenessError := migration.VerifySlugUniqueness(descriptors); uniquenessError != nil {
		return uniquenessError
	}

	manifest := migration.BuildManifest(groupIdentity, destinationOrganization, descriptors, time.Now())
	encodedManifest, encodeError := yaml.Marshal(manifest)
	if encodeError != nil {
		return fmt.Errorf(encodingFailureTemplateConstant, encodeError)
	}
	if _, writeError := outputWriter.Write(encodedManifest); writeError != nil {
		return writeError
	}

	service.logger.Info(
		inventoryWrittenLogMessageConstant,
		zap.String(logFieldGroupConstant, groupIdentity),
		zap.Int(logFieldRepositoryCountConstant, len(descriptors)),
	)
	return nil
}
