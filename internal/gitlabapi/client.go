// Package gitlabapi wraps the source platform API: paginated project
// discovery, single-project lookup, and project archiving.
package gitlabapi

import (
	"context"
	"fmt"

	gitlab "github.com/xanzy/go-gitlab"
	"go.uber.org/zap"

	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/migration"
	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/retry"
)

const (
	// DefaultPageSizeConstant is the project page size used when none is configured.
	DefaultPageSizeConstant = 100

	orderByIdentifierConstant            = "id"
	sortAscendingConstant                = "asc"
	keysetPaginationModeConstant         = "keyset"
	listPageOperationTemplateConstant    = "list group %s projects page %d"
	lookupOperationTemplateConstant      = "look up project %s"
	archiveOperationTemplateConstant     = "archive project %s"
	clientCreationFailureTemplate        = "create gitlab client: %w"
	listingFailureTemplateConstant       = "list projects for group %s: %w"
	lookupFailureTemplateConstant        = "look up project %s: %w"
	archiveFailureTemplateConstant       = "archive project %s: %w"
	loggerRequiredMessageConstant        = "gitlab client requires logger"
	retryExecutorRequiredMessageConstant = "gitlab client requires retry executor"
	baseURLRequiredMessageConstant       = "gitlab client requires a base URL"
	pageFetchedLogMessageConstant        = "fetched project page"
	logFieldGroupConstant                = "group"
	logFieldPageNumberConstant           = "page"
	logFieldPageItemCountConstant        = "items"
	logFieldTotalItemCountConstant       = "total"
)

// ClientDependencies collects the collaborators required by Client.
type ClientDependencies struct {
	Logger        *zap.Logger
	RetryExecutor *retry.Executor
	BaseURL       string
	Token         string
	PageSize      int
}

// Client exposes the subset of the source platform API the migrator depends on.
type Client struct {
	logger        *zap.Logger
	gitlabClient  *gitlab.Client
	retryExecutor *retry.Executor
	pageSize      int
}

// NewClient validates dependencies and constructs a Client.
func NewClient(dependencies ClientDependencies) (*Client, error) {
	if dependencies.Logger == nil {
		return nil, fmt.Errorf(loggerRequiredMessageConstant)
	}
	if dependencies.RetryExecutor == nil {
		return nil, fmt.Errorf(retryExecutorRequiredMessageConstant)
	}
	if len(dependencies.BaseURL) == 0 {
		return nil, fmt.Errorf(baseURLRequiredMessageConstant)
	}
	if dependencies.PageSize <= 0 {
		dependencies.PageSize = DefaultPageSizeConstant
	}

	gitlabClient, creationError := gitlab.NewClient(dependencies.Token, gitlab.WithBaseURL(dependencies.BaseURL))
	if creationError != nil {
		return nil, fmt.Errorf(clientCreationFailureTemplate, creationError)
	}

	return &Client{
		logger:        dependencies.Logger,
		gitlabClient:  gitlabClient,
		retryExecutor: dependencies.RetryExecutor,
		pageSize:      dependencies.PageSize,
	}, nil
}

// ListGroupProjects enumerates every project under the group and its
// sub-groups, ordered by ascending identifier. Cursor pagination is preferred;
// when the response carries no cursor pointer the client falls back to
// numbered pages. A page fetch that fails after retry exhaustion aborts the
// whole listing.
func (client *Client) ListGroupProjects(executionContext context.Context, groupIdentity string, includeArchived bool) ([]migration.RepositoryDescriptor, error) {
	listOptions := &gitlab.ListGroupProjectsOptions{
		ListOptions: gitlab.ListOptions{
			PerPage:    client.pageSize,
			OrderBy:    orderByIdentifierConstant,
			Sort:       sortAscendingConstant,
			Pagination: keysetPaginationModeConstant,
		},
		IncludeSubGroups: gitlab.Ptr(true),
	}
	if !includeArchived {
		listOptions.Archived = gitlab.Ptr(false)
	}

	collectedDescriptors := []migration.RepositoryDescriptor{}
	requestOptions := []gitlab.RequestOptionFunc{gitlab.WithContext(executionContext)}
	pageNumber := 1

	for {
		var pageProjects []*gitlab.Project
		var pageResponse *gitlab.Response

		operationName := fmt.Sprintf(listPageOperationTemplateConstant, groupIdentity, pageNumber)
		pageFetchError := client.retryExecutor.Execute(executionContext, operationName, func(context.Context) error {
			var requestError error
			pageProjects, pageResponse, requestError = client.gitlabClient.Groups.ListGroupProjects(groupIdentity, listOptions, requestOptions...)
			return requestError
		})
		if pageFetchError != nil {
			return nil, fmt.Errorf(listingFailureTemplateConstant, groupIdentity, pageFetchError)
		}

		for _, pageProject := range pageProjects {
			collectedDescriptors = append(collectedDescriptors, convertProject(pageProject))
		}
		client.logger.Debug(
			pageFetchedLogMessageConstant,
			zap.String(logFieldGroupConstant, groupIdentity),
			zap.Int(logFieldPageNumberConstant, pageNumber),
			zap.Int(logFieldPageItemCountConstant, len(pageProjects)),
			zap.Int(logFieldTotalItemCountConstant, len(collectedDescriptors)),
		)

		switch {
		case len(pageResponse.NextLink) > 0:
			requestOptions = []gitlab.RequestOptionFunc{
				gitlab.WithContext(executionContext),
				gitlab.WithKeysetPaginationParameters(pageResponse.NextLink),
			}
		case pageResponse.NextPage > 0:
			listOptions.Pagination = ""
			listOptions.Page = pageResponse.NextPage
			requestOptions = []gitlab.RequestOptionFunc{gitlab.WithContext(executionContext)}
		default:
			return collectedDescriptors, nil
		}
		pageNumber++
	}
}

// GetProject looks up a single project by numeric identifier or namespaced path.
func (client *Client) GetProject(executionContext context.Context, projectIdentity string) (migration.RepositoryDescriptor, error) {
	var fetchedProject *gitlab.Project

	operationName := fmt.Sprintf(lookupOperationTemplateConstant, projectIdentity)
	lookupError := client.retryExecutor.Execute(executionContext, operationName, func(context.Context) error {
		var requestError error
		fetchedProject, _, requestError = client.gitlabClient.Projects.GetProject(projectIdentity, nil, gitlab.WithContext(executionContext))
		return requestError
	})
	if lookupError != nil {
		return migration.RepositoryDescriptor{}, fmt.Errorf(lookupFailureTemplateConstant, projectIdentity, lookupError)
	}
	return convertProject(fetchedProject), nil
}

// ArchiveProject archives the supplied project on the source platform.
func (client *Client) ArchiveProject(executionContext context.Context, projectIdentity string) error {
	operationName := fmt.Sprintf(archiveOperationTemplateConstant, projectIdentity)
	archiveError := client.retryExecutor.Execute(executionContext, operationName, func(context.Context) error {
		_, _, requestError := client.gitlabClient.Projects.ArchiveProject(projectIdentity, gitlab.WithContext(executionContext))
		return requestError
	})
	if archiveError != nil {
		return fmt.Errorf(archiveFailureTemplateConstant, projectIdentity, archiveError)
	}
	return nil
}

func convertProject(sourceProject *gitlab.Project) migration.RepositoryDescriptor {
	return migration.RepositoryDescriptor{
		Identifier:        sourceProject.ID,
		Name:              sourceProject.Name,
		PathWithNamespace: sourceProject.PathWithNamespace,
		CloneURL:          sourceProject.HTTPURLToRepo,
		Description:       sourceProject.Description,
		DefaultBranch:     sourceProject.DefaultBranch,
		Archived:          sourceProject.Archived,
	}
}
