// Package githubapi wraps the destination platform API: repository existence
// checks, idempotent provisioning, and default-branch enforcement.
package githubapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v61/github"
	"go.uber.org/zap"

	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/retry"
)

const (
	// DefaultAPIBaseURLConstant selects the public destination API when no
	// enterprise base URL is configured.
	DefaultAPIBaseURLConstant = "https://api.github.com/"

	privateVisibilityConstant             = true
	getOperationTemplateConstant          = "get repository %s/%s"
	createOperationTemplateConstant       = "create repository %s/%s"
	defaultBranchOperationTemplate        = "set default branch of %s/%s"
	enterpriseClientFailureTemplate       = "create enterprise client for %s: %w"
	getFailureTemplateConstant            = "get repository %s/%s: %w"
	createFailureTemplateConstant         = "create repository %s/%s: %w"
	defaultBranchFailureTemplateConstant  = "set default branch of %s/%s: %w"
	loggerRequiredMessageConstant         = "github client requires logger"
	retryExecutorRequiredMessageConstant  = "github client requires retry executor"
	organizationRequiredMessageConstant   = "github client requires a destination organization"
	repositoryCreatedLogMessageConstant   = "created destination repository"
	repositoryExistsLogMessageConstant    = "destination repository already exists"
	defaultBranchAppliedLogMessageWording = "applied default branch"
	logFieldRepositoryConstant            = "repository"
	logFieldDefaultBranchConstant         = "default_branch"
)

// RepositoryMetadata is the destination-side view of a repository.
type RepositoryMetadata struct {
	Name          string
	DefaultBranch string
	CloneURL      string
}

// ClientDependencies collects the collaborators required by Client.
type ClientDependencies struct {
	Logger        *zap.Logger
	RetryExecutor *retry.Executor
	APIBaseURL    string
	Token         string
	Organization  string
}

// Client exposes the subset of the destination platform API the migrator depends on.
type Client struct {
	logger        *zap.Logger
	githubClient  *github.Client
	retryExecutor *retry.Executor
	organization  string
}

// NewClient validates dependencies and constructs a Client. A non-default API
// base URL selects enterprise endpoints.
func NewClient(dependencies ClientDependencies) (*Client, error) {
	if dependencies.Logger == nil {
		return nil, fmt.Errorf(loggerRequiredMessageConstant)
	}
	if dependencies.RetryExecutor == nil {
		return nil, fmt.Errorf(retryExecutorRequiredMessageConstant)
	}
	if len(strings.TrimSpace(dependencies.Organization)) == 0 {
		return nil, fmt.Errorf(organizationRequiredMessageConstant)
	}

	githubClient := github.NewClient(nil).WithAuthToken(dependencies.Token)
	if len(dependencies.APIBaseURL) > 0 && dependencies.APIBaseURL != DefaultAPIBaseURLConstant {
		enterpriseClient, enterpriseError := githubClient.WithEnterpriseURLs(dependencies.APIBaseURL, dependencies.APIBaseURL)
		if enterpriseError != nil {
			return nil, fmt.Errorf(enterpriseClientFailureTemplate, dependencies.APIBaseURL, enterpriseError)
		}
		githubClient = enterpriseClient
	}

	return &Client{
		logger:        dependencies.Logger,
		githubClient:  githubClient,
		retryExecutor: dependencies.RetryExecutor,
		organization:  dependencies.Organization,
	}, nil
}

// Organization returns the destination organization the client operates on.
func (client *Client) Organization() string {
	return client.organization
}

// GetRepository fetches destination metadata for the named repository. The
// second return value reports whether the repository exists; a definitive
// not-found response is not retried.
func (client *Client) GetRepository(executionContext context.Context, repositoryName string) (RepositoryMetadata, bool, error) {
	var fetchedRepository *github.Repository
	repositoryFound := false

	operationName := fmt.Sprintf(getOperationTemplateConstant, client.organization, repositoryName)
	getError := client.retryExecutor.Execute(executionContext, operationName, func(context.Context) error {
		repository, response, requestError := client.githubClient.Repositories.Get(executionContext, client.organization, repositoryName)
		if requestError != nil {
			if response != nil && response.StatusCode == http.StatusNotFound {
				repositoryFound = false
				return nil
			}
			return requestError
		}
		fetchedRepository = repository
		repositoryFound = true
		return nil
	})
	if getError != nil {
		return RepositoryMetadata{}, false, fmt.Errorf(getFailureTemplateConstant, client.organization, repositoryName, getError)
	}
	if !repositoryFound {
		return RepositoryMetadata{}, false, nil
	}
	return convertRepository(fetchedRepository), true, nil
}

// EnsureRepository creates the named repository in the destination
// organization when absent and returns its metadata. Creation is private with
// auto-initialization and collaboration features disabled so the first push
// defines the repository's content.
func (client *Client) EnsureRepository(executionContext context.Context, repositoryName string, description string) (RepositoryMetadata, error) {
	existingMetadata, repositoryExists, getError := client.GetRepository(executionContext, repositoryName)
	if getError != nil {
		return RepositoryMetadata{}, getError
	}
	if repositoryExists {
		client.logger.Debug(repositoryExistsLogMessageConstant, zap.String(logFieldRepositoryConstant, repositoryName))
		return existingMetadata, nil
	}

	var createdRepository *github.Repository
	operationName := fmt.Sprintf(createOperationTemplateConstant, client.organization, repositoryName)
	createError := client.retryExecutor.Execute(executionContext, operationName, func(context.Context) error {
		repository, _, requestError := client.githubClient.Repositories.Create(executionContext, client.organization, &github.Repository{
			Name:        github.String(repositoryName),
			Description: github.String(description),
			Private:     github.Bool(privateVisibilityConstant),
			AutoInit:    github.Bool(false),
			HasIssues:   github.Bool(false),
			HasWiki:     github.Bool(false),
			HasProjects: github.Bool(false),
		})
		if requestError != nil {
			return requestError
		}
		createdRepository = repository
		return nil
	})
	if createError != nil {
		return RepositoryMetadata{}, fmt.Errorf(createFailureTemplateConstant, client.organization, repositoryName, createError)
	}

	client.logger.Info(repositoryCreatedLogMessageConstant, zap.String(logFieldRepositoryConstant, repositoryName))
	return convertRepository(createdRepository), nil
}

// SetDefaultBranch updates the destination repository's default branch.
func (client *Client) SetDefaultBranch(executionContext context.Context, repositoryName string, defaultBranch string) error {
	if len(strings.TrimSpace(defaultBranch)) == 0 {
		return nil
	}

	operationName := fmt.Sprintf(defaultBranchOperationTemplate, client.organization, repositoryName)
	editError := client.retryExecutor.Execute(executionContext, operationName, func(context.Context) error {
		_, _, requestError := client.githubClient.Repositories.Edit(executionContext, client.organization, repositoryName, &github.Repository{
			DefaultBranch: github.String(defaultBranch),
		})
		return requestError
	})
	if editError != nil {
		return fmt.Errorf(defaultBranchFailureTemplateConstant, client.organization, repositoryName, editError)
	}

	client.logger.Debug(
		defaultBranchAppliedLogMessageWording,
		zap.String(logFieldRepositoryConstant, repositoryName),
		zap.String(logFieldDefaultBranchConstant, defaultBranch),
	)
	return nil
}

func convertRepository(sourceRepository *github.Repository) RepositoryMetadata {
	return RepositoryMetadata{
		Name:          sourceRepository.GetName(),
		DefaultBranch: sourceRepository.GetDefaultBranch(),
		CloneURL:      sourceRepository.GetCloneURL(),
	}
}
