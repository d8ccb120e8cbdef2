package gitlabapi_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/gitlabapi"
	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/retry"
)

const (
	groupIdentityFixtureConstant        = "platform"
	projectJSONTemplateConstant         = `{"id":%d,"name":"service-%d","path_with_namespace":"platform/service-%d","http_url_to_repo":"https://gitlab.example.com/platform/service-%d.git","description":"service %d","default_branch":"main","archived":false}`
	groupProjectsPathConstant           = "/api/v4/groups/platform/projects"
	singleProjectPathConstant           = "/api/v4/projects/platform%2Fservice-1"
	archiveProjectPathConstant          = "/api/v4/projects/platform%2Fservice-1/archive"
	nextLinkHeaderTemplateConstant      = `<%s%s?id_after=%d&pagination=keyset&per_page=%d>; rel="next"`
	cursorPaginationTestCaseNameWording = "cursor_pagination"
	offsetPaginationTestCaseNameWording = "offset_pagination"
)

func newRetryExecutorForTests(testInstance *testing.T, attemptLimit int) *retry.Executor {
	executor, creationError := retry.NewExecutor(zap.NewNop(), retry.ExecutorOptions{
		AttemptLimit: attemptLimit,
		BaseDelay:    time.Millisecond,
		Sleep:        func(context.Context, time.Duration) error { return nil },
		Jitter:       func(time.Duration) time.Duration { return 0 },
	})
	require.NoError(testInstance, creationError)
	return executor
}

func newClientForServer(testInstance *testing.T, server *httptest.Server, pageSize int) *gitlabapi.Client {
	client, creationError := gitlabapi.NewClient(gitlabapi.ClientDependencies{
		Logger:        zap.NewNop(),
		RetryExecutor: newRetryExecutorForTests(testInstance, 2),
		BaseURL:       server.URL,
		Token:         "source-token",
		PageSize:      pageSize,
	})
	require.NoError(testInstance, creationError)
	return client
}

func writeProjectPage(responseWriter http.ResponseWriter, firstIdentifier int, lastIdentifier int) {
	projectBodies := []string{}
	for identifier := firstIdentifier; identifier <= lastIdentifier; identifier++ {
		projectBodies = append(projectBodies, fmt.Sprintf(projectJSONTemplateConstant, identifier, identifier, identifier, identifier, identifier))
	}
	responseWriter.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(responseWriter, "[%s]", strings.Join(projectBodies, ","))
}

func TestListGroupProjectsPaginationCompleteness(testInstance *testing.T) {
	testCases := []struct {
		name        string
		cursorStyle bool
	}{
		{name: cursorPaginationTestCaseNameWording, cursorStyle: true},
		{name: offsetPaginationTestCaseNameWording, cursorStyle: false},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtest *testing.T) {
			var server *httptest.Server
			server = httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
				require.Equal(subtest, groupProjectsPathConstant, request.URL.Path)
				requestQuery := request.URL.Query()

				if testCase.cursorStyle {
					switch requestQuery.Get("id_after") {
					case "":
						responseWriter.Header().Set("Link", fmt.Sprintf(nextLinkHeaderTemplateConstant, server.URL, groupProjectsPathConstant, 2, 2))
						writeProjectPage(responseWriter, 1, 2)
					case "2":
						responseWriter.Header().Set("Link", fmt.Sprintf(nextLinkHeaderTemplateConstant, server.URL, groupProjectsPathConstant, 4, 2))
						writeProjectPage(responseWriter, 3, 4)
					default:
						writeProjectPage(responseWriter, 5, 5)
					}
					return
				}

				switch requestQuery.Get("page") {
				case "", "1":
					responseWriter.Header().Set("X-Next-Page", "2")
					writeProjectPage(responseWriter, 1, 2)
				case "2":
					responseWriter.Header().Set("X-Next-Page", "3")
					writeProjectPage(responseWriter, 3, 4)
				default:
					responseWriter.Header().Set("X-Next-Page", "")
					writeProjectPage(responseWriter, 5, 5)
				}
			}))
			defer server.Close()

			client := newClientForServer(subtest, server, 2)
			descriptors, listError := client.ListGroupProjects(context.Background(), groupIdentityFixtureConstant, true)
			require.NoError(subtest, listError)
			require.Len(subtest, descriptors, 5)

			seenIdentifiers := map[int]bool{}
			for _, descriptor := range descriptors {
				require.False(subtest, seenIdentifiers[descriptor.Identifier])
				seenIdentifiers[descriptor.Identifier] = true
			}
			require.Equal(subtest, "platform/service-1", descriptors[0].PathWithNamespace)
			require.Equal(subtest, "main", descriptors[0].DefaultBranch)
		})
	}
}

func TestListGroupProjectsAbortsAfterRetryExhaustion(testInstance *testing.T) {
	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, _ *http.Request) {
		requestCount++
		responseWriter.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newClientForServer(testInstance, server, 2)
	descriptors, listError := client.ListGroupProjects(context.Background(), groupIdentityFixtureConstant, true)
	require.Error(testInstance, listError)
	require.Nil(testInstance, descriptors)
	require.Equal(testInstance, 2, requestCount)
}

func TestGetProject(testInstance *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		require.Equal(testInstance, singleProjectPathConstant, request.URL.EscapedPath())
		responseWriter.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(responseWriter, projectJSONTemplateConstant, 1, 1, 1, 1, 1)
	}))
	defer server.Close()

	client := newClientForServer(testInstance, server, 2)
	descriptor, lookupError := client.GetProject(context.Background(), "platform/service-1")
	require.NoError(testInstance, lookupError)
	require.Equal(testInstance, 1, descriptor.Identifier)
	require.Equal(testInstance, "platform/service-1", descriptor.PathWithNamespace)
	require.Equal(testInstance, "https://gitlab.example.com/platform/service-1.git", descriptor.CloneURL)
}

func TestArchiveProject(testInstance *testing.T) {
	archiveRequestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		require.Equal(testInstance, http.MethodPost, request.Method)
		require.Equal(testInstance, archiveProjectPathConstant, request.URL.EscapedPath())
		archiveRequestCount++
		responseWriter.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(responseWriter, projectJSONTemplateConstant, 1, 1, 1, 1, 1)
	}))
	defer server.Close()

	client := newClientForServer(testInstance, server, 2)
	require.NoError(testInstance, client.ArchiveProject(context.Background(), "platform/service-1"))
	require.Equal(testInstance, 1, archiveRequestCount)
}
