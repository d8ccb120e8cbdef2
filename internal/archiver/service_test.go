package archiver_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/archiver"
	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/migration"
)

type stubSourcePlatform struct {
	descriptors      []migration.RepositoryDescriptor
	listError        error
	archiveFailures  map[string]error
	archivedProjects []string
}

func (platform *stubSourcePlatform) ListGroupProjects(context.Context, string, bool) ([]migration.RepositoryDescriptor, error) {
	return platform.descriptors, platform.listError
}

func (platform *stubSourcePlatform) ArchiveProject(_ context.Context, projectIdentity string) error {
	if archiveError, failing := platform.archiveFailures[projectIdentity]; failing {
		return archiveError
	}
	platform.archivedProjects = append(platform.archivedProjects, projectIdentity)
	return nil
}

func newArchiverService(testInstance *testing.T, platform *stubSourcePlatform) *archiver.Service {
	service, constructionError := archiver.NewService(archiver.ServiceDependencies{
		Logger:         zaptest.NewLogger(testInstance),
		SourcePlatform: platform,
	})
	require.NoError(testInstance, constructionError)
	return service
}

func TestArchiveGroupSkipsArchivedRepositories(testInstance *testing.T) {
	platform := &stubSourcePlatform{descriptors: []migration.RepositoryDescriptor{
		{Identifier: 1, PathWithNamespace: "team/active"},
		{Identifier: 2, PathWithNamespace: "team/frozen", Archived: true},
	}}
	service := newArchiverService(testInstance, platform)

	failedCount, archiveError := service.ArchiveGroup(context.Background(), "team", false)

	require.NoError(testInstance, archiveError)
	require.Zero(testInstance, failedCount)
	require.Equal(testInstance, []string{"team/active"}, platform.archivedProjects)
}

func TestArchiveGroupCountsFailuresWithoutAborting(testInstance *testing.T) {
	platform := &stubSourcePlatform{
		descriptors: []migration.RepositoryDescriptor{
			{Identifier: 1, PathWithNamespace: "team/first"},
			{Identifier: 2, PathWithNamespace: "team/second"},
			{Identifier: 3, PathWithNamespace: "team/third"},
		},
		archiveFailures: map[string]error{"team/second": errors.New("insufficient permissions")},
	}
	service := newArchiverService(testInstance, platform)

	failedCount, archiveError := service.ArchiveGroup(context.Background(), "team", false)

	require.NoError(testInstance, archiveError)
	require.Equal(testInstance, 1, failedCount)
	require.Equal(testInstance, []string{"team/first", "team/third"}, platform.archivedProjects)
}

func TestArchiveGroupDryRunArchivesNothing(testInstance *testing.T) {
	platform := &stubSourcePlatform{descriptors: []migration.RepositoryDescriptor{
		{Identifier: 1, PathWithNamespace: "team/active"},
	}}
	service := newArchiverService(testInstance, platform)

	failedCount, archiveError := service.ArchiveGroup(context.Background(), "team", true)

	require.NoError(testInstance, archiveError)
	require.Zero(testInstance, failedCount)
	require.Empty(testInstance, platform.archivedProjects)
}

func TestArchiveGroupPropagatesListingFailure(testInstance *testing.T) {
	listFailure := errors.New("source unreachable")
	service := newArchiverService(testInstance, &stubSourcePlatform{listError: listFailure})

	_, archiveError := service.ArchiveGroup(context.Background(), "team", false)
	require.ErrorIs(testInstance, archiveError, listFailure)
}
