package migration_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/githubapi"
	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/largeobjects"
	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/migration"
	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/progress"
	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/verify"
)

const (
	pipelineTestSlugConstant            = "team__service"
	pipelineTestCloneURLConstant        = "https://gitlab.example.com/team/service.git"
	pipelineTestDefaultBranchConstant   = "main"
	pipelineDestinationCloneURLConstant = "https://github.com/migrated-org/team__service.git"
)

type fakeProgressStore struct {
	markers map[string][]progress.Marker
}

func newFakeProgressStore() *fakeProgressStore {
	return &fakeProgressStore{markers: map[string][]progress.Marker{}}
}

func (store *fakeProgressStore) Append(slug string, marker progress.Marker) error {
	if exists, _ := store.Has(slug, marker); exists {
		return nil
	}
	store.markers[slug] = append(store.markers[slug], marker)
	return nil
}

func (store *fakeProgressStore) Has(slug string, marker progress.Marker) (bool, error) {
	for _, recordedMarker := range store.markers[slug] {
		if recordedMarker == marker {
			return true, nil
		}
	}
	return false, nil
}

type fakeSourceControl struct {
	syncedMirrors         []string
	createdWorkingCopies  []string
	removedWorkingCopies  []string
	mirrorPushes          [][2]string
	remoteReferences      map[string]string
	remoteReferencesError error
	listedRemotes         []string
	fetchedLargeObjects   []string
	pushedLargeObjects    []string
	largeObjectPushError  error
}

func (sourceControl *fakeSourceControl) SyncMirror(_ context.Context, _ string, mirrorPath string) error {
	sourceControl.syncedMirrors = append(sourceControl.syncedMirrors, mirrorPath)
	return nil
}

func (sourceControl *fakeSourceControl) CreateWorkingCopy(_ context.Context, _ string, workingCopyPath string) error {
	sourceControl.createdWorkingCopies = append(sourceControl.createdWorkingCopies, workingCopyPath)
	return nil
}

func (sourceControl *fakeSourceControl) RemoveWorkingCopy(workingCopyPath string) error {
	sourceControl.removedWorkingCopies = append(sourceControl.removedWorkingCopies, workingCopyPath)
	return nil
}

func (sourceControl *fakeSourceControl) PushMirror(_ context.Context, repositoryPath string, destination string) error {
	sourceControl.mirrorPushes = append(sourceControl.mirrorPushes, [2]string{repositoryPath, destination})
	return nil
}

func (sourceControl *fakeSourceControl) ListRemoteReferences(_ context.Context, remoteURL string) (map[string]string, error) {
	sourceControl.listedRemotes = append(sourceControl.listedRemotes, remoteURL)
	if sourceControl.remoteReferencesError != nil {
		return nil, sourceControl.remoteReferencesError
	}
	return sourceControl.remoteReferences, nil
}

func (sourceControl *fakeSourceControl) FetchLargeObjects(_ context.Context, repositoryPath string, _ string) error {
	sourceControl.fetchedLargeObjects = append(sourceControl.fetchedLargeObjects, repositoryPath)
	return nil
}

func (sourceControl *fakeSourceControl) PushLargeObjects(_ context.Context, repositoryPath string, _ string, _ int) error {
	sourceControl.pushedLargeObjects = append(sourceControl.pushedLargeObjects, repositoryPath)
	return sourceControl.largeObjectPushError
}

type fakeClassifier struct {
	result bool
	calls  int
}

func (classifier *fakeClassifier) HasLargeObjects(_ context.Context, _ string, _ int64) (bool, error) {
	classifier.calls++
	return classifier.result, nil
}

type fakeRewriter struct {
	migratedCopies  []string
	rewrittenCopies []string
	linkError       error
}

func (rewriter *fakeRewriter) Migrate(_ context.Context, workingCopyPath string, _ largeobjects.RewriteOptions) error {
	rewriter.migratedCopies = append(rewriter.migratedCopies, workingCopyPath)
	return nil
}

func (rewriter *fakeRewriter) RewriteLinks(_ context.Context, workingCopyPath string, _ largeobjects.LinkRewriteOptions) error {
	rewriter.rewrittenCopies = append(rewriter.rewrittenCopies, workingCopyPath)
	return rewriter.linkError
}

type fakeDestinationClient struct {
	existingRepositories map[string]githubapi.RepositoryMetadata
	lookedUp             []string
	ensured              []string
	defaultBranchCalls   []string
}

func (client *fakeDestinationClient) GetRepository(_ context.Context, repositoryName string) (githubapi.RepositoryMetadata, bool, error) {
	client.lookedUp = append(client.lookedUp, repositoryName)
	metadata, repositoryExists := client.existingRepositories[repositoryName]
	return metadata, repositoryExists, nil
}

func (client *fakeDestinationClient) EnsureRepository(_ context.Context, repositoryName string, _ string) (githubapi.RepositoryMetadata, error) {
	client.ensured = append(client.ensured, repositoryName)
	return githubapi.RepositoryMetadata{Name: repositoryName, CloneURL: pipelineDestinationCloneURLConstant}, nil
}

func (client *fakeDestinationClient) SetDefaultBranch(_ context.Context, repositoryName string, defaultBranch string) error {
	client.defaultBranchCalls = append(client.defaultBranchCalls, repositoryName+"@"+defaultBranch)
	return nil
}

type fakeVerifier struct {
	reports []verify.Report
	calls   int
}

func (verifier *fakeVerifier) Verify(_ context.Context, _ string, _ string) (verify.Report, error) {
	verifier.calls++
	if len(verifier.reports) == 0 {
		return verify.Report{}, nil
	}
	report := verifier.reports[0]
	if len(verifier.reports) > 1 {
		verifier.reports = verifier.reports[1:]
	}
	return report, nil
}

type pipelineHarness struct {
	store         *fakeProgressStore
	sourceControl *fakeSourceControl
	classifier    *fakeClassifier
	rewriter      *fakeRewriter
	destination   *fakeDestinationClient
	verifier      *fakeVerifier
	pipeline      *migration.Pipeline
}

func newPipelineHarness(testInstance *testing.T, settings migration.PipelineSettings) *pipelineHarness {
	harness := &pipelineHarness{
		store:         newFakeProgressStore(),
		sourceControl: &fakeSourceControl{},
		classifier:    &fakeClassifier{},
		rewriter:      &fakeRewriter{},
		destination:   &fakeDestinationClient{existingRepositories: map[string]githubapi.RepositoryMetadata{}},
		verifier:      &fakeVerifier{},
	}
	pipeline, constructionError := migration.NewPipeline(migration.PipelineDependencies{
		Logger:            zaptest.NewLogger(testInstance),
		ProgressStore:     harness.store,
		SourceControl:     harness.sourceControl,
		Classifier:        harness.classifier,
		Rewriter:          harness.rewriter,
		DestinationClient: harness.destination,
		Verifier:          harness.verifier,
	}, settings)
	require.NoError(testInstance, constructionError)
	harness.pipeline = pipeline
	return harness
}

func testPipelineSettings() migration.PipelineSettings {
	return migration.PipelineSettings{
		MirrorsDirectory:        "/work/mirrors",
		RewriteDirectory:        "/work/rewrite",
		SourceToken:             "source-token",
		DestinationToken:        "destination-token",
		DestinationHost:         "github.com",
		DestinationOrganization: "migrated-org",
		ThresholdBytes:          104857600,
		TransferConcurrency:     4,
		SkipExisting:            true,
	}
}

func testDescriptor() migration.RepositoryDescriptor {
	return migration.RepositoryDescriptor{
		Identifier:        41,
		Name:              "service",
		PathWithNamespace: "team/service",
		CloneURL:          pipelineTestCloneURLConstant,
		DefaultBranch:     pipelineTestDefaultBranchConstant,
	}
}

func TestPipelineRunCompletesAllStages(testInstance *testing.T) {
	harness := newPipelineHarness(testInstance, testPipelineSettings())
	harness.classifier.result = true

	require.NoError(testInstance, harness.pipeline.Run(context.Background(), testDescriptor()))

	require.Equal(testInstance, []string{"/work/mirrors/team__service.git"}, harness.sourceControl.syncedMirrors)
	require.Equal(testInstance, []string{"/work/rewrite/team__service.git"}, harness.rewriter.migratedCopies)
	require.Equal(testInstance, []string{pipelineTestSlugConstant}, harness.destination.ensured)
	require.Len(testInstance, harness.sourceControl.mirrorPushes, 2)
	require.Equal(testInstance, "/work/mirrors/team__service.git", harness.sourceControl.mirrorPushes[0][1])
	require.Equal(testInstance, "/work/mirrors/team__service.git", harness.sourceControl.mirrorPushes[1][0])
	require.Equal(testInstance, 1, harness.verifier.calls)
	require.Len(testInstance, harness.destination.defaultBranchCalls, 2)

	for _, expectedMarker := range []progress.Marker{progress.MarkerMirrorCloned, progress.MarkerLFSMigrated, progress.MarkerPushed} {
		recorded, _ := harness.store.Has(pipelineTestSlugConstant, expectedMarker)
		require.True(testInstance, recorded, "missing marker %s", expectedMarker)
	}
}

func TestPipelineRunSkipsPopulatedDestination(testInstance *testing.T) {
	harness := newPipelineHarness(testInstance, testPipelineSettings())
	harness.destination.existingRepositories[pipelineTestSlugConstant] = githubapi.RepositoryMetadata{
		Name:     pipelineTestSlugConstant,
		CloneURL: pipelineDestinationCloneURLConstant,
	}
	harness.sourceControl.remoteReferences = map[string]string{"refs/heads/main": "1111111111111111111111111111111111111111"}

	require.NoError(testInstance, harness.pipeline.Run(context.Background(), testDescriptor()))

	skipped, _ := harness.store.Has(pipelineTestSlugConstant, progress.MarkerSkippedExisting)
	require.True(testInstance, skipped)
	require.Empty(testInstance, harness.sourceControl.syncedMirrors)
	require.Empty(testInstance, harness.destination.ensured)
}

func TestPipelineRunProceedsWhenDestinationEmpty(testInstance *testing.T) {
	harness := newPipelineHarness(testInstance, testPipelineSettings())
	harness.destination.existingRepositories[pipelineTestSlugConstant] = githubapi.RepositoryMetadata{
		Name:     pipelineTestSlugConstant,
		CloneURL: pipelineDestinationCloneURLConstant,
	}
	harness.sourceControl.remoteReferences = map[string]string{}

	require.NoError(testInstance, harness.pipeline.Run(context.Background(), testDescriptor()))

	skipped, _ := harness.store.Has(pipelineTestSlugConstant, progress.MarkerSkippedExisting)
	require.False(testInstance, skipped)
	require.Len(testInstance, harness.sourceControl.syncedMirrors, 1)
}

func TestPipelineRunResumesAfterPush(testInstance *testing.T) {
	harness := newPipelineHarness(testInstance, testPipelineSettings())
	require.NoError(testInstance, harness.store.Append(pipelineTestSlugConstant, progress.MarkerMirrorCloned))
	require.NoError(testInstance, harness.store.Append(pipelineTestSlugConstant, progress.MarkerLFSMigrated))
	require.NoError(testInstance, harness.store.Append(pipelineTestSlugConstant, progress.MarkerPushed))

	require.NoError(testInstance, harness.pipeline.Run(context.Background(), testDescriptor()))

	// The destination pre-check never runs for a repository this run pushed.
	require.Empty(testInstance, harness.destination.lookedUp)
	// The mirror is refreshed, but no rewrite or destination push is repeated.
	require.Len(testInstance, harness.sourceControl.syncedMirrors, 1)
	require.Empty(testInstance, harness.sourceControl.createdWorkingCopies)
	require.Empty(testInstance, harness.sourceControl.mirrorPushes)
	require.Equal(testInstance, 1, harness.verifier.calls)
}

func TestPipelineRunAlreadySkippedShortCircuits(testInstance *testing.T) {
	harness := newPipelineHarness(testInstance, testPipelineSettings())
	require.NoError(testInstance, harness.store.Append(pipelineTestSlugConstant, progress.MarkerSkippedExisting))

	require.NoError(testInstance, harness.pipeline.Run(context.Background(), testDescriptor()))

	require.Empty(testInstance, harness.destination.lookedUp)
	require.Empty(testInstance, harness.sourceControl.syncedMirrors)
}

func TestPipelineRunDryRunStopsBeforeProvisioning(testInstance *testing.T) {
	settings := testPipelineSettings()
	settings.DryRun = true
	harness := newPipelineHarness(testInstance, settings)
	harness.classifier.result = true

	require.NoError(testInstance, harness.pipeline.Run(context.Background(), testDescriptor()))

	require.Len(testInstance, harness.sourceControl.syncedMirrors, 1)
	require.Len(testInstance, harness.rewriter.migratedCopies, 1)
	require.Empty(testInstance, harness.destination.ensured)
	require.Equal(testInstance, 0, harness.verifier.calls)

	pushed, _ := harness.store.Has(pipelineTestSlugConstant, progress.MarkerPushed)
	require.False(testInstance, pushed)
	rewritten, _ := harness.store.Has(pipelineTestSlugConstant, progress.MarkerLFSMigrated)
	require.True(testInstance, rewritten)
}

func TestPipelineRunRecordsRewriteMarkerWithoutLargeObjects(testInstance *testing.T) {
	harness := newPipelineHarness(testInstance, testPipelineSettings())
	harness.classifier.result = false

	require.NoError(testInstance, harness.pipeline.Run(context.Background(), testDescriptor()))

	require.Empty(testInstance, harness.rewriter.migratedCopies)
	rewritten, _ := harness.store.Has(pipelineTestSlugConstant, progress.MarkerLFSMigrated)
	require.True(testInstance, rewritten)
	// The untouched working copy still refreshes the mirror's references.
	require.Equal(testInstance, [2]string{"/work/rewrite/team__service.git", "/work/mirrors/team__service.git"}, harness.sourceControl.mirrorPushes[0])
}

func TestPipelineRunLinkRewriteOnlyWhenEnabled(testInstance *testing.T) {
	settings := testPipelineSettings()
	settings.RewriteLinks = true
	harness := newPipelineHarness(testInstance, settings)
	harness.rewriter.linkError = errors.New("link declaration malformed")

	require.NoError(testInstance, harness.pipeline.Run(context.Background(), testDescriptor()))

	require.Len(testInstance, harness.rewriter.rewrittenCopies, 1)
	rewritten, _ := harness.store.Has(pipelineTestSlugConstant, progress.MarkerLFSMigrated)
	require.True(testInstance, rewritten)
}

func TestPipelineRunLargeObjectPushFailureIsNotFatal(testInstance *testing.T) {
	harness := newPipelineHarness(testInstance, testPipelineSettings())
	harness.sourceControl.largeObjectPushError = errors.New("content store unavailable")

	require.NoError(testInstance, harness.pipeline.Run(context.Background(), testDescriptor()))

	pushed, _ := harness.store.Has(pipelineTestSlugConstant, progress.MarkerPushed)
	require.True(testInstance, pushed)
}

func TestPipelineRunCorrectivePushOnDivergence(testInstance *testing.T) {
	harness := newPipelineHarness(testInstance, testPipelineSettings())
	harness.verifier.reports = []verify.Report{
		{PendingLargeObjects: []string{"0000000000000000000000000000000000000000 * large.bin"}},
		{},
	}

	require.NoError(testInstance, harness.pipeline.Run(context.Background(), testDescriptor()))

	require.Equal(testInstance, 2, harness.verifier.calls)
	// One upload after the reference push and one corrective upload.
	require.Len(testInstance, harness.sourceControl.pushedLargeObjects, 2)
}
