// Package verify reconciles a pushed repository against its local mirror.
package verify

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

const (
	loggerRequiredMessageConstant        = "verifier requires logger"
	inspectorRequiredMessageConstant     = "verifier requires reference inspector"
	missingReferenceLogMessageConstant   = "reference missing on destination"
	mismatchedReferenceLogMessageWording = "reference content differs on destination"
	pendingObjectLogMessageConstant      = "large object not yet transferred"
	verificationPassedLogMessageConstant = "destination matches mirror"
	logFieldReferenceConstant            = "reference"
	logFieldLocalIdentifierConstant      = "local_identifier"
	logFieldRemoteIdentifierConstant     = "remote_identifier"
	logFieldObjectConstant               = "object"
	logFieldMirrorPathConstant           = "mirror_path"
)

// ReferenceInspector supplies the reference sets and pending-object listing
// the verifier compares.
type ReferenceInspector interface {
	ListLocalReferences(executionContext context.Context, repositoryPath string) (map[string]string, error)
	ListRemoteReferences(executionContext context.Context, remoteURL string) (map[string]string, error)
	ListPendingLargeObjects(executionContext context.Context, repositoryPath string, remoteURL string) ([]string, error)
}

// Report is the ephemeral outcome of one verification pass.
type Report struct {
	MissingReferences    []string
	MismatchedReferences []string
	PendingLargeObjects  []string
}

// Consistent reports whether the destination fully matches the mirror.
func (report Report) Consistent() bool {
	return len(report.MissingReferences) == 0 &&
		len(report.MismatchedReferences) == 0 &&
		len(report.PendingLargeObjects) == 0
}

// VerifierDependencies collects the collaborators required by Verifier.
type VerifierDependencies struct {
	Logger             *zap.Logger
	ReferenceInspector ReferenceInspector
}

// Verifier compares the mirror's full reference set and pending large-object
// queue against the destination.
type Verifier struct {
	logger             *zap.Logger
	referenceInspector ReferenceInspector
}

// NewVerifier validates dependencies and constructs a Verifier.
func NewVerifier(dependencies VerifierDependencies) (*Verifier, error) {
	if dependencies.Logger == nil {
		return nil, fmt.Errorf(loggerRequiredMessageConstant)
	}
	if dependencies.ReferenceInspector == nil {
		return nil, fmt.Errorf(inspectorRequiredMessageConstant)
	}
	return &Verifier{logger: dependencies.Logger, referenceInspector: dependencies.ReferenceInspector}, nil
}

// Verify collects every divergence between the mirror and the destination.
// Individual mismatches are logged as they are found; the aggregate report is
// returned rather than raised so callers decide how to react.
func (verifier *Verifier) Verify(executionContext context.Context, mirrorPath string, destinationURL string) (Report, error) {
	localReferences, localError := verifier.referenceInspector.ListLocalReferences(executionContext, mirrorPath)
	if localError != nil {
		return Report{}, localError
	}
	remoteReferences, remoteError := verifier.referenceInspector.ListRemoteReferences(executionContext, destinationURL)
	if remoteError != nil {
		return Report{}, remoteError
	}

	verificationReport := Report{}
	for _, referenceName := range sortedReferenceNames(localReferences) {
		localIdentifier := localReferences[referenceName]
		remoteIdentifier, referencePresent := remoteReferences[referenceName]
		switch {
		case !referencePresent:
			verificationReport.MissingReferences = append(verificationReport.MissingReferences, referenceName)
			verifier.logger.Warn(
				missingReferenceLogMessageConstant,
				zap.String(logFieldReferenceConstant, referenceName),
				zap.String(logFieldLocalIdentifierConstant, localIdentifier),
			)
		case remoteIdentifier != localIdentifier:
			verificationReport.MismatchedReferences = append(verificationReport.MismatchedReferences, referenceName)
			verifier.logger.Warn(
				mismatchedReferenceLogMessageWording,
				zap.String(logFieldReferenceConstant, referenceName),
				zap.String(logFieldLocalIdentifierConstant, localIdentifier),
				zap.String(logFieldRemoteIdentifierConstant, remoteIdentifier),
			)
		}
	}

	pendingObjects, pendingError := verifier.referenceInspector.ListPendingLargeObjects(executionContext, mirrorPath, destinationURL)
	if pendingError != nil {
		return Report{}, pendingError
	}
	for _, pendingObject := range pendingObjects {
		verificationReport.PendingLargeObjects = append(verificationReport.PendingLargeObjects, pendingObject)
		verifier.logger.Warn(pendingObjectLogMessageConstant, zap.String(logFieldObjectConstant, pendingObject))
	}

	if verificationReport.Consistent() {
		verifier.logger.Info(verificationPassedLogMessageConstant, zap.String(logFieldMirrorPathConstant, mirrorPath))
	}
	return verificationReport, nil
}

func sortedReferenceNames(references map[string]string) []string {
	referenceNames := make([]string, 0, len(references))
	for referenceName := range references {
		referenceNames = append(referenceNames, referenceName)
	}
	sort.Strings(referenceNames)
	return referenceNames
}
