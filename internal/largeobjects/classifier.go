// Package largeobjects decides whether a repository needs a large-object
// rewrite and performs the rewrite itself.
package largeobjects

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

const (
	blobObjectTypeConstant                  = "blob"
	loggerRequiredMessageConstant           = "classifier requires logger"
	enumeratorRequiredMessageConstant       = "classifier requires object enumerator"
	invalidThresholdMessageTemplateConstant = "large object threshold must be positive, got %d"
	largeObjectFoundLogMessageConstant      = "found object at or above threshold"
	logFieldRepositoryPathConstant          = "repository_path"
	logFieldObjectSizeConstant              = "object_size"
	logFieldThresholdConstant               = "threshold"
)

// ObjectEnumerator streams object metadata from a repository.
type ObjectEnumerator interface {
	ForEachObject(executionContext context.Context, repositoryPath string, visit func(objectType string, objectSize int64) bool) error
}

// ClassifierDependencies collects the collaborators required by Classifier.
type ClassifierDependencies struct {
	Logger           *zap.Logger
	ObjectEnumerator ObjectEnumerator
}

// Classifier inspects a repository's full object graph for oversized blobs.
type Classifier struct {
	logger           *zap.Logger
	objectEnumerator ObjectEnumerator
}

// NewClassifier validates dependencies and constructs a Classifier.
func NewClassifier(dependencies ClassifierDependencies) (*Classifier, error) {
	if dependencies.Logger == nil {
		return nil, fmt.Errorf(loggerRequiredMessageConstant)
	}
	if dependencies.ObjectEnumerator == nil {
		return nil, fmt.Errorf(enumeratorRequiredMessageConstant)
	}
	return &Classifier{logger: dependencies.Logger, objectEnumerator: dependencies.ObjectEnumerator}, nil
}

// HasLargeObjects reports whether any blob reachable from any reference is at
// or above the threshold. Enumeration stops at the first qualifying blob.
func (classifier *Classifier) HasLargeObjects(executionContext context.Context, repositoryPath string, thresholdBytes int64) (bool, error) {
	if thresholdBytes <= 0 {
		return false, fmt.Errorf(invalidThresholdMessageTemplateConstant, thresholdBytes)
	}

	largeObjectFound := false
	enumerationError := classifier.objectEnumerator.ForEachObject(executionContext, repositoryPath, func(objectType string, objectSize int64) bool {
		if objectType == blobObjectTypeConstant && objectSize >= thresholdBytes {
			largeObjectFound = true
			classifier.logger.Debug(
				largeObjectFoundLogMessageConstant,
				zap.String(logFieldRepositoryPathConstant, repositoryPath),
				zap.Int64(logFieldObjectSizeConstant, objectSize),
				zap.Int64(logFieldThresholdConstant, thresholdBytes),
			)
			return false
		}
		return true
	})
	if enumerationError != nil {
		return false, enumerationError
	}
	return largeObjectFound, nil
}
