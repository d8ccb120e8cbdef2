// Package progress persists per-repository migration checkpoints so an
// interrupted run resumes without redoing completed stages.
package progress

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const (
	stateFileExtensionConstant        = ".log"
	stateFilePermissionsConstant      = 0o644
	stateDirectoryPermissionsConstant = 0o755
	markerLineTemplateConstant        = "%s\n"
	unknownMarkerMessageTemplate      = "unknown progress marker %q"
	appendFailureTemplateConstant     = "append marker %s for %s: %w"
	readFailureTemplateConstant       = "read progress log for %s: %w"
	loggerRequiredMessageConstant     = "progress store requires logger"
	directoryRequiredMessageConstant  = "progress store requires a state directory"
	markerAppendedLogMessageConstant  = "recorded progress marker"
	logFieldSlugConstant              = "slug"
	logFieldMarkerConstant            = "marker"
)

// Marker names a completed pipeline checkpoint.
type Marker string

// Recognized markers. No marker is a substring of another, and Has matches
// whole lines, so recorded markers can never shadow each other.
const (
	MarkerMirrorCloned    Marker = Marker("mirror-cloned")
	MarkerLFSMigrated     Marker = Marker("lfs-migrated")
	MarkerPushed          Marker = Marker("pushed")
	MarkerSkippedExisting Marker = Marker("skipped-existing")
)

var recognizedMarkers = map[Marker]bool{
	MarkerMirrorCloned:    true,
	MarkerLFSMigrated:     true,
	MarkerPushed:          true,
	MarkerSkippedExisting: true,
}

// Store is an append-only progress log, one file per repository slug. The
// scheduler guarantees at most one pipeline instance per slug, so the store
// needs no cross-process locking.
type Store struct {
	logger         *zap.Logger
	stateDirectory string
}

// NewStore validates inputs, creates the state directory, and constructs a Store.
func NewStore(logger *zap.Logger, stateDirectory string) (*Store, error) {
	if logger == nil {
		return nil, fmt.Errorf(loggerRequiredMessageConstant)
	}
	if len(strings.TrimSpace(stateDirectory)) == 0 {
		return nil, fmt.Errorf(directoryRequiredMessageConstant)
	}
	if directoryError := os.MkdirAll(stateDirectory, stateDirectoryPermissionsConstant); directoryError != nil {
		return nil, directoryError
	}
	return &Store{logger: logger, stateDirectory: stateDirectory}, nil
}

// Append records the marker for the slug unless it is already present.
func (store *Store) Append(slug string, marker Marker) error {
	if !recognizedMarkers[marker] {
		return fmt.Errorf(unknownMarkerMessageTemplate, marker)
	}

	alreadyRecorded, readError := store.Has(slug, marker)
	if readError != nil {
		return readError
	}
	if alreadyRecorded {
		return nil
	}

	stateFile, openError := os.OpenFile(store.stateFilePath(slug), os.O_APPEND|os.O_CREATE|os.O_WRONLY, stateFilePermissionsConstant)
	if openError != nil {
		return fmt.Errorf(appendFailureTemplateConstant, marker, slug, openError)
	}
	defer stateFile.Close()

	if _, writeError := fmt.Fprintf(stateFile, markerLineTemplateConstant, marker); writeError != nil {
		return fmt.Errorf(appendFailureTemplateConstant, marker, slug, writeError)
	}

	store.logger.Debug(
		markerAppendedLogMessageConstant,
		zap.String(logFieldSlugConstant, slug),
		zap.String(logFieldMarkerConstant, string(marker)),
	)
	return nil
}

// Has reports whether the marker was recorded for the slug. Matching is by
// whole line, never by substring.
func (store *Store) Has(slug string, marker Marker) (bool, error) {
	stateFile, openError := os.Open(store.stateFilePath(slug))
	if openError != nil {
		if errors.Is(openError, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf(readFailureTemplateConstant, slug, openError)
	}
	defer stateFile.Close()

	lineScanner := bufio.NewScanner(stateFile)
	for lineScanner.Scan() {
		if strings.TrimSpace(lineScanner.Text()) == string(marker) {
			return true, nil
		}
	}
	if scanError := lineScanner.Err(); scanError != nil {
		return false, fmt.Errorf(readFailureTemplateConstant, slug, scanError)
	}
	return false, nil
}

// Markers returns the ordered sequence of markers recorded for the slug.
func (store *Store) Markers(slug string) ([]Marker, error) {
	stateFile, openError := os.Open(store.stateFilePath(slug))
	if openError != nil {
		if errors.Is(openError, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf(readFailureTemplateConstant, slug, openError)
	}
	defer stateFile.Close()

	recordedMarkers := []Marker{}
	lineScanner := bufio.NewScanner(stateFile)
	for lineScanner.Scan() {
		markerLine := strings.TrimSpace(lineScanner.Text())
		if len(markerLine) == 0 {
			continue
		}
		recordedMarkers = append(recordedMarkers, Marker(markerLine))
	}
	if scanError := lineScanner.Err(); scanError != nil {
		return nil, fmt.Errorf(readFailureTemplateConstant, slug, scanError)
	}
	return recordedMarkers, nil
}

func (store *Store) stateFilePath(slug string) string {
	return filepath.Join(store.stateDirectory, slug+stateFileExtensionConstant)
}
