package migration

import (
	"fmt"
	"strings"
)

const (
	pathSeparatorConstant              = "/"
	slugSeparatorConstant              = "__"
	slugCollisionMessageTemplate       = "repository paths %q and %q collide on slug %q"
	emptyRepositoryPathMessageConstant = "repository descriptor has an empty path"
)

// RepositoryDescriptor is an immutable record of one repository discovered on
// the source platform.
type RepositoryDescriptor struct {
	Identifier        int
	Name              string
	PathWithNamespace string
	CloneURL          string
	Description       string
	DefaultBranch     string
	Archived          bool
}

// Slug returns the filesystem-safe key under which this repository's mirror,
// progress log, and pipeline log are stored.
func (descriptor RepositoryDescriptor) Slug() string {
	return Slugify(descriptor.PathWithNamespace)
}

// Slugify converts a namespaced repository path into a filesystem-safe slug by
// replacing path separators with a double underscore.
func Slugify(repositoryPath string) string {
	return strings.ReplaceAll(strings.TrimSpace(repositoryPath), pathSeparatorConstant, slugSeparatorConstant)
}

// SlugCollisionError reports two distinct repository paths mapping to the same slug.
type SlugCollisionError struct {
	FirstPath  string
	SecondPath string
	Slug       string
}

// Error implements the error interface.
func (failure SlugCollisionError) Error() string {
	return fmt.Sprintf(slugCollisionMessageTemplate, failure.FirstPath, failure.SecondPath, failure.Slug)
}

// VerifySlugUniqueness confirms that every descriptor in the collection
// produces a distinct slug. Collisions would let two pipeline instances share
// a mirror directory and progress log, so ingestion refuses them up front.
func VerifySlugUniqueness(descriptors []RepositoryDescriptor) error {
	pathsBySlug := make(map[string]string, len(descriptors))
	for _, descriptor := range descriptors {
		slugValue := descriptor.Slug()
		if len(slugValue) == 0 {
			return fmt.Errorf(emptyRepositoryPathMessageConstant)
		}
		if existingPath, slugSeen := pathsBySlug[slugValue]; slugSeen && existingPath != descriptor.PathWithNamespace {
			return SlugCollisionError{FirstPath: existingPath, SecondPath: descriptor.PathWithNamespace, Slug: slugValue}
		}
		pathsBySlug[slugValue] = descriptor.PathWithNamespace
	}
	return nil
}
