package migration

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	manifestFilePermissionsConstant          = 0o644
	manifestEncodeFailureTemplateConstant    = "unable to encode manifest: %w"
	manifestWriteFailureTemplateConstant     = "unable to write manifest %s: %w"
	manifestReadFailureTemplateConstant      = "unable to read manifest %s: %w"
	manifestDecodeFailureTemplateConstant    = "unable to decode manifest %s: %w"
	manifestTimestampFormatLayoutConstant    = time.RFC3339
	manifestMissingRepositoriesValueConstant = "manifest %s lists no repositories"
)

// ManifestEntry describes one repository scheduled for migration.
type ManifestEntry struct {
	Identifier        int    `yaml:"id"`
	PathWithNamespace string `yaml:"path_with_namespace"`
	Slug              string `yaml:"slug"`
	CloneURL          string `yaml:"clone_url"`
	DefaultBranch     string `yaml:"default_branch,omitempty"`
	Archived          bool   `yaml:"archived,omitempty"`
}

// Manifest is the durable record of what a run set out to migrate.
type Manifest struct {
	GeneratedAt             string          `yaml:"generated_at"`
	SourceGroup             string          `yaml:"source_group"`
	DestinationOrganization string          `yaml:"destination_organization"`
	Repositories            []ManifestEntry `yaml:"repositories"`
}

// BuildManifest assembles a manifest from the discovered descriptors.
func BuildManifest(sourceGroup string, destinationOrganization string, descriptors []RepositoryDescriptor, generatedAt time.Time) Manifest {
	manifest := Manifest{
		GeneratedAt:             generatedAt.UTC().Format(manifestTimestampFormatLayoutConstant),
		SourceGroup:             sourceGroup,
		DestinationOrganization: destinationOrganization,
		Repositories:            make([]ManifestEntry, 0, len(descriptors)),
	}
	for _, descriptor := range descriptors {
		manifest.Repositories = append(manifest.Repositories, ManifestEntry{
			Identifier:        descriptor.Identifier,
			PathWithNamespace: descriptor.PathWithNamespace,
			Slug:              descriptor.Slug(),
			CloneURL:          descriptor.CloneURL,
			DefaultBranch:     descriptor.DefaultBranch,
			Archived:          descriptor.Archived,
		})
	}
	return manifest
}

// WriteManifest serializes the manifest to the given path.
func WriteManifest(manifestPath string, manifest Manifest) error {
	encodedManifest, encodeError := yaml.Marshal(manifest)
	if encodeError != nil {
		return fmt.Errorf(manifestEncodeFailureTemplateConstant, encodeError)
	}
	if writeError := os.WriteFile(manifestPath, encodedManifest, manifestFilePermissionsConstant); writeError != nil {
		return fmt.Errorf(manifestWriteFailureTemplateConstant, manifestPath, writeError)
	}
	return nil
}

// ReadManifest loads a previously written manifest.
func ReadManifest(manifestPath string) (Manifest, error) {
	manifestContents, readError := os.ReadFile(manifestPath)
	if readError != nil {
		return Manifest{}, fmt.Errorf(manifestReadFailureTemplateConstant, manifestPath, readError)
	}
	var manifest Manifest
	if decodeError := yaml.Unmarshal(manifestContents, &manifest); decodeError != nil {
		return Manifest{}, fmt.Errorf(manifestDecodeFailureTemplateConstant, manifestPath, decodeError)
	}
	if len(manifest.Repositories) == 0 {
		return Manifest{}, fmt.Errorf(manifestMissingRepositoriesValueConstant, manifestPath)
	}
	return manifest, nil
}
