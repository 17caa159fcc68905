package library

import (
	"fmt"

	"github.com/magicianjarden/audiio-official-sub003/internal/config"
	"github.com/magicianjarden/audiio-official-sub003/internal/models"
)

// TargetResolver maps a download request to the directory its output file
// belongs in.
type TargetResolver interface {
	// GetFolder returns the folder with the given id, or nil when unknown.
	GetFolder(folderID string) *models.Folder

	// GetFolders returns the configured folders serving the given kind, in
	// configuration order. A folder of unknown kind serves every kind, and
	// querying the unknown kind returns every folder.
	GetFolders(kind models.MediaKind) []models.Folder

	// ResolveDir picks the output directory for a request: the requested
	// folder when it exists, else the first configured folder serving the
	// request's kind, else the process-wide default directory. The returned
	// id is empty when the default directory was used.
	ResolveDir(folderID string, kind models.MediaKind) (dir string, resolvedID string)
}

// configResolver implements TargetResolver over the folder table declared in
// the configuration file.
type configResolver struct {
	folders    []models.Folder
	defaultDir string
}

// NewResolver builds a TargetResolver from the configured folder table.
// Folders without an explicit id get a positional one.
func NewResolver(cfg *config.Config) TargetResolver {
	folders := make([]models.Folder, 0, len(cfg.Downloads.Folders))
	for i, fc := range cfg.Downloads.Folders {
		id := fc.ID
		if id == "" {
			id = fmt.Sprintf("folder-%d", i+1)
		}
		folders = append(folders, models.Folder{
			ID:   id,
			Path: fc.Path,
			Kind: models.ParseMediaKind(fc.Kind),
		})
	}
	return &configResolver{
		folders:    folders,
		defaultDir: cfg.Downloads.DefaultDir,
	}
}

func (r *configResolver) GetFolder(folderID string) *models.Folder {
	for i := range r.folders {
		if r.folders[i].ID == folderID {
			folder := r.folders[i]
			return &folder
		}
	}
	return nil
}

func (r *configResolver) GetFolders(kind models.MediaKind) []models.Folder {
	matches := make([]models.Folder, 0, len(r.folders))
	for _, folder := range r.folders {
		if kind == models.MediaKindUnknown || folder.Kind == models.MediaKindUnknown || folder.Kind == kind {
			matches = append(matches, folder)
		}
	}
	return matches
}

func (r *configResolver) ResolveDir(folderID string, kind models.MediaKind) (string, string) {
	if folderID != "" {
		if folder := r.GetFolder(folderID); folder != nil {
			return folder.Path, folder.ID
		}
	}
	if candidates := r.GetFolders(kind); len(candidates) > 0 {
		return candidates[0].Path, candidates[0].ID
	}
	return r.defaultDir, ""
}
