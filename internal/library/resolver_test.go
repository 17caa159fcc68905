package library

import (
	"testing"

	"github.com/magicianjarden/audiio-official-sub003/internal/config"
	"github.com/magicianjarden/audiio-official-sub003/internal/models"
)

func newTestResolver() TargetResolver {
	testConfig := &config.Config{}
	testConfig.Downloads.DefaultDir = "/srv/media/downloads"
	testConfig.Downloads.Folders = []config.FolderConfig{
		{ID: "singles", Path: "/srv/media/singles", Kind: "audio"},
		{ID: "clips", Path: "/srv/media/clips", Kind: "video"},
		{Path: "/srv/media/inbox", Kind: "any"},
	}
	return NewResolver(testConfig)
}

func TestResolver_GetFolder(t *testing.T) {
	resolver := newTestResolver()

	folder := resolver.GetFolder("singles")
	if folder == nil {
		t.Fatal("Expected folder 'singles', got nil")
	}
	if folder.Path != "/srv/media/singles" {
		t.Errorf("Expected path '/srv/media/singles', got %q", folder.Path)
	}
	if folder.Kind != models.MediaKindAudio {
		t.Errorf("Expected audio kind, got %v", folder.Kind)
	}

	if unknown := resolver.GetFolder("does-not-exist"); unknown != nil {
		t.Errorf("Expected nil for an unknown id, got %+v", unknown)
	}
}

func TestResolver_GetFolder_PositionalID(t *testing.T) {
	resolver := newTestResolver()

	// The third folder has no declared id.
	folder := resolver.GetFolder("folder-3")
	if folder == nil {
		t.Fatal("Expected positional id 'folder-3' to resolve, got nil")
	}
	if folder.Path != "/srv/media/inbox" {
		t.Errorf("Expected path '/srv/media/inbox', got %q", folder.Path)
	}
}

func TestResolver_GetFolders(t *testing.T) {
	resolver := newTestResolver()

	audio := resolver.GetFolders(models.MediaKindAudio)
	if len(audio) != 2 {
		t.Fatalf("Expected 2 folders serving audio, got %d", len(audio))
	}
	// Configuration order decides the default pick.
	if audio[0].ID != "singles" {
		t.Errorf("Expected 'singles' first, got %q", audio[0].ID)
	}
	if audio[1].ID != "folder-3" {
		t.Errorf("Expected the any-kind folder second, got %q", audio[1].ID)
	}

	all := resolver.GetFolders(models.MediaKindUnknown)
	if len(all) != 3 {
		t.Errorf("Expected all 3 folders for the unknown kind, got %d", len(all))
	}
}

func TestResolver_ResolveDir(t *testing.T) {
	resolver := newTestResolver()

	tests := []struct {
		name       string
		folderID   string
		kind       models.MediaKind
		wantDir    string
		wantFolder string
	}{
		{"explicit folder", "clips", models.MediaKindAudio, "/srv/media/clips", "clips"},
		{"unknown folder falls back to kind", "gone", models.MediaKindVideo, "/srv/media/clips", "clips"},
		{"no folder picks first of kind", "", models.MediaKindAudio, "/srv/media/singles", "singles"},
		{"unknown kind picks first folder", "", models.MediaKindUnknown, "/srv/media/singles", "singles"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, id := resolver.ResolveDir(tt.folderID, tt.kind)
			if dir != tt.wantDir {
				t.Errorf("Expected dir %q, got %q", tt.wantDir, dir)
			}
			if id != tt.wantFolder {
				t.Errorf("Expected folder id %q, got %q", tt.wantFolder, id)
			}
		})
	}
}

func TestResolver_ResolveDir_DefaultFallback(t *testing.T) {
	testConfig := &config.Config{}
	testConfig.Downloads.DefaultDir = "/srv/media/downloads"
	resolver := NewResolver(testConfig)

	dir, id := resolver.ResolveDir("", models.MediaKindAudio)
	if dir != "/srv/media/downloads" {
		t.Errorf("Expected the default directory, got %q", dir)
	}
	if id != "" {
		t.Errorf("Expected an empty folder id for the default directory, got %q", id)
	}
}
