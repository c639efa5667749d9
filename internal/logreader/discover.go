package logreader

import (
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const (
	workspaceStorageDir = "workspaceStorage"
	chatSessionsDir     = "chatSessions"
	emptyWindowDir      = "emptyWindowChatSessions"
	transferredDir      = "transferredChatSessions"
	workspaceDescriptor = "workspace.json"
	sessionFileExt      = ".json"
)

// Discover enumerates session log files under the known storage roots of
// baseDir. Directory listings only; file contents are never read here.
// Missing or unreadable roots are omitted, never an error.
func Discover(baseDir string) []DiscoveredFile {
	var files []DiscoveredFile

	// Workspace-scoped roots, one per workspace identity.
	wsRoot := filepath.Join(baseDir, workspaceStorageDir)
	if entries, err := os.ReadDir(wsRoot); err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			wsDir := filepath.Join(wsRoot, e.Name())
			files = append(files, listSessions(
				filepath.Join(wsDir, chatSessionsDir), StorageWorkspace, wsDir)...)
		}
	}

	files = append(files, listSessions(
		filepath.Join(baseDir, emptyWindowDir), StorageGlobal, "")...)
	files = append(files, listSessions(
		filepath.Join(baseDir, transferredDir), StorageTransferred, "")...)

	return files
}

// listSessions lists *.json session files directly under dir.
func listSessions(dir string, storage StorageType, wsDir string) []DiscoveredFile {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var files []DiscoveredFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), sessionFileExt) {
			continue
		}
		files = append(files, DiscoveredFile{
			Path:         filepath.Join(dir, e.Name()),
			Storage:      storage,
			WorkspaceDir: wsDir,
		})
	}
	return files
}

// workspaceMeta is the sibling descriptor file inside a workspaceStorage dir.
type workspaceMeta struct {
	Folder    string `json:"folder"`
	Workspace string `json:"workspace"`
}

// WorkspaceLabel resolves a workspace storage dir to a short human label by
// reading its descriptor file and deriving a basename from the folder URI.
// Resolution failure yields "" — the label is an enrichment, not a
// requirement.
func WorkspaceLabel(workspaceDir string) string {
	if workspaceDir == "" {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(workspaceDir, workspaceDescriptor))
	if err != nil {
		return ""
	}
	var meta workspaceMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return ""
	}
	target := meta.Folder
	if target == "" {
		target = meta.Workspace
	}
	if target == "" {
		return ""
	}
	if u, err := url.Parse(target); err == nil && u.Path != "" {
		target = u.Path
	}
	return fileBasename(target)
}
