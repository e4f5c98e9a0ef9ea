package api

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

type dirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"isDir"`
}

// BrowseFilesystem handles GET /filesystem/browse?path=: lists a directory's
// immediate children, restricted to cfg.ProjectDirs when the allowlist is
// configured and always gated by cfg.EnableDirectoryBrowser.
func (h *Handlers) BrowseFilesystem(c *gin.Context) {
	cfg := h.server.Config()
	if !cfg.EnableDirectoryBrowser {
		RespondForbidden(c, "directory browsing is disabled")
		return
	}

	path := c.Query("path")
	if path == "" {
		if len(cfg.ProjectDirs) > 0 {
			path = cfg.ProjectDirs[0]
		} else {
			RespondBadRequest(c, "path is required")
			return
		}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		RespondBadRequest(c, "invalid path")
		return
	}

	if len(cfg.ProjectDirs) > 0 && !underAnyProjectDir(abs, cfg.ProjectDirs) {
		RespondForbidden(c, "path is outside the configured project directories")
		return
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		RespondNotFound(c, "path not found")
		return
	}

	out := make([]dirEntry, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		out = append(out, dirEntry{Name: e.Name(), IsDir: e.IsDir()})
	}

	RespondData(c, gin.H{"path": abs, "entries": out})
}

func underAnyProjectDir(path string, dirs []string) bool {
	for _, d := range dirs {
		absDir, err := filepath.Abs(d)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(absDir, path)
		if err == nil && !strings.HasPrefix(rel, "..") {
			return true
		}
	}
	return false
}
