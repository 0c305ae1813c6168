package executor

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var (
	imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".svg": true}
	textExts  = map[string]bool{".txt": true, ".log": true, ".md": true, ".json": true, ".csv": true}
)

// snapshot maps file path to modification time
type snapshot map[string]time.Time

func takeSnapshot(dir string) snapshot {
	snap := make(snapshot)
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			snap[path] = info.ModTime()
		}
		return nil
	})
	return snap
}

// collectArtifacts returns image and text files created or modified since before
func collectArtifacts(dir string, before snapshot, skip string) (images, texts []string) {
	after := takeSnapshot(dir)
	for path, mod := range after {
		if path == skip {
			continue
		}
		if prev, ok := before[path]; ok && !mod.After(prev) {
			continue
		}
		ext := strings.ToLower(filepath.Ext(path))
		switch {
		case imageExts[ext]:
			images = append(images, path)
		case textExts[ext]:
			texts = append(texts, path)
		}
	}
	sort.Strings(images)
	sort.Strings(texts)
	return images, texts
}
