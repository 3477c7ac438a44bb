package templating

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watch clears the template cache whenever a .ntpl file under the template
// directory changes. It blocks until ctx is cancelled. Directories created
// after Watch starts are picked up as they appear.
func (m *Manager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func(watcher *fsnotify.Watcher) {
		_ = watcher.Close()
	}(watcher)

	err = filepath.WalkDir(m.templateDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to watch template directory: %w", err)
	}
	m.logger.Info("Watching templates for changes", "template_dir", m.templateDir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err = watcher.Add(event.Name); err != nil {
						m.logger.Warn("Failed to watch new directory", "dir", event.Name, "error", err)
					}
					continue
				}
			}
			if strings.HasSuffix(event.Name, ".ntpl") {
				m.logger.Debug("Template changed", "file", event.Name, "op", event.Op.String())
				m.Refresh()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.logger.Error("Template watcher error", "error", err)
		}
	}
}
