package recommender

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of file events a rebuild install emits.
const reloadDebounce = 200 * time.Millisecond

// ArtifactWatcher reloads the engine's artifact set when a rebuild installs
// a new generation in the artifact directory. Installs are detected by
// watching the manifest, which is always the last file written.
type ArtifactWatcher struct {
	dir     string
	engine  *Engine
	logger  *slog.Logger
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewArtifactWatcher starts watching dir for manifest changes.
func NewArtifactWatcher(dir string, engine *Engine, logger *slog.Logger) (*ArtifactWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch artifact dir %s: %w", dir, err)
	}

	w := &ArtifactWatcher{
		dir:     dir,
		engine:  engine,
		logger:  logger,
		watcher: fsw,
		done:    make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *ArtifactWatcher) run() {
	var pending *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != ManifestFile {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(reloadDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			set := LoadArtifactSet(w.dir, w.logger)
			w.engine.Install(set)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("artifact watcher error", "error", err)
		}
	}
}

// Close stops the watcher.
func (w *ArtifactWatcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
