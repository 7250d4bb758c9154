package slashcmd

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cexll/agentexec-go/pkg/logs"
)

const defaultWatchDebounce = 750 * time.Millisecond

// Watcher invalidates cached slash command descriptions when command or skill
// files change on disk. Change notifications are debounced; the callback runs
// on a background goroutine.
type Watcher struct {
	onChange func()
	logger   logs.Logger
	debounce time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	fsw      *fsnotify.Watcher
	stopCh   chan struct{}
	stopOnce sync.Once
}

// WatchCommandDirs watches the command and skill directories under the given
// base paths (typically <project>/.claude and <home>/.claude). Directories
// that do not exist are skipped. The watcher runs until Stop.
func WatchCommandDirs(basePaths []string, onChange func(), logger logs.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		onChange: onChange,
		logger:   logs.OrNop(logger),
		debounce: defaultWatchDebounce,
		fsw:      fsw,
		stopCh:   make(chan struct{}),
	}
	for _, base := range basePaths {
		for _, sub := range []string{"commands", "skills"} {
			dir := filepath.Join(base, sub)
			if info, err := os.Stat(dir); err != nil || !info.IsDir() {
				continue
			}
			if err := fsw.Add(dir); err != nil {
				w.logger.Printf("slashcmd: watch %s: %v", dir, err)
			}
		}
	}
	go w.loop()
	return w, nil
}

// Stop terminates the watcher. Idempotent.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
			w.timer = nil
		}
		w.mu.Unlock()
		_ = w.fsw.Close()
	})
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Printf("slashcmd: watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	name := filepath.Base(event.Name)
	if !strings.HasSuffix(name, ".md") && event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	w.schedule()
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.stopCh:
			return
		default:
		}
		w.onChange()
	})
}
