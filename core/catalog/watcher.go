package catalog

import (
	"context"
	"path/filepath"
	"time"

	"karaoke/logger"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher re-imports the catalog file whenever it changes on disk.
type Watcher struct {
	path     string
	importer *Importer
	debounce time.Duration

	// OnImport is called after each import attempt; used by tests.
	OnImport func(Result, error)
}

// NewWatcher 创建曲库文件监听器
func NewWatcher(path string, importer *Importer) *Watcher {
	return &Watcher{
		path:     filepath.Clean(path),
		importer: importer,
		debounce: defaultDebounce,
	}
}

// Run imports the file once, then again after every change until ctx ends.
// The parent directory is watched so editors that replace the file by rename
// are picked up.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	logger.Info("[Catalog] watching", logger.String("file", w.path))

	w.importOnce(ctx)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// 编辑器保存时常连续触发多次事件
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("[Catalog] watcher error", logger.ErrorField(err))
		case <-timer.C:
			w.importOnce(ctx)
		}
	}
}

func (w *Watcher) importOnce(ctx context.Context) {
	res, err := w.importer.ImportFile(ctx, w.path)
	if err != nil {
		logger.Error("[Catalog] import failed",
			logger.String("file", w.path),
			logger.ErrorField(err))
	}
	if w.OnImport != nil {
		w.OnImport(res, err)
	}
}
