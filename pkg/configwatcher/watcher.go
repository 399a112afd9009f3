package configwatcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"roadmap_analysis/internal/config"
	"roadmap_analysis/pkg/logger"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = time.Second

// Reloader 接收重新加载后的配置
type Reloader func(cfg *config.Config) error

// Watcher 监听配置文件变化，防抖后重新加载并通知所有回调
type Watcher struct {
	file     string
	Debounce time.Duration

	load      func(dir string) (*config.Config, error)
	mu        sync.Mutex
	reloaders []Reloader
}

func New(configFile string) (*Watcher, error) {
	abs, err := filepath.Abs(configFile)
	if err != nil {
		return nil, err
	}
	return &Watcher{file: abs, Debounce: defaultDebounce, load: config.LoadConfig}, nil
}

func (w *Watcher) OnReload(r Reloader) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reloaders = append(w.reloaders, r)
}

// Run 阻塞直到 ctx 结束。监听所在目录，编辑器以重命名方式保存时同样能收到事件。
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.file)); err != nil {
		return err
	}
	logger.Log.Info("Watching config file", zap.String("file", w.file))

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.file {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			// 防抖处理
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.Debounce)
			fire = timer.C
		case <-fire:
			fire = nil
			w.reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Log.Error("Config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := w.load(filepath.Dir(w.file))
	if err != nil {
		logger.Log.Error("Failed to reload config", zap.Error(err))
		return
	}

	w.mu.Lock()
	reloaders := append([]Reloader(nil), w.reloaders...)
	w.mu.Unlock()

	for _, r := range reloaders {
		if err := r(cfg); err != nil {
			logger.Log.Error("Config reload callback failed", zap.Error(err))
		}
	}
	logger.Log.Info("Config reloaded", zap.Int("callbacks", len(reloaders)))
}
