package config

import (
	"context"
	"os"
	"sync"
	"time"

	"whatsbot/internal/constants"
	"whatsbot/internal/models"

	"github.com/sirupsen/logrus"
)

// fileStamp identifies one version of the watched file.
type fileStamp struct {
	modTime time.Time
	size    int64
}

func stampOf(path string) (fileStamp, error) {
	info, err := os.Stat(path)
	if err != nil {
		return fileStamp{}, err
	}
	return fileStamp{modTime: info.ModTime(), size: info.Size()}, nil
}

func (s fileStamp) newerThan(prev fileStamp) bool {
	return s.modTime.After(prev.modTime) || (s.modTime.Equal(prev.modTime) && s.size != prev.size)
}

// ConfigWatcher polls the config file and swaps in a new Config whenever it
// changes and still validates. Listeners run on their own goroutine.
type ConfigWatcher struct {
	configPath string
	interval   time.Duration
	settle     time.Duration
	logger     *logrus.Logger

	mu        sync.RWMutex
	config    *models.Config
	listeners []func(*models.Config)
}

func NewConfigWatcher(configPath string, logger *logrus.Logger) *ConfigWatcher {
	return &ConfigWatcher{
		configPath: configPath,
		interval:   constants.DefaultConfigReloadSec * time.Second,
		settle:     100 * time.Millisecond,
		logger:     logger,
	}
}

// SetInterval changes the polling period. Call before Start.
func (cw *ConfigWatcher) SetInterval(d time.Duration) {
	if d > 0 {
		cw.interval = d
	}
}

// Start performs the initial load and then polls until ctx is done. Only the
// initial load can make it fail.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	initial, err := LoadConfig(cw.configPath)
	if err != nil {
		return err
	}
	last, err := stampOf(cw.configPath)
	if err != nil {
		return err
	}

	cw.mu.Lock()
	cw.config = initial
	cw.mu.Unlock()

	log := cw.logger.WithField("path", cw.configPath)
	log.Info("Watching configuration file")

	ticker := time.NewTicker(cw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("Configuration watcher stopped")
			return nil
		case <-ticker.C:
			current, err := stampOf(cw.configPath)
			if err != nil {
				log.WithError(err).Error("Cannot stat configuration file")
				continue
			}
			if !current.newerThan(last) {
				continue
			}
			last = current

			// Editors often write in several steps.
			time.Sleep(cw.settle)
			cw.reloadConfig()
		}
	}
}

// GetConfig returns the active configuration, nil before Start succeeds.
func (cw *ConfigWatcher) GetConfig() *models.Config {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.config
}

// OnConfigChange adds fn to the listeners notified after each reload.
func (cw *ConfigWatcher) OnConfigChange(fn func(*models.Config)) {
	cw.mu.Lock()
	cw.listeners = append(cw.listeners, fn)
	cw.mu.Unlock()
}

// reloadConfig keeps the previous configuration when the file no longer
// loads.
func (cw *ConfigWatcher) reloadConfig() {
	next, err := LoadConfig(cw.configPath)
	if err != nil {
		cw.logger.WithError(err).Error("Failed to reload configuration")
		return
	}

	cw.mu.Lock()
	prev := cw.config
	cw.config = next
	listeners := append(([]func(*models.Config))(nil), cw.listeners...)
	cw.mu.Unlock()

	cw.logger.WithField("path", cw.configPath).Info("Configuration reloaded")
	cw.logConfigChanges(prev, next)

	for _, fn := range listeners {
		go cw.notify(fn, next)
	}
}

func (cw *ConfigWatcher) notify(fn func(*models.Config), cfg *models.Config) {
	defer func() {
		if r := recover(); r != nil {
			cw.logger.WithField("panic", r).Error("Config change callback panicked")
		}
	}()
	fn(cfg)
}

// configChange is one notable difference between two configurations.
type configChange struct {
	message string
	level   logrus.Level
	fields  logrus.Fields
}

func diffConfig(prev, next *models.Config) []configChange {
	var out []configChange
	if prev.LogLevel != next.LogLevel {
		out = append(out, configChange{
			message: "Log level changed",
			level:   logrus.InfoLevel,
			fields:  logrus.Fields{"old": prev.LogLevel, "new": next.LogLevel},
		})
	}
	if prev.Mode != next.Mode || prev.API.BaseURL != next.API.BaseURL {
		out = append(out, configChange{
			message: "Backend settings changed; restart to apply",
			level:   logrus.WarnLevel,
			fields:  logrus.Fields{"old_mode": prev.Mode, "new_mode": next.Mode},
		})
	}
	if prev.Dashboard != next.Dashboard {
		out = append(out, configChange{
			message: "Dashboard intervals changed; restart to apply",
			level:   logrus.InfoLevel,
			fields: logrus.Fields{
				"analytics_interval_sec": next.Dashboard.AnalyticsIntervalSec,
				"live_refresh_sec":       next.Dashboard.LiveRefreshIntervalSec,
			},
		})
	}
	return out
}

func (cw *ConfigWatcher) logConfigChanges(prev, next *models.Config) {
	if prev == nil {
		return
	}
	for _, c := range diffConfig(prev, next) {
		cw.logger.WithFields(c.fields).Log(c.level, c.message)
	}
}
