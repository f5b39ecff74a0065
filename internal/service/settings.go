package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"pulseflow/internal/model"
	"pulseflow/internal/repository"
	"pulseflow/pkg/constraints"
	"pulseflow/pkg/logger"

	"go.uber.org/zap"
)

// SettingDefaults apply whenever the settings table lacks a key or holds a bad value.
type SettingDefaults struct {
	Cooldown      time.Duration
	RetryCount    int
	RetryDelay    time.Duration
	TemplateMode  string
	CheckInterval time.Duration
}

// SettingsCache keeps the runtime tunables in memory. Readers never touch the
// database; Refresh swaps the whole snapshot.
type SettingsCache struct {
	repo     repository.SettingInterface
	defaults SettingDefaults

	mu     sync.RWMutex
	values map[string]string
	loaded time.Time
	closed bool
}

func NewSettingsCache(repo repository.SettingInterface, defaults SettingDefaults) *SettingsCache {
	if defaults.RetryCount < 1 {
		defaults.RetryCount = 1
	}
	if !constraints.IsValidStorageMode(defaults.TemplateMode) {
		defaults.TemplateMode = constraints.StorageHybrid
	}
	return &SettingsCache{
		repo:     repo,
		defaults: defaults,
		values:   make(map[string]string),
	}
}

// Init performs the first load. Startup should fail if it returns an error.
func (c *SettingsCache) Init(ctx context.Context) error {
	if err := c.Refresh(ctx); err != nil {
		return fmt.Errorf("load system settings: %w", err)
	}
	logger.Info("system settings loaded",
		zap.Duration("cooldown", c.Cooldown()),
		zap.Int("retry_count", c.RetryCount()),
		zap.String("template_mode", c.TemplateMode()),
	)
	return nil
}

// Refresh replaces the snapshot. On error the previous values stay in effect.
func (c *SettingsCache) Refresh(ctx context.Context) error {
	values, err := c.repo.LoadAll(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.values = values
	c.loaded = time.Now()
	return nil
}

func (c *SettingsCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *SettingsCache) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

func (c *SettingsCache) Cooldown() time.Duration {
	if n, ok := c.positiveInt(model.SettingCooldownMinutes); ok {
		return time.Duration(n) * time.Minute
	}
	return c.defaults.Cooldown
}

func (c *SettingsCache) RetryCount() int {
	if n, ok := c.positiveInt(model.SettingRetryCount); ok {
		return n
	}
	return c.defaults.RetryCount
}

func (c *SettingsCache) RetryDelay() time.Duration {
	if n, ok := c.nonNegativeInt(model.SettingRetryDelaySeconds); ok {
		return time.Duration(n) * time.Second
	}
	return c.defaults.RetryDelay
}

func (c *SettingsCache) TemplateMode() string {
	if v, ok := c.get(model.SettingTemplateMode); ok && constraints.IsValidStorageMode(v) {
		return v
	}
	return c.defaults.TemplateMode
}

func (c *SettingsCache) CheckInterval() time.Duration {
	if n, ok := c.positiveInt(model.SettingCheckIntervalSecs); ok {
		return time.Duration(n) * time.Second
	}
	return c.defaults.CheckInterval
}

func (c *SettingsCache) get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

func (c *SettingsCache) positiveInt(key string) (int, bool) {
	n, ok := c.nonNegativeInt(key)
	return n, ok && n > 0
}

func (c *SettingsCache) nonNegativeInt(key string) (int, bool) {
	v, ok := c.get(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		logger.Warn("ignoring malformed system setting", zap.String("key", key), zap.String("value", v))
		return 0, false
	}
	return n, true
}
