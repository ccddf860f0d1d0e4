// Package config loads client settings from a file and the environment.
//
// Sources are merged in viper's usual order: explicit file values override
// environment variables, which override defaults. Environment variables
// use the DS_ prefix with underscores (DS_API_KEY, DS_BASE_URL, ...).
// When a file is used, it is watched and changes are delivered through
// OnChange callbacks.
package config

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const envPrefix = "DS"

// Config holds everything needed to construct a DeepSeek client.
type Config struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`

	// Timeout bounds one request including the full streamed body.
	Timeout time.Duration `mapstructure:"timeout"`

	// MaxRetries caps transport-level retry attempts for retryable failures.
	MaxRetries int `mapstructure:"max_retries"`

	// StrictFinish makes a stream that closes without the end marker a
	// protocol error instead of finalizing open choices leniently.
	StrictFinish bool `mapstructure:"strict_finish"`
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("config: api_key is required (set DS_API_KEY or api_key)")
	}
	return nil
}

// Loader owns a loaded Config and its file watcher.
type Loader struct {
	v  *viper.Viper
	mu sync.RWMutex

	value    Config
	watchers []func(old, new Config)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("base_url", "https://api.deepseek.com")
	v.SetDefault("model", "deepseek-chat")
	v.SetDefault("timeout", 2*time.Minute)
	v.SetDefault("max_retries", 3)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// FromEnv builds a Config from environment variables and defaults only.
func FromEnv() (Config, error) {
	var cfg Config
	if err := newViper().Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, cfg.Validate()
}

// Load reads path (yaml/json/toml by extension), layers it over the
// environment, and starts watching the file for changes.
func Load(path string) (*Loader, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	l := &Loader{v: v}
	if err := v.Unmarshal(&l.value); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := l.value.Validate(); err != nil {
		return nil, err
	}

	l.watch()
	return l, nil
}

// Get returns the current Config. Safe for concurrent use.
func (l *Loader) Get() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.value
}

// OnChange registers a callback invoked after the watched file reloads
// with a different value. Callbacks run on the watcher goroutine.
func (l *Loader) OnChange(cb func(old, new Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.watchers = append(l.watchers, cb)
}

func (l *Loader) watch() {
	var (
		debounceMu    sync.Mutex
		debounceTimer *time.Timer
	)

	// Editors fire several fsnotify events per save; debounce them.
	l.v.OnConfigChange(func(_ fsnotify.Event) {
		debounceMu.Lock()
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		debounceTimer = time.AfterFunc(100*time.Millisecond, l.reload)
		debounceMu.Unlock()
	})

	l.v.WatchConfig()
}

func (l *Loader) reload() {
	l.mu.Lock()
	old := l.value

	var next Config
	if err := l.v.ReadInConfig(); err != nil {
		l.mu.Unlock()
		return
	}
	if err := l.v.Unmarshal(&next); err != nil || next.Validate() != nil {
		l.mu.Unlock()
		return
	}
	l.value = next

	watchers := make([]func(old, new Config), len(l.watchers))
	copy(watchers, l.watchers)
	l.mu.Unlock()

	if reflect.DeepEqual(old, next) {
		return
	}
	for _, cb := range watchers {
		func() {
			defer func() { _ = recover() }()
			cb(old, next)
		}()
	}
}
