// Package config loads the daemon's hub.yaml (or HUB_CONFIG override) via
// viper and watches it for live reload via fsnotify, following the same
// yaml-backed, env-overridable settings idiom the teacher repo uses for its
// own project config.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/agenthub/hub/internal/sla"
)

// Features is the independent feature flag set named in the daemon
// bootstrap component: each flag gates whether its component is
// instantiated at all.
type Features struct {
	Streaming         bool `mapstructure:"streaming"`
	ReviewBundles     bool `mapstructure:"reviewBundles"`
	AutoAcceptance    bool `mapstructure:"autoAcceptance"`
	CapabilityRouting bool `mapstructure:"capabilityRouting"`
	SLAEngine         bool `mapstructure:"slaEngine"`
	KnowledgeIndex    bool `mapstructure:"knowledgeIndex"`
	GithubIntegration bool `mapstructure:"githubIntegration"`
	Workflow          bool `mapstructure:"workflow"`
	Retro             bool `mapstructure:"retro"`
	Sessions          bool `mapstructure:"sessions"`
	Trust             bool `mapstructure:"trust"`
	CircuitBreaker    bool `mapstructure:"circuitBreaker"`
	EntireMonitoring  bool `mapstructure:"entireMonitoring"`
	Reliability       bool `mapstructure:"reliability"`
	CognitiveFriction bool `mapstructure:"cognitiveFriction"`
}

// DefaultFeatures enables every component except github integration, entire
// monitoring, the reliability watchdog and the cognitive-friction gate.
func DefaultFeatures() Features {
	return Features{
		Streaming:         true,
		ReviewBundles:     true,
		AutoAcceptance:    true,
		CapabilityRouting: true,
		SLAEngine:         true,
		KnowledgeIndex:    true,
		GithubIntegration: false,
		Workflow:          true,
		Retro:             true,
		Sessions:          true,
		Trust:             true,
		CircuitBreaker:    true,
		EntireMonitoring:  false,
		Reliability:       false,
		CognitiveFriction: false,
	}
}

// Config is the daemon's full startup + reloadable configuration.
type Config struct {
	HubDir     string `mapstructure:"hubDir"`
	RepoPath   string `mapstructure:"repoPath"`
	SocketPath string `mapstructure:"socketPath"`
	PIDPath    string `mapstructure:"pidPath"`
	TokensDir  string `mapstructure:"tokensDir"`

	MaxConns       int           `mapstructure:"maxConns"`
	RequestTimeout time.Duration `mapstructure:"requestTimeout"`

	EventLogPath    string `mapstructure:"eventLogPath"`
	EventLogMaxMB   int64  `mapstructure:"eventLogMaxMB"`
	EventLogMaxDays int    `mapstructure:"eventLogMaxDays"`

	CircuitFailureThreshold int           `mapstructure:"circuitFailureThreshold"`
	CircuitWindow           time.Duration `mapstructure:"circuitWindow"`
	CircuitQuarantine       time.Duration `mapstructure:"circuitQuarantine"`

	RejectionEscalationThreshold int `mapstructure:"rejectionEscalationThreshold"`

	CooldownMinutes float64 `mapstructure:"cooldownMinutes"`

	ClassicSLA sla.ClassicThresholds `mapstructure:"classicSLA"`

	Features Features `mapstructure:"features"`
}

// Default returns sane defaults rooted at hubDir, mirroring the constants
// each owning component already falls back to internally.
func Default(hubDir string) Config {
	repoPath := hubDir
	if wd, err := os.Getwd(); err == nil {
		repoPath = wd
	}
	return Config{
		HubDir:          hubDir,
		RepoPath:        repoPath,
		SocketPath:      filepath.Join(hubDir, "hub.sock"),
		PIDPath:         filepath.Join(hubDir, "hubd.pid"),
		TokensDir:       filepath.Join(hubDir, "tokens"),
		MaxConns:        100,
		RequestTimeout:  60 * time.Second,
		EventLogPath:    filepath.Join(hubDir, "events.ndjson"),
		EventLogMaxMB:   100,
		EventLogMaxDays: 7,

		CircuitFailureThreshold: 3,
		CircuitWindow:           10 * time.Minute,
		CircuitQuarantine:       30 * time.Minute,

		RejectionEscalationThreshold: 3,
		CooldownMinutes:              15,

		ClassicSLA: sla.DefaultClassicThresholds(),

		Features: DefaultFeatures(),
	}
}

// Loader owns the viper instance and an optional fsnotify watch, so hub.yaml
// edits take effect without restarting the daemon.
type Loader struct {
	v *viper.Viper

	mu  sync.RWMutex
	cur Config

	onChange []func(Config)
}

// NewLoader reads hub.yaml from hubDir (or the path in HUB_CONFIG), layering
// it over Default(hubDir).
func NewLoader(hubDir string) (*Loader, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	path := os.Getenv("HUB_CONFIG")
	if path == "" {
		path = filepath.Join(hubDir, "hub.yaml")
	}
	v.SetConfigFile(path)

	l := &Loader{v: v, cur: Default(hubDir)}

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		cfg := l.cur
		if err := v.Unmarshal(&cfg); err != nil {
			return nil, fmt.Errorf("config: unmarshal %s: %w", path, err)
		}
		l.cur = cfg
	}

	return l, nil
}

// Current returns a snapshot of the live config.
func (l *Loader) Current() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cur
}

// OnChange registers a callback invoked (with the new config) after a
// successful reload. Callbacks run synchronously on the watcher goroutine.
func (l *Loader) OnChange(fn func(Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch starts an fsnotify watch on the config file directory and reloads
// on write events until ctx-equivalent stop is requested via the returned
// stop function.
func (l *Loader) Watch() (stop func(), err error) {
	configFile := l.v.ConfigFileUsed()
	if configFile == "" {
		return func() {}, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: new watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(configFile)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("config: watch %s: %w", configFile, err)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(configFile) {
					continue
				}
				if !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
					continue
				}
				l.reload()
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			case <-done:
				watcher.Close()
				return
			}
		}
	}()

	return func() { close(done) }, nil
}

func (l *Loader) reload() {
	if err := l.v.ReadInConfig(); err != nil {
		return
	}

	l.mu.Lock()
	cfg := l.cur
	if err := l.v.Unmarshal(&cfg); err != nil {
		l.mu.Unlock()
		return
	}
	l.cur = cfg
	callbacks := append([]func(Config){}, l.onChange...)
	l.mu.Unlock()

	for _, fn := range callbacks {
		fn(cfg)
	}
}
