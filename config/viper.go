package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ceyewan/capsule/clog"
	"github.com/ceyewan/capsule/xerrors"
)

type loader struct {
	v      *viper.Viper
	cfg    *Config
	logger clog.Logger

	mu        sync.Mutex
	watches   map[string][]chan Event
	oldValues map[string]any
}

func newLoader(cfg *Config, o *options) *loader {
	return &loader{
		v:         viper.New(),
		cfg:       cfg,
		logger:    o.logger,
		watches:   make(map[string][]chan Event),
		oldValues: make(map[string]any),
	}
}

func (l *loader) Load(ctx context.Context) error {
	l.v.SetConfigName(l.cfg.Name)
	l.v.SetConfigType(l.cfg.FileType)
	for _, p := range l.cfg.Paths {
		l.v.AddConfigPath(p)
	}
	for k, val := range l.cfg.Defaults {
		l.v.SetDefault(k, val)
	}

	l.v.SetEnvPrefix(l.cfg.EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	// .env 只补充尚未设置的环境变量
	l.loadDotEnv()

	fileFound := true
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return xerrors.Wrapf(err, "read config file %s", l.cfg.Name)
		}
		fileFound = false
		l.logger.Warn("no configuration file found", clog.String("name", l.cfg.Name))
	}

	if err := l.mergeEnvironmentConfig(); err != nil {
		return err
	}
	if err := l.Validate(); err != nil {
		return err
	}

	if fileFound {
		l.v.OnConfigChange(l.onChange)
		l.v.WatchConfig()
	}
	return ctx.Err()
}

func (l *loader) loadDotEnv() {
	candidates := []string{".env"}
	for _, p := range l.cfg.Paths {
		candidates = append(candidates, filepath.Join(p, ".env"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			l.logger.Warn("failed to load .env", clog.String("path", path), clog.Error(err))
		}
	}
}

// mergeEnvironmentConfig 按 <PREFIX>_ENV 合并 config.<env>.yaml
func (l *loader) mergeEnvironmentConfig() error {
	env := os.Getenv(l.cfg.EnvPrefix + "_ENV")
	if env == "" {
		return nil
	}
	name := l.cfg.Name + "." + env
	l.v.SetConfigName(name)
	defer l.v.SetConfigName(l.cfg.Name)

	if err := l.v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return xerrors.Wrapf(err, "merge environment config %s", name)
		}
		l.logger.Info("no environment configuration file", clog.String("env", env))
		return nil
	}
	l.logger.Info("loaded environment configuration", clog.String("env", env))
	return nil
}

func (l *loader) Get(key string) any {
	return l.v.Get(key)
}

func (l *loader) Unmarshal(v any) error {
	return xerrors.Wrap(l.v.Unmarshal(v), "config: unmarshal")
}

func (l *loader) UnmarshalKey(key string, v any) error {
	return xerrors.Wrapf(l.v.UnmarshalKey(key, v), "config: unmarshal %s", key)
}

func (l *loader) Watch(ctx context.Context, key string) (<-chan Event, error) {
	if key == "" {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "config: empty watch key")
	}
	l.mu.Lock()
	ch := make(chan Event, 10)
	l.watches[key] = append(l.watches[key], ch)
	l.oldValues[key] = l.v.Get(key)
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.removeWatch(key, ch)
	}()
	return ch, nil
}

func (l *loader) removeWatch(key string, ch chan Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	chans := l.watches[key]
	for i, c := range chans {
		if c == ch {
			l.watches[key] = append(chans[:i], chans[i+1:]...)
			close(ch)
			break
		}
	}
	if len(l.watches[key]) == 0 {
		delete(l.watches, key)
		delete(l.oldValues, key)
	}
}

func (l *loader) Validate() error {
	if len(l.v.AllSettings()) == 0 {
		return xerrors.Wrap(ErrValidationFailed, "configuration is empty")
	}
	return nil
}

func (l *loader) onChange(e fsnotify.Event) {
	if err := l.mergeEnvironmentConfig(); err != nil {
		l.logger.Error("reload environment config failed", clog.Error(err))
	}
	l.logger.Info("configuration file changed", clog.String("file", e.Name), clog.String("op", e.Op.String()))
	l.notifyWatches()
}

func (l *loader) notifyWatches() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, chans := range l.watches {
		newValue := l.v.Get(key)
		oldValue := l.oldValues[key]
		if reflect.DeepEqual(oldValue, newValue) {
			continue
		}
		l.oldValues[key] = newValue
		event := Event{Key: key, Value: newValue, OldValue: oldValue, Source: "file", Timestamp: time.Now()}
		for _, ch := range chans {
			select {
			case ch <- event:
			default:
				l.logger.Warn("watch channel is full", clog.String("key", key))
			}
		}
	}
}
