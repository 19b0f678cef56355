// Package config loads engine settings from a file (TOML, YAML or JSON, by
// extension) and turns them into memocache.Options, a logger and a
// persistence provider.
//
//	Scope = "process"
//	LockPool = 100
//
//	[Log]
//	Level = "debug"
//	FilePath = "/var/log/app/memocache.log"
//
//	[Persist]
//	Provider = "redis"
//	RedisAddr = "localhost:6379"
//	RedisPrefix = "memocache:"
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/unkn0wn-root/memocache"
	mlogrus "github.com/unkn0wn-root/memocache/log/logrus"
	"github.com/unkn0wn-root/memocache/provider"
	"github.com/unkn0wn-root/memocache/provider/bigcache"
	"github.com/unkn0wn-root/memocache/provider/file"
	"github.com/unkn0wn-root/memocache/provider/redis"
	"github.com/unkn0wn-root/memocache/provider/ristretto"
)

var ErrUnknownProvider = errors.New("config: unknown persist provider")

type Config struct {
	Scope       memocache.Scope
	LockPool    int
	PerKeyLocks bool
	MaxDepth    int

	Log     LogConfig
	Persist PersistConfig
}

type LogConfig struct {
	Level      string // logrus level name
	FilePath   string // "" => stdout
	MaxSize    int    // MB before rotation
	MaxBackups int
	Compress   bool
}

type PersistConfig struct {
	Provider string // file | redis | bigcache | ristretto
	Root     string // file: directory for relative paths

	RedisAddr   string
	RedisPrefix string

	MemoryMB int // bigcache / ristretto capacity
}

// Load reads path and applies defaults for everything it leaves out.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(scopeDecodeHook())); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if cfg.LockPool < 0 || cfg.MaxDepth < 0 {
		return nil, fmt.Errorf("config: LockPool and MaxDepth must not be negative")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("Scope", string(memocache.ScopeProcess))
	v.SetDefault("LockPool", memocache.DefaultLockPool)
	v.SetDefault("PerKeyLocks", false)
	v.SetDefault("MaxDepth", memocache.DefaultMaxDepth)
	v.SetDefault("Log.Level", "info")
	v.SetDefault("Log.FilePath", "")
	v.SetDefault("Log.MaxSize", 100)
	v.SetDefault("Log.MaxBackups", 10)
	v.SetDefault("Log.Compress", true)
	v.SetDefault("Persist.Provider", "file")
	v.SetDefault("Persist.MemoryMB", 64)
}

func scopeDecodeHook() mapstructure.DecodeHookFunc {
	target := reflect.TypeOf(memocache.Scope(""))

	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != target || from.Kind() != reflect.String {
			return data, nil
		}
		return memocache.ParseScope(data.(string))
	}
}

// Options returns engine options carrying l and h.
func (c *Config) Options(l memocache.Logger, h memocache.Hooks) memocache.Options {
	return memocache.Options{
		Scope:       c.Scope,
		LockPool:    c.LockPool,
		PerKeyLocks: c.PerKeyLocks,
		MaxDepth:    c.MaxDepth,
		Logger:      l,
		Hooks:       h,
	}
}

// NewLogger builds a JSON logrus logger writing to stdout or, with
// Log.FilePath set, to a rotating file. If the log directory cannot be
// created it falls back to stdout and says so in the first line.
func (c *Config) NewLogger() (memocache.Logger, *logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("config: log level: %w", err)
	}
	out, outErr := c.logOutput()

	l := logrus.New()
	l.SetLevel(level)
	l.SetOutput(out)
	l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	if outErr != nil {
		l.WithFields(logrus.Fields{"action": "logger_fallback", "path": c.Log.FilePath}).Warn(outErr.Error())
	}
	return mlogrus.New(l), l, nil
}

func (c *Config) logOutput() (io.Writer, error) {
	if c.Log.FilePath == "" {
		return os.Stdout, nil
	}
	if err := os.MkdirAll(filepath.Dir(c.Log.FilePath), 0o755); err != nil {
		return os.Stdout, fmt.Errorf("create log directory: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   c.Log.FilePath,
		MaxSize:    c.Log.MaxSize,
		MaxBackups: c.Log.MaxBackups,
		Compress:   c.Log.Compress,
		LocalTime:  true,
	}, nil
}

// NewProvider builds the persistence provider named by Persist.Provider.
// The caller owns it and must Close it.
func (c *Config) NewProvider() (provider.Provider, error) {
	p := c.Persist
	var (
		prov provider.Provider
		err  error
	)
	switch p.Provider {
	case "", "file":
		prov = file.New(file.Config{Root: p.Root})
	case "redis":
		rdb := goredis.NewClient(&goredis.Options{Addr: p.RedisAddr})
		prov, err = redis.New(redis.Config{Client: rdb, Prefix: p.RedisPrefix, CloseClient: true})
	case "bigcache":
		prov, err = bigcache.New(bigcache.Config{HardMaxCacheSizeMB: p.MemoryMB})
	case "ristretto":
		prov, err = ristretto.New(ristretto.Config{NumCounters: 1e6, MaxCost: int64(p.MemoryMB) << 20, BufferItems: 64})
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownProvider, p.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("config: %s provider: %w", p.Provider, err)
	}
	return prov, nil
}
