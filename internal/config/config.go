package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	DefaultBackend string           `mapstructure:"default_backend"`
	AR             BackendPaths     `mapstructure:"ar"`
	Diffusion      DiffusionConfig  `mapstructure:"diffusion"`
	Cache          CacheConfig      `mapstructure:"cache"`
	Queue          QueueConfig      `mapstructure:"queue"`
	Runtime        RuntimeConfig    `mapstructure:"runtime"`
	LogLevel       string           `mapstructure:"log_level"`
}

// BackendPaths locates the on-disk asset directory for one back-end.
type BackendPaths struct {
	ModelDir string `mapstructure:"model_dir"`
}

// DiffusionConfig carries the diffusion back-end's asset directory plus its
// scheduler defaults (overridable per-request within the validation ranges
// in the external interface).
type DiffusionConfig struct {
	ModelDir        string  `mapstructure:"model_dir"`
	DefaultSteps    int     `mapstructure:"ace_step_default_steps"`
	DefaultSchedule string  `mapstructure:"ace_step_default_scheduler"`
	DefaultGuidance float64 `mapstructure:"ace_step_default_guidance"`
}

type CacheConfig struct {
	Dir       string `mapstructure:"dir"`
	MaxMB     int    `mapstructure:"max_mb"`
	MaxTracks int    `mapstructure:"max_tracks"`
}

type QueueConfig struct {
	AdmissionBound int `mapstructure:"admission_bound"`
}

type RuntimeConfig struct {
	Device         string `mapstructure:"device"`
	Threads        int    `mapstructure:"threads"`
	ORTLibraryPath string `mapstructure:"ort_library_path"`
	ORTVersion     string `mapstructure:"ort_version"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		DefaultBackend: BackendAR,
		AR: BackendPaths{
			ModelDir: "models/ar",
		},
		Diffusion: DiffusionConfig{
			ModelDir:        "models/diffusion",
			DefaultSteps:    60,
			DefaultSchedule: "euler",
			DefaultGuidance: 15.0,
		},
		Cache: CacheConfig{
			Dir:       "cache",
			MaxMB:     4096,
			MaxTracks: 0,
		},
		Queue: QueueConfig{
			AdmissionBound: 8,
		},
		Runtime: RuntimeConfig{
			Device:         "auto",
			Threads:        0,
			ORTLibraryPath: "",
			ORTVersion:     "",
		},
		LogLevel: "info",
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("default-backend", defaults.DefaultBackend, "Back-end selected when a generate request omits one (ar|diffusion)")
	fs.String("ar-model-dir", defaults.AR.ModelDir, "Asset directory for the autoregressive back-end")
	fs.String("diffusion-model-dir", defaults.Diffusion.ModelDir, "Asset directory for the diffusion back-end")
	fs.Int("diffusion-default-steps", defaults.Diffusion.DefaultSteps, "Default diffusion inference step count")
	fs.String("diffusion-default-scheduler", defaults.Diffusion.DefaultSchedule, "Default diffusion scheduler (euler|heun|pingpong)")
	fs.Float64("diffusion-default-guidance", defaults.Diffusion.DefaultGuidance, "Default diffusion classifier-free guidance scale")
	fs.String("cache-dir", defaults.Cache.Dir, "Track cache directory")
	fs.Int("cache-max-mb", defaults.Cache.MaxMB, "Track cache LRU size ceiling in megabytes")
	fs.Int("cache-max-tracks", defaults.Cache.MaxTracks, "Optional track cache count ceiling (0 = unbounded)")
	fs.Int("queue-admission-bound", defaults.Queue.AdmissionBound, "Maximum queued jobs before generate is rejected")
	fs.String("device", defaults.Runtime.Device, "ONNX Runtime execution provider (auto|cpu|cuda|metal)")
	fs.Int("threads", defaults.Runtime.Threads, "ONNX Runtime intra-op thread count (0 = auto)")
	fs.String("ort-lib", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library")
	fs.String("ort-version", defaults.Runtime.ORTVersion, "Expected ONNX Runtime version")
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := v.BindPFlags(opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}
	registerAliases(v)

	v.SetEnvPrefix("MUSICDAEMON")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	if err := v.BindEnv("runtime.ort_library_path", "MUSICDAEMON_ORT_LIB", "ORT_LIBRARY_PATH"); err != nil {
		return Config{}, fmt.Errorf("bind ort env vars: %w", err)
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("musicdaemon")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("default_backend", c.DefaultBackend)
	v.SetDefault("ar.model_dir", c.AR.ModelDir)
	v.SetDefault("diffusion.model_dir", c.Diffusion.ModelDir)
	v.SetDefault("diffusion.ace_step_default_steps", c.Diffusion.DefaultSteps)
	v.SetDefault("diffusion.ace_step_default_scheduler", c.Diffusion.DefaultSchedule)
	v.SetDefault("diffusion.ace_step_default_guidance", c.Diffusion.DefaultGuidance)
	v.SetDefault("cache.dir", c.Cache.Dir)
	v.SetDefault("cache.max_mb", c.Cache.MaxMB)
	v.SetDefault("cache.max_tracks", c.Cache.MaxTracks)
	v.SetDefault("queue.admission_bound", c.Queue.AdmissionBound)
	v.SetDefault("runtime.device", c.Runtime.Device)
	v.SetDefault("runtime.threads", c.Runtime.Threads)
	v.SetDefault("runtime.ort_library_path", c.Runtime.ORTLibraryPath)
	v.SetDefault("runtime.ort_version", c.Runtime.ORTVersion)
	v.SetDefault("log_level", c.LogLevel)
}

func registerAliases(v *viper.Viper) {
	v.RegisterAlias("default_backend", "default-backend")
	v.RegisterAlias("ar.model_dir", "ar-model-dir")
	v.RegisterAlias("diffusion.model_dir", "diffusion-model-dir")
	v.RegisterAlias("diffusion.ace_step_default_steps", "diffusion-default-steps")
	v.RegisterAlias("diffusion.ace_step_default_scheduler", "diffusion-default-scheduler")
	v.RegisterAlias("diffusion.ace_step_default_guidance", "diffusion-default-guidance")
	v.RegisterAlias("cache.dir", "cache-dir")
	v.RegisterAlias("cache.max_mb", "cache-max-mb")
	v.RegisterAlias("cache.max_tracks", "cache-max-tracks")
	v.RegisterAlias("queue.admission_bound", "queue-admission-bound")
	v.RegisterAlias("runtime.device", "device")
	v.RegisterAlias("runtime.threads", "threads")
	v.RegisterAlias("runtime.ort_library_path", "ort-lib")
	v.RegisterAlias("runtime.ort_version", "ort-version")
	v.RegisterAlias("log_level", "log-level")
}
