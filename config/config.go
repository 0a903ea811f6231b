// Package config loads runtime options through viper: env-first, with an
// optional config file for the CLI tools (SPEC_FULL.md §4.11
// "Configuration").
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds every tunable named in spec.md §6 plus the pool-sizing
// knobs SPEC_FULL.md adds.
type Config struct {
	KernelLibName  string   `mapstructure:"kernel_lib_name"`
	KernelLibPath  []string `mapstructure:"kernel_lib_path"`
	ThreadPoolSize int      `mapstructure:"thread_pool_size"`

	PoolInitBytes     int64 `mapstructure:"pool_init_bytes"`
	PoolIncreaseBytes int64 `mapstructure:"pool_increase_bytes"`
	PoolMaxBytes      int64 `mapstructure:"pool_max_bytes"`
	PoolEnableVMM     bool  `mapstructure:"pool_enable_vmm"`
}

const (
	defaultKernelLibName     = "Dummy"
	defaultThreadPoolSize    = 1
	defaultPoolInitBytes     = 1 << 30 // 1 GiB, spec.md §4.5 default unit size
	defaultPoolIncreaseBytes = 1 << 30
	defaultPoolMaxBytesUnset = 0 // 0 means "no cap beyond free device memory"
)

// Load reads configuration from the environment (prefix DART_) and,
// if present, a config file named by the DART_CONFIG_FILE env var or
// passed explicitly via configPath. Explicit configPath takes
// precedence over the env var when both are set.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("dart")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	must(v.BindEnv("kernel_lib_name", "DART_KERNEL_LIB_NAME"))
	must(v.BindEnv("kernel_lib_path", "DART_KERNEL_LIB_PATH"))
	must(v.BindEnv("thread_pool_size", "DART_THREAD_POOL_SIZE"))
	must(v.BindEnv("pool_init_bytes", "DART_POOL_INIT_BYTES"))
	must(v.BindEnv("pool_increase_bytes", "DART_POOL_INCREASE_BYTES"))
	must(v.BindEnv("pool_max_bytes", "DART_POOL_MAX_BYTES"))
	must(v.BindEnv("pool_enable_vmm", "DART_POOL_ENABLE_VMM"))

	v.SetDefault("kernel_lib_name", defaultKernelLibName)
	v.SetDefault("thread_pool_size", defaultThreadPoolSize)
	v.SetDefault("pool_init_bytes", defaultPoolInitBytes)
	v.SetDefault("pool_increase_bytes", defaultPoolIncreaseBytes)
	v.SetDefault("pool_max_bytes", defaultPoolMaxBytesUnset)
	v.SetDefault("pool_enable_vmm", false)

	path := configPath
	if path == "" {
		path = v.GetString("config_file")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if raw := v.GetString("kernel_lib_path"); raw != "" && len(cfg.KernelLibPath) == 0 {
		cfg.KernelLibPath = strings.Split(raw, ",")
	}
	if cfg.ThreadPoolSize <= 0 {
		return nil, fmt.Errorf("config: thread_pool_size must be positive, got %d", cfg.ThreadPoolSize)
	}
	return &cfg, nil
}

func must(err error) {
	if err != nil {
		panic(fmt.Sprintf("config: BindEnv: %v", err))
	}
}
