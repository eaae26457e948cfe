package command

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	LockBackendLocal = "local"
	LockBackendRedis = "redis"

	envPrefix = "WORKFLOW"
)

// Config 命令行使用的配置, 优先级: 命令行参数 > 环境变量(WORKFLOW_ 前缀) > 配置文件 > 默认值
type Config struct {
	SqliteDSN   string        `mapstructure:"sqlite_dsn" validate:"required"`
	LockBackend string        `mapstructure:"lock_backend" validate:"oneof=local redis"`
	RedisAddr   string        `mapstructure:"redis_addr" validate:"required_if=LockBackend redis"`
	RedisDB     int           `mapstructure:"redis_db" validate:"gte=0"`
	LockTTL     time.Duration `mapstructure:"lock_ttl" validate:"gt=0"`
}

var validate = validator.New()

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("sqlite_dsn", "workflow.sqlite3")
	v.SetDefault("lock_backend", LockBackendLocal)
	v.SetDefault("redis_addr", "127.0.0.1:6379")
	v.SetDefault("redis_db", 0)
	v.SetDefault("lock_ttl", 30*time.Second)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig configFile 为空时只使用环境变量和默认值
func LoadConfig(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.WithMessagef(err, "read config %s failed", configFile)
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.WithMessage(err, "unmarshal config failed")
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, errors.WithMessage(err, "invalid config")
	}
	return cfg, nil
}
