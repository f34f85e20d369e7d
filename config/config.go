package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 MINICHAT_SERVER_PORT
const EnvPrefix = "minichat"

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	WorkerPool WorkerPoolConfig `mapstructure:"worker_pool"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Presence   PresenceConfig   `mapstructure:"presence"`
	Client     ClientConfig     `mapstructure:"client"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
	// RequireSession 为 true 时 /send_message 与 /change_state 必须携带 Bearer token
	RequireSession bool `mapstructure:"require_session"`
}

type DatabaseConfig struct {
	Driver       string         `mapstructure:"driver"` // sqlite, postgres
	Path         string         `mapstructure:"path"`
	Postgres     PostgresConfig `mapstructure:"postgres"`
	MaxIdleConns int            `mapstructure:"max_idle_conns"`
	MaxOpenConns int            `mapstructure:"max_open_conns"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	SnapshotTTL  time.Duration `mapstructure:"snapshot_ttl"`
}

type JWTConfig struct {
	Secret       string `mapstructure:"secret"`
	ExpireHours  int    `mapstructure:"expire_hours"`
	RefreshHours int    `mapstructure:"refresh_hours"`
}

type RateLimitConfig struct {
	RegisterPerMinute int  `mapstructure:"register_per_minute"`
	LoginPerMinute    int  `mapstructure:"login_per_minute"`
	MessagePerMinute  int  `mapstructure:"message_per_minute"`
	APIPerMinute      int  `mapstructure:"api_per_minute"`
	MaxConcurrency    int  `mapstructure:"max_concurrency"`
	FailOpen          bool `mapstructure:"fail_open"`
}

type WorkerPoolConfig struct {
	Size      int `mapstructure:"size"`
	QueueSize int `mapstructure:"queue_size"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	// NodeID 写入事件 ID，多实例部署时每个实例取不同的值 (0-1023)
	NodeID int64 `mapstructure:"node_id"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"` // json, text
	Output   string `mapstructure:"output"` // stdout, file
	FilePath string `mapstructure:"file_path"`
}

type PresenceConfig struct {
	// StaleAfter 为 0 时不做超时下线，在线状态完全由登录/离开事件驱动
	StaleAfter    time.Duration `mapstructure:"stale_after"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type ClientConfig struct {
	ServerURL    string        `mapstructure:"server_url"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	LogFile      string        `mapstructure:"log_file"`
}

// SetDefaults 为所有配置项注册默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.require_session", false)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "minichat.db")
	v.SetDefault("database.postgres.host", "127.0.0.1")
	v.SetDefault("database.postgres.port", "5432")
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.dbname", "minichat")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.snapshot_ttl", 30*time.Second)

	v.SetDefault("jwt.secret", "change-me")
	v.SetDefault("jwt.expire_hours", 24)
	v.SetDefault("jwt.refresh_hours", 168)

	v.SetDefault("ratelimit.register_per_minute", 10)
	v.SetDefault("ratelimit.login_per_minute", 30)
	v.SetDefault("ratelimit.message_per_minute", 120)
	v.SetDefault("ratelimit.api_per_minute", 600)
	v.SetDefault("ratelimit.max_concurrency", 256)
	v.SetDefault("ratelimit.fail_open", true)

	v.SetDefault("worker_pool.size", 4)
	v.SetDefault("worker_pool.queue_size", 1024)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.topic", "minichat.events")
	v.SetDefault("kafka.node_id", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file_path", "minichat.log")

	v.SetDefault("presence.stale_after", time.Duration(0))
	v.SetDefault("presence.sweep_interval", 30*time.Second)

	v.SetDefault("client.server_url", "http://127.0.0.1:5000")
	v.SetDefault("client.poll_interval", 2*time.Second)
	v.SetDefault("client.timeout", 5*time.Second)
	v.SetDefault("client.log_file", "minichat-client.log")
}

// New 创建带默认值和环境变量绑定的 viper 实例
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig 读取配置文件；path 为空或文件不存在时只使用默认值和环境变量
func LoadConfig(path string) (*Config, error) {
	v := New()
	return Load(v, path)
}

// Load 使用给定的 viper 实例读取配置，cobra 的 flag 可以预先绑定到 v 上
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate 检查互相矛盾或明显无效的配置
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("database.path is required for sqlite")
		}
	case "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Kafka.NodeID < 0 || c.Kafka.NodeID > 1023 {
		return fmt.Errorf("kafka.node_id must be within 0-1023, got %d", c.Kafka.NodeID)
	}
	if c.Client.PollInterval <= 0 {
		return fmt.Errorf("client.poll_interval must be positive")
	}
	return nil
}

// Addr 返回服务监听地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}
