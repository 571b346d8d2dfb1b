// Package config 提供 TOML 配置加载、环境变量覆盖与校验
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 服务配置
type Config struct {
	// 服务名称
	ServiceName string `mapstructure:"service_name"`
	// 服务版本
	Version string `mapstructure:"version"`
	// 环境：dev, staging, prod
	Environment string `mapstructure:"environment"`

	HTTP        HTTPConfig        `mapstructure:"http"`
	GRPC        GRPCConfig        `mapstructure:"grpc"`
	Logger      LoggerConfig      `mapstructure:"logger"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Broker      BrokerConfig      `mapstructure:"broker"`
	Instruments InstrumentsConfig `mapstructure:"instruments"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Ingestion   IngestionConfig   `mapstructure:"ingestion"`
	Monitor     MonitorConfig     `mapstructure:"monitor"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// 读超时（秒）
	ReadTimeout int `mapstructure:"read_timeout"`
	// 写超时（秒）
	WriteTimeout int `mapstructure:"write_timeout"`
	// 批次提交限流：每 SubmitPeriodSeconds 秒允许 SubmitRate 次，0 表示不限流
	SubmitRate          int `mapstructure:"submit_rate"`
	SubmitPeriodSeconds int `mapstructure:"submit_period_seconds"`
	SubmitBurst         int `mapstructure:"submit_burst"`
}

// GRPCConfig gRPC 服务配置（健康检查）
type GRPCConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
	WithCaller bool   `mapstructure:"with_caller"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// BrokerConfig 券商 REST 接口配置
type BrokerConfig struct {
	BaseURL string `mapstructure:"base_url"`
	// 单次请求超时（秒）
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	// 行情查询并发上限
	PriceConcurrency int `mapstructure:"price_concurrency"`
	// 下单熔断
	BreakerEnabled     bool `mapstructure:"breaker_enabled"`
	BreakerFailures    int  `mapstructure:"breaker_failures"`
	BreakerOpenSeconds int  `mapstructure:"breaker_open_seconds"`
}

// Timeout 返回请求超时
func (c BrokerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BreakerOpenTimeout 返回熔断持续时间
func (c BrokerConfig) BreakerOpenTimeout() time.Duration {
	return time.Duration(c.BreakerOpenSeconds) * time.Second
}

// InstrumentsConfig 合约映射数据源配置
type InstrumentsConfig struct {
	// json 或 mysql
	Source string `mapstructure:"source"`
	// json 文件路径
	Path string `mapstructure:"path"`
	// mysql 数据源按交易所过滤，为空读取全部
	Exchange string `mapstructure:"exchange"`
}

// DatabaseConfig 数据库配置（仅 instruments.source = mysql 时使用）
type DatabaseConfig struct {
	Driver             string `mapstructure:"driver"`
	DSN                string `mapstructure:"dsn"`
	MaxOpenConns       int    `mapstructure:"max_open_conns"`
	MaxIdleConns       int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime    int    `mapstructure:"conn_max_lifetime"`
	LogEnabled         bool   `mapstructure:"log_enabled"`
	SlowQueryThreshold int    `mapstructure:"slow_query_threshold"`
}

// RedisConfig Redis 配置（止损巡检分布式锁）
type RedisConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	MaxPoolSize  int    `mapstructure:"max_pool_size"`
	ConnTimeout  int    `mapstructure:"conn_timeout"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// KafkaConfig Kafka 配置（领域事件）
type KafkaConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	Brokers      []string `mapstructure:"brokers"`
	Topic        string   `mapstructure:"topic"`
	MaxRetries   int      `mapstructure:"max_retries"`
	RetryBackoff int      `mapstructure:"retry_backoff"`
}

// IngestionConfig 批量下单配置
type IngestionConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
	// 每秒下单数上限，0 表示不限速
	OrdersPerSecond float64 `mapstructure:"orders_per_second"`
	Burst           int     `mapstructure:"burst"`
	// 保留的批次报告数量
	ReportHistory int `mapstructure:"report_history"`
}

// MonitorConfig 止损巡检配置
type MonitorConfig struct {
	IntervalSeconds int    `mapstructure:"interval_seconds"`
	LockEnabled     bool   `mapstructure:"lock_enabled"`
	LockKey         string `mapstructure:"lock_key"`
	// 锁的实例标识，为空时使用 hostname-pid
	InstanceID     string `mapstructure:"instance_id"`
	LockTTLSeconds int    `mapstructure:"lock_ttl_seconds"`
}

// SubmitPeriod 返回提交限流窗口
func (c HTTPConfig) SubmitPeriod() time.Duration {
	return time.Duration(c.SubmitPeriodSeconds) * time.Second
}

// Interval 返回巡检周期
func (c MonitorConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Instance 返回锁的实例标识
func (c MonitorConfig) Instance() string {
	if c.InstanceID != "" {
		return c.InstanceID
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// LockTTL 返回分布式锁过期时间
func (c MonitorConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// Load 从 TOML 文件加载配置，支持环境变量覆盖；文件不存在时使用默认值
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			if _, statErr := os.Stat(configPath); statErr == nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.Environment == "" {
		c.Environment = "dev"
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTP.Port)
	}
	if c.GRPC.Port < 0 || c.GRPC.Port > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPC.Port)
	}
	if c.Broker.BaseURL == "" {
		return fmt.Errorf("broker.base_url is required")
	}
	if c.Broker.BreakerEnabled && c.Broker.BreakerFailures <= 0 {
		return fmt.Errorf("broker.breaker_failures must be positive when the breaker is enabled")
	}
	if c.HTTP.SubmitRate < 0 || (c.HTTP.SubmitRate > 0 && c.HTTP.SubmitPeriodSeconds <= 0) {
		return fmt.Errorf("invalid http submit rate limit")
	}
	if c.Broker.PriceConcurrency <= 0 {
		return fmt.Errorf("broker.price_concurrency must be positive")
	}
	switch c.Instruments.Source {
	case "json":
		if c.Instruments.Path == "" {
			return fmt.Errorf("instruments.path is required for json source")
		}
	case "mysql":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for mysql instrument source")
		}
	default:
		return fmt.Errorf("unsupported instruments.source: %q", c.Instruments.Source)
	}
	if c.Ingestion.Workers <= 0 || c.Ingestion.QueueSize <= 0 {
		return fmt.Errorf("ingestion.workers and ingestion.queue_size must be positive")
	}
	if c.Ingestion.OrdersPerSecond < 0 {
		return fmt.Errorf("ingestion.orders_per_second must not be negative")
	}
	if c.Monitor.IntervalSeconds <= 0 {
		return fmt.Errorf("monitor.interval_seconds must be positive")
	}
	if c.Monitor.LockEnabled && !c.Redis.Enabled {
		return fmt.Errorf("monitor.lock_enabled requires redis.enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	return nil
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "orderbridge")
	v.SetDefault("version", "0.1.0")
	v.SetDefault("environment", "dev")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 30)
	v.SetDefault("http.write_timeout", 30)
	v.SetDefault("http.submit_rate", 0)
	v.SetDefault("http.submit_period_seconds", 60)
	v.SetDefault("http.submit_burst", 0)

	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50051)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/orderbridge.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.with_caller", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("broker.base_url", "https://api.upstox.com")
	v.SetDefault("broker.timeout_seconds", 15)
	v.SetDefault("broker.price_concurrency", 8)
	v.SetDefault("broker.breaker_enabled", true)
	v.SetDefault("broker.breaker_failures", 5)
	v.SetDefault("broker.breaker_open_seconds", 30)

	v.SetDefault("instruments.source", "json")
	v.SetDefault("instruments.path", "NSE.json")
	v.SetDefault("instruments.exchange", "")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.max_open_conns", 5)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.log_enabled", false)
	v.SetDefault("database.slow_query_threshold", 1000)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_pool_size", 10)
	v.SetDefault("redis.conn_timeout", 5)
	v.SetDefault("redis.read_timeout", 3)
	v.SetDefault("redis.write_timeout", 3)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic", "orderbridge.events")
	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.retry_backoff", 100)

	v.SetDefault("ingestion.workers", 2)
	v.SetDefault("ingestion.queue_size", 16)
	v.SetDefault("ingestion.orders_per_second", 10)
	v.SetDefault("ingestion.burst", 1)
	v.SetDefault("ingestion.report_history", 100)

	v.SetDefault("monitor.interval_seconds", 60)
	v.SetDefault("monitor.lock_enabled", false)
	v.SetDefault("monitor.lock_key", "orderbridge:stoploss:pass")
	v.SetDefault("monitor.lock_ttl_seconds", 55)
	v.SetDefault("monitor.instance_id", "")
}
