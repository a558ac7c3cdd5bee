package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации сервиса.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Inference InferenceConfig `mapstructure:"inference"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера отчетов.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// Origin браузерных дашбордов для /ws/alerts; свой Host разрешен всегда
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// DatabaseConfig описывает подключение к PostgreSQL. Пустой URL — без БД.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig описывает подключение к Redis (Pub/Sub алертов и порогов).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NATSConfig — шина телеметрии. Пустой URL отключает подписку.
type NATSConfig struct {
	URL            string `mapstructure:"url"`
	SensorsSubject string `mapstructure:"sensors_subject"`
	MaxInFlight    int    `mapstructure:"max_in_flight"`
}

// AuthConfig — публичный ключ для проверки RS256 токенов отчетного API.
type AuthConfig struct {
	PublicKeyPath string `mapstructure:"public_key_path"`
	PublicKey     []byte
}

// InferenceConfig — бэкенд моделей и параметры надежности.
type InferenceConfig struct {
	Backend       string        `mapstructure:"backend"` // http, grpc, local
	URL           string        `mapstructure:"url"`
	APIKey        string        `mapstructure:"api_key"`
	GRPCTarget    string        `mapstructure:"grpc_target"`
	ModelDir      string        `mapstructure:"model_dir"`
	Timeout       time.Duration `mapstructure:"timeout"`
	TargetLatency time.Duration `mapstructure:"target_latency"`

	// Настройки лимитера и Circuit Breaker
	RateLimit     float64       `mapstructure:"rate_limit"`
	RateBurst     int           `mapstructure:"rate_burst"`
	RetryAttempts uint          `mapstructure:"retry_attempts"`
	CBMaxRequests uint32        `mapstructure:"cb_max_requests"`
	CBInterval    time.Duration `mapstructure:"cb_interval"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`
	CBFailures    uint32        `mapstructure:"cb_failures"`
}

// PipelineConfig — параметры компонентов конвейера.
type PipelineConfig struct {
	DetectionThreshold   float64       `mapstructure:"detection_threshold"`
	WindowCapacity       int           `mapstructure:"window_capacity"`
	FailureFeatureWindow int           `mapstructure:"failure_feature_window"`
	FailureHistoryLimit  int           `mapstructure:"failure_history_limit"`
	FailureEvery         int           `mapstructure:"failure_every"` // прогноз отказа каждые N замеров станка
	HistoryCapacity      int           `mapstructure:"history_capacity"`
	JournalBufferSize    int           `mapstructure:"journal_buffer_size"`
	JournalBatchSize     int           `mapstructure:"journal_batch_size"`
	JournalFlushInterval time.Duration `mapstructure:"journal_flush_interval"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
// path — явный файл; пустой путь ищет config.yaml в . и ./configs.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	// 2. ENV перекрывает файл: INFERENCE_TIMEOUT=500ms перекроет inference.timeout
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Установка дефолтных значений
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. Ключ из ENV (Docker/K8s) или из файла
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.sensors_subject", NATSSubjectSensors)
	v.SetDefault("nats.max_in_flight", 64)
	v.SetDefault("auth.public_key_path", "")

	v.SetDefault("inference.backend", "local")
	v.SetDefault("inference.url", "")
	v.SetDefault("inference.api_key", "")
	v.SetDefault("inference.grpc_target", "")
	v.SetDefault("inference.model_dir", "./configs/models")
	v.SetDefault("inference.timeout", 2*time.Second)
	v.SetDefault("inference.target_latency", 50*time.Millisecond)
	v.SetDefault("inference.rate_limit", 100.0)
	v.SetDefault("inference.rate_burst", 20)
	v.SetDefault("inference.retry_attempts", 3)
	v.SetDefault("inference.cb_max_requests", 3)
	v.SetDefault("inference.cb_interval", 5*time.Second)
	v.SetDefault("inference.cb_timeout", 30*time.Second)
	v.SetDefault("inference.cb_failures", 5)

	v.SetDefault("pipeline.detection_threshold", 0.75)
	v.SetDefault("pipeline.window_capacity", 500)
	v.SetDefault("pipeline.failure_feature_window", 10)
	v.SetDefault("pipeline.failure_history_limit", 100)
	v.SetDefault("pipeline.failure_every", 10)
	v.SetDefault("pipeline.history_capacity", 10000)
	v.SetDefault("pipeline.journal_buffer_size", 10000)
	v.SetDefault("pipeline.journal_batch_size", 100)
	v.SetDefault("pipeline.journal_flush_interval", 500*time.Millisecond)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}

// loadKeyResource: PEM прямо в ENV или файл по пути из конфига
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
