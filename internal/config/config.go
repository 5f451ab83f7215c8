package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Log          LogConfig          `yaml:"log"`
	Redis        RedisConfig        `yaml:"redis"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	RabbitMQ     RabbitMQConfig     `yaml:"rabbitmq"`
	Order        OrderConfig        `yaml:"order"`
	Kitchen      KitchenConfig      `yaml:"kitchen"`
	Printing     PrintingConfig     `yaml:"printing"`
	Notification NotificationConfig `yaml:"notification"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Name            string        `yaml:"name"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// LogConfig picks the zap level and encoding. Format "console" is meant for
// local runs; anything else logs JSON.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RedisConfig is optional; an empty Addr keeps rotation and printer leases in process.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type RabbitMQConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

// OrderConfig bounds how often a deadlocked order write is retried.
type OrderConfig struct {
	MaxRetryAttempts int `yaml:"maxRetryAttempts"`
}

type KitchenConfig struct {
	DefaultPrepTime          int `yaml:"defaultPrepTime"`
	DefaultWarningThreshold  int `yaml:"defaultWarningThreshold"`
	DefaultCriticalThreshold int `yaml:"defaultCriticalThreshold"`
}

type PrintingConfig struct {
	BaseRetryDelay    time.Duration `yaml:"baseRetryDelay"`
	BackoffMultiplier float64       `yaml:"backoffMultiplier"`
	MaxRetries        int           `yaml:"maxRetries"`
	CleanupMaxAge     time.Duration `yaml:"cleanupMaxAge"`
	PollInterval      time.Duration `yaml:"pollInterval"`
	PrintTimeout      time.Duration `yaml:"printTimeout"`
	DefaultStrategy   string        `yaml:"defaultStrategy"`
	TicketWidth       int           `yaml:"ticketWidth"`
}

type NotificationConfig struct {
	MaxRetries  int           `yaml:"maxRetries"`
	SendTimeout time.Duration `yaml:"sendTimeout"`
}

type SchedulerConfig struct {
	HealthCheckInterval time.Duration `yaml:"healthCheckInterval"`
	CleanupInterval     time.Duration `yaml:"cleanupInterval"`
	ExpiryInterval      time.Duration `yaml:"expiryInterval"`
}

func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", 8080)
	viper.SetDefault("SERVER_READ_TIMEOUT", "10s")
	viper.SetDefault("SERVER_WRITE_TIMEOUT", "10s")
	viper.SetDefault("SERVER_IDLE_TIMEOUT", "30s")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 3306)
	viper.SetDefault("DB_USER", "kitchenops")
	viper.SetDefault("DB_PASSWORD", "secret")
	viper.SetDefault("DB_NAME", "kitchenops")
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 5)
	viper.SetDefault("DB_CONN_MAX_LIFETIME", "5m")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "json")
	viper.SetDefault("REDIS_ADDR", "")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("KAFKA_BROKERS", "")
	viper.SetDefault("KAFKA_TOPIC", "kitchen.events")
	viper.SetDefault("RABBITMQ_URL", "")
	viper.SetDefault("RABBITMQ_EXCHANGE", "pager_notifications")
	viper.SetDefault("ORDER_MAX_RETRY_ATTEMPTS", 3)
	viper.SetDefault("KITCHEN_DEFAULT_PREP_TIME", 15)
	viper.SetDefault("KITCHEN_DEFAULT_WARNING_THRESHOLD", 10)
	viper.SetDefault("KITCHEN_DEFAULT_CRITICAL_THRESHOLD", 5)
	viper.SetDefault("PRINT_BASE_RETRY_DELAY", "30s")
	viper.SetDefault("PRINT_BACKOFF_MULTIPLIER", 2.0)
	viper.SetDefault("PRINT_MAX_RETRIES", 3)
	viper.SetDefault("PRINT_CLEANUP_MAX_AGE", "168h")
	viper.SetDefault("PRINT_POLL_INTERVAL", "2s")
	viper.SetDefault("PRINT_TIMEOUT", "10s")
	viper.SetDefault("PRINT_DEFAULT_STRATEGY", "STATION_BASED")
	viper.SetDefault("PRINT_TICKET_WIDTH", 42)
	viper.SetDefault("NOTIFICATION_MAX_RETRIES", 3)
	viper.SetDefault("NOTIFICATION_SEND_TIMEOUT", "5s")
	viper.SetDefault("SCHEDULER_HEALTH_CHECK_INTERVAL", "1m")
	viper.SetDefault("SCHEDULER_CLEANUP_INTERVAL", "1h")
	viper.SetDefault("SCHEDULER_EXPIRY_INTERVAL", "1m")

	durations := map[string]time.Duration{}
	for _, key := range []string{
		"SERVER_READ_TIMEOUT", "SERVER_WRITE_TIMEOUT", "SERVER_IDLE_TIMEOUT",
		"DB_CONN_MAX_LIFETIME", "PRINT_BASE_RETRY_DELAY", "PRINT_CLEANUP_MAX_AGE",
		"PRINT_POLL_INTERVAL", "PRINT_TIMEOUT", "NOTIFICATION_SEND_TIMEOUT",
		"SCHEDULER_HEALTH_CHECK_INTERVAL", "SCHEDULER_CLEANUP_INTERVAL", "SCHEDULER_EXPIRY_INTERVAL",
	} {
		d, err := time.ParseDuration(viper.GetString(key))
		if err != nil {
			return nil, err
		}
		durations[key] = d
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetInt("SERVER_PORT"),
			ReadTimeout:  durations["SERVER_READ_TIMEOUT"],
			WriteTimeout: durations["SERVER_WRITE_TIMEOUT"],
			IdleTimeout:  durations["SERVER_IDLE_TIMEOUT"],
		},
		Database: DatabaseConfig{
			Host:            viper.GetString("DB_HOST"),
			Port:            viper.GetInt("DB_PORT"),
			User:            viper.GetString("DB_USER"),
			Password:        viper.GetString("DB_PASSWORD"),
			Name:            viper.GetString("DB_NAME"),
			MaxOpenConns:    viper.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    viper.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: durations["DB_CONN_MAX_LIFETIME"],
		},
		Log: LogConfig{
			Level:  viper.GetString("LOG_LEVEL"),
			Format: viper.GetString("LOG_FORMAT"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("REDIS_ADDR"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(viper.GetString("KAFKA_BROKERS")),
			Topic:   viper.GetString("KAFKA_TOPIC"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      viper.GetString("RABBITMQ_URL"),
			Exchange: viper.GetString("RABBITMQ_EXCHANGE"),
		},
		Order: OrderConfig{
			MaxRetryAttempts: viper.GetInt("ORDER_MAX_RETRY_ATTEMPTS"),
		},
		Kitchen: KitchenConfig{
			DefaultPrepTime:          viper.GetInt("KITCHEN_DEFAULT_PREP_TIME"),
			DefaultWarningThreshold:  viper.GetInt("KITCHEN_DEFAULT_WARNING_THRESHOLD"),
			DefaultCriticalThreshold: viper.GetInt("KITCHEN_DEFAULT_CRITICAL_THRESHOLD"),
		},
		Printing: PrintingConfig{
			BaseRetryDelay:    durations["PRINT_BASE_RETRY_DELAY"],
			BackoffMultiplier: viper.GetFloat64("PRINT_BACKOFF_MULTIPLIER"),
			MaxRetries:        viper.GetInt("PRINT_MAX_RETRIES"),
			CleanupMaxAge:     durations["PRINT_CLEANUP_MAX_AGE"],
			PollInterval:      durations["PRINT_POLL_INTERVAL"],
			PrintTimeout:      durations["PRINT_TIMEOUT"],
			DefaultStrategy:   viper.GetString("PRINT_DEFAULT_STRATEGY"),
			TicketWidth:       viper.GetInt("PRINT_TICKET_WIDTH"),
		},
		Notification: NotificationConfig{
			MaxRetries:  viper.GetInt("NOTIFICATION_MAX_RETRIES"),
			SendTimeout: durations["NOTIFICATION_SEND_TIMEOUT"],
		},
		Scheduler: SchedulerConfig{
			HealthCheckInterval: durations["SCHEDULER_HEALTH_CHECK_INTERVAL"],
			CleanupInterval:     durations["SCHEDULER_CLEANUP_INTERVAL"],
			ExpiryInterval:      durations["SCHEDULER_EXPIRY_INTERVAL"],
		},
	}

	return cfg, nil
}

// splitList reads a comma separated env value. Blank entries are dropped.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
