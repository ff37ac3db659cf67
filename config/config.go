package config

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	Server    ServerConfig
	Auth      AuthConfig
	Redis     RedisConfig
	Broker    BrokerConfig
	Session   SessionConfig
	Store     StoreConfig
	WebSocket WebSocketConfig
	Client    ClientConfig
	Metrics   MetricsConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port            int
	ReadTimeout     int // Seconds
	WriteTimeout    int // Seconds
	ShutdownTimeout int // Seconds
}

type AuthConfig struct {
	Enabled           bool
	JWTSecret         string
	TokenQueryParam   string
	RevocationListKey string
}

type RedisConfig struct {
	Address     string
	Password    string
	DB          int
	PoolSize    int
	PoolTimeout int // Seconds
}

type BrokerConfig struct {
	Type  string // memory, redis or kafka
	Topic string
	Kafka KafkaConfig
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
}

type SessionConfig struct {
	Backend string // memory or redis
}

type StoreConfig struct {
	Driver string // sqlite or memory
	DSN    string
}

type WebSocketConfig struct {
	MaxConnections   int
	MessageSizeLimit int
	HandshakeTimeout int // Seconds
	PingInterval     int // Seconds
	PongTimeout      int // Seconds
	ActivityTimeout  int // Seconds
	WriteTimeout     int // Seconds
	SendBuffer       int
	KeepAlive        bool
	SessionTTL       int // Seconds
}

// ClientConfig drives the connection-health loop of chatclient.
type ClientConfig struct {
	URL               string
	HeartbeatInterval int // Milliseconds
	PongTimeout       int // Milliseconds
	BackoffBase       int // Milliseconds, upper bound of the jittered first delay
	BackoffMax        int // Milliseconds
	MaxAttempts       int
	DedupSize         int
}

type MetricsConfig struct {
	Enabled bool
	Port    int
	Path    string
}

type LogConfig struct {
	Level string
}

var (
	instance *AppConfig
	once     sync.Once
)

// Initialize loads the process-wide configuration once.
func Initialize(env string) error {
	var initErr error
	once.Do(func() {
		instance, initErr = Load(env)
	})
	return initErr
}

func Get() *AppConfig {
	return instance
}

// Load reads config.<env>.yaml from ./configs or the working directory,
// overlays CHAT_* environment variables and validates the result. A missing
// file is not an error: defaults and the environment are enough to run.
func Load(env string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CHAT")
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("config env binding error: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config file error: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func seconds(n int) time.Duration      { return time.Duration(n) * time.Second }
func milliseconds(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func (c WebSocketConfig) PingIntervalDuration() time.Duration    { return seconds(c.PingInterval) }
func (c WebSocketConfig) PongTimeoutDuration() time.Duration     { return seconds(c.PongTimeout) }
func (c WebSocketConfig) ActivityTimeoutDuration() time.Duration { return seconds(c.ActivityTimeout) }
func (c WebSocketConfig) WriteTimeoutDuration() time.Duration    { return seconds(c.WriteTimeout) }
func (c WebSocketConfig) HandshakeTimeoutDuration() time.Duration {
	return seconds(c.HandshakeTimeout)
}
func (c WebSocketConfig) SessionTTLDuration() time.Duration { return seconds(c.SessionTTL) }

func (c ClientConfig) HeartbeatIntervalDuration() time.Duration {
	return milliseconds(c.HeartbeatInterval)
}
func (c ClientConfig) PongTimeoutDuration() time.Duration { return milliseconds(c.PongTimeout) }
func (c ClientConfig) BackoffBaseDuration() time.Duration { return milliseconds(c.BackoffBase) }
func (c ClientConfig) BackoffMaxDuration() time.Duration  { return milliseconds(c.BackoffMax) }
