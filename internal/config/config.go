package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// StorageEngine selects the thread persistence backend.
type StorageEngine string

const (
	EnginePostgres StorageEngine = "postgres"
	EngineMongo    StorageEngine = "mongo"
	EngineFile     StorageEngine = "file"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Postgres PostgresConfig
	Mongo    MongoConfig
	Redis    RedisConfig
	JWT      JWTConfig
}

var (
	instance *Config
	once     sync.Once
)

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type StorageConfig struct {
	Engine     StorageEngine
	FileDir    string
	QueueDepth int
}

type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// URI renders the gorm/pgx connection string.
func (c PostgresConfig) URI() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type MongoConfig struct {
	URI    string
	DBName string
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
	Enabled      bool
}

type JWTConfig struct {
	Secret         string
	ExpirationTime time.Duration
}

func LoadConfig() (*Config, error) {
	once.Do(func() {
		viper.SetDefault("LIVECHAT_HOST", "")
		viper.SetDefault("LIVECHAT_PORT", "8080")
		viper.SetDefault("LIVECHAT_READ_TIMEOUT", 30*time.Second)
		viper.SetDefault("LIVECHAT_WRITE_TIMEOUT", 30*time.Second)
		viper.SetDefault("LIVECHAT_IDLE_TIMEOUT", 60*time.Second)
		viper.SetDefault("LIVECHAT_JWT_SECRET", "secret")
		viper.SetDefault("LIVECHAT_JWT_EXPIRE", "24h")
		viper.SetDefault("LIVECHAT_STORAGE_ENGINE", string(EngineFile))
		viper.SetDefault("LIVECHAT_FILE_DIR", "./data/chats")
		viper.SetDefault("LIVECHAT_QUEUE_DEPTH", 256)
		viper.SetDefault("POSTGRES_HOST", "localhost")
		viper.SetDefault("POSTGRES_PORT", "5432")
		viper.SetDefault("POSTGRES_USER", "postgres")
		viper.SetDefault("POSTGRES_PASSWORD", "password")
		viper.SetDefault("POSTGRES_DB", "livechat")
		viper.SetDefault("POSTGRES_SSLMODE", "disable")
		viper.SetDefault("MONGO_URI", "mongodb://localhost:27017")
		viper.SetDefault("MONGO_DB", "livechat")
		viper.SetDefault("REDIS_ADDR", "localhost:6379")
		viper.SetDefault("REDIS_PASSWORD", "")
		viper.SetDefault("REDIS_DB", 0)
		viper.SetDefault("REDIS_MAX_RETRIES", 3)
		viper.SetDefault("REDIS_POOL_SIZE", 100)
		viper.SetDefault("REDIS_MIN_IDLE_CONNS", 10)
		viper.SetDefault("REDIS_DIAL_TIMEOUT", 5*time.Second)
		viper.SetDefault("REDIS_READ_TIMEOUT", 3*time.Second)
		viper.SetDefault("REDIS_WRITE_TIMEOUT", 3*time.Second)
		viper.SetDefault("REDIS_ENABLED", false)
		viper.AutomaticEnv()

		instance = &Config{
			Server: ServerConfig{
				Host:         viper.GetString("LIVECHAT_HOST"),
				Port:         viper.GetString("LIVECHAT_PORT"),
				ReadTimeout:  viper.GetDuration("LIVECHAT_READ_TIMEOUT"),
				WriteTimeout: viper.GetDuration("LIVECHAT_WRITE_TIMEOUT"),
				IdleTimeout:  viper.GetDuration("LIVECHAT_IDLE_TIMEOUT"),
			},
			Storage: StorageConfig{
				Engine:     StorageEngine(viper.GetString("LIVECHAT_STORAGE_ENGINE")),
				FileDir:    viper.GetString("LIVECHAT_FILE_DIR"),
				QueueDepth: viper.GetInt("LIVECHAT_QUEUE_DEPTH"),
			},
			Postgres: PostgresConfig{
				Host:     viper.GetString("POSTGRES_HOST"),
				Port:     viper.GetString("POSTGRES_PORT"),
				User:     viper.GetString("POSTGRES_USER"),
				Password: viper.GetString("POSTGRES_PASSWORD"),
				DBName:   viper.GetString("POSTGRES_DB"),
				SSLMode:  viper.GetString("POSTGRES_SSLMODE"),
			},
			Mongo: MongoConfig{
				URI:    viper.GetString("MONGO_URI"),
				DBName: viper.GetString("MONGO_DB"),
			},
			Redis: RedisConfig{
				Addr:         viper.GetString("REDIS_ADDR"),
				Password:     viper.GetString("REDIS_PASSWORD"),
				DB:           viper.GetInt("REDIS_DB"),
				MaxRetries:   viper.GetInt("REDIS_MAX_RETRIES"),
				DialTimeout:  viper.GetDuration("REDIS_DIAL_TIMEOUT"),
				ReadTimeout:  viper.GetDuration("REDIS_READ_TIMEOUT"),
				WriteTimeout: viper.GetDuration("REDIS_WRITE_TIMEOUT"),
				PoolSize:     viper.GetInt("REDIS_POOL_SIZE"),
				MinIdleConns: viper.GetInt("REDIS_MIN_IDLE_CONNS"),
				Enabled:      viper.GetBool("REDIS_ENABLED"),
			},
			JWT: JWTConfig{
				Secret:         viper.GetString("LIVECHAT_JWT_SECRET"),
				ExpirationTime: viper.GetDuration("LIVECHAT_JWT_EXPIRE"),
			},
		}
	})

	switch instance.Storage.Engine {
	case EnginePostgres, EngineMongo, EngineFile:
	default:
		return nil, fmt.Errorf("unknown storage engine %q", instance.Storage.Engine)
	}

	return instance, nil
}
