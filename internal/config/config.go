// Package config loads storefront settings from an optional TOML file with
// environment overrides on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
)

type Config struct {
	HTTP  HTTPConfig
	Auth  AuthConfig
	Store StoreConfig
	Redis RedisConfig
	Kafka KafkaConfig
	Log   LogConfig
}

type HTTPConfig struct {
	Addr               string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64
	// CheckoutRate is checkout attempts per second per user; CheckoutBurst
	// bounds a burst.
	CheckoutRate  float64
	CheckoutBurst int
}

type AuthConfig struct {
	JWTSecret string
	// DevHeaders trusts X-User-ID / X-User-Role request headers. Never enable
	// it on a public listener.
	DevHeaders  bool
	OperatorIDs []string
}

type StoreConfig struct {
	Driver        string
	Host          string
	Port          int
	User          string
	Password      string
	DBName        string
	SSLMode       string
	SQLitePath    string
	MongoURI      string
	MongoDatabase string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CartTTL  time.Duration
}

type KafkaConfig struct {
	Brokers      []string
	Topic        string
	GroupID      string
	PollInterval time.Duration
}

type LogConfig struct {
	Level  string
	Pretty bool
}

func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:               ":8080",
			RequestTimeout:     30 * time.Second,
			ShutdownTimeout:    10 * time.Second,
			MaxRequestBodySize: 1 << 20, // 1MB
			CheckoutRate:       1,
			CheckoutBurst:      5,
		},
		Store: StoreConfig{
			Driver:        DriverSQLite,
			Host:          "localhost",
			Port:          5432,
			User:          "postgres",
			Password:      "postgres",
			DBName:        "storefront",
			SSLMode:       "disable",
			SQLitePath:    "file:storefront.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)",
			MongoURI:      "mongodb://localhost:27017/?replicaSet=rs0",
			MongoDatabase: "storefront",
		},
		Redis: RedisConfig{
			CartTTL: 15 * time.Minute,
		},
		Kafka: KafkaConfig{
			Topic:        "storefront.orders",
			PollInterval: time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

type fileConfig struct {
	HTTP struct {
		Addr               string  `toml:"addr"`
		RequestTimeout     string  `toml:"request_timeout"`
		ShutdownTimeout    string  `toml:"shutdown_timeout"`
		MaxRequestBodySize int64   `toml:"max_request_body_size"`
		CheckoutRate       float64 `toml:"checkout_rate"`
		CheckoutBurst      int     `toml:"checkout_burst"`
	} `toml:"http"`
	Auth struct {
		JWTSecret   string   `toml:"jwt_secret"`
		DevHeaders  bool     `toml:"dev_headers"`
		OperatorIDs []string `toml:"operator_ids"`
	} `toml:"auth"`
	Store struct {
		Driver        string `toml:"driver"`
		Host          string `toml:"host"`
		Port          int    `toml:"port"`
		User          string `toml:"user"`
		Password      string `toml:"password"`
		DBName        string `toml:"dbname"`
		SSLMode       string `toml:"sslmode"`
		SQLitePath    string `toml:"sqlite_path"`
		MongoURI      string `toml:"mongo_uri"`
		MongoDatabase string `toml:"mongo_database"`
	} `toml:"store"`
	Redis struct {
		Addr     string `toml:"addr"`
		Password string `toml:"password"`
		DB       int    `toml:"db"`
		CartTTL  string `toml:"cart_ttl"`
	} `toml:"redis"`
	Kafka struct {
		Brokers      []string `toml:"brokers"`
		Topic        string   `toml:"topic"`
		GroupID      string   `toml:"group_id"`
		PollInterval string   `toml:"poll_interval"`
	} `toml:"kafka"`
	Log struct {
		Level  string `toml:"level"`
		Pretty bool   `toml:"pretty"`
	} `toml:"log"`
}

// Load returns defaults overlaid with the file at path (if path is not empty)
// and then with environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("http", "addr") {
		cfg.HTTP.Addr = strings.TrimSpace(raw.HTTP.Addr)
	}
	if meta.IsDefined("http", "request_timeout") {
		if cfg.HTTP.RequestTimeout, err = parseDuration("http.request_timeout", raw.HTTP.RequestTimeout); err != nil {
			return err
		}
	}
	if meta.IsDefined("http", "shutdown_timeout") {
		if cfg.HTTP.ShutdownTimeout, err = parseDuration("http.shutdown_timeout", raw.HTTP.ShutdownTimeout); err != nil {
			return err
		}
	}
	if meta.IsDefined("http", "max_request_body_size") {
		cfg.HTTP.MaxRequestBodySize = raw.HTTP.MaxRequestBodySize
	}
	if meta.IsDefined("http", "checkout_rate") {
		cfg.HTTP.CheckoutRate = raw.HTTP.CheckoutRate
	}
	if meta.IsDefined("http", "checkout_burst") {
		cfg.HTTP.CheckoutBurst = raw.HTTP.CheckoutBurst
	}

	if meta.IsDefined("auth", "jwt_secret") {
		cfg.Auth.JWTSecret = raw.Auth.JWTSecret
	}
	if meta.IsDefined("auth", "dev_headers") {
		cfg.Auth.DevHeaders = raw.Auth.DevHeaders
	}
	if meta.IsDefined("auth", "operator_ids") {
		cfg.Auth.OperatorIDs = normalizeList(raw.Auth.OperatorIDs)
	}

	if meta.IsDefined("store", "driver") {
		cfg.Store.Driver = strings.ToLower(strings.TrimSpace(raw.Store.Driver))
	}
	if meta.IsDefined("store", "host") {
		cfg.Store.Host = strings.TrimSpace(raw.Store.Host)
	}
	if meta.IsDefined("store", "port") {
		cfg.Store.Port = raw.Store.Port
	}
	if meta.IsDefined("store", "user") {
		cfg.Store.User = raw.Store.User
	}
	if meta.IsDefined("store", "password") {
		cfg.Store.Password = raw.Store.Password
	}
	if meta.IsDefined("store", "dbname") {
		cfg.Store.DBName = raw.Store.DBName
	}
	if meta.IsDefined("store", "sslmode") {
		cfg.Store.SSLMode = raw.Store.SSLMode
	}
	if meta.IsDefined("store", "sqlite_path") {
		cfg.Store.SQLitePath = raw.Store.SQLitePath
	}
	if meta.IsDefined("store", "mongo_uri") {
		cfg.Store.MongoURI = raw.Store.MongoURI
	}
	if meta.IsDefined("store", "mongo_database") {
		cfg.Store.MongoDatabase = raw.Store.MongoDatabase
	}

	if meta.IsDefined("redis", "addr") {
		cfg.Redis.Addr = strings.TrimSpace(raw.Redis.Addr)
	}
	if meta.IsDefined("redis", "password") {
		cfg.Redis.Password = raw.Redis.Password
	}
	if meta.IsDefined("redis", "db") {
		cfg.Redis.DB = raw.Redis.DB
	}
	if meta.IsDefined("redis", "cart_ttl") {
		if cfg.Redis.CartTTL, err = parseDuration("redis.cart_ttl", raw.Redis.CartTTL); err != nil {
			return err
		}
	}

	if meta.IsDefined("kafka", "brokers") {
		cfg.Kafka.Brokers = normalizeList(raw.Kafka.Brokers)
	}
	if meta.IsDefined("kafka", "topic") {
		cfg.Kafka.Topic = strings.TrimSpace(raw.Kafka.Topic)
	}
	if meta.IsDefined("kafka", "group_id") {
		cfg.Kafka.GroupID = strings.TrimSpace(raw.Kafka.GroupID)
	}
	if meta.IsDefined("kafka", "poll_interval") {
		if cfg.Kafka.PollInterval, err = parseDuration("kafka.poll_interval", raw.Kafka.PollInterval); err != nil {
			return err
		}
	}

	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "pretty") {
		cfg.Log.Pretty = raw.Log.Pretty
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	if v, ok := os.LookupEnv("OPERATOR_IDS"); ok {
		cfg.Auth.OperatorIDs = normalizeList(strings.Split(v, ","))
	}

	cfg.Store.Driver = strings.ToLower(getEnv("STORE_DRIVER", cfg.Store.Driver))
	cfg.Store.Host = getEnv("DB_HOST", cfg.Store.Host)
	if v := os.Getenv("DB_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid DB_PORT: %w", err)
		}
		cfg.Store.Port = port
	}
	cfg.Store.User = getEnv("DB_USER", cfg.Store.User)
	cfg.Store.Password = getEnv("DB_PASSWORD", cfg.Store.Password)
	cfg.Store.DBName = getEnv("DB_NAME", cfg.Store.DBName)
	cfg.Store.SSLMode = getEnv("DB_SSLMODE", cfg.Store.SSLMode)
	cfg.Store.SQLitePath = getEnv("SQLITE_PATH", cfg.Store.SQLitePath)
	cfg.Store.MongoURI = getEnv("MONGO_URI", cfg.Store.MongoURI)
	cfg.Store.MongoDatabase = getEnv("MONGO_DATABASE", cfg.Store.MongoDatabase)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = normalizeList(strings.Split(v, ","))
	}
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", cfg.Kafka.Topic)
	cfg.Kafka.GroupID = getEnv("KAFKA_GROUP_ID", cfg.Kafka.GroupID)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	if v := os.Getenv("LOG_PRETTY"); v != "" {
		pretty, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid LOG_PRETTY: %w", err)
		}
		cfg.Log.Pretty = pretty
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case DriverPostgres, DriverSQLite, DriverMongo:
	default:
		errs = append(errs, fmt.Errorf("store.driver must be one of %s, %s, %s; got %q", DriverPostgres, DriverSQLite, DriverMongo, c.Store.Driver))
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.HTTP.CheckoutRate <= 0 || c.HTTP.CheckoutBurst <= 0 {
		errs = append(errs, errors.New("http.checkout_rate and http.checkout_burst must be positive"))
	}
	if c.Auth.JWTSecret == "" && !c.Auth.DevHeaders {
		errs = append(errs, errors.New("auth.jwt_secret is required unless auth.dev_headers is set"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required when brokers are set"))
	}
	return errors.Join(errs...)
}

// KafkaEnabled reports whether order events go through a broker.
func (c Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(key, v string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
