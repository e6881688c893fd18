// Package config loads service configuration from the environment and an
// optional .env file.
//
// Keys are nested by section and map to upper-case environment variables,
// e.g. sync.interval is read from SYNC_INTERVAL.
package config

import (
	"net"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rl1809/inventory-sync/internal/logger"
)

// Config holds all configuration for the service.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       logger.Config   `mapstructure:"log"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Inventory InventoryConfig `mapstructure:"inventory"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Consumer  ConsumerConfig  `mapstructure:"consumer"`
}

type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr" default:":8080"`
	GRPCAddr        string        `mapstructure:"grpc_addr" default:":50051"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" default:"5s"`
}

// BackendConfig selects adapters. "memory" runs everything in process.
type BackendConfig struct {
	// Storage is memory or mysql.
	Storage string `mapstructure:"storage" default:"memory"`
	// Cache is memory or redis.
	Cache string `mapstructure:"cache" default:"memory"`
	// Bus is memory or redis.
	Bus string `mapstructure:"bus" default:"memory"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host" default:"localhost"`
	Port            int           `mapstructure:"port" default:"3306"`
	User            string        `mapstructure:"user" default:"root"`
	Password        string        `mapstructure:"password" default:"root"`
	Name            string        `mapstructure:"name" default:"inventory"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" default:"50"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" default:"25"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" default:"5m"`
}

// DSN builds a go-sql-driver DSN. Times are parsed and stored as UTC.
func (c DatabaseConfig) DSN() string {
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	mc.DBName = c.Name
	mc.ParseTime = true
	mc.Loc = time.UTC
	return mc.FormatDSN()
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr" default:"localhost:6379"`
	Password string        `mapstructure:"password" default:""`
	DB       int           `mapstructure:"db" default:"0"`
	PoolSize int           `mapstructure:"pool_size" default:"100"`
	CacheTTL time.Duration `mapstructure:"cache_ttl" default:"10m"`
	// StreamMaxLen caps each event stream; 0 keeps everything.
	StreamMaxLen int64 `mapstructure:"stream_max_len" default:"100000"`
}

type InventoryConfig struct {
	CentralStoreID    string `mapstructure:"central_store_id" default:"STORE-000"`
	LowStockThreshold int    `mapstructure:"low_stock_threshold" default:"10"`
}

type SyncConfig struct {
	Interval time.Duration `mapstructure:"interval" default:"5m"`
	Workers  int           `mapstructure:"workers" default:"8"`
	Strategy string        `mapstructure:"strategy" default:"LAST_WRITE_WINS"`
	// Tolerance is the central shortfall, in units, absorbed without a resolver decision.
	Tolerance int `mapstructure:"tolerance" default:"0"`
}

type ConsumerConfig struct {
	Group       string        `mapstructure:"group" default:"sync-service"`
	AlertGroup  string        `mapstructure:"alert_group" default:"sync-service-alerts"`
	StoreGroup  string        `mapstructure:"store_group" default:"sync-service-stores"`
	Name        string        `mapstructure:"name" default:""`
	BatchSize   int           `mapstructure:"batch_size" default:"32"`
	MaxAttempts int           `mapstructure:"max_attempts" default:"5"`
	RetryDelay  time.Duration `mapstructure:"retry_delay" default:"500ms"`
	// ClaimTTL is how long an interrupted apply holds its event before redelivery may retry it.
	ClaimTTL time.Duration `mapstructure:"claim_ttl" default:"30s"`
}

// Load reads configuration from environment variables and path/.env.
func Load(path string) (*Config, error) {
	envPath := path + "/.env"
	if path == "." || path == "" {
		envPath = ".env"
	}

	// A missing .env is normal outside development.
	_ = godotenv.Load(envPath)

	v := viper.New()
	bindDefaults(v, Config{}, "")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// bindDefaults walks the struct and registers every mapstructure key with its
// default tag value, which also makes the key visible to AutomaticEnv.
func bindDefaults(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Duration(0)) {
			bindDefaults(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		v.SetDefault(key, field.Tag.Get("default"))
	}
}
