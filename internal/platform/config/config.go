package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	platformstrings "statusable/pkg/platform/strings"
)

// Config is the full process configuration, read once at startup.
type Config struct {
	Server   Server
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Status   StatusConfig
	Log      LogConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	JWTIssuer     string
}

// DatabaseConfig points at the status store.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	TxTimeout       time.Duration
}

// RedisConfig configures the distributed status id cache. No URL and no
// addresses selects the in-process cache.
type RedisConfig struct {
	URL string
	// Addrs is a cluster or sentinel seed list; it replaces the URL's address.
	Addrs        []string
	MasterName   string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the broadcast transport. No brokers selects the
// log-only broadcaster.
type KafkaConfig struct {
	Brokers        []string
	BroadcastTopic string
	ClientID       string
	Partitions     int32
	Replication    int16
}

// StatusConfig mirrors the registry's caching flags.
type StatusConfig struct {
	// CacheRecords makes FindRecord serve from the unit-of-work snapshot by default.
	CacheRecords bool
	// CacheIDs lets lookups trust the local and distributed id-index; false forces
	// a store reload on every lookup.
	CacheIDs bool
	// CacheKey is the distributed cache key holding the whole id-index.
	CacheKey         string
	DefaultLocale    string
	SupportedLocales []string
	PageSize         int
}

// LogConfig selects log level and output format ("json" or "text").
type LogConfig struct {
	Level  string
	Format string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr: getString("STATUSABLE_ADDR", ":8080"),
			// Development default; must be overridden in production.
			JWTSigningKey: getString("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			JWTIssuer:     getString("JWT_ISSUER", "statusable"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getInt("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
			TxTimeout:       getDuration("DATABASE_TX_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			Addrs:        getList("REDIS_ADDRS"),
			MasterName:   getString("REDIS_MASTER_NAME", ""),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:        getList("KAFKA_BROKERS"),
			BroadcastTopic: getString("KAFKA_BROADCAST_TOPIC", "status-broadcasts"),
			ClientID:       getString("KAFKA_CLIENT_ID", "statusable"),
			Partitions:     int32(getInt("KAFKA_BROADCAST_PARTITIONS", 3)),
			Replication:    int16(getInt("KAFKA_BROADCAST_REPLICATION", 1)),
		},
		Status: StatusConfig{
			CacheRecords:     getBool("STATUSABLE_CACHE_STATUSES", true),
			CacheIDs:         getBool("STATUSABLE_CACHE_STATUS_IDS", true),
			CacheKey:         getString("STATUSABLE_CACHE_KEY", "statuses"),
			DefaultLocale:    getString("STATUSABLE_DEFAULT_LOCALE", "en"),
			SupportedLocales: getList("STATUSABLE_LOCALES"),
			PageSize:         getInt("STATUSABLE_PAGE_SIZE", 25),
		},
		Log: LogConfig{
			Level:  getString("LOG_LEVEL", "info"),
			Format: getString("LOG_FORMAT", "json"),
		},
	}
}

func getString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}

func getList(key string) []string {
	return platformstrings.SplitList(os.Getenv(key))
}
