package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	LocalAPIBase  = "http://localhost:5000/api"
	HostedAPIBase = "https://eo-certificate-backend.onrender.com"
)

type Config struct {
	ServerPort int
	API        APIConfig
	Console    ConsoleConfig
	Session    SessionConfig
	Database   DatabaseConfig
	Storage    StorageConfig
	MQ         MQConfig
}

type APIConfig struct {
	// BaseURL is the resolved backend base, see ResolveAPIBase.
	BaseURL string
}

type ConsoleConfig struct {
	Host           string
	UserPageSize   int
	AdminPageSize  int
	FilterDebounce time.Duration
	SessionTTL     time.Duration
	// SessionBackend selects the web session registry: "memory" or "postgres".
	SessionBackend string
	CookieSecure   bool
}

type SessionConfig struct {
	// File is where the CLI persists the bearer token and cached profile.
	File string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

type StorageConfig struct {
	// Backend is "minio", "gcs" or empty when exports are disabled.
	Backend string
	Minio   MinioConfig
	GCS     GCSConfig
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	Bucket          string
	ProjectID       string
	CredentialsFile string
}

type MQConfig struct {
	// Backend is "rabbitmq", "pubsub" or empty when audit events are disabled.
	Backend  string
	Channel  string
	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
}

type RabbitMQConfig struct {
	URL string
	// Durable keeps the audit exchange and archive queue across broker
	// restarts.
	Durable bool
	// ArchiveQueue, when set, is bound to the audit exchange so events are
	// retained while nobody is tailing.
	ArchiveQueue  string
	PrefetchCount int
}

type PubSubConfig struct {
	ProjectID       string
	CredentialsFile string
	// SubscriptionSuffix is appended to the topic name, before a random
	// follower id, to name tail subscriptions.
	SubscriptionSuffix string
}

func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	host := getEnv("EOCERT_HOST", "localhost")

	dbConfig := DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "eocert"),
		Password: getEnv("DB_PASSWORD", "password"),
		DBName:   getEnv("DB_NAME", "eocert_console"),
		UseSSL:   getEnvBool("DB_USE_SSL", false),
	}

	storageConfig := StorageConfig{
		Backend: strings.ToLower(getEnv("EXPORT_BACKEND", "")),
		Minio: MinioConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "eocert-exports"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		GCS: GCSConfig{
			Bucket:          getEnv("GCS_BUCKET", ""),
			ProjectID:       getEnv("GCS_PROJECT_ID", ""),
			CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
		},
	}

	mqConfig := MQConfig{
		Backend: strings.ToLower(getEnv("AUDIT_BACKEND", "")),
		Channel: getEnv("AUDIT_CHANNEL", "eocert.admin.audit"),
		RabbitMQ: RabbitMQConfig{
			URL:           getEnv("RABBITMQ_URL", ""),
			Durable:       getEnvBool("RABBITMQ_DURABLE", true),
			ArchiveQueue:  getEnv("RABBITMQ_ARCHIVE_QUEUE", ""),
			PrefetchCount: getEnvInt("RABBITMQ_PREFETCH", 16),
		},
		PubSub: PubSubConfig{
			ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
			CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
			SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-console"),
		},
	}

	return Config{
		ServerPort: getEnvInt("SERVER_PORT", 8080),
		API: APIConfig{
			BaseURL: ResolveAPIBase(getEnv("EOCERT_API_URL", ""), host),
		},
		Console: ConsoleConfig{
			Host:           host,
			UserPageSize:   getEnvInt("EOCERT_USER_PAGE_SIZE", 20),
			AdminPageSize:  getEnvInt("EOCERT_ADMIN_PAGE_SIZE", 10),
			FilterDebounce: getEnvDuration("EOCERT_FILTER_DEBOUNCE", 300*time.Millisecond),
			SessionTTL:     getEnvDuration("EOCERT_SESSION_TTL", 8*time.Hour),
			SessionBackend: strings.ToLower(getEnv("EOCERT_SESSION_BACKEND", "memory")),
			CookieSecure:   getEnvBool("EOCERT_COOKIE_SECURE", false),
		},
		Session: SessionConfig{
			File: getEnv("EOCERT_SESSION_FILE", defaultSessionFile()),
		},
		Database: dbConfig,
		Storage:  storageConfig,
		MQ:       mqConfig,
	}
}

// ResolveAPIBase picks the backend base URL. An explicit value always wins;
// otherwise a console running on a loopback host talks to the local backend
// and anything else talks to the hosted one.
func ResolveAPIBase(explicit, host string) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return strings.TrimRight(explicit, "/")
	}
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "", "localhost", "127.0.0.1":
		return LocalAPIBase
	default:
		return HostedAPIBase
	}
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return filepath.Join(".", ".eocert-session.json")
	}
	return filepath.Join(dir, "eocert", "session.json")
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		if _, err := fmt.Sscanf(valueStr, "%d", &value); err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(valueStr)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultValue
	}
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	value, err := time.ParseDuration(strings.TrimSpace(valueStr))
	if err != nil || value < 0 {
		return defaultValue
	}
	return value
}
