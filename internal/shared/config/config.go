package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Admin     AdminConfig
	Provider  ProviderConfig
	JWT       JWTConfig
	Store     StoreConfig
	Linking   LinkingConfig
	Sweeper   SweeperConfig
	TLS       TLSConfig
	Firebase  FirebaseConfig
	Telemetry TelemetryConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	AllowedHosts []string
}

// AdminConfig holds the single shared credential gating the demo UI.
type AdminConfig struct {
	PasswordHash string
}

// ProviderConfig carries the external API keys, one per environment
// partition. A customer's testmode flag selects which key is used.
type ProviderConfig struct {
	TestKey string
	LiveKey string
	BaseURL string
}

type JWTConfig struct {
	Secret string
}

// StoreConfig selects the persistence backend. The default file backend
// needs no external services; postgres and redis are opt-in.
type StoreConfig struct {
	Backend  string
	FilePath string
	Database DatabaseConfig
	Redis    RedisConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LinkingConfig struct {
	// ReturnURL is the absolute URL of the redirect callback endpoint,
	// handed to the provider when a linking session is created.
	ReturnURL    string
	PollInterval time.Duration
}

// SweeperConfig controls the background job that fails stale pending
// sessions. Disabled by default: abandoned sessions are harmless and
// expiring them changes observable state.
type SweeperConfig struct {
	Enabled       bool
	MaxPendingAge time.Duration
	Interval      time.Duration
}

type TLSConfig struct {
	Enabled      bool
	CertPath     string
	KeyPath      string
	RedirectHTTP bool
}

type FirebaseConfig struct {
	CredentialsFile string
	DeviceToken     string
	MessagesFile    string
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string
}

func Load() (*Config, error) {

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	pollInterval, err := time.ParseDuration(getEnv("LINKING_POLL_INTERVAL", "1s"))
	if err != nil {
		return nil, fmt.Errorf("invalid LINKING_POLL_INTERVAL: %w", err)
	}

	sweeperMaxAge, err := time.ParseDuration(getEnv("SWEEPER_MAX_PENDING_AGE", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEPER_MAX_PENDING_AGE: %w", err)
	}
	sweeperInterval, err := time.ParseDuration(getEnv("SWEEPER_INTERVAL", "1h"))
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEPER_INTERVAL: %w", err)
	}

	// Parse TLS configuration
	tlsEnabled := getBoolEnv("TLS_ENABLED", false)
	tlsCertPath := getEnv("TLS_CERT_PATH", "")
	tlsKeyPath := getEnv("TLS_KEY_PATH", "")
	tlsRedirectHTTP := getBoolEnv("TLS_REDIRECT_HTTP", false)

	// Parse allowed hosts (comma-separated list)
	allowedHostsStr := getEnv("ALLOWED_HOSTS", "")
	var allowedHosts []string
	if allowedHostsStr != "" {
		for _, host := range strings.Split(allowedHostsStr, ",") {
			host = strings.TrimSpace(host)
			if host != "" {
				allowedHosts = append(allowedHosts, host)
			}
		}
	}

	// The redirect callback URL defaults to HOST_URL + the redirect path,
	// with an explicit override for split deployments.
	hostURL := getEnv("HOST_URL", "http://localhost:8080")
	returnURL := getEnv("LINKING_RETURN_URL", "")
	if returnURL == "" {
		returnURL = hostURL + "/linking/redirect"
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Host:         getEnv("HOST", "0.0.0.0"),
			AllowedHosts: allowedHosts,
		},
		Admin: AdminConfig{
			PasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		},
		Provider: ProviderConfig{
			TestKey: getEnv("PROVIDER_TEST_KEY", ""),
			LiveKey: getEnv("PROVIDER_LIVE_KEY", ""),
			BaseURL: getEnv("PROVIDER_BASE_URL", ""),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		Store: StoreConfig{
			Backend:  getEnv("STORE_BACKEND", "file"),
			FilePath: getEnv("STORE_FILE_PATH", "data/fclink.json"),
			Database: DatabaseConfig{
				Host:     getEnv("DB_HOST", "localhost"),
				Port:     dbPort,
				User:     getEnv("DB_USER", "fclink"),
				Password: getEnv("DB_PASSWORD", ""),
				DBName:   getEnv("DB_NAME", "fclink"),
				SSLMode:  getEnv("DB_SSLMODE", "disable"),
			},
			Redis: RedisConfig{
				Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       redisDB,
			},
		},
		Linking: LinkingConfig{
			ReturnURL:    returnURL,
			PollInterval: pollInterval,
		},
		Sweeper: SweeperConfig{
			Enabled:       getBoolEnv("SWEEPER_ENABLED", false),
			MaxPendingAge: sweeperMaxAge,
			Interval:      sweeperInterval,
		},
		TLS: TLSConfig{
			Enabled:      tlsEnabled,
			CertPath:     tlsCertPath,
			KeyPath:      tlsKeyPath,
			RedirectHTTP: tlsRedirectHTTP,
		},
		Firebase: FirebaseConfig{
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
			DeviceToken:     getEnv("FIREBASE_DEVICE_TOKEN", ""),
			MessagesFile:    getEnv("NOTIFICATION_MESSAGES_FILE", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "fclink-api"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4318"),
		},
	}

	// Validate required fields
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Admin.PasswordHash == "" {
		return nil, fmt.Errorf("ADMIN_PASSWORD_HASH is required")
	}
	switch cfg.Store.Backend {
	case "file", "postgres", "redis":
	default:
		return nil, fmt.Errorf("invalid STORE_BACKEND %q: must be file, postgres, or redis", cfg.Store.Backend)
	}

	// Validate TLS configuration
	if cfg.TLS.Enabled {
		if cfg.TLS.CertPath == "" {
			return nil, fmt.Errorf("TLS_CERT_PATH is required when TLS_ENABLED=true")
		}
		if cfg.TLS.KeyPath == "" {
			return nil, fmt.Errorf("TLS_KEY_PATH is required when TLS_ENABLED=true")
		}
	}

	return cfg, nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Accept: true, false, 1, 0, yes, no (case-insensitive)
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}
