package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"stock-cache/src/helpers"
	"stock-cache/src/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new Config from a YAML file, a local .env file and the
// process environment, in that order of increasing precedence.
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, helpers.NewConfigurationError(fmt.Sprintf("failed to read config file '%s'", configPath), err)
	}

	// 2. Unmarshal data into the models struct
	modelConfig := Defaults()
	if err := yaml.Unmarshal(data, modelConfig); err != nil {
		return nil, helpers.NewConfigurationError("failed to parse config from YAML", err)
	}

	// 3. Environment overrides (.env is optional)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, helpers.NewConfigurationError("failed to load .env", err)
	}
	ApplyEnv(modelConfig, os.Getenv)

	config := &Config{MConfig: modelConfig}

	// 4. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// Defaults returns a config with every tunable at its reference value.
func Defaults() *models.MConfig {
	return &models.MConfig{
		Name:     "stock-cache",
		Version:  "dev",
		Host:     "0.0.0.0",
		Port:     3000,
		LogLevel: "INFO",
		GrpcHost: "0.0.0.0",
		GrpcPort: 50051,
		Storage: models.MStorageConfig{
			DBType:    "postgres",
			DBHost:    "localhost",
			DBPort:    5432,
			DBName:    "stock",
			DBUser:    "postgres",
			DBSSLMode: "disable",
		},
		Network: models.MNetworkConfig{
			RequestTimeout: 30,
			MaxRetries:     2,
		},
		Provider: models.MProviderConfig{
			Name: "IEX",
			IEX: models.MIEXConfig{
				SymbolsURL:     "https://api.iextrading.com/1.0/ref-data/symbols",
				PricesURL:      "https://api.iextrading.com/1.0/tops/last",
				HistoryURL:     "https://api.iextrading.com/1.0/hist",
				LiveURL:        "https://ws-api.iextrading.com/1.0/last",
				ReconnectMinMs: 500,
				ReconnectMaxMs: 30000,
				CalendarMIC:    "xnys",
			},
			Synthetic: models.MSyntheticConfig{
				MinInstruments:      50,
				MaxInstruments:      100,
				TickIntervalSeconds: 1,
			},
			SymbolBatchLimit:       200,
			BatchSize:              5000,
			ProgressIntervalSecond: 1,
			LockPollSeconds:        1,
		},
		Cache: models.MCacheConfig{
			RowLimit:    1000,
			InsertBatch: 5000,
		},
		Publisher: models.MPublisherConfig{
			Topic:  "stock-ticks",
			Buffer: 1024,
		},
	}
}

// -----------------------------------------------------------------------------

// ApplyEnv overrides config fields from environment variables.
func ApplyEnv(cfg *models.MConfig, getenv func(string) string) {
	setString := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString("HOST", &cfg.Host)
	setInt("PORT", &cfg.Port)
	setInt("GRPC_PORT", &cfg.GrpcPort)
	setString("VERSION", &cfg.Version)
	setString("PROVIDER", &cfg.Provider.Name)
	setString("DB_TYPE", &cfg.Storage.DBType)
	setString("DB_PATH", &cfg.Storage.DBPath)
	setString("DB_HOST", &cfg.Storage.DBHost)
	setInt("DB_PORT", &cfg.Storage.DBPort)
	setString("DB_NAME", &cfg.Storage.DBName)
	setString("DB_USER", &cfg.Storage.DBUser)
	setString("DB_PASSWORD", &cfg.Storage.DBPassword)

	if debug, err := strconv.ParseBool(getenv("DEBUG")); err == nil && debug {
		cfg.LogLevel = "DEBUG"
	}
	if brokers := getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Publisher.Brokers = strings.Split(brokers, ",")
		cfg.Publisher.Enabled = true
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return helpers.NewConfigurationError(fmt.Sprintf(format, args...), nil)
	}

	if c.Name == "" {
		return invalid("application name cannot be empty")
	}
	if c.Host == "" {
		return invalid("server host cannot be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return invalid("invalid server port number: %d", c.Port)
	}

	// Storage
	switch c.Storage.DBType {
	case "postgres":
		if c.Storage.DBConnectionString == "" && c.Storage.DBHost == "" {
			return invalid("postgres needs db_connection_string or db_host")
		}
	case "sqlite":
		if c.Storage.DBPath == "" {
			return invalid("database path cannot be empty for sqlite")
		}
	default:
		return invalid("unsupported database type '%s'", c.Storage.DBType)
	}

	// Network
	if c.Network.RequestTimeout <= 0 {
		return invalid("request timeout must be greater than 0")
	}
	if c.Network.MaxRetries < 0 {
		return invalid("max retries cannot be negative")
	}

	// Provider
	switch strings.ToUpper(c.Provider.Name) {
	case "IEX", "TEST":
	default:
		return invalid("unsupported provider '%s'", c.Provider.Name)
	}
	if c.Provider.BatchSize <= 0 {
		return invalid("provider batch size must be greater than 0")
	}
	if c.Provider.SymbolBatchLimit <= 0 {
		return invalid("symbol batch limit must be greater than 0")
	}
	syn := c.Provider.Synthetic
	if syn.MinInstruments <= 0 || syn.MaxInstruments < syn.MinInstruments {
		return invalid("synthetic instrument range %d-%d is invalid", syn.MinInstruments, syn.MaxInstruments)
	}

	// Cache
	if c.Cache.RowLimit <= 0 || c.Cache.InsertBatch <= 0 {
		return invalid("cache row limit and insert batch must be greater than 0")
	}

	if c.Publisher.Enabled && (len(c.Publisher.Brokers) == 0 || c.Publisher.Topic == "") {
		return invalid("publisher needs brokers and a topic when enabled")
	}

	return nil
}

// -----------------------------------------------------------------------------

// PostgresDSN returns the configured connection string, building one from the
// discrete fields when none is given.
func (c *Config) PostgresDSN() string {
	if c.Storage.DBConnectionString != "" {
		return c.Storage.DBConnectionString
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Storage.DBUser, c.Storage.DBPassword),
		Host:   fmt.Sprintf("%s:%d", c.Storage.DBHost, c.Storage.DBPort),
		Path:   "/" + c.Storage.DBName,
	}
	q := u.Query()
	if c.Storage.DBSSLMode != "" {
		q.Set("sslmode", c.Storage.DBSSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
