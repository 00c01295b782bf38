package models

// MConfig Structure
type MConfig struct {
	Name      string           `yaml:"name"`
	Version   string           `yaml:"version"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	LogLevel  string           `yaml:"log_level"`
	GrpcHost  string           `yaml:"grpc_host"`
	GrpcPort  int              `yaml:"grpc_port"`
	Storage   MStorageConfig   `yaml:"storage"`
	Network   MNetworkConfig   `yaml:"network"`
	Provider  MProviderConfig  `yaml:"provider"`
	Cache     MCacheConfig     `yaml:"cache"`
	Publisher MPublisherConfig `yaml:"publisher"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"`
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
	DBHost             string `yaml:"db_host"`
	DBPort             int    `yaml:"db_port"`
	DBName             string `yaml:"db_name"`
	DBUser             string `yaml:"db_user"`
	DBPassword         string `yaml:"db_password"`
	DBSSLMode          string `yaml:"db_sslmode"`
}

type MNetworkConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Proxies        []string `yaml:"proxies"`
	RequestTimeout int      `yaml:"timeout"`
	MaxRetries     int      `yaml:"retries"`
	UserAgent      string   `yaml:"user_agent"`
}

type MProviderConfig struct {
	Name                   string           `yaml:"name"`
	IEX                    MIEXConfig       `yaml:"iex"`
	Synthetic              MSyntheticConfig `yaml:"synthetic"`
	SymbolBatchLimit       int              `yaml:"symbol_batch_limit"`
	BatchSize              int              `yaml:"batch_size"`
	ProgressIntervalSecond int              `yaml:"progress_interval_seconds"`
	LockPollSeconds        int              `yaml:"lock_poll_seconds"`
	LockDir                string           `yaml:"lock_dir"`
}

type MIEXConfig struct {
	SymbolsURL     string `yaml:"symbols_url"`
	PricesURL      string `yaml:"prices_url"`
	HistoryURL     string `yaml:"history_url"`
	LiveURL        string `yaml:"live_url"`
	ReconnectMinMs int    `yaml:"reconnect_min_ms"`
	ReconnectMaxMs int    `yaml:"reconnect_max_ms"`
	CalendarMIC    string `yaml:"calendar_mic"`
}

type MSyntheticConfig struct {
	MinInstruments      int   `yaml:"min_instruments"`
	MaxInstruments      int   `yaml:"max_instruments"`
	TickIntervalSeconds int   `yaml:"tick_interval_seconds"`
	Seed                int64 `yaml:"seed"`
}

type MCacheConfig struct {
	RowLimit    int `yaml:"row_limit"`
	InsertBatch int `yaml:"insert_batch"`
}

type MPublisherConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	Symbols []string `yaml:"symbols"`
	Buffer  int      `yaml:"buffer"`
}

// GetLogLevel returns the configured level, or "" for a nil config.
func (c *MConfig) GetLogLevel() string {
	if c == nil {
		return ""
	}
	return c.LogLevel
}
