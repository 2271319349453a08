package cfg

import (
	"flag"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"
	"github.com/rs/zerolog/log"
)

// StoreBackend defines where documents are persisted
type StoreBackend string

const (
	BackendSQLite StoreBackend = "sqlite" // Single SQLite file
	BackendPebble StoreBackend = "pebble" // Pebble LSM directory
	BackendMemory StoreBackend = "memory" // Process memory, lost on restart
)

// StoreConfiguration controls the document store
type StoreConfiguration struct {
	Backend        StoreBackend `toml:"backend"`
	Path           string       `toml:"path"`             // Relative paths resolve against data_dir
	PollIntervalMS int          `toml:"poll_interval_ms"` // Observer re-poll interval (0 = signal driven only)
}

// ServerConfiguration controls the websocket subscription server
type ServerConfiguration struct {
	BindAddress         string `toml:"bind_address"`
	Port                int    `toml:"port"`
	Path                string `toml:"path"`                  // Websocket endpoint
	SendBufferSize      int    `toml:"send_buffer_size"`      // Outbound messages queued per session
	ReadLimitBytes      int64  `toml:"read_limit_bytes"`      // Largest accepted client message
	PingIntervalSeconds int    `toml:"ping_interval_seconds"` // Websocket keepalive (0 = disabled)
	UserHeader          string `toml:"user_header"`           // Header carrying the authenticated user id
}

// NotifyConfiguration controls cross-process change notification
type NotifyConfiguration struct {
	NatsURL       string `toml:"nats_url"` // Empty = single process, no bridge
	SubjectPrefix string `toml:"subject_prefix"`
}

// AdminConfiguration controls the admin HTTP API
type AdminConfiguration struct {
	Enabled bool   `toml:"enabled"`
	Secret  string `toml:"secret"` // Empty = no authentication
}

// LoggingConfiguration controls logging behavior
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration for metrics
type PrometheusConfiguration struct {
	Enabled bool `toml:"enabled"`
}

// PublicationConfiguration declares a publication in the config file.
// Filters and DynamicFilters are left loosely typed on purpose: their shape is
// validated when the publication is registered.
type PublicationConfiguration struct {
	Name             string `toml:"name"`
	Collection       string `toml:"collection"`
	ClientCollection string `toml:"client_collection"`
	Filters          any    `toml:"filters"`
	DynamicFilters   any    `toml:"dynamic_filters"`   // Name of a registered dynamic filters hook
	TransformFilters string `toml:"transform_filters"` // Name of a registered filters transform
	TransformOptions string `toml:"transform_options"` // Name of a registered options transform
}

// Configuration is the main configuration structure
type Configuration struct {
	NodeID  uint64 `toml:"node_id"`
	DataDir string `toml:"data_dir"`

	Store        StoreConfiguration         `toml:"store"`
	Server       ServerConfiguration        `toml:"server"`
	Notify       NotifyConfiguration        `toml:"notify"`
	Admin        AdminConfiguration         `toml:"admin"`
	Logging      LoggingConfiguration       `toml:"logging"`
	Prometheus   PrometheusConfiguration    `toml:"prometheus"`
	Publications []PublicationConfiguration `toml:"publications"`
}

// Command line flags
var (
	ConfigPathFlag = flag.String("config", "config.toml", "Path to configuration file")
	DataDirFlag    = flag.String("data-dir", "", "Data directory (overrides config)")
	NodeIDFlag     = flag.Uint64("node-id", 0, "Node ID (overrides config, 0=auto)")
	PortFlag       = flag.Int("port", 0, "Server port (overrides config)")
)

// Default configuration
var Config = DefaultConfiguration()

// DefaultConfiguration returns a configuration populated with defaults
func DefaultConfiguration() *Configuration {
	return &Configuration{
		NodeID:  0, // Auto-generate
		DataDir: "./pagination-data",

		Store: StoreConfiguration{
			Backend:        BackendSQLite,
			Path:           "documents.db",
			PollIntervalMS: 0,
		},

		Server: ServerConfiguration{
			BindAddress:         "0.0.0.0",
			Port:                3000,
			Path:                "/websocket",
			SendBufferSize:      1024,
			ReadLimitBytes:      1 << 20, // 1MB
			PingIntervalSeconds: 30,
			UserHeader:          "X-User-Id",
		},

		Notify: NotifyConfiguration{
			SubjectPrefix: "pagination.changes",
		},

		Admin: AdminConfiguration{
			Enabled: true,
		},

		Logging: LoggingConfiguration{
			Verbose: false,
			Format:  "console",
		},

		Prometheus: PrometheusConfiguration{
			Enabled: true,
		},
	}
}

// Load loads configuration from file and applies CLI overrides
func Load(configPath string) error {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	// Apply CLI overrides
	if *DataDirFlag != "" {
		Config.DataDir = *DataDirFlag
	}
	if *NodeIDFlag != 0 {
		Config.NodeID = *NodeIDFlag
	}
	if *PortFlag != 0 {
		Config.Server.Port = *PortFlag
	}

	if Config.NodeID == 0 {
		var err error
		Config.NodeID, err = generateNodeID()
		if err != nil {
			return fmt.Errorf("failed to generate node ID: %w", err)
		}
		log.Info().Uint64("node_id", Config.NodeID).Msg("Auto-generated node ID")
	}

	if err := os.MkdirAll(Config.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	return nil
}

// generateNodeID creates a unique node ID based on machine ID and process ID,
// so several processes on one host sharing a NATS bridge stay distinct.
func generateNodeID() (uint64, error) {
	id, err := machineid.ProtectedID("pagination")
	if err != nil {
		return 0, err
	}

	h := fnv.New64a()
	h.Write([]byte(id))
	h.Write([]byte(fmt.Sprintf(":%d", os.Getpid())))
	return h.Sum64(), nil
}

// Validate checks configuration for errors
func Validate() error {
	if Config.Server.Port < 1 || Config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", Config.Server.Port)
	}

	if Config.Server.Path == "" || Config.Server.Path[0] != '/' {
		return fmt.Errorf("server path must start with '/': %q", Config.Server.Path)
	}

	if Config.Server.SendBufferSize < 1 {
		return fmt.Errorf("server send buffer size must be >= 1")
	}

	if Config.Server.ReadLimitBytes < 1024 {
		return fmt.Errorf("server read limit must be >= 1024 bytes")
	}

	if Config.Server.PingIntervalSeconds < 0 {
		return fmt.Errorf("server ping interval must be >= 0")
	}

	switch Config.Store.Backend {
	case BackendSQLite, BackendPebble:
		if Config.Store.Path == "" {
			return fmt.Errorf("store path is required for %s backend", Config.Store.Backend)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("invalid store backend: %q", Config.Store.Backend)
	}

	if Config.Store.PollIntervalMS < 0 {
		return fmt.Errorf("store poll interval must be >= 0")
	}

	seen := make(map[string]bool, len(Config.Publications))
	for i, pub := range Config.Publications {
		if pub.Collection == "" {
			return fmt.Errorf("publications[%d]: collection is required", i)
		}
		name := pub.Name
		if name == "" {
			name = pub.Collection
		}
		if seen[name] {
			return fmt.Errorf("publications[%d]: duplicate publication name %q", i, name)
		}
		seen[name] = true
	}

	return nil
}

// StorePath returns the backend path resolved against the data directory
func StorePath() string {
	if filepath.IsAbs(Config.Store.Path) {
		return Config.Store.Path
	}
	return filepath.Join(Config.DataDir, Config.Store.Path)
}

// ListenAddress returns the host:port the server binds to
func ListenAddress() string {
	return fmt.Sprintf("%s:%d", Config.Server.BindAddress, Config.Server.Port)
}
