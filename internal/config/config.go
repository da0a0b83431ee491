// Package config loads the gateway configuration from a YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultPath is read when BEACON_CONFIG is unset.
const DefaultPath = "config.yaml"

const (
	BackendNeo4j  = "neo4j"
	BackendSQLite = "sqlite"

	ModeCURIE = "curie"
	ModeIRI   = "iri"

	StoreFile  = "file"
	StoreRedis = "redis"
)

// Config holds all configuration for the beacon gateway and its tools.
// Environment variables override YAML values. Secrets (NEO4J_PASSWORD,
// REDIS_PASSWORD, EUTILS_API_KEY) only come from the environment.
type Config struct {
	Server      ServerConfig     `yaml:"server"`
	Graph       GraphConfig      `yaml:"graph"`
	Identifiers IdentifierConfig `yaml:"identifiers"`
	Discovery   DiscoveryConfig  `yaml:"discovery"`
	Redis       RedisConfig      `yaml:"redis"`
	Metadata    MetadataConfig   `yaml:"metadata"`
	Evidence    EvidenceConfig   `yaml:"evidence"`
	Logging     LoggingConfig    `yaml:"logging"`
	Version     string           `yaml:"-"`
}

type ServerConfig struct {
	BindAddr   string `yaml:"bind_addr" env:"BIND_ADDR" env-default:""`
	Port       string `yaml:"port" env:"PORT" env-default:"8080"`
	BeaconName string `yaml:"beacon_name" env:"BEACON_NAME" env-default:"kg"`
	// RedirectNotFound sends unknown paths to the beacon base path.
	RedirectNotFound bool          `yaml:"redirect_not_found" env:"REDIRECT_NOT_FOUND" env-default:"false"`
	ReadTimeout      time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT" env-default:"15s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" env-default:"60s"`
	IdleTimeout      time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT" env-default:"60s"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
	// RateLimit is requests per second across all clients, 0 disables it.
	RateLimit float64 `yaml:"rate_limit" env:"RATE_LIMIT" env-default:"50"`
	RateBurst int     `yaml:"rate_burst" env:"RATE_BURST" env-default:"100"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return s.BindAddr + ":" + s.Port
}

// BasePath is the route prefix of the beacon API.
func (s ServerConfig) BasePath() string {
	return "/beacon/" + s.BeaconName
}

type GraphConfig struct {
	Backend string       `yaml:"backend" env:"GRAPH_BACKEND" env-default:"neo4j"`
	Neo4j   Neo4jConfig  `yaml:"neo4j"`
	SQLite  SQLiteConfig `yaml:"sqlite"`
}

type Neo4jConfig struct {
	URI      string `yaml:"uri" env:"NEO4J_URI" env-default:"bolt://localhost:7687"`
	User     string `yaml:"user" env:"NEO4J_USER" env-default:"neo4j"`
	Password string `yaml:"-" env:"NEO4J_PASSWORD"`
	Database string `yaml:"database" env:"NEO4J_DATABASE" env-default:"neo4j"`

	// IDProperty is the node property holding CURIEs.
	IDProperty string `yaml:"id_property" env:"NEO4J_ID_PROPERTY" env-default:"id"`
}

type SQLiteConfig struct {
	Path string `yaml:"path" env:"SQLITE_PATH" env-default:"beacon.db"`
}

type IdentifierConfig struct {
	// Mode is "curie" or "iri": in iri mode inbound CURIEs are expanded to
	// every known URI before querying the store.
	Mode string `yaml:"mode" env:"IDENTIFIER_MODE" env-default:"curie"`
	// PrefixFile extends the embedded prefix registry.
	PrefixFile string `yaml:"prefix_file" env:"PREFIX_FILE" env-default:""`
	// MappingFile is a discovery table loaded at startup.
	MappingFile    string        `yaml:"mapping_file" env:"MAPPING_FILE" env-default:""`
	CaseMapTimeout time.Duration `yaml:"case_map_timeout" env:"CASE_MAP_TIMEOUT" env-default:"60s"`
}

type DiscoveryConfig struct {
	BatchSize     int           `yaml:"batch_size" env:"DISCOVERY_BATCH_SIZE" env-default:"2000"`
	SkipThreshold int           `yaml:"skip_threshold" env:"DISCOVERY_SKIP_THRESHOLD" env-default:"100"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout" env:"DISCOVERY_FETCH_TIMEOUT" env-default:"30s"`
	// Store is where the mapping table goes: "file" or "redis".
	Store      string   `yaml:"store" env:"DISCOVERY_STORE" env-default:"file"`
	OutputPath string   `yaml:"output_path" env:"DISCOVERY_OUTPUT" env-default:"prefix-mappings.yaml"`
	Denylist   []string `yaml:"denylist" env:"DISCOVERY_DENYLIST" env-separator:","`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	Key      string `yaml:"key" env:"REDIS_KEY" env-default:"beacon:prefix-mappings"`
}

type MetadataConfig struct {
	DataDir       string        `yaml:"data_dir" env:"METADATA_DIR" env-default:"data"`
	CacheTTL      time.Duration `yaml:"cache_ttl" env:"METADATA_CACHE_TTL" env-default:"168h"`
	FilterBiolink bool          `yaml:"filter_biolink" env:"FILTER_BIOLINK" env-default:"true"`
}

type EvidenceConfig struct {
	Enabled   bool          `yaml:"enabled" env:"EVIDENCE_ENABLED" env-default:"true"`
	BaseURL   string        `yaml:"base_url" env:"EUTILS_BASE_URL" env-default:"https://eutils.ncbi.nlm.nih.gov/entrez/eutils"`
	APIKey    string        `yaml:"-" env:"EUTILS_API_KEY"`
	RateLimit float64       `yaml:"rate_limit" env:"EUTILS_RATE_LIMIT" env-default:"3"`
	Timeout   time.Duration `yaml:"timeout" env:"EUTILS_TIMEOUT" env-default:"10s"`
}

type LoggingConfig struct {
	Level       string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Development bool   `yaml:"development" env:"LOG_DEVELOPMENT" env-default:"false"`
}

// Load reads the file named by BEACON_CONFIG (default config.yaml). A missing
// file is not an error: defaults and environment variables still apply.
func Load(version string) (*Config, error) {
	path := os.Getenv("BEACON_CONFIG")
	if path == "" {
		path = DefaultPath
	}
	return LoadFile(path, version)
}

// LoadFile reads configuration from path with environment overrides.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{Version: version}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks enumerated fields and normalizes the Neo4j URI.
func (c *Config) Validate() error {
	switch c.Graph.Backend {
	case BackendNeo4j:
		uri, err := NormalizeBoltURI(c.Graph.Neo4j.URI)
		if err != nil {
			return err
		}
		c.Graph.Neo4j.URI = uri
	case BackendSQLite:
		if c.Graph.SQLite.Path == "" {
			return errors.New("graph.sqlite.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown graph backend %q", c.Graph.Backend)
	}

	switch c.Identifiers.Mode {
	case ModeCURIE, ModeIRI:
	default:
		return fmt.Errorf("unknown identifier mode %q", c.Identifiers.Mode)
	}

	switch c.Discovery.Store {
	case StoreFile, StoreRedis:
	default:
		return fmt.Errorf("unknown discovery store %q", c.Discovery.Store)
	}

	if c.Server.BeaconName == "" || strings.Contains(c.Server.BeaconName, "/") {
		return fmt.Errorf("invalid beacon name %q", c.Server.BeaconName)
	}
	return nil
}

var boltSchemes = map[string]bool{
	"bolt":      true,
	"bolt+s":    true,
	"bolt+ssc":  true,
	"neo4j":     true,
	"neo4j+s":   true,
	"neo4j+ssc": true,
}

// NormalizeBoltURI accepts bolt and neo4j URIs. A bare host[:port] gets the
// bolt scheme; http and https endpoints are rejected.
func NormalizeBoltURI(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("neo4j uri is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "bolt://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing neo4j uri: %w", err)
	}
	if !boltSchemes[u.Scheme] {
		return "", fmt.Errorf("neo4j uri scheme %q is not supported, use bolt:// or neo4j://", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("neo4j uri %q has no host", raw)
	}
	return raw, nil
}
