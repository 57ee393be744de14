package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/devblac/bridge-indexer/internal/registry"
)

// EnvPrefix prefixes the environment overrides of the global section.
const EnvPrefix = "BRIDGE_INDEXER"

// Config holds the YAML configuration.
type Config struct {
	Version  int                         `yaml:"version" validate:"required,gte=1"`
	Global   GlobalConfig                `yaml:"global"`
	Networks []Network                   `yaml:"networks" validate:"required,min=1,dive"`
	Tokens   map[string][]registry.Token `yaml:"tokens" validate:"dive,dive"`
	Assets   []registry.BaseAsset        `yaml:"assets" validate:"dive"`
	Cursors  []Cursor                    `yaml:"cursors" validate:"required,min=1,dive"`
	Sinks    []Sink                      `yaml:"sinks" validate:"dive"`
	Routes   []Route                     `yaml:"routes" validate:"dive"`
}

type GlobalConfig struct {
	DBPath        string            `yaml:"db_path" default:"bridge-indexer.db"`
	LogLevel      string            `yaml:"log_level" default:"info"`
	HTTPAddr      string            `yaml:"http_addr" default:":9090"`
	PollInterval  time.Duration     `yaml:"poll_interval" default:"15s" validate:"gt=0"`
	RetryAttempts int               `yaml:"retry_attempts" default:"5" validate:"gte=1"`
	RetryBackoff  time.Duration     `yaml:"retry_backoff" default:"500ms"`
	FanOut        int               `yaml:"fan_out" default:"4" validate:"gte=1"`
	Confirmations map[string]uint64 `yaml:"confirmations"`
}

// Network is one ledger to connect to. Networks that are only routing
// destinations need no entry; the built-in directory knows them.
type Network struct {
	Name         string        `yaml:"name" validate:"required"`
	Kind         string        `yaml:"kind" validate:"required,oneof=evm algorand solana tron"`
	BridgeID     uint16        `yaml:"bridge_id"`
	RPCURL       string        `yaml:"rpc_url"`
	AlgodURL     string        `yaml:"algod_url"`
	AlgodToken   string        `yaml:"algod_token"`
	IndexerURL   string        `yaml:"indexer_url"`
	IndexerToken string        `yaml:"indexer_token"`
	APIURL       string        `yaml:"api_url"`
	APIKey       string        `yaml:"api_key"`
	BlockSpan    uint64        `yaml:"block_span" default:"2000"`
	Timeout      time.Duration `yaml:"timeout" default:"30s"`
	// Bridges holds the bridge roles keyed by bridge type.
	Bridges map[string]Roles `yaml:"bridges"`
}

type Roles struct {
	Deposit     string   `yaml:"deposit"`
	Release     string   `yaml:"release"`
	FeeReceiver string   `yaml:"fee_receiver"`
	Contract    string   `yaml:"contract"`
	Program     string   `yaml:"program"`
	Vaults      []string `yaml:"vaults"`
}

type Filter struct {
	Types    []string `yaml:"types"`
	Statuses []string `yaml:"statuses"`
}

type Cursor struct {
	Network    string  `yaml:"network" validate:"required"`
	BridgeType string  `yaml:"bridge_type" validate:"required,oneof=legacy circle v2"`
	Address    string  `yaml:"address" validate:"required"`
	Limit      int     `yaml:"limit" default:"100" validate:"gte=1"`
	Start      string  `yaml:"start"`
	Filter     *Filter `yaml:"filter,omitempty"`
}

// Key matches the storage key of the cursor.
func (c Cursor) Key() string {
	return strings.ToLower(c.Network) + "/" + strings.ToLower(c.BridgeType) + "/" + c.Address
}

type Dedupe struct {
	Key string `yaml:"key"`
	TTL string `yaml:"ttl"`
}

type RateLimit struct {
	Capacity  float64 `yaml:"capacity" validate:"gt=0"`
	PerSecond float64 `yaml:"per_second" validate:"gt=0"`
}

// Route delivers the records selected by Networks, BridgeTypes and Where to
// its sinks. Empty selectors match everything.
type Route struct {
	ID          string     `yaml:"id" validate:"required"`
	Networks    []string   `yaml:"networks"`
	BridgeTypes []string   `yaml:"bridge_types"`
	Where       []string   `yaml:"where"`
	Sinks       []string   `yaml:"sinks" validate:"required,min=1"`
	Dedupe      *Dedupe    `yaml:"dedupe,omitempty"`
	RateLimit   *RateLimit `yaml:"rate_limit,omitempty"`
}

type Sink struct {
	ID         string `yaml:"id" validate:"required"`
	Type       string `yaml:"type" validate:"required"`
	WebhookURL string `yaml:"webhook_url"`
	Template   string `yaml:"template"`
	URL        string `yaml:"url"`
	Method     string `yaml:"method"`
	// Redis list sink.
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	List     string `yaml:"list"`
	// Postgres sink.
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// envOverlay lists the global knobs settable from the environment, e.g.
// BRIDGE_INDEXER_LOG_LEVEL. Unset variables leave the file value alone.
type envOverlay struct {
	DBPath        *string        `envconfig:"DB_PATH"`
	LogLevel      *string        `envconfig:"LOG_LEVEL"`
	HTTPAddr      *string        `envconfig:"HTTP_ADDR"`
	PollInterval  *time.Duration `envconfig:"POLL_INTERVAL"`
	RetryAttempts *int           `envconfig:"RETRY_ATTEMPTS"`
	FanOut        *int           `envconfig:"FAN_OUT"`
}

var envPattern = regexp.MustCompile(`\${([A-Za-z_][A-Za-z0-9_]*)}`)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads, interpolates env vars, parses YAML, applies defaults and
// environment overrides, and validates.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}

	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Parse builds a config from YAML bytes. Environment references are
// resolved against the process environment.
func Parse(raw []byte) (*Config, error) {
	interpolated, err := interpolateEnv(string(raw))
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotEnv(configPath string) error {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return nil
}

func interpolateEnv(input string) (string, error) {
	missing := []string{}
	out := envPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		missing = append(missing, name)
		return match
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("missing environment variables: %s", strings.Join(dedup(missing), ", "))
	}
	return out, nil
}

func (c *Config) applyDefaults() error {
	if err := defaults.Set(&c.Global); err != nil {
		return fmt.Errorf("global defaults: %w", err)
	}
	for i := range c.Networks {
		if err := defaults.Set(&c.Networks[i]); err != nil {
			return fmt.Errorf("network %s defaults: %w", c.Networks[i].Name, err)
		}
	}
	for i := range c.Cursors {
		if err := defaults.Set(&c.Cursors[i]); err != nil {
			return fmt.Errorf("cursor %s defaults: %w", c.Cursors[i].Key(), err)
		}
	}
	return nil
}

func (c *Config) applyEnv() error {
	var env envOverlay
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}
	g := &c.Global
	if env.DBPath != nil {
		g.DBPath = *env.DBPath
	}
	if env.LogLevel != nil {
		g.LogLevel = *env.LogLevel
	}
	if env.HTTPAddr != nil {
		g.HTTPAddr = *env.HTTPAddr
	}
	if env.PollInterval != nil {
		g.PollInterval = *env.PollInterval
	}
	if env.RetryAttempts != nil {
		g.RetryAttempts = *env.RetryAttempts
	}
	if env.FanOut != nil {
		g.FanOut = *env.FanOut
	}
	return nil
}

// Validate checks struct tags, then the references between sections.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	networks := map[string]*Network{}
	for i := range c.Networks {
		n := &c.Networks[i]
		name := strings.ToLower(n.Name)
		if _, exists := networks[name]; exists {
			return fmt.Errorf("duplicate network: %s", n.Name)
		}
		networks[name] = n
		if err := n.Validate(); err != nil {
			return fmt.Errorf("network %s: %w", n.Name, err)
		}
	}

	cursorKeys := map[string]struct{}{}
	for _, cur := range c.Cursors {
		key := cur.Key()
		if _, exists := cursorKeys[key]; exists {
			return fmt.Errorf("duplicate cursor: %s", key)
		}
		cursorKeys[key] = struct{}{}
		n, ok := networks[strings.ToLower(cur.Network)]
		if !ok {
			return fmt.Errorf("cursor %s: unknown network: %s", key, cur.Network)
		}
		if _, ok := n.Bridges[strings.ToLower(cur.BridgeType)]; !ok {
			return fmt.Errorf("cursor %s: network %s has no %s bridge roles", key, n.Name, cur.BridgeType)
		}
		if cur.BridgeType == "v2" && len(c.Assets) == 0 {
			return fmt.Errorf("cursor %s: v2 cursors need assets", key)
		}
	}

	sinkIDs := map[string]*Sink{}
	for i := range c.Sinks {
		s := &c.Sinks[i]
		if _, exists := sinkIDs[s.ID]; exists {
			return fmt.Errorf("duplicate sink id: %s", s.ID)
		}
		sinkIDs[s.ID] = s
		if err := s.Validate(); err != nil {
			return fmt.Errorf("sink %s: %w", s.ID, err)
		}
	}

	routeIDs := map[string]struct{}{}
	for _, r := range c.Routes {
		if _, exists := routeIDs[r.ID]; exists {
			return fmt.Errorf("duplicate route id: %s", r.ID)
		}
		routeIDs[r.ID] = struct{}{}
		if err := r.Validate(sinkIDs); err != nil {
			return fmt.Errorf("route %s: %w", r.ID, err)
		}
	}

	return nil
}

func (n *Network) Validate() error {
	switch strings.ToLower(n.Kind) {
	case "evm":
		if n.RPCURL == "" {
			return errors.New("rpc_url is required for evm networks")
		}
	case "algorand":
		if n.IndexerURL == "" {
			return errors.New("indexer_url is required for algorand networks")
		}
	case "solana":
		if n.RPCURL == "" {
			return errors.New("rpc_url is required for solana networks")
		}
	case "tron":
		if n.APIURL == "" {
			return errors.New("api_url is required for tron networks")
		}
	}
	for bridge, roles := range n.Bridges {
		switch bridge {
		case "legacy", "circle", "v2":
		default:
			return fmt.Errorf("unsupported bridge type: %s", bridge)
		}
		switch {
		case strings.EqualFold(n.Kind, "solana") && roles.Program == "":
			return fmt.Errorf("%s bridge: program is required on solana", bridge)
		case (strings.EqualFold(n.Kind, "evm") || strings.EqualFold(n.Kind, "tron")) && bridge == "v2" && roles.Contract == "":
			return fmt.Errorf("%s bridge: contract is required", bridge)
		}
	}
	return nil
}

func (r *Route) Validate(sinkIDs map[string]*Sink) error {
	for _, sinkID := range r.Sinks {
		if _, ok := sinkIDs[sinkID]; !ok {
			return fmt.Errorf("unknown sink: %s", sinkID)
		}
	}
	if r.Dedupe != nil {
		if r.Dedupe.Key == "" || r.Dedupe.TTL == "" {
			return errors.New("dedupe.key and dedupe.ttl are required when dedupe is set")
		}
		if _, err := time.ParseDuration(r.Dedupe.TTL); err != nil {
			return fmt.Errorf("dedupe.ttl: %w", err)
		}
	}
	return nil
}

func (s *Sink) Validate() error {
	switch strings.ToLower(s.Type) {
	case "slack", "teams":
		if s.WebhookURL == "" {
			return errors.New("webhook_url is required for slack/teams sinks")
		}
	case "webhook":
		if s.URL == "" {
			return errors.New("url is required for webhook sink")
		}
		if s.Method == "" {
			s.Method = "POST"
		}
	case "redis":
		if s.Addr == "" {
			return errors.New("addr is required for redis sink")
		}
		if s.List == "" {
			s.List = "bridge-indexer:records"
		}
	case "postgres":
		if s.DSN == "" {
			return errors.New("dsn is required for postgres sink")
		}
		if s.Table == "" {
			s.Table = "bridge_records"
		}
	default:
		return fmt.Errorf("unsupported sink type: %s", s.Type)
	}
	return nil
}

func dedup(values []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
