package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/groovy/replicasync/internal/contracts"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"

	TransportKafka    = "kafka"
	TransportRabbitMQ = "rabbitmq"
	TransportMemory   = "memory"
	TransportLog      = "log"

	TargetKindUsers = "users"
	TargetKindSongs = "songs"
)

type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	StoreKind       string
	CheckpointStore string
	SQLitePath      string
	DatabaseURL     string
	MaxDBConns      int32
	RedisURL        string

	Transport            string
	KafkaBrokers         []string
	RabbitURL            string
	RabbitExchangePrefix string
	RabbitPrefetch       int
	RetryInitial         time.Duration
	RetryMax             time.Duration
	Subscriptions        []contracts.Topic

	EventDedupTTL   time.Duration
	ReplicaCacheTTL time.Duration
	PublishTimeout  time.Duration

	CatalogEnabled bool

	Sync     SyncConfig
	Webhooks []WebhookConfig
}

type SyncConfig struct {
	PageSize         int
	Interval         time.Duration
	FullInterval     time.Duration
	FullOnStart      bool
	RequestTimeout   time.Duration
	BreakerThreshold uint32
	BreakerCooldown  time.Duration
	Targets          []SyncTarget
}

// SyncTarget binds a local replica to the owner endpoint that feeds it.
type SyncTarget struct {
	Name     string
	Resource string
	Kind     string
	BaseURL  string
}

type WebhookConfig struct {
	Integration string
	Caller      string
	Secret      string
}

type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL  string   `yaml:"postgres_url"`
		RedisURL     string   `yaml:"redis_url"`
		KafkaBrokers []string `yaml:"kafka_brokers"`
		RabbitMQURL  string   `yaml:"rabbitmq_url"`
		Transport    string   `yaml:"transport"`
	} `yaml:"dependencies"`
	Storage struct {
		Kind            string `yaml:"kind"`
		CheckpointStore string `yaml:"checkpoint_store"`
		SQLitePath      string `yaml:"sqlite_path"`
		MaxDBConns      int32  `yaml:"max_db_conns"`
	} `yaml:"storage"`
	Events struct {
		Subscriptions        []string `yaml:"subscriptions"`
		DedupTTL             string   `yaml:"dedup_ttl"`
		PublishTimeout       string   `yaml:"publish_timeout"`
		RetryInitial         string   `yaml:"retry_initial"`
		RetryMax             string   `yaml:"retry_max"`
		RabbitExchangePrefix string   `yaml:"rabbitmq_exchange_prefix"`
		RabbitPrefetch       int      `yaml:"rabbitmq_prefetch"`
	} `yaml:"events"`
	Cache struct {
		ReplicaTTL string `yaml:"replica_ttl"`
	} `yaml:"cache"`
	Catalog struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"catalog"`
	Sync struct {
		PageSize         int    `yaml:"page_size"`
		Interval         string `yaml:"interval"`
		FullInterval     string `yaml:"full_interval"`
		FullOnStart      bool   `yaml:"full_on_start"`
		RequestTimeout   string `yaml:"request_timeout"`
		BreakerThreshold uint32 `yaml:"breaker_threshold"`
		BreakerCooldown  string `yaml:"breaker_cooldown"`
		Targets          []struct {
			Name     string `yaml:"name"`
			Resource string `yaml:"resource"`
			Kind     string `yaml:"kind"`
			BaseURL  string `yaml:"base_url"`
		} `yaml:"targets"`
	} `yaml:"sync"`
	Webhooks []struct {
		Integration string `yaml:"integration"`
		Caller      string `yaml:"caller"`
	} `yaml:"webhooks"`
}

// LoadConfig layers defaults, the optional YAML file at path and
// environment overrides, then validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:       "replica-sync",
		HTTPPort:        8080,
		GRPCPort:        9090,
		StoreKind:       StorePostgres,
		CheckpointStore: StorePostgres,
		SQLitePath:      "checkpoints.db",
		MaxDBConns:      20,
		Transport:       TransportKafka,
		RabbitPrefetch:  32,
		RetryInitial:    500 * time.Millisecond,
		RetryMax:        30 * time.Second,
		EventDedupTTL:   7 * 24 * time.Hour,
		ReplicaCacheTTL: 5 * time.Minute,
		PublishTimeout:  10 * time.Second,
		Sync: SyncConfig{
			PageSize:         contracts.DefaultSyncPageSize,
			Interval:         time.Hour,
			FullInterval:     24 * time.Hour,
			RequestTimeout:   15 * time.Second,
			BreakerThreshold: 5,
			BreakerCooldown:  30 * time.Second,
		},
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		if err := applyFile(&cfg, raw); err != nil {
			return Config{}, err
		}
	} else if path != "" && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, raw []byte) error {
	var f configFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if f.Service.ID != "" {
		cfg.ServiceID = f.Service.ID
	}
	if f.Service.HTTPPort > 0 {
		cfg.HTTPPort = f.Service.HTTPPort
	}
	if f.Service.GRPCPort > 0 {
		cfg.GRPCPort = f.Service.GRPCPort
	}
	if f.Dependencies.PostgresURL != "" {
		cfg.DatabaseURL = f.Dependencies.PostgresURL
	}
	if f.Dependencies.RedisURL != "" {
		cfg.RedisURL = f.Dependencies.RedisURL
	}
	if len(f.Dependencies.KafkaBrokers) > 0 {
		cfg.KafkaBrokers = trimNonEmpty(f.Dependencies.KafkaBrokers)
	}
	if f.Dependencies.RabbitMQURL != "" {
		cfg.RabbitURL = f.Dependencies.RabbitMQURL
	}
	if f.Dependencies.Transport != "" {
		cfg.Transport = f.Dependencies.Transport
	}
	if f.Storage.Kind != "" {
		cfg.StoreKind = f.Storage.Kind
	}
	if f.Storage.CheckpointStore != "" {
		cfg.CheckpointStore = f.Storage.CheckpointStore
	}
	if f.Storage.SQLitePath != "" {
		cfg.SQLitePath = f.Storage.SQLitePath
	}
	if f.Storage.MaxDBConns > 0 {
		cfg.MaxDBConns = f.Storage.MaxDBConns
	}
	if len(f.Events.Subscriptions) > 0 {
		cfg.Subscriptions = toTopics(trimNonEmpty(f.Events.Subscriptions))
	}
	if f.Events.RabbitExchangePrefix != "" {
		cfg.RabbitExchangePrefix = f.Events.RabbitExchangePrefix
	}
	if f.Events.RabbitPrefetch > 0 {
		cfg.RabbitPrefetch = f.Events.RabbitPrefetch
	}
	cfg.CatalogEnabled = f.Catalog.Enabled
	if f.Sync.PageSize > 0 {
		cfg.Sync.PageSize = f.Sync.PageSize
	}
	cfg.Sync.FullOnStart = f.Sync.FullOnStart
	if f.Sync.BreakerThreshold > 0 {
		cfg.Sync.BreakerThreshold = f.Sync.BreakerThreshold
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"events.dedup_ttl", f.Events.DedupTTL, &cfg.EventDedupTTL},
		{"events.publish_timeout", f.Events.PublishTimeout, &cfg.PublishTimeout},
		{"events.retry_initial", f.Events.RetryInitial, &cfg.RetryInitial},
		{"events.retry_max", f.Events.RetryMax, &cfg.RetryMax},
		{"cache.replica_ttl", f.Cache.ReplicaTTL, &cfg.ReplicaCacheTTL},
		{"sync.interval", f.Sync.Interval, &cfg.Sync.Interval},
		{"sync.full_interval", f.Sync.FullInterval, &cfg.Sync.FullInterval},
		{"sync.request_timeout", f.Sync.RequestTimeout, &cfg.Sync.RequestTimeout},
		{"sync.breaker_cooldown", f.Sync.BreakerCooldown, &cfg.Sync.BreakerCooldown},
	}
	for _, d := range durations {
		if strings.TrimSpace(d.raw) == "" {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("parse config file: %s: %w", d.key, err)
		}
		*d.dst = v
	}

	for _, t := range f.Sync.Targets {
		cfg.Sync.Targets = append(cfg.Sync.Targets, SyncTarget{
			Name:     strings.TrimSpace(t.Name),
			Resource: strings.TrimSpace(t.Resource),
			Kind:     strings.ToLower(strings.TrimSpace(t.Kind)),
			BaseURL:  strings.TrimSpace(t.BaseURL),
		})
	}
	for _, w := range f.Webhooks {
		cfg.Webhooks = append(cfg.Webhooks, WebhookConfig{
			Integration: strings.ToLower(strings.TrimSpace(w.Integration)),
			Caller:      strings.TrimSpace(w.Caller),
		})
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.ServiceID = envOrDefault("SERVICE_ID", cfg.ServiceID)
	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.StoreKind = strings.ToLower(envOrDefault("STORE_KIND", cfg.StoreKind))
	cfg.CheckpointStore = strings.ToLower(envOrDefault("CHECKPOINT_STORE", cfg.CheckpointStore))
	cfg.SQLitePath = envOrDefault("SQLITE_PATH", cfg.SQLitePath)
	cfg.Transport = strings.ToLower(envOrDefault("EVENT_TRANSPORT", cfg.Transport))
	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.RabbitURL = envOrDefault("RABBITMQ_URL", cfg.RabbitURL)
	cfg.RabbitPrefetch = envInt("RABBITMQ_PREFETCH", cfg.RabbitPrefetch)
	if subs := envCSV("SUBSCRIPTIONS", nil); len(subs) > 0 {
		cfg.Subscriptions = toTopics(subs)
	}
	cfg.CatalogEnabled = envBool("CATALOG_ENABLED", cfg.CatalogEnabled)
	cfg.EventDedupTTL = time.Duration(envInt("EVENT_DEDUP_TTL_HOURS", int(cfg.EventDedupTTL.Hours()))) * time.Hour
	cfg.ReplicaCacheTTL = time.Duration(envInt("REPLICA_CACHE_SECONDS", int(cfg.ReplicaCacheTTL.Seconds()))) * time.Second
	cfg.Sync.PageSize = envInt("SYNC_PAGE_SIZE", cfg.Sync.PageSize)
	cfg.Sync.FullOnStart = envBool("SYNC_FULL_ON_START", cfg.Sync.FullOnStart)
	cfg.Sync.BreakerThreshold = uint32(envInt("SYNC_BREAKER_THRESHOLD", int(cfg.Sync.BreakerThreshold)))

	var err error
	if cfg.Sync.Interval, err = envDuration("SYNC_INTERVAL", cfg.Sync.Interval); err != nil {
		return err
	}
	if cfg.Sync.FullInterval, err = envDuration("SYNC_FULL_INTERVAL", cfg.Sync.FullInterval); err != nil {
		return err
	}
	if cfg.Sync.RequestTimeout, err = envDuration("SYNC_REQUEST_TIMEOUT", cfg.Sync.RequestTimeout); err != nil {
		return err
	}
	if cfg.PublishTimeout, err = envDuration("PUBLISH_TIMEOUT", cfg.PublishTimeout); err != nil {
		return err
	}

	for i := range cfg.Sync.Targets {
		key := "SYNC_TARGET_" + envKey(cfg.Sync.Targets[i].Name) + "_URL"
		cfg.Sync.Targets[i].BaseURL = envOrDefault(key, cfg.Sync.Targets[i].BaseURL)
	}
	for i := range cfg.Webhooks {
		cfg.Webhooks[i].Secret = os.Getenv("WEBHOOK_SECRET_" + envKey(cfg.Webhooks[i].Integration))
	}
	return nil
}

func (c Config) Validate() error {
	var problems []string
	switch c.StoreKind {
	case StorePostgres:
		if c.DatabaseURL == "" {
			problems = append(problems, "missing DB_URL/POSTGRES_URL")
		}
	case StoreMemory:
	default:
		problems = append(problems, fmt.Sprintf("unsupported store kind %q", c.StoreKind))
	}
	switch c.CheckpointStore {
	case StorePostgres:
		if c.StoreKind != StorePostgres {
			problems = append(problems, "postgres checkpoint store requires the postgres store")
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			problems = append(problems, "missing SQLITE_PATH")
		}
	case StoreMemory:
	default:
		problems = append(problems, fmt.Sprintf("unsupported checkpoint store %q", c.CheckpointStore))
	}
	switch c.Transport {
	case TransportKafka:
		if len(c.KafkaBrokers) == 0 {
			problems = append(problems, "missing KAFKA_BROKERS")
		}
	case TransportRabbitMQ:
		if c.RabbitURL == "" {
			problems = append(problems, "missing RABBITMQ_URL")
		}
	case TransportMemory, TransportLog:
	default:
		problems = append(problems, fmt.Sprintf("unsupported event transport %q", c.Transport))
	}
	for _, topic := range c.Subscriptions {
		if !contracts.KnownTopic(string(topic)) {
			problems = append(problems, fmt.Sprintf("unknown subscription topic %q", topic))
		}
	}
	if c.Sync.PageSize < 1 || c.Sync.PageSize > contracts.MaxSyncPageSize {
		problems = append(problems, fmt.Sprintf("sync page size must be between 1 and %d", contracts.MaxSyncPageSize))
	}
	seen := make(map[string]bool, len(c.Sync.Targets))
	for _, t := range c.Sync.Targets {
		if t.Name == "" || t.Resource == "" {
			problems = append(problems, "sync target requires name and resource")
			continue
		}
		if seen[t.Name] {
			problems = append(problems, fmt.Sprintf("duplicate sync target %q", t.Name))
		}
		seen[t.Name] = true
		if t.Kind != TargetKindUsers && t.Kind != TargetKindSongs {
			problems = append(problems, fmt.Sprintf("sync target %q: unsupported kind %q", t.Name, t.Kind))
		}
		if t.BaseURL == "" {
			problems = append(problems, fmt.Sprintf("sync target %q: missing base url", t.Name))
		}
	}
	for _, w := range c.Webhooks {
		if w.Integration == "" || w.Caller == "" {
			problems = append(problems, "webhook requires integration and caller")
			continue
		}
		if w.Secret == "" {
			problems = append(problems, "missing WEBHOOK_SECRET_"+envKey(w.Integration))
		}
		if !c.CatalogEnabled {
			problems = append(problems, fmt.Sprintf("webhook %q requires the catalog", w.Integration))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func toTopics(values []string) []contracts.Topic {
	out := make([]contracts.Topic, 0, len(values))
	for _, v := range values {
		out = append(out, contracts.Topic(v))
	}
	return out
}

// envKey turns "song-events" into "SONG_EVENTS".
func envKey(name string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(strings.TrimSpace(name)))
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return fallback
	}
}

func envDuration(name string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return v, nil
}

func envCSV(name string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	items := strings.Split(raw, ",")
	return trimNonEmpty(items)
}

func trimNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
