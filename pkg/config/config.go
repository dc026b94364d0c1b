package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/vrischmann/envconfig"
	"gopkg.in/yaml.v3"
)

// Ledger backends
const (
	LedgerMemory   = "memory"
	LedgerBolt     = "bolt"
	LedgerRedis    = "redis"
	LedgerPostgres = "postgres"
)

// Config is the complete fleetdrain configuration
type Config struct {
	Log        LogConfig        `yaml:"log"`
	HTTP       HTTPConfig       `yaml:"http"`
	Kubernetes KubernetesConfig `yaml:"kubernetes"`
	AWS        AWSConfig        `yaml:"aws"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Intake     IntakeConfig     `yaml:"intake"`
	Capacity   CapacityConfig   `yaml:"capacity"`
	Drain      DrainConfig      `yaml:"drain"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// KubernetesConfig selects the cluster and the markers used while draining
type KubernetesConfig struct {
	Kubeconfig  string `yaml:"kubeconfig"`
	MasterURL   string `yaml:"masterURL"`
	BearerToken string `yaml:"bearerToken"`
	Insecure    bool   `yaml:"insecure"`

	SystemNamespace     string        `yaml:"systemNamespace"`
	EvictionGracePeriod time.Duration `yaml:"evictionGracePeriod"`
	ActiveTaintKey      string        `yaml:"activeTaintKey"`
	DrainingTaintKey    string        `yaml:"drainingTaintKey"`
}

type AWSConfig struct {
	Region string `yaml:"region"`
}

// LedgerConfig selects the dedup ledger backend
type LedgerConfig struct {
	Backend string `yaml:"backend"`

	BoltPath string `yaml:"boltPath"`

	RedisAddr     string        `yaml:"redisAddr"`
	RedisPassword string        `yaml:"redisPassword"`
	RedisDB       int           `yaml:"redisDB"`
	RedisPrefix   string        `yaml:"redisPrefix"`
	TTL           time.Duration `yaml:"ttl"`

	PostgresDSN string `yaml:"postgresDSN"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"groupID"`
}

// IntakeConfig bounds how fast records are fed into the controller
type IntakeConfig struct {
	Workers       int           `yaml:"workers"`
	RatePerSecond float64       `yaml:"ratePerSecond"`
	RecordTimeout time.Duration `yaml:"recordTimeout"`
}

// CapacityConfig drives the capacity poller
type CapacityConfig struct {
	Groups       []string      `yaml:"groups"`
	PollInterval time.Duration `yaml:"pollInterval"`
}

// DrainConfig is the registration health poll policy
type DrainConfig struct {
	HealthAttempts uint          `yaml:"healthAttempts"`
	MinDelay       time.Duration `yaml:"minDelay"`
	MaxDelay       time.Duration `yaml:"maxDelay"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	return &Config{
		Log:  LogConfig{Level: "info"},
		HTTP: HTTPConfig{Addr: ":9090"},
		Kubernetes: KubernetesConfig{
			SystemNamespace:     "kube-system",
			EvictionGracePeriod: 30 * time.Second,
			ActiveTaintKey:      "gamelift.status/active",
			DrainingTaintKey:    "gamelift.status/draining",
		},
		Ledger: LedgerConfig{
			Backend:     LedgerBolt,
			BoltPath:    "fleetdrain.db",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "fleetdrain",
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "fleetdrain.instances",
			GroupID: "fleetdrain",
		},
		Intake: IntakeConfig{
			Workers:       8,
			RatePerSecond: 20,
			RecordTimeout: 2 * time.Minute,
		},
		Capacity: CapacityConfig{
			PollInterval: time.Minute,
		},
		Drain: DrainConfig{
			HealthAttempts: 3,
			MinDelay:       time.Second,
			MaxDelay:       5 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in that order of precedence (environment wins)
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile preloads variables from dotenv files. Variables already set in
// the environment are kept.
func LoadEnvFile(paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	if err := godotenv.Load(paths...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// Validate checks backend names, addresses required by the chosen backends
// and the retry bounds
func (c *Config) Validate() error {
	var errs []error

	switch c.Ledger.Backend {
	case LedgerMemory:
	case LedgerBolt:
		if c.Ledger.BoltPath == "" {
			errs = append(errs, errors.New("ledger.boltPath is required for the bolt backend"))
		}
	case LedgerRedis:
		if c.Ledger.RedisAddr == "" {
			errs = append(errs, errors.New("ledger.redisAddr is required for the redis backend"))
		}
	case LedgerPostgres:
		if c.Ledger.PostgresDSN == "" {
			errs = append(errs, errors.New("ledger.postgresDSN is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ledger backend %q", c.Ledger.Backend))
	}
	if c.Ledger.TTL < 0 {
		errs = append(errs, errors.New("ledger.ttl must not be negative"))
	}

	if c.Drain.HealthAttempts == 0 {
		errs = append(errs, errors.New("drain.healthAttempts must be at least 1"))
	}
	if c.Drain.MinDelay < 0 || c.Drain.MaxDelay < c.Drain.MinDelay {
		errs = append(errs, fmt.Errorf("drain delay bounds are invalid: min=%s max=%s", c.Drain.MinDelay, c.Drain.MaxDelay))
	}

	if c.Intake.Workers < 1 {
		errs = append(errs, errors.New("intake.workers must be at least 1"))
	}
	if c.Intake.RatePerSecond < 0 {
		errs = append(errs, errors.New("intake.ratePerSecond must not be negative"))
	}
	if c.Intake.RecordTimeout <= 0 {
		errs = append(errs, errors.New("intake.recordTimeout must be positive"))
	}

	if c.Kubernetes.SystemNamespace == "" {
		errs = append(errs, errors.New("kubernetes.systemNamespace is required"))
	}
	if c.Kubernetes.ActiveTaintKey == "" || c.Kubernetes.DrainingTaintKey == "" {
		errs = append(errs, errors.New("kubernetes taint keys are required"))
	}
	if c.Kubernetes.ActiveTaintKey == c.Kubernetes.DrainingTaintKey {
		errs = append(errs, errors.New("kubernetes.activeTaintKey and drainingTaintKey must differ"))
	}

	if c.Capacity.PollInterval <= 0 {
		errs = append(errs, errors.New("capacity.pollInterval must be positive"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ValidateKafka checks the settings needed by the intake consumer and the
// capacity publisher
func (c *Config) ValidateKafka() error {
	if len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "" {
		return errors.New("kafka.brokers and kafka.topic are required")
	}
	return nil
}

// ValidateCapacity checks the settings needed by the capacity poller
func (c *Config) ValidateCapacity() error {
	if err := c.ValidateKafka(); err != nil {
		return err
	}
	if len(c.Capacity.Groups) == 0 {
		return errors.New("capacity.groups must name at least one game server group")
	}
	return nil
}

// env mirrors Config as flat environment variables. Unset variables keep the
// value already loaded.
type env struct {
	LogLevel string `envconfig:"FLEETDRAIN_LOG_LEVEL"`
	LogJSON  bool   `envconfig:"FLEETDRAIN_LOG_JSON"`
	HTTPAddr string `envconfig:"FLEETDRAIN_HTTP_ADDR"`

	Kubeconfig          string        `envconfig:"FLEETDRAIN_KUBECONFIG"`
	KubeMasterURL       string        `envconfig:"FLEETDRAIN_KUBE_URL"`
	KubeToken           string        `envconfig:"FLEETDRAIN_KUBE_TOKEN"`
	KubeInsecure        bool          `envconfig:"FLEETDRAIN_KUBE_INSECURE"`
	SystemNamespace     string        `envconfig:"FLEETDRAIN_SYSTEM_NAMESPACE"`
	EvictionGracePeriod time.Duration `envconfig:"FLEETDRAIN_EVICTION_GRACE_PERIOD"`

	AWSRegion string `envconfig:"FLEETDRAIN_AWS_REGION"`

	LedgerBackend string        `envconfig:"FLEETDRAIN_LEDGER_BACKEND"`
	BoltPath      string        `envconfig:"FLEETDRAIN_LEDGER_BOLT_PATH"`
	RedisAddr     string        `envconfig:"FLEETDRAIN_LEDGER_REDIS_ADDR"`
	RedisPassword string        `envconfig:"FLEETDRAIN_LEDGER_REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"FLEETDRAIN_LEDGER_REDIS_DB"`
	LedgerTTL     time.Duration `envconfig:"FLEETDRAIN_LEDGER_TTL"`
	PostgresDSN   string        `envconfig:"FLEETDRAIN_LEDGER_POSTGRES_DSN"`

	KafkaBrokers string `envconfig:"FLEETDRAIN_KAFKA_BROKERS"`
	KafkaTopic   string `envconfig:"FLEETDRAIN_KAFKA_TOPIC"`
	KafkaGroupID string `envconfig:"FLEETDRAIN_KAFKA_GROUP_ID"`

	IntakeWorkers int     `envconfig:"FLEETDRAIN_INTAKE_WORKERS"`
	IntakeRate    float64 `envconfig:"FLEETDRAIN_INTAKE_RATE"`

	CapacityGroups string        `envconfig:"FLEETDRAIN_CAPACITY_GROUPS"`
	PollInterval   time.Duration `envconfig:"FLEETDRAIN_CAPACITY_POLL_INTERVAL"`
}

func (c *Config) applyEnv() error {
	e := env{
		LogLevel:            c.Log.Level,
		LogJSON:             c.Log.JSON,
		HTTPAddr:            c.HTTP.Addr,
		Kubeconfig:          c.Kubernetes.Kubeconfig,
		KubeMasterURL:       c.Kubernetes.MasterURL,
		KubeToken:           c.Kubernetes.BearerToken,
		KubeInsecure:        c.Kubernetes.Insecure,
		SystemNamespace:     c.Kubernetes.SystemNamespace,
		EvictionGracePeriod: c.Kubernetes.EvictionGracePeriod,
		AWSRegion:           c.AWS.Region,
		LedgerBackend:       c.Ledger.Backend,
		BoltPath:            c.Ledger.BoltPath,
		RedisAddr:           c.Ledger.RedisAddr,
		RedisPassword:       c.Ledger.RedisPassword,
		RedisDB:             c.Ledger.RedisDB,
		LedgerTTL:           c.Ledger.TTL,
		PostgresDSN:         c.Ledger.PostgresDSN,
		KafkaBrokers:        strings.Join(c.Kafka.Brokers, ","),
		KafkaTopic:          c.Kafka.Topic,
		KafkaGroupID:        c.Kafka.GroupID,
		IntakeWorkers:       c.Intake.Workers,
		IntakeRate:          c.Intake.RatePerSecond,
		CapacityGroups:      strings.Join(c.Capacity.Groups, ","),
		PollInterval:        c.Capacity.PollInterval,
	}

	if err := envconfig.InitWithOptions(&e, envconfig.Options{AllOptional: true}); err != nil {
		return err
	}

	c.Log.Level = e.LogLevel
	c.Log.JSON = e.LogJSON
	c.HTTP.Addr = e.HTTPAddr
	c.Kubernetes.Kubeconfig = e.Kubeconfig
	c.Kubernetes.MasterURL = e.KubeMasterURL
	c.Kubernetes.BearerToken = e.KubeToken
	c.Kubernetes.Insecure = e.KubeInsecure
	c.Kubernetes.SystemNamespace = e.SystemNamespace
	c.Kubernetes.EvictionGracePeriod = e.EvictionGracePeriod
	c.AWS.Region = e.AWSRegion
	c.Ledger.Backend = e.LedgerBackend
	c.Ledger.BoltPath = e.BoltPath
	c.Ledger.RedisAddr = e.RedisAddr
	c.Ledger.RedisPassword = e.RedisPassword
	c.Ledger.RedisDB = e.RedisDB
	c.Ledger.TTL = e.LedgerTTL
	c.Ledger.PostgresDSN = e.PostgresDSN
	c.Kafka.Brokers = splitList(e.KafkaBrokers)
	c.Kafka.Topic = e.KafkaTopic
	c.Kafka.GroupID = e.KafkaGroupID
	c.Intake.Workers = e.IntakeWorkers
	c.Intake.RatePerSecond = e.IntakeRate
	c.Capacity.Groups = splitList(e.CapacityGroups)
	c.Capacity.PollInterval = e.PollInterval
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
