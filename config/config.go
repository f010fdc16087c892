package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration with YAML unmarshaling from strings like "1s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Config is the top-level moodlens configuration.
type Config struct {
	LogLevel string         `yaml:"log_level"`
	Policy   PolicyConfig   `yaml:"policy"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Vision   VisionConfig   `yaml:"vision"`
	Hugot    HugotConfig    `yaml:"hugot"`
	Cache    CacheConfig    `yaml:"cache"`
	Store    StoreConfig    `yaml:"store"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Face     FaceConfig     `yaml:"face"`
	Reddit   RedditConfig   `yaml:"reddit"`
}

// PolicyConfig selects how raw model output is bucketed.
// Mode is one of ternary, cutoff or band.
type PolicyConfig struct {
	Mode      string            `yaml:"mode"`
	Threshold float64           `yaml:"threshold"`
	BandLow   float64           `yaml:"band_low"`
	BandHigh  float64           `yaml:"band_high"`
	LabelMap  map[string]string `yaml:"label_map"`
}

type AnalysisConfig struct {
	Backend          string   `yaml:"backend"` // hugot, vader or gateway
	BatchSize        int      `yaml:"batch_size"`
	BatchDelay       Duration `yaml:"batch_delay"`
	RateLimitRetries int      `yaml:"rate_limit_retries"`
	InitialBackoff   Duration `yaml:"initial_backoff"`
	MaxBackoff       Duration `yaml:"max_backoff"`
	CallTimeout      Duration `yaml:"call_timeout"`
	ItemFallback     bool     `yaml:"item_fallback"`
}

type GatewayConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

type VisionConfig struct {
	Endpoint   string   `yaml:"endpoint"`
	Token      string   `yaml:"token"`
	Timeout    Duration `yaml:"timeout"`
	Confidence float64  `yaml:"confidence"`
}

type HugotConfig struct {
	Model    string `yaml:"model"`
	ModelDir string `yaml:"model_dir"`
}

type CacheConfig struct {
	Address  string   `yaml:"address"`
	Password string   `yaml:"password"`
	TLS      bool     `yaml:"tls"`
	TTL      Duration `yaml:"ttl"`
}

type StoreConfig struct {
	Driver   string `yaml:"driver"` // sqlite or dynamodb
	Path     string `yaml:"path"`
	Table    string `yaml:"table"`
	Endpoint string `yaml:"endpoint"`
	Region   string `yaml:"region"`
}

type KafkaConfig struct {
	Broker       string `yaml:"broker"`
	GroupID      string `yaml:"group_id"`
	RequestTopic string `yaml:"request_topic"`
	ResultTopic  string `yaml:"result_topic"`
}

type FaceConfig struct {
	Interval Duration `yaml:"interval"`
}

// RedditConfig holds app-only OAuth credentials for pulling comments from a
// subreddit search.
type RedditConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	APIURL       string `yaml:"api_url"`
	AuthURL      string `yaml:"auth_url"`
	Limit        int    `yaml:"limit"`
}

const (
	PolicyTernary = "ternary"
	PolicyCutoff  = "cutoff"
	PolicyBand    = "band"

	BackendHugot   = "hugot"
	BackendVader   = "vader"
	BackendGateway = "gateway"

	StoreSQLite   = "sqlite"
	StoreDynamoDB = "dynamodb"
)

const (
	defaultThreshold      = 0.7
	defaultBandLow        = 0.4
	defaultBandHigh       = 0.6
	defaultBatchSize      = 10
	defaultBatchDelay     = time.Second
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 32 * time.Second
	defaultCallTimeout    = 60 * time.Second
	defaultGatewayModel   = "gpt-4o-mini"
	defaultVisionTimeout  = 30 * time.Second
	defaultConfidence     = 0.8
	defaultHugotModel     = "KnightsAnalytics/distilbert-base-uncased-finetuned-sst-2-english"
	defaultHugotModelDir  = "./models"
	defaultCacheTTL       = 24 * time.Hour
	defaultStorePath      = "moodlens.db"
	defaultStoreTable     = "SentimentRuns"
	defaultFaceInterval   = 3 * time.Second
	defaultRedditAPIURL   = "https://oauth.reddit.com"
	defaultRedditAuthURL  = "https://www.reddit.com/api/v1/access_token"
	defaultRedditLimit    = 100
)

// Default returns a Config populated with defaults only.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Policy: PolicyConfig{
			Mode:      PolicyCutoff,
			Threshold: defaultThreshold,
			BandLow:   defaultBandLow,
			BandHigh:  defaultBandHigh,
		},
		Analysis: AnalysisConfig{
			Backend:        BackendVader,
			BatchSize:      defaultBatchSize,
			BatchDelay:     Duration{defaultBatchDelay},
			InitialBackoff: Duration{defaultInitialBackoff},
			MaxBackoff:     Duration{defaultMaxBackoff},
			CallTimeout:    Duration{defaultCallTimeout},
		},
		Gateway: GatewayConfig{Model: defaultGatewayModel},
		Vision: VisionConfig{
			Timeout:    Duration{defaultVisionTimeout},
			Confidence: defaultConfidence,
		},
		Hugot: HugotConfig{Model: defaultHugotModel, ModelDir: defaultHugotModelDir},
		Cache: CacheConfig{TTL: Duration{defaultCacheTTL}},
		Store: StoreConfig{
			Driver: StoreSQLite,
			Path:   defaultStorePath,
			Table:  defaultStoreTable,
			Region: "us-west-2",
		},
		Kafka: KafkaConfig{
			Broker:       "localhost:29092",
			GroupID:      "moodlens-consumer-group",
			RequestTopic: "analysis-requests",
			ResultTopic:  "analysis-results",
		},
		Face: FaceConfig{Interval: Duration{defaultFaceInterval}},
		Reddit: RedditConfig{
			APIURL:  defaultRedditAPIURL,
			AuthURL: defaultRedditAuthURL,
			Limit:   defaultRedditLimit,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in that order. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func applyEnv(cfg *Config) error {
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	cfg.Policy.Mode = getEnv("POLICY_MODE", cfg.Policy.Mode)
	if err := envFloat("POLICY_THRESHOLD", &cfg.Policy.Threshold); err != nil {
		return err
	}
	if err := envFloat("POLICY_BAND_LOW", &cfg.Policy.BandLow); err != nil {
		return err
	}
	if err := envFloat("POLICY_BAND_HIGH", &cfg.Policy.BandHigh); err != nil {
		return err
	}

	cfg.Analysis.Backend = getEnv("ANALYSIS_BACKEND", cfg.Analysis.Backend)
	if err := envInt("BATCH_SIZE", &cfg.Analysis.BatchSize); err != nil {
		return err
	}
	if err := envDuration("BATCH_DELAY", &cfg.Analysis.BatchDelay); err != nil {
		return err
	}
	if err := envInt("RATE_LIMIT_RETRIES", &cfg.Analysis.RateLimitRetries); err != nil {
		return err
	}
	if err := envDuration("CALL_TIMEOUT", &cfg.Analysis.CallTimeout); err != nil {
		return err
	}
	if v, ok := os.LookupEnv("ITEM_FALLBACK"); ok {
		cfg.Analysis.ItemFallback = v == "true"
	}

	cfg.Gateway.BaseURL = getEnv("GATEWAY_BASE_URL", cfg.Gateway.BaseURL)
	cfg.Gateway.APIKey = getEnv("GATEWAY_API_KEY", cfg.Gateway.APIKey)
	if cfg.Gateway.APIKey == "" {
		cfg.Gateway.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	cfg.Gateway.Model = getEnv("GATEWAY_MODEL", cfg.Gateway.Model)

	cfg.Vision.Endpoint = getEnv("VISION_ENDPOINT", cfg.Vision.Endpoint)
	cfg.Vision.Token = getEnv("VISION_TOKEN", cfg.Vision.Token)
	if err := envFloat("VISION_CONFIDENCE", &cfg.Vision.Confidence); err != nil {
		return err
	}

	cfg.Hugot.Model = getEnv("HUGOT_MODEL", cfg.Hugot.Model)
	cfg.Hugot.ModelDir = getEnv("HUGOT_MODEL_DIR", cfg.Hugot.ModelDir)

	cfg.Cache.Address = getEnv("VALKEY_INIT_ADDRESS", cfg.Cache.Address)
	cfg.Cache.Password = getEnv("VALKEY_PASSWORD", cfg.Cache.Password)
	if v, ok := os.LookupEnv("VALKEY_TLS"); ok {
		cfg.Cache.TLS = v == "true"
	}

	cfg.Store.Driver = getEnv("STORE_DRIVER", cfg.Store.Driver)
	cfg.Store.Path = getEnv("STORE_PATH", cfg.Store.Path)
	cfg.Store.Table = getEnv("DYNAMODB_TABLE", cfg.Store.Table)
	cfg.Store.Endpoint = getEnv("AWS_ENDPOINT", cfg.Store.Endpoint)
	cfg.Store.Region = getEnv("AWS_REGION", cfg.Store.Region)

	cfg.Kafka.Broker = getEnv("KAFKA_BROKER", cfg.Kafka.Broker)
	cfg.Kafka.GroupID = getEnv("KAFKA_CONSUMER_GROUP_ID", cfg.Kafka.GroupID)
	cfg.Kafka.RequestTopic = getEnv("KAFKA_REQUEST_TOPIC", cfg.Kafka.RequestTopic)
	cfg.Kafka.ResultTopic = getEnv("KAFKA_RESULT_TOPIC", cfg.Kafka.ResultTopic)

	cfg.Reddit.ClientID = getEnv("REDDIT_CLIENT_ID", cfg.Reddit.ClientID)
	cfg.Reddit.ClientSecret = getEnv("REDDIT_CLIENT_SECRET", cfg.Reddit.ClientSecret)
	if err := envInt("REDDIT_LIMIT", &cfg.Reddit.Limit); err != nil {
		return err
	}

	return envDuration("FACE_INTERVAL", &cfg.Face.Interval)
}

func envFloat(key string, dst *float64) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

func envInt(key string, dst *int) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envDuration(key string, dst *Duration) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	dst.Duration = d
	return nil
}

// Validate checks that all required fields are set and values are in range.
func (c *Config) Validate() error {
	var errs []error

	switch c.Policy.Mode {
	case PolicyTernary, PolicyCutoff, PolicyBand:
	default:
		errs = append(errs, fmt.Errorf("policy.mode: unknown mode %q", c.Policy.Mode))
	}
	if c.Policy.Threshold < 0 || c.Policy.Threshold > 1 {
		errs = append(errs, errors.New("policy.threshold must be within [0,1]"))
	}
	if c.Policy.BandLow < 0 || c.Policy.BandHigh > 1 || c.Policy.BandLow > c.Policy.BandHigh {
		errs = append(errs, errors.New("policy.band_low/band_high must satisfy 0 <= low <= high <= 1"))
	}

	switch c.Analysis.Backend {
	case BackendHugot, BackendVader, BackendGateway:
	default:
		errs = append(errs, fmt.Errorf("analysis.backend: unknown backend %q", c.Analysis.Backend))
	}
	if c.Analysis.BatchSize <= 0 {
		errs = append(errs, errors.New("analysis.batch_size must be > 0"))
	}
	if c.Analysis.BatchDelay.Duration < 0 {
		errs = append(errs, errors.New("analysis.batch_delay must be >= 0"))
	}
	if c.Analysis.RateLimitRetries < 0 {
		errs = append(errs, errors.New("analysis.rate_limit_retries must be >= 0"))
	}

	if c.Vision.Confidence < 0 || c.Vision.Confidence > 1 {
		errs = append(errs, errors.New("vision.confidence must be within [0,1]"))
	}

	switch c.Store.Driver {
	case StoreSQLite, StoreDynamoDB:
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver))
	}

	if c.Face.Interval.Duration <= 0 {
		errs = append(errs, errors.New("face.interval must be > 0"))
	}

	if c.Reddit.Limit <= 0 || c.Reddit.Limit > 100 {
		errs = append(errs, errors.New("reddit.limit must be within [1,100]"))
	}

	return errors.Join(errs...)
}
