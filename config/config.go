// Package config loads the knowledge-base engine's configuration from a file
// and environment variables: environment overrides the file, and the file
// overrides built-in defaults. Command-line flags are not read here; a
// caller's --config flag only selects the file path.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// BlobConfig configures the Blob Store Adapter (C1).
type BlobConfig struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	PresignTTL      time.Duration
}

// CatalogConfig configures the Metadata Store Adapter (C2).
type CatalogConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// IndexConfig configures the Index Store Adapter (C3).
type IndexConfig struct {
	Addresses       []string
	Username        string
	Password        string
	IndexName       string
	RefreshInterval time.Duration
	VectorDim       int
}

// ModelGatewayConfig configures the Model Gateway (C4).
type ModelGatewayConfig struct {
	EmbedEndpoint  string
	VLMEndpoint    string
	EmbedBatchSize int
	EmbedTimeout   time.Duration
	VLMTimeout     time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	VectorDim      int
}

// DeepModeConfig exposes the adaptive two-pass OCR thresholds left open by
// spec section 9, item 2.
type DeepModeConfig struct {
	LowDPI                   int
	HighDPI                  int
	ReOCRConfidenceThreshold float64
}

// RenderConfig configures the external rendering/OCR capabilities the
// Render/OCR Adapter (C5) drives — headless document-to-image
// conversion and OCR recognition, both out-of-process services per
// spec section 4.5's framing of them as "external capabilities".
type RenderConfig struct {
	ConvertEndpoint string
	OCREndpoint     string
	CallTimeout     time.Duration
}

// ChunkConfig configures the Chunker (C6).
type ChunkConfig struct {
	TargetSize int
	Overlap    int
	HardCap    int
}

// PoolConfig configures the Task Manager's worker pools (C8, spec section 5).
type PoolConfig struct {
	CPUPoolSize   int
	ModelPoolSize int
	LeaseTTL      time.Duration
	HeartbeatTTL  time.Duration
	MaxAttempts   int
	AdmitMax      int
}

// AuthConfig configures the Auth & Token Service (C12).
type AuthConfig struct {
	SigningSecret   string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	BcryptCost      int
}

// Config is the root configuration object assembled at process startup and
// passed explicitly to every service constructor — the teacher's
// "process-level service object" pattern, generalized to configuration
// rather than phase state.
type Config struct {
	Blob         BlobConfig
	Catalog      CatalogConfig
	Index        IndexConfig
	ModelGateway ModelGatewayConfig
	Render       RenderConfig
	DeepMode     DeepModeConfig
	Chunk        ChunkConfig
	Pool         PoolConfig
	Auth         AuthConfig
	RedisURL     string
	HTTPAddr     string
}

// Load reads configuration from (in increasing priority) built-in defaults,
// a config file at path (if non-empty), and environment variables prefixed
// KB_, with dots in a key written as underscores (blob.endpoint is read
// from KB_BLOB_ENDPOINT).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("KB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	setDefaults(v)

	cfg := &Config{
		Blob: BlobConfig{
			Endpoint:        v.GetString("blob.endpoint"),
			Region:          v.GetString("blob.region"),
			Bucket:          v.GetString("blob.bucket"),
			AccessKeyID:     v.GetString("blob.access_key_id"),
			SecretAccessKey: v.GetString("blob.secret_access_key"),
			UsePathStyle:    v.GetBool("blob.use_path_style"),
			PresignTTL:      v.GetDuration("blob.presign_ttl"),
		},
		Catalog: CatalogConfig{
			DSN:             v.GetString("catalog.dsn"),
			MaxOpenConns:    v.GetInt("catalog.max_open_conns"),
			MaxIdleConns:    v.GetInt("catalog.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("catalog.conn_max_lifetime"),
		},
		Index: IndexConfig{
			Addresses:       v.GetStringSlice("index.addresses"),
			Username:        v.GetString("index.username"),
			Password:        v.GetString("index.password"),
			IndexName:       v.GetString("index.name"),
			RefreshInterval: v.GetDuration("index.refresh_interval"),
			VectorDim:       v.GetInt("index.vector_dim"),
		},
		ModelGateway: ModelGatewayConfig{
			EmbedEndpoint:  v.GetString("model.embed_endpoint"),
			VLMEndpoint:    v.GetString("model.vlm_endpoint"),
			EmbedBatchSize: v.GetInt("model.embed_batch_size"),
			EmbedTimeout:   v.GetDuration("model.embed_timeout"),
			VLMTimeout:     v.GetDuration("model.vlm_timeout"),
			MaxRetries:     v.GetInt("model.max_retries"),
			RetryBaseDelay: v.GetDuration("model.retry_base_delay"),
			VectorDim:      v.GetInt("index.vector_dim"),
		},
		Render: RenderConfig{
			ConvertEndpoint: v.GetString("render.convert_endpoint"),
			OCREndpoint:     v.GetString("render.ocr_endpoint"),
			CallTimeout:     v.GetDuration("render.call_timeout"),
		},
		DeepMode: DeepModeConfig{
			LowDPI:                   v.GetInt("deep_mode.low_dpi"),
			HighDPI:                  v.GetInt("deep_mode.high_dpi"),
			ReOCRConfidenceThreshold: v.GetFloat64("deep_mode.reocr_confidence_threshold"),
		},
		Chunk: ChunkConfig{
			TargetSize: v.GetInt("chunk.target_size"),
			Overlap:    v.GetInt("chunk.overlap"),
			HardCap:    v.GetInt("chunk.hard_cap"),
		},
		Pool: PoolConfig{
			CPUPoolSize:   v.GetInt("pool.cpu_pool_size"),
			ModelPoolSize: v.GetInt("pool.model_pool_size"),
			LeaseTTL:      v.GetDuration("pool.lease_ttl"),
			HeartbeatTTL:  v.GetDuration("pool.heartbeat_ttl"),
			MaxAttempts:   v.GetInt("pool.max_attempts"),
			AdmitMax:      v.GetInt("pool.admit_max"),
		},
		Auth: AuthConfig{
			SigningSecret:   v.GetString("auth.signing_secret"),
			AccessTokenTTL:  v.GetDuration("auth.access_token_ttl"),
			RefreshTokenTTL: v.GetDuration("auth.refresh_token_ttl"),
			BcryptCost:      v.GetInt("auth.bcrypt_cost"),
		},
		RedisURL: v.GetString("redis.url"),
		HTTPAddr: v.GetString("http.addr"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("blob.use_path_style", true)
	v.SetDefault("blob.presign_ttl", 15*time.Minute)
	v.SetDefault("catalog.max_open_conns", 25)
	v.SetDefault("catalog.max_idle_conns", 5)
	v.SetDefault("catalog.conn_max_lifetime", time.Hour)
	v.SetDefault("index.name", "knowledge_base")
	v.SetDefault("index.refresh_interval", time.Second)
	v.SetDefault("index.vector_dim", 1536)
	v.SetDefault("model.embed_batch_size", 32)
	v.SetDefault("model.embed_timeout", 30*time.Second)
	v.SetDefault("model.vlm_timeout", 120*time.Second)
	v.SetDefault("model.max_retries", 3)
	v.SetDefault("model.retry_base_delay", 250*time.Millisecond)
	v.SetDefault("render.call_timeout", 60*time.Second)
	v.SetDefault("deep_mode.low_dpi", 150)
	v.SetDefault("deep_mode.high_dpi", 300)
	v.SetDefault("deep_mode.reocr_confidence_threshold", 0.3)
	v.SetDefault("chunk.target_size", 500)
	v.SetDefault("chunk.overlap", 50)
	v.SetDefault("chunk.hard_cap", 2000)
	v.SetDefault("pool.cpu_pool_size", 8)
	v.SetDefault("pool.model_pool_size", 3)
	v.SetDefault("pool.lease_ttl", 2*time.Minute)
	v.SetDefault("pool.heartbeat_ttl", 10*time.Second)
	v.SetDefault("pool.max_attempts", 5)
	v.SetDefault("pool.admit_max", 64)
	v.SetDefault("auth.access_token_ttl", 60*time.Minute)
	v.SetDefault("auth.refresh_token_ttl", 7*24*time.Hour)
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("http.addr", ":8080")
}

func (c *Config) validate() error {
	if c.Catalog.DSN == "" {
		return fmt.Errorf("catalog.dsn is required")
	}
	if c.Auth.SigningSecret == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if c.Blob.Bucket == "" {
		return fmt.Errorf("blob.bucket is required")
	}
	return nil
}
