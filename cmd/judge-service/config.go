package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"codearena/internal/common/cache"
	"codearena/internal/common/db"
	"codearena/internal/common/mq"
	"codearena/internal/common/storage"
	"codearena/internal/judge/pipeline"
	"codearena/internal/judge/repository"
	"codearena/internal/judge/sandbox"
	"codearena/internal/judge/sandbox/engine"
	"codearena/internal/judge/sandbox/profile"
	"codearena/internal/judge/service"
	"codearena/internal/ranking"
	"codearena/pkg/utils/logger"

	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8085"
	defaultGRPCAddr        = "0.0.0.0:9085"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Minute
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 30 * time.Second
	defaultStatusTopic     = "judge.status.final"
	defaultWorkRoot        = "/var/lib/codearena/work"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
	// WatchInterval is the status poll interval of websocket watchers.
	WatchInterval time.Duration `yaml:"watchInterval"`
}

// GRPCConfig holds the health server settings.
type GRPCConfig struct {
	Addr string `yaml:"addr"`
}

// KafkaConfig holds Kafka settings.
type KafkaConfig struct {
	Brokers       []string       `yaml:"brokers"`
	ClientID      string         `yaml:"clientID"`
	MinBytes      int            `yaml:"minBytes"`
	MaxBytes      int            `yaml:"maxBytes"`
	MaxWait       time.Duration  `yaml:"maxWait"`
	BatchSize     int            `yaml:"batchSize"`
	BatchTimeout  time.Duration  `yaml:"batchTimeout"`
	DialTimeout   time.Duration  `yaml:"dialTimeout"`
	RequiredAcks  int            `yaml:"requiredAcks"`
	Compression   string         `yaml:"compression"`
	Topics        []string       `yaml:"topics"`
	TopicWeights  map[string]int `yaml:"topicWeights"`
	ConsumerGroup string         `yaml:"consumerGroup"`
	MaxRetries    int            `yaml:"maxRetries"`
	RetryDelay    time.Duration  `yaml:"retryDelay"`
	MessageTTL    time.Duration  `yaml:"messageTTL"`
	// StatusTopic receives final verdict events.
	StatusTopic string `yaml:"statusTopic"`
	// RankingGroup is the consumer group refreshing leaderboards.
	RankingGroup string `yaml:"rankingGroup"`
}

// StorageConfig holds object keys and limits.
type StorageConfig struct {
	SourceBucket      string `yaml:"sourceBucket"`
	DataPackBucket    string `yaml:"dataPackBucket"`
	DiagnosticsPrefix string `yaml:"diagnosticsPrefix"`
	MaxDataPackBytes  int64  `yaml:"maxDataPackBytes"`
}

// StatusConfig holds status cache settings.
type StatusConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// WorkerConfig holds worker pool settings.
type WorkerConfig struct {
	PoolSize  int `yaml:"poolSize"`
	QueueSize int `yaml:"queueSize"`
	// Timeout bounds one whole submission; zero leaves only per-case deadlines.
	Timeout time.Duration `yaml:"timeout"`
}

// SandboxConfig holds sandbox engine and workspace settings.
type SandboxConfig struct {
	Engine         engine.Config          `yaml:"engine"`
	WorkRoot       string                 `yaml:"workRoot"`
	RootFS         string                 `yaml:"rootfs"`
	SeccompProfile string                 `yaml:"seccompProfile"`
	Retry          sandbox.RetryConfig    `yaml:"retry"`
	Languages      []profile.LanguageSpec `yaml:"languages"`
	Profiles       []profile.TaskProfile  `yaml:"profiles"`
}

// RankingConfig holds leaderboard settings.
type RankingConfig struct {
	Cache              ranking.Config `yaml:"cache"`
	PenaltyPerWrong    time.Duration  `yaml:"penaltyPerWrong"`
	CountCompileErrors bool           `yaml:"countCompileErrors"`
}

// AppConfig holds judge-service config.
type AppConfig struct {
	Server   ServerConfig                  `yaml:"server"`
	GRPC     GRPCConfig                    `yaml:"grpc"`
	Logger   logger.Config                 `yaml:"logger"`
	Database db.Config                     `yaml:"database"`
	Redis    cache.RedisConfig             `yaml:"redis"`
	MinIO    storage.MinIOConfig           `yaml:"minio"`
	Kafka    KafkaConfig                   `yaml:"kafka"`
	Storage  StorageConfig                 `yaml:"storage"`
	Problems repository.ProblemCacheConfig `yaml:"problemCache"`
	Status   StatusConfig                  `yaml:"status"`
	Worker   WorkerConfig                  `yaml:"worker"`
	Pipeline pipeline.Options              `yaml:"pipeline"`
	Requeue  service.RequeuePolicy         `yaml:"requeue"`
	Ranking  RankingConfig                 `yaml:"ranking"`
	Sandbox  SandboxConfig                 `yaml:"sandbox"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	// a missing .env is normal outside local development
	_ = godotenv.Load()
	applyEnvOverrides(&cfg)

	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if len(cfg.Kafka.Topics) == 0 {
		return nil, fmt.Errorf("kafka topics are required")
	}
	cfg.Redis.ApplyDefaults()
	applyDefaults(&cfg)
	for _, topic := range cfg.Kafka.Topics {
		if w, ok := cfg.Kafka.TopicWeights[topic]; !ok || w <= 0 {
			return nil, fmt.Errorf("invalid weight %d for topic %s", w, topic)
		}
	}
	return &cfg, nil
}

// applyEnvOverrides lets secrets and endpoints come from the environment
// instead of the checked-in YAML.
func applyEnvOverrides(cfg *AppConfig) {
	overrideString(&cfg.Database.DSN, "CODEARENA_DB_DSN")
	if v, ok := os.LookupEnv("CODEARENA_DB_DRIVER"); ok && v != "" {
		cfg.Database.Driver = db.Dialect(v)
	}
	overrideString(&cfg.Redis.Addr, "CODEARENA_REDIS_ADDR")
	overrideString(&cfg.Redis.Password, "CODEARENA_REDIS_PASSWORD")
	overrideString(&cfg.MinIO.Endpoint, "CODEARENA_MINIO_ENDPOINT")
	overrideString(&cfg.MinIO.AccessKey, "CODEARENA_MINIO_ACCESS_KEY")
	overrideString(&cfg.MinIO.SecretKey, "CODEARENA_MINIO_SECRET_KEY")
	if v, ok := os.LookupEnv("CODEARENA_KAFKA_BROKERS"); ok && v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
}

func overrideString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.GRPC.Addr == "" {
		cfg.GRPC.Addr = defaultGRPCAddr
	}
	if cfg.Storage.SourceBucket == "" {
		cfg.Storage.SourceBucket = cfg.MinIO.Bucket
	}
	if cfg.Storage.DataPackBucket == "" {
		cfg.Storage.DataPackBucket = cfg.MinIO.Bucket
	}
	if cfg.Worker.PoolSize <= 0 {
		cfg.Worker.PoolSize = 1
	}
	if cfg.Kafka.StatusTopic == "" {
		cfg.Kafka.StatusTopic = defaultStatusTopic
	}
	if cfg.Kafka.RankingGroup == "" && cfg.Kafka.ConsumerGroup != "" {
		cfg.Kafka.RankingGroup = cfg.Kafka.ConsumerGroup + "-ranking"
	}
	if len(cfg.Kafka.TopicWeights) == 0 {
		cfg.Kafka.TopicWeights = defaultTopicWeights(cfg.Kafka.Topics)
	}
	if cfg.Ranking.PenaltyPerWrong <= 0 {
		cfg.Ranking.PenaltyPerWrong = ranking.DefaultPenaltyPerWrong
	}
	if cfg.Sandbox.WorkRoot == "" {
		cfg.Sandbox.WorkRoot = defaultWorkRoot
	}
	if len(cfg.Sandbox.Languages) == 0 {
		cfg.Sandbox.Languages = profile.DefaultLanguages()
	}
}

// defaultTopicWeights gives earlier topics more fetch slots.
func defaultTopicWeights(topics []string) map[string]int {
	weights := []int{8, 4, 2, 1}
	out := make(map[string]int, len(topics))
	for i, topic := range topics {
		if topic == "" {
			continue
		}
		if i < len(weights) {
			out[topic] = weights[i]
			continue
		}
		out[topic] = 1
	}
	return out
}

func (k KafkaConfig) toMQConfig() mq.KafkaConfig {
	return mq.KafkaConfig{
		Brokers:      k.Brokers,
		ClientID:     k.ClientID,
		MinBytes:     k.MinBytes,
		MaxBytes:     k.MaxBytes,
		MaxWait:      k.MaxWait,
		BatchSize:    k.BatchSize,
		BatchTimeout: k.BatchTimeout,
		DialTimeout:  k.DialTimeout,
		RequiredAcks: kafka.RequiredAcks(k.RequiredAcks),
		Compression:  parseCompression(k.Compression),
	}
}

func (k KafkaConfig) weightedTopics() []mq.WeightedTopic {
	out := make([]mq.WeightedTopic, 0, len(k.Topics))
	for _, topic := range k.Topics {
		out = append(out, mq.WeightedTopic{Topic: topic, Weight: k.TopicWeights[topic]})
	}
	return out
}

func (k KafkaConfig) subscribeOptions(group string) *mq.SubscribeOptions {
	return &mq.SubscribeOptions{
		ConsumerGroup: group,
		MaxRetries:    k.MaxRetries,
		RetryDelay:    k.RetryDelay,
		MessageTTL:    k.MessageTTL,
	}
}

func parseCompression(raw string) kafka.Compression {
	switch strings.ToLower(raw) {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Compression(0)
	}
}
