package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Gemini    GeminiConfig
	Audio     AudioConfig
	Storage   StorageConfig
	Worker    WorkerConfig
	Interview InterviewConfig
	Qdrant    QdrantConfig
	RabbitMQ  RabbitMQConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	AllowOrigins string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type GeminiConfig struct {
	APIKey         string
	Model          string
	LiveModel      string
	EmbedModel     string
	ResumeLanguage string
}

type AudioConfig struct {
	InputSampleRate  int
	OutputSampleRate int
	FrameSize        int
	Voice            string
	Transcription    bool
}

type StorageConfig struct {
	Driver      string
	UploadPath  string
	MaxFileSize int64
	S3          S3Config
}

// S3Config also covers S3-compatible stores such as Cloudflare R2.
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

type WorkerConfig struct {
	Concurrency     int
	MaxAttempts     int
	RetryDelay      time.Duration
	PollInterval    time.Duration
	RetentionPeriod time.Duration
	QueueSize       int
}

type InterviewConfig struct {
	SessionTTL    time.Duration
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
}

type RabbitMQConfig struct {
	URL      string
	Exchange string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found. Using default values.")
	}

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "3000"),
			Env:          getEnv("ENV", "development"),
			AllowOrigins: getEnv("ALLOW_ORIGINS", "*"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "resume_coach"),

			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", "30m"),
		},
		Gemini: GeminiConfig{
			APIKey:         firstNonEmpty(os.Getenv("GEMINI_API_KEY"), os.Getenv("API_KEY")),
			Model:          getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			LiveModel:      getEnv("GEMINI_LIVE_MODEL", "gemini-live-2.5-flash-preview"),
			EmbedModel:     getEnv("GEMINI_EMBED_MODEL", "text-embedding-004"),
			ResumeLanguage: getEnv("RESUME_LANGUAGE", "Traditional Chinese (Taiwan)"),
		},
		Audio: AudioConfig{
			InputSampleRate:  getEnvAsInt("AUDIO_INPUT_SAMPLE_RATE", 16000),
			OutputSampleRate: getEnvAsInt("AUDIO_OUTPUT_SAMPLE_RATE", 24000),
			FrameSize:        getEnvAsInt("AUDIO_FRAME_SIZE", 4096),
			Voice:            getEnv("LIVE_VOICE", "Puck"),
			Transcription:    getEnvAsBool("LIVE_TRANSCRIPTION", false),
		},
		Storage: StorageConfig{
			Driver:      strings.ToLower(getEnv("STORAGE_DRIVER", "local")),
			UploadPath:  getEnv("UPLOAD_PATH", "./uploads"),
			MaxFileSize: getEnvAsInt64("MAX_FILE_SIZE", 20971520),
			S3: S3Config{
				Endpoint:  getEnv("S3_ENDPOINT", ""),
				Region:    getEnv("S3_REGION", "auto"),
				Bucket:    getEnv("S3_BUCKET", ""),
				AccessKey: getEnv("S3_ACCESS_KEY", ""),
				SecretKey: getEnv("S3_SECRET_KEY", ""),
			},
		},
		Worker: WorkerConfig{
			Concurrency:     getEnvAsInt("WORKER_CONCURRENCY", 3),
			MaxAttempts:     getEnvAsInt("GENERATION_MAX_ATTEMPTS", 1),
			RetryDelay:      getEnvAsDuration("GENERATION_RETRY_DELAY", "2s"),
			PollInterval:    getEnvAsDuration("WORKER_POLL_INTERVAL", "10s"),
			RetentionPeriod: getEnvAsDuration("JOB_RETENTION", "24h"),
			QueueSize:       getEnvAsInt("WORKER_QUEUE_SIZE", 100),
		},
		Interview: InterviewConfig{
			SessionTTL:    getEnvAsDuration("INTERVIEW_SESSION_TTL", "15m"),
			IdleTimeout:   getEnvAsDuration("INTERVIEW_IDLE_TIMEOUT", "1h"),
			SweepInterval: getEnvAsDuration("INTERVIEW_SWEEP_INTERVAL", "1m"),
		},
		Qdrant: QdrantConfig{
			URL:        getEnv("QDRANT_URL", ""),
			APIKey:     getEnv("QDRANT_API_KEY", ""),
			Collection: getEnv("QDRANT_COLLECTION", "interview_knowledge"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      getEnv("RABBITMQ_URL", ""),
			Exchange: getEnv("RABBITMQ_EXCHANGE", "resume_updates"),
		},
	}
}

func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
