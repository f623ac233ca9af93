package config

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
)

type Config struct {
	DataDir  string
	HttpAddr string
	DbDsn    string
	TgToken  string

	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string
	AskPerMinute  int

	S3Endpoint  string
	S3Bucket    string
	S3Prefix    string
	S3AccessKey string
	S3SecretKey string
	S3Secure    bool

	LogLevel  string
	LogFormat string
}

var (
	config *Config
	once   sync.Once
)

// GetConfig возвращает singleton экземпляр конфигурации
func GetConfig() *Config {
	once.Do(func() {
		cfg, err := Load()
		if err != nil {
			log.Fatal("Error loading .env file: ", err)
		}
		config = cfg
	})
	return config
}

// Load reads the given env files (".env" by default) into the process
// environment and builds a Config. Missing env files are ignored.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return &Config{
		DataDir:  getEnv("DATA_DIR", "./data"),
		HttpAddr: getEnv("HTTP_ADDR", ":8005"),
		DbDsn:    os.Getenv("DB_DSN"),
		TgToken:  os.Getenv("TG_TOKEN"),

		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o"),
		AskPerMinute:  getEnvInt("ANALYSIS_RATE_PER_MINUTE", 6),

		S3Endpoint:  os.Getenv("S3_ENDPOINT"),
		S3Bucket:    os.Getenv("S3_BUCKET"),
		S3Prefix:    os.Getenv("S3_PREFIX"),
		S3AccessKey: os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("S3_SECRET_KEY"),
		S3Secure:    getEnvBool("S3_SECURE", true),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func getEnvBool(key string, def bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}
