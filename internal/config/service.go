package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/Brownie44l1/beauty-api/internal/storage"
)

// Service is the inference server configuration, read from the environment.
type Service struct {
	Host         string
	Port         string
	ModelPath    string
	ModelsRoot   string
	RegistryPath string
	CORSOrigins  []string
	LogLevel     string
	LogFile      string
	// OnnxRuntimeLib overrides the onnxruntime shared library location.
	OnnxRuntimeLib string
	S3             storage.S3Config
}

// LoadEnv reads a .env file from the working directory when one exists.
func LoadEnv() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Ignoring unreadable .env file")
	}
}

func LoadService() Service {
	return Service{
		Host:           getenv("HOST", "0.0.0.0"),
		Port:           getenv("PORT", "8000"),
		ModelPath:      getenv("MODEL_PATH", "models/beauty_model_female.ckpt"),
		ModelsRoot:     getenv("MODELS_ROOT", "models"),
		RegistryPath:   getenv("REGISTRY_PATH", "models/registry.db"),
		CORSOrigins:    splitList(getenv("CORS_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000")),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogFile:        os.Getenv("LOG_FILE"),
		OnnxRuntimeLib: os.Getenv("ONNXRUNTIME_LIB"),
		S3:             LoadS3(),
	}
}

// LoadS3 reads the object store settings shared by both binaries.
func LoadS3() storage.S3Config {
	return storage.S3Config{
		Endpoint:        os.Getenv("S3_ENDPOINT"),
		Region:          getenv("AWS_REGION", "us-east-1"),
		AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		AccessKeySecret: os.Getenv("AWS_SECRET_ACCESS_KEY"),
	}
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
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
