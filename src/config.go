package src

import (
	"astro_insight/src/model"
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	LogConfig      model.LogConfig      `envconfig:""`
	LLMConfig      model.LLMConfig      `envconfig:""`
	ExecutorConfig model.ExecutorConfig `envconfig:""`
	RedisConfig    model.RedisConfig    `envconfig:""`
	StorageConfig  model.StorageConfig  `envconfig:""`
	ServerConfig   model.ServerConfig   `envconfig:""`
	DialogueConfig model.DialogueConfig `envconfig:""`
}

// LoadConfig reads optional .env files and then the process environment
func LoadConfig(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error loading env file %s: %w", file, err)
		}
	}

	var config Config
	err := envconfig.Process("", &config)
	if err != nil {
		return nil, fmt.Errorf("error processing environment configuration: %v", err)
	}

	return &config, nil
}
