package model

import "time"

// ----------------------------------------------------
// ================ Config ================

// LogConfig controls the global zerolog logger
type LogConfig struct {
	Level      string `envconfig:"LOG_LEVEL" default:"info"`
	Format     string `envconfig:"LOG_FORMAT" default:"console"`
	Output     string `envconfig:"LOG_OUTPUT" default:"stderr"`
	FilePath   string `envconfig:"LOG_FILE_PATH" default:"logs/astro.log"`
	TimeFormat string `envconfig:"LOG_TIME_FORMAT" default:"rfc3339"`
}

// LLMConfig selects and configures the chat model behind the classifier
type LLMConfig struct {
	Provider    string        `envconfig:"LLM_PROVIDER" default:"openai"` // openai, ollama, ark, deepseek
	Model       string        `envconfig:"LLM_MODEL" default:"gpt-4o-mini"`
	APIKey      string        `envconfig:"LLM_API_KEY"`
	BaseURL     string        `envconfig:"LLM_BASE_URL"`
	MaxTokens   int           `envconfig:"LLM_MAX_TOKENS" default:"2048"`
	Temperature float64       `envconfig:"LLM_TEMPERATURE" default:"0.1"`
	Timeout     time.Duration `envconfig:"LLM_TIMEOUT" default:"60s"`
}

// ExecutorConfig controls how generated scripts are run
type ExecutorConfig struct {
	Interpreter    string        `envconfig:"EXEC_INTERPRETER" default:"python3"`
	ScriptName     string        `envconfig:"EXEC_SCRIPT_NAME" default:"script.py"`
	OutputRoot     string        `envconfig:"EXEC_OUTPUT_ROOT" default:"output"`
	Timeout        time.Duration `envconfig:"EXEC_TIMEOUT" default:"60s"`
	MaxOutputBytes int           `envconfig:"EXEC_MAX_OUTPUT_BYTES" default:"1048576"`
	MaxConcurrent  int64         `envconfig:"EXEC_MAX_CONCURRENT" default:"4"`
}

// RedisConfig enables the Redis session store when URL is set
type RedisConfig struct {
	URL string        `envconfig:"REDIS_URL"`
	TTL time.Duration `envconfig:"REDIS_SESSION_TTL" default:"40m"`
}

// StorageConfig holds on-disk locations
type StorageConfig struct {
	DatasetDir  string        `envconfig:"DATASET_DIR" default:"data/datasets"`
	HistoryPath string        `envconfig:"HISTORY_DB_PATH" default:"data/history.db"`
	PolicyPath  string        `envconfig:"POLICY_PATH" default:"config.yaml"`
	SessionTTL  time.Duration `envconfig:"SESSION_TTL" default:"40m"`
}

// ServerConfig configures the HTTP front end
type ServerConfig struct {
	Addr            string        `envconfig:"SERVER_ADDR" default:":8080"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
}

// DialogueConfig bounds the clarification dialogue; zero keeps the config.yaml value
type DialogueConfig struct {
	MaxTurns int `envconfig:"DIALOGUE_MAX_TURNS"`
}
