// Copyright 2025 KB Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	AWS        AWSConfig        `mapstructure:"aws"`
	Search     SearchConfig     `mapstructure:"search"`
	Generation GenerationConfig `mapstructure:"generation"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Chat       ChatConfig       `mapstructure:"chat"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// AWSConfig contains AWS client configuration.
type AWSConfig struct {
	Region string `mapstructure:"region"`
}

// SearchConfig contains Kendra retrieval settings. An empty index ID is
// valid and disables retrieval.
type SearchConfig struct {
	IndexID         string `mapstructure:"index_id"`
	TopK            int    `mapstructure:"top_k"`
	MaxContextChars int    `mapstructure:"max_context_chars"`
}

// GenerationConfig contains model selection and sampling parameters.
type GenerationConfig struct {
	ModelID         string   `mapstructure:"model_id"`
	Fallbacks       []string `mapstructure:"fallbacks"`
	TextMaxTokens   int      `mapstructure:"text_max_tokens"`
	TextTemperature float64  `mapstructure:"text_temperature"`
	JSONMaxTokens   int      `mapstructure:"json_max_tokens"`
	JSONTemperature float64  `mapstructure:"json_temperature"`
}

// OpenAIConfig contains the OpenAI-compatible backend configuration, needed
// only when a gpt-* model identifier is configured.
type OpenAIConfig struct {
	APIKey   string `mapstructure:"apikey"`
	Endpoint string `mapstructure:"endpoint"`
}

// ChatConfig contains response-behavior settings.
type ChatConfig struct {
	OnEmptyContext  string `mapstructure:"on_empty_context"`
	NotFoundMessage string `mapstructure:"not_found_message"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed for field '%s': %s", e.Field, e.Message)
}

// Load loads configuration from an optional YAML file and environment
// variables. Environment variables take precedence over file values; a
// missing file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	setConfigFile(v, configPath)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("KB_ASSISTANT")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	setEnvironmentMappings(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults mirrors the historical service defaults.
func setDefaults(v *viper.Viper) {
	v.SetDefault("aws.region", "us-east-1")

	v.SetDefault("search.index_id", "")
	v.SetDefault("search.top_k", 8)
	v.SetDefault("search.max_context_chars", 12000)

	v.SetDefault("generation.model_id", "anthropic.claude-3-haiku-20240307-v1:0")
	v.SetDefault("generation.fallbacks", []string{})
	v.SetDefault("generation.text_max_tokens", 1400)
	v.SetDefault("generation.text_temperature", 0.5)
	v.SetDefault("generation.json_max_tokens", 1400)
	v.SetDefault("generation.json_temperature", 0.3)

	v.SetDefault("openai.endpoint", "https://api.openai.com/v1")

	v.SetDefault("chat.on_empty_context", "not_found")
	v.SetDefault("chat.not_found_message", "Não encontrei informações sobre isso na base de conhecimento.")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// setConfigFile points viper at the config file, falling back to the
// default search locations when no explicit path is given.
func setConfigFile(v *viper.Viper, configPath string) {
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		v.SetConfigFile(envPath)
		return
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")
}

// setEnvironmentMappings maps the environment variable names the service
// has historically been deployed with.
func setEnvironmentMappings(v *viper.Viper) {
	envMappings := map[string]string{
		"AWS_REGION":        "aws.region",
		"BEDROCK_REGION":    "aws.region",
		"KENDRA_INDEX_ID":   "search.index_id",
		"KENDRA_TOP_K":      "search.top_k",
		"MAX_CONTEXT_CHARS": "search.max_context_chars",
		"MODEL_ID":          "generation.model_id",
		"TEXT_MAX_TOKENS":   "generation.text_max_tokens",
		"TEXT_TEMPERATURE":  "generation.text_temperature",
		"JSON_MAX_TOKENS":   "generation.json_max_tokens",
		"JSON_TEMPERATURE":  "generation.json_temperature",
		"OPENAI_API_KEY":    "openai.apikey",
		"OPENAI_ENDPOINT":   "openai.endpoint",
		"ON_EMPTY_CONTEXT":  "chat.on_empty_context",
		"LOG_LEVEL":         "logging.level",
		"LOG_FORMAT":        "logging.format",
		"LOG_OUTPUT":        "logging.output",
	}

	for envVar, configKey := range envMappings {
		if value := os.Getenv(envVar); value != "" {
			v.Set(configKey, value)
		}
	}

	// Fallbacks arrive as a comma-separated list.
	if raw := os.Getenv("MODEL_FALLBACKS"); raw != "" {
		var fallbacks []string
		for _, m := range strings.Split(raw, ",") {
			if m = strings.TrimSpace(m); m != "" {
				fallbacks = append(fallbacks, m)
			}
		}
		v.Set("generation.fallbacks", fallbacks)
	}
}

// validateConfig validates required fields and value ranges.
func validateConfig(config *Config) error {
	var errs []ValidationError

	if config.Generation.ModelID == "" {
		errs = append(errs, ValidationError{
			Field:   "generation.model_id",
			Message: "model ID is required. Set via config file or MODEL_ID environment variable",
		})
	}

	if config.Search.TopK <= 0 {
		errs = append(errs, ValidationError{
			Field:   "search.top_k",
			Message: "top_k must be greater than 0",
		})
	}

	if config.Search.MaxContextChars <= 0 {
		errs = append(errs, ValidationError{
			Field:   "search.max_context_chars",
			Message: "max_context_chars must be greater than 0",
		})
	}

	if config.Generation.TextMaxTokens <= 0 {
		errs = append(errs, ValidationError{
			Field:   "generation.text_max_tokens",
			Message: "text_max_tokens must be greater than 0",
		})
	}

	if config.Generation.JSONMaxTokens <= 0 {
		errs = append(errs, ValidationError{
			Field:   "generation.json_max_tokens",
			Message: "json_max_tokens must be greater than 0",
		})
	}

	if config.Generation.TextTemperature < 0 || config.Generation.TextTemperature > 1 {
		errs = append(errs, ValidationError{
			Field:   "generation.text_temperature",
			Message: "text_temperature must be between 0 and 1",
		})
	}

	if config.Generation.JSONTemperature < 0 || config.Generation.JSONTemperature > 1 {
		errs = append(errs, ValidationError{
			Field:   "generation.json_temperature",
			Message: "json_temperature must be between 0 and 1",
		})
	}

	validPolicies := []string{"not_found", "generate"}
	if !contains(validPolicies, config.Chat.OnEmptyContext) {
		errs = append(errs, ValidationError{
			Field:   "chat.on_empty_context",
			Message: fmt.Sprintf("on_empty_context must be one of: %s", strings.Join(validPolicies, ", ")),
		})
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, config.Logging.Level) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("log level must be one of: %s", strings.Join(validLogLevels, ", ")),
		})
	}

	validLogFormats := []string{"json", "text"}
	if !contains(validLogFormats, config.Logging.Format) {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("log format must be one of: %s", strings.Join(validLogFormats, ", ")),
		})
	}

	// The OpenAI key is needed only when a gpt-* candidate is configured.
	if config.OpenAI.APIKey == "" && hasOpenAICandidate(config.Generation) {
		errs = append(errs, ValidationError{
			Field:   "openai.apikey",
			Message: "an OpenAI API key is required when a gpt-* model is configured. Set via config file or OPENAI_API_KEY environment variable",
		})
	}

	if len(errs) > 0 {
		var messages []string
		for _, err := range errs {
			messages = append(messages, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(messages, "\n"))
	}

	return nil
}

// hasOpenAICandidate reports whether any configured model identifier
// dispatches to the OpenAI-compatible backend.
func hasOpenAICandidate(gen GenerationConfig) bool {
	if strings.HasPrefix(gen.ModelID, "gpt-") {
		return true
	}
	for _, m := range gen.Fallbacks {
		if strings.HasPrefix(m, "gpt-") {
			return true
		}
	}
	return false
}

// MaskSensitiveValues returns a copy of the config with sensitive values masked.
func (c *Config) MaskSensitiveValues() *Config {
	masked := *c
	if masked.OpenAI.APIKey != "" {
		masked.OpenAI.APIKey = maskValue(masked.OpenAI.APIKey)
	}
	return &masked
}

// maskValue masks sensitive values, showing only the first 8 characters.
func maskValue(value string) string {
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return value[:8] + strings.Repeat("*", len(value)-8)
}

// contains checks if a slice contains a specific string.
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// WatchConfig enables configuration hot-reloading.
func WatchConfig(configPath string, callback func(*Config)) error {
	v := viper.New()
	setConfigFile(v, configPath)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file for watching: %w", err)
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		config, err := Load(configPath)
		if err != nil {
			fmt.Printf("Failed to reload config after change to %s: %v\n", e.Name, err)
			return
		}
		callback(config)
	})

	return nil
}
