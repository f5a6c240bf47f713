package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Telegram TelegramConfig `yaml:"telegram"`
	FareBox  FareBoxConfig  `yaml:"farebox"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	AlertSentTopicName string `yaml:"alert_sent_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type TelegramConfig struct {
	Token              string `yaml:"token"`
	PollTimeoutSeconds int    `yaml:"poll_timeout_seconds"`
	CommandsPerMinute  int    `yaml:"commands_per_minute"`
}

type FareBoxConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	LogLevel string `yaml:"log_level"`

	PollIntervalSeconds  int `yaml:"poll_interval_seconds"`
	OfferCacheTTLSeconds int `yaml:"offer_cache_ttl_seconds"`

	AviasalesBaseURL string `yaml:"aviasales_base_url"`
	AviasalesToken   string `yaml:"aviasales_token"`
	Currency         string `yaml:"currency"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	// Секреты можно не класть в файл: env перекрывает YAML.
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		config.Telegram.Token = v
	}
	if v := os.Getenv("AVIASALES_TOKEN"); v != "" {
		config.FareBox.AviasalesToken = v
	}

	return &config, nil
}
