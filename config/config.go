package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig     `yaml:"database"`
	Kafka    KafkaConfig        `yaml:"kafka"`
	Redis    RedisConfig        `yaml:"redis"`
	Klein    KleinManagerConfig `yaml:"kleinmanager"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ConnString builds the pgx connection string. SSL is off unless configured.
func (d DatabaseConfig) ConnString() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.DBName, sslMode)
}

type KafkaConfig struct {
	Host                          string `yaml:"host"`
	Port                          int    `yaml:"port"`
	OrderTrackingUpdatedTopicName string `yaml:"order_tracking_updated_topic_name"`
}

func (k KafkaConfig) Brokers() []string {
	return []string{fmt.Sprintf("%s:%d", k.Host, k.Port)}
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type KleinManagerConfig struct {
	HTTPAddr             string `yaml:"http_addr"`
	KafkaConsumerGroup   string `yaml:"kafka_consumer_group"`
	OrderCacheTTLSeconds int    `yaml:"order_cache_ttl_seconds"`

	WorkerHTTPAddr           string `yaml:"worker_http_addr"`
	WorkerRefreshSchedule    string `yaml:"worker_refresh_schedule"`
	WorkerThrottleMillis     int    `yaml:"worker_throttle_millis"`
	WorkerRateLimitPerMinute int    `yaml:"worker_rate_limit_per_minute"`

	// CarrierMode selects the carrier integration: "http" talks to the real
	// DHL and Hermes endpoints, anything else uses the local fake.
	CarrierMode   string `yaml:"carrier_mode"`
	DHLBaseURL    string `yaml:"dhl_base_url"`
	DHLAPIKey     string `yaml:"dhl_api_key"`
	HermesBaseURL string `yaml:"hermes_base_url"`
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

	return &config, nil
}
