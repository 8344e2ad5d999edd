package config

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Analytics  AnalyticsConfig  `mapstructure:"analytics"`
	Escalation EscalationConfig `mapstructure:"escalation"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
}

// ServerConfig holds the HTTP server configuration
type ServerConfig struct {
	Port            string `mapstructure:"port"`
	AllowedOrigins  string `mapstructure:"allowedOrigins"`
	ShutdownTimeout int    `mapstructure:"shutdownTimeout"`
}

// EngineConfig holds the evaluation loop configuration
type EngineConfig struct {
	EvalIntervalSeconds int `mapstructure:"evalIntervalSeconds"`
	MetricWindowMinutes int `mapstructure:"metricWindowMinutes"`
	QueryTimeoutSeconds int `mapstructure:"queryTimeoutSeconds"`
}

// AnalyticsConfig holds the analytics store connection configuration
type AnalyticsConfig struct {
	Address   string `mapstructure:"address"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	Workspace string `mapstructure:"workspace"`
}

// EscalationConfig holds the critical-alert escalation webhook configuration
type EscalationConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	WebhookURL     string `mapstructure:"webhookUrl"`
	TimeoutSeconds int    `mapstructure:"timeoutSeconds"`
}

// KafkaConfig holds the optional alert snapshot publisher configuration
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// LoadConfig loads the application configuration from file or environment variables
func LoadConfig(configPath string) (*Config, error) {
	var config Config

	// Set default values
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.allowedOrigins", "*")
	viper.SetDefault("server.shutdownTimeout", 10)
	viper.SetDefault("engine.evalIntervalSeconds", 30)
	viper.SetDefault("engine.metricWindowMinutes", 60)
	viper.SetDefault("engine.queryTimeoutSeconds", 10)
	viper.SetDefault("analytics.address", "localhost:8464")
	viper.SetDefault("analytics.workspace", "default")
	viper.SetDefault("escalation.enabled", false)
	viper.SetDefault("escalation.timeoutSeconds", 5)
	viper.SetDefault("kafka.enabled", false)
	viper.SetDefault("kafka.topic", "crm-alerts")

	// Allow environment variables to override config file
	viper.SetEnvPrefix("CRM_ALERT")
	viper.AutomaticEnv()

	// If config file is provided, read it
	if configPath != "" {
		viper.SetConfigFile(configPath)
		if err := viper.ReadInConfig(); err != nil {
			logrus.Warnf("Error reading config file: %v", err)
		}
	}

	// Unmarshal config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
