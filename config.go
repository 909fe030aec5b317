package cohort

import (
	"time"
)

// Config consolidates settings for a cohort member process.
type Config struct {
	Cohort   CohortConfig   `json:"cohort"`
	Topic    TopicConfig    `json:"topic"`
	Redis    RedisConfig    `json:"redis"`
	Database DatabaseConfig `json:"database"`
	Registry RegistryConfig `json:"registry"`
	Logging  LoggingConfig  `json:"logging"`
}

// CohortConfig identifies this member within its cohort.
type CohortConfig struct {
	CohortName     string `json:"cohortName"`
	MemberName     string `json:"memberName"`
	MetadataUserID string `json:"metadataUserId"`
}

// TopicConfig contains the outbound event publisher settings.
type TopicConfig struct {
	TopicName     string        `json:"topicName"`
	PollInterval  time.Duration `json:"pollInterval"`
	MaxRetries    int           `json:"maxRetries"`
	RecoverySleep time.Duration `json:"recoverySleep"`
}

// RedisConfig contains the redis broker connection settings.
type RedisConfig struct {
	Addr        string        `json:"addr"`
	Password    string        `json:"password"`
	DB          int           `json:"db"`
	DialTimeout time.Duration `json:"dialTimeout"`
	Channel     string        `json:"channel"`
}

// DatabaseConfig contains postgres connection settings for the durable
// typedef store.
type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Database        string        `json:"database"`
	Username        string        `json:"username"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"sslMode"`
	MaxConnections  int           `json:"maxConnections"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime"`
	Timeout         time.Duration `json:"timeout"`
}

// RegistryConfig contains typedef registry settings.
type RegistryConfig struct {
	// ArchiveDir holds typedef archive JSON files loaded at startup.
	ArchiveDir string `json:"archiveDir"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level            string `json:"level"`
	Format           string `json:"format"`
	EnableStructured bool   `json:"enableStructured"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Cohort: CohortConfig{
			CohortName: "defaultCohort",
			MemberName: "localMember",
		},
		Topic: TopicConfig{
			TopicName:     "cohort.typedefs",
			PollInterval:  1 * time.Second,
			MaxRetries:    10,
			RecoverySleep: 10 * time.Second,
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			DialTimeout: 5 * time.Second,
			Channel:     "cohort.typedefs",
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			SSLMode:         "disable",
			MaxConnections:  25,
			ConnMaxLifetime: 5 * time.Minute,
			Timeout:         30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:            "info",
			Format:           "json",
			EnableStructured: true,
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Cohort.CohortName == "" {
		return &ConfigError{Field: "cohort.cohortName", Message: "must not be empty"}
	}
	if c.Cohort.MemberName == "" {
		return &ConfigError{Field: "cohort.memberName", Message: "must not be empty"}
	}
	if c.Topic.TopicName == "" {
		return &ConfigError{Field: "topic.topicName", Message: "must not be empty"}
	}
	if c.Topic.PollInterval <= 0 {
		return &ConfigError{Field: "topic.pollInterval", Message: "must be greater than 0"}
	}
	if c.Topic.MaxRetries <= 0 {
		return &ConfigError{Field: "topic.maxRetries", Message: "must be greater than 0"}
	}
	if c.Topic.RecoverySleep < c.Topic.PollInterval {
		return &ConfigError{Field: "topic.recoverySleep", Message: "must be greater than or equal to pollInterval"}
	}
	if c.Database.MaxConnections <= 0 {
		return &ConfigError{Field: "database.maxConnections", Message: "must be greater than 0"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ConfigError) Error() string {
	return "config validation error for field '" + e.Field + "': " + e.Message
}
