package neo4jdb

import (
	"fmt"
	"strings"

	"github.com/siherrmann/persona/helper"
)

// Config describes a Neo4j connection.
type Config struct {
	URI      string
	User     string
	Password string
	Database string
}

// NewConfigFromEnv reads NEO4J_URI, NEO4J_USER (default neo4j), NEO4J_PASSWORD and NEO4J_DATABASE.
func NewConfigFromEnv() (*Config, error) {
	helper.LoadEnv()

	config := &Config{
		URI:      strings.TrimSpace(helper.GetEnv("NEO4J_URI", "")),
		User:     strings.TrimSpace(helper.GetEnv("NEO4J_USER", "neo4j")),
		Password: helper.GetEnv("NEO4J_PASSWORD", ""),
		Database: strings.TrimSpace(helper.GetEnv("NEO4J_DATABASE", "")),
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate requires a URI.
func (c *Config) Validate() error {
	if c == nil {
		return helper.NewError("neo4j configuration", fmt.Errorf("configuration is nil"))
	}
	if c.URI == "" {
		return helper.NewError("neo4j configuration", helper.NewValidationError("NEO4J_URI is required"))
	}
	return nil
}
