package mongodb

import (
	"fmt"
	"strings"

	"github.com/siherrmann/persona/helper"
)

const (
	DefaultDatabase   = "persona"
	DefaultCollection = "documents"
)

// Config describes the MongoDB collection holding documents.
type Config struct {
	URI        string
	Database   string
	Collection string
}

// NewConfigFromEnv reads MONGODB_URI, MONGODB_DATABASE and MONGODB_COLLECTION.
func NewConfigFromEnv() (*Config, error) {
	helper.LoadEnv()

	config := &Config{
		URI:        strings.TrimSpace(helper.GetEnv("MONGODB_URI", "")),
		Database:   strings.TrimSpace(helper.GetEnv("MONGODB_DATABASE", DefaultDatabase)),
		Collection: strings.TrimSpace(helper.GetEnv("MONGODB_COLLECTION", DefaultCollection)),
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	if c == nil {
		return helper.NewError("mongodb configuration", fmt.Errorf("configuration is nil"))
	}
	if c.URI == "" {
		return helper.NewError("mongodb configuration", helper.NewValidationError("MONGODB_URI is required"))
	}
	if c.Database == "" || c.Collection == "" {
		return helper.NewError("mongodb configuration", helper.NewValidationError("database and collection are required"))
	}
	return nil
}
