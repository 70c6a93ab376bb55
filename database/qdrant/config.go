package qdrant

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/siherrmann/persona/helper"
)

const (
	// DefaultCollection is used when QDRANT_COLLECTION is unset.
	DefaultCollection = "entity_chunks"
	// DefaultDimension matches the default embedding model.
	DefaultDimension = 384
)

// Config describes a Qdrant collection reached over REST.
type Config struct {
	URL        string
	Collection string
	APIKey     string
	Dimension  int
}

// NewConfigFromEnv reads QDRANT_URL, QDRANT_COLLECTION, QDRANT_API_KEY and EMBEDDING_DIM.
func NewConfigFromEnv() (*Config, error) {
	helper.LoadEnv()

	dimension := DefaultDimension
	if raw := strings.TrimSpace(helper.GetEnv("EMBEDDING_DIM", "")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return nil, helper.NewError("qdrant configuration", helper.NewValidationError("invalid EMBEDDING_DIM=%q", raw))
		}
		dimension = parsed
	}

	config := &Config{
		URL:        strings.TrimSpace(helper.GetEnv("QDRANT_URL", "")),
		Collection: strings.TrimSpace(helper.GetEnv("QDRANT_COLLECTION", DefaultCollection)),
		APIKey:     strings.TrimSpace(helper.GetEnv("QDRANT_API_KEY", "")),
		Dimension:  dimension,
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks for an absolute URL, a collection name and a positive dimension.
func (c *Config) Validate() error {
	if c == nil {
		return helper.NewError("qdrant configuration", fmt.Errorf("configuration is nil"))
	}
	if c.URL == "" {
		return helper.NewError("qdrant configuration", helper.NewValidationError("QDRANT_URL is required"))
	}
	parsed, err := url.Parse(c.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return helper.NewError("qdrant configuration", helper.NewValidationError("invalid QDRANT_URL=%q, expected an absolute URL like http://qdrant:6333", c.URL))
	}
	if c.Collection == "" {
		return helper.NewError("qdrant configuration", helper.NewValidationError("QDRANT_COLLECTION is required"))
	}
	if c.Dimension <= 0 {
		return helper.NewError("qdrant configuration", helper.NewValidationError("dimension must be positive, got %d", c.Dimension))
	}
	return nil
}
