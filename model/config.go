package model

const (
	DefaultSearchLimitEntities = 5
	DefaultScoreThreshold      = 0.5
)

// SearchOptions configures a semantic entity search.
type SearchOptions struct {
	EntityType     string  `json:"entity_type,omitempty"`
	GlobalOnly     bool    `json:"search_global_only"`
	Limit          int     `json:"limit"`
	ScoreThreshold float64 `json:"score_threshold"`
}

// DefaultSearchOptions returns limit 5 and score threshold 0.5 over all chunks.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		Limit:          DefaultSearchLimitEntities,
		ScoreThreshold: DefaultScoreThreshold,
	}
}

// ProcessOptions configures chunk generation for one entity.
type ProcessOptions struct {
	GenerateGlobal     bool `json:"generate_global"`
	GenerateAttributes bool `json:"generate_attributes"`
	GroupAttributes    bool `json:"group_attributes"`
	ForceRegenerate    bool `json:"force_regenerate"`
}

// DefaultProcessOptions generates global and grouped attribute chunks without
// deleting existing ones.
func DefaultProcessOptions() ProcessOptions {
	return ProcessOptions{
		GenerateGlobal:     true,
		GenerateAttributes: true,
		GroupAttributes:    true,
	}
}

// ChunkOptions are the toggles of a single chunk generation call.
type ChunkOptions struct {
	IncludeGlobal     bool
	IncludeAttributes bool
	GroupAttributes   bool
	// Summary replaces the templated global chunk text when set.
	Summary string
}

// NewEntity is the input of an entity ingestion.
// Relationships start at the new entity, their SourceID is filled in on ingest.
type NewEntity struct {
	Type          string          `json:"entity_type"`
	Name          string          `json:"name"`
	Structured    Metadata        `json:"structured,omitempty"`
	Content       Metadata        `json:"content,omitempty"`
	Text          string          `json:"text,omitempty"`
	Relationships []*Relationship `json:"relationships,omitempty"`
	Metadata      Metadata        `json:"metadata,omitempty"`
}
