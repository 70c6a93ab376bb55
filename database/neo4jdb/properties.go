package neo4jdb

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/siherrmann/persona/model"
)

// Node properties owned by the store. Entity properties are stored next to
// them with a prefix, nested values as JSON strings under a second prefix.
const (
	keyEntityID   = "entity_id"
	keyEntityType = "entity_type"
	keyName       = "name"
	keySource     = "source"
	keyConfidence = "confidence"
	keyCreatedAt  = "created_at"
	keyUpdatedAt  = "updated_at"

	scalarPrefix = "prop_"
	jsonPrefix   = "propjson_"
)

var labelCleaner = regexp.MustCompile(`[^A-Za-z0-9_]`)

// typeLabel turns an entity type into a node label, e.g. "job title" becomes "Job_title".
func typeLabel(entityType string) string {
	label := labelCleaner.ReplaceAllString(strings.TrimSpace(entityType), "_")
	if label == "" {
		return ""
	}
	if label[0] >= '0' && label[0] <= '9' {
		label = "T" + label
	}
	return strings.ToUpper(label[:1]) + label[1:]
}

// encodeProperties flattens properties for a `SET n += $props`.
// The unused variant of every key is set to null so a changed kind replaces the old value.
func encodeProperties(properties model.Metadata) (map[string]any, error) {
	out := make(map[string]any, 2*len(properties))
	for k, v := range properties {
		switch v.(type) {
		case nil:
			out[scalarPrefix+k] = nil
			out[jsonPrefix+k] = nil
		case string, bool, int, int32, int64, float32, float64:
			out[scalarPrefix+k] = v
			out[jsonPrefix+k] = nil
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			out[scalarPrefix+k] = nil
			out[jsonPrefix+k] = string(b)
		}
	}
	return out, nil
}

// decodeProperties is the inverse of encodeProperties.
func decodeProperties(props map[string]any) model.Metadata {
	out := model.Metadata{}
	for k, v := range props {
		switch {
		case strings.HasPrefix(k, jsonPrefix):
			s, ok := v.(string)
			if !ok {
				continue
			}
			var decoded any
			if err := json.Unmarshal([]byte(s), &decoded); err != nil {
				decoded = s
			}
			out[strings.TrimPrefix(k, jsonPrefix)] = decoded
		case strings.HasPrefix(k, scalarPrefix):
			out[strings.TrimPrefix(k, scalarPrefix)] = v
		}
	}
	return out
}

func entityFromProps(props map[string]any) *model.Entity {
	return &model.Entity{
		EntityID:   stringProp(props, keyEntityID),
		Type:       stringProp(props, keyEntityType),
		Name:       stringProp(props, keyName),
		Properties: decodeProperties(props),
		CreatedAt:  timeProp(props, keyCreatedAt),
		UpdatedAt:  timeProp(props, keyUpdatedAt),
	}
}

func relationshipFromProps(relType, sourceID, targetID string, props map[string]any) *model.Relationship {
	var confidence *float64
	if c, ok := props[keyConfidence].(float64); ok {
		confidence = &c
	}
	return &model.Relationship{
		SourceID:   sourceID,
		TargetID:   targetID,
		Type:       relType,
		Source:     stringProp(props, keySource),
		Confidence: confidence,
		Properties: decodeProperties(props),
		CreatedAt:  timeProp(props, keyCreatedAt),
		UpdatedAt:  timeProp(props, keyUpdatedAt),
	}
}

func stringProp(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

func timeProp(props map[string]any, key string) time.Time {
	t, _ := props[key].(time.Time)
	return t
}
