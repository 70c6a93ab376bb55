package model

import (
	"regexp"
	"strings"
	"time"

	"github.com/siherrmann/persona/helper"
)

// DefaultSource is the provenance recorded when none is given.
const DefaultSource = "user_input"

var relationshipTypePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Direction of a relationship seen from the entity it was queried for.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
)

// Relationship is a directed typed edge between two entities.
// (SourceID, TargetID, Type) is its identity.
type Relationship struct {
	SourceID   string    `json:"source_id"`
	TargetID   string    `json:"target_id"`
	Type       string    `json:"rel_type"`
	Source     string    `json:"source"`
	Confidence *float64  `json:"confidence"`
	Properties Metadata  `json:"properties,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Confidence returns a pointer to c for use in a Relationship literal.
func Confidence(c float64) *float64 {
	return &c
}

// Normalize validates the relationship and fills defaults.
// The type is upper-cased, a nil confidence becomes 1 and an unset source DefaultSource.
func (r *Relationship) Normalize() error {
	if r.SourceID == "" || r.TargetID == "" {
		return helper.NewValidationError("relationship requires source and target entity ids")
	}
	if !relationshipTypePattern.MatchString(r.Type) {
		return helper.NewValidationError("relationship type %q must be an identifier", r.Type)
	}
	r.Type = strings.ToUpper(r.Type)
	confidence := 1.0
	if r.Confidence != nil {
		confidence = *r.Confidence
	}
	if confidence < 0 || confidence > 1 {
		return helper.NewValidationError("relationship confidence %v out of range [0,1]", confidence)
	}
	r.Confidence = &confidence
	if r.Source == "" {
		r.Source = DefaultSource
	}
	if r.Properties == nil {
		r.Properties = Metadata{}
	}
	return nil
}

// Neighbor is one entity adjacent to a queried entity.
type Neighbor struct {
	Entity       *Entity       `json:"neighbor"`
	Relationship *Relationship `json:"relationship"`
	Direction    Direction     `json:"direction"`
}

// ContextNode is an entity reached while walking the graph from a start entity.
// Via is nil for the start entity.
type ContextNode struct {
	Entity   *Entity   `json:"entity"`
	Distance int       `json:"distance"`
	Path     []string  `json:"path"`
	Via      *Neighbor `json:"via,omitempty"`
}

// ConfidenceValue returns the confidence, 1 when unset.
func (r *Relationship) ConfidenceValue() float64 {
	if r.Confidence == nil {
		return 1
	}
	return *r.Confidence
}
