package report

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Ranguvenu/skf-sub003/internal/engine"
)

// CurrentSchemaVersion is bumped whenever the stored shape changes;
// repository reads migrate older documents forward before returning them.
const CurrentSchemaVersion = 2

// Report is a stored report definition: the engine's definition plus the
// editor's bookkeeping fields.
type Report struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	SchemaVersion int                `json:"schema_version" bson:"schema_version"`

	Name        string `json:"name" bson:"name"`
	Description string `json:"description,omitempty" bson:"description,omitempty"`
	Type        string `json:"type" bson:"type"` // courses, users, sql

	Components    []engine.ComponentConfig `json:"components" bson:"components"`
	ConditionExpr string                   `json:"condition_expr,omitempty" bson:"condition_expr,omitempty"`
	CustomSQL     string                   `json:"custom_sql,omitempty" bson:"custom_sql,omitempty"`

	CreatedBy int64     `json:"created_by,omitempty" bson:"created_by,omitempty"`
	UpdatedBy int64     `json:"updated_by,omitempty" bson:"updated_by,omitempty"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// Definition maps the stored document to the engine's read-only view.
func (r *Report) Definition() *engine.Definition {
	return &engine.Definition{
		ID:            r.ID.Hex(),
		Name:          r.Name,
		Type:          r.Type,
		Components:    r.Components,
		ConditionExpr: r.ConditionExpr,
		CustomSQL:     r.CustomSQL,
	}
}

// migrate lifts documents written by older releases to the current shape.
// Version 1 had no type discriminator: custom SQL lived in its own field
// and everything else was implicitly a course report.
func (r *Report) migrate() {
	if r.SchemaVersion >= CurrentSchemaVersion {
		return
	}
	if r.Type == "" {
		if r.CustomSQL != "" {
			r.Type = engine.TypeSQL
		} else {
			r.Type = engine.TypeCourses
		}
	}
	r.SchemaVersion = CurrentSchemaVersion
}
