package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ChatSession holds the schema definition for a durable conversation scoped
// to (owner, country, service type).
type ChatSession struct {
	ent.Schema
}

// Fields of the ChatSession.
func (ChatSession) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("session_id").
			Unique().
			Immutable(),
		field.Int("owner_id").
			Optional().
			Nillable().
			Comment("Authenticated user that owns the session; nil for anonymous"),
		field.String("country").
			Comment("Country constraint fixed at session creation"),
		field.String("service_type").
			Comment("Service type constraint fixed at session creation"),
		field.String("title").
			Default("").
			Comment("Short label for the sidebar; derived from the first user message"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("last_activity").
			Default(time.Now).
			Comment("Touched on every message append"),
		field.Bool("active").
			Default(true).
			Comment("Set to false by the lifecycle sweeper; never set back to true"),
	}
}

// Edges of the ChatSession.
func (ChatSession) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("messages", Message.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the ChatSession.
func (ChatSession) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("last_activity"),
		index.Fields("owner_id", "active"),

		// Duplicate prevention: at most one active session per
		// (owner_id, country, service_type). Enforced as a partial unique
		// index in the migrations (ent cannot express partial uniqueness);
		// this plain index backs the lookup.
		index.Fields("owner_id", "country", "service_type", "active"),
	}
}
