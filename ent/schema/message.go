package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Message holds the schema definition for one turn half in a session.
// Append-only: messages are never edited or deleted individually.
type Message struct {
	ent.Schema
}

// Fields of the Message.
func (Message) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("message_id").
			Unique().
			Immutable(),
		field.String("session_id").
			Immutable(),
		field.Int("seq").
			Immutable().
			Comment("Session-scoped order; assigned by the store, not wall-clock"),
		field.Enum("role").
			Values("user", "assistant"),
		field.Text("content"),
		field.String("idempotency_key").
			Optional().
			Nillable().
			Comment("Client-supplied key making retried appends idempotent"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the Message.
func (Message) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("session", ChatSession.Type).
			Ref("messages").
			Field("session_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the Message.
func (Message) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("session_id", "seq").
			Unique(),
		index.Fields("session_id", "idempotency_key"),
	}
}
