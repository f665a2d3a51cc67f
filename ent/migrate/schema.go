// Code generated by ent, DO NOT EDIT.

package migrate

import (
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

var (
	// ChatSessionsColumns holds the columns for the "chat_sessions" table.
	ChatSessionsColumns = []*schema.Column{
		{Name: "session_id", Type: field.TypeString, Unique: true},
		{Name: "owner_id", Type: field.TypeInt, Nullable: true},
		{Name: "country", Type: field.TypeString},
		{Name: "service_type", Type: field.TypeString},
		{Name: "title", Type: field.TypeString, Default: ""},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "last_activity", Type: field.TypeTime},
		{Name: "active", Type: field.TypeBool, Default: true},
	}
	// ChatSessionsTable holds the schema information for the "chat_sessions" table.
	ChatSessionsTable = &schema.Table{
		Name:       "chat_sessions",
		Columns:    ChatSessionsColumns,
		PrimaryKey: []*schema.Column{ChatSessionsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "chatsession_last_activity",
				Unique:  false,
				Columns: []*schema.Column{ChatSessionsColumns[6]},
			},
			{
				Name:    "chatsession_owner_id_active",
				Unique:  false,
				Columns: []*schema.Column{ChatSessionsColumns[1], ChatSessionsColumns[7]},
			},
			{
				Name:    "chatsession_owner_id_country_service_type_active",
				Unique:  false,
				Columns: []*schema.Column{ChatSessionsColumns[1], ChatSessionsColumns[2], ChatSessionsColumns[3], ChatSessionsColumns[7]},
			},
		},
	}
	// MessagesColumns holds the columns for the "messages" table.
	MessagesColumns = []*schema.Column{
		{Name: "message_id", Type: field.TypeString, Unique: true},
		{Name: "seq", Type: field.TypeInt},
		{Name: "role", Type: field.TypeEnum, Enums: []string{"user", "assistant"}},
		{Name: "content", Type: field.TypeString, Size: 2147483647},
		{Name: "idempotency_key", Type: field.TypeString, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "session_id", Type: field.TypeString},
	}
	// MessagesTable holds the schema information for the "messages" table.
	MessagesTable = &schema.Table{
		Name:       "messages",
		Columns:    MessagesColumns,
		PrimaryKey: []*schema.Column{MessagesColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "messages_chat_sessions_messages",
				Columns:    []*schema.Column{MessagesColumns[6]},
				RefColumns: []*schema.Column{ChatSessionsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "message_session_id_seq",
				Unique:  true,
				Columns: []*schema.Column{MessagesColumns[6], MessagesColumns[1]},
			},
			{
				Name:    "message_session_id_idempotency_key",
				Unique:  false,
				Columns: []*schema.Column{MessagesColumns[6], MessagesColumns[4]},
			},
		},
	}
	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		ChatSessionsTable,
		MessagesTable,
	}
)

func init() {
	MessagesTable.ForeignKeys[0].RefTable = ChatSessionsTable
}
