// Code generated by ent, DO NOT EDIT.

package ent

import (
	"time"

	"github.com/growbal/discovery/ent/chatsession"
	"github.com/growbal/discovery/ent/message"
	"github.com/growbal/discovery/ent/schema"
)

// The init function reads all schema descriptors with runtime code
// (default values, validators, hooks and policies) and stitches it
// to their package variables.
func init() {
	chatsessionFields := schema.ChatSession{}.Fields()
	_ = chatsessionFields
	// chatsessionDescTitle is the schema descriptor for title field.
	chatsessionDescTitle := chatsessionFields[4].Descriptor()
	// chatsession.DefaultTitle holds the default value on creation for the title field.
	chatsession.DefaultTitle = chatsessionDescTitle.Default.(string)
	// chatsessionDescCreatedAt is the schema descriptor for created_at field.
	chatsessionDescCreatedAt := chatsessionFields[5].Descriptor()
	// chatsession.DefaultCreatedAt holds the default value on creation for the created_at field.
	chatsession.DefaultCreatedAt = chatsessionDescCreatedAt.Default.(func() time.Time)
	// chatsessionDescLastActivity is the schema descriptor for last_activity field.
	chatsessionDescLastActivity := chatsessionFields[6].Descriptor()
	// chatsession.DefaultLastActivity holds the default value on creation for the last_activity field.
	chatsession.DefaultLastActivity = chatsessionDescLastActivity.Default.(func() time.Time)
	// chatsessionDescActive is the schema descriptor for active field.
	chatsessionDescActive := chatsessionFields[7].Descriptor()
	// chatsession.DefaultActive holds the default value on creation for the active field.
	chatsession.DefaultActive = chatsessionDescActive.Default.(bool)
	messageFields := schema.Message{}.Fields()
	_ = messageFields
	// messageDescCreatedAt is the schema descriptor for created_at field.
	messageDescCreatedAt := messageFields[6].Descriptor()
	// message.DefaultCreatedAt holds the default value on creation for the created_at field.
	message.DefaultCreatedAt = messageDescCreatedAt.Default.(func() time.Time)
}
