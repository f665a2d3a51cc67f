// Code generated by ent, DO NOT EDIT.

package predicate

import (
	"entgo.io/ent/dialect/sql"
)

// ChatSession is the predicate function for chatsession builders.
type ChatSession func(*sql.Selector)

// Message is the predicate function for message builders.
type Message func(*sql.Selector)
