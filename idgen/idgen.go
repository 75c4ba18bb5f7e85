// Package idgen produces the prefixed, time-sortable identifiers used as
// primary keys across the postule stores: "sess_" for workflow sessions,
// "att_" for application attempts, "job_" for discovered candidates.
//
// The underlying strategy is UUID v7 (RFC 9562) so ids sort by creation
// time, which keeps the session log and attempt listings in insertion
// order without a secondary sort column.
package idgen

import "github.com/google/uuid"

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator producing RFC 9562 UUID v7 strings.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every id.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is the module default: UUID v7.
var Default Generator = UUIDv7()

// Session produces a "sess_" id.
var Session = Prefixed("sess_", Default)

// Attempt produces an "att_" id.
var Attempt = Prefixed("att_", Default)

// Job produces a "job_" id.
var Job = Prefixed("job_", Default)
