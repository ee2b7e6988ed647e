// Package session persists conversation history keyed by an opaque
// session key.
//
// History is append-only: messages are never mutated or removed except
// by an explicit reset. Two backends implement the Store contract, a
// JSONL file store (default) and a SQLite store. Both enforce the
// tool-message ordering invariant and serialize writes per session.
package session
