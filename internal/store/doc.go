// Package store provides persistent conversation transcripts using SQLite.
//
// Each chat session gets a Thread; every user message and assistant reply
// is saved as a Message in that thread. SQLiteStore is the only
// implementation; it creates its schema on open and uses WAL mode.
package store
