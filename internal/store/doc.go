// Package store is a SQLite-backed record store for conversations and live
// presence.
//
// It plays the remote authoritative store in the scenario harness and the
// CLI. A Viewer binds the store to one profile and implements
// engine.Backend; the Store itself implements presence.Sources.
//
// Every list query orders by a domain timestamp and breaks ties on the
// insertion seq, so identical data always reads back in identical order.
// Timestamps are stored as Unix milliseconds.
//
// Open applies the WAL journal, a 5s busy timeout and foreign keys, then
// runs schema.sql and any pending migrations recorded in user_version.
package store
