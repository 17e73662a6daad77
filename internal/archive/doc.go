// Package archive batch-writes delivered chat messages to PostgreSQL.
//
// The writer consumes from a queue fed by the chat handler, accumulates rows
// until BatchSize is reached or FlushInterval elapses, and inserts them with
// a single pgx.Batch. Inserts are append-only: a message already archived
// (same message_id) counts as a conflict and is left untouched.
package archive
