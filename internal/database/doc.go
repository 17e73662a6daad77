// Package database opens the PostgreSQL pool used by the transcript archive.
package database
