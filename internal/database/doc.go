// Package database opens the PostgreSQL pool the realtime server uses to
// LISTEN for domain events written by the API and the chain indexer.
package database
