// Package store persists dossier records in a MongoDB collection.
//
// Writes are idempotent upserts keyed by the record's ID: inserts stamp
// created_at, updates refresh updated_at and leave created_at untouched.
// Integration coverage lives in tests/integration and runs against a
// containerized MongoDB.
package store
