// Package storage persists subscriptions and users in SQLite.
//
// The schema lives in migrations/ and is applied with goose on Open.
// A single connection is used; SQLite serializes writers anyway.
package storage
