// Package store persists the task set.
//
// The file driver is the source of truth layout: one human-readable JSON file
// holding every task, replaced atomically on each write so a crash can never
// leave a partially-updated task observable. The sqlite driver (build tag
// "sqlite") is an alternative for deployments that prefer a database file.
package store
