// Package storage provides the job store used by every other package.
//
// This package includes:
//   - GormStore: a GORM-based core.Store for SQLite and PostgreSQL
//   - Open: driver selection by name plus a zap-backed gorm logger
//   - Connection pool presets
//
// Claims are compare-and-set updates on the status column, so two callers
// never receive the same job even when several schedulers share a database.
package storage
