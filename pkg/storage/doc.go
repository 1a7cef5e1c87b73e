// Package storage persists analysis jobs and their parsed results.
//
// GormStorage implements core.Storage on top of GORM. Open selects the
// driver from the DSN: postgres:// and postgresql:// use PostgreSQL,
// mysql:// uses MySQL, anything else is treated as a SQLite path.
package storage
