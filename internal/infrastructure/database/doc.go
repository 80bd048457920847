// Package database provides SQL connectivity for the ERP auth service.
//
// This package manages:
//   - SQLite connections (default) with WAL mode and foreign keys enabled
//   - Postgres connections through the pgx stdlib driver
//   - Embedded, per-dialect schema migrations
//   - Placeholder rebinding through sqlx so stores write one query for both drivers
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The SQLite file is chmod 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration files live under migrations/{sqlite,postgres}/ and are named
// YYYYMMDD_HHMMSS_description.up.sql with an optional matching .down.sql.
package database
