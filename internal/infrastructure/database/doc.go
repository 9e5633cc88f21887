// Package database provides SQLite connectivity for the IceCube catalogue.
//
// It owns the connection lifecycle (WAL mode, busy timeout, single writer)
// and an embedded, versioned migration runner. Repositories in other
// packages receive a *DB and issue parameterised statements against it.
//
// Usage:
//
//	db, err := database.Open(database.ConfigFrom(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql, and are registered by the migrations package.
package database
