// Package database owns the SQLite handle behind the device registry.
//
// The pool is pinned to a single connection to match SQLite's
// single-writer model; WAL mode keeps reads flowing during writes and
// the busy timeout absorbs brief lock contention. Schema migrations are
// embedded into the binary by the migrations package and applied with
// Migrate, one transaction per step.
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive: new columns are nullable or defaulted,
// nothing is dropped or renamed, and every up file has a down file.
package database
