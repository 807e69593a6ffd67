// Package database provides SQLite connectivity for the gateway's device
// store.
//
// It manages the connection (WAL mode, busy timeout, foreign keys) and
// applies schema migrations supplied as an fs.FS, normally the embedded
// files of the migrations package.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns are nullable or defaulted, and every
// .up.sql has a matching .down.sql.
package database
