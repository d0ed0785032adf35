// Package database provides the SQLite store behind tgpanel.
//
// It opens the database with WAL journalling and a busy timeout, keeps a
// single pooled connection, and applies versioned SQL migrations from any
// fs.FS (the migrations package embeds the production set).
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    log.Fatal(err)
//	}
package database
