// Package database opens the SQLite file that holds automation rules,
// scheduled settings and the settings documents, and migrates its schema.
//
// Migrations live in the top-level migrations package as paired
// VERSION_name.up.sql and .down.sql files; importing that package embeds
// them and registers them through MigrationsFS.
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Schema changes are additive: new columns are nullable or carry a default,
// so an older binary still reads a newer file.
package database
