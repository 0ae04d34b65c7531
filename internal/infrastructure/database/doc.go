// Package database provides SQLite connectivity for the crowlink
// event journal.
//
// The database stores realtime panel events locally so alarm history
// survives cloud outages and daemon restarts. WAL mode allows reads
// concurrent with the single writer.
//
// # Usage
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
package database
