package store

import (
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/roach88/twinsync/internal/syncerr"
)

// utcSession is the session time zone every MySQL side runs under. Replay
// markers are written as UTC wall-clock, and change-log timestamps are read
// back as UTC.
const utcSession = "'+00:00'"

// MySQLDSN returns dsn with the session settings the sync engine relies on:
//   - time_zone pinned to UTC, so TIMESTAMP columns read back in UTC and a
//     marker string is stored as UTC whichever zone the server runs in
//   - clientFoundRows, so an UPDATE that matches a row but leaves it
//     unchanged still reports one affected row
//
// A time_zone already present in dsn is replaced.
func MySQLDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", syncerr.NewInvalid(syncerr.ReasonBadConfig, fmt.Sprintf("parse mysql dsn: %v", err))
	}
	if cfg.Params == nil {
		cfg.Params = map[string]string{}
	}
	cfg.Params["time_zone"] = utcSession
	cfg.Loc = time.UTC
	cfg.ClientFoundRows = true
	return cfg.FormatDSN(), nil
}
