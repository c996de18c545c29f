package db

// ApplyMigrations creates the schema if it does not exist yet.
func ApplyMigrations(d *Database) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS candle_ranges (
			epic         TEXT NOT NULL,
			timeframe    TEXT NOT NULL,
			start_ms     INTEGER NOT NULL,
			end_ms       INTEGER NOT NULL,
			candles      TEXT NOT NULL, -- JSON array
			is_complete  INTEGER NOT NULL DEFAULT 1,
			last_updated INTEGER NOT NULL, -- unix ms
			PRIMARY KEY (epic, timeframe, start_ms, end_ms)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_candle_ranges_updated
			ON candle_ranges(last_updated)`,
		`CREATE TABLE IF NOT EXISTS trades (
			id          TEXT PRIMARY KEY,
			epic        TEXT NOT NULL,
			side        TEXT NOT NULL,
			quantity    REAL NOT NULL,
			entry_price REAL NOT NULL,
			exit_price  REAL,
			pnl         REAL,
			reason      TEXT,
			opened_at   TIMESTAMP NOT NULL,
			closed_at   TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS position_snapshots (
			id         TEXT NOT NULL,
			epic       TEXT NOT NULL,
			side       TEXT NOT NULL,
			quantity   REAL NOT NULL,
			entry      REAL NOT NULL,
			current    REAL NOT NULL,
			upl        REAL NOT NULL,
			stop_loss  REAL NOT NULL,
			take_profit REAL NOT NULL,
			taken_at   TIMESTAMP NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := d.DB.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
