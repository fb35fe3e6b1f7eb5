package journal

const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	created DATETIME NOT NULL,
	strategy TEXT NOT NULL,
	dataset TEXT NOT NULL,
	params TEXT NOT NULL,
	start_time DATETIME,
	end_time DATETIME,
	bars INTEGER NOT NULL,
	cash REAL NOT NULL,
	equity_final REAL,
	equity_peak REAL,
	return_pct REAL,
	buy_hold_pct REAL,
	max_dd_pct REAL,
	sharpe REAL,
	sortino REAL,
	calmar REAL,
	win_rate REAL,
	profit_factor REAL,
	expectancy REAL,
	sqn REAL,
	trades INTEGER NOT NULL,
	wins INTEGER NOT NULL,
	losses INTEGER NOT NULL,
	out_of_money INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	size REAL NOT NULL,
	entry_bar INTEGER NOT NULL,
	exit_bar INTEGER NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	entry_time DATETIME,
	exit_time DATETIME,
	pnl REAL NOT NULL,
	return_pct REAL,
	sl REAL,
	tp REAL,
	one_r REAL,
	max_pnl REAL,
	max_negative_pnl REAL,
	tag TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS equity (
	run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	bar INTEGER NOT NULL,
	time DATETIME,
	equity REAL,
	drawdown_pct REAL,
	PRIMARY KEY (run_id, bar)
);

CREATE INDEX IF NOT EXISTS idx_runs_strategy ON runs(strategy);
`
