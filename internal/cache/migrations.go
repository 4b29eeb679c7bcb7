package cache

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
	user_id      TEXT NOT NULL,
	position     INTEGER NOT NULL,
	recipient_id TEXT NOT NULL,
	created_at   DATETIME NOT NULL,
	read_at      DATETIME,
	payload      TEXT NOT NULL,
	saved_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_id, position)
);

CREATE INDEX IF NOT EXISTS idx_snapshots_user_recipient ON snapshots(user_id, recipient_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS push_tokens (
	token         TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	platform      TEXT NOT NULL,
	registered_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_push_tokens_user ON push_tokens(user_id);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
