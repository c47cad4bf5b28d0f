package persistence

// schemaFor returns the DDL statements for the given driver ("postgres" or
// "sqlite3"). Column types are kept portable (TEXT/INTEGER/BLOB) except
// where a driver-specific type materially improves the column (BIGINT /
// TIMESTAMPTZ on Postgres); JSON payloads are stored as TEXT and marshalled
// through the JSON type in json.go rather than relying on a JSONB column,
// so the same schema serves both drivers.
func schemaFor(driver string) []string {
	if driver == "postgres" {
		return []string{
			`CREATE TABLE IF NOT EXISTS organizations (
				id TEXT PRIMARY KEY,
				monthly_budget_cents BIGINT,
				current_month_spend_cents BIGINT NOT NULL DEFAULT 0,
				budget_reset_at TIMESTAMPTZ
			)`,
			`CREATE TABLE IF NOT EXISTS executions (
				id TEXT PRIMARY KEY,
				root_execution_id TEXT NOT NULL,
				parent_execution_id TEXT,
				organization_id TEXT NOT NULL,
				user_id TEXT,
				session_id TEXT,
				agent_id TEXT,
				request TEXT,
				status TEXT NOT NULL,
				output TEXT,
				error_message TEXT,
				metadata TEXT,
				started_at TIMESTAMPTZ NOT NULL,
				completed_at TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_executions_root ON executions (root_execution_id)`,
			`CREATE TABLE IF NOT EXISTS provider_connections (
				id TEXT PRIMARY KEY,
				organization_id TEXT NOT NULL,
				provider TEXT NOT NULL,
				base_url TEXT,
				encrypted_token BYTEA NOT NULL,
				nonce BYTEA NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				UNIQUE (organization_id, provider)
			)`,
		}
	}

	return []string{
		`CREATE TABLE IF NOT EXISTS organizations (
			id TEXT PRIMARY KEY,
			monthly_budget_cents INTEGER,
			current_month_spend_cents INTEGER NOT NULL DEFAULT 0,
			budget_reset_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS executions (
			id TEXT PRIMARY KEY,
			root_execution_id TEXT NOT NULL,
			parent_execution_id TEXT,
			organization_id TEXT NOT NULL,
			user_id TEXT,
			session_id TEXT,
			agent_id TEXT,
			request TEXT,
			status TEXT NOT NULL,
			output TEXT,
			error_message TEXT,
			metadata TEXT,
			started_at DATETIME NOT NULL,
			completed_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_root ON executions (root_execution_id)`,
		`CREATE TABLE IF NOT EXISTS provider_connections (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			base_url TEXT,
			encrypted_token BLOB NOT NULL,
			nonce BLOB NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (organization_id, provider)
		)`,
	}
}
