package accounting

// Schema creates the general-ledger tables when they are missing.
const Schema = `
CREATE TABLE IF NOT EXISTS gl_periods (
	id BIGSERIAL PRIMARY KEY,
	org_id BIGINT NOT NULL,
	code TEXT NOT NULL,
	start_date DATE NOT NULL,
	end_date DATE NOT NULL,
	status TEXT NOT NULL DEFAULT 'OPEN',
	closed_at TIMESTAMPTZ,
	revision BIGINT NOT NULL DEFAULT 0,
	CONSTRAINT uq_gl_periods_code UNIQUE (org_id, code)
);
ALTER TABLE gl_periods ADD COLUMN IF NOT EXISTS revision BIGINT NOT NULL DEFAULT 0;

CREATE TABLE IF NOT EXISTS gl_accounts (
	id BIGINT NOT NULL,
	org_id BIGINT NOT NULL,
	code TEXT NOT NULL,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	level SMALLINT NOT NULL,
	parent_id BIGINT,
	is_cogs BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (org_id, id),
	CONSTRAINT uq_gl_accounts_code UNIQUE (org_id, code)
);

CREATE TABLE IF NOT EXISTS gl_account_openings (
	period_id BIGINT NOT NULL REFERENCES gl_periods(id),
	account_id BIGINT NOT NULL,
	balance NUMERIC(20,2) NOT NULL DEFAULT 0,
	PRIMARY KEY (period_id, account_id)
);

CREATE TABLE IF NOT EXISTS gl_control_accounts (
	org_id BIGINT NOT NULL,
	module TEXT NOT NULL,
	key TEXT NOT NULL,
	account_id BIGINT NOT NULL,
	PRIMARY KEY (org_id, module, key)
);

CREATE TABLE IF NOT EXISTS gl_transactions (
	id UUID PRIMARY KEY,
	org_id BIGINT NOT NULL,
	period_id BIGINT NOT NULL REFERENCES gl_periods(id),
	kind TEXT NOT NULL,
	ref TEXT NOT NULL,
	txn_date DATE NOT NULL,
	payload JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_gl_transactions_period ON gl_transactions (org_id, period_id, txn_date);

CREATE TABLE IF NOT EXISTS gl_partners (
	id BIGINT NOT NULL,
	org_id BIGINT NOT NULL,
	code TEXT NOT NULL,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	account_id BIGINT,
	balance NUMERIC(20,2) NOT NULL DEFAULT 0,
	PRIMARY KEY (org_id, id)
);

CREATE TABLE IF NOT EXISTS gl_partner_openings (
	period_id BIGINT NOT NULL REFERENCES gl_periods(id),
	partner_id BIGINT NOT NULL,
	balance NUMERIC(20,2) NOT NULL DEFAULT 0,
	PRIMARY KEY (period_id, partner_id)
);

CREATE TABLE IF NOT EXISTS gl_inventory_items (
	id BIGINT NOT NULL,
	org_id BIGINT NOT NULL,
	code TEXT NOT NULL,
	name TEXT NOT NULL,
	PRIMARY KEY (org_id, id)
);

CREATE TABLE IF NOT EXISTS gl_item_openings (
	period_id BIGINT NOT NULL REFERENCES gl_periods(id),
	item_id BIGINT NOT NULL,
	quantity NUMERIC(20,4) NOT NULL DEFAULT 0,
	PRIMARY KEY (period_id, item_id)
);

CREATE TABLE IF NOT EXISTS gl_rollover_runs (
	id UUID PRIMARY KEY,
	org_id BIGINT NOT NULL,
	from_period_id BIGINT NOT NULL REFERENCES gl_periods(id),
	to_period_id BIGINT REFERENCES gl_periods(id),
	status TEXT NOT NULL,
	failed_step SMALLINT,
	cause TEXT,
	actor_id BIGINT NOT NULL,
	net_income NUMERIC(20,2),
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS uq_gl_rollover_complete ON gl_rollover_runs (from_period_id) WHERE status = 'COMPLETE';

CREATE TABLE IF NOT EXISTS idempotency_keys (
	key TEXT NOT NULL,
	module TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (module, key)
);

CREATE TABLE IF NOT EXISTS audit_logs (
	id BIGSERIAL PRIMARY KEY,
	actor_id BIGINT,
	action TEXT NOT NULL,
	entity TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	meta JSONB,
	occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
