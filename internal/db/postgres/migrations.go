package postgres

// Migration — одна встроенная SQL-миграция.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrations применяются по порядку версий.
// SQL встроен в код для упрощения деплоя.
var Migrations = []Migration{
	{1, "accounts", migration001Accounts},
	{2, "ledger", migration002Ledger},
	{3, "lottery", migration003Lottery},
	{4, "payments", migration004Payments},
	{5, "payment_commissions", migration005PaymentCommissions},
	{6, "tasks", migration006Tasks},
}

var migration001Accounts = `
CREATE TABLE IF NOT EXISTS accounts (
    user_id BIGINT PRIMARY KEY,
    username VARCHAR(255) NOT NULL DEFAULT '',
    first_name VARCHAR(255) NOT NULL DEFAULT '',
    balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
    vip_until BIGINT NOT NULL DEFAULT 0,
    sponsor_l1 BIGINT REFERENCES accounts(user_id),
    sponsor_l2 BIGINT REFERENCES accounts(user_id),
    sponsor_l3 BIGINT REFERENCES accounts(user_id),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_accounts_sponsor_l1 ON accounts(sponsor_l1);
`

var migration002Ledger = `
CREATE TABLE IF NOT EXISTS ledger_entries (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES accounts(user_id),
    delta BIGINT NOT NULL CHECK (delta <> 0),
    cause VARCHAR(32) NOT NULL,
    ref VARCHAR(255) NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_user ON ledger_entries(user_id, id DESC);
`

var migration003Lottery = `
CREATE TABLE IF NOT EXISTS lottery_rounds (
    id BIGSERIAL PRIMARY KEY,
    status VARCHAR(16) NOT NULL DEFAULT 'open',
    jackpot BIGINT NOT NULL DEFAULT 0 CHECK (jackpot >= 0),
    opened_at BIGINT NOT NULL,
    closed_at BIGINT NOT NULL DEFAULT 0,
    winner_id BIGINT NOT NULL DEFAULT 0,
    draw_seed VARCHAR(64) NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS uq_lottery_rounds_open ON lottery_rounds ((TRUE)) WHERE status = 'open';

CREATE TABLE IF NOT EXISTS lottery_stakes (
    id BIGSERIAL PRIMARY KEY,
    round_id BIGINT NOT NULL REFERENCES lottery_rounds(id),
    user_id BIGINT NOT NULL REFERENCES accounts(user_id),
    amount BIGINT NOT NULL CHECK (amount > 0),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_lottery_stakes_round ON lottery_stakes(round_id, user_id);

CREATE TABLE IF NOT EXISTS lottery_winners (
    round_id BIGINT NOT NULL REFERENCES lottery_rounds(id),
    place INTEGER NOT NULL,
    user_id BIGINT NOT NULL REFERENCES accounts(user_id),
    prize BIGINT NOT NULL,
    PRIMARY KEY (round_id, place)
);
`

var migration004Payments = `
CREATE TABLE IF NOT EXISTS payments (
    token VARCHAR(255) PRIMARY KEY,
    payer_id BIGINT NOT NULL,
    amount BIGINT NOT NULL,
    purpose VARCHAR(32) NOT NULL,
    effects JSONB NOT NULL DEFAULT '{}'::jsonb,
    processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Платежи до этой миграции уже прошли раздачу комиссий.
var migration005PaymentCommissions = `
ALTER TABLE payments ADD COLUMN IF NOT EXISTS commissions_applied BOOLEAN NOT NULL DEFAULT FALSE;
UPDATE payments SET commissions_applied = TRUE;
CREATE INDEX IF NOT EXISTS idx_payments_pending ON payments(processed_at) WHERE NOT commissions_applied;
CREATE INDEX IF NOT EXISTS idx_payments_payer ON payments(payer_id);
`

var migration006Tasks = `
CREATE TABLE IF NOT EXISTS tasks (
    id BIGSERIAL PRIMARY KEY,
    title VARCHAR(255) NOT NULL,
    link VARCHAR(512) NOT NULL DEFAULT '',
    reward BIGINT NOT NULL CHECK (reward > 0),
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS task_completions (
    user_id BIGINT NOT NULL REFERENCES accounts(user_id),
    task_id BIGINT NOT NULL REFERENCES tasks(id),
    completed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, task_id)
);
`
