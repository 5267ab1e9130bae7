package database

// Schema is executed on startup; every statement is idempotent so restarts
// are safe against an already-provisioned database.
const Schema = `
CREATE TABLE IF NOT EXISTS institutions (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    institution_id TEXT NOT NULL UNIQUE,
    legal_name TEXT NOT NULL,
    cvr_number TEXT NOT NULL UNIQUE,
    country TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'approved', 'suspended')),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS wallets (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    institution_id UUID NOT NULL UNIQUE REFERENCES institutions(id),
    wallet_address TEXT NOT NULL UNIQUE,
    pseudonymous_id TEXT NOT NULL,
    is_frozen BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS balances (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    institution_id UUID NOT NULL REFERENCES institutions(id),
    currency TEXT NOT NULL,
    available_balance NUMERIC(24, 6) NOT NULL DEFAULT 0 CHECK (available_balance >= 0),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (institution_id, currency)
);

CREATE TABLE IF NOT EXISTS transfers (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    sender_institution_id UUID NOT NULL REFERENCES institutions(id),
    recipient_institution_id UUID NOT NULL REFERENCES institutions(id),
    amount NUMERIC(24, 6) NOT NULL CHECK (amount > 0),
    currency TEXT NOT NULL,
    note TEXT,
    status TEXT NOT NULL DEFAULT 'submitted' CHECK (status IN ('submitted', 'settled', 'failed')),
    failure_reason TEXT,
    settlement_layer TEXT,
    settlement_tx_id TEXT,
    submitted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    settled_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS settlement_events (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    transfer_id UUID NOT NULL REFERENCES transfers(id),
    settlement_layer TEXT NOT NULL,
    settlement_tx_id TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'recorded',
    settled_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS reserve_deposits (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    institution_id UUID NOT NULL REFERENCES institutions(id),
    amount NUMERIC(24, 6) NOT NULL CHECK (amount > 0),
    currency TEXT NOT NULL,
    reference TEXT NOT NULL,
    created_by TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS ledger_entries (
    entry_id BIGSERIAL PRIMARY KEY,
    transfer_id UUID REFERENCES transfers(id),
    reserve_deposit_id UUID REFERENCES reserve_deposits(id),
    institution_id UUID REFERENCES institutions(id),
    wallet_id UUID REFERENCES wallets(id),
    counterparty_wallet_id UUID REFERENCES wallets(id),
    account_ref TEXT NOT NULL,
    counterparty_ref TEXT NOT NULL,
    entry_type TEXT NOT NULL CHECK (entry_type IN ('transfer', 'reserve_deposit')),
    side TEXT NOT NULL CHECK (side IN ('debit', 'credit')),
    currency TEXT NOT NULL,
    amount NUMERIC(24, 6) NOT NULL CHECK (amount > 0),
    description TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS admin_actions (
    id BIGSERIAL PRIMARY KEY,
    action_type TEXT NOT NULL,
    actor TEXT NOT NULL,
    target_institution_id UUID REFERENCES institutions(id),
    reason TEXT NOT NULL,
    metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
    timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS outbox_events (
    id BIGSERIAL PRIMARY KEY,
    event_type TEXT NOT NULL,
    payload JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    published_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_transfers_submitted_at ON transfers (submitted_at DESC);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_institution ON ledger_entries (institution_id, currency);
CREATE INDEX IF NOT EXISTS idx_admin_actions_timestamp ON admin_actions (timestamp DESC);
`
