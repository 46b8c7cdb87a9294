// Package postgres: migrations.go хранит SQL-миграции, встроенные в код
// для упрощения деплоя. Идентификаторы: UUID в виде TEXT, генерируются в Go.
package postgres

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{1, migration001Users},
	{2, migration002Projects},
	{3, migration003Criteria},
	{4, migration004Votes},
	{5, migration005Alerts},
	{6, migration006Admin},
}

var migration001Users = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    discord_id TEXT UNIQUE,
    twitter_id TEXT UNIQUE,
    username TEXT NOT NULL DEFAULT '',
    avatar TEXT NOT NULL DEFAULT '',
    wallet_address TEXT UNIQUE,
    role TEXT NOT NULL DEFAULT 'NONE'
        CHECK (role IN ('NONE', 'FULL_ACCESS', 'NAD', 'OG', 'MON')),
    is_admin BOOLEAN NOT NULL DEFAULT FALSE,
    is_trusted_voter BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

var migration002Projects = `
CREATE TABLE IF NOT EXISTS projects (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL,
    website TEXT NOT NULL DEFAULT '',
    github TEXT NOT NULL DEFAULT '',
    twitter TEXT NOT NULL DEFAULT '',
    telegram TEXT NOT NULL DEFAULT '',
    discord TEXT NOT NULL DEFAULT '',
    contract_address TEXT UNIQUE,
    status TEXT NOT NULL DEFAULT 'PENDING'
        CHECK (status IN ('PENDING', 'VERIFIED', 'UNVERIFIED', 'SCAM', 'RUG')),
    verified BOOLEAN NOT NULL DEFAULT FALSE,
    verified_at TIMESTAMPTZ,
    votes_for BIGINT NOT NULL DEFAULT 0 CHECK (votes_for >= 0),
    votes_against BIGINT NOT NULL DEFAULT 0 CHECK (votes_against >= 0),
    creator_id TEXT REFERENCES users(id) ON DELETE SET NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_projects_status ON projects(status);
`

var migration003Criteria = `
CREATE TABLE IF NOT EXISTS criteria (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT '',
    weight DOUBLE PRECISION NOT NULL DEFAULT 1.0 CHECK (weight >= 0.1 AND weight <= 10.0),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

var migration004Votes = `
CREATE TABLE IF NOT EXISTS votes (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    vote_type TEXT NOT NULL CHECK (vote_type IN ('FOR', 'AGAINST')),
    role TEXT NOT NULL,
    comment TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_modified_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT uq_votes_user_project UNIQUE (user_id, project_id)
);
CREATE INDEX IF NOT EXISTS idx_votes_project ON votes(project_id);

CREATE TABLE IF NOT EXISTS criteria_votes (
    id TEXT PRIMARY KEY,
    vote_id TEXT NOT NULL REFERENCES votes(id) ON DELETE CASCADE,
    criteria_id TEXT NOT NULL REFERENCES criteria(id) ON DELETE CASCADE,
    value TEXT NOT NULL CHECK (value IN ('YES', 'NO')),
    comment TEXT NOT NULL DEFAULT '',
    CONSTRAINT uq_criteria_votes UNIQUE (vote_id, criteria_id)
);

CREATE TABLE IF NOT EXISTS role_tallies (
    project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    role TEXT NOT NULL,
    votes_for BIGINT NOT NULL DEFAULT 0 CHECK (votes_for >= 0),
    votes_against BIGINT NOT NULL DEFAULT 0 CHECK (votes_against >= 0),
    PRIMARY KEY (project_id, role)
);
`

var migration005Alerts = `
CREATE TABLE IF NOT EXISTS alerts (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    message TEXT NOT NULL,
    alert_type TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_alerts_project ON alerts(project_id);
CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at DESC);
`

var migration006Admin = `
CREATE TABLE IF NOT EXISTS admin_login_attempts (
    id BIGSERIAL PRIMARY KEY,
    user_id TEXT NOT NULL,
    attempt_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    success BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_admin_login_attempts_user ON admin_login_attempts(user_id, attempt_time DESC);
`
