package storage

const schema = `
-- Anonymous sessions own decks; there is no other notion of a user.
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS decks (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    name TEXT NOT NULL,
    topic TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,
    last_studied_at DATETIME,

    FOREIGN KEY(session_id) REFERENCES sessions(id)
);

-- SM-2 columns are nullable: a card that was never studied may lack them and
-- gets the default schedule when it is read.
CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    deck_id TEXT NOT NULL,
    question TEXT NOT NULL,
    answer TEXT NOT NULL,
    hash TEXT NOT NULL,
    ease_factor REAL,
    interval_days INTEGER,
    repetitions INTEGER,
    next_review TEXT, -- YYYY-MM-DD
    created_at DATETIME NOT NULL,

    UNIQUE(deck_id, hash),
    FOREIGN KEY(deck_id) REFERENCES decks(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_cards_deck_next_review ON cards(deck_id, next_review);

-- Markdown sources imported into a deck, either a local path or a git URL.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    deck_id TEXT NOT NULL,
    path TEXT NOT NULL,
    type TEXT NOT NULL DEFAULT 'local',
    last_scanned DATETIME,

    UNIQUE(deck_id, path),
    FOREIGN KEY(deck_id) REFERENCES decks(id) ON DELETE CASCADE
);
`
