package database

const schema = `
CREATE TABLE anime (
	anime_id INTEGER NOT NULL,
	source TEXT NOT NULL CHECK (source IN ('ANILIST', 'MYANIMELIST')),
	title_romaji TEXT NOT NULL,
	title_english TEXT NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('PLANNING', 'WATCHING', 'COMPLETED', 'DROPPED', 'PAUSED', 'REPEATING')),
	episodes INTEGER NULL CHECK (episodes IS NULL OR episodes >= 0),
	PRIMARY KEY (anime_id, source)
);

CREATE INDEX idx_anime_status ON anime(status);

CREATE TABLE torrent (
	torrent_sk INTEGER PRIMARY KEY AUTOINCREMENT,
	torrent_id INTEGER NOT NULL,
	title TEXT NOT NULL,
	download_url TEXT NOT NULL,
	size TEXT NULL,
	seeders INTEGER NULL,
	leechers INTEGER NULL,
	anime_id INTEGER NOT NULL,
	anime_source TEXT NOT NULL,
	UNIQUE (torrent_sk, torrent_id),
	FOREIGN KEY (anime_id, anime_source) REFERENCES anime(anime_id, source) ON DELETE CASCADE
);

CREATE INDEX idx_torrent_anime ON torrent(anime_id, anime_source);
CREATE UNIQUE INDEX idx_torrent_anime_remote ON torrent(anime_id, anime_source, torrent_id);
`

// migrations contains incremental schema changes
// Each migration is applied in order based on the current user_version
// migrations[0] is empty because version 0 uses the base schema
var migrations = []string{
	"",
	// Databases created before the remote id was unique per anime may hold
	// duplicates; keep the newest row of each group before adding the index.
	`DELETE FROM torrent
	WHERE torrent_sk NOT IN (
		SELECT MAX(torrent_sk) FROM torrent GROUP BY anime_id, anime_source, torrent_id
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_torrent_anime_remote ON torrent(anime_id, anime_source, torrent_id);`,
}
