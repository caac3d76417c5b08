package postgres

// Schema creates the site, page, lemma, and search_index relations. Pages and
// lemmas cascade with their site; postings cascade with their page or lemma.
const Schema = `
CREATE TABLE IF NOT EXISTS site (
	id          BIGSERIAL PRIMARY KEY,
	status      TEXT NOT NULL CHECK (status IN ('INDEXING', 'INDEXED', 'FAILED')),
	status_time TIMESTAMPTZ NOT NULL,
	last_error  TEXT,
	url         VARCHAR(255) NOT NULL,
	name        VARCHAR(255) NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS site_url_lower_idx ON site (lower(url));

CREATE TABLE IF NOT EXISTS page (
	id      BIGSERIAL PRIMARY KEY,
	site_id BIGINT NOT NULL REFERENCES site (id) ON DELETE CASCADE,
	path    TEXT NOT NULL,
	code    INTEGER NOT NULL,
	content TEXT NOT NULL,
	UNIQUE (site_id, path)
);

CREATE TABLE IF NOT EXISTS lemma (
	id        BIGSERIAL PRIMARY KEY,
	site_id   BIGINT NOT NULL REFERENCES site (id) ON DELETE CASCADE,
	lemma     VARCHAR(255) NOT NULL,
	frequency INTEGER NOT NULL DEFAULT 0,
	UNIQUE (site_id, lemma)
);

CREATE TABLE IF NOT EXISTS search_index (
	id       BIGSERIAL PRIMARY KEY,
	page_id  BIGINT NOT NULL REFERENCES page (id) ON DELETE CASCADE,
	lemma_id BIGINT NOT NULL REFERENCES lemma (id) ON DELETE CASCADE,
	rank     DOUBLE PRECISION NOT NULL,
	UNIQUE (page_id, lemma_id)
);
CREATE INDEX IF NOT EXISTS search_index_lemma_idx ON search_index (lemma_id);
`
