package db

import (
	"context"
	"database/sql"
	"time"
)

type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type EmbeddingCache struct {
	ContentHash string
	EmbedModel  string
	Embedding   []byte
}

const getEmbeddingCache = `
SELECT content_hash, embed_model, embedding FROM embedding_cache WHERE content_hash = ?
`

func (q *Queries) GetEmbeddingCache(ctx context.Context, contentHash string) (EmbeddingCache, error) {
	row := q.db.QueryRowContext(ctx, getEmbeddingCache, contentHash)
	var i EmbeddingCache
	err := row.Scan(&i.ContentHash, &i.EmbedModel, &i.Embedding)
	return i, err
}

const touchEmbeddingCache = `
UPDATE embedding_cache SET used_at = CURRENT_TIMESTAMP WHERE content_hash = ?
`

func (q *Queries) TouchEmbeddingCache(ctx context.Context, contentHash string) error {
	_, err := q.db.ExecContext(ctx, touchEmbeddingCache, contentHash)
	return err
}

type UpsertEmbeddingCacheParams struct {
	ContentHash string
	EmbedModel  string
	Embedding   []byte
}

const upsertEmbeddingCache = `
INSERT INTO embedding_cache (content_hash, embed_model, embedding)
VALUES (?, ?, ?)
ON CONFLICT (content_hash) DO UPDATE SET
    embed_model = excluded.embed_model,
    embedding   = excluded.embedding,
    used_at     = CURRENT_TIMESTAMP
`

func (q *Queries) UpsertEmbeddingCache(ctx context.Context, arg UpsertEmbeddingCacheParams) error {
	_, err := q.db.ExecContext(ctx, upsertEmbeddingCache, arg.ContentHash, arg.EmbedModel, arg.Embedding)
	return err
}

const pruneEmbeddingCache = `
DELETE FROM embedding_cache WHERE content_hash NOT IN (
    SELECT content_hash FROM embedding_cache ORDER BY used_at DESC, created_at DESC LIMIT ?
)
`

func (q *Queries) PruneEmbeddingCache(ctx context.Context, keep int64) error {
	_, err := q.db.ExecContext(ctx, pruneEmbeddingCache, keep)
	return err
}

const countEmbeddingCache = `SELECT COUNT(*) FROM embedding_cache`

func (q *Queries) CountEmbeddingCache(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countEmbeddingCache).Scan(&n)
	return n, err
}

type Resolution struct {
	ID           string
	Source       string
	Utterance    string
	Action       sql.NullString
	Output       sql.NullString
	Filename     sql.NullString
	Confidence   sql.NullFloat64
	ErrorKind    sql.NullString
	ErrorMessage sql.NullString
	CreatedAt    time.Time
}

type InsertResolutionParams struct {
	ID           string
	Source       string
	Utterance    string
	Action       sql.NullString
	Output       sql.NullString
	Filename     sql.NullString
	Confidence   sql.NullFloat64
	ErrorKind    sql.NullString
	ErrorMessage sql.NullString
	CreatedAt    time.Time
}

const insertResolution = `
INSERT INTO resolutions (id, source, utterance, action, output, filename, confidence, error_kind, error_message, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) InsertResolution(ctx context.Context, arg InsertResolutionParams) error {
	_, err := q.db.ExecContext(ctx, insertResolution,
		arg.ID,
		arg.Source,
		arg.Utterance,
		arg.Action,
		arg.Output,
		arg.Filename,
		arg.Confidence,
		arg.ErrorKind,
		arg.ErrorMessage,
		arg.CreatedAt,
	)
	return err
}

const listResolutions = `
SELECT id, source, utterance, action, output, filename, confidence, error_kind, error_message, created_at
FROM resolutions
ORDER BY created_at DESC, rowid DESC
LIMIT ?
`

func (q *Queries) ListResolutions(ctx context.Context, limit int64) ([]Resolution, error) {
	rows, err := q.db.QueryContext(ctx, listResolutions, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Resolution
	for rows.Next() {
		var i Resolution
		if err := rows.Scan(
			&i.ID,
			&i.Source,
			&i.Utterance,
			&i.Action,
			&i.Output,
			&i.Filename,
			&i.Confidence,
			&i.ErrorKind,
			&i.ErrorMessage,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
