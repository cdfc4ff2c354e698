package index

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"bookdex/internal/model"
	apperrors "bookdex/internal/pkg/errors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type pgvectorConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

// pgvectorStore keeps vectors in Postgres with the pgvector extension. All
// collections share one table; the collections meta table pins each
// collection's dimension and metric so a misconfigured run fails before it can
// write anything.
type pgvectorStore struct {
	db         *sql.DB
	collection string
}

func init() {
	Register("pgvector", createPgvectorStore)
}

func createPgvectorStore(collection string, args interface{}) (Store, error) {
	cfg := &pgvectorConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	dsn := cfg.DSN
	if dsn == "" {
		sslmode := cfg.SSLMode
		if sslmode == "" {
			sslmode = "disable"
		}
		dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslmode)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("%w: ping postgres: %v", apperrors.ErrUpstreamUnavailable, err)
	}
	if err := applyMigrations(db); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return &pgvectorStore{db: db, collection: collection}, nil
}

func applyMigrations(db *sql.DB) error {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	for _, file := range files {
		content, err := fs.ReadFile(migrationsFS, "migrations/"+file)
		if err != nil {
			return err
		}
		for _, q := range strings.Split(string(content), ";") {
			q = strings.TrimSpace(q)
			if q == "" {
				continue
			}
			if _, err := db.Exec(q); err != nil {
				if strings.Contains(err.Error(), "already exists") {
					continue
				}
				return fmt.Errorf("execute query in %s: %w", file, err)
			}
		}
	}
	return nil
}

func (s *pgvectorStore) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: invalid dimension %d", apperrors.ErrInvalid, dimension)
	}
	const sel = `SELECT dimension, metric FROM collections WHERE name = $1`
	var gotDim int
	var gotMetric string
	err := s.db.QueryRowContext(ctx, sel, s.collection).Scan(&gotDim, &gotMetric)
	switch {
	case err == sql.ErrNoRows:
		const ins = `INSERT INTO collections (name, dimension, metric) VALUES ($1, $2, 'cosine')`
		if _, err := s.db.ExecContext(ctx, ins, s.collection, dimension); err != nil {
			return err
		}
		return nil
	case err != nil:
		return err
	}
	if gotDim != dimension || gotMetric != "cosine" {
		return fmt.Errorf("%w: collection %s has dimension=%d metric=%s, want dimension=%d metric=cosine",
			apperrors.ErrSchemaMismatch, s.collection, gotDim, gotMetric, dimension)
	}
	return nil
}

func (s *pgvectorStore) Upsert(ctx context.Context, records []model.IndexRecord) error {
	for _, rec := range records {
		if err := validateRecord(rec); err != nil {
			return err
		}
		data := map[string]interface{}{
			"id":           rec.ID,
			"collection":   s.collection,
			"embedding":    pgvector.NewVector(rec.Vector),
			"content":      rec.Payload.Content,
			"source_url":   rec.Payload.SourceURL,
			"chapter":      rec.Payload.Chapter,
			"section":      rec.Payload.Section,
			"heading_path": pq.Array(rec.Payload.HeadingPath),
			"position":     rec.Payload.Position,
		}
		sqlStr, args, err := builder.BuildInsert("chunks", []map[string]interface{}{data})
		if err != nil {
			return err
		}
		sqlStr += ` ON CONFLICT (id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			content = EXCLUDED.content,
			source_url = EXCLUDED.source_url,
			chapter = EXCLUDED.chapter,
			section = EXCLUDED.section,
			heading_path = EXCLUDED.heading_path,
			position = EXCLUDED.position`
		sqlStr = sqlx.Rebind(sqlx.DOLLAR, sqlStr)
		if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
			return err
		}
	}
	return nil
}

func (s *pgvectorStore) Search(ctx context.Context, vector []float32, topK int) ([]model.ScoredRecord, error) {
	if topK <= 0 {
		topK = 5
	}
	// <=> is cosine distance; similarity = 1 - distance.
	const query = `
		SELECT id, content, source_url, chapter, section, heading_path, position,
			1 - (embedding <=> $1) AS score
		FROM chunks
		WHERE collection = $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, query, pgvector.NewVector(vector), s.collection, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var hits []model.ScoredRecord
	for rows.Next() {
		var rec model.IndexRecord
		var headingPath pq.StringArray
		var score float64
		if err := rows.Scan(&rec.ID, &rec.Payload.Content, &rec.Payload.SourceURL,
			&rec.Payload.Chapter, &rec.Payload.Section, &headingPath, &rec.Payload.Position, &score); err != nil {
			return nil, err
		}
		rec.Payload.HeadingPath = headingPath
		hits = append(hits, model.ScoredRecord{Record: rec, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sortScored(hits, topK), nil
}

func (s *pgvectorStore) Count(ctx context.Context) (int64, error) {
	where := map[string]interface{}{"collection": s.collection}
	sqlStr, args, err := builder.BuildSelect("chunks", where, []string{"count(*)"})
	if err != nil {
		return 0, err
	}
	sqlStr = sqlx.Rebind(sqlx.DOLLAR, sqlStr)
	var count int64
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
