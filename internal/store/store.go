// Package store persists glossaries and block-level translation memory in
// SQLite, keyed so repeat runs over the same document reuse earlier work.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"

	"longdoc-translator/internal/logger"
	"longdoc-translator/internal/longdoc"
	"longdoc-translator/internal/types"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, types.NewAppError(types.ErrStore, "failed to open database", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, types.NewAppError(types.ErrStore, "failed to migrate database", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS glossary (
		id TEXT PRIMARY KEY,
		source_lang TEXT NOT NULL,
		target_lang TEXT NOT NULL,
		source_term TEXT NOT NULL,
		target_term TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(source_lang, target_lang, source_term)
	);

	-- block_memory caches per-block results keyed by source content hash,
	-- so re-running an updated document only retranslates changed blocks.
	CREATE TABLE IF NOT EXISTS block_memory (
		source_hash TEXT NOT NULL,
		target_lang TEXT NOT NULL,
		translated_text TEXT NOT NULL,
		usage_count INTEGER DEFAULT 1,
		last_used TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (source_hash, target_lang)
	);

	CREATE INDEX IF NOT EXISTS idx_glossary_lookup ON glossary(source_lang, target_lang);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// GlossaryEntry represents a row in the glossary table.
type GlossaryEntry struct {
	ID         string
	SourceLang string
	TargetLang string
	SourceTerm string
	TargetTerm string
	CreatedAt  time.Time
}

// AddTerm inserts or replaces a glossary entry.
func (s *Store) AddTerm(ctx context.Context, sourceLang, targetLang, sourceTerm, targetTerm string) error {
	sourceTerm = normalizeText(sourceTerm)
	targetTerm = normalizeText(targetTerm)
	if sourceTerm == "" || targetTerm == "" {
		return types.NewAppError(types.ErrInvalidInput, "glossary terms must be non-empty", nil)
	}

	id := fmt.Sprintf("gl_%d", time.Now().UnixNano())
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO glossary (id, source_lang, target_lang, source_term, target_term)
		 VALUES (?, ?, ?, ?, ?)`,
		id, sourceLang, targetLang, sourceTerm, targetTerm)
	if err != nil {
		return types.NewAppError(types.ErrStore, "failed to add glossary term", err)
	}
	return nil
}

// DeleteTerm removes a glossary entry by ID.
func (s *Store) DeleteTerm(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM glossary WHERE id = ?`, id)
	if err != nil {
		return types.NewAppError(types.ErrStore, "failed to delete glossary term", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.NewAppErrorWithDetails(types.ErrInvalidInput, "glossary term not found", id, nil)
	}
	return nil
}

// ListTerms returns glossary entries, optionally filtered by language pair
// (pass empty strings to return everything).
func (s *Store) ListTerms(ctx context.Context, sourceLang, targetLang string) ([]GlossaryEntry, error) {
	query := `SELECT id, source_lang, target_lang, source_term, target_term, created_at FROM glossary`
	var args []interface{}

	switch {
	case sourceLang != "" && targetLang != "":
		query += ` WHERE source_lang = ? AND target_lang = ?`
		args = append(args, sourceLang, targetLang)
	case sourceLang != "":
		query += ` WHERE source_lang = ?`
		args = append(args, sourceLang)
	case targetLang != "":
		query += ` WHERE target_lang = ?`
		args = append(args, targetLang)
	}
	query += ` ORDER BY source_lang, target_lang, source_term`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrStore, "failed to list glossary terms", err)
	}
	defer rows.Close()

	var entries []GlossaryEntry
	for rows.Next() {
		var e GlossaryEntry
		if err := rows.Scan(&e.ID, &e.SourceLang, &e.TargetLang, &e.SourceTerm, &e.TargetTerm, &e.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrStore, "failed to scan glossary term", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GlossaryMap returns the active terms for a language pair as a
// source-term to target-term map, the shape the pipeline options take.
func (s *Store) GlossaryMap(ctx context.Context, sourceLang, targetLang string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_term, target_term FROM glossary WHERE source_lang = ? AND target_lang = ?`,
		sourceLang, targetLang)
	if err != nil {
		return nil, types.NewAppError(types.ErrStore, "failed to load glossary", err)
	}
	defer rows.Close()

	terms := make(map[string]string)
	for rows.Next() {
		var src, tgt string
		if err := rows.Scan(&src, &tgt); err != nil {
			return nil, types.NewAppError(types.ErrStore, "failed to scan glossary term", err)
		}
		terms[src] = tgt
	}
	return terms, rows.Err()
}

// GetCachedBlock looks up a remembered block translation.
func (s *Store) GetCachedBlock(ctx context.Context, text, targetLang string) (string, bool, error) {
	hash := blockHash(text)
	var translated string
	err := s.db.QueryRowContext(ctx,
		`SELECT translated_text FROM block_memory WHERE source_hash = ? AND target_lang = ?`,
		hash, targetLang).Scan(&translated)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, types.NewAppError(types.ErrStore, "failed to query block memory", err)
	}

	_, _ = s.db.ExecContext(ctx,
		`UPDATE block_memory SET usage_count = usage_count + 1, last_used = ? WHERE source_hash = ? AND target_lang = ?`,
		time.Now(), hash, targetLang)
	return translated, true, nil
}

// SaveBlock remembers one block translation.
func (s *Store) SaveBlock(ctx context.Context, text, targetLang, translated string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO block_memory (source_hash, target_lang, translated_text, usage_count, last_used, created_at)
		 VALUES (?, ?, ?, 1, ?, ?)`,
		blockHash(text), targetLang, translated, time.Now(), time.Now())
	if err != nil {
		return types.NewAppError(types.ErrStore, "failed to save block memory", err)
	}
	return nil
}

// ClearBlockMemory drops all remembered block translations.
func (s *Store) ClearBlockMemory(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM block_memory`)
	if err != nil {
		return 0, types.NewAppError(types.ErrStore, "failed to clear block memory", err)
	}
	return res.RowsAffected()
}

// WrapCapability decorates a translation capability with block memory.
// Hits bypass the inner capability entirely; misses are stored after a
// successful translation. Storage failures never fail the translation.
func (s *Store) WrapCapability(inner longdoc.TranslateCapability) longdoc.TranslateCapability {
	return func(ctx context.Context, text, targetLang string) (string, error) {
		cached, ok, err := s.GetCachedBlock(ctx, text, targetLang)
		if err != nil {
			logger.Warn("block memory lookup failed", logger.Err(err))
		} else if ok {
			return cached, nil
		}

		translated, err := inner(ctx, text, targetLang)
		if err != nil {
			return "", err
		}
		if saveErr := s.SaveBlock(ctx, text, targetLang, translated); saveErr != nil {
			logger.Warn("block memory save failed", logger.Err(saveErr))
		}
		return translated, nil
	}
}

// normalizeText trims whitespace and applies Unicode NFC normalization
// for consistent key comparison.
func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}

func blockHash(text string) string {
	sum := sha256.Sum256([]byte(normalizeText(text)))
	return hex.EncodeToString(sum[:])
}
