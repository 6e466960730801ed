package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore keeps games and annotations in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// Open creates or opens the database at path and applies the schema.
// WAL mode keeps readers unblocked while a commit is in progress.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite has one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func persistErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrPersistence, op, err)
}

func (s *SQLiteStore) CreateGame(ctx context.Context, g Game) error {
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO games (id, user_id, pgn, analyzed, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, g.ID, g.UserID, g.PGN, g.Analyzed, g.CreatedAt.UnixNano())
	if err != nil {
		return persistErr("create game", err)
	}
	return nil
}

func (s *SQLiteStore) GetGame(ctx context.Context, id string) (Game, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, pgn, analyzed, created_at FROM games WHERE id = ?
	`, id)
	g, err := scanGame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Game{}, fmt.Errorf("game %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Game{}, persistErr("get game", err)
	}
	return g, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGame(row scanner) (Game, error) {
	var g Game
	var created int64
	if err := row.Scan(&g.ID, &g.UserID, &g.PGN, &g.Analyzed, &created); err != nil {
		return Game{}, err
	}
	g.CreatedAt = time.Unix(0, created).UTC()
	return g, nil
}

func (s *SQLiteStore) SetAnalyzed(ctx context.Context, id string, analyzed bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE games SET analyzed = ? WHERE id = ?`, analyzed, id)
	if err != nil {
		return persistErr("set analyzed", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return persistErr("set analyzed", err)
	}
	if n == 0 {
		return fmt.Errorf("game %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) ListUnanalyzed(ctx context.Context, limit int) ([]Game, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, pgn, analyzed, created_at FROM games
		WHERE analyzed = 0
		ORDER BY created_at, rowid
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, persistErr("list unanalyzed", err)
	}
	defer rows.Close()

	var games []Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, persistErr("list unanalyzed", err)
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list unanalyzed", err)
	}
	return games, nil
}

func (s *SQLiteStore) ListAnalyzed(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM games WHERE analyzed = 1 ORDER BY created_at, rowid
	`)
	if err != nil {
		return nil, persistErr("list analyzed", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, persistErr("list analyzed", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list analyzed", err)
	}
	return ids, nil
}

func (s *SQLiteStore) InsertAnnotations(ctx context.Context, gameID string, anns []MoveAnnotation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("insert annotations", err)
	}
	defer tx.Rollback()

	if err := insertAnnotations(ctx, tx, gameID, anns); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return persistErr("insert annotations", err)
	}
	return nil
}

func (s *SQLiteStore) CommitAnnotations(ctx context.Context, gameID string, anns []MoveAnnotation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("commit annotations", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE games SET analyzed = 1 WHERE id = ? AND analyzed = 0`, gameID)
	if err != nil {
		return persistErr("commit annotations", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return persistErr("commit annotations", err)
	}
	if n == 0 {
		var analyzed bool
		err := tx.QueryRowContext(ctx, `SELECT analyzed FROM games WHERE id = ?`, gameID).Scan(&analyzed)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("game %s: %w", gameID, ErrNotFound)
		}
		if err != nil {
			return persistErr("commit annotations", err)
		}
		return fmt.Errorf("game %s: %w", gameID, ErrAlreadyAnalyzed)
	}

	// Rows left by an earlier InsertAnnotations without a flag flip are
	// replaced, so the committed set is exactly anns.
	if _, err := tx.ExecContext(ctx, `DELETE FROM move_annotations WHERE game_id = ?`, gameID); err != nil {
		return persistErr("commit annotations", err)
	}
	if err := insertAnnotations(ctx, tx, gameID, anns); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return persistErr("commit annotations", err)
	}
	return nil
}

func insertAnnotations(ctx context.Context, tx *sql.Tx, gameID string, anns []MoveAnnotation) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO move_annotations
		(game_id, ply, move_number, move_san, move_uci, color, fen_before, fen_after,
		 eval_before, eval_after, eval_change, classification, is_best_move, is_book_move)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return persistErr("prepare annotation insert", err)
	}
	defer stmt.Close()

	for _, a := range anns {
		_, err := stmt.ExecContext(ctx,
			gameID,
			a.Ply,
			a.MoveNumber,
			a.MoveSAN,
			a.MoveUCI,
			a.Color,
			a.FENBefore,
			a.FENAfter,
			a.EvalBefore,
			a.EvalAfter,
			a.EvalChange,
			a.Classification,
			a.IsBestMove,
			a.IsBookMove,
		)
		if err != nil {
			return persistErr(fmt.Sprintf("insert annotation ply %d", a.Ply), err)
		}
	}
	return nil
}

func (s *SQLiteStore) ListAnnotations(ctx context.Context, gameID string) ([]MoveAnnotation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT game_id, ply, move_number, move_san, move_uci, color, fen_before, fen_after,
		       eval_before, eval_after, eval_change, classification, is_best_move, is_book_move
		FROM move_annotations
		WHERE game_id = ?
		ORDER BY move_number, ply
	`, gameID)
	if err != nil {
		return nil, persistErr("list annotations", err)
	}
	defer rows.Close()

	anns := []MoveAnnotation{}
	for rows.Next() {
		var a MoveAnnotation
		err := rows.Scan(
			&a.GameID,
			&a.Ply,
			&a.MoveNumber,
			&a.MoveSAN,
			&a.MoveUCI,
			&a.Color,
			&a.FENBefore,
			&a.FENAfter,
			&a.EvalBefore,
			&a.EvalAfter,
			&a.EvalChange,
			&a.Classification,
			&a.IsBestMove,
			&a.IsBookMove,
		)
		if err != nil {
			return nil, persistErr("list annotations", err)
		}
		anns = append(anns, a)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list annotations", err)
	}
	return anns, nil
}
