package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ludoteca/ludoteca/internal/game/catalog"
	"github.com/ludoteca/ludoteca/internal/game/room"
	"github.com/ludoteca/ludoteca/internal/protocol"
)

// ErrRoomNotFound is returned when a room lookup yields no results.
var ErrRoomNotFound = errors.New("room not found")

// ErrNoOpenSession is returned when a finish is recorded for a room with no
// started, unfinished game session.
var ErrNoOpenSession = errors.New("no open game session")

// RoomRepository provides room and game-session persistence. It implements
// room.Store for hydration and session.Recorder for the start/finish
// write-backs.
type RoomRepository struct {
	db *pgxpool.Pool
}

// NewRoomRepository creates a RoomRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewRoomRepository(db *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{db: db}
}

// GetRoom retrieves a persisted room by id.
//
// Postcondition: Returns the room record or ErrRoomNotFound.
func (r *RoomRepository) GetRoom(ctx context.Context, roomID string) (room.Record, error) {
	var rec room.Record
	err := r.db.QueryRow(ctx,
		`SELECT id, code, game_slug, host_id, COALESCE(config, '{}'::jsonb), status, max_players
		 FROM rooms WHERE id = $1`,
		roomID,
	).Scan(&rec.ID, &rec.Code, &rec.GameSlug, &rec.HostID, &rec.Config, &rec.Status, &rec.MaxPlayers)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return room.Record{}, ErrRoomNotFound
		}
		return room.Record{}, fmt.Errorf("querying room: %w", err)
	}
	return rec, nil
}

// CreateRoom inserts a new room in waiting status.
//
// Precondition: rec.Code, rec.GameSlug, and rec.HostID must be set; the
// host must exist in users.
// Postcondition: Returns the stored record with its id assigned.
func (r *RoomRepository) CreateRoom(ctx context.Context, rec room.Record) (room.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = string(room.StatusWaiting)
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO rooms (id, code, game_slug, host_id, config, status, max_players)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.Code, rec.GameSlug, rec.HostID, rec.Config, rec.Status, rec.MaxPlayers,
	)
	if err != nil {
		return room.Record{}, fmt.Errorf("inserting room: %w", err)
	}
	return rec, nil
}

// UpdateStatus sets a room's lifecycle status.
//
// Postcondition: Returns nil on update or ErrRoomNotFound.
func (r *RoomRepository) UpdateStatus(ctx context.Context, roomID, status string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE rooms SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, roomID,
	)
	if err != nil {
		return fmt.Errorf("updating room status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// UpsertGame syncs one cataloged game into the games table. Run at boot so
// game_sessions rows can reference the catalog entry.
func (r *RoomRepository) UpsertGame(ctx context.Context, g *catalog.Game) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO games (slug, name, description, category, min_players, max_players)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (slug) DO UPDATE SET
		   name = EXCLUDED.name,
		   description = EXCLUDED.description,
		   category = EXCLUDED.category,
		   min_players = EXCLUDED.min_players,
		   max_players = EXCLUDED.max_players`,
		g.Slug, g.Name, g.Description, g.Category, g.MinPlayers, g.MaxPlayers,
	)
	if err != nil {
		return fmt.Errorf("upserting game %s: %w", g.Slug, err)
	}
	return nil
}

// RecordStarted marks the room playing and opens a game_sessions row
// carrying the room's config.
//
// Precondition: the room's game slug must exist in games (see UpsertGame).
// Postcondition: The room is no longer hydratable as waiting.
func (r *RoomRepository) RecordStarted(ctx context.Context, roomID string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE rooms SET status = 'playing', updated_at = NOW() WHERE id = $1`,
		roomID,
	)
	if err != nil {
		return fmt.Errorf("updating room status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRoomNotFound
	}

	tag, err = tx.Exec(ctx,
		`INSERT INTO game_sessions (room_id, game_id, config, started_at)
		 SELECT r.id, g.id, r.config, NOW()
		 FROM rooms r JOIN games g ON g.slug = r.game_slug
		 WHERE r.id = $1`,
		roomID,
	)
	if err != nil {
		return fmt.Errorf("inserting game session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("game for room %s not in catalog", roomID)
	}

	return tx.Commit(ctx)
}

// RecordFinished marks the room finished, closes its open game session, and
// persists the final rankings.
//
// Postcondition: Each ranked player has one player_results row for the
// session, or ErrNoOpenSession if no session was recorded as started.
func (r *RoomRepository) RecordFinished(ctx context.Context, roomID string, results protocol.GameResults) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE rooms SET status = 'finished', updated_at = NOW() WHERE id = $1`,
		roomID,
	); err != nil {
		return fmt.Errorf("updating room status: %w", err)
	}

	var sessionID string
	err = tx.QueryRow(ctx,
		`UPDATE game_sessions SET finished_at = NOW()
		 WHERE id = (
		   SELECT id FROM game_sessions
		   WHERE room_id = $1 AND finished_at IS NULL
		   ORDER BY started_at DESC LIMIT 1
		 )
		 RETURNING id`,
		roomID,
	).Scan(&sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNoOpenSession
		}
		return fmt.Errorf("closing game session: %w", err)
	}

	for _, entry := range results.Rankings {
		if _, err := tx.Exec(ctx,
			`INSERT INTO player_results (session_id, user_id, score, rank)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (session_id, user_id) DO UPDATE SET
			   score = EXCLUDED.score,
			   rank = EXCLUDED.rank`,
			sessionID, entry.PlayerID, entry.Score, entry.Rank,
		); err != nil {
			return fmt.Errorf("inserting result for player %s: %w", entry.PlayerID, err)
		}
	}

	return tx.Commit(ctx)
}

// SessionResults reads back the persisted rankings for a room's most recent
// finished session, ordered by rank.
func (r *RoomRepository) SessionResults(ctx context.Context, roomID string) ([]protocol.PlayerResult, error) {
	rows, err := r.db.Query(ctx,
		`SELECT pr.user_id, pr.score, pr.rank
		 FROM player_results pr
		 JOIN game_sessions gs ON gs.id = pr.session_id
		 WHERE gs.room_id = $1 AND gs.finished_at IS NOT NULL
		 ORDER BY gs.finished_at DESC, pr.rank ASC`,
		roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying session results: %w", err)
	}
	defer rows.Close()

	var out []protocol.PlayerResult
	for rows.Next() {
		var res protocol.PlayerResult
		if err := rows.Scan(&res.PlayerID, &res.Score, &res.Rank); err != nil {
			return nil, fmt.Errorf("scanning player result: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
