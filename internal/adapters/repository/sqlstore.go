package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite

	"github.com/okian/bnstats/internal/domain/model"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const defaultSQLiteDSN = "file:bnstats.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"

// SQLStore is a Store on database/sql, backed by SQLite or PostgreSQL.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// OpenSQL opens the database, tunes the pool and ensures the schema exists.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	driver = normalizeDriver(driver)
	var drvName, schema string
	switch driver {
	case DriverSQLite:
		drvName, schema = "sqlite", schemaSQLite
		if dsn == "" {
			dsn = defaultSQLiteDSN
		}
	case DriverPostgres:
		drvName, schema = "pgx", schemaPostgres
		if dsn == "" {
			dsn = "postgres://localhost:5432/bnstats?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("repository: open: %w", err)
	}
	if driver == DriverSQLite {
		// single writer
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(45 * time.Minute)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("repository: ping: %w", err)
	}
	for _, stmt := range strings.Split(schema, ";\n") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("repository: schema: %w", err)
		}
	}
	return &SQLStore{db: db, driver: driver}, nil
}

func normalizeDriver(d string) string {
	switch strings.ToLower(strings.TrimSpace(d)) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite
	case "postgres", "postgresql", "pg", "pgx":
		return DriverPostgres
	default:
		return d
	}
}

// Close closes the underlying pool.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// withTx runs fn in a transaction, committing when it returns nil.
func (s *SQLStore) withTx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository: begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if e := tx.Commit(); e != nil {
			err = fmt.Errorf("repository: commit: %w", e)
		}
	}()
	return fn(tx)
}

type scanner interface {
	Scan(dest ...any) error
}

// Users

const userColumns = `id, username, site_id, modes, is_bn, is_nat, last_updated, favor`

func scanUser(row scanner) (model.User, error) {
	var (
		u            model.User
		modes, favor string
		bn, nat      int
		updated      int64
	)
	if err := row.Scan(&u.ID, &u.Username, &u.SiteID, &modes, &bn, &nat, &updated, &favor); err != nil {
		return model.User{}, err
	}
	u.IsBN, u.IsNAT = bn != 0, nat != 0
	if updated > 0 {
		u.LastUpdated = time.UnixMilli(updated).UTC()
	}
	if err := decodeJSON(modes, &u.Modes); err != nil {
		return model.User{}, err
	}
	if err := decodeJSON(favor, &u.Favor); err != nil {
		return model.User{}, err
	}
	return u, nil
}

func (s *SQLStore) User(ctx context.Context, id int64) (model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return u, err
}

func (s *SQLStore) Users(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpsertUser(ctx context.Context, u model.User) error {
	modes, err := encodeJSON(u.Modes)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO users (id, username, site_id, modes, is_bn, is_nat, last_updated, favor)
		VALUES ($1,$2,$3,$4,$5,$6,$7,'{}')
		ON CONFLICT (id) DO UPDATE SET username=EXCLUDED.username, site_id=EXCLUDED.site_id, modes=EXCLUDED.modes,
			is_bn=EXCLUDED.is_bn, is_nat=EXCLUDED.is_nat, last_updated=EXCLUDED.last_updated`,
		u.ID, u.Username, u.SiteID, modes, boolInt(u.IsBN), boolInt(u.IsNAT), unixMilli(u.LastUpdated))
	return err
}

func (s *SQLStore) UpdateFavor(ctx context.Context, userID int64, f model.Favor) error {
	favor, err := encodeJSON(f)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE users SET favor=$1 WHERE id=$2`, favor, userID)
	if err != nil {
		return err
	}
	return requireAffected(res, fmt.Sprintf("user %d", userID))
}

// Beatmaps

func (s *SQLStore) Beatmaps(ctx context.Context, beatmapsetID int64) ([]model.Beatmap, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT beatmapset_id, beatmap_id, status, total_length, hit_length, mode,
		version, artist, title, creator, creator_id, genre, language, difficulty_rating, last_update
		FROM beatmaps WHERE beatmapset_id=$1 ORDER BY difficulty_rating, beatmap_id`, beatmapsetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Beatmap
	for rows.Next() {
		var (
			b       model.Beatmap
			updated int64
		)
		if err := rows.Scan(&b.BeatmapsetID, &b.BeatmapID, &b.Status, &b.TotalLength, &b.HitLength, &b.Mode,
			&b.Version, &b.Artist, &b.Title, &b.Creator, &b.CreatorID, &b.Genre, &b.Language,
			&b.DifficultyRating, &updated); err != nil {
			return nil, err
		}
		if updated > 0 {
			b.LastUpdate = time.UnixMilli(updated).UTC()
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SQLStore) ReplaceBeatmaps(ctx context.Context, beatmapsetID int64, maps []model.Beatmap) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM beatmaps WHERE beatmapset_id=$1`, beatmapsetID); err != nil {
			return err
		}
		for _, b := range maps {
			if _, err := tx.ExecContext(ctx, `INSERT INTO beatmaps (beatmap_id, beatmapset_id, status, total_length,
				hit_length, mode, version, artist, title, creator, creator_id, genre, language, difficulty_rating, last_update)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
				b.BeatmapID, beatmapsetID, int(b.Status), b.TotalLength, b.HitLength, int(b.Mode), b.Version,
				b.Artist, b.Title, b.Creator, b.CreatorID, int(b.Genre), int(b.Language), b.DifficultyRating,
				unixMilli(b.LastUpdate)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Nominations

const nominationColumns = `id, beatmapset_id, user_id, artist_title, creator_id, creator_name, ts, as_modes, ambiguous, scores`

func scanNomination(row scanner) (model.Nomination, error) {
	var (
		n             model.Nomination
		ts            int64
		modes, scores string
		ambiguous     int
	)
	if err := row.Scan(&n.ID, &n.BeatmapsetID, &n.UserID, &n.ArtistTitle, &n.CreatorID, &n.CreatorName,
		&ts, &modes, &ambiguous, &scores); err != nil {
		return model.Nomination{}, err
	}
	n.Timestamp = time.UnixMilli(ts).UTC()
	n.AmbiguousMode = ambiguous != 0
	if err := decodeJSON(modes, &n.AsModes); err != nil {
		return model.Nomination{}, err
	}
	n.Scores = map[model.CalculatorName]model.ScoreComponents{}
	if err := decodeJSON(scores, &n.Scores); err != nil {
		return model.Nomination{}, err
	}
	return n, nil
}

func (s *SQLStore) queryNominations(ctx context.Context, query string, args ...any) ([]model.Nomination, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+nominationColumns+` FROM nominations `+query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Nomination
	for rows.Next() {
		n, err := scanNomination(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpsertNomination(ctx context.Context, n model.Nomination) (model.Nomination, bool, error) {
	modes, err := encodeJSON(n.AsModes)
	if err != nil {
		return model.Nomination{}, false, err
	}
	var (
		stored  model.Nomination
		created bool
	)
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := scanNomination(tx.QueryRowContext(ctx, `SELECT `+nominationColumns+` FROM nominations
			WHERE beatmapset_id=$1 AND user_id=$2`, n.BeatmapsetID, n.UserID))
		switch {
		case errors.Is(err, sql.ErrNoRows):
			scores, err := encodeJSON(n.Scores)
			if err != nil {
				return err
			}
			if err := tx.QueryRowContext(ctx, `INSERT INTO nominations
				(beatmapset_id, user_id, artist_title, creator_id, creator_name, ts, as_modes, ambiguous, scores)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
				n.BeatmapsetID, n.UserID, n.ArtistTitle, n.CreatorID, n.CreatorName, unixMilli(n.Timestamp),
				modes, boolInt(n.AmbiguousMode), scores).Scan(&n.ID); err != nil {
				return err
			}
			stored, created = cloneNomination(n), true
			return nil
		case err != nil:
			return err
		}
		applyNominationUpdate(&cur, n)
		if _, err := tx.ExecContext(ctx, `UPDATE nominations SET as_modes=$1, ambiguous=$2, artist_title=$3,
			creator_name=$4, creator_id=$5 WHERE id=$6`,
			modes, boolInt(cur.AmbiguousMode), cur.ArtistTitle, cur.CreatorName, cur.CreatorID, cur.ID); err != nil {
			return err
		}
		stored = cur
		return nil
	})
	return stored, created, err
}

func (s *SQLStore) Nomination(ctx context.Context, beatmapsetID, userID int64) (model.Nomination, error) {
	n, err := scanNomination(s.db.QueryRowContext(ctx, `SELECT `+nominationColumns+` FROM nominations
		WHERE beatmapset_id=$1 AND user_id=$2`, beatmapsetID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Nomination{}, fmt.Errorf("nomination (%d, %d): %w", beatmapsetID, userID, ErrNotFound)
	}
	return n, err
}

func (s *SQLStore) NominationsBefore(ctx context.Context, beatmapsetID int64, ts time.Time) ([]model.Nomination, error) {
	return s.queryNominations(ctx, `WHERE beatmapset_id=$1 AND ts<$2 ORDER BY ts DESC, id DESC`,
		beatmapsetID, unixMilli(ts))
}

func (s *SQLStore) UserNominations(ctx context.Context, userID int64, since time.Time) ([]model.Nomination, error) {
	return s.queryNominations(ctx, `WHERE user_id=$1 AND ts>=$2 ORDER BY ts, id`, userID, unixMilli(since))
}

func (s *SQLStore) CreatorNominations(ctx context.Context, creatorID int64, from, to time.Time) ([]model.Nomination, error) {
	return s.queryNominations(ctx, `WHERE creator_id=$1 AND ts>=$2 AND ts<$3 ORDER BY ts, id`,
		creatorID, unixMilli(from), unixMilli(to))
}

func (s *SQLStore) SaveNominationScore(ctx context.Context, nominationID int64, name model.CalculatorName, c model.ScoreComponents) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var raw string
		err := tx.QueryRowContext(ctx, `SELECT scores FROM nominations WHERE id=$1`, nominationID).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("nomination %d: %w", nominationID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		scores := map[model.CalculatorName]model.ScoreComponents{}
		if err := decodeJSON(raw, &scores); err != nil {
			return err
		}
		scores[name] = c
		encoded, err := encodeJSON(scores)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE nominations SET scores=$1 WHERE id=$2`, encoded, nominationID)
		return err
	})
}

func (s *SQLStore) FlagAmbiguous(ctx context.Context, nominationID int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE nominations SET ambiguous=1 WHERE id=$1`, nominationID)
	if err != nil {
		return err
	}
	return requireAffected(res, fmt.Sprintf("nomination %d", nominationID))
}

// Resets

const resetColumns = `id, beatmapset_id, user_id, artist_title, creator_id, creator_name, ts, content,
	discussion_id, obviousness, severity, type`

func scanReset(row scanner) (model.Reset, error) {
	var (
		r   model.Reset
		ts  int64
		typ string
	)
	if err := row.Scan(&r.ID, &r.BeatmapsetID, &r.UserID, &r.ArtistTitle, &r.CreatorID, &r.CreatorName, &ts,
		&r.Content, &r.DiscussionID, &r.Obviousness, &r.Severity, &typ); err != nil {
		return model.Reset{}, err
	}
	r.Timestamp = time.UnixMilli(ts).UTC()
	r.Type = model.ResetType(typ)
	return r, nil
}

func (s *SQLStore) affected(ctx context.Context, q interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}, resetID string) ([]int64, error) {
	rows, err := q.QueryContext(ctx, `SELECT user_id FROM reset_affected WHERE reset_id=$1 ORDER BY position`, resetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpsertReset(ctx context.Context, r model.Reset) (model.Reset, bool, error) {
	var (
		stored  model.Reset
		created bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := scanReset(tx.QueryRowContext(ctx, `SELECT `+resetColumns+` FROM resets
			WHERE beatmapset_id=$1 AND user_id=$2 AND ts=$3`, r.BeatmapsetID, r.UserID, unixMilli(r.Timestamp)))
		if errors.Is(err, sql.ErrNoRows) && r.ID != "" {
			cur, err = scanReset(tx.QueryRowContext(ctx, `SELECT `+resetColumns+` FROM resets WHERE id=$1`, r.ID))
		}
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if r.ID == "" {
				return fmt.Errorf("reset without id")
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO resets (`+resetColumns+`)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
				r.ID, r.BeatmapsetID, r.UserID, r.ArtistTitle, r.CreatorID, r.CreatorName, unixMilli(r.Timestamp),
				r.Content, r.DiscussionID, r.Obviousness, r.Severity, string(r.Type)); err != nil {
				return err
			}
			for i, id := range r.Affected {
				if _, err := tx.ExecContext(ctx, `INSERT INTO reset_affected (reset_id, user_id, position)
					VALUES ($1,$2,$3) ON CONFLICT (reset_id, user_id) DO NOTHING`, r.ID, id, i); err != nil {
					return err
				}
			}
			stored, created = cloneReset(r), true
			return nil
		case err != nil:
			return err
		}
		applyResetUpdate(&cur, r)
		if _, err := tx.ExecContext(ctx, `UPDATE resets SET obviousness=$1, severity=$2, artist_title=$3,
			creator_name=$4, creator_id=$5, content=$6, discussion_id=$7, type=$8 WHERE id=$9`,
			cur.Obviousness, cur.Severity, cur.ArtistTitle, cur.CreatorName, cur.CreatorID, cur.Content,
			cur.DiscussionID, string(cur.Type), cur.ID); err != nil {
			return err
		}
		if cur.Affected, err = s.affected(ctx, tx, cur.ID); err != nil {
			return err
		}
		stored = cur
		return nil
	})
	return stored, created, err
}

func (s *SQLStore) AddAffected(ctx context.Context, resetID string, userID int64) (bool, error) {
	var added bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM resets WHERE id=$1`, resetID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("reset %s: %w", resetID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		var pos int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM reset_affected WHERE reset_id=$1`, resetID).Scan(&pos); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO reset_affected (reset_id, user_id, position)
			VALUES ($1,$2,$3) ON CONFLICT (reset_id, user_id) DO NOTHING`, resetID, userID, pos)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		added = n > 0
		return nil
	})
	return added, err
}

func (s *SQLStore) queryResets(ctx context.Context, query string, args ...any) ([]model.Reset, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+resetColumns+` FROM resets `+query, args...)
	if err != nil {
		return nil, err
	}
	var out []model.Reset
	for rows.Next() {
		r, err := scanReset(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	// affected lists are loaded after the cursor is released; sqlite runs on one connection
	for i := range out {
		if out[i].Affected, err = s.affected(ctx, s.db, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLStore) ResetsAffecting(ctx context.Context, userID, beatmapsetID int64) ([]model.Reset, error) {
	return s.queryResets(ctx, `WHERE beatmapset_id=$1 AND id IN
		(SELECT reset_id FROM reset_affected WHERE user_id=$2) ORDER BY ts`, beatmapsetID, userID)
}

func (s *SQLStore) Resets(ctx context.Context, beatmapsetID int64) ([]model.Reset, error) {
	return s.queryResets(ctx, `WHERE beatmapset_id=$1 ORDER BY ts`, beatmapsetID)
}

// helpers

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("repository: encode: %w", err)
	}
	return string(b), nil
}

func decodeJSON(raw string, v any) error {
	if raw == "" || raw == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("repository: decode: %w", err)
	}
	return nil
}

func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
