package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chat-server/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	user_id    VARCHAR(8) PRIMARY KEY,
	username   VARCHAR(30) UNIQUE NOT NULL,
	pwd_hash   TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS friend (
	id           BIGSERIAL PRIMARY KEY,
	user_id      VARCHAR(8) NOT NULL REFERENCES users(user_id),
	friend_id    VARCHAR(8) NOT NULL REFERENCES users(user_id),
	status       INT NOT NULL DEFAULT 0,
	request_time TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS room (
	room_id    BIGSERIAL PRIMARY KEY,
	group_flag BOOLEAN NOT NULL DEFAULT FALSE,
	name       VARCHAR(255),
	owner      VARCHAR(8),
	pair_key   TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS room_pair_key_uq
	ON room (pair_key) WHERE pair_key IS NOT NULL;

CREATE TABLE IF NOT EXISTS room_member (
	id            BIGSERIAL PRIMARY KEY,
	room_id       BIGINT NOT NULL,
	user_id       VARCHAR(8) NOT NULL REFERENCES users(user_id),
	last_read_seq BIGINT NOT NULL DEFAULT 0,
	UNIQUE (room_id, user_id)
);

CREATE TABLE IF NOT EXISTS message (
	msg_id  BIGSERIAL PRIMARY KEY,
	room_id BIGINT NOT NULL DEFAULT 0,
	seq     BIGINT NOT NULL,
	type    INT NOT NULL DEFAULT 0,
	sender  VARCHAR(8) NOT NULL,
	body    TEXT NOT NULL,
	status  INT NOT NULL DEFAULT 0,
	ts      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (room_id, seq)
);

CREATE INDEX IF NOT EXISTS message_ts_idx ON message (ts);
`

// Advisory lock keys use the bigint form with high namespace offsets, so
// room locks and the user id allocator never collide and room ids are never
// truncated into the key.
const (
	lockNSRoomSeq int64 = 1 << 48
	lockNSUserID  int64 = 2 << 48
)

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Migrate creates the schema if it does not exist yet.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Users

func (p *Postgres) CreateUser(ctx context.Context, username, pwdHash string) (*models.User, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Serialize id allocation: ids are sequential 8-digit strings.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, lockNSUserID); err != nil {
		return nil, err
	}

	var maxID *string
	if err := tx.QueryRow(ctx, `SELECT MAX(user_id) FROM users`).Scan(&maxID); err != nil {
		return nil, err
	}
	id := "10000001"
	if maxID != nil {
		var n int64
		if _, err := fmt.Sscanf(*maxID, "%d", &n); err != nil {
			return nil, fmt.Errorf("malformed user id %q: %w", *maxID, err)
		}
		id = fmt.Sprintf("%08d", n+1)
	}

	u := &models.User{ID: id, Username: username, PasswordHash: pwdHash}
	_, err = tx.Exec(ctx,
		`INSERT INTO users (user_id, username, pwd_hash) VALUES ($1, $2, $3)`,
		u.ID, u.Username, u.PasswordHash)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return u, nil
}

func (p *Postgres) UserByID(ctx context.Context, id string) (*models.User, error) {
	return p.scanUser(p.pool.QueryRow(ctx,
		`SELECT user_id, username, pwd_hash FROM users WHERE user_id = $1`, id))
}

func (p *Postgres) UserByName(ctx context.Context, username string) (*models.User, error) {
	return p.scanUser(p.pool.QueryRow(ctx,
		`SELECT user_id, username, pwd_hash FROM users WHERE username = $1`, username))
}

func (p *Postgres) scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (p *Postgres) SearchUsers(ctx context.Context, query string) ([]models.User, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT user_id, username FROM users
		 WHERE username LIKE '%' || $1 || '%' OR user_id LIKE '%' || $1 || '%'
		 ORDER BY user_id`, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Friends

func (p *Postgres) AreFriends(ctx context.Context, a, b string) (bool, error) {
	return p.friendStatusExists(ctx, a, b, models.FriendAccepted)
}

func (p *Postgres) HasPendingRequest(ctx context.Context, a, b string) (bool, error) {
	return p.friendStatusExists(ctx, a, b, models.FriendPending)
}

func (p *Postgres) friendStatusExists(ctx context.Context, a, b string, status int) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM friend
			WHERE ((user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1))
			AND status = $3
		)`, a, b, status).Scan(&exists)
	return exists, err
}

func (p *Postgres) CreateFriendRequest(ctx context.Context, from, to string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO friend (user_id, friend_id, status) VALUES ($1, $2, $3)`,
		from, to, models.FriendPending)
	return err
}

func (p *Postgres) SettleFriendRequest(ctx context.Context, a, b string, accept bool) (bool, error) {
	status := models.FriendAccepted
	if !accept {
		status = models.FriendRejected
	}
	tag, err := p.pool.Exec(ctx,
		`UPDATE friend SET status = $3
		 WHERE id = (
			SELECT id FROM friend
			WHERE ((user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1))
			AND status = $4
			LIMIT 1
		 )`, a, b, status, models.FriendPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (p *Postgres) FriendsOf(ctx context.Context, userID string) ([]models.User, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT u.user_id, u.username FROM users u
		 JOIN friend f ON (
			(f.user_id = $1 AND f.friend_id = u.user_id) OR
			(f.friend_id = $1 AND f.user_id = u.user_id)
		 )
		 WHERE f.status = $2
		 ORDER BY u.user_id`, userID, models.FriendAccepted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Rooms

func (p *Postgres) CreateGroupRoom(ctx context.Context, name, owner string, memberIDs []string) (int64, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var roomID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO room (group_flag, name, owner) VALUES (TRUE, $1, $2) RETURNING room_id`,
		name, owner).Scan(&roomID)
	if err != nil {
		return 0, err
	}
	for _, uid := range memberIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO room_member (room_id, user_id) VALUES ($1, $2)
			 ON CONFLICT (room_id, user_id) DO NOTHING`, roomID, uid); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return roomID, nil
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

func (p *Postgres) GetOrCreatePrivateRoom(ctx context.Context, a, b string) (int64, bool, error) {
	key := pairKey(a, b)

	var roomID int64
	err := p.pool.QueryRow(ctx, `SELECT room_id FROM room WHERE pair_key = $1`, key).Scan(&roomID)
	if err == nil {
		return roomID, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO room (group_flag, pair_key) VALUES (FALSE, $1) RETURNING room_id`,
		key).Scan(&roomID)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost the race: another request created the pair first.
			err = p.pool.QueryRow(ctx,
				`SELECT room_id FROM room WHERE pair_key = $1`, key).Scan(&roomID)
			return roomID, false, err
		}
		return 0, false, err
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO room_member (room_id, user_id) VALUES ($1, $2), ($1, $3)`,
		roomID, a, b)
	if err != nil {
		return 0, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, false, err
	}
	return roomID, true, nil
}

func (p *Postgres) RoomByID(ctx context.Context, roomID int64) (*models.Room, error) {
	var r models.Room
	var name, owner *string
	err := p.pool.QueryRow(ctx,
		`SELECT room_id, group_flag, name, owner FROM room WHERE room_id = $1`,
		roomID).Scan(&r.ID, &r.IsGroup, &name, &owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if name != nil {
		r.Name = *name
	}
	if owner != nil {
		r.Owner = *owner
	}
	return &r, nil
}

func (p *Postgres) SearchGroupRooms(ctx context.Context, query string) ([]models.Room, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT room_id, group_flag, name, COALESCE(owner, '') FROM room
		 WHERE group_flag = TRUE AND name LIKE '%' || $1 || '%'
		 ORDER BY room_id`, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Room
	for rows.Next() {
		var r models.Room
		if err := rows.Scan(&r.ID, &r.IsGroup, &r.Name, &r.Owner); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteRoom(ctx context.Context, roomID int64) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, `DELETE FROM room_member WHERE room_id = $1`, roomID); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM room WHERE room_id = $1`, roomID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}

func (p *Postgres) SetRoomOwner(ctx context.Context, roomID int64, owner string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE room SET owner = $2 WHERE room_id = $1`, roomID, owner)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Memberships

func (p *Postgres) IsMember(ctx context.Context, roomID int64, userID string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM room_member WHERE room_id = $1 AND user_id = $2)`,
		roomID, userID).Scan(&exists)
	return exists, err
}

func (p *Postgres) RoomsForUser(ctx context.Context, userID string) ([]int64, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT room_id FROM room_member WHERE user_id = $1 ORDER BY room_id`, userID)
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

func (p *Postgres) RoomMembers(ctx context.Context, roomID int64) ([]models.Member, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT m.user_id, u.username, m.last_read_seq
		 FROM room_member m JOIN users u ON u.user_id = m.user_id
		 WHERE m.room_id = $1
		 ORDER BY m.user_id`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Member
	for rows.Next() {
		var mb models.Member
		if err := rows.Scan(&mb.UserID, &mb.Username, &mb.LastReadSeq); err != nil {
			return nil, err
		}
		out = append(out, mb)
	}
	return out, rows.Err()
}

func (p *Postgres) AddMember(ctx context.Context, roomID int64, userID string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO room_member (room_id, user_id) VALUES ($1, $2)`, roomID, userID)
	if isUniqueViolation(err) {
		return ErrAlreadyMember
	}
	return err
}

func (p *Postgres) RemoveMember(ctx context.Context, roomID int64, userID string) error {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM room_member WHERE room_id = $1 AND user_id = $2`, roomID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) UpdateLastRead(ctx context.Context, roomID int64, userID string, seq int64) (bool, error) {
	// Monotonic: a receipt never moves the cursor backwards.
	tag, err := p.pool.Exec(ctx,
		`UPDATE room_member SET last_read_seq = $3
		 WHERE room_id = $1 AND user_id = $2 AND last_read_seq < $3`,
		roomID, userID, seq)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Messages

func (p *Postgres) SaveMessage(ctx context.Context, msg *models.Message) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Per-room advisory lock serializes the max(seq)+1 allocation, keeping
	// sequences gapless under concurrent saves into the same room.
	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock($1)`, lockNSRoomSeq+msg.RoomID); err != nil {
		return err
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO message (room_id, seq, type, sender, body, status)
		 SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3, $4, $5 FROM message WHERE room_id = $1
		 RETURNING msg_id, seq, ts`,
		msg.RoomID, msg.Type, msg.Sender, msg.Body, msg.Status).
		Scan(&msg.ID, &msg.Seq, &msg.TS)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *Postgres) GlobalHistory(ctx context.Context, page, size int) ([]models.Message, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT msg_id, room_id, seq, type, sender, body, status, ts FROM message
		 ORDER BY msg_id DESC LIMIT $1 OFFSET $2`, size, (page-1)*size)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (p *Postgres) RoomHistory(ctx context.Context, roomID int64, page, size int) ([]models.Message, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT msg_id, room_id, seq, type, sender, body, status, ts FROM message
		 WHERE room_id = $1 ORDER BY seq ASC LIMIT $2 OFFSET $3`,
		roomID, size, (page-1)*size)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows pgx.Rows) ([]models.Message, error) {
	var out []models.Message
	for rows.Next() {
		var m models.Message
		var ts time.Time
		if err := rows.Scan(&m.ID, &m.RoomID, &m.Seq, &m.Type, &m.Sender, &m.Body, &m.Status, &ts); err != nil {
			return nil, err
		}
		m.TS = ts.UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}
