package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hotelledger/internal/models"

	"github.com/mattn/go-sqlite3"
)

const roomColumns = `id, hotel_id, number, capacity, rate, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (*models.Room, error) {
	var r models.Room
	if err := row.Scan(&r.ID, &r.HotelID, &r.Number, &r.Capacity, &r.Rate, &r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func (db *DB) CreateRoom(ctx context.Context, room *models.Room) error {
	if room.Status == "" {
		room.Status = models.RoomAvailable
	}
	now := time.Now()
	result, err := db.ExecContext(ctx,
		`INSERT INTO rooms (hotel_id, number, capacity, rate, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		room.HotelID, room.Number, room.Capacity, room.Rate, room.Status, now, now,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("%w: room %s already exists in hotel %d", models.ErrConflict, room.Number, room.HotelID)
		}
		return fmt.Errorf("failed to create room: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	room.ID = id
	room.CreatedAt = now
	room.UpdatedAt = now
	return nil
}

// EnsureRoom inserts the room unless one with the same hotel and number
// exists. It reports whether a row was created.
func (db *DB) EnsureRoom(ctx context.Context, room *models.Room) (bool, error) {
	now := time.Now()
	result, err := db.ExecContext(ctx,
		`INSERT INTO rooms (hotel_id, number, capacity, rate, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(hotel_id, number) DO NOTHING`,
		room.HotelID, room.Number, room.Capacity, room.Rate, models.RoomAvailable, now, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to ensure room: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

func (db *DB) GetRoom(ctx context.Context, id int64) (*models.Room, error) {
	r, err := scanRoom(db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "room", id)
	}
	return r, nil
}

// ListRoomsByHotel returns rooms ordered by number then id. hotelID 0
// means every hotel.
func (db *DB) ListRoomsByHotel(ctx context.Context, hotelID int64) ([]*models.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE (? = 0 OR hotel_id = ?) ORDER BY number, id`
	rows, err := db.QueryContext(ctx, query, hotelID, hotelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*models.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		rooms = append(rooms, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rooms: %w", err)
	}
	return rooms, nil
}

func (db *DB) UpdateRoomStatus(ctx context.Context, id int64, status string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE rooms SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update room status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: room %d", models.ErrNotFound, id)
	}
	return nil
}
