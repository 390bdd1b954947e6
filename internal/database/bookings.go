package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"hotelledger/internal/models"

	"github.com/shopspring/decimal"
)

const bookingSelect = `SELECT b.id, b.room_id, b.hotel_id, r.number, b.guest_name, b.guest_email, b.guest_phone,
        b.check_in, b.check_out, b.party_size, b.rate, b.status, b.amount_due,
        b.created_at, b.updated_at, b.cancelled_at, b.completed_at, b.version
    FROM bookings b JOIN rooms r ON r.id = b.room_id`

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b                 models.Booking
		checkIn, checkOut string
	)
	err := row.Scan(
		&b.ID, &b.RoomID, &b.HotelID, &b.RoomNumber, &b.Guest.Name, &b.Guest.Email, &b.Guest.Phone,
		&checkIn, &checkOut, &b.PartySize, &b.Rate, &b.Status, &b.AmountDue,
		&b.CreatedAt, &b.UpdatedAt, &b.CancelledAt, &b.CompletedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}
	if b.CheckIn, err = parseDay(checkIn); err != nil {
		return nil, err
	}
	if b.CheckOut, err = parseDay(checkOut); err != nil {
		return nil, err
	}
	b.Extras = []models.Extra{}
	return &b, nil
}

// CreateBookingWithLock re-checks the room for overlapping Active bookings
// and inserts inside one transaction. Returns models.ErrConflict on overlap.
func (db *DB) CreateBookingWithLock(ctx context.Context, booking *models.Booking) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		// 1. Check overlap inside transaction
		var overlapping int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM bookings
             WHERE room_id = ? AND status = ? AND check_in < ? AND ? < check_out`,
			booking.RoomID, models.StatusActive, booking.CheckOut.String(), booking.CheckIn.String(),
		).Scan(&overlapping)
		if err != nil {
			return fmt.Errorf("failed to check overlap in tx: %w", err)
		}
		if overlapping > 0 {
			return fmt.Errorf("%w: room %d is booked within %s..%s",
				models.ErrConflict, booking.RoomID, booking.CheckIn, booking.CheckOut)
		}

		// 2. Create booking
		now := time.Now()
		result, err := tx.ExecContext(ctx,
			`INSERT INTO bookings (
                room_id, hotel_id, guest_name, guest_email, guest_phone,
                check_in, check_out, party_size, rate, status, created_at, updated_at, version
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			booking.RoomID, booking.HotelID, booking.Guest.Name, booking.Guest.Email, booking.Guest.Phone,
			booking.CheckIn.String(), booking.CheckOut.String(), booking.PartySize, booking.Rate.String(),
			models.StatusActive, now, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert booking in tx: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id in tx: %w", err)
		}
		booking.ID = id
		booking.Status = models.StatusActive
		booking.CreatedAt = now
		booking.UpdatedAt = now
		booking.Version = 1
		if booking.Extras == nil {
			booking.Extras = []models.Extra{}
		}
		return nil
	})
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	b, err := scanBooking(db.QueryRowContext(ctx, bookingSelect+` WHERE b.id = ?`, id))
	if err != nil {
		return nil, notFound(err, "booking", id)
	}
	if err := db.attachExtras(ctx, db, []*models.Booking{b}); err != nil {
		return nil, err
	}
	return b, nil
}

// ListBookings returns every booking of the hotel, history included.
// hotelID 0 means every hotel.
func (db *DB) ListBookings(ctx context.Context, hotelID int64) ([]*models.Booking, error) {
	return db.queryBookings(ctx,
		bookingSelect+` WHERE (? = 0 OR b.hotel_id = ?) ORDER BY b.check_in, b.id`,
		hotelID, hotelID)
}

// ListActiveBookings is used to rebuild the interval index on start.
func (db *DB) ListActiveBookings(ctx context.Context) ([]*models.Booking, error) {
	return db.queryBookings(ctx,
		bookingSelect+` WHERE b.status = ? ORDER BY b.room_id, b.check_in, b.id`,
		models.StatusActive)
}

func (db *DB) ListActiveBookingsForRoom(ctx context.Context, roomID int64) ([]*models.Booking, error) {
	return db.queryBookings(ctx,
		bookingSelect+` WHERE b.room_id = ? AND b.status = ? ORDER BY b.check_in, b.id`,
		roomID, models.StatusActive)
}

// ListActiveBookingsCovering returns Active bookings of the hotel whose
// [check_in, check_out) contains day.
func (db *DB) ListActiveBookingsCovering(ctx context.Context, hotelID int64, day models.Day) ([]*models.Booking, error) {
	d := day.String()
	return db.queryBookings(ctx,
		bookingSelect+` WHERE b.hotel_id = ? AND b.status = ? AND b.check_in <= ? AND ? < b.check_out
        ORDER BY r.number, b.id`,
		hotelID, models.StatusActive, d, d)
}

func (db *DB) queryBookings(ctx context.Context, query string, args ...any) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}

	bookings := []*models.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}

	// rows must be closed first: the pool holds a single connection
	if err := db.attachExtras(ctx, db, bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

func (db *DB) attachExtras(ctx context.Context, q querier, bookings []*models.Booking) error {
	if len(bookings) == 0 {
		return nil
	}
	byID := make(map[int64]*models.Booking, len(bookings))
	placeholders := make([]string, 0, len(bookings))
	args := make([]any, 0, len(bookings))
	for _, b := range bookings {
		byID[b.ID] = b
		placeholders = append(placeholders, "?")
		args = append(args, b.ID)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT id, booking_id, description, amount, created_at FROM booking_extras
         WHERE booking_id IN (`+strings.Join(placeholders, ",")+`) ORDER BY id`, args...)
	if err != nil {
		return fmt.Errorf("failed to query booking extras: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e         models.Extra
			bookingID int64
		)
		if err := rows.Scan(&e.ID, &bookingID, &e.Description, &e.Amount, &e.CreatedAt); err != nil {
			return fmt.Errorf("failed to scan booking extra: %w", err)
		}
		if b, ok := byID[bookingID]; ok {
			b.Extras = append(b.Extras, e)
		}
	}
	return rows.Err()
}

// terminalOrMissing explains why a guarded update touched no rows.
func terminalOrMissing(ctx context.Context, q querier, id int64) error {
	var status string
	err := q.QueryRowContext(ctx, `SELECT status FROM bookings WHERE id = ?`, id).Scan(&status)
	if err != nil {
		return notFound(err, "booking", id)
	}
	return fmt.Errorf("%w: booking %d is %s", models.ErrAlreadyTerminal, id, status)
}

// CancelBooking moves an Active booking to Cancelled. The status guard in
// the UPDATE makes concurrent terminal transitions apply at most once.
func (db *DB) CancelBooking(ctx context.Context, id int64) (*models.Booking, error) {
	now := time.Now()
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE bookings SET status = ?, cancelled_at = ?, updated_at = ?, version = version + 1
             WHERE id = ? AND status = ?`,
			models.StatusCancelled, now, now, id, models.StatusActive)
		if err != nil {
			return fmt.Errorf("failed to cancel booking: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n == 0 {
			return terminalOrMissing(ctx, tx, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return db.GetBooking(ctx, id)
}

// CompleteBooking moves an Active booking to Completed and stores the
// amount due computed at checkout.
func (db *DB) CompleteBooking(ctx context.Context, id int64, amountDue decimal.Decimal) (*models.Booking, error) {
	now := time.Now()
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE bookings SET status = ?, amount_due = ?, completed_at = ?, updated_at = ?, version = version + 1
             WHERE id = ? AND status = ?`,
			models.StatusCompleted, amountDue.StringFixedBank(models.MoneyPlaces), now, now, id, models.StatusActive)
		if err != nil {
			return fmt.Errorf("failed to complete booking: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n == 0 {
			return terminalOrMissing(ctx, tx, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return db.GetBooking(ctx, id)
}

// AddBookingExtra appends a charge to an Active booking. Extras are frozen
// once the booking leaves Active.
func (db *DB) AddBookingExtra(ctx context.Context, bookingID int64, extra *models.Extra) error {
	now := time.Now()
	return db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE bookings SET updated_at = ?, version = version + 1 WHERE id = ? AND status = ?`,
			now, bookingID, models.StatusActive)
		if err != nil {
			return fmt.Errorf("failed to touch booking: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n == 0 {
			return terminalOrMissing(ctx, tx, bookingID)
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO booking_extras (booking_id, description, amount, created_at) VALUES (?, ?, ?, ?)`,
			bookingID, extra.Description, extra.Amount, now)
		if err != nil {
			return fmt.Errorf("failed to insert booking extra: %w", err)
		}
		if extra.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		extra.CreatedAt = now
		return nil
	})
}
