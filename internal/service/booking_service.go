package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hotelledger/internal/billing"
	"hotelledger/internal/domain"
	"hotelledger/internal/events"
	"hotelledger/internal/interval"
	"hotelledger/internal/keylock"
	"hotelledger/internal/metrics"
	"hotelledger/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type CreateBookingRequest struct {
	RoomID    int64               `json:"room_id"`
	CheckIn   models.Day          `json:"check_in"`
	CheckOut  models.Day          `json:"check_out"`
	PartySize int                 `json:"party_size"`
	Guest     models.GuestContact `json:"guest"`
}

// BookingService runs the booking state machine: Active, then Cancelled or
// Completed. Every transition commits to storage before the interval index
// changes, inside the room's critical section.
type BookingService struct {
	rooms          domain.RoomRepository
	repo           domain.BookingRepository
	index          *interval.Index
	locks          *keylock.Locker
	projector      *OccupancyProjector
	eventBus       domain.EventPublisher
	mirror         domain.MirrorQueue
	maxBookingDays int
	now            func() time.Time
	logger         *zerolog.Logger
}

func NewBookingService(
	rooms domain.RoomRepository,
	repo domain.BookingRepository,
	index *interval.Index,
	locks *keylock.Locker,
	projector *OccupancyProjector,
	eventBus domain.EventPublisher,
	mirror domain.MirrorQueue,
	maxBookingDays int,
	logger *zerolog.Logger,
) *BookingService {
	if maxBookingDays <= 0 {
		maxBookingDays = models.DefaultMaxBookingDays
	}
	return &BookingService{
		rooms:          rooms,
		repo:           repo,
		index:          index,
		locks:          locks,
		projector:      projector,
		eventBus:       eventBus,
		mirror:         mirror,
		maxBookingDays: maxBookingDays,
		now:            time.Now,
		logger:         logger,
	}
}

func (s *BookingService) SetClock(now func() time.Time) {
	s.now = now
}

// Restore rebuilds the interval index from Active bookings in storage.
func (s *BookingService) Restore(ctx context.Context) (int, error) {
	active, err := s.repo.ListActiveBookings(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load active bookings: %w", err)
	}
	skipped := s.index.Rebuild(active)
	for _, id := range skipped {
		s.logger.Error().Int64("booking_id", id).Msg("Active booking overlaps another, not indexed")
	}
	return len(active) - len(skipped), nil
}

func (s *BookingService) validateRequest(req CreateBookingRequest) error {
	if err := validateRange(req.CheckIn, req.CheckOut, models.Today(s.now())); err != nil {
		return err
	}
	if nights := int(req.CheckOut - req.CheckIn); nights > s.maxBookingDays {
		return fmt.Errorf("%w: stay of %d nights exceeds %d", models.ErrValidation, nights, s.maxBookingDays)
	}
	if req.PartySize <= 0 {
		return fmt.Errorf("%w: party size must be positive", models.ErrValidation)
	}
	return req.Guest.Validate()
}

// CreateBooking books the room for [CheckIn, CheckOut). Exactly one of two
// concurrent requests for overlapping dates on a room succeeds; the other
// gets models.ErrConflict.
func (s *BookingService) CreateBooking(ctx context.Context, req CreateBookingRequest) (*models.Booking, error) {
	if err := s.validateRequest(req); err != nil {
		metrics.IncBooking("rejected")
		return nil, err
	}

	room, err := s.rooms.GetRoom(ctx, req.RoomID)
	if err != nil {
		return nil, err
	}
	// Проверяем вместимость до проверки пересечений
	if req.PartySize > room.Capacity {
		metrics.IncBooking("rejected")
		return nil, fmt.Errorf("%w: party of %d exceeds room capacity %d", models.ErrValidation, req.PartySize, room.Capacity)
	}

	booking := &models.Booking{
		RoomID:     room.ID,
		HotelID:    room.HotelID,
		RoomNumber: room.Number,
		Guest:      req.Guest,
		CheckIn:    req.CheckIn,
		CheckOut:   req.CheckOut,
		PartySize:  req.PartySize,
		Rate:       room.Rate,
	}

	unlock := s.locks.Lock(keylock.RoomKey(room.ID))
	defer unlock()

	// Maintenance is read again under the lock, it may have changed.
	room, err = s.rooms.GetRoom(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	if room.InMaintenance() {
		metrics.IncBooking("conflict")
		return nil, fmt.Errorf("%w: room %s is under maintenance", models.ErrConflict, room.Number)
	}
	if s.index.Occupied(room.ID, req.CheckIn, req.CheckOut) {
		metrics.IncBooking("conflict")
		s.logger.Debug().Int64("room_id", room.ID).Str("check_in", req.CheckIn.String()).Msg("Booking conflict")
		return nil, fmt.Errorf("%w: room %s is booked within %s..%s", models.ErrConflict, room.Number, req.CheckIn, req.CheckOut)
	}

	if err := s.repo.CreateBookingWithLock(ctx, booking); err != nil {
		if errors.Is(err, models.ErrConflict) {
			metrics.IncBooking("conflict")
		} else {
			s.logger.Error().Err(err).Int64("room_id", room.ID).Msg("Failed to persist booking")
		}
		return nil, err
	}
	if err := s.index.Insert(booking.RoomID, booking.ID, booking.CheckIn, booking.CheckOut); err != nil {
		// Storage accepted the booking, so the index follows storage.
		s.logger.Error().Err(err).Int64("booking_id", booking.ID).Msg("Interval index out of step with storage")
	}
	s.refreshRoom(ctx, booking.RoomID)
	unlock()

	metrics.IncBooking("created")
	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("room_id", booking.RoomID).
		Str("check_in", booking.CheckIn.String()).
		Str("check_out", booking.CheckOut.String()).
		Msg("Booking created")
	s.afterChange(ctx, events.EventBookingCreated, booking)
	return booking, nil
}

// lockActive takes the booking's lock and loads it, failing unless it is
// Active. The returned func releases the lock.
func (s *BookingService) lockActive(ctx context.Context, id int64) (*models.Booking, func(), error) {
	unlock := s.locks.Lock(keylock.BookingKey(id))
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	if !b.IsActive() {
		unlock()
		return nil, nil, fmt.Errorf("%w: booking %d is %s", models.ErrAlreadyTerminal, id, b.Status)
	}
	return b, unlock, nil
}

// CancelBooking moves an Active booking to Cancelled and frees its dates.
func (s *BookingService) CancelBooking(ctx context.Context, id int64) (*models.Booking, error) {
	b, unlockBooking, err := s.lockActive(ctx, id)
	if err != nil {
		s.countTerminal(err)
		return nil, err
	}
	defer unlockBooking()

	unlockRoom := s.locks.Lock(keylock.RoomKey(b.RoomID))
	defer unlockRoom()

	cancelled, err := s.repo.CancelBooking(ctx, id)
	if err != nil {
		s.countTerminal(err)
		return nil, err
	}
	s.index.Remove(b.RoomID, id)
	s.refreshRoom(ctx, b.RoomID)
	unlockRoom()
	unlockBooking()

	metrics.IncBooking("cancelled")
	s.logger.Info().Int64("booking_id", id).Int64("room_id", b.RoomID).Msg("Booking cancelled")
	s.afterChange(ctx, events.EventBookingCancelled, cancelled)
	return cancelled, nil
}

// Checkout bills an Active booking, stores the amount with the Completed
// booking and frees its dates.
func (s *BookingService) Checkout(ctx context.Context, id int64) (*models.BillingResult, error) {
	return s.checkout(ctx, id, nil)
}

// ConfirmCheckout is Checkout guarded by the amount the guest was shown. A
// different computed amount fails with models.ErrValidation and leaves the
// booking Active.
func (s *BookingService) ConfirmCheckout(ctx context.Context, id int64, expected decimal.Decimal) (*models.BillingResult, error) {
	return s.checkout(ctx, id, &expected)
}

func (s *BookingService) checkout(ctx context.Context, id int64, expected *decimal.Decimal) (*models.BillingResult, error) {
	b, unlockBooking, err := s.lockActive(ctx, id)
	if err != nil {
		s.countTerminal(err)
		return nil, err
	}
	defer unlockBooking()

	bill, err := billing.ComputeBill(b, b.Rate)
	if err != nil {
		return nil, err
	}
	if expected != nil && !billing.SameAmount(*expected, bill.AmountDue) {
		return nil, fmt.Errorf("%w: expected amount %s does not match amount due %s",
			models.ErrValidation, expected.StringFixed(models.MoneyPlaces), bill.AmountDue.StringFixed(models.MoneyPlaces))
	}

	unlockRoom := s.locks.Lock(keylock.RoomKey(b.RoomID))
	defer unlockRoom()

	completed, err := s.repo.CompleteBooking(ctx, id, bill.AmountDue)
	if err != nil {
		s.countTerminal(err)
		return nil, err
	}
	s.index.Remove(b.RoomID, id)
	s.refreshRoom(ctx, b.RoomID)
	unlockRoom()
	unlockBooking()

	metrics.IncBooking("completed")
	s.logger.Info().
		Int64("booking_id", id).
		Str("amount_due", bill.AmountDue.StringFixed(models.MoneyPlaces)).
		Msg("Booking checked out")
	s.afterChange(ctx, events.EventBookingCheckedOut, completed)
	return bill, nil
}

// AddExtra appends a charge to an Active booking.
func (s *BookingService) AddExtra(ctx context.Context, bookingID int64, description string, amount decimal.Decimal) (*models.Booking, error) {
	extra := &models.Extra{Description: description, Amount: amount}
	if err := extra.Validate(); err != nil {
		return nil, err
	}

	_, unlock, err := s.lockActive(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := s.repo.AddBookingExtra(ctx, bookingID, extra); err != nil {
		return nil, err
	}
	b, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	unlock()

	s.logger.Info().Int64("booking_id", bookingID).Str("amount", amount.String()).Msg("Extra added")
	s.afterChange(ctx, events.EventBookingExtraAdded, b)
	return b, nil
}

// GetBill prices a booking without changing it. A Completed booking
// reports the amount stored at checkout.
func (s *BookingService) GetBill(ctx context.Context, id int64) (*models.BillingResult, error) {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	bill, err := billing.ComputeBill(b, b.Rate)
	if err != nil {
		return nil, err
	}
	if b.AmountDue.Valid {
		bill.AmountDue = b.AmountDue.Decimal
	}
	return bill, nil
}

func (s *BookingService) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

// ListBookings returns all bookings of a hotel, history included.
func (s *BookingService) ListBookings(ctx context.Context, hotelID int64) ([]*models.Booking, error) {
	return s.repo.ListBookings(ctx, hotelID)
}

// CurrentGuests lists Active bookings of the hotel that cover today.
func (s *BookingService) CurrentGuests(ctx context.Context, hotelID int64) ([]*models.Booking, error) {
	if hotelID <= 0 {
		return nil, fmt.Errorf("%w: hotel_id must be positive", models.ErrValidation)
	}
	return s.repo.ListActiveBookingsCovering(ctx, hotelID, models.Today(s.now()))
}

func (s *BookingService) refreshRoom(ctx context.Context, roomID int64) {
	if s.projector == nil {
		return
	}
	if _, err := s.projector.refreshLocked(ctx, roomID); err != nil {
		s.logger.Error().Err(err).Int64("room_id", roomID).Msg("Failed to refresh room status")
	}
}

func (s *BookingService) countTerminal(err error) {
	if errors.Is(err, models.ErrAlreadyTerminal) {
		metrics.IncBooking("already_terminal")
	}
}

// afterChange publishes the event and queues the sheets mirror. Failures
// here never undo the committed transition.
func (s *BookingService) afterChange(ctx context.Context, eventType string, b *models.Booking) {
	if s.eventBus != nil {
		if err := s.eventBus.PublishJSON(eventType, events.NewBookingPayload(b)); err != nil {
			s.logger.Warn().Err(err).Str("event", eventType).Msg("Failed to publish event")
		}
	}
	if s.mirror != nil {
		if err := s.mirror.EnqueueBooking(ctx, b); err != nil {
			s.logger.Error().Err(err).Int64("booking_id", b.ID).Msg("Failed to enqueue booking mirror")
		}
	}
}
