package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"hotelledger/internal/export"
	"hotelledger/internal/models"
	"hotelledger/internal/service"

	"github.com/shopspring/decimal"
)

// RoomView is the availability search result row.
type RoomView struct {
	RoomID     int64           `json:"room_id"`
	RoomNumber string          `json:"room_number"`
	Rate       decimal.Decimal `json:"rate"`
	Capacity   int             `json:"capacity"`
}

func roomViews(rooms []*models.Room) []RoomView {
	out := make([]RoomView, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, RoomView{RoomID: r.ID, RoomNumber: r.Number, Rate: r.Rate, Capacity: r.Capacity})
	}
	return out
}

type availabilityRequest struct {
	HotelID     int64      `json:"hotel_id"`
	Start       models.Day `json:"start"`
	End         models.Day `json:"end"`
	MinCapacity int        `json:"min_capacity"`
}

type registerRoomRequest struct {
	HotelID  int64           `json:"hotel_id"`
	Number   string          `json:"number"`
	Capacity int             `json:"capacity"`
	Rate     decimal.Decimal `json:"rate"`
}

type maintenanceRequest struct {
	Enabled bool `json:"enabled"`
}

type checkoutRequest struct {
	ExpectedAmount *decimal.Decimal `json:"expected_amount,omitempty"`
}

type extraRequest struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

type addItemRequest struct {
	HotelID   int64           `json:"hotel_id"`
	Name      string          `json:"name"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type placeOrderRequest struct {
	Quantity int64 `json:"quantity"`
}

func decodeBody(r *http.Request, dst any) error {
	return decodeJSONBody(r, dst, false)
}

// decodeOptionalBody leaves dst untouched when the body is empty, whatever
// the request says about its length.
func decodeOptionalBody(r *http.Request, dst any) error {
	return decodeJSONBody(r, dst, true)
}

func decodeJSONBody(r *http.Request, dst any, optional bool) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	err := decoder.Decode(dst)
	if optional && errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", models.ErrValidation, err)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", models.ErrValidation, r.PathValue("id"))
	}
	return id, nil
}

func queryInt(r *http.Request, name string, required bool) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		if required {
			return 0, fmt.Errorf("%w: %s is required", models.ErrValidation, name)
		}
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", models.ErrValidation, name, raw)
	}
	return v, nil
}

func queryDay(r *http.Request, name string) (models.Day, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, fmt.Errorf("%w: %s is required", models.ErrValidation, name)
	}
	return models.ParseDay(raw)
}

func parseAvailability(r *http.Request) (availabilityRequest, error) {
	var req availabilityRequest
	var err error
	if req.HotelID, err = queryInt(r, "hotel_id", true); err != nil {
		return req, err
	}
	if req.Start, err = queryDay(r, "start"); err != nil {
		return req, err
	}
	if req.End, err = queryDay(r, "end"); err != nil {
		return req, err
	}
	capacity, err := queryInt(r, "min_capacity", false)
	if err != nil {
		return req, err
	}
	req.MinCapacity = int(capacity)
	return req, nil
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	req, err := parseAvailability(r)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	rooms, err := s.svc.Availability.FindAvailable(r.Context(), req.HotelID, req.Start, req.End, req.MinCapacity)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": roomViews(rooms)})
}

func (s *HTTPServer) handleRegisterRoom(w http.ResponseWriter, r *http.Request) {
	var req registerRoomRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	room := &models.Room{HotelID: req.HotelID, Number: strings.TrimSpace(req.Number), Capacity: req.Capacity, Rate: req.Rate}
	if err := s.svc.Rooms.Register(r.Context(), room); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

func (s *HTTPServer) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	var req maintenanceRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	room, err := s.svc.Rooms.SetMaintenance(r.Context(), id, req.Enabled)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (s *HTTPServer) handleRoomStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	status, err := s.svc.Rooms.RoomStatus(r.Context(), id)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"room_id": id, "status": status})
}

func (s *HTTPServer) handleListRooms(w http.ResponseWriter, r *http.Request) {
	hotelID, err := pathID(r)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	rooms, err := s.svc.Rooms.ListRooms(r.Context(), hotelID)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	if rooms == nil {
		rooms = []*models.Room{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req service.CreateBookingRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	booking, err := s.svc.Bookings.CreateBooking(r.Context(), req)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	hotelID, err := queryInt(r, "hotel_id", false)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	bookings, err := s.svc.Bookings.ListBookings(r.Context(), hotelID)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	booking, err := s.svc.Bookings.GetBooking(r.Context(), id)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	booking, err := s.svc.Bookings.CancelBooking(r.Context(), id)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleCheckout(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	var req checkoutRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	var bill *models.BillingResult
	if req.ExpectedAmount != nil {
		bill, err = s.svc.Bookings.ConfirmCheckout(r.Context(), id, *req.ExpectedAmount)
	} else {
		bill, err = s.svc.Bookings.Checkout(r.Context(), id)
	}
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bill)
}

func (s *HTTPServer) handleAddExtra(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	var req extraRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	booking, err := s.svc.Bookings.AddExtra(r.Context(), id, req.Description, req.Amount)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleBill(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	bill, err := s.svc.Bookings.GetBill(r.Context(), id)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bill)
}

func (s *HTTPServer) handleCurrentGuests(w http.ResponseWriter, r *http.Request) {
	hotelID, err := pathID(r)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	guests, err := s.svc.Bookings.CurrentGuests(r.Context(), hotelID)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": guests})
}

func (s *HTTPServer) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	item, err := s.svc.Inventory.AddItem(r.Context(), req.HotelID, req.Name, req.Quantity, req.UnitPrice)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *HTTPServer) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	if err := s.svc.Inventory.DeleteItem(r.Context(), id); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

func (s *HTTPServer) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	var req placeOrderRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	tx, err := s.svc.Inventory.PlaceOrder(r.Context(), id, req.Quantity)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *HTTPServer) handleReceiveOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	tx, err := s.svc.Inventory.ReceiveOrder(r.Context(), id)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *HTTPServer) handleListItems(w http.ResponseWriter, r *http.Request) {
	hotelID, err := pathID(r)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	items, err := s.svc.Inventory.ListItems(r.Context(), hotelID)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *HTTPServer) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	hotelID, err := pathID(r)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	txs, err := s.svc.Inventory.ListTransactions(r.Context(), hotelID)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	hotelID, err := queryInt(r, "hotel_id", true)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	bookings, err := s.svc.Bookings.ListBookings(r.Context(), hotelID)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	txs, err := s.svc.Inventory.ListTransactions(r.Context(), hotelID)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteLedger(&buf, fmt.Sprintf("Hotel %d ledger", hotelID), bookings, txs); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="ledger_hotel_%d.xlsx"`, hotelID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// failedTaskView is a failed mirror task without its payload.
type failedTaskView struct {
	ID          int64      `json:"id"`
	TaskType    string     `json:"task_type"`
	EntityID    int64      `json:"entity_id"`
	RetryCount  int        `json:"retry_count"`
	LastError   string     `json:"last_error"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

func (s *HTTPServer) handleFailedMirrorTasks(w http.ResponseWriter, r *http.Request) {
	views := []failedTaskView{}
	if s.svc.Outbox == nil {
		writeJSON(w, http.StatusOK, map[string]any{"tasks": views})
		return
	}
	tasks, err := s.svc.Outbox.GetFailedSyncTasks(r.Context())
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	for _, t := range tasks {
		v := failedTaskView{
			ID:          t.ID,
			TaskType:    t.TaskType,
			EntityID:    t.EntityID,
			RetryCount:  t.RetryCount,
			CreatedAt:   t.CreatedAt,
			ProcessedAt: t.ProcessedAt,
		}
		if t.LastError != nil {
			v.LastError = *t.LastError
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": views})
}
