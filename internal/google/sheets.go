package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"hotelledger/internal/models"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	bookingsSheet     = "Bookings"
	transactionsSheet = "Transactions"
	timeLayout        = "2006-01-02 15:04:05"
)

var errRowNotFound = errors.New("row not found")

// lastColumn is the rightmost column written for each sheet.
var lastColumn = map[string]string{
	bookingsSheet:     "M",
	transactionsSheet: "J",
}

// SheetsService mirrors bookings and inventory transactions into one
// spreadsheet, one row per entity keyed by the ID in column A.
type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
	// rowCache maps sheet name -> entity id -> 1-based row number.
	rowCache map[string]map[int64]int
	cacheMu  sync.RWMutex
}

func NewSheetsService(ctx context.Context, credentialsFile, spreadsheetID string) (*SheetsService, error) {
	// Читаем файл учетных данных сервисного аккаунта
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}

	return newSheetsService(srv, spreadsheetID), nil
}

func newSheetsService(srv *sheets.Service, spreadsheetID string) *SheetsService {
	return &SheetsService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		rowCache:      make(map[string]map[int64]int),
	}
}

// TestConnection проверяет подключение к таблице
func (s *SheetsService) TestConnection(ctx context.Context) error {
	if _, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, bookingsSheet+"!A1").Context(ctx).Do(); err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// WarmUpCache reloads the id -> row mapping of both sheets.
func (s *SheetsService) WarmUpCache(ctx context.Context) error {
	for _, sheet := range []string{bookingsSheet, transactionsSheet} {
		resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, sheet+"!A:A").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("warm up %s: %w", sheet, err)
		}

		rows := make(map[int64]int)
		for i, row := range resp.Values {
			if id, ok := cellID(row); ok {
				rows[id] = i + 1 // Values are zero-based; sheet rows are 1-based
			}
		}

		s.cacheMu.Lock()
		s.rowCache[sheet] = rows
		s.cacheMu.Unlock()
	}
	return nil
}

// RefreshCacheEvery warms the cache now and then on every tick until ctx ends.
func (s *SheetsService) RefreshCacheEvery(ctx context.Context, interval time.Duration, onErr func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		wctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if err := s.WarmUpCache(wctx); err != nil && onErr != nil {
			onErr(err)
		}
		cancel()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *SheetsService) UpsertBooking(ctx context.Context, b *models.Booking) error {
	if b == nil {
		return fmt.Errorf("booking is nil")
	}
	return s.upsertRow(ctx, bookingsSheet, b.ID, bookingRowValues(b))
}

func (s *SheetsService) UpsertTransaction(ctx context.Context, tx *models.InventoryTransaction) error {
	if tx == nil {
		return fmt.Errorf("transaction is nil")
	}
	return s.upsertRow(ctx, transactionsSheet, tx.ID, transactionRowValues(tx))
}

// upsertRow updates an existing row or appends a new one if not found.
func (s *SheetsService) upsertRow(ctx context.Context, sheet string, id int64, values []interface{}) error {
	rowIdx, err := s.findRow(ctx, sheet, id)
	if errors.Is(err, errRowNotFound) {
		return s.appendRow(ctx, sheet, id, values)
	}
	if err != nil {
		return err
	}

	rangeData := fmt.Sprintf("%s!A%d:%s%d", sheet, rowIdx, lastColumn[sheet], rowIdx)
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData, &sheets.ValueRange{
		Values: [][]interface{}{values},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s row %d: %w", sheet, rowIdx, err)
	}
	return nil
}

func (s *SheetsService) appendRow(ctx context.Context, sheet string, id int64, values []interface{}) error {
	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, sheet+"!A:A", &sheets.ValueRange{
		Values: [][]interface{}{values},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append %s row: %w", sheet, err)
	}

	if resp.Updates != nil {
		if row, ok := rowFromRange(resp.Updates.UpdatedRange); ok {
			s.setCachedRow(sheet, id, row)
		}
	}
	return nil
}

func (s *SheetsService) findRow(ctx context.Context, sheet string, id int64) (int, error) {
	if id == 0 {
		return 0, fmt.Errorf("id is required")
	}
	if row, ok := s.getCachedRow(sheet, id); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, sheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("scan %s ids: %w", sheet, err)
	}
	for i, row := range resp.Values {
		if got, ok := cellID(row); ok && got == id {
			s.setCachedRow(sheet, id, i+1)
			return i + 1, nil
		}
	}
	return 0, errRowNotFound
}

func (s *SheetsService) getCachedRow(sheet string, id int64) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[sheet][id]
	return row, ok
}

func (s *SheetsService) setCachedRow(sheet string, id int64, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.rowCache[sheet] == nil {
		s.rowCache[sheet] = make(map[int64]int)
	}
	s.rowCache[sheet][id] = row
}

func cellID(row []interface{}) (int64, bool) {
	if len(row) == 0 {
		return 0, false
	}
	switch v := row[0].(type) {
	case float64:
		return int64(v), v > 0
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return id, err == nil && id > 0
	}
	return 0, false
}

// rowFromRange extracts the first row number from e.g. "Bookings!A10:M10".
func rowFromRange(r string) (int, bool) {
	if i := strings.LastIndexByte(r, '!'); i >= 0 {
		r = r[i+1:]
	}
	if i := strings.IndexByte(r, ':'); i >= 0 {
		r = r[:i]
	}
	digits := strings.TrimLeft(r, "ABCDEFGHIJKLMNOPQRSTUVWXYZ$")
	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func bookingRowValues(b *models.Booking) []interface{} {
	extras := decimal.Zero
	for _, e := range b.Extras {
		extras = extras.Add(e.Amount)
	}
	amountDue := ""
	if b.AmountDue.Valid {
		amountDue = b.AmountDue.Decimal.StringFixed(models.MoneyPlaces)
	}
	return []interface{}{
		b.ID,
		b.HotelID,
		b.RoomNumber,
		b.Guest.Name,
		b.Guest.Email,
		b.Guest.Phone,
		b.CheckIn.String(),
		b.CheckOut.String(),
		b.PartySize,
		b.Status,
		extras.StringFixed(models.MoneyPlaces),
		amountDue,
		b.UpdatedAt.Format(timeLayout),
	}
}

func transactionRowValues(t *models.InventoryTransaction) []interface{} {
	completed := ""
	if t.CompletedAt != nil {
		completed = t.CompletedAt.Format(timeLayout)
	}
	return []interface{}{
		t.ID,
		t.HotelID,
		t.ItemID,
		t.ItemName,
		t.Quantity,
		t.UnitPrice.StringFixed(models.MoneyPlaces),
		t.TotalCost.StringFixed(models.MoneyPlaces),
		t.Status,
		t.CreatedAt.Format(timeLayout),
		completed,
	}
}
