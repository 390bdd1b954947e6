// Package export renders the ledger as an .xlsx workbook.
package export

import (
	"fmt"
	"io"

	"hotelledger/internal/models"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	BookingsSheet     = "Bookings"
	TransactionsSheet = "Transactions"
	timeLayout        = "2006-01-02 15:04"
)

var (
	bookingHeaders = []string{
		"ID", "Room", "Guest", "Email", "Phone", "Check-in", "Check-out",
		"Nights", "Party", "Status", "Extras", "Amount due",
	}
	transactionHeaders = []string{
		"ID", "Item", "Quantity", "Unit price", "Total", "Status", "Ordered", "Received",
	}
)

// statusFill colours a booking row by its status.
var statusFill = map[string]string{
	models.StatusActive:    "#DDEBF7",
	models.StatusCompleted: "#E2EFDA",
	models.StatusCancelled: "#F8CBAD",
}

// WriteLedger writes a workbook with a Bookings and a Transactions sheet.
func WriteLedger(w io.Writer, title string, bookings []*models.Booking, txs []*models.InventoryTransaction) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", BookingsSheet); err != nil {
		return fmt.Errorf("error renaming sheet: %w", err)
	}
	if _, err := f.NewSheet(TransactionsSheet); err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	_ = f.SetDocProps(&excelize.DocProperties{Title: title, Creator: "hotelledger"})

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#BDD7EE"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("error creating style: %w", err)
	}

	if err := writeHeaders(f, BookingsSheet, bookingHeaders, headerStyle); err != nil {
		return err
	}
	if err := writeHeaders(f, TransactionsSheet, transactionHeaders, headerStyle); err != nil {
		return err
	}

	statusStyles := make(map[string]int, len(statusFill))
	for status, color := range statusFill {
		id, err := f.NewStyle(&excelize.Style{Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1}})
		if err != nil {
			return fmt.Errorf("error creating style: %w", err)
		}
		statusStyles[status] = id
	}

	for i, b := range bookings {
		row := i + 2
		if err := writeRow(f, BookingsSheet, row, bookingRow(b)); err != nil {
			return err
		}
		if style, ok := statusStyles[b.Status]; ok {
			cell, _ := excelize.CoordinatesToCellName(10, row)
			_ = f.SetCellStyle(BookingsSheet, cell, cell, style)
		}
	}
	for i, t := range txs {
		if err := writeRow(f, TransactionsSheet, i+2, transactionRow(t)); err != nil {
			return err
		}
	}

	_ = f.SetColWidth(BookingsSheet, "C", "E", 24)
	_ = f.SetColWidth(TransactionsSheet, "B", "B", 24)
	_ = f.SetColWidth(TransactionsSheet, "G", "H", 18)
	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

func writeHeaders(f *excelize.File, sheet string, headers []string, style int) error {
	values := make([]interface{}, len(headers))
	for i, h := range headers {
		values[i] = h
	}
	if err := writeRow(f, sheet, 1, values); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	_ = f.SetCellStyle(sheet, "A1", last, style)
	return f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("error writing %s row %d: %w", sheet, row, err)
	}
	return nil
}

func bookingRow(b *models.Booking) []interface{} {
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
		b.RoomNumber,
		b.Guest.Name,
		b.Guest.Email,
		b.Guest.Phone,
		b.CheckIn.String(),
		b.CheckOut.String(),
		b.Nights(),
		b.PartySize,
		b.Status,
		extras.StringFixed(models.MoneyPlaces),
		amountDue,
	}
}

func transactionRow(t *models.InventoryTransaction) []interface{} {
	received := ""
	if t.CompletedAt != nil {
		received = t.CompletedAt.Format(timeLayout)
	}
	return []interface{}{
		t.ID,
		t.ItemName,
		t.Quantity,
		t.UnitPrice.StringFixed(models.MoneyPlaces),
		t.TotalCost.StringFixed(models.MoneyPlaces),
		t.Status,
		t.CreatedAt.Format(timeLayout),
		received,
	}
}
