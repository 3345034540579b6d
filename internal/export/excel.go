package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"fixit/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	bookingsSheet = "Bookings"
	summarySheet  = "Summary"
)

var bookingHeaders = []string{
	"ID", "Created", "Status", "Service", "Category", "Customer", "Provider",
	"Scheduled", "Price", "Rating", "Review", "Completed", "Payment ID",
}

// statusFill is the row colour of each booking status.
var statusFill = map[models.BookingStatus]string{
	models.StatusPending:    "#FFEB9C",
	models.StatusAccepted:   "#DDEBF7",
	models.StatusInProgress: "#DDEBF7",
	models.StatusCompleted:  "#C6EFCE",
	models.StatusRejected:   "#FFC7CE",
	models.StatusCancelled:  "#FFC7CE",
}

// ExcelExporter writes booking reports as XLSX files into a directory.
type ExcelExporter struct {
	dir    string
	logger *zerolog.Logger
	now    func() time.Time
}

func NewExcelExporter(dir string, logger *zerolog.Logger) *ExcelExporter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ExcelExporter{dir: dir, logger: logger, now: time.Now}
}

// ExportBookings creates the report and returns the path of the saved file.
func (e *ExcelExporter) ExportBookings(ctx context.Context, bookings []*models.BookingDetails, from, to time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(bookingsSheet)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	if err := e.writeBookings(f, bookings, from, to); err != nil {
		return "", err
	}
	if err := e.writeSummary(f, bookings); err != nil {
		return "", err
	}
	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("bookings_%s_to_%s_%s.xlsx",
		from.Format("2006-01-02"), to.Format("2006-01-02"), e.now().Format("150405"))
	filePath := filepath.Join(e.dir, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Int("bookings", len(bookings)).Msg("Excel file created")
	return filePath, nil
}

func (e *ExcelExporter) writeBookings(f *excelize.File, bookings []*models.BookingDetails, from, to time.Time) error {
	_ = f.SetCellValue(bookingsSheet, "A1", fmt.Sprintf("Period: %s - %s", from.Format("02.01.2006"), to.Format("02.01.2006")))
	lastCol, _ := excelize.ColumnNumberToName(len(bookingHeaders))
	_ = f.MergeCell(bookingsSheet, "A1", lastCol+"1")
	title, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("error creating style: %w", err)
	}
	_ = f.SetCellStyle(bookingsSheet, "A1", "A1", title)

	header, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9D9D9"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("error creating style: %w", err)
	}
	for i, h := range bookingHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(bookingsSheet, cell, h)
	}
	_ = f.SetCellStyle(bookingsSheet, "A2", lastCol+"2", header)

	styles := make(map[models.BookingStatus]int)
	for i, b := range bookings {
		row := i + 3
		values := []any{
			b.ID,
			b.CreatedAt.Format("02.01.2006 15:04"),
			b.Status.String(),
			b.ServiceName,
			b.Category,
			b.UserName,
			b.ProviderName,
			formatTime(b.ScheduledTime),
			b.Price,
			ratingValue(b.Rating),
			b.Review,
			formatTime(b.CompletedAt),
			idValue(b.PaymentID),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(bookingsSheet, cell, v)
		}

		style, err := rowStyle(f, styles, b.Status)
		if err != nil {
			return err
		}
		first, _ := excelize.CoordinatesToCellName(1, row)
		last, _ := excelize.CoordinatesToCellName(len(bookingHeaders), row)
		_ = f.SetCellStyle(bookingsSheet, first, last, style)
	}

	_ = f.SetColWidth(bookingsSheet, "A", "A", 8)
	_ = f.SetColWidth(bookingsSheet, "B", lastCol, 18)
	_ = f.SetColWidth(bookingsSheet, "K", "K", 30)
	return nil
}

func rowStyle(f *excelize.File, cache map[models.BookingStatus]int, status models.BookingStatus) (int, error) {
	if id, ok := cache[status]; ok {
		return id, nil
	}
	color, ok := statusFill[status]
	if !ok {
		color = "#FFFFFF"
	}
	id, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "top", WrapText: true},
	})
	if err != nil {
		return 0, fmt.Errorf("error creating style: %w", err)
	}
	cache[status] = id
	return id, nil
}

func (e *ExcelExporter) writeSummary(f *excelize.File, bookings []*models.BookingDetails) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}

	counts := make(map[string]int)
	var completedValue float64
	for _, b := range bookings {
		counts[b.Status.String()]++
		if b.Status == models.StatusCompleted {
			completedValue += b.Price
		}
	}
	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)

	_ = f.SetCellValue(summarySheet, "A1", "Status")
	_ = f.SetCellValue(summarySheet, "B1", "Bookings")
	row := 2
	for _, s := range statuses {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), s)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), counts[s])
		row++
	}
	_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), "Total")
	_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), len(bookings))
	_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row+1), "Completed value")
	_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row+1), completedValue)
	_ = f.SetColWidth(summarySheet, "A", "A", 20)
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("02.01.2006 15:04")
}

func ratingValue(r *int) any {
	if r == nil {
		return ""
	}
	return *r
}

func idValue(id *int64) any {
	if id == nil {
		return ""
	}
	return *id
}
