// Package export renders tenant agendas as Excel workbooks.
package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"agendazap/internal/domain"
	"agendazap/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	sheetName     = "Agenda"
	headerRow     = 2
	firstRow      = 3
	maxExportDays = 62
)

type Source interface {
	GetTenant(ctx context.Context, id int64) (*models.Tenant, error)
	GetProfessionalsByTenant(ctx context.Context, tenantID int64) ([]*models.Professional, error)
	GetAppointmentsByTenant(ctx context.Context, tenantID int64, start, end time.Time) ([]*models.Appointment, error)
}

type Exporter struct {
	source Source
	loc    *time.Location
	dir    string
	logger *zerolog.Logger
}

func NewExporter(source Source, loc *time.Location, dir string, logger *zerolog.Logger) *Exporter {
	if loc == nil {
		loc = time.UTC
	}
	return &Exporter{source: source, loc: loc, dir: dir, logger: logger}
}

// WriteSchedule streams the tenant's agenda for the days from..to inclusive.
func (e *Exporter) WriteSchedule(ctx context.Context, w io.Writer, tenantID int64, from, to time.Time) error {
	f, err := e.build(ctx, tenantID, from, to)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

// SaveSchedule writes the workbook under the export directory and returns its path.
func (e *Exporter) SaveSchedule(ctx context.Context, tenantID int64, from, to time.Time) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f, err := e.build(ctx, tenantID, from, to)
	if err != nil {
		return "", err
	}
	defer f.Close()

	fileName := fmt.Sprintf("agenda_%d_%s_to_%s.xlsx", tenantID, from.Format(models.DateLayout), to.Format(models.DateLayout))
	filePath := filepath.Join(e.dir, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Msg("Excel file created")
	return filePath, nil
}

func (e *Exporter) build(ctx context.Context, tenantID int64, from, to time.Time) (*excelize.File, error) {
	from = dayStart(from, e.loc)
	to = dayStart(to, e.loc)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: to is before from", domain.ErrValidation)
	}
	if to.Sub(from) > maxExportDays*24*time.Hour {
		return nil, fmt.Errorf("%w: export range is limited to %d days", domain.ErrValidation, maxExportDays)
	}

	tenant, err := e.source.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	profs, err := e.source.GetProfessionalsByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	appts, err := e.source.GetAppointmentsByTenant(ctx, tenantID, from, to.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	return ScheduleWorkbook(tenant.Name, profs, appts, from, to, e.loc)
}

// ScheduleWorkbook lays the agenda out with one row per professional and one
// column per day. Each cell lists that day's appointments in time order.
func ScheduleWorkbook(title string, profs []*models.Professional, appts []*models.Appointment, from, to time.Time, loc *time.Location) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("%s: %s - %s", title, from.Format("02/01/2006"), to.Format("02/01/2006")))
	_ = f.SetCellValue(sheetName, "A2", "Profissional")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	nameStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	busyStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#FCE4D6"}, Pattern: 1},
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})

	columns := make(map[string]int)
	col := 2
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		cell, _ := excelize.CoordinatesToCellName(col, headerRow)
		_ = f.SetCellValue(sheetName, cell, day.Format("02/01"))
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
		columns[day.Format(models.DateLayout)] = col
		col++
	}
	lastCol := col - 1

	rows := make(map[int64]int)
	row := firstRow
	for _, p := range profs {
		cell, _ := excelize.CoordinatesToCellName(1, row)
		_ = f.SetCellValue(sheetName, cell, p.Name)
		_ = f.SetCellStyle(sheetName, cell, cell, nameStyle)
		rows[p.ID] = row
		row++
	}

	type cellKey struct{ row, col int }
	cells := make(map[cellKey][]*models.Appointment)
	for _, a := range appts {
		r, ok := rows[a.ProfessionalID]
		if !ok {
			continue
		}
		c, ok := columns[a.ScheduledAt.In(loc).Format(models.DateLayout)]
		if !ok {
			continue
		}
		k := cellKey{r, c}
		cells[k] = append(cells[k], a)
	}

	for k, list := range cells {
		sort.Slice(list, func(i, j int) bool { return list[i].ScheduledAt.Before(list[j].ScheduledAt) })
		lines := make([]string, 0, len(list))
		for _, a := range list {
			lines = append(lines, fmt.Sprintf("%s %s (%s)", a.ScheduledAt.In(loc).Format("15:04"), a.ContactName, a.ContactPhone))
		}
		cell, _ := excelize.CoordinatesToCellName(k.col, k.row)
		_ = f.SetCellValue(sheetName, cell, strings.Join(lines, "\n"))
		_ = f.SetCellStyle(sheetName, cell, cell, busyStyle)
	}

	_ = f.SetColWidth(sheetName, "A", "A", 25)
	if lastCol >= 2 {
		last, _ := excelize.ColumnNumberToName(lastCol)
		_ = f.SetColWidth(sheetName, "B", last, 22)
		_ = f.MergeCell(sheetName, "A1", last+"1")
	}
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	return f, nil
}

func dayStart(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
