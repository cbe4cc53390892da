// Package google mirrors the appointment ledger into a Google spreadsheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"sync"
	"time"

	"agendazap/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	statusBooked   = "agendado"
	statusCanceled = "cancelado"

	cacheRefreshInterval = time.Hour
)

var (
	ErrRowNotFound = errors.New("appointment row not found")

	rowHeaders = []interface{}{"ID", "Clinica", "Profissional", "Paciente", "Telefone", "Data", "Hora", "Status", "Observacoes", "Criado em"}

	// "Agendamentos!A10:J10" -> 10
	updatedRowRe = regexp.MustCompile(`![A-Z]+(\d+)`)
)

type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	loc           *time.Location
	logger        *zerolog.Logger

	rowCache map[int64]int
	cacheMu  sync.RWMutex
}

// NewSheetsService authenticates with a service account file. The row cache
// is warmed in the background and refreshed until ctx ends.
func NewSheetsService(ctx context.Context, credentialsFile, spreadsheetID, sheetName string, loc *time.Location, logger *zerolog.Logger) (*SheetsService, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	jwtConfig, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(jwtConfig.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}

	s := newSheetsService(srv, spreadsheetID, sheetName, loc, logger)
	go s.refreshLoop(ctx)
	return s, nil
}

func newSheetsService(srv *sheets.Service, spreadsheetID, sheetName string, loc *time.Location, logger *zerolog.Logger) *SheetsService {
	if loc == nil {
		loc = time.UTC
	}
	return &SheetsService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		loc:           loc,
		logger:        logger,
		rowCache:      make(map[int64]int),
	}
}

func (s *SheetsService) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(cacheRefreshInterval)
	defer ticker.Stop()
	for {
		warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if err := s.WarmUpCache(warmCtx); err != nil {
			s.logger.Warn().Err(err).Msg("Sheets cache warm-up failed")
		}
		cancel()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *SheetsService) rng(cells string) string {
	return s.sheetName + "!" + cells
}

// TestConnection reads the header cell.
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("A1")).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// EnsureHeader writes the column titles to row 1.
func (s *SheetsService) EnsureHeader(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.rng("A1:J1"), &sheets.ValueRange{
		Values: [][]interface{}{rowHeaders},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// WarmUpCache rebuilds the appointment ID to row index cache from column A.
func (s *SheetsService) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("A:A")).Context(ctx).Do()
	if err != nil {
		return err
	}

	cache := make(map[int64]int)
	for i, row := range resp.Values {
		if id, ok := cellID(row); ok {
			cache[id] = i + 1
		}
	}

	s.cacheMu.Lock()
	s.rowCache = cache
	s.cacheMu.Unlock()
	return nil
}

// AppendAppointment adds one row per booked appointment.
func (s *SheetsService) AppendAppointment(ctx context.Context, a *models.Appointment) error {
	if a == nil || a.ID == 0 {
		return errors.New("appointment id is required")
	}

	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.rng("A:A"), &sheets.ValueRange{
		Values: [][]interface{}{s.appointmentRowValues(a, statusBooked)},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return err
	}

	if resp.Updates != nil {
		if m := updatedRowRe.FindStringSubmatch(resp.Updates.UpdatedRange); m != nil {
			if row, err := strconv.Atoi(m[1]); err == nil {
				s.setCachedRow(a.ID, row)
			}
		}
	}
	return nil
}

// MarkCanceled flips the status cell of the appointment's row.
func (s *SheetsService) MarkCanceled(ctx context.Context, appointmentID int64) error {
	rowIdx, err := s.FindAppointmentRow(ctx, appointmentID)
	if err != nil {
		return err
	}

	statusRange := s.rng(fmt.Sprintf("H%d:H%d", rowIdx, rowIdx))
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, statusRange, &sheets.ValueRange{
		Values: [][]interface{}{{statusCanceled}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// FindAppointmentRow returns the 1-based row holding appointmentID.
func (s *SheetsService) FindAppointmentRow(ctx context.Context, appointmentID int64) (int, error) {
	if appointmentID == 0 {
		return 0, errors.New("appointment id is required")
	}
	if row, ok := s.getCachedRow(appointmentID); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("A:A")).Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	for i, row := range resp.Values {
		if id, ok := cellID(row); ok && id == appointmentID {
			s.setCachedRow(appointmentID, i+1)
			return i + 1, nil
		}
	}
	return 0, ErrRowNotFound
}

func cellID(row []interface{}) (int64, bool) {
	if len(row) == 0 {
		return 0, false
	}
	var id int64
	switch v := row[0].(type) {
	case float64:
		id = int64(v)
	case string:
		id, _ = strconv.ParseInt(v, 10, 64)
	}
	return id, id > 0
}

func (s *SheetsService) getCachedRow(id int64) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *SheetsService) setCachedRow(id int64, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

func (s *SheetsService) appointmentRowValues(a *models.Appointment, status string) []interface{} {
	at := a.ScheduledAt.In(s.loc)
	return []interface{}{
		a.ID,
		a.TenantID,
		a.ProfessionalName,
		a.ContactName,
		a.ContactPhone,
		at.Format("02/01/2006"),
		at.Format("15:04"),
		status,
		a.Notes,
		a.CreatedAt.In(s.loc).Format("02/01/2006 15:04"),
	}
}
