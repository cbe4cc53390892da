package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"agendazap/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

var brt = time.FixedZone("BRT", -3*60*60)

func setupMockServer(t *testing.T) (*http.ServeMux, *SheetsService) {
	t.Helper()
	ctx := context.Background()
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	srv, err := sheets.NewService(ctx, option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)

	logger := zerolog.Nop()
	return mux, newSheetsService(srv, "agenda_tid", "Agendamentos", brt, &logger)
}

func TestSheetsService_TestConnection(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/agenda_tid/values/Agendamentos!A1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}}})
	})
	require.NoError(t, s.TestConnection(context.Background()))
}

func TestSheetsService_EnsureHeader(t *testing.T) {
	mux, s := setupMockServer(t)
	var got sheets.ValueRange
	mux.HandleFunc("/v4/spreadsheets/agenda_tid/values/Agendamentos!A1:J1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})
	require.NoError(t, s.EnsureHeader(context.Background()))
	require.Len(t, got.Values, 1)
	assert.Equal(t, "ID", got.Values[0][0])
	assert.Len(t, got.Values[0], 10)
}

func TestSheetsService_WarmUpCache(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/agenda_tid/values/Agendamentos!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{
			Values: [][]interface{}{{"ID"}, {"123"}, {}, {456.0}},
		})
	})
	require.NoError(t, s.WarmUpCache(context.Background()))

	row, ok := s.getCachedRow(123)
	assert.True(t, ok)
	assert.Equal(t, 2, row)
	row, ok = s.getCachedRow(456)
	assert.True(t, ok)
	assert.Equal(t, 4, row)
}

func TestSheetsService_AppendAppointment(t *testing.T) {
	mux, s := setupMockServer(t)
	var got sheets.ValueRange
	mux.HandleFunc("/v4/spreadsheets/agenda_tid/values/Agendamentos!A:A:append", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(sheets.AppendValuesResponse{
			Updates: &sheets.UpdateValuesResponse{UpdatedRange: "Agendamentos!A10:J10"},
		})
	})

	appt := &models.Appointment{
		ID:               789,
		TenantID:         1,
		ProfessionalName: "Ana Souza",
		ContactName:      "Maria",
		ContactPhone:     "5511988887777",
		ScheduledAt:      time.Date(2030, 1, 7, 17, 0, 0, 0, time.UTC),
		CreatedAt:        time.Date(2030, 1, 6, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.AppendAppointment(context.Background(), appt))

	row, ok := s.getCachedRow(789)
	assert.True(t, ok)
	assert.Equal(t, 10, row)

	require.Len(t, got.Values, 1)
	values := got.Values[0]
	assert.Equal(t, "07/01/2030", values[5])
	assert.Equal(t, "14:00", values[6])
	assert.Equal(t, statusBooked, values[7])
}

func TestSheetsService_AppendAppointmentRequiresID(t *testing.T) {
	_, s := setupMockServer(t)
	require.Error(t, s.AppendAppointment(context.Background(), &models.Appointment{}))
}

func TestSheetsService_MarkCanceled(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/agenda_tid/values/Agendamentos!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}, {"41"}, {"42"}}})
	})
	var got sheets.ValueRange
	mux.HandleFunc("/v4/spreadsheets/agenda_tid/values/Agendamentos!H3:H3", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})

	require.NoError(t, s.MarkCanceled(context.Background(), 42))
	require.Len(t, got.Values, 1)
	assert.Equal(t, statusCanceled, got.Values[0][0])

	row, ok := s.getCachedRow(42)
	assert.True(t, ok)
	assert.Equal(t, 3, row)
}

func TestSheetsService_MarkCanceledMissingRow(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/agenda_tid/values/Agendamentos!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}}})
	})

	err := s.MarkCanceled(context.Background(), 7)
	assert.True(t, errors.Is(err, ErrRowNotFound))
}

func TestCellID(t *testing.T) {
	id, ok := cellID([]interface{}{"12"})
	assert.True(t, ok)
	assert.Equal(t, int64(12), id)

	_, ok = cellID([]interface{}{"ID"})
	assert.False(t, ok)

	_, ok = cellID(nil)
	assert.False(t, ok)
}
