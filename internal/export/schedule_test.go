package export

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"agendazap/internal/domain"
	"agendazap/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var brt = time.FixedZone("BRT", -3*60*60)

type fakeSource struct {
	tenant *models.Tenant
	profs  []*models.Professional
	appts  []*models.Appointment
	start  time.Time
	end    time.Time
}

func (s *fakeSource) GetTenant(_ context.Context, id int64) (*models.Tenant, error) {
	if s.tenant == nil || s.tenant.ID != id {
		return nil, domain.ErrNotFound
	}
	return s.tenant, nil
}

func (s *fakeSource) GetProfessionalsByTenant(context.Context, int64) ([]*models.Professional, error) {
	return s.profs, nil
}

func (s *fakeSource) GetAppointmentsByTenant(_ context.Context, _ int64, start, end time.Time) ([]*models.Appointment, error) {
	s.start, s.end = start, end
	return s.appts, nil
}

func fixtureSource() *fakeSource {
	return &fakeSource{
		tenant: &models.Tenant{ID: 1, Name: "Clinica Vida"},
		profs: []*models.Professional{
			{ID: 10, Name: "Ana Souza"},
			{ID: 11, Name: "Bruno Lima"},
		},
		appts: []*models.Appointment{
			{ProfessionalID: 10, ContactName: "Maria", ContactPhone: "5511988887777", ScheduledAt: time.Date(2030, 1, 7, 15, 0, 0, 0, brt)},
			{ProfessionalID: 10, ContactName: "Joao", ContactPhone: "5511977776666", ScheduledAt: time.Date(2030, 1, 7, 9, 0, 0, 0, brt)},
			{ProfessionalID: 11, ContactName: "Lia", ContactPhone: "5511966665555", ScheduledAt: time.Date(2030, 1, 8, 18, 30, 0, 0, brt)},
			{ProfessionalID: 99, ContactName: "Ghost", ScheduledAt: time.Date(2030, 1, 8, 10, 0, 0, 0, brt)},
		},
	}
}

func TestScheduleWorkbookLayout(t *testing.T) {
	src := fixtureSource()
	from := time.Date(2030, 1, 7, 0, 0, 0, 0, brt)
	to := time.Date(2030, 1, 9, 0, 0, 0, 0, brt)

	f, err := ScheduleWorkbook("Clinica Vida", src.profs, src.appts, from, to, brt)
	require.NoError(t, err)
	defer f.Close()

	cell := func(name string) string {
		v, err := f.GetCellValue(sheetName, name)
		require.NoError(t, err)
		return v
	}

	assert.Equal(t, "Clinica Vida: 07/01/2030 - 09/01/2030", cell("A1"))
	assert.Equal(t, "07/01", cell("B2"))
	assert.Equal(t, "08/01", cell("C2"))
	assert.Equal(t, "09/01", cell("D2"))
	assert.Equal(t, "Ana Souza", cell("A3"))
	assert.Equal(t, "Bruno Lima", cell("A4"))

	assert.Equal(t, "09:00 Joao (5511977776666)\n15:00 Maria (5511988887777)", cell("B3"))
	assert.Equal(t, "18:30 Lia (5511966665555)", cell("C4"))
	assert.Empty(t, cell("C3"))
	assert.Empty(t, cell("D3"))
	assert.Equal(t, []string{sheetName}, f.GetSheetList())
}

func TestExporterWriteSchedule(t *testing.T) {
	src := fixtureSource()
	logger := zerolog.Nop()
	e := NewExporter(src, brt, t.TempDir(), &logger)

	var buf bytes.Buffer
	from := time.Date(2030, 1, 7, 10, 0, 0, 0, brt)
	to := time.Date(2030, 1, 8, 23, 0, 0, 0, brt)
	require.NoError(t, e.WriteSchedule(context.Background(), &buf, 1, from, to))

	assert.Equal(t, time.Date(2030, 1, 7, 0, 0, 0, 0, brt), src.start)
	assert.Equal(t, time.Date(2030, 1, 9, 0, 0, 0, 0, brt), src.end)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	v, err := f.GetCellValue(sheetName, "C4")
	require.NoError(t, err)
	assert.Equal(t, "18:30 Lia (5511966665555)", v)
}

func TestExporterSaveSchedule(t *testing.T) {
	logger := zerolog.Nop()
	e := NewExporter(fixtureSource(), brt, t.TempDir(), &logger)

	day := time.Date(2030, 1, 7, 0, 0, 0, 0, brt)
	path, err := e.SaveSchedule(context.Background(), 1, day, day)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err)
	assert.Contains(t, path, "agenda_1_2030-01-07_to_2030-01-07.xlsx")
}

func TestExporterValidation(t *testing.T) {
	logger := zerolog.Nop()
	e := NewExporter(fixtureSource(), brt, t.TempDir(), &logger)
	day := time.Date(2030, 1, 7, 0, 0, 0, 0, brt)

	err := e.WriteSchedule(context.Background(), &bytes.Buffer{}, 1, day, day.AddDate(0, 0, -1))
	assert.True(t, errors.Is(err, domain.ErrValidation))

	err = e.WriteSchedule(context.Background(), &bytes.Buffer{}, 1, day, day.AddDate(0, 6, 0))
	assert.True(t, errors.Is(err, domain.ErrValidation))

	err = e.WriteSchedule(context.Background(), &bytes.Buffer{}, 2, day, day)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
