package export

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"rentacar/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type mockRegister struct {
	mock.Mock
}

func (m *mockRegister) ListContractRegister(ctx context.Context, from, to time.Time) ([]models.ContractRegisterEntry, error) {
	args := m.Called(ctx, from, to)
	entries, _ := args.Get(0).([]models.ContractRegisterEntry)
	return entries, args.Error(1)
}

func sampleEntries() []models.ContractRegisterEntry {
	pickup := time.Date(2025, 11, 15, 9, 0, 0, 0, time.UTC)
	ret := time.Date(2025, 11, 18, 9, 0, 0, 0, time.UTC)
	signed := time.Date(2025, 11, 15, 8, 30, 0, 0, time.UTC)
	return []models.ContractRegisterEntry{
		{
			ContractID: 1, ContractNumber: "202511150001", BookingID: 42,
			CustomerName: "Lucia Ortega", CustomerEmail: "lucia@example.com",
			PickupDate: &pickup, ReturnDate: &ret, Version: 2, SignedAt: &signed,
			CreatedAt: time.Date(2025, 11, 14, 9, 0, 0, 0, time.UTC),
		},
		{
			ContractID: 2, ContractNumber: "202511150002", BookingID: 43,
			CustomerName: "Tom Baker", PickupDate: &pickup, Version: 1,
			CreatedAt: time.Date(2025, 11, 14, 10, 0, 0, 0, time.UTC),
		},
	}
}

func TestWrite(t *testing.T) {
	from := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)

	repo := new(mockRegister)
	repo.On("ListContractRegister", mock.Anything, from, to).Return(sampleEntries(), nil)

	exporter := NewRegisterExporter(repo, t.TempDir(), time.FixedZone("CET", 3600), nil)
	var buf bytes.Buffer
	n, err := exporter.Write(context.Background(), &buf, from, to)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{sheetName}, f.GetSheetList())

	title, _ := f.GetCellValue(sheetName, "A1")
	assert.Equal(t, "Periodo: 01/11/2025 - 01/12/2025", title)

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, headers[0], rows[1][0])

	assert.Equal(t, "202511150001", rows[2][0])
	assert.Equal(t, "42", rows[2][1])
	assert.Equal(t, "15/11/2025", rows[2][4])
	assert.Equal(t, "15/11/2025 09:30", rows[2][7])

	assert.Equal(t, "Tom Baker", rows[3][2])
	assert.Equal(t, "", rows[3][5])
	assert.Equal(t, "No", rows[3][7])

	repo.AssertExpectations(t)
}

func TestWriteRepositoryError(t *testing.T) {
	repo := new(mockRegister)
	repo.On("ListContractRegister", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

	exporter := NewRegisterExporter(repo, t.TempDir(), nil, nil)
	var buf bytes.Buffer
	_, err := exporter.Write(context.Background(), &buf, time.Time{}, time.Time{})
	assert.Error(t, err)
	assert.Zero(t, buf.Len())
}

func TestSaveFile(t *testing.T) {
	repo := new(mockRegister)
	repo.On("ListContractRegister", mock.Anything, mock.Anything, mock.Anything).Return(sampleEntries(), nil)

	dir := filepath.Join(t.TempDir(), "exports")
	exporter := NewRegisterExporter(repo, dir, time.UTC, nil)

	from := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 11, 30, 0, 0, 0, 0, time.UTC)
	path, err := exporter.SaveFile(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "contratos_2025-11-01_2025-11-30.xlsx"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestSaveFileRemovesPartialOutput(t *testing.T) {
	repo := new(mockRegister)
	repo.On("ListContractRegister", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("boom"))

	dir := t.TempDir()
	exporter := NewRegisterExporter(repo, dir, time.UTC, nil)
	_, err := exporter.SaveFile(context.Background(), time.Now(), time.Now())
	require.Error(t, err)

	files, _ := os.ReadDir(dir)
	assert.Empty(t, files)
}
