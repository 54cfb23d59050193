// Package export builds the contract register spreadsheet (XLSX).
package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"rentacar/internal/domain"
	"rentacar/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Contratos"

var headers = []string{
	"Nº contrato", "Reserva", "Cliente", "Email", "Recogida", "Devolución", "Versión", "Firmado", "Creado",
}

// RegisterExporter writes contracts created in a period to an XLSX workbook.
type RegisterExporter struct {
	repo   domain.RegisterRepository
	dir    string
	loc    *time.Location
	logger zerolog.Logger
}

func NewRegisterExporter(repo domain.RegisterRepository, dir string, loc *time.Location, logger *zerolog.Logger) *RegisterExporter {
	if loc == nil {
		loc = time.UTC
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "export").Logger()
	}
	return &RegisterExporter{repo: repo, dir: dir, loc: loc, logger: l}
}

// Write streams the workbook for contracts created in [from, to).
func (e *RegisterExporter) Write(ctx context.Context, w io.Writer, from, to time.Time) (int, error) {
	entries, err := e.repo.ListContractRegister(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("error getting contract register: %w", err)
	}

	f, err := e.build(from, to, entries)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return 0, fmt.Errorf("error writing workbook: %w", err)
	}
	return len(entries), nil
}

// SaveFile writes the workbook under the export directory and returns its path.
func (e *RegisterExporter) SaveFile(ctx context.Context, from, to time.Time) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	fileName := fmt.Sprintf("contratos_%s_%s.xlsx", from.In(e.loc).Format("2006-01-02"), to.In(e.loc).Format("2006-01-02"))
	filePath := filepath.Join(e.dir, fileName)

	out, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("error creating file: %w", err)
	}
	n, err := e.Write(ctx, out, from, to)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(filePath)
		return "", err
	}

	e.logger.Info().Str("file_path", filePath).Int("contracts", n).Msg("contract register exported")
	return filePath, nil
}

func (e *RegisterExporter) build(from, to time.Time, entries []models.ContractRegisterEntry) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Periodo: %s - %s", e.periodBound(from), e.periodBound(to)))
	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	_ = f.MergeCell(sheetName, "A1", lastCol+"1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, h)
	}
	_ = f.SetCellStyle(sheetName, "A2", lastCol+"2", headerStyle)

	for i, entry := range entries {
		row := i + 3
		values := []interface{}{
			entry.ContractNumber,
			entry.BookingID,
			entry.CustomerName,
			entry.CustomerEmail,
			e.date(entry.PickupDate),
			e.date(entry.ReturnDate),
			entry.Version,
			e.signed(entry.SignedAt),
			entry.CreatedAt.In(e.loc).Format("02/01/2006 15:04"),
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			f.Close()
			return nil, fmt.Errorf("error writing row %d: %w", row, err)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 16)
	_ = f.SetColWidth(sheetName, "C", "D", 28)
	_ = f.SetColWidth(sheetName, "E", lastCol, 18)
	return f, nil
}

func (e *RegisterExporter) periodBound(t time.Time) string {
	if t.IsZero() {
		return "…"
	}
	return t.In(e.loc).Format("02/01/2006")
}

func (e *RegisterExporter) date(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.In(e.loc).Format("02/01/2006")
}

func (e *RegisterExporter) signed(t *time.Time) string {
	if t == nil {
		return "No"
	}
	return t.In(e.loc).Format("02/01/2006 15:04")
}
