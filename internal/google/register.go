package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"rentacar/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	dateLayout     = "02/01/2006"
	dateTimeLayout = "02/01/2006 15:04"
	lastColumn     = "J"
)

var registerHeaders = []interface{}{
	"ID", "Nº contrato", "Reserva", "Cliente", "Email",
	"Recogida", "Devolución", "Versión", "Firmado", "Creado",
}

var errRowNotFound = errors.New("register row not found")

// RegisterService keeps the contract register spreadsheet in sync.
// Rows are keyed by contract ID in column A; data starts on row 2.
type RegisterService struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	loc           *time.Location
	rowCache      map[int64]int
	cacheMu       sync.RWMutex
}

func NewRegisterService(ctx context.Context, credentialsFile, spreadsheetID, sheetName string, loc *time.Location) (*RegisterService, error) {
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
	return newRegisterService(srv, spreadsheetID, sheetName, loc), nil
}

func newRegisterService(srv *sheets.Service, spreadsheetID, sheetName string, loc *time.Location) *RegisterService {
	if loc == nil {
		loc = time.UTC
	}
	return &RegisterService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		loc:           loc,
		rowCache:      make(map[int64]int),
	}
}

// TestConnection reads the header cell.
func (s *RegisterService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.sheetName+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// ServiceAccountEmail returns the address the spreadsheet must be shared with.
func ServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

// WarmUpCache reads column A and rebuilds the contract ID to row index.
func (s *RegisterService) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.sheetName+"!A:A").Context(ctx).Do()
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

// UpsertContract rewrites the contract's row, appending one if the contract is new to the sheet.
func (s *RegisterService) UpsertContract(ctx context.Context, entry models.ContractRegisterEntry) error {
	if entry.ContractID == 0 {
		return errors.New("contract id is required")
	}

	rowIdx, err := s.findRow(ctx, entry.ContractID)
	if errors.Is(err, errRowNotFound) {
		return s.appendRow(ctx, entry)
	}
	if err != nil {
		return err
	}

	rangeData := fmt.Sprintf("%s!A%d:%s%d", s.sheetName, rowIdx, lastColumn, rowIdx)
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData, &sheets.ValueRange{
		Values: [][]interface{}{s.rowValues(entry)},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update register row: %w", err)
	}
	return nil
}

// ReplaceRegister clears the sheet and writes the header plus every entry in order.
func (s *RegisterService) ReplaceRegister(ctx context.Context, entries []models.ContractRegisterEntry) error {
	_, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, s.sheetName+"!A:Z", &sheets.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to clear register sheet: %w", err)
	}

	values := make([][]interface{}, 0, len(entries)+1)
	values = append(values, registerHeaders)
	for _, e := range entries {
		values = append(values, s.rowValues(e))
	}

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.sheetName+"!A1", &sheets.ValueRange{
		Values: values,
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to write register sheet: %w", err)
	}

	cache := make(map[int64]int, len(entries))
	for i, e := range entries {
		cache[e.ContractID] = i + 2
	}
	s.cacheMu.Lock()
	s.rowCache = cache
	s.cacheMu.Unlock()
	return nil
}

func (s *RegisterService) appendRow(ctx context.Context, entry models.ContractRegisterEntry) error {
	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.sheetName+"!A:A", &sheets.ValueRange{
		Values: [][]interface{}{s.rowValues(entry)},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to append register row: %w", err)
	}
	if resp.Updates != nil {
		if row, ok := firstRow(resp.Updates.UpdatedRange); ok {
			s.setCachedRow(entry.ContractID, row)
		}
	}
	return nil
}

func (s *RegisterService) findRow(ctx context.Context, contractID int64) (int, error) {
	if row, ok := s.getCachedRow(contractID); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.sheetName+"!A:A").Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	for i, row := range resp.Values {
		if id, ok := cellID(row); ok && id == contractID {
			s.setCachedRow(contractID, i+1)
			return i + 1, nil
		}
	}
	return 0, errRowNotFound
}

func (s *RegisterService) rowValues(e models.ContractRegisterEntry) []interface{} {
	signed := ""
	if e.SignedAt != nil {
		signed = e.SignedAt.In(s.loc).Format(dateTimeLayout)
	}
	return []interface{}{
		e.ContractID,
		e.ContractNumber,
		e.BookingID,
		e.CustomerName,
		e.CustomerEmail,
		s.formatDate(e.PickupDate),
		s.formatDate(e.ReturnDate),
		e.Version,
		signed,
		e.CreatedAt.In(s.loc).Format(dateTimeLayout),
	}
}

func (s *RegisterService) formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.In(s.loc).Format(dateLayout)
}

func (s *RegisterService) getCachedRow(id int64) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *RegisterService) setCachedRow(id int64, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

// ClearCache forgets every known row position.
func (s *RegisterService) ClearCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[int64]int)
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
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false
		}
		id = n
	}
	return id, id > 0
}

// firstRow extracts the starting row from an A1 range such as "Contratos!A10:J10".
func firstRow(a1 string) (int, bool) {
	if i := strings.LastIndexByte(a1, '!'); i >= 0 {
		a1 = a1[i+1:]
	}
	if i := strings.IndexByte(a1, ':'); i >= 0 {
		a1 = a1[:i]
	}
	n, err := strconv.Atoi(strings.TrimLeftFunc(a1, unicode.IsLetter))
	return n, err == nil
}
