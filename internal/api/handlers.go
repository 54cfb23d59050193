package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rentacar/internal/contract"
	"rentacar/internal/models"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// contractResponse is the contract row with the booking it was rendered from.
type contractResponse struct {
	*models.Contract
	Booking *models.BookingDetails `json:"booking,omitempty"`
}

type contractRequest struct {
	BookingID     int64  `json:"bookingId" validate:"required,gt=0"`
	SignatureData string `json:"signatureData" validate:"max=3000000"`
	Language      string `json:"language" validate:"max=16"`
}

type regenerateRequest struct {
	BookingID int64  `json:"bookingId" validate:"required,gt=0"`
	Reason    string `json:"reason" validate:"max=200"`
}

type inspectionRequest struct {
	BookingID int64    `json:"bookingId" validate:"required,gt=0"`
	CarID     int64    `json:"carId" validate:"required,gt=0"`
	Type      string   `json:"type" validate:"required,oneof=delivery return"`
	Odometer  int64    `json:"odometer" validate:"gte=0"`
	FuelLevel string   `json:"fuelLevel" validate:"max=32"`
	Notes     string   `json:"notes" validate:"max=4000"`
	Photos    []string `json:"photos" validate:"max=5,dive,required,max=512"`
}

func (s *HTTPServer) handleContracts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Contracts == nil {
		writeError(w, http.StatusServiceUnavailable, "contracts are not available")
		return
	}

	switch r.Method {
	case http.MethodGet:
		bookingID, ok := bookingIDParam(w, r)
		if !ok {
			return
		}
		res, err := s.deps.Contracts.Get(r.Context(), bookingID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, contractResponse{Contract: res.Contract, Booking: res.Booking})

	case http.MethodPost:
		var body contractRequest
		if !s.decodeBody(w, r, &body) {
			return
		}

		var (
			res *contract.Result
			err error
		)
		if strings.TrimSpace(body.SignatureData) == "" {
			res, err = s.deps.Contracts.Regenerate(r.Context(), body.BookingID, models.ReasonManualUpdate, actorFrom(r.Context()))
		} else {
			res, err = s.deps.Contracts.Sign(r.Context(), body.BookingID, contract.SignRequest{
				SignatureData: body.SignatureData,
				IPAddress:     clientIP(r),
				UserAgent:     r.UserAgent(),
				Language:      body.Language,
				Actor:         actorFrom(r.Context()),
			})
		}
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, contractResponse{Contract: res.Contract, Booking: res.Booking})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.deps.Contracts == nil {
		writeError(w, http.StatusServiceUnavailable, "contracts are not available")
		return
	}

	bookingID, ok := bookingIDParam(w, r)
	if !ok {
		return
	}
	c, history, err := s.deps.Contracts.History(r.Context(), bookingID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if history == nil {
		history = []models.ContractHistory{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"contract_id":     c.ID,
		"contract_number": c.ContractNumber,
		"version":         c.Version,
		"history":         history,
	})
}

func (s *HTTPServer) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.deps.Contracts == nil {
		writeError(w, http.StatusServiceUnavailable, "contracts are not available")
		return
	}

	var body regenerateRequest
	if !s.decodeBody(w, r, &body) {
		return
	}
	reason := strings.TrimSpace(body.Reason)
	if reason == "" {
		reason = models.ReasonBookingUpdated
	}

	res, err := s.deps.Contracts.Regenerate(r.Context(), body.BookingID, reason, actorFrom(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"outcome":  res.Outcome,
		"contract": contractResponse{Contract: res.Contract},
	})
}

func (s *HTTPServer) handleInspections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.deps.Inspections == nil {
		writeError(w, http.StatusServiceUnavailable, "inspections are not available")
		return
	}

	var body inspectionRequest
	if !s.decodeBody(w, r, &body) {
		return
	}

	in := &models.Inspection{
		BookingID: body.BookingID,
		CarID:     body.CarID,
		Type:      body.Type,
		Odometer:  body.Odometer,
		FuelLevel: strings.TrimSpace(body.FuelLevel),
		Notes:     strings.TrimSpace(body.Notes),
		Photos:    body.Photos,
	}
	if in.Photos == nil {
		in.Photos = []string{}
	}
	if err := s.deps.Inspections.Record(r.Context(), in); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, in)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.deps.Export == nil {
		writeError(w, http.StatusServiceUnavailable, "export is not available")
		return
	}

	from, err := s.parseDay(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from date; expected YYYY-MM-DD")
		return
	}
	to, err := s.parseDay(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to date; expected YYYY-MM-DD")
		return
	}
	if !to.IsZero() {
		to = to.AddDate(0, 0, 1)
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		writeError(w, http.StatusBadRequest, "from must not be after to")
		return
	}

	var buf bytes.Buffer
	if _, err := s.deps.Export.Write(r.Context(), &buf, from, to); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="contratos_%s.xlsx"`, time.Now().In(s.deps.Location).Format("20060102")))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *HTTPServer) handleGallery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.deps.Gallery == nil {
		writeError(w, http.StatusServiceUnavailable, "gallery is not available")
		return
	}

	token := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, galleryPrefix))
	if token == "" || strings.Contains(token, "/") {
		writeError(w, http.StatusNotFound, "inspection link not found")
		return
	}

	view, err := s.deps.Gallery.Resolve(r.Context(), token)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func bookingIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("bookingId"))
	if raw == "" {
		writeError(w, http.StatusBadRequest, "bookingId is required")
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "bookingId must be a positive integer")
		return 0, false
	}
	return id, true
}

// parseDay reads a local calendar day; empty means unbounded.
func (s *HTTPServer) parseDay(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation("2006-01-02", raw, s.deps.Location)
}
