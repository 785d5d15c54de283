package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"agritrace/internal/core"

	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

type lotRequest struct {
	Code           string   `json:"code"`
	ProductType    string   `json:"product_type"`
	Location       string   `json:"location"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	AreaHectares   float64  `json:"area_hectares"`
	HarvestDate    string   `json:"harvest_date"`
	Responsible    string   `json:"responsible"`
	Organic        bool     `json:"organic"`
	Certifications string   `json:"certifications"`
}

func (req lotRequest) lot() (core.Lot, error) {
	harvest, err := parseDate(req.HarvestDate)
	if err != nil {
		return core.Lot{}, err
	}
	return core.Lot{
		Code:           strings.TrimSpace(req.Code),
		ProductType:    req.ProductType,
		Location:       req.Location,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		AreaHectares:   req.AreaHectares,
		HarvestDate:    harvest,
		Responsible:    req.Responsible,
		Organic:        req.Organic,
		Certifications: req.Certifications,
	}, nil
}

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, badRequest(fmt.Errorf("harvest_date %q must be YYYY-MM-DD", value))
	}
	return t, nil
}

type logisticsPatch struct {
	Vehicle            *string             `json:"vehicle"`
	Driver             *string             `json:"driver"`
	MinTemperature     *float64            `json:"min_temperature"`
	MaxTemperature     *float64            `json:"max_temperature"`
	AvgTemperature     *float64            `json:"avg_temperature"`
	DepartedAt         *time.Time          `json:"departed_at"`
	DeliveredAt        *time.Time          `json:"delivered_at"`
	Destination        *string             `json:"destination"`
	DestinationAddress *string             `json:"destination_address"`
	State              *core.DeliveryState `json:"state"`
}

func (p logisticsPatch) apply(l *core.Logistics) error {
	set(&l.Vehicle, p.Vehicle)
	set(&l.Driver, p.Driver)
	set(&l.MinTemperature, p.MinTemperature)
	set(&l.MaxTemperature, p.MaxTemperature)
	set(&l.AvgTemperature, p.AvgTemperature)
	set(&l.DepartedAt, p.DepartedAt)
	set(&l.DeliveredAt, p.DeliveredAt)
	set(&l.Destination, p.Destination)
	set(&l.DestinationAddress, p.DestinationAddress)
	set(&l.State, p.State)
	return nil
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func (s *Server) listLots(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.ListLots())
}

func (s *Server) getLot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	lot, ok := s.svc.GetLot(id)
	if !ok {
		writeServiceError(w, core.ErrNotFound{Entity: core.EntityLot, ID: id})
		return
	}
	writeJSON(w, http.StatusOK, lot)
}

func (s *Server) createLot(w http.ResponseWriter, r *http.Request) {
	var req lotRequest
	if err := decode(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	lot, err := req.lot()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	created, _, err := s.svc.CreateLot(r.Context(), lot)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) deleteLot(w http.ResponseWriter, r *http.Request) {
	if _, err := s.svc.DeleteLot(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) traceLot(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.TraceLot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) exportTrace(w http.ResponseWriter, r *http.Request) {
	info, err := s.svc.ExportTraceReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) listExports(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	lot, ok := s.svc.GetLot(id)
	if !ok {
		writeServiceError(w, core.ErrNotFound{Entity: core.EntityLot, ID: id})
		return
	}
	infos, err := s.svc.ListTraceReports(r.Context(), lot.Code)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) listTransformations(w http.ResponseWriter, r *http.Request) {
	items := s.svc.ListTransformations()
	if lotID := r.URL.Query().Get("lot_id"); lotID != "" {
		filtered := items[:0]
		for _, t := range items {
			if t.LotID == lotID {
				filtered = append(filtered, t)
			}
		}
		items = filtered
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) getTransformation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, ok := s.svc.GetTransformation(id)
	if !ok {
		writeServiceError(w, core.ErrNotFound{Entity: core.EntityTransformation, ID: id})
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) createTransformation(w http.ResponseWriter, r *http.Request) {
	var t core.Transformation
	if err := decode(r, &t); err != nil {
		writeServiceError(w, err)
		return
	}
	t.Base = core.Base{}
	created, _, err := s.svc.CreateTransformation(r.Context(), t)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) deleteTransformation(w http.ResponseWriter, r *http.Request) {
	if _, err := s.svc.DeleteTransformation(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listLogistics(w http.ResponseWriter, r *http.Request) {
	items := s.svc.ListLogistics()
	if state := r.URL.Query().Get("state"); state != "" {
		filtered := items[:0]
		for _, l := range items {
			if strings.EqualFold(string(l.State), state) {
				filtered = append(filtered, l)
			}
		}
		items = filtered
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) getLogistics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	l, ok := s.svc.GetLogistics(id)
	if !ok {
		writeServiceError(w, core.ErrNotFound{Entity: core.EntityLogistics, ID: id})
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) createLogistics(w http.ResponseWriter, r *http.Request) {
	var l core.Logistics
	if err := decode(r, &l); err != nil {
		writeServiceError(w, err)
		return
	}
	l.Base = core.Base{}
	l.TraceCode = nil
	created, _, err := s.svc.CreateLogistics(r.Context(), l)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) patchLogistics(w http.ResponseWriter, r *http.Request) {
	var patch logisticsPatch
	if err := decode(r, &patch); err != nil {
		writeServiceError(w, err)
		return
	}
	updated, _, err := s.svc.UpdateLogistics(r.Context(), chi.URLParam(r, "id"), patch.apply)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteLogistics(w http.ResponseWriter, r *http.Request) {
	if _, err := s.svc.DeleteLogistics(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) traceSummaries(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.svc.TraceSummaries(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) searchTrace(w http.ResponseWriter, r *http.Request) {
	chain, err := s.svc.FindByTraceCode(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chain)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Stats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) auditEntries(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusNotFound, "audit log not configured")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, s.audit.Recent(limit))
}

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest(errors.New("request body is required"))
		}
		return badRequest(fmt.Errorf("invalid request body: %w", err))
	}
	return nil
}
