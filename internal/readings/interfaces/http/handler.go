package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	catalog "home-monitor/internal/catalog/domain"
	"home-monitor/internal/observability/metrics"
	"home-monitor/internal/readings/application"
	readings "home-monitor/internal/readings/domain"
)

// StoreService persists a reading batch for a parameter.
type StoreService interface {
	Store(ctx context.Context, parameterID int64, batch []readings.RawPoint) (application.IngestResult, error)
}

// BucketReader aggregates stored readings into time buckets.
type BucketReader interface {
	QueryBuckets(ctx context.Context, parameterID int64, widthMinutes int, start, end time.Time) ([]readings.BucketRow, error)
}

// ParameterChecker reports whether a parameter exists.
type ParameterChecker interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// Handler provides reading ingestion and aggregation endpoints under
// /api/v1/parameters/.
type Handler struct {
	service StoreService
	buckets BucketReader
	params  ParameterChecker
	logger  *zap.Logger
}

// NewHandler constructs a handler.
func NewHandler(service StoreService, buckets BucketReader, params ParameterChecker, logger *zap.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("readings handler: nil service")
	}
	if buckets == nil {
		return nil, errors.New("readings handler: nil bucket reader")
	}
	if params == nil {
		return nil, errors.New("readings handler: nil parameter checker")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, buckets: buckets, params: params, logger: logger}, nil
}

type storeRequest struct {
	Data []readings.RawPoint `json:"data"`
}

type storeResponse struct {
	Message string `json:"message"`
	Count   int64  `json:"count"`
}

type bucketEntry struct {
	BucketStart string  `json:"bucket_start"`
	Count       int64   `json:"count"`
	MinValue    float64 `json:"min_value"`
	MaxValue    float64 `json:"max_value"`
	AvgValue    float64 `json:"avg_value"`
}

type bucketResponse struct {
	Data []bucketEntry `json:"data"`
}

// ServeHTTP routes /api/v1/parameters/{id}/readings and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/parameters/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || parts[1] != "readings" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		writeErrors(w, http.StatusUnprocessableEntity, map[string][]string{
			"id": {"Invalid device parameter ID"},
		})
		return
	}

	switch {
	case len(parts) == 2:
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleStore(w, r, id)
	case len(parts) == 3 && parts[2] == "bucket":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleBucket(w, r, id, "")
	case len(parts) == 4 && parts[2] == "bucket" && parts[3] == "export":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleBucket(w, r, id, exportFormat(r))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleStore(w http.ResponseWriter, r *http.Request, parameterID int64) {
	started := time.Now()

	var req storeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.IncIngestError("decode")
		writeErrors(w, http.StatusUnprocessableEntity, map[string][]string{
			"data": {"The data field must be a valid JSON array of readings"},
		})
		return
	}

	result, err := h.service.Store(r.Context(), parameterID, req.Data)
	if err != nil {
		h.respondStoreError(w, parameterID, err)
		return
	}

	metrics.ObserveIngest(metrics.ResultSuccess, time.Since(started))
	writeJSON(w, http.StatusCreated, storeResponse{
		Message: "Data stored successfully",
		Count:   result.Persisted,
	})
}

func (h *Handler) respondStoreError(w http.ResponseWriter, parameterID int64, err error) {
	var validation *readings.ValidationError
	switch {
	case errors.As(err, &validation):
		metrics.IncIngestError("validation")
		writeErrors(w, http.StatusUnprocessableEntity, validation.Fields)
	case errors.Is(err, catalog.ErrNotFound):
		metrics.IncIngestError("not_found")
		writeErrors(w, http.StatusNotFound, map[string][]string{
			"device_parameter": {"Parameter with ID " + strconv.FormatInt(parameterID, 10) + " not found"},
		})
	case errors.Is(err, readings.ErrStorageConflict):
		metrics.IncIngestError("conflict")
		h.logger.Error("readings handler: storage conflict", zap.Int64("parameter_id", parameterID), zap.Error(err))
		writeErrors(w, http.StatusInternalServerError, map[string][]string{
			"server": {"Database error occurred"},
		})
	default:
		metrics.IncIngestError("storage")
		h.logger.Error("readings handler: store failed", zap.Int64("parameter_id", parameterID), zap.Error(err))
		writeErrors(w, http.StatusInternalServerError, map[string][]string{
			"server": {"Database error occurred"},
		})
	}
}

func (h *Handler) handleBucket(w http.ResponseWriter, r *http.Request, parameterID int64, format string) {
	started := time.Now()

	start, end, width, fieldErrs := parseBucketQuery(r)
	if len(fieldErrs) > 0 {
		writeErrors(w, http.StatusUnprocessableEntity, fieldErrs)
		return
	}

	exists, err := h.params.Exists(r.Context(), parameterID)
	if err != nil {
		h.logger.Error("readings handler: existence check failed", zap.Int64("parameter_id", parameterID), zap.Error(err))
		writeErrors(w, http.StatusInternalServerError, map[string][]string{
			"server": {"Database error occurred"},
		})
		return
	}
	if !exists {
		writeErrors(w, http.StatusNotFound, map[string][]string{
			"device_parameter": {"Parameter with ID " + strconv.FormatInt(parameterID, 10) + " not found"},
		})
		return
	}

	rows, err := h.buckets.QueryBuckets(r.Context(), parameterID, width, start, end)
	if err != nil {
		metrics.ObserveBucketQuery(metrics.ResultError, time.Since(started))
		h.logger.Error("readings handler: bucket query failed", zap.Int64("parameter_id", parameterID), zap.Error(err))
		writeErrors(w, http.StatusInternalServerError, map[string][]string{
			"server": {"Database error occurred"},
		})
		return
	}
	metrics.ObserveBucketQuery(metrics.ResultSuccess, time.Since(started))

	if format != "" {
		h.respondExport(w, parameterID, format, rows)
		return
	}

	resp := bucketResponse{Data: make([]bucketEntry, 0, len(rows))}
	for _, row := range rows {
		resp.Data = append(resp.Data, bucketEntry{
			BucketStart: row.BucketStart.Format(readings.TimeFormat),
			Count:       row.Count,
			MinValue:    row.MinValue,
			MaxValue:    row.MaxValue,
			AvgValue:    row.AvgValue,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseBucketQuery(r *http.Request) (start, end time.Time, width int, fieldErrs map[string][]string) {
	fieldErrs = make(map[string][]string)

	start, ok := parseTimeParam(r, "start", fieldErrs)
	end, okEnd := parseTimeParam(r, "end", fieldErrs)
	if ok && okEnd && !end.After(start) {
		fieldErrs["end"] = append(fieldErrs["end"], "The end field must be a date after start")
	}

	width = readings.DefaultBucketMinutes
	if raw := r.URL.Query().Get("bucket_size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < readings.MinBucketMinutes || parsed > readings.MaxBucketMinutes {
			fieldErrs["bucket_size"] = append(fieldErrs["bucket_size"],
				"The bucket size field must be an integer between 5 and 1440")
		} else {
			width = parsed
		}
	}

	if len(fieldErrs) == 0 {
		fieldErrs = nil
	}
	return start, end, width, fieldErrs
}

func parseTimeParam(r *http.Request, key string, fieldErrs map[string][]string) (time.Time, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		fieldErrs[key] = append(fieldErrs[key], "The "+key+" field is required")
		return time.Time{}, false
	}
	parsed, err := readings.ParseTime(raw)
	if err != nil {
		fieldErrs[key] = append(fieldErrs[key], "The "+key+" field must match the format "+readings.TimeFormat)
		return time.Time{}, false
	}
	return parsed, true
}

func exportFormat(r *http.Request) string {
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		return "xlsx"
	}
	return format
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeErrors(w http.ResponseWriter, status int, fields map[string][]string) {
	writeJSON(w, status, map[string]any{"errors": fields})
}
