package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/adamchain/heyway-core/internal/config"
	"github.com/adamchain/heyway-core/internal/dnc"
	"github.com/adamchain/heyway-core/internal/importer"
	"github.com/adamchain/heyway-core/internal/pkg/httputil"
	"github.com/adamchain/heyway-core/internal/poller"
	"github.com/adamchain/heyway-core/internal/queue"
)

// ImportRunner is the import pipeline surface the handlers need.
type ImportRunner interface {
	Import(ctx context.Context, records []importer.Record, opts importer.Options) (*importer.JobResult, error)
	GetProgress(ctx context.Context, jobID string) (*importer.Progress, error)
}

// Handlers holds the dependencies shared by all HTTP handlers.
type Handlers struct {
	imports    ImportRunner
	sync       *poller.Synchronizer
	dncEngine  *dnc.Engine
	importOpts importer.Options
	queueCfg   config.QueueConfig
}

// NewHandlers creates the handler set. sync and dncEngine may be nil
// when those subsystems are disabled.
func NewHandlers(imports ImportRunner, sync *poller.Synchronizer, dncEngine *dnc.Engine,
	importOpts importer.Options, queueCfg config.QueueConfig) *Handlers {
	return &Handlers{
		imports:    imports,
		sync:       sync,
		dncEngine:  dncEngine,
		importOpts: importOpts,
		queueCfg:   queueCfg,
	}
}

// HealthCheck reports service liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	if h.sync != nil {
		status["synchronizer_running"] = h.sync.IsRunning()
	}
	httputil.OK(w, status)
}

// =============================================================================
// IMPORT
// =============================================================================

// importRequest is the JSON body for validation and import calls.
type importRequest struct {
	Records              []importer.Record `json:"records"`
	RequireReferenceDate *bool             `json:"requireReferenceDate,omitempty"`
	ReferenceDateField   string            `json:"referenceDateField,omitempty"`
}

func (h *Handlers) requestOptions(req importRequest) importer.Options {
	opts := h.importOpts
	if req.RequireReferenceDate != nil {
		opts.RequireReferenceDate = *req.RequireReferenceDate
	}
	if req.ReferenceDateField != "" {
		opts.ReferenceDateField = req.ReferenceDateField
	}
	return opts
}

// ValidateImport runs the pure validation pass and returns the result
// without persisting anything. The mobile client uses this as a
// pre-flight check.
func (h *Handlers) ValidateImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if len(req.Records) == 0 {
		httputil.BadRequest(w, "records is required")
		return
	}

	res := importer.Validate(req.Records, h.requestOptions(req))
	httputil.OK(w, res)
}

// RunImport executes the full import pipeline for a JSON batch.
func (h *Handlers) RunImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if len(req.Records) == 0 {
		httputil.BadRequest(w, "records is required")
		return
	}

	res, err := h.imports.Import(r.Context(), req.Records, h.requestOptions(req))
	if err != nil {
		if errors.Is(err, importer.ErrImportInProgress) {
			httputil.Conflict(w, err.Error())
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, res)
}

// RunFileImport executes the import pipeline for an uploaded CSV file.
// The file is read from the "file" multipart field.
func (h *Handlers) RunFileImport(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("file")
	if err != nil {
		httputil.BadRequest(w, "missing file upload: "+err.Error())
		return
	}
	defer file.Close()

	records, err := importer.ParseCSV(file)
	if err != nil {
		httputil.BadRequest(w, "cannot parse CSV: "+err.Error())
		return
	}

	res, err := h.imports.Import(r.Context(), records, h.importOpts)
	if err != nil {
		if errors.Is(err, importer.ErrImportInProgress) {
			httputil.Conflict(w, err.Error())
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, res)
}

// GetImportProgress returns the live progress of a running or recently
// finished import job.
func (h *Handlers) GetImportProgress(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	p, err := h.imports.GetProgress(r.Context(), jobID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if p == nil {
		httputil.NotFound(w, "unknown import job")
		return
	}
	httputil.OK(w, p)
}

// =============================================================================
// AUTOMATIONS
// =============================================================================

// ListAutomations returns the synchronizer's current collection along
// with its freshness metadata.
func (h *Handlers) ListAutomations(w http.ResponseWriter, r *http.Request) {
	if h.sync == nil {
		httputil.OK(w, map[string]any{"automations": []poller.Snapshot{}})
		return
	}
	httputil.OK(w, map[string]any{
		"automations": h.sync.Data(),
		"loading":     h.sync.Loading(),
		"lastError":   h.sync.LastError(),
		"lastUpdated": h.sync.LastUpdated(),
	})
}

// RefreshAutomations forces one immediate fetch cycle.
func (h *Handlers) RefreshAutomations(w http.ResponseWriter, r *http.Request) {
	if h.sync == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "synchronizer disabled")
		return
	}
	if err := h.sync.Refresh(r.Context()); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"automations": h.sync.Data()})
}

// =============================================================================
// QUEUE
// =============================================================================

// GetQueueEstimate estimates the dialing window for a contact count.
func (h *Handlers) GetQueueEstimate(w http.ResponseWriter, r *http.Request) {
	contacts, err := strconv.Atoi(r.URL.Query().Get("contacts"))
	if err != nil || contacts < 0 {
		httputil.BadRequest(w, "contacts must be a non-negative integer")
		return
	}

	window := queue.EstimateWindow(contacts, h.queueCfg.CallsPerSecond, h.queueCfg.ConcurrencyCap)
	resp := map[string]any{
		"contacts": contacts,
		"window":   window,
	}
	if msg := queue.TimingMessageFor(contacts, h.queueCfg.AdvisoryThreshold, window); msg != "" {
		resp["message"] = msg
	}
	httputil.OK(w, resp)
}

// =============================================================================
// DNC
// =============================================================================

// GetDNCStats reports loaded do-not-call lists and hit counters.
func (h *Handlers) GetDNCStats(w http.ResponseWriter, r *http.Request) {
	if h.dncEngine == nil {
		httputil.OK(w, map[string]any{"enabled": false})
		return
	}
	httputil.OK(w, h.dncEngine.Stats())
}
