package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/kprasolov/betledger/internal/domain"
)

// AdminService defines the operator queries the admin handler requires.
type AdminService interface {
	AuditLog(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// ArchiveTrigger runs one archival sweep and reports exported row counts
// keyed by kind (markets, bets, events).
type ArchiveTrigger func(ctx context.Context) (map[string]int64, error)

// AdminHandler serves the key-protected operator surface.
type AdminHandler struct {
	admin   AdminService
	blobs   domain.BlobReader // optional; archive listing answers 501 when nil
	archive ArchiveTrigger    // optional; archive trigger answers 501 when nil
	logger  *slog.Logger
}

// NewAdminHandler creates an AdminHandler with the given service and logger.
func NewAdminHandler(admin AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		admin:  admin,
		logger: logger,
	}
}

// WithBlobReader enables the archive listing endpoint.
func (h *AdminHandler) WithBlobReader(blobs domain.BlobReader) *AdminHandler {
	h.blobs = blobs
	return h
}

// WithArchiveTrigger enables the on-demand archive endpoint.
func (h *AdminHandler) WithArchiveTrigger(trigger ArchiveTrigger) *AdminHandler {
	h.archive = trigger
	return h
}

// listAuditResponse wraps the audit log response.
type listAuditResponse struct {
	Entries []domain.AuditEntry `json:"entries"`
}

// AuditLog returns audit rows, newest first.
// GET /api/admin/audit?limit=50&offset=0
func (h *AdminHandler) AuditLog(w http.ResponseWriter, r *http.Request) {
	entries, err := h.admin.AuditLog(r.Context(), parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, listAuditResponse{Entries: entries})
}

// listArchivesResponse wraps the archive listing response.
type listArchivesResponse struct {
	Archives []domain.BlobInfo `json:"archives"`
}

// ListArchives returns the exported archive objects so operators can verify
// them before pruning the primary store.
// GET /api/admin/archives
func (h *AdminHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	if h.blobs == nil {
		writeError(w, http.StatusNotImplemented, "archive storage not configured")
		return
	}

	infos, err := h.blobs.List(r.Context(), "archive/")
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	if infos == nil {
		infos = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, listArchivesResponse{Archives: infos})
}

// triggerArchiveResponse reports the counts exported by one sweep.
type triggerArchiveResponse struct {
	Exported map[string]int64 `json:"exported"`
}

// TriggerArchive runs one archival sweep synchronously and returns how many
// markets, bets, and events were exported. Same effect as the periodic
// sweep, available on demand before pruning the primary store.
// POST /api/admin/archive
func (h *AdminHandler) TriggerArchive(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusNotImplemented, "archive storage not configured")
		return
	}

	counts, err := h.archive(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, triggerArchiveResponse{Exported: counts})
}
