package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sunshineDad/poping/internal/dataset"
)

const progressWriteTimeout = 10 * time.Second

// maxUploadBytes caps a single multipart dataset upload.
const maxUploadBytes = 64 << 20

type datasetHandler struct {
	store     *dataset.Store
	storage   *dataset.Storage
	processor *dataset.Processor
	notifier  *dataset.Notifier
	upgrader  websocket.Upgrader
	logger    *slog.Logger
}

func newDatasetHandler(store *dataset.Store, storage *dataset.Storage, processor *dataset.Processor, notifier *dataset.Notifier, corsOrigins []string, logger *slog.Logger) *datasetHandler {
	originSet := make(map[string]struct{}, len(corsOrigins))
	for _, o := range corsOrigins {
		originSet[o] = struct{}{}
	}

	return &datasetHandler{
		store:     store,
		storage:   storage,
		processor: processor,
		notifier:  notifier,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					// Non-browser clients send no Origin header.
					return true
				}
				_, ok := originSet[origin]
				return ok
			},
		},
	}
}

type createDatasetRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// create accepts either a JSON body (metadata only) or a multipart form with
// name/description fields and one or more "files" parts stored on disk.
// Parsing starts in the background either way; the record is returned PENDING.
func (h *datasetHandler) create(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		h.createFromUpload(w, r, userID)
		return
	}

	var req createDatasetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "malformed request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "missing_name", "dataset name is required")
		return
	}

	d, err := h.store.Create(r.Context(), userID, req.Name, req.Description)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	h.processor.Start(d.ID)
	writeJSON(w, http.StatusAccepted, d)
}

func (h *datasetHandler) createFromUpload(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_upload", "malformed multipart request")
		return
	}
	name := r.FormValue("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing_name", "dataset name is required")
		return
	}
	parts := r.MultipartForm.File["files"]
	if len(parts) == 0 {
		writeError(w, http.StatusBadRequest, "missing_files", "at least one data file is required")
		return
	}

	d, err := h.store.Create(r.Context(), userID, name, r.FormValue("description"))
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	var files []dataset.File
	for _, part := range parts {
		src, err := part.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_upload", "unreadable file part")
			return
		}
		stored, err := h.storage.Save(d.ID, part.Filename, part.Header.Get("Content-Type"), src)
		src.Close() //nolint:errcheck
		if err != nil {
			writeDomainError(w, err, h.logger)
			return
		}
		f, err := h.store.AddFile(r.Context(), d.ID, stored)
		if err != nil {
			writeDomainError(w, err, h.logger)
			return
		}
		files = append(files, *f)
	}

	h.processor.Start(d.ID)
	writeJSON(w, http.StatusAccepted, map[string]any{"dataset": d, "files": files})
}

// files lists a dataset's uploaded files after an ownership check.
func (h *datasetHandler) files(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "dataset id must be a UUID")
		return
	}

	if _, err := h.store.Get(r.Context(), id, userID); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	files, err := h.store.Files(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (h *datasetHandler) list(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	datasets, err := h.store.ListByUser(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"datasets": datasets})
}

func (h *datasetHandler) get(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "dataset id must be a UUID")
		return
	}

	d, err := h.store.Get(r.Context(), id, userID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *datasetHandler) delete(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "dataset id must be a UUID")
		return
	}

	// Collect file paths before the row delete cascades the file records.
	files, err := h.store.Files(r.Context(), id)
	if err != nil {
		h.logger.Warn("listing dataset files for cleanup", "dataset_id", id, "error", err)
	}

	if err := h.store.Delete(r.Context(), id, userID); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	// Stored files are cleaned up best-effort; the row delete is
	// authoritative.
	for _, f := range files {
		if err := h.storage.Remove(f.StoragePath); err != nil {
			h.logger.Warn("removing dataset file", "dataset_id", id, "path", f.StoragePath, "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// progress upgrades to a WebSocket and relays progress updates for one
// dataset until the client disconnects or the request context ends.
func (h *datasetHandler) progress(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "dataset id must be a UUID")
		return
	}

	// Ownership check before the upgrade; errors can still go out as JSON.
	d, err := h.store.Get(r.Context(), id, userID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the handshake error.
		h.logger.Debug("websocket upgrade failed", "dataset_id", id, "error", err)
		return
	}
	defer conn.Close() //nolint:errcheck

	updates := h.notifier.Subscribe(id)
	defer h.notifier.Unsubscribe(id, updates)

	// Reader goroutine: drains control frames and signals client close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Send the current state first so late subscribers are not blank.
	initial := dataset.ProgressUpdate{
		DatasetID: d.ID,
		Status:    d.Status,
		Progress:  d.ParseProgress,
		Timestamp: time.Now().UTC(),
	}
	if err := h.writeUpdate(conn, initial); err != nil {
		return
	}

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := h.writeUpdate(conn, update); err != nil {
				return
			}
			if update.Status == dataset.StatusReady || update.Status == dataset.StatusFailed {
				deadline := time.Now().Add(progressWriteTimeout)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
				return
			}
		}
	}
}

func (h *datasetHandler) writeUpdate(conn *websocket.Conn, update dataset.ProgressUpdate) error {
	if err := conn.SetWriteDeadline(time.Now().Add(progressWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(update)
}
