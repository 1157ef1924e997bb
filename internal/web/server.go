package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zip"
	"github.com/sirupsen/logrus"

	"github.com/cogomez23/image-size-reducer/internal/config"
	"github.com/cogomez23/image-size-reducer/internal/reducer"
	"github.com/cogomez23/image-size-reducer/internal/statistics"
)

const bytesPerMB = 1024 * 1024

// Server exposes the reducer over HTTP: multipart uploads, single and
// zipped downloads, server-side directory batches with websocket progress.
// All sizing decisions stay in the reducer; this layer only routes bytes.
type Server struct {
	cfg        *config.Config
	log        *logrus.Logger
	router     *mux.Router
	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	wsClients  map[*websocket.Conn]bool
	wsMutex    sync.RWMutex

	operationMutex sync.RWMutex
	isRunning      bool
	currentStats   *statistics.Statistics

	janitorDone chan struct{}
	stopOnce    sync.Once
}

// APIResponse is the envelope for JSON endpoints.
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ReduceRequest starts a server-side directory batch.
type ReduceRequest struct {
	InputDirectory  string  `json:"input_directory"`
	OutputDirectory string  `json:"output_directory"`
	MaxSizeMB       float64 `json:"max_size_mb,omitempty"`
}

// UploadResult is one per-file entry in an upload response.
type UploadResult struct {
	reducer.Report
	OriginalFilename string `json:"original_filename"`
	OutputFilename   string `json:"output_filename,omitempty"`
	DownloadURL      string `json:"download_url,omitempty"`
}

// WSMessage is the broadcast envelope for websocket events.
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// NewServer creates a web server around the given configuration.
func NewServer(cfg *config.Config, log *logrus.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		log:       log,
		router:    mux.NewRouter(),
		wsClients: make(map[*websocket.Conn]bool),
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // dev tool, same-host usage
			},
		},
		janitorDone: make(chan struct{}),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/upload", s.handleUpload).Methods("POST")
	api.HandleFunc("/download/{filename}", s.handleDownload).Methods("GET")
	api.HandleFunc("/download-all", s.handleDownloadAll).Methods("POST")
	api.HandleFunc("/reduce", s.handleReduce).Methods("POST")
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Router returns the HTTP handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start creates the working directories and serves until shutdown.
func (s *Server) Start(port int) error {
	for _, dir := range []string{s.cfg.Web.UploadDirectory, s.cfg.Web.OutputDirectory} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	go s.runJanitor()

	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infof("Starting web server on http://localhost%s", addr)
	return s.httpServer.ListenAndServe()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.janitorDone) })
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// handleUpload accepts multipart image uploads plus a max_size form value
// in megabytes, reduces each file and returns per-file results.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxUpload := int64(s.cfg.Web.MaxUploadSizeMB * bytesPerMB)
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		s.writeError(w, "Invalid multipart request", http.StatusBadRequest)
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		s.writeError(w, "No files selected", http.StatusBadRequest)
		return
	}

	maxSizeMB := s.cfg.MaxFileSizeMB
	if v := r.FormValue("max_size"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed <= 0 || parsed > s.cfg.Web.MaxBudgetMB {
			s.writeError(w, fmt.Sprintf("max_size must be between 0 and %g MB", s.cfg.Web.MaxBudgetMB), http.StatusBadRequest)
			return
		}
		maxSizeMB = parsed
	}
	budget := int64(maxSizeMB * bytesPerMB)

	red := reducer.NewSizeReducer(s.cfg, s.log, nil)
	results := make([]UploadResult, 0, len(files))
	for _, header := range files {
		results = append(results, s.reduceUpload(r.Context(), red, header, budget))
	}

	s.writeJSON(w, map[string]interface{}{"results": results})
}

// reduceUpload stores one uploaded file, reduces it into the output
// directory and removes the stored input.
func (s *Server) reduceUpload(ctx context.Context, red reducer.Reducer, header *multipart.FileHeader, budget int64) UploadResult {
	result := UploadResult{OriginalFilename: header.Filename}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !s.cfg.IsSupportedExtension(ext) {
		result.Error = "unsupported file extension"
		return result
	}

	id, err := uuid.NewV4()
	if err != nil {
		result.Error = fmt.Sprintf("generate id: %v", err)
		return result
	}

	inputPath := filepath.Join(s.cfg.Web.UploadDirectory, id.String()+ext)
	if err := saveMultipartFile(header, inputPath); err != nil {
		result.Error = fmt.Sprintf("store upload: %v", err)
		return result
	}
	defer os.Remove(inputPath)

	base := strings.TrimSuffix(filepath.Base(header.Filename), filepath.Ext(header.Filename))
	outputName := fmt.Sprintf("%s_%s%s.jpg", id.String(), base, s.cfg.Processing.OutputSuffix)
	outputPath := filepath.Join(s.cfg.Web.OutputDirectory, outputName)
	if err := os.MkdirAll(s.cfg.Web.OutputDirectory, 0755); err != nil {
		result.Error = fmt.Sprintf("create output dir: %v", err)
		return result
	}

	report, err := red.ReduceFile(ctx, inputPath, outputPath, budget)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Report = report
	result.Filename = header.Filename
	result.OutputFilename = outputName
	result.DownloadURL = "/api/download/" + outputName
	return result
}

// handleDownload serves one reduced output as an attachment.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	filename := filepath.Base(mux.Vars(r)["filename"])
	path := filepath.Join(s.cfg.Web.OutputDirectory, filename)

	if _, err := os.Stat(path); err != nil {
		s.writeError(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	http.ServeFile(w, r, path)
}

// handleDownloadAll streams the requested outputs as a single zip archive.
func (s *Server) handleDownloadAll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filenames []string `json:"filenames"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Filenames) == 0 {
		s.writeError(w, "No files to download", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="reduced_images.zip"`)

	zw := zip.NewWriter(w)
	defer zw.Close()

	for _, name := range req.Filenames {
		name = filepath.Base(name)
		path := filepath.Join(s.cfg.Web.OutputDirectory, name)

		f, err := os.Open(path)
		if err != nil {
			s.log.Warnf("skipping missing archive entry %s: %v", name, err)
			continue
		}
		entry, err := zw.Create(name)
		if err != nil {
			f.Close()
			s.log.Errorf("zip entry %s: %v", name, err)
			return
		}
		if _, err := io.Copy(entry, f); err != nil {
			f.Close()
			s.log.Errorf("zip write %s: %v", name, err)
			return
		}
		f.Close()
	}
}

// handleReduce starts an asynchronous server-side directory batch.
func (s *Server) handleReduce(w http.ResponseWriter, r *http.Request) {
	var req ReduceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.InputDirectory == "" {
		s.writeError(w, "Input directory is required", http.StatusBadRequest)
		return
	}

	s.operationMutex.RLock()
	running := s.isRunning
	s.operationMutex.RUnlock()
	if running {
		s.writeError(w, "Operation already in progress", http.StatusConflict)
		return
	}

	if info, err := os.Stat(req.InputDirectory); err != nil || !info.IsDir() {
		s.writeError(w, "Input directory does not exist", http.StatusBadRequest)
		return
	}

	go s.runReduceAsync(req)

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Reduction started",
	})
}

func (s *Server) runReduceAsync(req ReduceRequest) {
	stats := statistics.NewStatistics()

	s.operationMutex.Lock()
	s.isRunning = true
	s.currentStats = stats
	s.operationMutex.Unlock()

	s.broadcastWSMessage("batch_started", map[string]interface{}{
		"input_directory":  req.InputDirectory,
		"output_directory": req.OutputDirectory,
	})

	budget := s.cfg.BudgetBytes()
	if req.MaxSizeMB > 0 {
		budget = int64(req.MaxSizeMB * bytesPerMB)
	}

	red := reducer.NewSizeReducer(s.cfg, s.log, stats)
	reports, err := red.ReduceBatch(context.Background(), reducer.BatchParams{
		InputDir:    req.InputDirectory,
		OutputDir:   req.OutputDirectory,
		BudgetBytes: budget,
	})

	s.operationMutex.Lock()
	s.isRunning = false
	s.operationMutex.Unlock()

	if err != nil {
		s.broadcastWSMessage("batch_error", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	s.broadcastWSMessage("batch_completed", map[string]interface{}{
		"reports": reports,
		"summary": stats.GetSummary(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	running := s.isRunning
	stats := s.currentStats
	s.operationMutex.RUnlock()

	var statsData interface{}
	if stats != nil {
		statsData = map[string]interface{}{
			"summary": stats.GetSummary(),
			"files": map[string]interface{}{
				"total_found":     atomic.LoadInt64(&stats.TotalFilesFound),
				"total_processed": atomic.LoadInt64(&stats.TotalFilesProcessed),
				"reduced":         atomic.LoadInt64(&stats.FilesReduced),
				"already_under":   atomic.LoadInt64(&stats.FilesAlreadyUnder),
				"skipped":         atomic.LoadInt64(&stats.FilesSkipped),
				"errors":          atomic.LoadInt64(&stats.FilesWithErrors),
			},
		}
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"running":    running,
			"statistics": statsData,
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.wsMutex.Lock()
	s.wsClients[conn] = true
	s.wsMutex.Unlock()

	s.log.Debug("WebSocket client connected")

	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		s.wsMutex.Unlock()
		s.log.Debug("WebSocket client disconnected")
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) broadcastWSMessage(messageType string, data interface{}) {
	msgBytes, err := json.Marshal(WSMessage{Type: messageType, Data: data})
	if err != nil {
		s.log.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	s.wsMutex.RLock()
	defer s.wsMutex.RUnlock()

	for conn := range s.wsClients {
		if err := conn.WriteMessage(websocket.TextMessage, msgBytes); err != nil {
			s.log.Errorf("Failed to write WebSocket message: %v", err)
			go func(c *websocket.Conn) {
				s.wsMutex.Lock()
				delete(s.wsClients, c)
				s.wsMutex.Unlock()
				c.Close()
			}(conn)
		}
	}
}

// runJanitor deletes stale upload and output files so the working
// directories do not grow without bound.
func (s *Server) runJanitor() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.janitorDone:
			return
		case <-ticker.C:
			s.cleanupOldFiles()
		}
	}
}

func (s *Server) cleanupOldFiles() {
	ttl := time.Duration(s.cfg.Web.FileTTLMinutes) * time.Minute
	cutoff := time.Now().Add(-ttl)

	for _, dir := range []string{s.cfg.Web.UploadDirectory, s.cfg.Web.OutputDirectory} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				path := filepath.Join(dir, entry.Name())
				if err := os.Remove(path); err == nil {
					s.log.Debugf("janitor removed %s", path)
				}
			}
		}
	}
}

// saveMultipartFile copies one uploaded part to disk.
func saveMultipartFile(header *multipart.FileHeader, path string) error {
	src, err := header.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return err
	}
	return dst.Sync()
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   message,
	})
}
