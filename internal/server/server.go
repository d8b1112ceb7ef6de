package server

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "path/filepath"
    "strconv"
    "strings"

    "github.com/rs/zerolog/log"

    "github.com/local/pagecomposer/internal/annotate"
    "github.com/local/pagecomposer/internal/compose"
    "github.com/local/pagecomposer/internal/filetype"
    "github.com/local/pagecomposer/internal/jobs"
    "github.com/local/pagecomposer/internal/metrics"
    "github.com/local/pagecomposer/internal/statuscheck"
    "github.com/local/pagecomposer/internal/store"
    "github.com/local/pagecomposer/internal/storage"
)

// DefaultMaxUpload bounds request bodies when no limit is configured.
const DefaultMaxUpload = 100 << 20

type Submitter interface {
    Submit(ctx context.Context, req compose.Request) (string, error)
}

// Dependencies wire the HTTP surface. Checker may be nil. Rasterizer,
// Assembler and Renderer serve /edit.
type Dependencies struct {
    Jobs       Submitter
    Status     store.StatusStore
    Sink       storage.Sink
    Detector   *filetype.Detector
    Checker    *statuscheck.Checker
    Rasterizer compose.Rasterizer
    Assembler  compose.Assembler
    Renderer   *annotate.Renderer
    Editor     compose.EditorOptions
    MaxUpload  int64
}

type Server struct {
    deps Dependencies
}

func New(deps Dependencies) *Server {
    if deps.MaxUpload <= 0 { deps.MaxUpload = DefaultMaxUpload }
    if deps.Detector == nil { deps.Detector = filetype.New(0) }
    return &Server{deps: deps}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
    mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); _, _ = w.Write([]byte("ok")) })
    mux.Handle("/metrics", metrics.Handler())
    mux.HandleFunc("/status", s.handleStatus)
    mux.HandleFunc("/compose", s.handleCompose)
    mux.HandleFunc("/progress/", s.handleProgress)
    mux.HandleFunc("/download/", s.handleDownload)
    mux.HandleFunc("/edit", s.handleEdit)
}

type composeResp struct {
    Status  string `json:"status"`
    JobID   string `json:"job_id,omitempty"`
    Message string `json:"message"`
    Warning string `json:"warning,omitempty"`
    Code    string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(code)
    _ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
    if s.deps.Checker == nil { http.Error(w, "status checks disabled", http.StatusNotFound); return }
    sum := s.deps.Checker.Summary(r.Context())
    writeJSON(w, http.StatusOK, map[string]any{"ok": sum.OK(), "checks": sum})
}

// readUpload parses a multipart request and returns the "file" part, its
// client-side name and the raw "annotations" field.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, string, bool) {
    r.Body = http.MaxBytesReader(w, r.Body, s.deps.MaxUpload)
    if err := r.ParseMultipartForm(32 << 20); err != nil {
        var tooBig *http.MaxBytesError
        if errors.As(err, &tooBig) {
            http.Error(w, "upload too large", http.StatusRequestEntityTooLarge); return nil, "", "", false
        }
        http.Error(w, "invalid multipart form", http.StatusBadRequest); return nil, "", "", false
    }
    file, hdr, err := r.FormFile("file")
    if err != nil { http.Error(w, "missing file", http.StatusBadRequest); return nil, "", "", false }
    defer file.Close()
    data, err := io.ReadAll(file)
    if err != nil { http.Error(w, "read failed", http.StatusBadRequest); return nil, "", "", false }
    if len(data) == 0 { http.Error(w, "empty file", http.StatusBadRequest); return nil, "", "", false }
    name := r.FormValue("name")
    if name == "" { name = hdr.Filename }
    if name = filepath.Base(name); name == "." || name == string(filepath.Separator) { name = "" }
    return data, name, r.FormValue("annotations"), true
}

func (s *Server) handleCompose(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    data, name, rawAnn, ok := s.readUpload(w, r)
    if !ok { return }

    info := s.deps.Detector.Detect(data)
    if !info.IsImage() {
        err := compose.NewUnsupportedFormatError(info.MIMEType)
        metrics.IncFailure(string(compose.ErrorUnsupportedFormat))
        writeJSON(w, http.StatusUnsupportedMediaType, composeResp{Status: "error", Message: err.Message, Code: string(err.Code)})
        return
    }
    req := compose.Request{Data: data, Name: name}
    if rawAnn != "" {
        var ann annotate.PageAnnotations
        if err := json.Unmarshal([]byte(rawAnn), &ann); err != nil {
            http.Error(w, "invalid annotations", http.StatusBadRequest); return
        }
        req.Annotations = &ann
    }

    jobID, err := s.deps.Jobs.Submit(r.Context(), req)
    if err != nil {
        if errors.Is(err, jobs.ErrQueueFull) || errors.Is(err, jobs.ErrClosed) {
            http.Error(w, "composer busy", http.StatusServiceUnavailable); return
        }
        log.Error().Err(err).Str("name", name).Msg("submit failed")
        http.Error(w, "cannot create job", http.StatusInternalServerError); return
    }
    resp := composeResp{Status: "ok", JobID: jobID, Message: "Composition job created"}
    if msg, warn := s.deps.Detector.OversizeWarning(int64(len(data))); warn {
        resp.Warning = msg
    }
    writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
    id := strings.TrimPrefix(r.URL.Path, "/progress/")
    st, ok, err := s.deps.Status.Get(r.Context(), id)
    if err != nil { http.Error(w, "error", http.StatusInternalServerError); return }
    if !ok { http.Error(w, "not found", http.StatusNotFound); return }
    resp := map[string]any{
        "success":      st.Status == store.StatusCompleted,
        "job_id":       id,
        "status":       st.Status,
        "progress":     st.Progress,
        "message":      st.Message,
        "current_page": st.CurrentPage,
        "total_pages":  st.TotalPages,
        "start_time":   st.Start,
        "end_time":     st.End,
    }
    if v, ok := st.Metadata[jobs.MetaWarnings]; ok { resp["warnings"] = v }
    if v, ok := st.Metadata[jobs.MetaErrorCode]; ok { resp["error_code"] = v }
    writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
    id := strings.TrimPrefix(r.URL.Path, "/download/")
    st, ok, err := s.deps.Status.Get(r.Context(), id)
    if err != nil { http.Error(w, "error", http.StatusInternalServerError); return }
    if !ok { http.Error(w, "not found", http.StatusNotFound); return }
    switch st.Status {
    case store.StatusCompleted:
    case store.StatusFailed:
        http.Error(w, st.Message, http.StatusConflict); return
    default:
        http.Error(w, "not ready", http.StatusAccepted); return
    }
    ref, _ := st.Metadata[jobs.MetaResult].(string)
    if ref == "" { http.Error(w, "result not available", http.StatusNotFound); return }
    b, err := s.deps.Sink.Load(r.Context(), ref)
    if err != nil {
        log.Error().Err(err).Str("job_id", id).Msg("load result failed")
        http.Error(w, "failed to read", http.StatusInternalServerError); return
    }
    name, _ := st.Metadata[jobs.MetaName].(string)
    if name == "" { name = compose.OutputName("") }
    writePDF(w, name, b)
}

// handleEdit flattens annotations onto an uploaded PDF and returns the new
// document. Annotations are keyed by one-based page number, in pixels at the
// editor resolution.
func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    if s.deps.Rasterizer == nil || s.deps.Assembler == nil || s.deps.Renderer == nil {
        http.Error(w, "editing disabled", http.StatusNotFound); return
    }
    data, name, rawAnn, ok := s.readUpload(w, r)
    if !ok { return }
    if info := s.deps.Detector.Detect(data); !info.IsDocument() {
        err := compose.NewUnsupportedFormatError(info.MIMEType)
        writeJSON(w, http.StatusUnsupportedMediaType, composeResp{Status: "error", Message: err.Message, Code: string(err.Code)})
        return
    }
    pages, err := parsePageAnnotations(rawAnn)
    if err != nil { http.Error(w, err.Error(), http.StatusBadRequest); return }

    ed, err := compose.OpenEditor(data, s.deps.Rasterizer, s.deps.Assembler, s.deps.Renderer, s.deps.Editor)
    if err != nil { writeComposeError(w, err); return }
    defer ed.Close()
    if err := ed.Apply(pages); err != nil {
        if _, coded := compose.CodeOf(err); !coded { http.Error(w, err.Error(), http.StatusBadRequest); return }
        writeComposeError(w, err); return
    }
    out, err := ed.Save(r.Context())
    if err != nil { writeComposeError(w, err); return }
    writePDF(w, compose.OutputName(name), out)
}

func parsePageAnnotations(raw string) (map[int]annotate.PageAnnotations, error) {
    out := map[int]annotate.PageAnnotations{}
    if raw == "" { return out, nil }
    var byKey map[string]annotate.PageAnnotations
    if err := json.Unmarshal([]byte(raw), &byKey); err != nil {
        return nil, fmt.Errorf("invalid annotations: %w", err)
    }
    for k, v := range byKey {
        n, err := strconv.Atoi(k)
        if err != nil || n < 1 { return nil, fmt.Errorf("invalid page %q", k) }
        out[n] = v
    }
    return out, nil
}

func writeComposeError(w http.ResponseWriter, err error) {
    code, _ := compose.CodeOf(err)
    status := http.StatusInternalServerError
    switch code {
    case compose.ErrorUnsupportedFormat:
        status = http.StatusUnsupportedMediaType
    case compose.ErrorDecode:
        status = http.StatusUnprocessableEntity
    }
    metrics.IncFailure(string(code))
    writeJSON(w, status, composeResp{Status: "error", Message: err.Error(), Code: string(code)})
}

func writePDF(w http.ResponseWriter, name string, b []byte) {
    w.Header().Set("Content-Type", "application/pdf")
    w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
    w.Header().Set("Content-Length", strconv.Itoa(len(b)))
    _, _ = w.Write(b)
}
