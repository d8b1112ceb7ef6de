package server

import (
    "bytes"
    "context"
    "encoding/json"
    "image"
    "image/png"
    "mime/multipart"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/local/pagecomposer/internal/annotate"
    "github.com/local/pagecomposer/internal/compose"
    "github.com/local/pagecomposer/internal/jobs"
    "github.com/local/pagecomposer/internal/raster"
    "github.com/local/pagecomposer/internal/statuscheck"
    "github.com/local/pagecomposer/internal/store"
    "github.com/local/pagecomposer/internal/storage"
)

type fakeAssembler struct{ pages []compose.Page }

func (f *fakeAssembler) Assemble(_ context.Context, pages []compose.Page) ([]byte, error) {
    f.pages = pages
    return []byte("%PDF-fake"), nil
}

type fakeRasterizer struct{ pages int }

func (f fakeRasterizer) Open([]byte) (compose.Document, error) { return fakeDoc(f), nil }

type fakeDoc struct{ pages int }

func (d fakeDoc) NumPages() int                          { return d.pages }
func (d fakeDoc) PageSize(int) (float64, float64, error) { return 210, 297, nil }
func (d fakeDoc) Render(int, float64) (*image.NRGBA, error) {
    img := raster.NewWhite(60, 80)
    for i := 0; i < len(img.Pix); i += 4 {
        img.Pix[i], img.Pix[i+1], img.Pix[i+2] = 128, 128, 128
    }
    return img, nil
}
func (d fakeDoc) Close() error                           { return nil }

type fixture struct {
    srv    *httptest.Server
    status *store.Memory
    asm    *fakeAssembler
}

func newFixture(t *testing.T, maxUpload int64) *fixture {
    t.Helper()
    st := store.NewMemory(time.Hour)
    dir := t.TempDir()
    sink := storage.NewLocal(dir)
    asm := &fakeAssembler{}
    rend, err := annotate.NewRenderer()
    if err != nil {
        t.Fatal(err)
    }
    pool := jobs.New(jobs.Config{Concurrency: 1, QueueSize: 4}, jobs.Dependencies{
        Status:  st,
        Sink:    sink,
        Compose: compose.Dependencies{Assembler: &fakeAssembler{}, Renderer: rend},
        Options: compose.DefaultOptions(),
    })
    pool.Start()
    t.Cleanup(func() { _ = pool.Stop(context.Background()) })

    s := New(Dependencies{
        Jobs:       pool,
        Status:     st,
        Sink:       sink,
        Checker:    statuscheck.New(statuscheck.Options{ResultDir: dir, Rasterizer: available{}}),
        Rasterizer: fakeRasterizer{pages: 2},
        Assembler:  asm,
        Renderer:   rend,
        MaxUpload:  maxUpload,
    })
    mux := http.NewServeMux()
    s.RegisterRoutes(mux)
    srv := httptest.NewServer(mux)
    t.Cleanup(srv.Close)
    return &fixture{srv: srv, status: st, asm: asm}
}

type available struct{}

func (available) IsAvailable() bool { return true }

func pngBytes(t *testing.T, w, h int) []byte {
    t.Helper()
    var buf bytes.Buffer
    if err := png.Encode(&buf, raster.NewWhite(w, h)); err != nil {
        t.Fatal(err)
    }
    return buf.Bytes()
}

func upload(t *testing.T, url, filename string, data []byte, fields map[string]string) *http.Response {
    t.Helper()
    var body bytes.Buffer
    mw := multipart.NewWriter(&body)
    if data != nil {
        fw, err := mw.CreateFormFile("file", filename)
        if err != nil {
            t.Fatal(err)
        }
        _, _ = fw.Write(data)
    }
    for k, v := range fields {
        _ = mw.WriteField(k, v)
    }
    _ = mw.Close()
    resp, err := http.Post(url, mw.FormDataContentType(), &body)
    if err != nil {
        t.Fatal(err)
    }
    return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
    t.Helper()
    defer resp.Body.Close()
    var m map[string]any
    if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
        t.Fatalf("decode: %v", err)
    }
    return m
}

func TestHealth(t *testing.T) {
    f := newFixture(t, 0)
    resp, err := http.Get(f.srv.URL + "/health")
    if err != nil {
        t.Fatal(err)
    }
    resp.Body.Close()
    if resp.StatusCode != http.StatusOK {
        t.Errorf("status = %d", resp.StatusCode)
    }
}

func TestStatusSummary(t *testing.T) {
    f := newFixture(t, 0)
    resp, err := http.Get(f.srv.URL + "/status")
    if err != nil {
        t.Fatal(err)
    }
    m := decode(t, resp)
    if m["ok"] != true {
        t.Errorf("summary = %v", m)
    }
}

func TestComposeProgressDownload(t *testing.T) {
    f := newFixture(t, 0)
    resp := upload(t, f.srv.URL+"/compose", "shot.png", pngBytes(t, 100, 1000), nil)
    if resp.StatusCode != http.StatusCreated {
        t.Fatalf("compose status = %d", resp.StatusCode)
    }
    m := decode(t, resp)
    id, _ := m["job_id"].(string)
    if id == "" || m["status"] != "ok" {
        t.Fatalf("compose body = %v", m)
    }
    if _, ok := m["warning"]; ok {
        t.Error("unexpected size warning")
    }

    deadline := time.Now().Add(5 * time.Second)
    var prog map[string]any
    for time.Now().Before(deadline) {
        resp, err := http.Get(f.srv.URL + "/progress/" + id)
        if err != nil {
            t.Fatal(err)
        }
        prog = decode(t, resp)
        if prog["status"] == store.StatusCompleted {
            break
        }
        time.Sleep(5 * time.Millisecond)
    }
    if prog["status"] != store.StatusCompleted || prog["progress"] != float64(100) {
        t.Fatalf("progress = %v", prog)
    }
    if prog["total_pages"].(float64) < 2 {
        t.Errorf("total_pages = %v", prog["total_pages"])
    }

    resp, err := http.Get(f.srv.URL + "/download/" + id)
    if err != nil {
        t.Fatal(err)
    }
    defer resp.Body.Close()
    var buf bytes.Buffer
    _, _ = buf.ReadFrom(resp.Body)
    if resp.StatusCode != http.StatusOK || buf.String() != "%PDF-fake" {
        t.Fatalf("download = %d %q", resp.StatusCode, buf.String())
    }
    if ct := resp.Header.Get("Content-Type"); ct != "application/pdf" {
        t.Errorf("content type = %q", ct)
    }
    if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "shot-split.pdf") {
        t.Errorf("disposition = %q", cd)
    }
}

func TestComposeRejects(t *testing.T) {
    f := newFixture(t, 0)
    cases := []struct {
        name   string
        file   []byte
        fields map[string]string
        want   int
    }{
        {"missing file", nil, map[string]string{"name": "x"}, http.StatusBadRequest},
        {"unsupported", []byte("just some text"), nil, http.StatusUnsupportedMediaType},
        {"pdf is not an image", []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n"), nil, http.StatusUnsupportedMediaType},
        {"bad annotations", pngBytes(t, 10, 10), map[string]string{"annotations": "{"}, http.StatusBadRequest},
    }
    for _, c := range cases {
        t.Run(c.name, func(t *testing.T) {
            resp := upload(t, f.srv.URL+"/compose", "in.bin", c.file, c.fields)
            resp.Body.Close()
            if resp.StatusCode != c.want {
                t.Errorf("status = %d, want %d", resp.StatusCode, c.want)
            }
        })
    }

    resp, err := http.Get(f.srv.URL + "/compose")
    if err != nil {
        t.Fatal(err)
    }
    resp.Body.Close()
    if resp.StatusCode != http.StatusMethodNotAllowed {
        t.Errorf("GET /compose = %d", resp.StatusCode)
    }
}

func TestComposeUnsupportedBody(t *testing.T) {
    f := newFixture(t, 0)
    m := decode(t, upload(t, f.srv.URL+"/compose", "a.txt", []byte("plain"), nil))
    if m["code"] != string(compose.ErrorUnsupportedFormat) || m["status"] != "error" {
        t.Errorf("body = %v", m)
    }
}

func TestComposeTooLarge(t *testing.T) {
    f := newFixture(t, 64)
    resp := upload(t, f.srv.URL+"/compose", "big.png", pngBytes(t, 400, 400), nil)
    resp.Body.Close()
    if resp.StatusCode != http.StatusRequestEntityTooLarge && resp.StatusCode != http.StatusBadRequest {
        t.Errorf("status = %d", resp.StatusCode)
    }
}

func TestDownloadStates(t *testing.T) {
    f := newFixture(t, 0)
    ctx := context.Background()
    _ = f.status.Set(ctx, "running", store.Status{Status: store.StatusRunning})
    _ = f.status.Set(ctx, "failed", store.Status{Status: store.StatusFailed, Message: "DECODE_ERROR: bad"})
    _ = f.status.Set(ctx, "lost", store.Status{Status: store.StatusCompleted})

    cases := map[string]int{
        "running": http.StatusAccepted,
        "failed":  http.StatusConflict,
        "lost":    http.StatusNotFound,
        "unknown": http.StatusNotFound,
    }
    for id, want := range cases {
        resp, err := http.Get(f.srv.URL + "/download/" + id)
        if err != nil {
            t.Fatal(err)
        }
        resp.Body.Close()
        if resp.StatusCode != want {
            t.Errorf("download %s = %d, want %d", id, resp.StatusCode, want)
        }
    }

    resp, err := http.Get(f.srv.URL + "/progress/unknown")
    if err != nil {
        t.Fatal(err)
    }
    resp.Body.Close()
    if resp.StatusCode != http.StatusNotFound {
        t.Errorf("progress unknown = %d", resp.StatusCode)
    }
}

func TestEdit(t *testing.T) {
    f := newFixture(t, 0)
    pdf := []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")
    ann := `{"2": {"masks": [{"x": 0, "y": 0, "width": 30, "height": 30}], "texts": [{"x": 5, "y": 60, "text": "hi"}]}}`

    resp := upload(t, f.srv.URL+"/edit", "doc.pdf", pdf, map[string]string{"annotations": ann})
    defer resp.Body.Close()
    if resp.StatusCode != http.StatusOK {
        t.Fatalf("edit status = %d", resp.StatusCode)
    }
    if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "doc-split.pdf") {
        t.Errorf("disposition = %q", cd)
    }
    if len(f.asm.pages) != 2 {
        t.Fatalf("assembled %d pages", len(f.asm.pages))
    }
    if px := f.asm.pages[1].Image.NRGBAAt(10, 10); px != raster.White {
        t.Errorf("masked pixel on page 2 = %v", px)
    }
    if px := f.asm.pages[0].Image.NRGBAAt(10, 10); px.R != 128 {
        t.Errorf("page 1 changed: %v", px)
    }

    bad := upload(t, f.srv.URL+"/edit", "doc.pdf", pdf, map[string]string{"annotations": `{"zero": {}}`})
    bad.Body.Close()
    if bad.StatusCode != http.StatusBadRequest {
        t.Errorf("bad page key = %d", bad.StatusCode)
    }
    img := upload(t, f.srv.URL+"/edit", "a.png", pngBytes(t, 10, 10), nil)
    img.Body.Close()
    if img.StatusCode != http.StatusUnsupportedMediaType {
        t.Errorf("image to /edit = %d", img.StatusCode)
    }
}

func TestParsePageAnnotations(t *testing.T) {
    got, err := parsePageAnnotations(`{"1": {"masks": [{"x": 1, "y": 2, "width": 10, "height": 10}]}}`)
    if err != nil || len(got) != 1 || len(got[1].Masks) != 1 {
        t.Fatalf("parse = %v, %v", got, err)
    }
    for _, raw := range []string{`{"0": {}}`, `{"-1": {}}`, `[]`} {
        if _, err := parsePageAnnotations(raw); err == nil {
            t.Errorf("parse %s: expected error", raw)
        }
    }
    if got, err := parsePageAnnotations(""); err != nil || len(got) != 0 {
        t.Errorf("empty = %v, %v", got, err)
    }
}
