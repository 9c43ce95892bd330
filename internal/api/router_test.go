package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/timmy/vismatch/internal/domain"
	"github.com/timmy/vismatch/internal/repository"
	"github.com/timmy/vismatch/internal/service"
)

const testSecret = "test-secret"

type memoryHistory struct {
	mu      sync.Mutex
	records []domain.SearchHistory
}

func (m *memoryHistory) Create(ctx context.Context, h *domain.SearchHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, *h)
	return nil
}

func (m *memoryHistory) ListByUser(ctx context.Context, userID string, limit int) ([]domain.SearchHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SearchHistory
	for _, r := range m.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func solidPNG(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func dataURL(data []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}

var (
	red  = color.NRGBA{R: 220, G: 20, B: 20, A: 255}
	blue = color.NRGBA{R: 20, G: 20, B: 220, A: 255}
)

type testServer struct {
	router  *gin.Engine
	history *memoryHistory
}

// newTestServer wires the real services over a temporary two-item catalog.
func newTestServer(t *testing.T, withCatalog bool) *testServer {
	t.Helper()
	dir := t.TempDir()
	productsPath := filepath.Join(dir, "products.json")
	if withCatalog {
		items := []domain.CatalogItem{
			{ID: 1, Name: "Red mug", Category: "Kitchen", Price: 8, Image: dataURL(solidPNG(t, red))},
			{ID: 2, Name: "Blue mug", Category: "Kitchen", Price: 9, Image: dataURL(solidPNG(t, blue))},
		}
		data, err := json.Marshal(items)
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(productsPath, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	store := repository.NewCatalogStore(productsPath, repository.NewFileEmbeddingStore(filepath.Join(dir, "embeddings.json")))
	extractor := service.NewStatisticalExtractor(nil, nil)
	resolver := service.NewImageResolver(nil)
	history := &memoryHistory{}
	historyService := service.NewHistoryService(history)

	svc := &Services{
		Match:    service.NewMatchService(store, extractor, resolver, historyService, &service.MatchConfig{Timeout: 10 * time.Second}),
		Catalog:  service.NewCatalogService(store, extractor, resolver, nil, nil),
		History:  historyService,
		Strategy: extractor.Name(),
	}
	return &testServer{
		router:  SetupRouter(svc, &RouterConfig{Mode: "test", MaxUploadMB: 1, JWTSecret: testSecret}),
		history: history,
	}
}

func (s *testServer) do(req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func jsonRequest(method, path string, v any) *http.Request {
	data, _ := json.Marshal(v)
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func uploadRequest(t *testing.T, path, contentType string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="image"; filename="query.png"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func signedToken(t *testing.T, userID string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId": userID,
		"exp":    time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t, true)

	w, body := srv.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("GET /health = %d %v", w.Code, body)
	}

	w, body = srv.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusOK || body["success"] != true || body["timestamp"] == "" {
		t.Errorf("GET /api/health = %d %v", w.Code, body)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header not set")
	}
}

func TestMatchUpload(t *testing.T) {
	srv := newTestServer(t, true)

	w, body := srv.do(uploadRequest(t, "/api/match", "image/png", solidPNG(t, red)))
	if w.Code != http.StatusOK {
		t.Fatalf("POST /api/match = %d %s", w.Code, w.Body.String())
	}
	matches, _ := body["matches"].([]any)
	if len(matches) != 2 || body["totalMatches"] != float64(2) {
		t.Fatalf("matches = %v", body["matches"])
	}
	top := matches[0].(map[string]any)
	if top["id"] != float64(1) || top["score"] != float64(100) {
		t.Errorf("top match = %v, want red mug at 100", top)
	}
	if _, leaked := top["embedding"]; leaked {
		t.Error("match exposes its embedding")
	}
	if len(srv.history.records) != 0 {
		t.Error("anonymous match was recorded")
	}
}

func TestMatchQueryOptions(t *testing.T) {
	srv := newTestServer(t, true)

	req := jsonRequest(http.MethodPost, "/api/match?limit=1&minScore=abc", map[string]string{
		"imageUrl": dataURL(solidPNG(t, blue)),
	})
	w, body := srv.do(req)
	if w.Code != http.StatusOK {
		t.Fatalf("POST /api/match = %d %s", w.Code, w.Body.String())
	}
	matches, _ := body["matches"].([]any)
	if len(matches) != 1 || matches[0].(map[string]any)["id"] != float64(2) {
		t.Errorf("matches = %v, want only the blue mug", matches)
	}
}

func TestMatchErrors(t *testing.T) {
	tests := []struct {
		name       string
		catalog    bool
		req        func(t *testing.T) *http.Request
		wantStatus int
	}{
		{
			name:    "no image",
			catalog: true,
			req: func(t *testing.T) *http.Request {
				return jsonRequest(http.MethodPost, "/api/match", map[string]string{})
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:    "unsupported scheme",
			catalog: true,
			req: func(t *testing.T) *http.Request {
				return jsonRequest(http.MethodPost, "/api/match", map[string]string{"imageUrl": "ftp://example.com/a.png"})
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:    "not an image upload",
			catalog: true,
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "/api/match", "text/plain", []byte("hello"))
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:    "undecodable upload",
			catalog: true,
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "/api/match", "image/png", []byte("not really a png"))
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:    "non-finite minScore",
			catalog: true,
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "/api/match?minScore=NaN", "image/png", solidPNG(t, red))
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:    "catalog missing",
			catalog: false,
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "/api/match", "image/png", solidPNG(t, red))
			},
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.catalog)
			w, body := srv.do(tt.req(t))
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if body["success"] != false {
				t.Errorf("success = %v, want false", body["success"])
			}
		})
	}
}

func TestProductsListAndAdd(t *testing.T) {
	srv := newTestServer(t, true)

	w, body := srv.do(httptest.NewRequest(http.MethodGet, "/api/products", nil))
	if w.Code != http.StatusOK || body["total"] != float64(2) {
		t.Fatalf("GET /api/products = %d %v", w.Code, body)
	}

	w, _ = srv.do(jsonRequest(http.MethodPost, "/api/products/add", map[string]any{
		"imageUrl": dataURL(solidPNG(t, red)),
	}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("add without name = %d, want 400", w.Code)
	}

	w, body = srv.do(jsonRequest(http.MethodPost, "/api/products/add", map[string]any{
		"name":     "Green mug",
		"price":    7.5,
		"imageUrl": dataURL(solidPNG(t, color.NRGBA{G: 200, A: 255})),
	}))
	if w.Code != http.StatusOK {
		t.Fatalf("POST /api/products/add = %d %s", w.Code, w.Body.String())
	}
	product := body["product"].(map[string]any)
	if product["id"] != float64(3) || product["category"] != domain.DefaultCategory || product["price"] != 7.5 {
		t.Errorf("product = %v", product)
	}

	_, body = srv.do(httptest.NewRequest(http.MethodGet, "/api/products", nil))
	if body["total"] != float64(3) {
		t.Errorf("total after add = %v, want 3", body["total"])
	}
}

func TestHistoryRequiresAuth(t *testing.T) {
	srv := newTestServer(t, true)

	w, _ := srv.do(httptest.NewRequest(http.MethodGet, "/api/history", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("GET /api/history without token = %d, want 401", w.Code)
	}

	token := signedToken(t, "user-42")
	req := uploadRequest(t, "/api/match", "image/png", solidPNG(t, red))
	req.Header.Set("Authorization", "Bearer "+token)
	if w, _ := srv.do(req); w.Code != http.StatusOK {
		t.Fatalf("authenticated match = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/history", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: token})
	w, body := srv.do(req)
	if w.Code != http.StatusOK || body["total"] != float64(1) {
		t.Fatalf("GET /api/history = %d %v", w.Code, body)
	}
	rec := body["history"].([]any)[0].(map[string]any)
	if rec["user_id"] != "user-42" || rec["results_count"] != float64(2) {
		t.Errorf("history record = %v", rec)
	}
}

func TestAdminPrecompute(t *testing.T) {
	srv := newTestServer(t, true)

	w, _ := srv.do(httptest.NewRequest(http.MethodPost, "/api/admin/precompute", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("precompute without token = %d, want 401", w.Code)
	}

	req := jsonRequest(http.MethodPost, "/api/admin/precompute", map[string]any{"missingOnly": true})
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "admin"))
	w, body := srv.do(req)
	if w.Code != http.StatusOK {
		t.Fatalf("POST /api/admin/precompute = %d %s", w.Code, w.Body.String())
	}
	result := body["result"].(map[string]any)
	if result["computed"] != float64(2) || result["failed"] != float64(0) {
		t.Errorf("result = %v", result)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/admin/precompute/status", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "admin"))
	w, body = srv.do(req)
	if w.Code != http.StatusOK || body["last_run_status"] != "success" || body["is_running"] != false {
		t.Errorf("status = %d %v", w.Code, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, true)
	srv.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))

	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("http_requests_total")) {
		t.Errorf("GET /metrics = %d, missing http_requests_total", w.Code)
	}
}
