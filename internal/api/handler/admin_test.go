package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/timmy/vismatch/internal/domain"
	"github.com/timmy/vismatch/internal/service"
)

// panickingCatalog blows up as soon as precompute reads the catalog.
type panickingCatalog struct{}

func (panickingCatalog) Load(ctx context.Context) (*domain.CatalogSnapshot, error) {
	panic("catalog exploded")
}

func (panickingCatalog) LoadItems(ctx context.Context) ([]domain.CatalogItem, error) {
	return nil, nil
}

func (panickingCatalog) SaveItems(ctx context.Context, items []domain.CatalogItem) error {
	return nil
}

func (panickingCatalog) PutEmbedding(ctx context.Context, id int64, vec []float32) error {
	return nil
}

func (panickingCatalog) SaveEmbeddings(ctx context.Context, idx domain.EmbeddingIndex) error {
	return nil
}

func (panickingCatalog) Lock(ctx context.Context) (func(), error) {
	return func() {}, nil
}

func TestAdminHandler_PanicClearsRunningFlag(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewAdminHandler(service.NewCatalogService(panickingCatalog{}, nil, nil, nil, nil))

	r := gin.New()
	r.Use(gin.Recovery())
	r.POST("/precompute", h.TriggerPrecompute)
	r.GET("/status", h.GetPrecomputeStatus)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/precompute", nil))
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("trigger %d: status = %d, want 500", i+1, w.Code)
		}
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	var status PrecomputeStatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.IsRunning {
		t.Error("is_running = true after a panicked run")
	}
	if status.LastRunStatus != "failed: panic" {
		t.Errorf("last_run_status = %q, want failed: panic", status.LastRunStatus)
	}
}
