package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restock-monitor/config"
	"restock-monitor/coordinator"
	"restock-monitor/extractor"
	"restock-monitor/internal/types"
	"restock-monitor/store"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := logrus.New()

	db, err := store.Open(filepath.Join(t.TempDir(), "test.sqlite3"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		Site:    config.SiteConfig{BaseURL: "https://example.com", ProductMarker: "/products/", CollectionMarker: "/collections/"},
		Monitor: config.MonitorConfig{RefreshInterval: 30, CheckStrategy: config.StrategyPollCurrentPage},
		Server:  config.ServerConfig{Port: "8080", Environment: "development"},
	}

	opener := func(c *coordinator.Coordinator) (coordinator.Tab, error) {
		return nil, fmt.Errorf("no browser available in tests")
	}

	coord, err := coordinator.New(db, extractor.New(logger), nil, opener, cfg, logger)
	require.NoError(t, err)
	t.Cleanup(coord.Close)

	return SetupRouter(cfg, NewHandler(coord, logger))
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestStatus_InitiallyOff(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp types.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.False(t, resp.IsMonitoring)
	assert.False(t, resp.AutoCheckout)
}

func TestProducts_AddListRemove(t *testing.T) {
	router := newTestRouter(t)

	product := types.Product{Name: "Linen Shirt", URL: "https://example.com/products/linen-shirt", Price: "$120.00"}
	w := doJSON(t, router, http.MethodPost, "/api/v1/products", product)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/products", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp types.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Products, 1)
	assert.Equal(t, "Linen Shirt", resp.Products[0].Name)

	w = doJSON(t, router, http.MethodDelete, "/api/v1/products?url=https%3A%2F%2Fexample.com%2Fproducts%2Flinen-shirt", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/products", nil)
	var after types.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &after))
	assert.Empty(t, after.Products)
}

func TestProducts_RemoveRequiresURL(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodDelete, "/api/v1/products", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAutoCheckoutToggle(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/checkout/auto", map[string]bool{"enabled": true})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/status", nil)
	var resp types.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.AutoCheckout)
}

func TestUpdateInterval_Validation(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPut, "/api/v1/monitoring/interval", map[string]int{"interval": 3})
	assert.Equal(t, http.StatusOK, w.Code)

	var resp types.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "at least")
}

func TestStartMonitoring_FailsWithoutBrowser(t *testing.T) {
	router := newTestRouter(t)

	// No monitored products and no way to open a tab.
	w := doJSON(t, router, http.MethodPost, "/api/v1/monitoring/start",
		types.MonitorSettings{RefreshInterval: 30})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestEventsBuffer(t *testing.T) {
	router := newTestRouter(t)

	product := types.Product{Name: "Linen Shirt", URL: "https://example.com/products/linen-shirt"}
	doJSON(t, router, http.MethodPost, "/api/v1/products", product)

	w := doJSON(t, router, http.MethodGet, "/api/v1/events", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Events []types.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotEmpty(t, body.Events)
	assert.Equal(t, types.EventStatusUpdate, body.Events[0].Type)
}

func TestDispatch_UnknownMessage(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/messages", map[string]string{"type": "nonsense"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp types.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "unknown message type")
}
