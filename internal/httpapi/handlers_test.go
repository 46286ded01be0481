package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cati-platform/internal/audit"
	"cati-platform/internal/auth"
	"cati-platform/internal/queue"

	"github.com/gin-gonic/gin"
)

func newTestRouter(t *testing.T, store *queue.MemoryStore, userID, role string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	auditSvc := audit.NewService(audit.NewMemoryRepo())
	h := Handlers{
		Queue:       queue.NewService(store, auditSvc),
		Initializer: queue.NewInitializer(store),
	}

	r := gin.New()
	r.Use(func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), userID, role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	r.POST("/v1/surveys/:survey_id/queue/import", h.ImportContacts)
	r.POST("/v1/surveys/:survey_id/queue/claim", h.ClaimNext)
	r.GET("/v1/surveys/:survey_id/queue/summary", h.QueueSummary)
	r.POST("/v1/queue/:entry_id/abandon", h.Abandon)
	return r
}

func do(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestClaimNext_EmptyQueueIs200NotError(t *testing.T) {
	r := newTestRouter(t, queue.NewMemoryStore(), "int-1", "interviewer")

	w := do(t, r, http.MethodPost, "/v1/surveys/s-1/queue/claim", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"available":false`) {
		t.Fatalf("expected available=false payload, got %s", w.Body.String())
	}
}

func TestClaimNext_ReturnsEntry(t *testing.T) {
	store := queue.NewMemoryStore()
	seedEntry(t, store, "e-1")
	r := newTestRouter(t, store, "int-1", "interviewer")

	w := do(t, r, http.MethodPost, "/v1/surveys/s-1/queue/claim", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if !strings.Contains(body, `"available":true`) || !strings.Contains(body, `"e-1"`) {
		t.Fatalf("expected claimed entry, got %s", body)
	}
}

func TestAbandon_NotOwner403(t *testing.T) {
	store := queue.NewMemoryStore()
	seedEntry(t, store, "e-1")
	if _, err := store.ClaimNext(context.Background(), "s-1", "int-1", time.Now().UTC()); err != nil {
		t.Fatalf("claim: %v", err)
	}
	r := newTestRouter(t, store, "int-2", "interviewer")

	w := do(t, r, http.MethodPost, "/v1/queue/e-1/abandon", `{"reason":"busy"}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAbandon_UnknownEntry404(t *testing.T) {
	r := newTestRouter(t, queue.NewMemoryStore(), "int-1", "interviewer")

	w := do(t, r, http.MethodPost, "/v1/queue/missing/abandon", `{"reason":"busy"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestImportContacts_ReportsQueuedAndSkipped(t *testing.T) {
	store := queue.NewMemoryStore()
	r := newTestRouter(t, store, "sup-1", "supervisor")

	body := `{"contacts":[{"name":"A","country_code":"91","phone":"9000000001"},{"name":"B","country_code":"91","phone":"90000 00001"}]}`
	w := do(t, r, http.MethodPost, "/v1/surveys/s-1/queue/import", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"queued":1`) || !strings.Contains(w.Body.String(), `"skipped":1`) {
		t.Fatalf("expected 1 queued / 1 skipped, got %s", w.Body.String())
	}
}

func TestQueueSummary_CountsByStatus(t *testing.T) {
	store := queue.NewMemoryStore()
	seedEntry(t, store, "e-1")
	seedEntry(t, store, "e-2")
	r := newTestRouter(t, store, "sup-1", "supervisor")

	w := do(t, r, http.MethodGet, "/v1/surveys/s-1/queue/summary", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"pending":2`) {
		t.Fatalf("expected pending count, got %s", w.Body.String())
	}
}

func seedEntry(t *testing.T, store *queue.MemoryStore, id string) {
	t.Helper()
	err := store.Insert(context.Background(), queue.QueueEntry{
		ID:       id,
		SurveyID: "s-1",
		Respondent: queue.Respondent{
			Name:        "R",
			CountryCode: "91",
			Phone:       "9000000001",
		},
		Status:    queue.StatusPending,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
}
