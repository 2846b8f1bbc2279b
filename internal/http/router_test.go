package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/progressledger/internal/data/repos"
	"github.com/yungbote/progressledger/internal/data/repos/testutil"
	httpH "github.com/yungbote/progressledger/internal/http/handlers"
	"github.com/yungbote/progressledger/internal/realtime"
	"github.com/yungbote/progressledger/internal/services"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.DB(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)

	hub := realtime.NewHub(log)
	notify := services.NewJobNotifier(log, hub, nil)
	attribution := services.NewAttributionService(db, log, set.Notifications, set.Characters, 0)
	writer := services.NewLedgerWriter(db, log, set)
	characters := services.NewCharacterService(log, set.Characters)
	chapters := services.NewChapterService(db, log, set.Chapters, set.Notifications)
	query := services.NewQueryService(log, set)
	jobs := services.NewJobService(log, set.JobRuns, notify, nil, services.JobServiceConfig{})

	return NewRouter(RouterConfig{
		Log:                 log,
		NotificationHandler: httpH.NewNotificationHandler(log, attribution, writer),
		CharacterHandler:    httpH.NewCharacterHandler(log, characters, query),
		ChapterHandler:      httpH.NewChapterHandler(log, chapters),
		JobHandler:          httpH.NewJobHandler(log, jobs),
		RealtimeHandler:     httpH.NewRealtimeHandler(log, hub),
		HealthHandler:       httpH.NewHealthHandler(db),
	})
}

func do(t *testing.T, r *gin.Engine, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	out := map[string]any{}
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") != "text/plain; charset=utf-8" {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestHealthAndMetrics(t *testing.T) {
	r := newTestRouter(t)
	if code, _ := do(t, r, http.MethodGet, "/healthcheck", nil); code != http.StatusOK {
		t.Fatalf("healthcheck status %d", code)
	}
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte("progressledger_http_requests_total")) {
		t.Fatalf("metrics status=%d", rec.Code)
	}
}

func TestIngestAttributeProcessAndQuery(t *testing.T) {
	r := newTestRouter(t)

	code, body := do(t, r, http.MethodPost, "/api/characters", map[string]any{
		"name":    "Erin Solstice",
		"aliases": []string{"Erin"},
	})
	if code != http.StatusCreated {
		t.Fatalf("create character: %d %v", code, body)
	}
	character := body["character"].(map[string]any)
	characterID := character["id"].(string)

	code, body = do(t, r, http.MethodGet, "/api/characters?name=erin", nil)
	if code != http.StatusOK || len(body["characters"].([]any)) != 1 {
		t.Fatalf("resolve by alias: %d %v", code, body)
	}

	code, body = do(t, r, http.MethodPost, "/api/chapters", map[string]any{
		"order_index": 4,
		"title":       "1.04",
		"text":        "The inn was quiet. [Skill - Basic Cooking obtained!] And then [mumbling noises]",
	})
	if code != http.StatusOK || body["candidates"].(float64) != 2 {
		t.Fatalf("ingest chapter: %d %v", code, body)
	}

	code, body = do(t, r, http.MethodGet, "/api/notifications?status=unassigned", nil)
	if code != http.StatusOK || body["total"].(float64) != 2 {
		t.Fatalf("list unassigned: %d %v", code, body)
	}
	var typedID string
	for _, raw := range body["notifications"].([]any) {
		n := raw.(map[string]any)
		if n["type"] == "ability_obtained" {
			typedID = n["id"].(string)
		}
	}
	if typedID == "" {
		t.Fatalf("expected a pattern-typed notification in %v", body)
	}

	code, body = do(t, r, http.MethodPost, "/api/notifications/assign", map[string]any{
		"notification_ids": []string{typedID},
		"character_id":     characterID,
	})
	if code != http.StatusOK {
		t.Fatalf("assign: %d %v", code, body)
	}

	code, body = do(t, r, http.MethodPost, "/api/notifications/process", map[string]any{
		"notification_ids": []string{typedID},
	})
	if code != http.StatusOK || body["processed_count"].(float64) != 1 || body["failed_count"].(float64) != 0 {
		t.Fatalf("process: %d %v", code, body)
	}

	base := "/api/characters/" + characterID + "/abilities"
	code, body = do(t, r, http.MethodGet, base+"?as_of=4", nil)
	if code != http.StatusOK || len(body["abilities"].([]any)) != 1 {
		t.Fatalf("abilities as of 4: %d %v", code, body)
	}
	code, body = do(t, r, http.MethodGet, base+"?as_of=3", nil)
	if code != http.StatusOK || len(body["abilities"].([]any)) != 0 {
		t.Fatalf("abilities as of 3 should be empty: %d %v", code, body)
	}
	code, body = do(t, r, http.MethodGet, base, nil)
	if code != http.StatusBadRequest || errorCode(body) != "validation_error" {
		t.Fatalf("missing as_of: %d %v", code, body)
	}
	code, body = do(t, r, http.MethodGet, base+"?spoilers=true", nil)
	if code != http.StatusOK || len(body["abilities"].([]any)) != 1 {
		t.Fatalf("spoilers: %d %v", code, body)
	}
	code, body = do(t, r, http.MethodGet, base+"?as_of=4&kind=hat", nil)
	if code != http.StatusBadRequest {
		t.Fatalf("unknown kind: %d %v", code, body)
	}

	code, body = do(t, r, http.MethodGet, "/api/characters/"+characterID+"/timeline?as_of=10", nil)
	if code != http.StatusOK || len(body["timeline"].([]any)) != 1 {
		t.Fatalf("timeline: %d %v", code, body)
	}

	stranger := "/api/characters/" + uuid.NewString()
	for _, tc := range []struct{ path, key string }{
		{stranger + "/classes?as_of=1", "classes"},
		{stranger + "/abilities?as_of=1", "abilities"},
		{stranger + "/timeline?spoilers=true", "timeline"},
	} {
		code, body = do(t, r, http.MethodGet, tc.path, nil)
		list, ok := body[tc.key].([]any)
		if code != http.StatusOK || !ok || len(list) != 0 {
			t.Fatalf("unknown character %s: want empty %s, got %d %v", tc.path, tc.key, code, body)
		}
	}
	if code, body = do(t, r, http.MethodGet, stranger, nil); code != http.StatusNotFound || errorCode(body) != "not_found" {
		t.Fatalf("unknown character lookup: %d %v", code, body)
	}
}

func TestNotificationEndpointsRejectBadInput(t *testing.T) {
	r := newTestRouter(t)

	if code, body := do(t, r, http.MethodGet, "/api/notifications/not-a-uuid", nil); code != http.StatusBadRequest {
		t.Fatalf("bad id: %d %v", code, body)
	}
	if code, body := do(t, r, http.MethodGet, "/api/notifications/"+uuid.NewString(), nil); code != http.StatusNotFound {
		t.Fatalf("missing notification: %d %v", code, body)
	}
	if code, body := do(t, r, http.MethodPost, "/api/notifications/process", map[string]any{"notification_ids": []string{}}); code != http.StatusBadRequest {
		t.Fatalf("empty ids: %d %v", code, body)
	}
	code, body := do(t, r, http.MethodPost, "/api/notifications/process", map[string]any{"notification_ids": []string{uuid.NewString()}})
	if code != http.StatusNotFound {
		t.Fatalf("unknown ids: %d %v", code, body)
	}
	if code, body := do(t, r, http.MethodGet, "/api/notifications?status=bogus", nil); code != http.StatusBadRequest {
		t.Fatalf("unknown status: %d %v", code, body)
	}
}

func TestJobLifecycle(t *testing.T) {
	r := newTestRouter(t)

	code, body := do(t, r, http.MethodPost, "/api/jobs", map[string]any{"job_type": "process"})
	if code != http.StatusCreated {
		t.Fatalf("start: %d %v", code, body)
	}
	jobID := body["job"].(map[string]any)["id"].(string)

	code, body = do(t, r, http.MethodPost, "/api/jobs", map[string]any{"job_type": "classify"})
	if code != http.StatusConflict || errorCode(body) != "conflict" {
		t.Fatalf("second job should conflict: %d %v", code, body)
	}

	code, body = do(t, r, http.MethodPost, "/api/jobs/"+jobID+"/cancel", nil)
	if code != http.StatusOK || body["job"].(map[string]any)["status"] != "cancelled" {
		t.Fatalf("cancel: %d %v", code, body)
	}
	code, body = do(t, r, http.MethodPost, "/api/jobs/"+jobID+"/cancel", nil)
	if code != http.StatusConflict {
		t.Fatalf("second cancel: %d %v", code, body)
	}

	code, body = do(t, r, http.MethodGet, "/api/jobs?status=cancelled", nil)
	if code != http.StatusOK || len(body["jobs"].([]any)) != 1 {
		t.Fatalf("list: %d %v", code, body)
	}
	if code, body := do(t, r, http.MethodGet, "/api/jobs/"+jobID, nil); code != http.StatusOK {
		t.Fatalf("get: %d %v", code, body)
	}
	if code, body := do(t, r, http.MethodPost, "/api/jobs", map[string]any{"job_type": "nope"}); code != http.StatusBadRequest {
		t.Fatalf("unknown type: %d %v", code, body)
	}
}
