package httpx

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"beacon-presence-api/internal/analytics"
	"beacon-presence-api/internal/docstore"
	"beacon-presence-api/internal/httpx/kit"
	"beacon-presence-api/internal/httpx/kit/testutil"
	"beacon-presence-api/internal/logx"
	"beacon-presence-api/internal/presence"
)

func newApp(t *testing.T) *fiber.App {
	t.Helper()
	svc := presence.NewService(docstore.NewMemory(), presence.WithLogger(logx.Nop()))
	app := fiber.New(fiber.Config{ErrorHandler: kit.ErrorHandler()})
	RegisterCommonMiddlewares(app)
	Register(app, Deps{
		Presence:  svc,
		Analytics: analytics.NewEngine(svc.Ledger(), svc.Locations(), nil),
	})
	return app
}

func TestE2E_HealthSetsTimingHeaders(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: kit.ErrorHandler()})
	RegisterCommonMiddlewares(app)
	Register(app, Deps{})

	res, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", res.StatusCode)
	}
	if got := res.Header.Get("X-Response-Time"); got == "" {
		t.Fatalf("missing X-Response-Time header")
	}
	if got := res.Header.Get("Server-Timing"); !strings.HasPrefix(got, "app;dur=") {
		t.Fatalf("missing or invalid Server-Timing header: %q", got)
	}
	if res.Header.Get("X-Request-ID") == "" {
		t.Fatalf("missing request id")
	}
}

func TestE2E_NotFoundEnvelope(t *testing.T) {
	app := newApp(t)
	status, env := testutil.Do(t, app, http.MethodGet, "/nope", "")
	if status != http.StatusNotFound || env.Code != "E_NOT_FOUND" {
		t.Fatalf("status=%d code=%s", status, env.Code)
	}
}

// A visitor walks A -> B -> A and lingers at A; the day's analytics should
// see one prospect and both movements.
func TestE2E_DetectionsToProspects(t *testing.T) {
	app := newApp(t)
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	for _, loc := range []string{"A", "B"} {
		status, _ := testutil.Do(t, app, http.MethodPut, "/api/v1/locations/"+loc,
			fmt.Sprintf(`{"x":1,"y":2,"display_name":"Booth %s"}`, loc))
		if status != http.StatusOK {
			t.Fatalf("put location %s: %d", loc, status)
		}
	}

	steps := []struct {
		beacon string
		sec    int
		kind   string
	}{
		{"A", 0, ""},
		{"B", 60, ""},
		{"A", 120, ""},
		{"A", 130, "long_stay"},
	}
	for _, s := range steps {
		body := fmt.Sprintf(`{"user_id":"u1","beacon_id":%q,"kind":%q,"observed_at":%q}`,
			s.beacon, s.kind, base.Add(time.Duration(s.sec)*time.Second).Format(time.RFC3339))
		status, env := testutil.Do(t, app, http.MethodPost, "/api/v1/detections", body)
		if status != http.StatusCreated && status != http.StatusOK {
			t.Fatalf("detection %+v: status=%d code=%s", s, status, env.Code)
		}
	}

	status, env := testutil.Do(t, app, http.MethodGet, "/api/v1/prospects/2024-05-01?with_total=true", "")
	if status != http.StatusOK {
		t.Fatalf("prospects status=%d", status)
	}
	var prospects []analytics.Session
	testutil.Data(t, env, &prospects)
	if len(prospects) != 1 || prospects[0].UserID != "u1" {
		t.Fatalf("prospects = %+v", prospects)
	}

	status, env = testutil.Do(t, app, http.MethodGet, "/api/v1/movements/2024-05-01", "")
	var moves []analytics.Transition
	testutil.Data(t, env, &moves)
	if status != http.StatusOK || len(moves) != 2 {
		t.Fatalf("movements status=%d moves=%+v", status, moves)
	}

	status, env = testutil.Do(t, app, http.MethodGet, "/api/v1/ledger/2024-05-01/audit?only=mismatched", "")
	var reports []presence.AuditReport
	testutil.Data(t, env, &reports)
	if status != http.StatusOK || len(reports) != 0 {
		t.Fatalf("audit status=%d reports=%+v", status, reports)
	}

	status, _ = testutil.Do(t, app, http.MethodGet, "/api/v1/ledger/01-05-2024", "")
	if status != http.StatusBadRequest {
		t.Fatalf("bad day status=%d", status)
	}
}

func TestE2E_RouteOptimizeDropsUnknownTargets(t *testing.T) {
	app := newApp(t)
	stops := []struct {
		id   string
		body string
	}{
		{"C", `{"x":3,"y":0}`},
		{"A", `{"x":1,"y":0}`},
		{"B", `{"x":2,"y":0}`},
	}
	for _, s := range stops {
		if status, _ := testutil.Do(t, app, http.MethodPut, "/api/v1/locations/"+s.id, s.body); status != http.StatusOK {
			t.Fatalf("put %s: %d", s.id, status)
		}
	}
	status, env := testutil.Do(t, app, http.MethodPost, "/api/v1/routes/optimize",
		`{"start":{"x":0,"y":0},"targets":["C","ghost","A","B"]}`)
	if status != http.StatusOK {
		t.Fatalf("status=%d code=%s", status, env.Code)
	}
	var out struct {
		Order         []string `json:"order"`
		TotalDistance float64  `json:"total_distance"`
		Dropped       []string `json:"dropped"`
	}
	testutil.Data(t, env, &out)
	if strings.Join(out.Order, ",") != "A,B,C" || out.TotalDistance != 3 {
		t.Fatalf("route = %+v", out)
	}
	if len(out.Dropped) != 1 || out.Dropped[0] != "ghost" {
		t.Fatalf("dropped = %v", out.Dropped)
	}
}
