package routes

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"beacon-presence-api/internal/docstore"
	"beacon-presence-api/internal/httpx/kit/testutil"
	"beacon-presence-api/internal/presence"
	"beacon-presence-api/internal/route"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	locs := presence.NewLocationStore(docstore.NewMemory())
	for i, id := range []string{"A", "B", "C"} {
		if err := locs.Put(t.Context(), presence.Location{ID: id, X: float64(i + 1)}); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	planner := route.NewPlanner(locs)
	return testutil.NewApp(func(app *fiber.App) { app.Post("/routes/optimize", OptimizeHandler(planner)) })
}

type optimized struct {
	Order         []string `json:"order"`
	TotalDistance float64  `json:"total_distance"`
	Exact         bool     `json:"exact"`
	Dropped       []string `json:"dropped"`
}

func TestOptimize_InlineStops(t *testing.T) {
	app := newTestApp(t)
	body := `{"start":{"x":0,"y":0},"stops":[{"id":"far","point":{"x":0,"y":9}},{"id":"near","point":{"x":0,"y":1}}]}`
	status, env := testutil.Do(t, app, http.MethodPost, "/routes/optimize", body)
	var out optimized
	testutil.Data(t, env, &out)
	if status != http.StatusOK || strings.Join(out.Order, ",") != "near,far" || out.TotalDistance != 9 || !out.Exact {
		t.Fatalf("status=%d out=%+v", status, out)
	}
}

func TestOptimize_ExactModeRejectsTooManyStops(t *testing.T) {
	app := newTestApp(t)
	stops := make([]string, 0, route.MaxExactStops+1)
	for i := 0; i <= route.MaxExactStops; i++ {
		stops = append(stops, fmt.Sprintf(`{"id":"s%d","point":{"x":%d,"y":0}}`, i, i))
	}
	body := `{"mode":"exact","stops":[` + strings.Join(stops, ",") + `]}`
	status, env := testutil.Do(t, app, http.MethodPost, "/routes/optimize", body)
	if status != http.StatusBadRequest || env.Code != "E_INVALID_PARAM" {
		t.Fatalf("status=%d code=%s", status, env.Code)
	}

	body = `{"stops":[` + strings.Join(stops, ",") + `]}`
	status, env = testutil.Do(t, app, http.MethodPost, "/routes/optimize", body)
	var out optimized
	testutil.Data(t, env, &out)
	if status != http.StatusOK || out.Exact || len(out.Order) != route.MaxExactStops+1 {
		t.Fatalf("auto mode: status=%d out=%+v", status, out)
	}
}

func TestOptimize_UnknownTargetsDropped(t *testing.T) {
	app := newTestApp(t)
	status, env := testutil.Do(t, app, http.MethodPost, "/routes/optimize", `{"targets":["ghost","C","A"]}`)
	var out optimized
	testutil.Data(t, env, &out)
	if status != http.StatusOK || strings.Join(out.Order, ",") != "A,C" || strings.Join(out.Dropped, ",") != "ghost" {
		t.Fatalf("status=%d out=%+v", status, out)
	}

	status, env = testutil.Do(t, app, http.MethodPost, "/routes/optimize", `{"targets":[]}`)
	testutil.Data(t, env, &out)
	if status != http.StatusOK || len(out.Order) != 0 {
		t.Fatalf("empty: status=%d out=%+v", status, out)
	}

	status, _ = testutil.Do(t, app, http.MethodPost, "/routes/optimize", `{"mode":"fastest"}`)
	if status != http.StatusBadRequest {
		t.Fatalf("bad mode status=%d", status)
	}
}

func TestOptimize_DuplicateStopsVisitedOnce(t *testing.T) {
	app := newTestApp(t)
	body := `{"stops":[{"id":"A","point":{"x":1,"y":0}},{"id":"A","point":{"x":1,"y":0}}],"targets":["B","A"]}`
	status, env := testutil.Do(t, app, http.MethodPost, "/routes/optimize", body)
	var out optimized
	testutil.Data(t, env, &out)
	if status != http.StatusOK || strings.Join(out.Order, ",") != "A,B" || out.TotalDistance != 2 {
		t.Fatalf("status=%d out=%+v", status, out)
	}

	stops := make([]string, 0, route.MaxExactStops+1)
	for i := 0; i < route.MaxExactStops; i++ {
		stops = append(stops, fmt.Sprintf(`{"id":"s%d","point":{"x":%d,"y":0}}`, i, i))
	}
	stops = append(stops, `{"id":"s0","point":{"x":0,"y":0}}`)
	body = `{"mode":"exact","stops":[` + strings.Join(stops, ",") + `]}`
	status, env = testutil.Do(t, app, http.MethodPost, "/routes/optimize", body)
	testutil.Data(t, env, &out)
	if status != http.StatusOK || !out.Exact || len(out.Order) != route.MaxExactStops {
		t.Fatalf("exact with duplicate: status=%d out=%+v", status, out)
	}
}
