package insights

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"beacon-presence-api/internal/analytics"
	"beacon-presence-api/internal/docstore"
	"beacon-presence-api/internal/httpx/kit/testutil"
	"beacon-presence-api/internal/logx"
	"beacon-presence-api/internal/presence"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func seeded(t *testing.T) *fiber.App {
	t.Helper()
	ctx := context.Background()
	svc := presence.NewService(docstore.NewMemory(), presence.WithLogger(logx.Nop()))
	_ = svc.Locations().Put(ctx, presence.Location{ID: "A", DisplayName: "Booth A"})

	apply := func(loc, user string, kind presence.Kind, sec int) {
		t.Helper()
		if _, _, err := svc.ApplyDetection(ctx, loc, user, kind, t0.Add(time.Duration(sec)*time.Second)); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	// u1: revisits A and stays long. u2: one short visit to B.
	apply("A", "u1", presence.KindVisit, 0)
	apply("A", "u1", presence.KindVisit, 60)
	apply("A", "u1", presence.KindVisit, 80)
	apply("A", "u1", presence.KindLongStay, 400)
	apply("B", "u2", presence.KindVisit, 10)
	apply("B", "u3", presence.KindVisit, 11)

	eng := analytics.NewEngine(svc.Ledger(), svc.Locations(), nil)
	return testutil.NewApp(
		func(app *fiber.App) { app.Get("/sessions/:day", SessionsHandler(eng)) },
		func(app *fiber.App) { app.Get("/prospects/:day", ProspectsHandler(eng)) },
		func(app *fiber.App) { app.Get("/movements/:day", MovementsHandler(eng)) },
		func(app *fiber.App) { app.Get("/summary/:day", SummaryHandler(eng)) },
	)
}

func TestSessionsHandler_Target(t *testing.T) {
	app := seeded(t)
	status, env := testutil.Do(t, app, http.MethodGet, "/sessions/2024-05-01?target=A", "")
	var sessions map[string]analytics.Session
	testutil.Data(t, env, &sessions)
	if status != http.StatusOK || len(sessions) != 3 || !sessions["u1"].HasRevisit {
		t.Fatalf("status=%d sessions=%+v", status, sessions)
	}
	if sessions["u1"].VisitEventCount["A"] != 2 {
		t.Fatalf("u1 event count = %v", sessions["u1"].VisitEventCount)
	}
}

func TestProspectsHandler_Pages(t *testing.T) {
	app := seeded(t)
	status, env := testutil.Do(t, app, http.MethodGet, "/prospects/2024-05-01?limit=1&with_total=true", "")
	var prospects []analytics.Session
	testutil.Data(t, env, &prospects)
	if status != http.StatusOK || len(prospects) != 1 || prospects[0].UserID != "u1" || !prospects[0].IsProspect {
		t.Fatalf("status=%d prospects=%+v", status, prospects)
	}
	if string(env.Meta) == "" {
		t.Fatalf("missing meta")
	}

	status, env = testutil.Do(t, app, http.MethodGet, "/prospects/2024-13-01", "")
	if status != http.StatusBadRequest || env.Code != "E_INVALID_PARAM" {
		t.Fatalf("bad day: status=%d code=%s", status, env.Code)
	}
}

func TestMovementsHandler_EmptyDay(t *testing.T) {
	app := seeded(t)
	status, env := testutil.Do(t, app, http.MethodGet, "/movements/2024-06-01", "")
	var moves []analytics.Transition
	testutil.Data(t, env, &moves)
	if status != http.StatusOK || len(moves) != 0 {
		t.Fatalf("status=%d moves=%+v", status, moves)
	}
}

func TestSummaryHandler_Sorts(t *testing.T) {
	app := seeded(t)
	status, env := testutil.Do(t, app, http.MethodGet, "/summary/2024-05-01?sort=unique_visitors:desc", "")
	var rows []analytics.LocationSummary
	testutil.Data(t, env, &rows)
	if status != http.StatusOK || len(rows) != 2 {
		t.Fatalf("status=%d rows=%+v", status, rows)
	}
	if rows[0].LocationID != "B" || rows[0].UniqueVisitors != 2 || rows[1].DisplayName != "Booth A" {
		t.Fatalf("rows = %+v", rows)
	}

	status, env = testutil.Do(t, app, http.MethodGet, "/summary/2024-05-01?sort=revenue", "")
	if status != http.StatusBadRequest {
		t.Fatalf("bad sort: status=%d code=%s", status, env.Code)
	}
}
