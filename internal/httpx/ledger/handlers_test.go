package ledger

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"beacon-presence-api/internal/docstore"
	"beacon-presence-api/internal/httpx/kit/testutil"
	"beacon-presence-api/internal/logx"
	"beacon-presence-api/internal/presence"
)

func TestDayHandler(t *testing.T) {
	svc := presence.NewService(docstore.NewMemory(), presence.WithLogger(logx.Nop()))
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for _, loc := range []string{"A", "B"} {
		if _, _, err := svc.ApplyDetection(context.Background(), loc, "u1", presence.KindVisit, at); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	app := testutil.NewApp(
		func(app *fiber.App) { app.Get("/ledger/:day", DayHandler(svc.Ledger())) },
		func(app *fiber.App) { app.Get("/ledger/:day/audit", AuditHandler(svc)) },
	)

	status, env := testutil.Do(t, app, http.MethodGet, "/ledger/2024-05-01", "")
	var day map[string]presence.LedgerEntry
	testutil.Data(t, env, &day)
	if status != http.StatusOK || len(day) != 2 || day["A"].Count != 1 {
		t.Fatalf("status=%d day=%+v", status, day)
	}

	status, env = testutil.Do(t, app, http.MethodGet, "/ledger/2024-05-01?location=B", "")
	var one presence.LedgerEntry
	testutil.Data(t, env, &one)
	if status != http.StatusOK || one.LocationID != "B" {
		t.Fatalf("status=%d entry=%+v", status, one)
	}

	status, env = testutil.Do(t, app, http.MethodGet, "/ledger/2024-05-01?location=Z", "")
	if status != http.StatusNotFound || env.Code != "E_NOT_FOUND" {
		t.Fatalf("missing entry: status=%d code=%s", status, env.Code)
	}

	status, env = testutil.Do(t, app, http.MethodGet, "/ledger/2024-05-02", "")
	var empty map[string]presence.LedgerEntry
	testutil.Data(t, env, &empty)
	if status != http.StatusOK || len(empty) != 0 {
		t.Fatalf("empty day: status=%d day=%+v", status, empty)
	}

	status, env = testutil.Do(t, app, http.MethodGet, "/ledger/2024-05-01/audit", "")
	var reports []presence.AuditReport
	testutil.Data(t, env, &reports)
	if status != http.StatusOK || len(reports) != 2 || !reports[0].Consistent {
		t.Fatalf("audit: status=%d reports=%+v", status, reports)
	}
}
