package mqttx

import (
	"context"
	"errors"
	"testing"
	"time"

	"beacon-presence-api/internal/logx"
	"beacon-presence-api/internal/presence"
)

func TestDecode_BeaconFromTopic(t *testing.T) {
	d, err := Decode("beacons/booth-7/detections", []byte(`{"user_id":"u1"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if d.BeaconID != "booth-7" || d.UserID != "u1" || d.Kind != presence.KindVisit || !d.ObservedAt.IsZero() {
		t.Fatalf("detection = %+v", d)
	}
}

func TestDecode_PayloadWins(t *testing.T) {
	d, err := Decode("beacons/x/detections",
		[]byte(`{"beacon_id":"A","device_id":"dev-1","kind":"LONG_STAY","observed_at":"2024-05-01T10:00:00Z"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	if d.BeaconID != "A" || d.DeviceID != "dev-1" || d.Kind != presence.KindLongStay || !d.ObservedAt.Equal(want) {
		t.Fatalf("detection = %+v", d)
	}
}

func TestDecode_Rejects(t *testing.T) {
	for _, body := range []string{`not json`, `{"observed_at":"yesterday"}`} {
		if _, err := Decode("beacons/A/detections", []byte(body)); err == nil {
			t.Fatalf("expected error for %q", body)
		}
	}
}

type fakeRecorder struct {
	got []presence.Detection
	err error
}

func (f *fakeRecorder) Record(_ context.Context, d presence.Detection) (presence.Result, error) {
	f.got = append(f.got, d)
	return presence.Result{Decision: presence.NewVisit}, f.err
}

func TestHandle_ForwardsDecodedDetections(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("store down")}
	s := &Subscriber{recorder: rec, log: logx.Nop()}
	s.Handle("beacons/A/detections", []byte(`{"user_id":"u1"}`))
	s.Handle("beacons/A/detections", []byte(`garbage`))
	if len(rec.got) != 1 || rec.got[0].BeaconID != "A" {
		t.Fatalf("recorded = %+v", rec.got)
	}
}
