package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/markmybytes/HKETA-Server/internal/eta"
)

func newTrainServer(t *testing.T, body string) *MTRTrain {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	m := NewMTRTrain(srv.Client())
	m.baseURL = srv.URL
	return m
}

func TestMTRTrainFetch(t *testing.T) {
	body := `{
		"status": 1,
		"message": "successful",
		"curr_time": "2024-03-01 09:00:00",
		"data": {
			"TML-TUM": {
				"UP": [
					{"time": "2024-03-01 09:01:00", "plat": "1", "dest": "WKS", "seq": "1"},
					{"time": "2024-03-01 09:07:00", "plat": "1", "dest": "WKS", "seq": "2"}
				],
				"DOWN": [
					{"time": "2024-03-01 09:03:00", "plat": "2", "dest": "TUM", "seq": "1"}
				]
			}
		}
	}`
	m := newTrainServer(t, body)

	records, err := m.Fetch(context.Background(), eta.Query{
		Provider: eta.MTRTrain, Route: "TML", Stop: "TUM", Direction: eta.Inbound,
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2 from the UP track", len(records))
	}
	if records[0].Destination != "WKS" || records[0].Platform != "1" {
		t.Errorf("unexpected first record %+v", records[0])
	}
	if records[0].Seq != 1 || records[1].Seq != 2 {
		t.Errorf("sequence numbers = %d,%d, want 1,2", records[0].Seq, records[1].Seq)
	}

	down, err := m.Fetch(context.Background(), eta.Query{
		Provider: eta.MTRTrain, Route: "TML", Stop: "TUM", Direction: eta.Outbound,
	})
	if err != nil {
		t.Fatalf("Fetch outbound: %v", err)
	}
	if len(down) != 1 {
		t.Fatalf("got %d records, want 1 from the DOWN track", len(down))
	}
}

func TestMTRTrainFetchMissingDirection(t *testing.T) {
	body := `{"status": 1, "message": "successful", "curr_time": "2024-03-01 09:00:00",
		"data": {"TML-TUM": {"UP": [
			{"time": "2024-03-01 09:01:00", "plat": "1", "dest": "WKS", "seq": "1"}
		]}}}`
	m := newTrainServer(t, body)

	records, err := m.Fetch(context.Background(), eta.Query{
		Provider: eta.MTRTrain, Route: "TML", Stop: "TUM", Direction: eta.Outbound,
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records, want 0 for a direction with no trains", len(records))
	}
}

func TestMTRTrainFetchSuspended(t *testing.T) {
	m := newTrainServer(t, `{"status": 0, "message": "Train services suspended between stations"}`)

	_, err := m.Fetch(context.Background(), eta.Query{
		Provider: eta.MTRTrain, Route: "TML", Stop: "TUM", Direction: eta.Inbound,
	})
	if !errors.Is(err, eta.ErrStationClosed) {
		t.Fatalf("got %v, want ErrStationClosed", err)
	}
}

func TestMTRTrainFetchAbnormalService(t *testing.T) {
	m := newTrainServer(t, `{"status": 0, "message": "Special arrangement in place",
		"url": "https://www.mtr.com.hk/alert"}`)

	_, err := m.Fetch(context.Background(), eta.Query{
		Provider: eta.MTRTrain, Route: "TML", Stop: "TUM", Direction: eta.Inbound,
	})
	if !errors.Is(err, eta.ErrAbnormalService) {
		t.Fatalf("got %v, want ErrAbnormalService", err)
	}
}
