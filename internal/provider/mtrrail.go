package provider

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/markmybytes/HKETA-Server/internal/eta"
)

const mtrTrainDefaultBaseURL = "https://rt.data.gov.hk/v1/transport/mtr"

// MTRTrain fetches ETAs from the MTR heavy-rail next-train API. Queries name
// a line code and station code; the feed keys its data block by "LINE-STA"
// and splits entries into UP and DOWN tracks, which map from inbound and
// outbound respectively. Timestamps carry no zone info and are Hong Kong
// time. Destinations are reported as station codes.
type MTRTrain struct {
	client  *http.Client
	baseURL string
}

// NewMTRTrain creates a heavy-rail adapter.
func NewMTRTrain(client *http.Client) *MTRTrain {
	return &MTRTrain{client: client, baseURL: mtrTrainDefaultBaseURL}
}

func (m *MTRTrain) ID() eta.Provider { return eta.MTRTrain }

type mtrTrainResponse struct {
	Status   int                      `json:"status"`
	Message  string                   `json:"message"`
	URL      string                   `json:"url"`
	CurrTime string                   `json:"curr_time"`
	Data     map[string]mtrTrainBlock `json:"data"`
}

type mtrTrainBlock struct {
	Up   []mtrTrainEntry `json:"UP"`
	Down []mtrTrainEntry `json:"DOWN"`
}

type mtrTrainEntry struct {
	Time string `json:"time"`
	Plat string `json:"plat"`
	Dest string `json:"dest"`
	Seq  string `json:"seq"`
}

// Fetch returns upcoming trains for the queried station. Query.Route carries
// the line code (e.g. "TML") and Query.Stop the station code (e.g. "TUM").
func (m *MTRTrain) Fetch(ctx context.Context, q eta.Query) ([]eta.Record, error) {
	url := fmt.Sprintf("%s/getSchedule.php?line=%s&sta=%s&lang=en", m.baseURL, q.Route, q.Stop)
	var resp mtrTrainResponse
	if err := getJSON(ctx, m.client, eta.MTRTrain, url, &resp); err != nil {
		return nil, err
	}

	if resp.Status == 0 {
		if strings.Contains(resp.Message, "suspended") {
			return nil, fmt.Errorf("%s: %w", resp.Message, eta.ErrStationClosed)
		}
		if resp.URL != "" {
			return nil, fmt.Errorf("%s: %w", resp.Message, eta.ErrAbnormalService)
		}
		return nil, fmt.Errorf("next-train request rejected: %w", eta.ErrUpstreamUnavailable)
	}

	currTime, err := parseHKT("2006-01-02 15:04:05", resp.CurrTime)
	if err != nil {
		return nil, &eta.UpstreamSchemaError{Provider: eta.MTRTrain, Reason: "bad curr_time", Err: err}
	}

	block, ok := resp.Data[q.Route+"-"+q.Stop]
	if !ok {
		return nil, &eta.UpstreamSchemaError{Provider: eta.MTRTrain,
			Reason: fmt.Sprintf("no data block for %s-%s", q.Route, q.Stop)}
	}

	// UP serves the inbound direction, DOWN the outbound one.
	entries := block.Down
	if q.Direction == eta.Inbound {
		entries = block.Up
	}

	var records []eta.Record
	for i, entry := range entries {
		record := eta.Record{
			Provider:      eta.MTRTrain,
			Route:         q.Route,
			Stop:          q.Stop,
			Direction:     q.Direction,
			Seq:           i + 1,
			DataTimestamp: currTime,
			Destination:   entry.Dest,
			Platform:      entry.Plat,
		}
		if seq, err := strconv.Atoi(entry.Seq); err == nil {
			record.Seq = seq
		}
		if arrival, err := parseHKT("2006-01-02 15:04:05", entry.Time); err == nil {
			record.ETA = arrival
		}
		records = append(records, record)
	}

	return records, nil
}
