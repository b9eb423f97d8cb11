package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/markmybytes/HKETA-Server/internal/eta"
)

const nlbDefaultBaseURL = "https://rt.data.gov.hk/v2/transport/nlb"

// NLB fetches ETAs from the New Lantao Bus open-data API. Routes are keyed by
// a numeric route id that already encodes the direction, so no direction
// filter applies. Timestamps carry no zone info and are Hong Kong time. A
// completely empty response body signals a bad parameter, not an empty stop.
type NLB struct {
	client  *http.Client
	baseURL string
}

// NewNLB creates an NLB adapter.
func NewNLB(client *http.Client) *NLB {
	return &NLB{client: client, baseURL: nlbDefaultBaseURL}
}

func (n *NLB) ID() eta.Provider { return eta.NLB }

type nlbResponse struct {
	EstimatedArrivals []nlbEntry `json:"estimatedArrivals"`
	Message           string     `json:"message"`
}

type nlbEntry struct {
	EstimatedArrivalTime string `json:"estimatedArrivalTime"`
	RouteVariantName     string `json:"routeVariantName"`
	Departed             string `json:"departed"`
	NoGPS                string `json:"noGPS"`
}

// Fetch returns upcoming departures for the queried stop. Query.Route carries
// the NLB route id and Query.Stop the NLB stop id.
func (n *NLB) Fetch(ctx context.Context, q eta.Query) ([]eta.Record, error) {
	url := fmt.Sprintf("%s/stop.php?action=estimatedArrivals&routeId=%s&stopId=%s&language=en",
		n.baseURL, q.Route, q.Stop)
	var resp nlbResponse
	if err := getJSON(ctx, n.client, eta.NLB, url, &resp); err != nil {
		return nil, err
	}
	if resp.EstimatedArrivals == nil {
		if resp.Message != "" {
			return nil, &eta.UpstreamErrorResponse{Provider: eta.NLB, Message: resp.Message}
		}
		return nil, &eta.UpstreamSchemaError{Provider: eta.NLB, Reason: "empty response, check route and stop ids"}
	}

	fetchedAt := time.Now().In(eta.HKT)
	var records []eta.Record
	for i, entry := range resp.EstimatedArrivals {
		record := eta.Record{
			Provider:      eta.NLB,
			Route:         q.Route,
			Stop:          q.Stop,
			Direction:     q.Direction,
			Seq:           i + 1,
			DataTimestamp: fetchedAt,
			Remark:        entry.RouteVariantName,
			Scheduled:     entry.NoGPS == "1",
		}
		if arrival, err := parseHKT("2006-01-02 15:04:05", entry.EstimatedArrivalTime); err == nil {
			record.ETA = arrival
		}
		records = append(records, record)
	}

	return records, nil
}
