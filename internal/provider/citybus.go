package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/markmybytes/HKETA-Server/internal/eta"
)

const citybusDefaultBaseURL = "https://rt.data.gov.hk/v2/transport/citybus"

// Citybus fetches ETAs from the Citybus (Bravo Transport) v2 open-data API.
// The endpoint is per-stop; the adapter filters by direction. Entries with an
// empty eta represent timetable slots run by the joint operator and carry a
// remark only.
type Citybus struct {
	client  *http.Client
	baseURL string
}

// NewCitybus creates a Citybus adapter.
func NewCitybus(client *http.Client) *Citybus {
	return &Citybus{client: client, baseURL: citybusDefaultBaseURL}
}

func (c *Citybus) ID() eta.Provider { return eta.Citybus }

type citybusResponse struct {
	GeneratedTimestamp string         `json:"generated_timestamp"`
	Data               []citybusEntry `json:"data"`
}

type citybusEntry struct {
	Co            string `json:"co"`
	Route         string `json:"route"`
	Dir           string `json:"dir"`
	Seq           int    `json:"seq"`
	Stop          string `json:"stop"`
	DestTC        string `json:"dest_tc"`
	DestEN        string `json:"dest_en"`
	EtaSeq        int    `json:"eta_seq"`
	Eta           string `json:"eta"`
	RmkTC         string `json:"rmk_tc"`
	RmkEN         string `json:"rmk_en"`
	DataTimestamp string `json:"data_timestamp"`
}

// Fetch returns upcoming departures for the queried stop. Query.Stop carries
// the 6-digit Citybus stop id.
func (c *Citybus) Fetch(ctx context.Context, q eta.Query) ([]eta.Record, error) {
	url := fmt.Sprintf("%s/eta/CTB/%s/%s", c.baseURL, q.Stop, q.Route)
	var resp citybusResponse
	if err := getJSON(ctx, c.client, eta.Citybus, url, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, &eta.UpstreamSchemaError{Provider: eta.Citybus, Reason: "missing data block"}
	}

	generated, err := time.Parse(time.RFC3339, resp.GeneratedTimestamp)
	if err != nil {
		return nil, &eta.UpstreamSchemaError{Provider: eta.Citybus, Reason: "bad generated_timestamp", Err: err}
	}

	dirCode := q.Direction.Short()
	var records []eta.Record
	for _, entry := range resp.Data {
		if entry.Dir != dirCode {
			continue
		}

		record := eta.Record{
			Provider:      eta.Citybus,
			Route:         q.Route,
			Stop:          q.Stop,
			Direction:     q.Direction,
			Seq:           entry.EtaSeq,
			DataTimestamp: generated,
			Destination:   entry.DestEN,
			DestinationTC: entry.DestTC,
			Remark:        entry.RmkEN,
			RemarkTC:      entry.RmkTC,
		}

		if entry.Eta == "" {
			// Joint-operator timetable slot with no live tracking. The zero
			// arrival is dropped and counted by normalization.
			record.Scheduled = true
		} else if arrival, err := time.Parse(time.RFC3339, entry.Eta); err == nil {
			record.ETA = arrival
		}

		if dataTS, err := time.Parse(time.RFC3339, entry.DataTimestamp); err == nil {
			record.DataTimestamp = dataTS
		}

		records = append(records, record)
	}

	return records, nil
}
