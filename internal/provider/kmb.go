package provider

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/markmybytes/HKETA-Server/internal/eta"
)

const kmbDefaultBaseURL = "https://data.etabus.gov.hk/v1/transport/kmb"

// KMB fetches ETAs from the Kowloon Motor Bus open-data API. The route-level
// endpoint returns every stop on the route; the adapter filters to the
// queried stop sequence and direction. Timestamps include a zone offset.
type KMB struct {
	client  *http.Client
	baseURL string
}

// NewKMB creates a KMB adapter.
func NewKMB(client *http.Client) *KMB {
	return &KMB{client: client, baseURL: kmbDefaultBaseURL}
}

func (k *KMB) ID() eta.Provider { return eta.KMB }

type kmbResponse struct {
	GeneratedTimestamp string     `json:"generated_timestamp"`
	Data               []kmbEntry `json:"data"`
}

type kmbEntry struct {
	Co            string  `json:"co"`
	Route         string  `json:"route"`
	Dir           string  `json:"dir"`
	ServiceType   int     `json:"service_type"`
	Seq           int     `json:"seq"`
	DestTC        string  `json:"dest_tc"`
	DestEN        string  `json:"dest_en"`
	EtaSeq        int     `json:"eta_seq"`
	Eta           *string `json:"eta"`
	RmkTC         string  `json:"rmk_tc"`
	RmkEN         string  `json:"rmk_en"`
	DataTimestamp string  `json:"data_timestamp"`
}

// Fetch returns upcoming departures for the queried stop. Query.Stop carries
// the stop sequence number on the route.
func (k *KMB) Fetch(ctx context.Context, q eta.Query) ([]eta.Record, error) {
	stopSeq, err := strconv.Atoi(q.Stop)
	if err != nil {
		return nil, fmt.Errorf("kmb stop must be a stop sequence number, got %q", q.Stop)
	}

	serviceType := q.ServiceType
	if serviceType == "" {
		serviceType = "1"
	}

	url := fmt.Sprintf("%s/route-eta/%s/%s", k.baseURL, q.Route, serviceType)
	var resp kmbResponse
	if err := getJSON(ctx, k.client, eta.KMB, url, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		// Successful response with no data block: nothing scheduled.
		return nil, nil
	}

	generated, err := time.Parse(time.RFC3339, resp.GeneratedTimestamp)
	if err != nil {
		return nil, &eta.UpstreamSchemaError{Provider: eta.KMB, Reason: "bad generated_timestamp", Err: err}
	}

	dirCode := q.Direction.Short()
	var records []eta.Record
	for _, entry := range resp.Data {
		if entry.Seq != stopSeq || entry.Dir != dirCode {
			continue
		}

		if entry.Eta == nil {
			if entry.RmkEN == "" && entry.RmkTC == "" {
				return nil, fmt.Errorf("kmb route %s: %w", q.Route, eta.ErrEndOfService)
			}
			return nil, &eta.UpstreamErrorResponse{Provider: eta.KMB, Message: remarkOf(entry.RmkEN, entry.RmkTC)}
		}

		arrival, err := time.Parse(time.RFC3339, *entry.Eta)
		if err != nil {
			// Leave the arrival zero so normalization drops and counts it.
			arrival = time.Time{}
		}

		dataTS, err := time.Parse(time.RFC3339, entry.DataTimestamp)
		if err != nil {
			dataTS = generated
		}

		records = append(records, eta.Record{
			Provider:      eta.KMB,
			Route:         q.Route,
			Stop:          q.Stop,
			Direction:     q.Direction,
			Seq:           entry.EtaSeq,
			ETA:           arrival,
			DataTimestamp: dataTS,
			Destination:   entry.DestEN,
			DestinationTC: entry.DestTC,
			Remark:        entry.RmkEN,
			RemarkTC:      entry.RmkTC,
			Scheduled:     entry.RmkEN == "Scheduled Bus" || entry.RmkTC == "原定班次",
		})

		// KMB provides at most 3 upcoming departures per stop; night routes
		// may return fewer.
		if len(records) == 3 {
			break
		}
	}

	return records, nil
}

func remarkOf(en, tc string) string {
	if en != "" {
		return en
	}
	return tc
}
