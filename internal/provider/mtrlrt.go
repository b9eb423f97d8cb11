package provider

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/markmybytes/HKETA-Server/internal/eta"
)

const mtrLRTDefaultBaseURL = "https://rt.data.gov.hk/v1/transport/mtr/lrt"

// MTRLightRail fetches ETAs from the MTR Light Rail schedule API. The
// endpoint is per-station and lists every platform; the adapter filters by
// route number and keeps every platform, since platforms (not a direction
// flag) distinguish travel direction on the Light Rail network. Countdowns
// are minutes relative to the reported system time.
type MTRLightRail struct {
	client  *http.Client
	baseURL string
}

// NewMTRLightRail creates a Light Rail adapter.
func NewMTRLightRail(client *http.Client) *MTRLightRail {
	return &MTRLightRail{client: client, baseURL: mtrLRTDefaultBaseURL}
}

func (m *MTRLightRail) ID() eta.Provider { return eta.MTRLightRail }

type mtrLRTResponse struct {
	Status       int              `json:"status"`
	SystemTime   string           `json:"system_time"`
	PlatformList []mtrLRTPlatform `json:"platform_list"`
}

type mtrLRTPlatform struct {
	PlatformID       int           `json:"platform_id"`
	EndServiceStatus bool          `json:"end_service_status"`
	RouteList        []mtrLRTRoute `json:"route_list"`
}

type mtrLRTRoute struct {
	RouteNo     string `json:"route_no"`
	DestCH      string `json:"dest_ch"`
	DestEN      string `json:"dest_en"`
	TimeCH      string `json:"time_ch"`
	TimeEN      string `json:"time_en"`
	TrainLength int    `json:"train_length"`
}

// Fetch returns upcoming departures for the queried station. Query.Stop
// carries the numeric Light Rail station id.
func (m *MTRLightRail) Fetch(ctx context.Context, q eta.Query) ([]eta.Record, error) {
	url := fmt.Sprintf("%s/getSchedule?station_id=%s", m.baseURL, q.Stop)
	var resp mtrLRTResponse
	if err := getJSON(ctx, m.client, eta.MTRLightRail, url, &resp); err != nil {
		return nil, err
	}
	if resp.Status == 0 {
		return nil, fmt.Errorf("light rail schedule request rejected: %w", eta.ErrUpstreamUnavailable)
	}
	if len(resp.PlatformList) > 0 && allPlatformsEnded(resp.PlatformList) {
		return nil, fmt.Errorf("light rail station %s: %w", q.Stop, eta.ErrEndOfService)
	}

	systemTime, err := parseHKT("2006-01-02 15:04:05", resp.SystemTime)
	if err != nil {
		return nil, &eta.UpstreamSchemaError{Provider: eta.MTRLightRail, Reason: "bad system_time", Err: err}
	}

	var records []eta.Record
	for _, platform := range resp.PlatformList {
		for i, route := range platform.RouteList {
			if route.RouteNo != q.Route {
				continue
			}

			// Short workings such as 751P list a dash for stops they skip.
			token, _, _ := strings.Cut(route.TimeEN, " ")
			if token == "-" || token == "" {
				continue
			}

			record := eta.Record{
				Provider:      eta.MTRLightRail,
				Route:         q.Route,
				Stop:          q.Stop,
				Direction:     q.Direction,
				Seq:           i + 1,
				DataTimestamp: systemTime,
				Destination:   route.DestEN,
				DestinationTC: route.DestCH,
				Platform:      strconv.Itoa(platform.PlatformID),
				CarLength:     route.TrainLength,
			}

			if minutes, err := strconv.Atoi(token); err == nil {
				record.ETA = systemTime.Add(time.Duration(minutes) * time.Minute)
			} else {
				// "Arriving" / "Departing" and their Chinese variants.
				now := time.Now().In(eta.HKT)
				record.ETA = now
				if record.DataTimestamp.After(now) {
					record.DataTimestamp = now
				}
				record.Remark = route.TimeEN
				record.RemarkTC = route.TimeCH
			}
			records = append(records, record)
		}
	}

	return records, nil
}

func allPlatformsEnded(platforms []mtrLRTPlatform) bool {
	for _, p := range platforms {
		if !p.EndServiceStatus {
			return false
		}
	}
	return true
}
