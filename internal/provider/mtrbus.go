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

const mtrBusDefaultBaseURL = "https://rt.data.gov.hk/v1/transport/mtr/bus"

// MTRBus fetches ETAs from the MTR feeder-bus schedule API. Stop codes such
// as "K12-U010" encode the direction (U outbound, D inbound) and position;
// the first stop of a direction ends in "010" and reports departure rather
// than arrival times. Timestamps carry no zone info and are Hong Kong time.
type MTRBus struct {
	client  *http.Client
	baseURL string
}

// NewMTRBus creates an MTR Bus adapter.
func NewMTRBus(client *http.Client) *MTRBus {
	return &MTRBus{client: client, baseURL: mtrBusDefaultBaseURL}
}

func (m *MTRBus) ID() eta.Provider { return eta.MTRBus }

type mtrBusRequest struct {
	Language  string `json:"language"`
	RouteName string `json:"routeName"`
}

type mtrBusResponse struct {
	RouteStatusTime         string       `json:"routeStatusTime"`
	RouteStatusRemarkTitle  string       `json:"routeStatusRemarkTitle"`
	BusStop                 []mtrBusStop `json:"busStop"`
}

type mtrBusStop struct {
	BusStopID string       `json:"busStopId"`
	Bus       []mtrBusInfo `json:"bus"`
}

type mtrBusInfo struct {
	BusID                 string `json:"busId"`
	ArrivalTimeInSecond   string `json:"arrivalTimeInSecond"`
	ArrivalTimeText       string `json:"arrivalTimeText"`
	DepartureTimeInSecond string `json:"departureTimeInSecond"`
	DepartureTimeText     string `json:"departureTimeText"`
	BusLocation           struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"busLocation"`
}

// Fetch returns upcoming departures for the queried stop. Query.Stop carries
// the MTR Bus stop code.
func (m *MTRBus) Fetch(ctx context.Context, q eta.Query) ([]eta.Record, error) {
	var resp mtrBusResponse
	err := postJSON(ctx, m.client, eta.MTRBus, m.baseURL+"/getSchedule",
		mtrBusRequest{Language: "en", RouteName: q.Route}, &resp)
	if err != nil {
		return nil, err
	}

	if resp.RouteStatusRemarkTitle != "" {
		if resp.RouteStatusRemarkTitle == "Non-service hours" || resp.RouteStatusRemarkTitle == "停止服務" {
			return nil, fmt.Errorf("mtr bus route %s: %w", q.Route, eta.ErrEndOfService)
		}
		return nil, &eta.UpstreamErrorResponse{Provider: eta.MTRBus, Message: resp.RouteStatusRemarkTitle}
	}

	statusTime, err := parseHKT("2006/01/02 15:04", resp.RouteStatusTime)
	if err != nil {
		return nil, &eta.UpstreamSchemaError{Provider: eta.MTRBus, Reason: "bad routeStatusTime", Err: err}
	}

	var records []eta.Record
	for _, stop := range resp.BusStop {
		if stop.BusStopID != q.Stop {
			continue
		}

		direction := busStopDirection(stop.BusStopID, q.Direction)
		origin := strings.Contains(stop.BusStopID, "U010") || strings.Contains(stop.BusStopID, "D010")

		for i, bus := range stop.Bus {
			secondsText, timeText := bus.ArrivalTimeInSecond, bus.ArrivalTimeText
			if origin {
				secondsText, timeText = bus.DepartureTimeInSecond, bus.DepartureTimeText
			}

			record := eta.Record{
				Provider:      eta.MTRBus,
				Route:         q.Route,
				Stop:          q.Stop,
				Direction:     direction,
				Seq:           i + 1,
				DataTimestamp: statusTime,
				Vehicle:       bus.BusID,
				Scheduled:     bus.BusLocation.Longitude == 0,
			}

			if containsDigit(timeText) {
				seconds, err := strconv.Atoi(secondsText)
				if err != nil {
					// Malformed countdown: keep the zero arrival so
					// normalization drops and counts it.
					records = append(records, record)
					continue
				}
				record.ETA = statusTime.Add(time.Duration(seconds) * time.Second)
			} else {
				// Countdown text without digits means the bus is arriving.
				now := time.Now().In(eta.HKT)
				record.ETA = now
				if record.DataTimestamp.After(now) {
					record.DataTimestamp = now
				}
				record.Remark = timeText
			}
			records = append(records, record)
		}
		break
	}

	return records, nil
}

// busStopDirection reads the direction encoded in an MTR Bus stop code,
// falling back to the queried direction for unrecognised codes.
func busStopDirection(stopID string, fallback eta.Direction) eta.Direction {
	_, suffix, ok := strings.Cut(stopID, "-")
	if !ok || suffix == "" {
		return fallback
	}
	switch suffix[0] {
	case 'U':
		return eta.Outbound
	case 'D':
		return eta.Inbound
	}
	return fallback
}

func containsDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
