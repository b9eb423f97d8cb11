// Package eta defines the canonical arrival record shared by every provider
// adapter, the query identifying one route/stop/direction, and the error
// taxonomy surfaced by the fetch path.
package eta

import (
	"fmt"
	"strings"
	"time"
)

// HKT is the fixed offset every Hong Kong upstream reports times in. Several
// of them omit the zone entirely and must be parsed against this.
var HKT = time.FixedZone("HKT", 8*60*60)

// Provider identifies one upstream transit operator.
type Provider string

const (
	KMB          Provider = "kmb"
	Citybus      Provider = "ctb"
	NLB          Provider = "nlb"
	MTRBus       Provider = "mtr_bus"
	MTRLightRail Provider = "mtr_lrt"
	MTRTrain     Provider = "mtr_train"
)

// Providers lists every supported provider in a stable order.
func Providers() []Provider {
	return []Provider{KMB, Citybus, NLB, MTRBus, MTRLightRail, MTRTrain}
}

// ParseProvider maps a request string onto a known provider id.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Providers() {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

// Direction is the travel direction of a route.
type Direction string

const (
	Outbound Direction = "outbound"
	Inbound  Direction = "inbound"
)

// ParseDirection maps a request string onto a direction.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case Outbound:
		return Outbound, nil
	case Inbound:
		return Inbound, nil
	}
	return "", fmt.Errorf("unknown direction %q", s)
}

// Short returns the single-letter direction code used by the bus APIs.
func (d Direction) Short() string {
	if d == Inbound {
		return "I"
	}
	return "O"
}

// Query identifies one route/stop/direction on one provider. Stop follows the
// provider's own convention: KMB uses the stop sequence number on the route,
// Citybus and NLB use stop ids, MTR Bus uses stop codes such as "K12-U020",
// and the rail providers use station codes.
type Query struct {
	Provider    Provider
	Route       string
	Stop        string
	Direction   Direction
	ServiceType string // KMB service variant, "1" selects the base timetable
}

// Key returns the cache key for q.
func (q Query) Key() string {
	st := q.ServiceType
	if st == "" {
		st = "1"
	}
	return fmt.Sprintf("%s/%s/%s/%s/%s", q.Provider, q.Route, q.Stop, q.Direction, st)
}

// Record is one predicted arrival. Records are immutable once constructed;
// ETA must not predate DataTimestamp (a prediction cannot predate its own
// computation), which Normalize enforces.
type Record struct {
	Provider      Provider  `json:"provider"`
	Route         string    `json:"route"`
	Stop          string    `json:"stop"`
	Direction     Direction `json:"direction"`
	Seq           int       `json:"seq"`
	ETA           time.Time `json:"eta"`
	DataTimestamp time.Time `json:"data_timestamp"`
	Vehicle       string    `json:"vehicle,omitempty"`
	Destination   string    `json:"destination,omitempty"`
	DestinationTC string    `json:"destination_tc,omitempty"`
	Remark        string    `json:"remark,omitempty"`
	RemarkTC      string    `json:"remark_tc,omitempty"`
	Scheduled     bool      `json:"is_scheduled,omitempty"`
	Platform      string    `json:"platform,omitempty"`
	CarLength     int       `json:"car_length,omitempty"`
}
