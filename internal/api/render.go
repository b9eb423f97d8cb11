package api

import (
	"time"

	"github.com/markmybytes/HKETA-Server/internal/accuracy"
	"github.com/markmybytes/HKETA-Server/internal/aggregate"
	"github.com/markmybytes/HKETA-Server/internal/eta"
)

// arrivingWindow is the countdown below which an arrival is flagged as
// "arriving now" for display.
const arrivingWindow = 30 * time.Second

// RenderedETA is one arrival as presented to clients, with the countdown
// computed and the language variant already chosen.
type RenderedETA struct {
	Seq         int       `json:"seq"`
	Destination string    `json:"destination,omitempty"`
	ETA         time.Time `json:"eta"`
	Minute      int       `json:"minute"`
	Second      int       `json:"second"`
	IsArriving  bool      `json:"is_arriving"`
	IsScheduled bool      `json:"is_scheduled,omitempty"`
	Remark      string    `json:"remark,omitempty"`
	Vehicle     string    `json:"vehicle,omitempty"`
	Platform    string    `json:"platform,omitempty"`
	CarLength   int       `json:"car_length,omitempty"`
}

// RenderETAs converts canonical records into the client shape. lang selects
// the Traditional Chinese variants when "tc"; any other value renders
// English. Countdowns already in the past clamp to zero rather than going
// negative, since the bus is then at the stop or just gone.
func RenderETAs(records []eta.Record, lang string, now time.Time) []RenderedETA {
	out := make([]RenderedETA, 0, len(records))
	for _, r := range records {
		secs := int(r.ETA.Sub(now) / time.Second)
		if secs < 0 {
			secs = 0
		}

		dest, remark := r.Destination, r.Remark
		if lang == "tc" {
			if r.DestinationTC != "" {
				dest = r.DestinationTC
			}
			if r.RemarkTC != "" {
				remark = r.RemarkTC
			}
		}

		out = append(out, RenderedETA{
			Seq:         r.Seq,
			Destination: dest,
			ETA:         r.ETA,
			Minute:      secs / 60,
			Second:      secs,
			IsArriving:  secs <= int(arrivingWindow/time.Second),
			IsScheduled: r.Scheduled,
			Remark:      remark,
			Vehicle:     r.Vehicle,
			Platform:    r.Platform,
			CarLength:   r.CarLength,
		})
	}
	return out
}

// AggregateSlot is one provider's rendered slot in an aggregate payload.
type AggregateSlot struct {
	ETAs       []RenderedETA   `json:"etas,omitempty"`
	Error      string          `json:"error,omitempty"`
	Stale      bool            `json:"stale,omitempty"`
	Confidence *accuracy.Score `json:"confidence,omitempty"`
}

// AggregatePayload is the data field of an aggregate response.
type AggregatePayload struct {
	Route       string                         `json:"route"`
	Stop        string                         `json:"stop"`
	Direction   eta.Direction                  `json:"direction"`
	Results     map[eta.Provider]AggregateSlot `json:"results"`
	Degraded    bool                           `json:"degraded"`
	GeneratedAt time.Time                      `json:"generated_at"`
}

func renderAggregate(resp *aggregate.Response, lang string, now time.Time) AggregatePayload {
	out := AggregatePayload{
		Route:       resp.Route,
		Stop:        resp.Stop,
		Direction:   resp.Direction,
		Results:     make(map[eta.Provider]AggregateSlot, len(resp.Results)),
		Degraded:    resp.Degraded,
		GeneratedAt: resp.GeneratedAt,
	}
	for p, res := range resp.Results {
		slot := AggregateSlot{Error: res.Error, Stale: res.Stale, Confidence: res.Confidence}
		if len(res.Records) > 0 {
			slot.ETAs = RenderETAs(res.Records, lang, now)
		}
		out.Results[p] = slot
	}
	return out
}
