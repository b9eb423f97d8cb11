// Package gtfsrt renders cached predictions as a GTFS-Realtime TripUpdates
// feed, so downstream consumers that already speak GTFS-RT can read the
// aggregated Hong Kong data without a custom client.
package gtfsrt

import (
	"fmt"
	"sort"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/markmybytes/HKETA-Server/internal/eta"
)

// Export renders records as a TripUpdates feed with one entity per provider,
// route and direction. The upstream APIs carry no trip identity, so each
// stop appears once with its next predicted arrival.
func Export(records []eta.Record, now time.Time) *gtfs.FeedMessage {
	groups := make(map[string][]eta.Record)
	for _, r := range records {
		key := entityID(r)
		groups[key] = append(groups[key], r)
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	entities := make([]*gtfs.FeedEntity, 0, len(keys))
	for _, key := range keys {
		group := groups[key]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].ETA.Before(group[j].ETA)
		})

		var (
			updates  []*gtfs.TripUpdate_StopTimeUpdate
			seen     = make(map[string]bool)
			freshest time.Time
		)
		for _, r := range group {
			if r.DataTimestamp.After(freshest) {
				freshest = r.DataTimestamp
			}
			if seen[r.Stop] {
				continue
			}
			seen[r.Stop] = true
			updates = append(updates, &gtfs.TripUpdate_StopTimeUpdate{
				StopId:  proto.String(r.Stop),
				Arrival: &gtfs.TripUpdate_StopTimeEvent{Time: proto.Int64(r.ETA.Unix())},
			})
		}

		first := group[0]
		entities = append(entities, &gtfs.FeedEntity{
			Id: proto.String(key),
			TripUpdate: &gtfs.TripUpdate{
				Trip: &gtfs.TripDescriptor{
					RouteId:     proto.String(first.Route),
					DirectionId: proto.Uint32(directionID(first.Direction)),
				},
				StopTimeUpdate: updates,
				Timestamp:      proto.Uint64(uint64(freshest.Unix())),
			},
		})
	}

	return &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Incrementality:      gtfs.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(uint64(now.Unix())),
		},
		Entity: entities,
	}
}

func entityID(r eta.Record) string {
	return fmt.Sprintf("%s-%s-%s", r.Provider, r.Route, r.Direction)
}

// direction_id semantics: 0 = outbound, 1 = inbound.
func directionID(d eta.Direction) uint32 {
	if d == eta.Inbound {
		return 1
	}
	return 0
}
