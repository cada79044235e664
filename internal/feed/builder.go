package feed

import (
	"log/slog"
	"sort"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"xml2pb/internal/match"
)

// Builder assembles GTFS-Realtime feed messages from the resolved result
// sets. It performs no I/O and no lookups; given the same inputs and
// timestamp it produces the same message.
type Builder struct {
	logger *slog.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(logger *slog.Logger) *Builder {
	return &Builder{logger: logger}
}

// Build creates a full-dataset FeedMessage: one trip-update entity per trip
// delay and one vehicle entity per vehicle position. Entities are emitted in
// sorted key order so identical inputs yield identical messages.
//
// Entity ids are trip ids and vehicle names, assumed to come from disjoint
// namespaces upstream. A vehicle name that collides with a trip id would
// produce a duplicate entity id, so it is dropped with a warning.
func (b *Builder) Build(delays map[string]match.TripDelay, positions map[string]match.VehiclePosition, now time.Time) *gtfs.FeedMessage {
	msg := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Incrementality:      gtfs.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(uint64(now.Unix())),
		},
	}

	tripIDs := make([]string, 0, len(delays))
	for id := range delays {
		tripIDs = append(tripIDs, id)
	}
	sort.Strings(tripIDs)

	for _, tripID := range tripIDs {
		d := delays[tripID]
		msg.Entity = append(msg.Entity, &gtfs.FeedEntity{
			Id: proto.String(tripID),
			TripUpdate: &gtfs.TripUpdate{
				Trip: &gtfs.TripDescriptor{TripId: proto.String(tripID)},
				StopTimeUpdate: []*gtfs.TripUpdate_StopTimeUpdate{{
					StopSequence: proto.Uint32(uint32(d.StopSequence)),
					Arrival: &gtfs.TripUpdate_StopTimeEvent{
						Delay: proto.Int32(int32(d.DelaySeconds)),
					},
				}},
			},
		})
	}

	names := make([]string, 0, len(positions))
	for name := range positions {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, taken := delays[name]; taken {
			b.logger.Warn("vehicle name collides with a trip entity id, dropping vehicle entity", "id", name)
			continue
		}
		p := positions[name]
		entity := &gtfs.FeedEntity{
			Id: proto.String(name),
			Vehicle: &gtfs.VehiclePosition{
				Trip:    &gtfs.TripDescriptor{TripId: proto.String(p.TripID)},
				Vehicle: &gtfs.VehicleDescriptor{Id: proto.String(name)},
				Position: &gtfs.Position{
					Latitude:  proto.Float32(float32(p.Latitude)),
					Longitude: proto.Float32(float32(p.Longitude)),
					Bearing:   proto.Float32(float32(p.Bearing)),
					Speed:     proto.Float32(float32(p.SpeedMps)),
				},
			},
		}
		if p.Timestamp != 0 {
			entity.Vehicle.Timestamp = proto.Uint64(uint64(p.Timestamp))
		}
		msg.Entity = append(msg.Entity, entity)
	}

	return msg
}
