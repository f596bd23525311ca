package handlers

import (
	"log"
	"net/http"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"campusbus-backend/internal/services"
)

// BuildVehiclePositionsFeed converts fleet state into a GTFS-Realtime feed.
// Vehicles without a report are left out.
func BuildVehiclePositionsFeed(statuses []services.VehicleStatus, now time.Time) *gtfs.FeedMessage {
	feed := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Incrementality:      gtfs.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(uint64(now.Unix())),
		},
	}

	for _, st := range statuses {
		if st.LastReport == nil {
			continue
		}
		vp := &gtfs.VehiclePosition{
			Vehicle: &gtfs.VehicleDescriptor{
				Id:    proto.String(st.VehicleID),
				Label: proto.String(st.Name),
			},
			Position: &gtfs.Position{
				Latitude:  proto.Float32(float32(st.LastReport.Latitude)),
				Longitude: proto.Float32(float32(st.LastReport.Longitude)),
			},
		}
		// pre-epoch timestamps have no uint64 form, so the field is left unset
		if ms := st.LastReport.ObservedAtEpochMs; ms >= 0 {
			vp.Timestamp = proto.Uint64(uint64(ms / 1000))
		}
		if st.ActiveStop != nil {
			vp.StopId = proto.String(st.ActiveStop.Stop.ID)
			vp.CurrentStatus = gtfs.VehiclePosition_STOPPED_AT.Enum()
		} else {
			vp.CurrentStatus = gtfs.VehiclePosition_IN_TRANSIT_TO.Enum()
		}

		feed.Entity = append(feed.Entity, &gtfs.FeedEntity{
			Id:      proto.String(st.VehicleID),
			Vehicle: vp,
		})
	}
	return feed
}

// GetVehiclePositionsFeed serves the fleet as a GTFS-Realtime protobuf
func GetVehiclePositionsFeed(fleet FleetStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		feed := BuildVehiclePositionsFeed(fleet.Statuses(), time.Now())
		body, err := proto.Marshal(feed)
		if err != nil {
			log.Printf("❌ Failed to encode GTFS-RT feed: %v", err)
			http.Error(w, "Failed to encode feed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/x-protobuf")
		w.Write(body)
	}
}
