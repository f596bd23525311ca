// Package wire defines the JSON frames exchanged on the broadcast websocket.
//
// Clients send requests carrying an id; the server answers each with an ack
// frame echoing that id. Subscriptions receive value frames tagged with the
// subscription id, the first one carrying the current value. The server may
// batch several frames into one websocket message separated by newlines.
package wire

import (
	"bytes"
	"encoding/json"
)

// Frame types sent by clients
const (
	TypePut             = "put"
	TypeDelete          = "delete"
	TypeSubscribe       = "subscribe"
	TypeUnsubscribe     = "unsubscribe"
	TypeRegisterCleanup = "register_cleanup"
	TypeCancelCleanup   = "cancel_cleanup"
	TypePing            = "ping"
)

// Frame types sent by the server
const (
	TypeAck         = "ack"
	TypeValue       = "value"
	TypePong        = "pong"
	TypeStopArrival = "stop_arrival"
)

// Frame is one protocol message. Value is JSON null when a key is absent.
type Frame struct {
	ID        string          `json:"id,omitempty"`
	Type      string          `json:"type"`
	Key       string          `json:"key,omitempty"`
	Value     json.RawMessage `json:"value,omitempty"`
	SubID     string          `json:"sub_id,omitempty"`
	CleanupID string          `json:"cleanup_id,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// StopArrival is the payload of a stop_arrival frame
type StopArrival struct {
	VehicleID      string  `json:"vehicle_id"`
	StopID         string  `json:"stop_id"`
	StopName       string  `json:"stop_name"`
	DistanceMeters float64 `json:"distance_meters"`
}

// Ack builds the acknowledgement for request id
func Ack(id string, err error) Frame {
	f := Frame{ID: id, Type: TypeAck}
	if err != nil {
		f.Error = err.Error()
	}
	return f
}

// ValueFrame builds a subscription delivery. A nil value is sent as null.
func ValueFrame(subID, key string, value json.RawMessage) Frame {
	if len(value) == 0 {
		value = json.RawMessage("null")
	}
	return Frame{Type: TypeValue, SubID: subID, Key: key, Value: value}
}

// Split breaks a websocket message into frames. Blank lines are skipped.
func Split(message []byte) ([]Frame, error) {
	var frames []Frame
	for _, line := range bytes.Split(message, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var f Frame
		if err := json.Unmarshal(line, &f); err != nil {
			return frames, err
		}
		frames = append(frames, f)
	}
	return frames, nil
}
