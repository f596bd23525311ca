package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DefaultPrefix namespaces vehicle broadcast keys
const DefaultPrefix = "busLocations"

var (
	// ErrNotConnected is returned by a Connection after it has been disconnected
	ErrNotConnected = errors.New("broadcast: connection is not connected")

	// ErrInvalidKey is returned for empty keys or keys outside the broadcast namespace
	ErrInvalidKey = errors.New("broadcast: invalid key")

	// ErrUnsupportedAction is returned when registering a cleanup other than delete
	ErrUnsupportedAction = errors.New("broadcast: unsupported cleanup action")
)

// Snapshot is the value at a key at one point in time. A nil Value means the key is absent.
type Snapshot struct {
	Key   string
	Value json.RawMessage
}

// Exists reports whether the key had a value
func (s Snapshot) Exists() bool {
	return len(s.Value) > 0 && string(s.Value) != "null"
}

// ChangeFunc receives the current value on subscribe and every later change
type ChangeFunc func(Snapshot)

// Subscription is a handle to a registered ChangeFunc
type Subscription interface {
	Unsubscribe()
}

// CleanupOp names what a disconnect cleanup does
type CleanupOp string

const (
	// CleanupDelete removes the key
	CleanupDelete CleanupOp = "delete"
)

// CleanupAction is the server-side action run when the registering connection drops
type CleanupAction struct {
	Op  CleanupOp `json:"op"`
	Key string    `json:"key"`
}

// DeleteAction is the cleanup that removes key
func DeleteAction(key string) CleanupAction {
	return CleanupAction{Op: CleanupDelete, Key: key}
}

// CleanupRegistration is a pending disconnect cleanup
type CleanupRegistration interface {
	Action() CleanupAction
	// Cancel prevents the action from firing on a later disconnect
	Cancel(ctx context.Context) error
}

// Subscriber is the read side of the broadcast service
type Subscriber interface {
	Subscribe(ctx context.Context, key string, onChange ChangeFunc) (Subscription, error)
}

// Writer is the write side of the broadcast service
type Writer interface {
	// Put replaces the whole value at key. A nil value deletes the key.
	Put(ctx context.Context, key string, value interface{}) error
	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// Service is the full broadcast contract used by publishers
type Service interface {
	Subscriber
	Writer
	RegisterDisconnectCleanup(ctx context.Context, action CleanupAction) (CleanupRegistration, error)
}

// Keyspace maps vehicle ids to broadcast keys under a fixed prefix
type Keyspace struct {
	Prefix string
}

// DefaultKeyspace uses DefaultPrefix
func DefaultKeyspace() Keyspace {
	return Keyspace{Prefix: DefaultPrefix}
}

// Key returns the broadcast key for a vehicle, e.g. busLocations/Bus1
func (k Keyspace) Key(vehicleID string) string {
	return k.prefix() + "/" + vehicleID
}

// VehicleID extracts the vehicle id from a key in this keyspace
func (k Keyspace) VehicleID(key string) (string, bool) {
	id, found := strings.CutPrefix(key, k.prefix()+"/")
	if !found || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// Contains reports whether key is a vehicle key in this keyspace
func (k Keyspace) Contains(key string) bool {
	_, ok := k.VehicleID(key)
	return ok
}

func (k Keyspace) prefix() string {
	if k.Prefix == "" {
		return DefaultPrefix
	}
	return strings.TrimSuffix(k.Prefix, "/")
}

// encodeValue turns a Put value into the stored JSON. nil means delete.
func encodeValue(value interface{}) (json.RawMessage, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(v) == 0 || string(v) == "null" {
			return nil, nil
		}
		if !json.Valid(v) {
			return nil, fmt.Errorf("broadcast: value is not valid JSON")
		}
		return append(json.RawMessage(nil), v...), nil
	case []byte:
		return encodeValue(json.RawMessage(v))
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("broadcast: failed to encode value: %w", err)
	}
	if string(data) == "null" {
		return nil, nil
	}
	return data, nil
}

func validKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.HasSuffix(key, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
