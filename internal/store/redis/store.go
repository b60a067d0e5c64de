package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/slotkeeper/internal/booking"
)

// DefaultMaxLen is the approximate number of events kept in the stream
const DefaultMaxLen = 10000

// Store appends booking events to a Redis stream. It is an audit feed only:
// the server never reads its state back from it.
type Store struct {
	client   *redis.Client
	stream   string
	maxLen   int64
	instance string
}

// Record is one journal entry as read back from the stream.
type Record struct {
	ID        string    `json:"id"`
	Instance  string    `json:"instance"`
	Kind      string    `json:"kind"`
	Facility  string    `json:"facility"`
	BookingID uint32    `json:"booking_id"`
	Slot      string    `json:"slot"`
	Previous  string    `json:"previous,omitempty"`
	At        time.Time `json:"at"`
}

// NewStore creates a new Redis journal store. Each store gets its own
// instance id so events from several servers can share one stream.
func NewStore(client *redis.Client, stream string, maxLen int64) *Store {
	if stream == "" {
		stream = DefaultStream
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return &Store{
		client:   client,
		stream:   stream,
		maxLen:   maxLen,
		instance: uuid.NewString(),
	}
}

// Instance returns the id stamped on every event written by this store.
func (s *Store) Instance() string { return s.instance }

// Stream returns the stream key.
func (s *Store) Stream() string { return s.stream }

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// AppendEvent writes ev to the stream and returns the entry id.
func (s *Store) AppendEvent(ctx context.Context, ev booking.Event) (string, error) {
	values := map[string]any{
		fieldInstance:  s.instance,
		fieldKind:      string(ev.Kind),
		fieldFacility:  ev.Facility,
		fieldBookingID: strconv.FormatUint(uint64(ev.BookingID), 10),
		fieldSlot:      ev.Slot.String(),
		fieldAt:        ev.At.UTC().Format(time.RFC3339Nano),
	}
	if ev.Kind == booking.EventModified || ev.Kind == booking.EventExtended {
		values[fieldPrevious] = ev.Previous.String()
	}

	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to append %s event: %w", ev.Kind, err)
	}
	return id, nil
}

// RecentEvents returns up to n entries, newest first.
func (s *Store) RecentEvents(ctx context.Context, n int64) ([]Record, error) {
	msgs, err := s.client.XRevRangeN(ctx, s.stream, "+", "-", n).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}

	records := make([]Record, 0, len(msgs))
	for _, msg := range msgs {
		rec, err := parseRecord(msg)
		if err != nil {
			// Skip entries written by something else
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Len returns the number of entries in the stream.
func (s *Store) Len(ctx context.Context) (int64, error) {
	n, err := s.client.XLen(ctx, s.stream).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count journal entries: %w", err)
	}
	return n, nil
}

func parseRecord(msg redis.XMessage) (Record, error) {
	str := func(key string) string {
		v, _ := msg.Values[key].(string)
		return v
	}

	id, err := strconv.ParseUint(str(fieldBookingID), 10, 32)
	if err != nil {
		return Record{}, fmt.Errorf("entry %s: invalid booking id: %w", msg.ID, err)
	}
	at, err := time.Parse(time.RFC3339Nano, str(fieldAt))
	if err != nil {
		return Record{}, fmt.Errorf("entry %s: invalid timestamp: %w", msg.ID, err)
	}

	return Record{
		ID:        msg.ID,
		Instance:  str(fieldInstance),
		Kind:      str(fieldKind),
		Facility:  str(fieldFacility),
		BookingID: uint32(id),
		Slot:      str(fieldSlot),
		Previous:  str(fieldPrevious),
		At:        at,
	}, nil
}
