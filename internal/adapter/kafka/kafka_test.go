package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/church-discovery-engine/internal/domain"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeFetcher struct {
	msgs      []kafkago.Message
	fetchErr  error
	committed []kafkago.Message
}

func (f *fakeFetcher) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	if len(f.msgs) == 0 {
		if f.fetchErr != nil {
			return kafkago.Message{}, f.fetchErr
		}
		<-ctx.Done()
		return kafkago.Message{}, ctx.Err()
	}
	msg := f.msgs[0]
	f.msgs = f.msgs[1:]
	return msg, nil
}

func (f *fakeFetcher) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	f.committed = append(f.committed, msgs...)
	return nil
}

func (f *fakeFetcher) Close() error { return nil }

type fakeWriter struct {
	written []kafkago.Message
	err     error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.written = append(f.written, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestMapMessageToRawEvent(t *testing.T) {
	now := time.Now()
	msg := kafkago.Message{
		Key:       []byte("user-1"),
		Value:     []byte(`{"user_id":"user-1","venue_id":"grace"}`),
		Topic:     "reminder-requests",
		Partition: 2,
		Offset:    42,
		Time:      now,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte("mobile")},
		},
	}

	raw := mapMessageToRawEvent(msg)

	assert.Equal(t, []byte("user-1"), raw.Key)
	assert.JSONEq(t, `{"user_id":"user-1","venue_id":"grace"}`, string(raw.Value))
	assert.Equal(t, "reminder-requests", raw.Topic)
	assert.Equal(t, 2, raw.Partition)
	assert.Equal(t, int64(42), raw.Offset)
	assert.Equal(t, now, raw.Timestamp)
	assert.Equal(t, "mobile", raw.Headers["source"])
}

func TestReader_ExtractBatch_FlushesOnInterval(t *testing.T) {
	fetcher := &fakeFetcher{msgs: []kafkago.Message{
		{Offset: 1, Value: []byte("a")},
		{Offset: 2, Value: []byte("b")},
	}}
	r := &Reader{reader: fetcher, flushInterval: 20 * time.Millisecond, logger: discardLogger}

	batch, err := r.ExtractBatch(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	require.NoError(t, batch[1].Commit(context.Background()))
	require.Len(t, fetcher.committed, 1)
	assert.Equal(t, int64(2), fetcher.committed[0].Offset)
}

func TestReader_ExtractBatch_StopsAtBatchSize(t *testing.T) {
	fetcher := &fakeFetcher{msgs: []kafkago.Message{{Offset: 1}, {Offset: 2}, {Offset: 3}}}
	r := &Reader{reader: fetcher, flushInterval: time.Second, logger: discardLogger}

	batch, err := r.ExtractBatch(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, batch, 2)
	assert.Len(t, fetcher.msgs, 1)
}

func TestReader_ExtractBatch_FirstFetchError(t *testing.T) {
	fetcher := &fakeFetcher{fetchErr: errors.New("broker down")}
	r := &Reader{reader: fetcher, flushInterval: time.Second, logger: discardLogger}

	_, err := r.ExtractBatch(context.Background(), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestSerializeToMessage(t *testing.T) {
	fire := time.Date(2026, 10, 25, 8, 45, 0, 0, time.UTC)
	note := domain.Notification{
		ID:        "n-1",
		UserID:    "user-1",
		VenueID:   "grace",
		FireAt:    fire,
		ServiceAt: fire.Add(75 * time.Minute),
		Title:     "Grace Chapel",
		Body:      "Service starts at 10:00 AM",
	}

	msg, err := serializeToMessage(note)
	require.NoError(t, err)

	assert.Equal(t, []byte("user-1"), msg.Key)
	assert.Contains(t, string(msg.Value), `"venue_id":"grace"`)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "venue_id", msg.Headers[0].Key)
	assert.Equal(t, []byte("grace"), msg.Headers[0].Value)
	assert.Equal(t, "fire_at", msg.Headers[1].Key)
	assert.Equal(t, []byte("2026-10-25T08:45:00Z"), msg.Headers[1].Value)
}

func TestWriter_LoadBatch(t *testing.T) {
	fw := &fakeWriter{}
	w := &Writer{writer: fw, logger: discardLogger}

	require.NoError(t, w.LoadBatch(context.Background(), nil))
	assert.Empty(t, fw.written)

	notes := []domain.Notification{{UserID: "u1", VenueID: "a"}, {UserID: "u2", VenueID: "b"}}
	require.NoError(t, w.LoadBatch(context.Background(), notes))
	assert.Len(t, fw.written, 2)

	fw.err = errors.New("leader not available")
	err := w.LoadBatch(context.Background(), notes)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write notifications")
}
