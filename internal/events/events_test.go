package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sak/pkg/domain"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockWebhookStore struct {
	mock.Mock
}

func (m *MockWebhookStore) ListForEvent(ctx context.Context, event string) ([]*domain.Webhook, error) {
	args := m.Called(ctx, event)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Webhook), args.Error(1)
}

func testEvent() domain.KYCStatusEvent {
	return domain.KYCStatusEvent{
		Event:          domain.EventKYCValidated,
		Wallet:         "GBRPYHIL2CI3FNQ4BXLFMNDLFJUNPU2HY3ZMFSHONUCEOASW7QC7OX2H",
		Tier:           domain.KYCTierSepa,
		NewStatus:      domain.StatusValidated,
		PreviousStatus: domain.StatusPending,
		Timestamp:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSign_KnownVector(t *testing.T) {
	// RFC 4231 test case 2.
	got := Sign("Jefe", []byte("what do ya want for nothing?"))
	assert.Equal(t, "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843", got)
}

func TestWebhookDispatcher_SignsAndDelivers(t *testing.T) {
	var (
		mu      sync.Mutex
		bodies  [][]byte
		headers []http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, body)
		headers = append(headers, r.Header.Clone())
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	store := new(MockWebhookStore)
	hook := &domain.Webhook{ID: uuid.New(), URL: srv.URL, Secret: "s3cret", Active: true}
	store.On("ListForEvent", mock.Anything, domain.EventKYCValidated).Return([]*domain.Webhook{hook}, nil)

	d := NewWebhookDispatcher(store, WebhookConfig{})
	require.NoError(t, d.Publish(context.Background(), testEvent()))

	require.Len(t, bodies, 1)
	ok, err := VerifySignature("s3cret", bodies[0])
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifySignature("other", bodies[0])
	require.NoError(t, err)
	assert.False(t, ok)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(bodies[0], &payload))
	assert.Equal(t, "kyc.validated", payload["event"])
	assert.Equal(t, "sepa", payload["tier"])
	assert.Equal(t, "validated", payload["newStatus"])
	assert.Equal(t, "pending", payload["previousStatus"])
	assert.Equal(t, payload["signature"], headers[0].Get(HeaderSignature))
	assert.Equal(t, domain.EventKYCValidated, headers[0].Get(HeaderEvent))
	store.AssertExpectations(t)
}

func TestWebhookDispatcher_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := new(MockWebhookStore)
	store.On("ListForEvent", mock.Anything, mock.Anything).
		Return([]*domain.Webhook{{ID: uuid.New(), URL: srv.URL, Secret: "k"}}, nil)

	d := NewWebhookDispatcher(store, WebhookConfig{MaxAttempts: 3, Backoff: time.Millisecond})
	require.NoError(t, d.Publish(context.Background(), testEvent()))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestWebhookDispatcher_ClientErrorIsFinal(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	store := new(MockWebhookStore)
	store.On("ListForEvent", mock.Anything, mock.Anything).
		Return([]*domain.Webhook{{ID: uuid.New(), URL: srv.URL, Secret: "k"}}, nil)

	d := NewWebhookDispatcher(store, WebhookConfig{MaxAttempts: 3, Backoff: time.Millisecond})
	err := d.Publish(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestWebhookDispatcher_NoSubscribers(t *testing.T) {
	store := new(MockWebhookStore)
	store.On("ListForEvent", mock.Anything, mock.Anything).Return([]*domain.Webhook{}, nil)

	d := NewWebhookDispatcher(store, WebhookConfig{})
	assert.NoError(t, d.Publish(context.Background(), testEvent()))
}

func TestWebhookDispatcher_StoreError(t *testing.T) {
	store := new(MockWebhookStore)
	store.On("ListForEvent", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

	d := NewWebhookDispatcher(store, WebhookConfig{})
	err := d.Publish(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisher(w, nil, nil)
	ev := testEvent()

	require.NoError(t, p.Publish(context.Background(), ev))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, ev.Wallet, string(w.msgs[0].Key))

	var decoded domain.KYCStatusEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, ev, decoded)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	p := NewKafkaPublisher(&fakeWriter{err: errors.New("broker unavailable")}, nil, nil)
	assert.Error(t, p.Publish(context.Background(), testEvent()))
}

func TestNewKafkaWriter(t *testing.T) {
	w := NewKafkaWriter("kafka-1:9092, kafka-2:9092,", "")
	assert.Equal(t, DefaultTopic, w.Topic)
	assert.Contains(t, w.Addr.String(), "kafka-1:9092")
	assert.Contains(t, w.Addr.String(), "kafka-2:9092")
}

type recordingPublisher struct {
	got []domain.KYCStatusEvent
	err error
}

func (p *recordingPublisher) Publish(ctx context.Context, event domain.KYCStatusEvent) error {
	p.got = append(p.got, event)
	return p.err
}

func TestFanout_PublishesToAll(t *testing.T) {
	a := &recordingPublisher{err: errors.New("sink a failed")}
	b := &recordingPublisher{}

	err := Fanout{a, nil, b}.Publish(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink a failed")
	assert.Len(t, a.got, 1)
	assert.Len(t, b.got, 1)
}
