package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func redisForTest(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skip("Redis not available")
	}
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestIdempotencyMiddleware_ConcurrentRequests(t *testing.T) {
	rdb := redisForTest(t)
	mw := NewIdempotencyMiddleware(rdb, 10*time.Second)

	var calls int32
	slowHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"success":true}`))
	})
	wrapped := mw.Handle(slowHandler)
	key := uuid.NewString()

	var wg sync.WaitGroup
	codes := make([]int, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			time.Sleep(time.Duration(i) * 100 * time.Millisecond)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/kyc/x/base/verify", nil)
			req.Header.Set(HeaderIdempotencyKey, key)
			w := httptest.NewRecorder()
			wrapped.ServeHTTP(w, req)
			codes[i] = w.Code
		}(i)
	}
	wg.Wait()

	assert.Equal(t, []int{http.StatusCreated, http.StatusCreated}, codes)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestIdempotencyMiddleware_PassThrough(t *testing.T) {
	var calls int32
	h := NewIdempotencyMiddleware(nil, time.Minute).Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set(HeaderIdempotencyKey, "same")
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCaptureWriter_Truncates(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := newCaptureWriter(rec, 4)
	n, err := cw.Write([]byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, "abcd", string(cw.buf))
	assert.True(t, cw.truncated)
	assert.Equal(t, http.StatusOK, cw.status)
	assert.Equal(t, "abcdef", rec.Body.String())
}
