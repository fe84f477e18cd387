package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"sak/pkg/errors"

	"github.com/redis/go-redis/v9"
)

const HeaderIdempotencyKey = "Idempotency-Key"

// IdempotencyMiddleware replays the stored response of a previous request
// carrying the same Idempotency-Key.
type IdempotencyMiddleware struct {
	cache *redis.Client
	ttl   time.Duration
	wait  time.Duration
}

// NewIdempotencyMiddleware constructs an IdempotencyMiddleware with a TTL.
func NewIdempotencyMiddleware(cache *redis.Client, ttl time.Duration) *IdempotencyMiddleware {
	return &IdempotencyMiddleware{
		cache: cache,
		ttl:   ttl,
		wait:  5 * time.Second,
	}
}

// Handle deduplicates unsafe requests that carry an Idempotency-Key. Requests
// without the header pass through.
func (m *IdempotencyMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.cache == nil || !unsafeMethod(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(HeaderIdempotencyKey)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > 128 {
			jsonError(w, http.StatusBadRequest, "Idempotency-Key too long")
			return
		}

		scope := r.Method + ":" + r.URL.Path + ":" + key
		dataKey := fmt.Sprintf("sak:idempotency:data:%s", scope)
		lockKey := fmt.Sprintf("sak:idempotency:lock:%s", scope)

		if m.replayCached(w, r, dataKey) {
			return
		}

		ok, err := m.cache.SetNX(r.Context(), lockKey, RequestIDFromContext(r.Context()), m.ttl).Result()
		if err != nil {
			jsonError(w, http.StatusServiceUnavailable, "Internal server error")
			return
		}

		if !ok {
			// Another request with this key is in flight; wait for its response.
			deadline := time.Now().Add(m.wait)
			for time.Now().Before(deadline) {
				select {
				case <-r.Context().Done():
					return
				case <-time.After(100 * time.Millisecond):
				}
				if m.replayCached(w, r, dataKey) {
					return
				}
			}
			jsonError(w, http.StatusConflict, errors.ErrDuplicateRequest.Error())
			return
		}
		defer m.cache.Del(r.Context(), lockKey)

		cw := newCaptureWriter(w, 1<<20)
		next.ServeHTTP(cw, r)

		_ = m.cacheResponse(r, dataKey, cw)
	})
}

func unsafeMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

type capturedResponse struct {
	Status  int               `json:"status"`
	Body    []byte            `json:"body"`
	Headers map[string]string `json:"headers"`
}

func (m *IdempotencyMiddleware) replayCached(w http.ResponseWriter, r *http.Request, dataKey string) bool {
	payload, err := m.cache.Get(r.Context(), dataKey).Bytes()
	if err != nil {
		return false
	}

	var cr capturedResponse
	if err := json.Unmarshal(payload, &cr); err != nil {
		return false
	}

	for k, v := range cr.Headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(cr.Status)
	_, _ = w.Write(cr.Body)
	return true
}

// cacheResponse stores completed responses. Server errors and truncated
// bodies are not stored so the client can retry.
func (m *IdempotencyMiddleware) cacheResponse(r *http.Request, dataKey string, cw *captureWriter) error {
	if cw.status == 0 || cw.status >= 500 || cw.truncated {
		return nil
	}

	payload, err := json.Marshal(capturedResponse{
		Status:  cw.status,
		Body:    cw.buf,
		Headers: cw.headers,
	})
	if err != nil {
		return err
	}
	return m.cache.Set(r.Context(), dataKey, payload, m.ttl).Err()
}

type captureWriter struct {
	http.ResponseWriter
	buf       []byte
	limit     int
	truncated bool
	status    int
	headers   map[string]string
}

func newCaptureWriter(w http.ResponseWriter, limit int) *captureWriter {
	return &captureWriter{
		ResponseWriter: w,
		buf:            make([]byte, 0, 1024),
		limit:          limit,
		headers:        make(map[string]string),
	}
}

func (w *captureWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	for k, v := range w.ResponseWriter.Header() {
		if len(v) > 0 {
			w.headers[k] = v[0]
		}
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *captureWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.WriteHeader(http.StatusOK)
	}
	space := w.limit - len(w.buf)
	if len(p) > space {
		w.truncated = true
		if space > 0 {
			w.buf = append(w.buf, p[:space]...)
		}
	} else {
		w.buf = append(w.buf, p...)
	}
	return w.ResponseWriter.Write(p)
}
