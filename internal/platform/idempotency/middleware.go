package idempotency

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/opdflow/internal/platform/auth"
	"github.com/ehr/opdflow/pkg/flowmodel"
)

const (
	HeaderKey      = "Idempotency-Key"
	HeaderReplayed = "Idempotent-Replayed"
)

// Middleware replays the stored response when a POST, PUT or PATCH is
// retried with the same Idempotency-Key. Keys are scoped to the tenant and
// user, so two callers cannot collide. Reusing a key for another method,
// path or body is rejected with 422. Failed requests are not stored and may
// be retried with the same key.
func Middleware(store Store) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			switch req.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch:
			default:
				return next(c)
			}
			raw := req.Header.Get(HeaderKey)
			if raw == "" {
				return next(c)
			}

			key := scopedKey(c, raw)
			method, path := req.Method, req.URL.Path
			bodyHash, err := hashBody(req)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, &flowmodel.APIError{
					Code:    flowmodel.CodeValidation,
					Message: "could not read request body",
				})
			}

			if cached, ok := store.Get(key); ok {
				if cached.Method != method || cached.Path != path || cached.BodyHash != bodyHash {
					return echo.NewHTTPError(http.StatusUnprocessableEntity, &flowmodel.APIError{
						Code:    flowmodel.CodeValidation,
						Message: "Idempotency-Key was already used for a different request",
					})
				}
				return replay(c, cached)
			}

			if err := store.Reserve(key, method, path); err != nil {
				if errors.Is(err, ErrInFlight) {
					return echo.NewHTTPError(http.StatusConflict, &flowmodel.APIError{
						Code:    flowmodel.CodeRequestFailed,
						Message: "a request with this Idempotency-Key is still in progress",
					})
				}
				return err
			}

			orig := c.Response().Writer
			rec := &recorder{ResponseWriter: orig, body: &bytes.Buffer{}, statusCode: http.StatusOK, headers: make(http.Header)}
			c.Response().Writer = rec

			err = next(c)
			c.Response().Writer = orig
			if err != nil || rec.statusCode >= http.StatusBadRequest {
				store.Delete(key)
				if err != nil {
					// Nothing reached the client yet; let the error handler write.
					c.Response().Committed = false
					return err
				}
			} else {
				store.Set(key, &Entry{
					Key:        raw,
					Method:     method,
					Path:       path,
					BodyHash:   bodyHash,
					StatusCode: rec.statusCode,
					Headers:    rec.headers.Clone(),
					Body:       rec.body.Bytes(),
				})
			}

			for k, vals := range rec.headers {
				orig.Header()[k] = vals
			}
			orig.WriteHeader(rec.statusCode)
			_, werr := orig.Write(rec.body.Bytes())
			return werr
		}
	}
}

// hashBody returns the hex sha256 of the request body and restores the
// body for the handler.
func hashBody(req *http.Request) (string, error) {
	if req.Body == nil {
		sum := sha256.Sum256(nil)
		return hex.EncodeToString(sum[:]), nil
	}
	b, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return "", err
	}
	req.Body = io.NopCloser(bytes.NewReader(b))
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func scopedKey(c echo.Context, raw string) string {
	tenant, _ := c.Get("tenant_id").(string)
	return tenant + "|" + auth.UserIDFromContext(c.Request().Context()) + "|" + raw
}

func replay(c echo.Context, e *Entry) error {
	resp := c.Response()
	for k, vals := range e.Headers {
		resp.Header()[k] = vals
	}
	resp.Header().Set(HeaderReplayed, "true")
	resp.WriteHeader(e.StatusCode)
	_, err := resp.Write(e.Body)
	return err
}

// recorder buffers the downstream response so it can be stored before it
// is written to the client.
type recorder struct {
	http.ResponseWriter
	body       *bytes.Buffer
	statusCode int
	headers    http.Header
	wroteHead  bool
}

func (r *recorder) Header() http.Header {
	return r.headers
}

func (r *recorder) WriteHeader(code int) {
	if r.wroteHead {
		return
	}
	r.statusCode = code
	r.wroteHead = true
}

func (r *recorder) Write(b []byte) (int, error) {
	if !r.wroteHead {
		r.WriteHeader(http.StatusOK)
	}
	return r.body.Write(b)
}
