package metrics

import (
	"net/http"
	"regexp"
	"time"
)

// numericSegment matches numeric path segments for label normalization.
var numericSegment = regexp.MustCompile(`/(\d+)`)

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader captures the status code and writes it to the underlying ResponseWriter
func (r *statusRecorder) WriteHeader(code int) {
	if !r.written {
		r.statusCode = code
		r.written = true
		r.ResponseWriter.WriteHeader(code)
	}
}

// Write ensures WriteHeader is called before writing body
func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.written {
		r.statusCode = http.StatusOK
		r.written = true
	}
	return r.ResponseWriter.Write(b)
}

// Middleware records a request counter and latency histogram for every
// request. Panics are recorded as 500s and swallowed.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Wrap the response writer to capture the status code
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK, // default if not explicitly set
		}

		// Record start time for duration measurement
		startTime := time.Now()

		defer func() {
			// Calculate request duration in seconds
			duration := time.Since(startTime).Seconds()

			// Get the status code (default to 500 if a panic occurred)
			statusCode := recorder.statusCode
			if statusCode == 0 {
				statusCode = http.StatusInternalServerError
			}

			// Normalize IDs out of the path to bound label cardinality:
			// /api/locks/123 becomes /api/locks/:id.
			normalizedPath := normalizePath(r.URL.Path)

			// Record metrics
			statusStr := http.StatusText(statusCode)
			if statusStr == "" {
				statusStr = "UNKNOWN"
			}

			RecordRequest(r.Method, normalizedPath, statusStr)
			RecordRequestDuration(r.Method, normalizedPath, statusStr, duration)

			// If a panic occurred, swallow it and report a 500 if
			// nothing was written yet
			if err := recover(); err != nil {
				if !recorder.written {
					recorder.WriteHeader(http.StatusInternalServerError)
				}
			}
		}()

		// Call the next handler
		next.ServeHTTP(recorder, r)
	})
}

func normalizePath(path string) string {
	return numericSegment.ReplaceAllString(path, "/:id")
}
