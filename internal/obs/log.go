package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the shared structured logger used across the service.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

type accessEntry struct {
	TS        string `json:"ts"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Status    int    `json:"status"`
	ElapsedMS int64  `json:"elapsed_ms"`
	RequestID string `json:"request_id,omitempty"`
}

// LogRequest emits one JSON access line per handled HTTP request.
func LogRequest(method, path string, status int, elapsed time.Duration, requestID string) {
	data, err := json.Marshal(accessEntry{
		TS:        time.Now().UTC().Format(time.RFC3339),
		Method:    method,
		Path:      path,
		Status:    status,
		ElapsedMS: elapsed.Milliseconds(),
		RequestID: requestID,
	})
	if err != nil {
		Logger().Println(`{"ts":"error","level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}
