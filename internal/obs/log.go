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

// Logger returns the shared line-oriented logger. Every component writes
// JSON lines through it, so flags stay zero and the timestamp lives in
// the payload.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest emits a structured JSON log line with common HTTP fields.
func LogRequest(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		// keep the stream parseable even when an entry won't marshal
		fallback, _ := json.Marshal(map[string]string{
			"ts":    time.Now().UTC().Format(time.RFC3339Nano),
			"level": "error",
			"msg":   "log marshal failed",
		})
		Logger().Println(string(fallback))
		return
	}
	Logger().Println(string(data))
}
