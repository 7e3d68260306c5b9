package health

import (
	"io"
	"net/http"
)

// Liveness reports that the process is up. It checks nothing else.
func Liveness(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "ALIVE")
}

// NoContent answers 204 with no body.
func NoContent(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
