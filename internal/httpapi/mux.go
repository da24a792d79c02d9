package httpapi

import (
	"database/sql"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewMux returns a mux with the operational routes. Feature modules register
// their own routes on it.
func NewMux(db *sql.DB) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, db)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}
