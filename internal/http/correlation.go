package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/vinrain-coder/shoepedi-sub000/internal/events"
)

const headerCorrelationID = "X-Correlation-Id"

// correlationID echoes or mints X-Correlation-Id and carries it into the
// events a request publishes.
func correlationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cid := r.Header.Get(headerCorrelationID)
		if cid == "" {
			cid = uuid.NewString()
		}
		w.Header().Set(headerCorrelationID, cid)
		next.ServeHTTP(w, r.WithContext(events.WithCorrelationID(r.Context(), cid)))
	})
}
