package httpapi

import (
	"context"
	"database/sql"
	"net/http"

	"gradia.org/internal/obs"
	"gradia.org/internal/svcauth"
)

// ReadyProbe reports readiness, pinging the database when one is attached.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Wrap applies the shared middleware chain to an API mux: metrics and logging
// on the outside, then headers, body and rate limits, service auth innermost
// so only authenticated requests reach the handlers.
func Wrap(mux http.Handler, verifier *svcauth.Manager, burst, perSecond int, maxBody int64) http.Handler {
	h := ServiceAuth(verifier, mux)
	h = RateLimit(h, burst, perSecond)
	h = MaxBodyBytes(h, maxBody)
	h = SecurityHeaders(h)
	h = Logging(h)
	return obs.Instrument(h, routePattern)
}
