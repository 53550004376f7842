package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/woozymasta/launcherd/internal/events"
	"github.com/woozymasta/launcherd/internal/router"
	"golang.org/x/time/rate"
)

// Server holds the dependencies, configuration, and runtime state required
// to serve UI commands and stream workflow events.
type Server struct {
	// router dispatches named commands to the application state.
	router *router.Router

	// bus is the source of out-of-band events streamed to /api/events.
	bus *events.Bus

	// metrics serves the Prometheus registry. It can be nil, which disables /metrics.
	metrics http.Handler

	// limiters holds one token bucket per client address for the command rate limit.
	limiters map[string]*clientLimiter

	// shutdown is a signal channel used to stop the limiter janitor.
	shutdown chan struct{}

	// authToken is the bearer token the UI must present. Empty disables authentication.
	authToken string

	// wg waits for the background janitor on Stop.
	wg sync.WaitGroup

	// limMu guards limiters.
	limMu sync.Mutex

	// maxBody specifies the maximum allowed size (in bytes) for command payloads.
	maxBody int64

	// rateCount is the number of commands allowed per client within rateWindow.
	// Zero disables rate limiting.
	rateCount int

	// rateWindow is the time window duration for the rate limiter.
	rateWindow time.Duration

	// keepAlive is the interval of SSE comment frames that keep idle streams open.
	keepAlive time.Duration

	// stopOnce guards Stop against double close.
	stopOnce sync.Once
}

// clientLimiter is the rate limit state of one client address.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// envelope is the JSON body of every command response.
type envelope struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
	Kind  string `json:"kind,omitempty"`
	OK    bool   `json:"ok"`
}
