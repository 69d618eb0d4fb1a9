package httpserver

import (
	"math"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	apperrors "github.com/pscheid92/crowdpulse/internal/errors"
	"golang.org/x/time/rate"
)

// Idle per-client limiters are dropped after this long.
const messageLimiterExpiry = 10 * time.Minute

// messageRateLimit bounds how fast one client address may submit direct
// messages. A rejection is returned as a capacity error, so the error
// middleware renders and counts it like any other API error.
func messageRateLimit(perSecond float64, burst int) echo.MiddlewareFunc {
	retryAfter := retryAfterSeconds(perSecond)

	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(perSecond),
		Burst:     burst,
		ExpiresIn: messageLimiterExpiry,
	})

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, client string, _ error) error {
			c.Response().Header().Set(echo.HeaderRetryAfter, strconv.Itoa(retryAfter))
			return apperrors.CapacityError("too many messages from this client").
				WithContext("client", client).
				WithContext("retry_after_seconds", retryAfter)
		},
	})
}

// retryAfterSeconds is the wait until one more token is available.
func retryAfterSeconds(perSecond float64) int {
	if perSecond <= 0 {
		return int(messageLimiterExpiry.Seconds())
	}
	return max(1, int(math.Ceil(1/perSecond)))
}
