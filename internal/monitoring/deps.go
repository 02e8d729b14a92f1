package monitoring

import (
	"math/rand/v2"
	"time"
)

var (
	nowFn          = time.Now
	newTickerFn    = time.NewTicker
	newTimerFn     = time.NewTimer
	respawnTimerFn = time.NewTimer
	jitterFn       = rand.Float64
)
