package monitoring

import (
	"math"
	"time"
)

const (
	defaultRespawnBase        = 100 * time.Millisecond
	defaultBackoffMaxExponent = 6
)

type backoffConfig struct {
	Initial    time.Duration
	Multiplier float64
	Jitter     float64
	Max        time.Duration
}

func (cfg backoffConfig) nextDelay(attempt int, rng float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := float64(cfg.Initial)
	if base <= 0 {
		base = float64(defaultRespawnBase)
	}
	multiplier := cfg.Multiplier
	if multiplier <= 1 {
		multiplier = 2
	}
	delay := base * math.Pow(multiplier, float64(attempt))
	if cfg.Jitter > 0 {
		j := cfg.Jitter
		if j > 1 {
			j = 1
		}
		delay = delay * (1 + (rng*2-1)*j)
	}
	if cfg.Max > 0 && delay > float64(cfg.Max) {
		delay = float64(cfg.Max)
	}
	return time.Duration(delay)
}

// respawnBackoff computes the delay before respawning the event task. The
// exponent is capped rather than the delay so the ceiling stays a power of two
// of the base. Jitter spreads each delay by up to that fraction either way.
func respawnBackoff(base time.Duration, maxExponent int, jitter float64) backoffConfig {
	if base <= 0 {
		base = defaultRespawnBase
	}
	if maxExponent < 0 {
		maxExponent = defaultBackoffMaxExponent
	}
	if jitter < 0 {
		jitter = 0
	}
	return backoffConfig{
		Initial:    base,
		Multiplier: 2,
		Jitter:     jitter,
		Max:        base * time.Duration(1<<uint(maxExponent)),
	}
}

// respawnDelay is the wait before respawn number n (1-based) of consecutive
// event-task terminations. rng is a uniform sample in [0,1); 0.5 is no jitter.
func respawnDelay(cfg backoffConfig, n int, rng float64) time.Duration {
	if n < 1 {
		n = 1
	}
	return cfg.nextDelay(n-1, rng)
}

// RespawnDelay is the wait the monitor applies before respawn number n of the
// event task under this configuration, without jitter.
func (c Config) RespawnDelay(n int) time.Duration {
	c = c.withDefaults()
	return respawnDelay(respawnBackoff(c.BackoffBase, c.BackoffMaxExponent, 0), n, 0.5)
}
