package timer

import (
	"context"
	"errors"
	"math/rand"
	"reflect"
	"runtime"
	"time"

	"github.com/lthibault/jitterbug/v2"

	log "github.com/sirupsen/logrus"
)

var ErrInvalidInterval = errors.New("invalid interval")

type Interval struct {
	Duration  time.Duration
	Jitter    time.Duration
	Immediate bool // Run f once right away instead of waiting for the first tick
}

func (i *Interval) Validate() error {
	if i.Duration <= 0 {
		return ErrInvalidInterval
	}
	if i.Jitter < 0 || i.Jitter >= i.Duration {
		return ErrInvalidInterval
	}
	return nil
}

type tickerJitter struct {
	MaxJitter time.Duration
}

func (j tickerJitter) Jitter(d time.Duration) time.Duration {
	if j.MaxJitter == 0 {
		return d
	}

	return d + (time.Duration(rand.Int63n(int64(2*j.MaxJitter))) - j.MaxJitter)
}

// Runs the provided function periodically with a given duration. Exits when a context is cancelled or when f() returns an error.
func RunWithTicker(ctx context.Context, interval *Interval, f func(ctx context.Context) error) error {
	if err := interval.Validate(); err != nil {
		return err
	}

	funcName := runtime.FuncForPC(reflect.ValueOf(f).Pointer()).Name()

	// Create a new jitterbug ticker
	j := jitterbug.New(interval.Duration, &tickerJitter{MaxJitter: interval.Jitter})
	defer j.Stop()

	log.Debugf("RunWithTicker: running %s with interval %v (jitter %v)", funcName, interval.Duration, interval.Jitter)

	if interval.Immediate {
		if err := f(ctx); err != nil {
			log.Errorf("RunWithTicker: function %s returned error: %v", funcName, err)
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			log.Debugf("RunWithTicker: context cancelled for %s", funcName)
			return ctx.Err()
		case <-j.C: // Use the jitterbug ticker's channel
			if err := f(ctx); err != nil {
				log.Errorf("RunWithTicker: function %s returned error: %v", funcName, err)
				return err
			}
		}
	}
}
