package session

import (
	"context"
	"errors"
	"sync"

	"github.com/audiolibrelab/voicechanger/internal/audio"
	"github.com/benbjohnson/clock"
)

// samplerGroup owns the periodic samplers of one recording
type samplerGroup struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// startSamplers creates both tickers before returning so that no tick of the
// new recording can be missed. Callers hold s.mu.
func (s *Session) startSamplers() *samplerGroup {
	ctx, cancel := context.WithCancel(context.Background())
	g := &samplerGroup{cancel: cancel}

	elapsedTicker := s.clock.Ticker(s.elapsedInterval)
	meterTicker := s.clock.Ticker(s.meterInterval)

	g.wg.Add(2)
	go g.run(ctx, elapsedTicker, s.tickElapsed)
	go g.run(ctx, meterTicker, s.sampleLevel)

	return g
}

func (g *samplerGroup) run(ctx context.Context, ticker *clock.Ticker, tick func(context.Context)) {
	defer g.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			tick(ctx)
		}
	}
}

// stop cancels the samplers and waits until none of them is running
func (g *samplerGroup) stop() {
	if g == nil {
		return
	}
	g.cancel()
	g.wg.Wait()
}

func (s *Session) tickElapsed(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseRecording && ctx.Err() == nil {
		s.elapsed++
	}
}

// sampleLevel refreshes the input level. When the device cannot meter, a
// random placeholder in [20,80] keeps the display alive; it is never used
// for decisions.
func (s *Session) sampleLevel(ctx context.Context) {
	placeholder := false

	var level float64
	reading, err := s.device.QueryLevel(ctx)
	if err == nil {
		level = NormalizeLevel(reading.MeteringDB)
	} else {
		if !errors.Is(err, audio.ErrMeteringUnsupported) {
			s.log.Debug("Level query failed, using placeholder", "error", err)
		}
		level = 20 + s.random()*60
		placeholder = true
	}

	s.mu.Lock()
	if s.phase != PhaseRecording || ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.level = level
	s.metrics.LevelSampled(level, placeholder)
	s.mu.Unlock()
}
