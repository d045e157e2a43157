package camera

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"

	"snapcam/internal/models"
	"snapcam/internal/services/source"
)

// supervise runs the acquisition loop and restarts it after a panic until ctx
// is cancelled.
func (m *Manager) supervise(ctx context.Context, gen uint64, target source.Target, done chan struct{}) {
	defer close(done)

	for {
		panicked := m.runSafely(ctx, gen, target)
		if !panicked || ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.opt.PanicRestartDelay):
		}
	}
}

func (m *Manager) runSafely(ctx context.Context, gen uint64, target source.Target) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			m.errorCount.Add(1)
			log.Error().
				Interface("panic", r).
				Int("index", target.Index).
				Msg("Acquisition loop panic recovered")
		}
	}()

	m.run(ctx, gen, target)
	return false
}

// run is the acquisition loop. It is the only code that reads from the
// device while the manager is running.
func (m *Manager) run(ctx context.Context, gen uint64, target source.Target) {
	m.mu.Lock()
	dev := m.dev
	m.mu.Unlock()

	if dev != nil {
		m.applyDesired(dev)
	}

	var interval time.Duration
	if m.opt.MaxFPS > 0 {
		interval = time.Second / time.Duration(m.opt.MaxFPS)
	}

	failures := 0
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		m.serveProps(dev)

		if dev == nil {
			attempt++
			if !m.sleep(ctx, m.backoff(attempt), dev) {
				return
			}
			d, err := m.opener.Open(ctx, target)
			if err != nil {
				log.Warn().Err(err).Int("attempt", attempt).Str("device", target.String()).Msg("Camera reopen failed")
				continue
			}
			// checked under mu so halt either sees d or the loop closes it
			m.mu.Lock()
			if ctx.Err() != nil {
				m.mu.Unlock()
				d.Close()
				return
			}
			m.dev = d
			m.backend = d.Backend()
			m.mu.Unlock()
			log.Info().Str("device", target.String()).Str("backend", d.Backend()).Msg("Camera reopened")
			dev = d
			m.applyDesired(dev)
			continue
		}

		started := time.Now()
		img, err := dev.Read()
		if err == nil {
			err = m.encodeAndPublish(gen, target, img)
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			m.errorCount.Add(1)

			if failures < m.opt.MaxConsecutiveFailures {
				log.Warn().
					Err(err).
					Int("consecutive_errors", failures).
					Msg("Failed to read frame from camera")
				if !m.sleep(ctx, m.opt.ReadRetryDelay, dev) {
					return
				}
				continue
			}

			m.setDegraded(true, fmt.Errorf("%d consecutive read failures: %w", failures, err))
			attempt++
			if !m.sleep(ctx, m.backoff(attempt), dev) {
				return
			}
			if m.opt.ReopenAfter > 0 && attempt%m.opt.ReopenAfter == 0 {
				log.Warn().Int("attempt", attempt).Msg("Camera still failing, reopening device")
				m.mu.Lock()
				owned := m.dev == dev
				if owned {
					m.dev = nil
				}
				m.mu.Unlock()
				if owned {
					if cerr := dev.Close(); cerr != nil {
						log.Warn().Err(cerr).Msg("Failed to close failing camera")
					}
				}
				dev = nil
			}
			continue
		}

		failures = 0
		attempt = 0

		if interval > 0 {
			if rest := interval - time.Since(started); rest > 0 {
				if !m.sleep(ctx, rest, dev) {
					return
				}
			}
		}
	}
}

func (m *Manager) encodeAndPublish(gen uint64, target source.Target, img source.Image) error {
	defer img.Close()

	data, err := img.Encode(m.opt.JPEGQuality)
	if err != nil {
		return err
	}

	m.setDegraded(false, nil)

	now := time.Now()
	frame := &models.Frame{
		Data:       data,
		Device:     target.Index,
		Width:      img.Width(),
		Height:     img.Height(),
		CapturedAt: now,
	}
	if m.publish(gen, frame) {
		m.frameCount.Add(1)
		m.lastFrameTime.Store(now.UnixNano())
	}
	return nil
}

// sleep waits for d while still answering property requests. It returns
// false when ctx is cancelled.
func (m *Manager) sleep(ctx context.Context, d time.Duration, dev source.Device) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		case req := <-m.props:
			req.reply <- m.handleProps(dev, req)
		}
	}
}

// backoff returns an exponential delay with jitter for the given attempt.
func (m *Manager) backoff(attempt int) time.Duration {
	d := m.opt.ReconnectBackoffMin
	for i := 1; i < attempt && d < m.opt.ReconnectBackoffMax; i++ {
		d *= 2
	}
	if d > m.opt.ReconnectBackoffMax {
		d = m.opt.ReconnectBackoffMax
	}

	if pct := m.opt.ReconnectJitterPct; pct > 0 {
		span := int64(d) * int64(pct) / 100
		if span > 0 {
			d += time.Duration(rand.Int64N(2*span+1) - span)
		}
	}
	return d
}

// props

type propRequest struct {
	set   map[source.Property]float64
	reply chan propResult
}

type propResult struct {
	values      map[source.Property]float64
	unsupported []source.Property
	err         error
}

func (m *Manager) serveProps(dev source.Device) {
	for {
		select {
		case req := <-m.props:
			req.reply <- m.handleProps(dev, req)
		default:
			return
		}
	}
}

func (m *Manager) handleProps(dev source.Device, req propRequest) propResult {
	if dev == nil {
		return propResult{err: ErrCameraLost}
	}

	res := propResult{values: make(map[source.Property]float64)}
	if req.set != nil {
		for p, v := range req.set {
			if err := dev.Set(p, v); err != nil {
				res.unsupported = append(res.unsupported, p)
				continue
			}
			res.values[p] = v
		}
		return res
	}

	for _, p := range source.Properties {
		v, err := dev.Get(p)
		if err != nil {
			res.unsupported = append(res.unsupported, p)
			continue
		}
		res.values[p] = v
	}
	return res
}

func (m *Manager) applyDesired(dev source.Device) {
	m.mu.Lock()
	desired := make(map[source.Property]float64, len(m.desired))
	for p, v := range m.desired {
		desired[p] = v
	}
	m.mu.Unlock()

	for p, v := range desired {
		if err := dev.Set(p, v); err != nil {
			log.Warn().Err(err).Str("property", string(p)).Msg("Camera property not applied")
		}
	}
}

// SetProperties records the values as desired settings and applies them to
// the open device. Unsupported properties are reported, not treated as
// errors.
func (m *Manager) SetProperties(ctx context.Context, values map[source.Property]float64) ([]source.Property, error) {
	m.mu.Lock()
	for p, v := range values {
		m.desired[p] = v
	}
	m.mu.Unlock()

	res, err := m.askLoop(ctx, propRequest{set: values})
	if err != nil {
		return nil, err
	}
	return res.unsupported, nil
}

// Properties reads every known property from the open device
func (m *Manager) Properties(ctx context.Context) (map[source.Property]float64, []source.Property, error) {
	res, err := m.askLoop(ctx, propRequest{})
	if err != nil {
		return nil, nil, err
	}
	return res.values, res.unsupported, nil
}

// DesiredProperties returns the settings applied on every open
func (m *Manager) DesiredProperties() map[source.Property]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[source.Property]float64, len(m.desired))
	for p, v := range m.desired {
		out[p] = v
	}
	return out
}

func (m *Manager) askLoop(ctx context.Context, req propRequest) (propResult, error) {
	if err := m.availability(); err != nil && !errors.Is(err, ErrCameraLost) {
		return propResult{}, err
	}

	req.reply = make(chan propResult, 1)
	timer := time.NewTimer(m.opt.SnapshotTimeout)
	defer timer.Stop()

	select {
	case m.props <- req:
	case <-timer.C:
		return propResult{}, fmt.Errorf("%w: camera busy", ErrCameraLost)
	case <-ctx.Done():
		return propResult{}, ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res, res.err
	case <-ctx.Done():
		return propResult{}, ctx.Err()
	}
}
