package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"snapcam/internal/models"
	"snapcam/internal/services/source"
)

// Options tunes the acquisition loop
type Options struct {
	JPEGQuality            int
	MaxFPS                 int
	MaxConsecutiveFailures int
	ReadRetryDelay         time.Duration
	ReconnectBackoffMin    time.Duration
	ReconnectBackoffMax    time.Duration
	ReconnectJitterPct     int
	ReopenAfter            int
	SnapshotTimeout        time.Duration
	StopTimeout            time.Duration
	PanicRestartDelay      time.Duration
}

// DefaultOptions returns the options used when nothing is configured
func DefaultOptions() Options {
	return Options{
		JPEGQuality:            90,
		MaxFPS:                 30,
		MaxConsecutiveFailures: 10,
		ReadRetryDelay:         100 * time.Millisecond,
		ReconnectBackoffMin:    1 * time.Second,
		ReconnectBackoffMax:    30 * time.Second,
		ReconnectJitterPct:     20,
		ReopenAfter:            3,
		SnapshotTimeout:        2 * time.Second,
		StopTimeout:            5 * time.Second,
		PanicRestartDelay:      2 * time.Second,
	}
}

// Manager owns the single active camera device and the acquisition loop that
// keeps the latest frame current.
//
// Device open and close only happen while switchMu is held, or inside the
// loop itself while it is the only goroutine allowed to touch the device.
// Readers never take switchMu; they only look at the published frame.
type Manager struct {
	opener source.Opener
	opt    Options

	switchMu sync.Mutex

	mu        sync.Mutex
	state     models.CameraState
	started   bool
	degraded  bool
	target    source.Target
	dev       source.Device
	backend   string
	cancel    context.CancelFunc
	done      chan struct{}
	lastErr   string
	desired   map[source.Property]float64
	listeners []func(models.CameraEvent)

	pubMu  sync.Mutex
	gen    uint64
	seq    uint64
	notify chan struct{}
	latest atomic.Pointer[models.Frame]

	props chan propRequest

	frameCount    atomic.Int64
	errorCount    atomic.Int64
	subscribers   atomic.Int32
	lastFrameTime atomic.Int64
}

// NewManager creates a stopped manager
func NewManager(opener source.Opener, opt Options) *Manager {
	def := DefaultOptions()
	if opt.JPEGQuality <= 0 || opt.JPEGQuality > 100 {
		opt.JPEGQuality = def.JPEGQuality
	}
	if opt.MaxConsecutiveFailures <= 0 {
		opt.MaxConsecutiveFailures = def.MaxConsecutiveFailures
	}
	if opt.ReconnectBackoffMin <= 0 {
		opt.ReconnectBackoffMin = def.ReconnectBackoffMin
	}
	if opt.ReconnectBackoffMax < opt.ReconnectBackoffMin {
		opt.ReconnectBackoffMax = opt.ReconnectBackoffMin
	}
	if opt.SnapshotTimeout <= 0 {
		opt.SnapshotTimeout = def.SnapshotTimeout
	}
	if opt.StopTimeout <= 0 {
		opt.StopTimeout = def.StopTimeout
	}
	if opt.PanicRestartDelay <= 0 {
		opt.PanicRestartDelay = def.PanicRestartDelay
	}

	return &Manager{
		opener:  opener,
		opt:     opt,
		state:   models.CameraStateStopped,
		desired: make(map[source.Property]float64),
		notify:  make(chan struct{}),
		props:   make(chan propRequest),
	}
}

// OnEvent registers a listener for state changes. Listeners run on the
// goroutine that changed state and must not block.
func (m *Manager) OnEvent(fn func(models.CameraEvent)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Start opens the configured device and launches the acquisition loop. On
// failure the manager stays stopped and consumers get ErrNoCamera.
func (m *Manager) Start(ctx context.Context, target source.Target) error {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	m.mu.Lock()
	if m.state != models.CameraStateStopped {
		m.mu.Unlock()
		return nil
	}
	m.state = models.CameraStateStarting
	m.target = target
	m.mu.Unlock()

	dev, err := m.open(ctx, target)
	if err != nil {
		m.mu.Lock()
		m.state = models.CameraStateStopped
		m.lastErr = err.Error()
		m.mu.Unlock()
		m.emit("start failed")
		return err
	}

	m.launch(dev, target, false)
	log.Info().
		Int("index", target.Index).
		Str("backend", dev.Backend()).
		Msg("Camera manager started")
	m.emit("started")
	return nil
}

// Switch moves acquisition to another device. When the new device cannot be
// opened the previous one is reopened; if that fails too the manager stays
// degraded and keeps retrying the previous device in the background.
func (m *Manager) Switch(ctx context.Context, target source.Target) error {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	m.mu.Lock()
	prev := m.target
	wasStarted := m.started
	m.state = models.CameraStateSwitching
	m.mu.Unlock()
	m.wake()

	log.Info().
		Str("from", prev.String()).
		Str("to", target.String()).
		Msg("Switching camera")

	// no deadline: the next device must not open while the old loop runs
	if old, _ := m.halt(context.Background()); old != nil {
		if err := old.Close(); err != nil {
			log.Warn().Err(err).Str("device", prev.String()).Msg("Failed to close previous camera")
		}
	}
	m.retire()

	dev, err := m.open(ctx, target)
	if err == nil {
		m.launch(dev, target, false)
		m.emit("switched")
		return nil
	}

	log.Warn().Err(err).Str("device", target.String()).Msg("Failed to open new camera, falling back")

	if !wasStarted {
		m.mu.Lock()
		m.state = models.CameraStateStopped
		m.lastErr = err.Error()
		m.mu.Unlock()
		m.emit("switch failed")
		return err
	}

	prevDev, perr := m.open(ctx, prev)
	if perr == nil {
		m.launch(prevDev, prev, false)
		m.emit("switch failed, restored previous camera")
		return err
	}

	log.Error().Err(perr).Str("device", prev.String()).Msg("Failed to reopen previous camera")
	m.launch(nil, prev, true)
	m.mu.Lock()
	m.lastErr = perr.Error()
	m.mu.Unlock()
	m.emit("switch failed, camera lost")
	return err
}

// Stop cancels the loop and releases the device. It waits for an in-flight
// read until ctx is done or StopTimeout passes; a loop stuck in the driver is
// then left behind and closes its device once the read returns. It is safe to
// call more than once.
func (m *Manager) Stop(ctx context.Context) error {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	m.mu.Lock()
	if m.state == models.CameraStateStopped {
		m.mu.Unlock()
		return nil
	}
	m.state = models.CameraStateStopping
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, m.opt.StopTimeout)
	defer cancel()

	var stopErr error
	dev, err := m.halt(ctx)
	switch {
	case err != nil:
		stopErr = fmt.Errorf("stop camera: %w", err)
	case dev != nil:
		stopErr = dev.Close()
	}
	m.retire()

	m.mu.Lock()
	m.state = models.CameraStateStopped
	m.degraded = false
	m.mu.Unlock()
	m.wake()

	log.Info().Msg("Camera manager stopped")
	m.emit("stopped")
	return stopErr
}

// Snapshot returns a frame published after the call began, waiting at most
// SnapshotTimeout for the next acquisition cycle.
func (m *Manager) Snapshot(ctx context.Context) (*models.Frame, error) {
	if err := m.availability(); err != nil {
		return nil, err
	}

	m.pubMu.Lock()
	start := m.seq
	wait := m.notify
	m.pubMu.Unlock()

	timer := time.NewTimer(m.opt.SnapshotTimeout)
	defer timer.Stop()

	for {
		select {
		case <-wait:
		case <-timer.C:
			return nil, fmt.Errorf("%w: no fresh frame within %s", ErrCameraLost, m.opt.SnapshotTimeout)
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		if err := m.availability(); err != nil {
			return nil, err
		}

		var f *models.Frame
		f, wait = m.current()
		if f != nil && f.Seq > start {
			return f, nil
		}
	}
}

// Latest returns the last published frame without waiting, or nil.
func (m *Manager) Latest() *models.Frame {
	return m.latest.Load()
}

// Subscribe returns a subscription that yields frames published after this
// call.
func (m *Manager) Subscribe(ctx context.Context) (*Subscription, error) {
	if err := m.availability(); err != nil {
		return nil, err
	}

	m.pubMu.Lock()
	last := m.seq
	m.pubMu.Unlock()

	m.subscribers.Add(1)
	return &Subscription{m: m, last: last}, nil
}

// FrameStream is the consumer side of a Subscription.
type FrameStream interface {
	Next(ctx context.Context) (*models.Frame, error)
	Close()
}

// OpenStream is Subscribe behind the FrameStream interface.
func (m *Manager) OpenStream(ctx context.Context) (FrameStream, error) {
	sub, err := m.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Status reports the manager state
func (m *Manager) Status() models.CameraStatus {
	m.mu.Lock()
	st := models.CameraStatus{
		State:      m.state,
		Degraded:   m.degraded,
		Index:      m.target.Index,
		Name:       m.target.Name,
		Backend:    m.backend,
		LastError:  m.lastErr,
		FrameCount: m.frameCount.Load(),
		ErrorCount: m.errorCount.Load(),
	}
	m.mu.Unlock()

	m.pubMu.Lock()
	st.LastSeq = m.seq
	m.pubMu.Unlock()

	if ts := m.lastFrameTime.Load(); ts > 0 {
		st.LastFrameTime = time.Unix(0, ts)
	}
	st.Subscribers = int(m.subscribers.Load())
	return st
}

// Target returns the device the manager is bound to
func (m *Manager) Target() source.Target {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.target
}

func (m *Manager) availability() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case !m.started:
		return ErrNoCamera
	case m.state == models.CameraStateStopped || m.state == models.CameraStateStopping:
		return ErrStopped
	case m.degraded:
		return ErrCameraLost
	}
	return nil
}

func (m *Manager) open(ctx context.Context, target source.Target) (source.Device, error) {
	dev, err := m.opener.Open(ctx, target)
	if err != nil {
		if !errors.Is(err, source.ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %v", source.ErrDeviceUnavailable, err)
		}
		return nil, fmt.Errorf("open camera %s: %w", target, err)
	}
	return dev, nil
}

// launch binds dev and starts a fresh loop. dev may be nil when the manager
// comes up degraded; the loop then keeps trying to reopen target.
func (m *Manager) launch(dev source.Device, target source.Target, degraded bool) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	m.pubMu.Lock()
	m.gen++
	gen := m.gen
	m.pubMu.Unlock()

	m.mu.Lock()
	m.dev = dev
	m.target = target
	m.backend = ""
	if dev != nil {
		m.backend = dev.Backend()
		m.lastErr = ""
	}
	m.started = true
	m.degraded = degraded
	m.state = models.CameraStateRunning
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()
	m.wake()

	go m.supervise(ctx, gen, target, done)
}

// halt cancels the running loop, waits for it to return and hands back the
// device it was using. When ctx ends first the loop is abandoned: the device
// is closed in the background once the loop exits and halt returns ctx's
// error.
func (m *Manager) halt(ctx context.Context) (source.Device, error) {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	var err error
	if cancel != nil {
		cancel()
		err = m.awaitLoop(ctx, done)
	}

	m.mu.Lock()
	dev := m.dev
	m.dev = nil
	m.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Msg("Acquisition loop did not stop, leaving it behind")
		if dev != nil {
			go func() {
				<-done
				if cerr := dev.Close(); cerr != nil {
					log.Warn().Err(cerr).Msg("Failed to close abandoned camera")
				}
			}()
		}
		return nil, err
	}
	return dev, nil
}

func (m *Manager) awaitLoop(ctx context.Context, done chan struct{}) error {
	slow := time.NewTimer(m.opt.StopTimeout)
	defer slow.Stop()

	for {
		select {
		case <-done:
			return nil
		case <-slow.C:
			log.Warn().Dur("waited", m.opt.StopTimeout).Msg("Acquisition loop slow to stop, waiting for in-flight read")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// retire invalidates everything published by the previous device.
func (m *Manager) retire() {
	m.pubMu.Lock()
	m.gen++
	m.latest.Store(nil)
	m.pubMu.Unlock()
}

// publish stores f as the latest frame unless gen is stale.
func (m *Manager) publish(gen uint64, f *models.Frame) bool {
	m.pubMu.Lock()
	defer m.pubMu.Unlock()

	if gen != m.gen {
		return false
	}
	m.seq++
	f.Seq = m.seq
	m.latest.Store(f)
	close(m.notify)
	m.notify = make(chan struct{})
	return true
}

// wake releases every waiter so it re-checks the manager state.
func (m *Manager) wake() {
	m.pubMu.Lock()
	close(m.notify)
	m.notify = make(chan struct{})
	m.pubMu.Unlock()
}

func (m *Manager) current() (*models.Frame, chan struct{}) {
	m.pubMu.Lock()
	defer m.pubMu.Unlock()
	return m.latest.Load(), m.notify
}

func (m *Manager) setDegraded(degraded bool, cause error) {
	m.mu.Lock()
	if m.degraded == degraded {
		m.mu.Unlock()
		return
	}
	m.degraded = degraded
	if cause != nil {
		m.lastErr = cause.Error()
	}
	m.mu.Unlock()
	m.wake()

	if degraded {
		log.Error().Err(cause).Msg("Camera lost, entering recovery")
		m.emit("camera lost")
	} else {
		log.Info().Msg("Camera recovered")
		m.emit("camera recovered")
	}
}

func (m *Manager) emit(reason string) {
	m.mu.Lock()
	evt := models.CameraEvent{
		ID:        uuid.NewString(),
		State:     m.state,
		Degraded:  m.degraded,
		Index:     m.target.Index,
		Reason:    reason,
		Timestamp: time.Now(),
	}
	listeners := make([]func(models.CameraEvent), len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(evt)
	}
}

// Subscription is one consumer of published frames. It is not safe for
// concurrent use.
type Subscription struct {
	m      *Manager
	last   uint64
	closed atomic.Bool
}

// Next blocks until a frame newer than the last one returned is published.
// It returns ErrStopped once the manager stops and ErrCameraLost while the
// device is being recovered.
func (s *Subscription) Next(ctx context.Context) (*models.Frame, error) {
	for {
		f, wait := s.m.current()
		if f != nil && f.Seq > s.last {
			s.last = f.Seq
			return f, nil
		}
		if err := s.m.availability(); err != nil {
			if errors.Is(err, ErrNoCamera) {
				return nil, ErrStopped
			}
			return nil, err
		}

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close releases the subscription
func (s *Subscription) Close() {
	if s.closed.CompareAndSwap(false, true) {
		s.m.subscribers.Add(-1)
	}
}
