package camera

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"snapcam/internal/models"
	"snapcam/internal/services/source"
	"snapcam/internal/services/source/synthetic"
)

func testOptions() Options {
	return Options{
		JPEGQuality:            80,
		MaxConsecutiveFailures: 3,
		ReadRetryDelay:         time.Millisecond,
		ReconnectBackoffMin:    5 * time.Millisecond,
		ReconnectBackoffMax:    20 * time.Millisecond,
		ReopenAfter:            2,
		SnapshotTimeout:        time.Second,
		StopTimeout:            time.Second,
		PanicRestartDelay:      10 * time.Millisecond,
	}
}

func newTestManager(t *testing.T) (*Manager, *synthetic.Opener) {
	t.Helper()
	opener := synthetic.NewOpener(32, 24, 2*time.Millisecond)
	m := NewManager(opener, testOptions())
	t.Cleanup(func() {
		_ = m.Stop(context.Background())
	})
	return m, opener
}

func startAt(t *testing.T, m *Manager, index int) {
	t.Helper()
	if err := m.Start(context.Background(), source.Target{Index: index}); err != nil {
		t.Fatalf("Start(%d) error = %v", index, err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSnapshotWithoutStart(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Snapshot(context.Background())
	if !errors.Is(err, ErrNoCamera) {
		t.Fatalf("Snapshot() error = %v, want ErrNoCamera", err)
	}
	if _, err := m.Subscribe(context.Background()); !errors.Is(err, ErrNoCamera) {
		t.Fatalf("Subscribe() error = %v, want ErrNoCamera", err)
	}
}

func TestStartFailure(t *testing.T) {
	m, opener := newTestManager(t)
	opener.SetUnavailable(0, true)

	err := m.Start(context.Background(), source.Target{Index: 0})
	if !errors.Is(err, source.ErrDeviceUnavailable) {
		t.Fatalf("Start() error = %v, want ErrDeviceUnavailable", err)
	}

	if _, err := m.Snapshot(context.Background()); !errors.Is(err, ErrNoCamera) {
		t.Errorf("Snapshot() error = %v, want ErrNoCamera", err)
	}
	st := m.Status()
	if st.State != "stopped" {
		t.Errorf("state = %q, want stopped", st.State)
	}
	if st.LastError == "" {
		t.Error("LastError is empty after failed start")
	}
}

func TestSnapshotIsFresh(t *testing.T) {
	m, _ := newTestManager(t)
	startAt(t, m, 0)

	first, err := m.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	second, err := m.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	if second.Seq <= first.Seq {
		t.Errorf("second seq %d not after first %d", second.Seq, first.Seq)
	}
	if len(first.Data) < 2 || first.Data[0] != 0xFF || first.Data[1] != 0xD8 {
		t.Errorf("frame does not start with a JPEG SOI marker")
	}
	if first.Width != 32 || first.Height != 24 {
		t.Errorf("frame size = %dx%d, want 32x24", first.Width, first.Height)
	}
}

func TestSubscribersSeeIncreasingSeq(t *testing.T) {
	m, _ := newTestManager(t)
	startAt(t, m, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// one subscriber leaves early; the others must keep receiving frames
	quitter, err := m.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if _, err := quitter.Next(ctx); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	quitter.Close()
	quitter.Close()

	const subscribers = 4
	const frames = 15

	var wg sync.WaitGroup
	errs := make(chan error, subscribers)
	for i := 0; i < subscribers; i++ {
		sub, err := m.Subscribe(ctx)
		if err != nil {
			t.Fatalf("Subscribe() error = %v", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sub.Close()

			var last uint64
			for n := 0; n < frames; n++ {
				f, err := sub.Next(ctx)
				if err != nil {
					errs <- err
					return
				}
				if f.Seq <= last {
					errs <- errors.New("sequence went backwards")
					return
				}
				last = f.Seq
			}
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("subscriber: %v", err)
	}

	if got := m.Status().Subscribers; got != 0 {
		t.Errorf("subscribers = %d after all closed, want 0", got)
	}
}

func TestSwitchPublishesOnlyNewDevice(t *testing.T) {
	m, opener := newTestManager(t)
	startAt(t, m, 0)

	if _, err := m.Snapshot(context.Background()); err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	if err := m.Switch(context.Background(), source.Target{Index: 1}); err != nil {
		t.Fatalf("Switch() error = %v", err)
	}

	if f := m.Latest(); f != nil && f.Device != 1 {
		t.Errorf("latest frame from device %d right after switch", f.Device)
	}
	if !opener.Last(0).Closed() {
		t.Error("previous device still open after switch")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sub, err := m.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Close()

	for i := 0; i < 5; i++ {
		f, err := sub.Next(ctx)
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if f.Device != 1 {
			t.Fatalf("frame %d from device %d, want 1", f.Seq, f.Device)
		}
	}

	if got := m.Target().Index; got != 1 {
		t.Errorf("target index = %d, want 1", got)
	}
}

func TestSwitchFailureRestoresPrevious(t *testing.T) {
	m, opener := newTestManager(t)
	startAt(t, m, 0)
	opener.SetUnavailable(1, true)

	err := m.Switch(context.Background(), source.Target{Index: 1})
	if !errors.Is(err, source.ErrDeviceUnavailable) {
		t.Fatalf("Switch() error = %v, want ErrDeviceUnavailable", err)
	}

	if got := m.Target().Index; got != 0 {
		t.Errorf("target index = %d, want previous 0", got)
	}
	f, err := m.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() after failed switch error = %v", err)
	}
	if f.Device != 0 {
		t.Errorf("frame from device %d, want 0", f.Device)
	}
	if got := opener.OpenDevices(); got != 1 {
		t.Errorf("open devices = %d, want 1", got)
	}
}

func TestSwitchDoubleFailureRecovers(t *testing.T) {
	m, opener := newTestManager(t)
	startAt(t, m, 0)
	opener.SetUnavailable(0, true)
	opener.SetUnavailable(1, true)

	if err := m.Switch(context.Background(), source.Target{Index: 1}); err == nil {
		t.Fatal("Switch() succeeded with both devices unavailable")
	}

	if _, err := m.Snapshot(context.Background()); !errors.Is(err, ErrCameraLost) {
		t.Fatalf("Snapshot() error = %v, want ErrCameraLost", err)
	}
	if !m.Status().Degraded {
		t.Error("manager not degraded after double failure")
	}

	opener.SetUnavailable(0, false)
	waitFor(t, "recovery of previous device", func() bool {
		return !m.Status().Degraded
	})

	f, err := m.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() after recovery error = %v", err)
	}
	if f.Device != 0 {
		t.Errorf("frame from device %d, want 0", f.Device)
	}
}

func TestDegradedAfterConsecutiveFailures(t *testing.T) {
	m, opener := newTestManager(t)
	startAt(t, m, 0)
	if _, err := m.Snapshot(context.Background()); err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	opener.SetUnavailable(0, true)
	opener.Last(0).FailReads(true)

	waitFor(t, "degraded state", func() bool {
		return m.Status().Degraded
	})
	if _, err := m.Snapshot(context.Background()); !errors.Is(err, ErrCameraLost) {
		t.Errorf("Snapshot() error = %v, want ErrCameraLost", err)
	}

	opener.SetUnavailable(0, false)
	waitFor(t, "recovery", func() bool {
		return !m.Status().Degraded
	})
	if _, err := m.Snapshot(context.Background()); err != nil {
		t.Errorf("Snapshot() after recovery error = %v", err)
	}
	if got := m.Status().ErrorCount; got == 0 {
		t.Error("error count not incremented")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	m, opener := newTestManager(t)
	startAt(t, m, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sub, err := m.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Close()
	if _, err := sub.Next(ctx); err != nil {
		t.Fatalf("Next() error = %v", err)
	}

	blocked := make(chan error, 1)
	go func() {
		for {
			if _, err := sub.Next(ctx); err != nil {
				blocked <- err
				return
			}
		}
	}()

	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}

	select {
	case err := <-blocked:
		if !errors.Is(err, ErrStopped) {
			t.Errorf("Next() error = %v, want ErrStopped", err)
		}
	case <-ctx.Done():
		t.Fatal("subscriber not released by Stop")
	}

	if _, err := m.Snapshot(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("Snapshot() error = %v, want ErrStopped", err)
	}
	if !opener.Last(0).Closed() {
		t.Error("device still open after Stop")
	}
}

func TestSetPropertiesReportsUnsupported(t *testing.T) {
	m, _ := newTestManager(t)
	startAt(t, m, 0)

	unsupported, err := m.SetProperties(context.Background(), map[source.Property]float64{
		source.PropertyBrightness: 10,
		source.PropertyGain:       5,
	})
	if err != nil {
		t.Fatalf("SetProperties() error = %v", err)
	}
	if len(unsupported) != 1 || unsupported[0] != source.PropertyGain {
		t.Errorf("unsupported = %v, want [gain]", unsupported)
	}

	values, _, err := m.Properties(context.Background())
	if err != nil {
		t.Fatalf("Properties() error = %v", err)
	}
	if got := values[source.PropertyBrightness]; got != 10 {
		t.Errorf("brightness = %v, want 10", got)
	}

	// desired values survive a switch
	if err := m.Switch(context.Background(), source.Target{Index: 1}); err != nil {
		t.Fatalf("Switch() error = %v", err)
	}
	values, _, err = m.Properties(context.Background())
	if err != nil {
		t.Fatalf("Properties() error = %v", err)
	}
	if got := values[source.PropertyBrightness]; got != 10 {
		t.Errorf("brightness after switch = %v, want 10", got)
	}
}

func TestSnapshotsDuringSwitch(t *testing.T) {
	m, _ := newTestManager(t)
	startAt(t, m, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < 10; n++ {
				f, err := m.Snapshot(ctx)
				if err != nil {
					// a snapshot may straddle a switch and time out
					continue
				}
				ok.Add(1)
				if f.Device != 0 && f.Device != 1 {
					t.Errorf("frame from unexpected device %d", f.Device)
					return
				}
			}
		}()
	}

	for i := 1; i <= 4; i++ {
		if err := m.Switch(ctx, source.Target{Index: i % 2}); err != nil {
			t.Errorf("Switch(%d) error = %v", i%2, err)
		}
	}
	wg.Wait()

	if ok.Load() == 0 {
		t.Fatal("no snapshot succeeded during switching")
	}
	if got := m.Status().State; got != "running" {
		t.Errorf("state = %q, want running", got)
	}

	before := m.Status().LastSeq
	if err := m.Switch(ctx, source.Target{Index: 1}); err != nil {
		t.Fatalf("Switch(1) error = %v", err)
	}
	f, err := m.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() after switch error = %v", err)
	}
	if f.Seq <= before {
		t.Errorf("seq after switch = %d, want > %d", f.Seq, before)
	}
	if f.Device != 1 {
		t.Errorf("device after switch = %d, want 1", f.Device)
	}
}

func TestSubscriberLeavesDuringSnapshot(t *testing.T) {
	m, _ := newTestManager(t)
	startAt(t, m, 0)

	subCtx, leave := context.WithCancel(context.Background())
	sub, err := m.Subscribe(subCtx)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if _, err := sub.Next(subCtx); err != nil {
		t.Fatalf("Next() error = %v", err)
	}

	type result struct {
		f   *models.Frame
		err error
	}
	res := make(chan result, 1)
	go func() {
		f, err := m.Snapshot(context.Background())
		res <- result{f, err}
	}()

	leave()
	sub.Close()

	select {
	case r := <-res:
		if r.err != nil {
			t.Fatalf("Snapshot() error = %v", r.err)
		}
		if len(r.f.Data) == 0 {
			t.Error("Snapshot() returned an empty frame")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Snapshot() did not return after the subscriber left")
	}

	if got := m.Status().Subscribers; got != 0 {
		t.Errorf("subscribers = %d, want 0", got)
	}
}

func TestStopGivesUpOnStuckRead(t *testing.T) {
	m, opener := newTestManager(t)
	startAt(t, m, 0)

	dev := opener.Last(0)
	dev.Hold()
	defer dev.Release()
	waitFor(t, "read to block", dev.Parked)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	begin := time.Now()
	err := m.Stop(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Stop() error = %v, want DeadlineExceeded", err)
	}
	if elapsed := time.Since(begin); elapsed > time.Second {
		t.Errorf("Stop() took %s, want it bounded by ctx", elapsed)
	}
	if got := m.Status().State; got != "stopped" {
		t.Errorf("state = %q, want stopped", got)
	}
	if dev.Closed() {
		t.Error("device closed while a read was still in flight")
	}

	dev.Release()
	waitFor(t, "abandoned device to close", dev.Closed)

	if err := m.Stop(context.Background()); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestBackoffStaysWithinBounds(t *testing.T) {
	m := NewManager(nil, Options{
		ReconnectBackoffMin: 100 * time.Millisecond,
		ReconnectBackoffMax: time.Second,
		ReconnectJitterPct:  20,
	})

	for attempt := 1; attempt <= 10; attempt++ {
		d := m.backoff(attempt)
		if d < 80*time.Millisecond || d > 1200*time.Millisecond {
			t.Errorf("backoff(%d) = %s out of bounds", attempt, d)
		}
	}
}
