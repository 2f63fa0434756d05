package crawler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/cori/video-analysis-pipeline/internal/metrics"
	"github.com/cori/video-analysis-pipeline/internal/sidecar"
)

type State string

const (
	StateDisabled    State = "disabled"
	StateIdle        State = "idle"
	StateScanning    State = "scanning"
	StateDispatching State = "dispatching"
	StatePausing     State = "pausing"
	StateStopped     State = "stopped"
)

// ErrRetryLater marks a dispatch failure that says nothing about the video
// itself, such as the vision backend being down. The video is not put on
// cooldown and comes back with the next scan.
var ErrRetryLater = errors.New("retry later")

// Dispatcher runs one analysis. An error wrapping sidecar.ErrConflict
// means the video was analyzed in the meantime and is skipped silently.
type Dispatcher interface {
	Dispatch(ctx context.Context, videoPath string) error
}

type DispatcherFunc func(ctx context.Context, videoPath string) error

func (f DispatcherFunc) Dispatch(ctx context.Context, videoPath string) error {
	return f(ctx, videoPath)
}

type Config struct {
	Root            string
	Interval        time.Duration
	Pause           time.Duration
	Watch           bool
	WatchDebounce   time.Duration
	FailureCooldown time.Duration
	FailureCacheMax int
	// SettleDelay is how long after a scan that left files unsettled the
	// crawler looks again. Defaults to WatchDebounce, then 5s.
	SettleDelay time.Duration
	// IdlePoll bounds how long an empty dispatcher sleeps before it looks
	// at the queue again. Scans wake it earlier.
	IdlePoll time.Duration
}

type Status struct {
	Enabled       bool       `json:"enabled"`
	State         State      `json:"state"`
	LastRun       *time.Time `json:"last_run"`
	VideosFound   int        `json:"videos_found"`
	VideosPending int        `json:"videos_pending"`
}

// Crawler periodically scans a directory tree and feeds stable, unanalyzed
// videos to a Dispatcher one at a time, pausing between analyses.
type Crawler struct {
	config     Config
	queue      Queue
	scanner    *Scanner
	failures   *FailureCache
	dispatcher Dispatcher

	// scanMu serializes scans with dequeueing so a video that just left the
	// queue is seen as in flight rather than new.
	scanMu sync.Mutex

	mu          sync.Mutex
	state       State
	scanning    bool
	lastRun     time.Time
	videosFound int
	current     string
	settle      *time.Timer

	wake   chan struct{}
	rescan chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config, queue Queue, dispatcher Dispatcher, hasSidecar SidecarChecker) *Crawler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Pause < 0 {
		cfg.Pause = 0
	}
	if cfg.FailureCooldown <= 0 {
		cfg.FailureCooldown = 6 * time.Hour
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = cfg.WatchDebounce
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 5 * time.Second
	}
	if cfg.IdlePoll <= 0 {
		cfg.IdlePoll = time.Minute
	}
	if queue == nil {
		queue = NewMemoryQueue()
	}

	failures := NewFailureCache(cfg.FailureCacheMax, cfg.FailureCooldown)
	c := &Crawler{
		config:     cfg,
		queue:      queue,
		scanner:    NewScanner(cfg.Root, queue, failures, hasSidecar),
		failures:   failures,
		dispatcher: dispatcher,
		state:      StateIdle,
		wake:       make(chan struct{}, 1),
		rescan:     make(chan struct{}, 1),
	}
	c.scanner.inFlight = c.isInFlight
	return c
}

func (c *Crawler) isInFlight(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != "" && c.current == path
}

func (c *Crawler) setCurrent(path string) {
	c.mu.Lock()
	c.current = path
	c.mu.Unlock()
}

func (c *Crawler) next(ctx context.Context) (*Entry, error) {
	c.scanMu.Lock()
	defer c.scanMu.Unlock()

	entry, err := c.queue.Dequeue(ctx)
	if entry != nil {
		c.setCurrent(entry.Path)
	}
	return entry, err
}

// Start launches the scan loop, the dispatch worker and, if configured, the
// filesystem watcher. The first scan happens immediately.
func (c *Crawler) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	if c.config.Watch {
		w, err := NewWatcher(c.config.Root, c.config.WatchDebounce, c.RequestScan)
		if err != nil {
			log.Printf("[CRAWLER] Warning: watch disabled: %v", err)
		} else {
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				defer w.Close()
				w.Run(ctx)
			}()
		}
	}

	c.wg.Add(2)
	go c.scanLoop(ctx)
	go c.dispatchLoop(ctx)

	log.Printf("[CRAWLER] Started: root=%s interval=%s pause=%s watch=%v",
		c.config.Root, c.config.Interval, c.config.Pause, c.config.Watch)
}

// Stop cancels the loops and waits for them. An analysis that is already
// running is cancelled through its context.
func (c *Crawler) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	c.mu.Lock()
	if c.settle != nil {
		c.settle.Stop()
	}
	c.state = StateStopped
	c.mu.Unlock()
	log.Println("[CRAWLER] Stopped")
}

// RequestScan schedules a scan without waiting for it.
func (c *Crawler) RequestScan() {
	select {
	case c.rescan <- struct{}{}:
	default:
	}
}

// Trigger runs a scan now and returns how many videos it enqueued.
func (c *Crawler) Trigger(ctx context.Context) (int, error) {
	res, err := c.scan(ctx)
	if err != nil {
		return 0, err
	}
	return res.Enqueued, nil
}

func (c *Crawler) Status(ctx context.Context) Status {
	pending, err := c.queue.Len(ctx)
	if err != nil {
		log.Printf("[CRAWLER] Warning: queue length unavailable: %v", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		Enabled:       true,
		State:         c.state,
		VideosFound:   c.videosFound,
		VideosPending: pending,
	}
	if c.scanning && c.state != StateStopped {
		st.State = StateScanning
	}
	if !c.lastRun.IsZero() {
		last := c.lastRun
		st.LastRun = &last
	}
	return st
}

// QueueLen reports zero when the queue backend is unreachable.
func (c *Crawler) QueueLen(ctx context.Context) int {
	n, err := c.queue.Len(ctx)
	if err != nil {
		return 0
	}
	return n
}

func (c *Crawler) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Crawler) scan(ctx context.Context) (ScanResult, error) {
	c.scanMu.Lock()
	defer c.scanMu.Unlock()

	c.mu.Lock()
	c.scanning = true
	c.mu.Unlock()

	start := time.Now()
	res, err := c.scanner.Scan(ctx)

	c.mu.Lock()
	c.scanning = false
	c.lastRun = start
	if err == nil {
		c.videosFound = res.Found
	}
	c.mu.Unlock()

	if err != nil {
		log.Printf("[CRAWLER] Scan failed: %v", err)
		return res, err
	}

	metrics.RecordScan(res.Enqueued)
	log.Printf("[CRAWLER] Scan complete: found=%d enqueued=%d pending=%d analyzed=%d cooling=%d (%s)",
		res.Found, res.Enqueued, res.Pending, res.Analyzed, res.CoolingDown, time.Since(start).Round(time.Millisecond))

	// Files seen for the first time or still growing need a second look
	// before they can be queued.
	if res.Pending > 0 {
		c.scheduleSettleScan()
	}

	if res.Enqueued > 0 {
		select {
		case c.wake <- struct{}{}:
		default:
		}
	}
	return res, nil
}

func (c *Crawler) scheduleSettleScan() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateStopped {
		return
	}
	if c.settle == nil {
		c.settle = time.AfterFunc(c.config.SettleDelay, c.RequestScan)
		return
	}
	c.settle.Reset(c.config.SettleDelay)
}

func (c *Crawler) scanLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	c.scan(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.scan(ctx)
		case <-c.rescan:
			c.scan(ctx)
		}
	}
}

func (c *Crawler) dispatchLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		entry, err := c.next(ctx)
		if err != nil {
			log.Printf("[CRAWLER] Warning: dequeue failed: %v", err)
		}
		if entry == nil {
			c.setState(StateIdle)
			if !c.sleep(ctx, c.config.IdlePoll, c.wake) {
				return
			}
			continue
		}

		c.setState(StateDispatching)
		ran := c.dispatch(ctx, entry)
		c.setCurrent("")
		if !ran {
			continue
		}

		if c.config.Pause > 0 {
			c.setState(StatePausing)
			if !c.sleep(ctx, c.config.Pause, nil) {
				return
			}
		}
	}
}

// dispatch reports whether an analysis actually ran.
func (c *Crawler) dispatch(ctx context.Context, entry *Entry) bool {
	log.Printf("[CRAWLER] Dispatching %s", entry.Path)

	err := c.dispatcher.Dispatch(ctx, entry.Path)
	switch {
	case err == nil:
		return true
	case errors.Is(err, sidecar.ErrConflict):
		log.Printf("[CRAWLER] Skipping %s: already analyzed", entry.Path)
		return false
	case ctx.Err() != nil:
		// shutting down; leave the video for the next run
		return false
	case errors.Is(err, ErrRetryLater):
		log.Printf("[CRAWLER] Analysis of %s postponed: %v", entry.Path, err)
		return true
	default:
		c.failures.Record(entry.Path)
		log.Printf("[CRAWLER] Analysis of %s failed, cooling down for %s: %v",
			entry.Path, c.config.FailureCooldown, err)
		return true
	}
}

// sleep waits for d, an optional wake signal or cancellation. It returns
// false only when ctx is done.
func (c *Crawler) sleep(ctx context.Context, d time.Duration, wake <-chan struct{}) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	case <-wake:
		return true
	}
}
