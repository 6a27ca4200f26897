package sheetstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Client is the sheet-backed data access layer. Reads go through a TTL cache;
// writes go straight to the backend and invalidate the cache of the sheet
// they touch.
type Client struct {
	config     Config
	adapter    Adapter
	cache      *Cache
	pending    *pendingSet
	group      singleflight.Group
	dispatcher *Dispatcher
	sweeper    *Sweeper
	log        logrus.FieldLogger

	mu     sync.RWMutex
	closed bool
}

// New creates a client for the given adapter. A nil config uses defaults.
func New(adapter Adapter, config *Config) *Client {
	if config == nil {
		config = &Config{}
	}
	cfg := config.withDefaults()

	client := &Client{
		config:  cfg,
		adapter: adapter,
		cache:   NewCache(cfg.CacheTTL, cfg.Now),
		pending: newPendingSet(),
		log:     cfg.Logger,
	}

	if cfg.Notifier != nil {
		client.dispatcher = NewDispatcher(cfg.Notifier, cfg.NotifyQueueSize, cfg.NotifyTimeout, cfg.Logger, cfg.Metrics)
	}

	if cfg.SweepInterval > 0 {
		client.sweeper = NewSweeper(client.cache, cfg.SweepInterval, cfg.Logger)
		client.sweeper.Start()
	}

	return client
}

type sheetData struct {
	records []*Record
	headers []string
}

// List returns the records of a sheet that match the query, in row order.
func (c *Client) List(ctx context.Context, sheet string, query Query) ([]*Record, error) {
	if err := ValidateQuery(query); err != nil {
		return nil, err
	}
	data, err := c.readSheet(ctx, sheet)
	if err != nil {
		return nil, err
	}
	return ApplyQuery(data.records, query), nil
}

// Get returns the first record whose idColumn cell holds exactly idValue,
// compared as cell text the way Locate compares it.
func (c *Client) Get(ctx context.Context, sheet, idColumn, idValue string) (*Record, error) {
	if sheet == "" || idColumn == "" || idValue == "" {
		return nil, fmt.Errorf("%w: sheet, id column and id value are required", ErrBadRequest)
	}
	data, err := c.readSheet(ctx, sheet)
	if err != nil {
		return nil, err
	}

	idx, ok := ResolveColumn(c.config.Mapper, sheet, data.headers, idColumn)
	if !ok {
		return nil, fmt.Errorf("%w: id column %q not found in sheet %q", ErrNotFound, idColumn, sheet)
	}
	for _, record := range data.records {
		if record.Cell(idx) == idValue {
			return record, nil
		}
	}
	return nil, fmt.Errorf("%w: no row with %s = %q in sheet %q", ErrNotFound, idColumn, idValue, sheet)
}

// Headers returns the header row of a sheet as written in the sheet.
func (c *Client) Headers(ctx context.Context, sheet string) ([]string, error) {
	data, err := c.readSheet(ctx, sheet)
	if err != nil {
		return nil, err
	}
	return data.headers, nil
}

// Invalidate drops the cached read of a sheet.
func (c *Client) Invalidate(sheet string) {
	c.cache.Invalidate(sheet)
}

// readSheet serves a sheet from the cache or reads it through. Concurrent
// misses for the same sheet share one backend read, which is detached from
// the caller that started it so a cancelled caller does not fail the others.
func (c *Client) readSheet(ctx context.Context, sheet string) (sheetData, error) {
	if err := c.checkOpen(); err != nil {
		return sheetData{}, err
	}
	if sheet == "" {
		return sheetData{}, fmt.Errorf("%w: sheet name is required", ErrBadRequest)
	}

	if records, headers, ok := c.cache.Get(sheet); ok {
		c.config.Metrics.CacheHit(sheet)
		return sheetData{records: records, headers: headers}, nil
	}

	gen := c.cache.Generation(sheet)
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(fmt.Sprintf("%s#%d", sheet, gen), func() (interface{}, error) {
		grid, err := c.fetch(shared, sheet, FullRange)
		if err != nil {
			return nil, err
		}
		if len(grid) == 0 {
			return nil, fmt.Errorf("%w: no data in sheet %q", ErrNotFound, sheet)
		}
		data := sheetData{records: Decode(grid), headers: HeaderRow(grid)}
		if !c.cache.PutIfCurrent(sheet, gen, data.headers, data.records) {
			c.log.WithField("sheet", sheet).Debug("sheet changed during read, result not cached")
		}
		return data, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return sheetData{}, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
	}
	if res.Err != nil {
		return sheetData{}, res.Err
	}
	// Counted only once the sheet is known to exist, so unknown names from
	// request paths never become metric series.
	c.config.Metrics.CacheMiss(sheet)

	data := res.Val.(sheetData)
	return sheetData{records: copyRecords(data.records), headers: append([]string(nil), data.headers...)}, nil
}

// fetch reads a range from the backend, retrying with exponential backoff
// while the backend is unavailable.
func (c *Client) fetch(ctx context.Context, sheet, rng string) ([][]string, error) {
	var grid [][]string
	var err error

	for i := 0; i <= c.config.MaxRetries; i++ {
		err = c.call(ctx, sheet, "get_range", func(ctx context.Context) error {
			var e error
			grid, e = c.adapter.GetRange(ctx, sheet, rng)
			return e
		})
		if err == nil || !errors.Is(err, ErrUnavailable) {
			return grid, err
		}

		if i < c.config.MaxRetries {
			backoff := c.config.RetryInterval * time.Duration(1<<uint(i))
			if backoff > maxRetryBackoff {
				backoff = maxRetryBackoff
			}
			c.log.WithFields(logrus.Fields{"sheet": sheet, "attempt": i + 1}).WithError(err).Debug("read failed, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			}
		}
	}

	return nil, fmt.Errorf("failed after %d retries: %w", c.config.MaxRetries, err)
}

// call runs one backend operation with the configured timeout, records it and
// classifies its error.
func (c *Client) call(ctx context.Context, sheet, op string, fn func(ctx context.Context) error) error {
	if c.config.OperationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.OperationTimeout)
		defer cancel()
	}
	start := time.Now()
	err := fn(ctx)
	c.config.Metrics.BackendCall(op, time.Since(start), err)
	return classify(sheet, err)
}

func (c *Client) checkOpen() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}

// Close stops the background sweeper and delivers queued notifications.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sweeper := c.sweeper
	c.sweeper = nil
	c.mu.Unlock()

	if sweeper != nil {
		sweeper.Stop()
	}
	if c.dispatcher != nil {
		c.dispatcher.Stop()
	}
	return nil
}

// Sweeper purges expired cache entries periodically
type Sweeper struct {
	cache    *Cache
	interval time.Duration
	log      logrus.FieldLogger
	ticker   *time.Ticker
	done     chan bool
	wg       sync.WaitGroup
}

// NewSweeper creates a new sweeper
func NewSweeper(cache *Cache, interval time.Duration, logger logrus.FieldLogger) *Sweeper {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Sweeper{
		cache:    cache,
		interval: interval,
		log:      logger,
		done:     make(chan bool),
	}
}

// Start begins the periodic sweep
func (s *Sweeper) Start() {
	s.ticker = time.NewTicker(s.interval)
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		for {
			select {
			case <-s.ticker.C:
				s.sweep()
			case <-s.done:
				return
			}
		}
	}()
}

func (s *Sweeper) sweep() {
	if n := s.cache.Purge(); n > 0 {
		s.log.WithField("entries", n).Debug("purged expired cache entries")
	}
}

// Stop stops the sweeper and waits for a running sweep
func (s *Sweeper) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.done)
	s.wg.Wait()
}
