package sheetstore

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Config represents configuration for the store client
type Config struct {
	CacheTTL      time.Duration // Lifetime of a cached sheet read (default: 30s)
	SweepInterval time.Duration // Interval for purging expired cache entries (0 disables the sweeper)
	MaxRetries    int           // Maximum number of retries for reads (default: 3)
	RetryInterval time.Duration // Base interval between read retries for exponential backoff (default: 100ms)

	// OperationTimeout bounds every backend call when positive.
	OperationTimeout time.Duration

	// SkipWriteVerification disables re-reading the id cell of a located row
	// right before it is written or deleted.
	SkipWriteVerification bool

	Mapper          FieldMapper
	Notifier        Notifier
	NotifyQueueSize int           // default: 64
	NotifyTimeout   time.Duration // default: 10s

	Logger  logrus.FieldLogger
	Metrics MetricsRecorder
	Now     func() time.Time
}

const (
	defaultCacheTTL        = 30 * time.Second
	defaultMaxRetries      = 3
	defaultRetryInterval   = 100 * time.Millisecond
	maxRetryBackoff        = 2 * time.Second
	defaultNotifyQueueSize = 64
	defaultNotifyTimeout   = 10 * time.Second
)

func (c Config) withDefaults() Config {
	if c.CacheTTL <= 0 {
		c.CacheTTL = defaultCacheTTL
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = defaultRetryInterval
	}
	if c.Mapper == nil {
		c.Mapper = FieldMap{}
	}
	if c.NotifyQueueSize <= 0 {
		c.NotifyQueueSize = defaultNotifyQueueSize
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = defaultNotifyTimeout
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}
