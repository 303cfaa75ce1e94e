// Package browser provides a pooled headless-browser fetcher for the
// ingestion pipeline's web source: render a URL with
// JavaScript enabled and hand back its settled HTML plus referenced
// asset URLs for the rest of the pipeline to enumerate.
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// BrowserInstance is one leased tab within the pool's shared browser
// process: its own chromedp context and cancel function.
type BrowserInstance struct {
	ctx    context.Context
	cancel context.CancelFunc
	ID     string
}

// Pool manages a single headless Chrome process (via chromedp's
// ExecAllocator) and hands out bounded concurrent tab contexts.
type Pool struct {
	config    PoolConfig
	allocCtx  context.Context
	allocStop context.CancelFunc
	sem       chan struct{}

	mu     sync.Mutex
	closed bool
}

// PoolConfig configures the browser pool behavior and resource limits.
type PoolConfig struct {
	MaxInstances   int           // Maximum number of concurrent tabs
	Timeout        time.Duration // Per-navigation timeout
	Headless       bool          // Run Chrome headless
	ViewportWidth  int           // Viewport width (default: 1920)
	ViewportHeight int           // Viewport height (default: 1080)
	RemoteURL      string        // Optional remote debugging URL (ws:// or http(s)://) of an already-running Chrome
}

// NewPool starts (or attaches to) a headless Chrome process and prepares a
// bounded pool of tab contexts.
func NewPool(config PoolConfig) (*Pool, error) {
	if config.MaxInstances == 0 {
		config.MaxInstances = 5
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.ViewportWidth == 0 {
		config.ViewportWidth = 1920
	}
	if config.ViewportHeight == 0 {
		config.ViewportHeight = 1080
	}

	var allocCtx context.Context
	var allocStop context.CancelFunc

	if remote := normalizeRemoteURL(config.RemoteURL); remote != "" {
		allocCtx, allocStop = chromedp.NewRemoteAllocator(context.Background(), remote)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", config.Headless),
			chromedp.WindowSize(config.ViewportWidth, config.ViewportHeight),
			chromedp.Flag("ignore-certificate-errors", true),
		)
		allocCtx, allocStop = chromedp.NewExecAllocator(context.Background(), opts...)
	}

	return &Pool{
		config:    config,
		allocCtx:  allocCtx,
		allocStop: allocStop,
		sem:       make(chan struct{}, config.MaxInstances),
	}, nil
}

// Acquire blocks until a tab slot is available (or ctx is cancelled) and
// returns a fresh chromedp tab context bound to the shared browser process.
func (p *Pool) Acquire(ctx context.Context) (*BrowserInstance, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("pool is closed")
	}
	p.mu.Unlock()

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	tabCtx, cancel := chromedp.NewContext(p.allocCtx)
	tabCtx, timeoutCancel := context.WithTimeout(tabCtx, p.config.Timeout)
	if err := chromedp.Run(tabCtx); err != nil {
		timeoutCancel()
		cancel()
		<-p.sem
		return nil, fmt.Errorf("start browser tab: %w", err)
	}

	return &BrowserInstance{
		ctx: tabCtx,
		cancel: func() {
			timeoutCancel()
			cancel()
		},
		ID: fmt.Sprintf("tab-%d", time.Now().UnixNano()),
	}, nil
}

// Release tears down the leased tab and frees its pool slot.
func (p *Pool) Release(instance *BrowserInstance) {
	if instance == nil {
		return
	}
	instance.cancel()
	<-p.sem
}

// Close shuts down the shared browser process. After Close the pool must
// not be used.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.allocStop()
	return nil
}

func normalizeRemoteURL(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}
	if strings.HasPrefix(value, "http://") {
		return "ws://" + strings.TrimPrefix(value, "http://")
	}
	if strings.HasPrefix(value, "https://") {
		return "wss://" + strings.TrimPrefix(value, "https://")
	}
	return value
}

// GetStats returns current pool statistics for monitoring/debugging.
func (p *Pool) GetStats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		MaxInstances:       p.config.MaxInstances,
		AvailableInstances: p.config.MaxInstances - len(p.sem),
		IsClosed:           p.closed,
	}
}

// PoolStats contains pool statistics for monitoring and debugging.
type PoolStats struct {
	MaxInstances       int
	AvailableInstances int
	IsClosed           bool
}
