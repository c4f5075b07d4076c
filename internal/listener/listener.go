// Package listener waits for broadcast transactions to be mined.
package listener

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/OKaluzny/evm-account/pkg/models"
	"github.com/benbjohnson/clock"
)

// DefaultPollInterval is the receipt polling period.
const DefaultPollInterval = 2 * time.Second

// ReceiptFetcher abstracts eth_getTransactionReceipt. It returns a nil
// receipt while the transaction is still pending.
type ReceiptFetcher interface {
	GetTransactionReceipt(ctx context.Context, hash string) (*models.Receipt, error)
}

// Waiter polls a ReceiptFetcher until a receipt appears or a timeout elapses.
type Waiter struct {
	fetcher      ReceiptFetcher
	pollInterval time.Duration
	clock        clock.Clock
	logger       *slog.Logger
}

// Option configures a Waiter.
type Option func(*Waiter)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) Option {
	return func(w *Waiter) { w.clock = c }
}

// NewWaiter returns a Waiter polling every pollInterval, or every
// DefaultPollInterval when pollInterval is not positive.
func NewWaiter(fetcher ReceiptFetcher, pollInterval time.Duration, opts ...Option) *Waiter {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	w := &Waiter{
		fetcher:      fetcher,
		pollInterval: pollInterval,
		clock:        clock.New(),
		logger:       slog.Default().With("component", "waiter"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WaitForTransaction polls for the receipt of hash immediately and then every
// poll interval. Null receipts are tolerated until timeout elapses, which
// yields ErrTimeout. The timeout also bounds each receipt request, so a slow
// node cannot stretch the wait. Fetch errors are returned as is, without retry.
//
// A mined receipt whose status is not 0x1 is returned together with
// ErrTransactionFailed.
func (w *Waiter) WaitForTransaction(ctx context.Context, hash string, timeout time.Duration) (*models.Receipt, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("%w: timeout must be positive, got %s", models.ErrValidation, timeout)
	}

	waitCtx, cancel := w.clock.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := w.clock.Ticker(w.pollInterval)
	defer ticker.Stop()

	logger := w.logger.With("tx_hash", hash)
	logger.Info("waiting for receipt", "timeout", timeout, "poll_interval", w.pollInterval)

	// stopped maps the end of waitCtx to the caller's error or ErrTimeout.
	stopped := func() error {
		if err := ctx.Err(); err != nil {
			logger.Info("stopped waiting", "reason", err)
			return err
		}
		return fmt.Errorf("%w: no receipt for %s after %s", models.ErrTimeout, hash, timeout)
	}

	start := w.clock.Now()
	for attempt := 1; ; attempt++ {
		if waitCtx.Err() != nil {
			return nil, stopped()
		}

		receipt, err := w.fetcher.GetTransactionReceipt(waitCtx, hash)
		if err != nil {
			if waitCtx.Err() != nil {
				return nil, stopped()
			}
			return nil, fmt.Errorf("get receipt %s: %w", hash, err)
		}
		if receipt != nil {
			elapsed := w.clock.Since(start)
			if !receipt.Succeeded() {
				logger.Warn("transaction reverted", "status", receipt.Status, "block", receipt.BlockNumber, "elapsed", elapsed)
				return receipt, fmt.Errorf("%w: %s has status %s", models.ErrTransactionFailed, hash, receipt.Status)
			}
			logger.Info("transaction confirmed", "block", receipt.BlockNumber, "gas_used", receipt.GasUsed, "elapsed", elapsed)
			return receipt, nil
		}
		logger.Debug("receipt not available yet", "attempt", attempt)

		select {
		case <-waitCtx.Done():
			return nil, stopped()
		case <-ticker.C:
		}
	}
}

// Confirmation is a cancellable, in-flight WaitForTransaction.
type Confirmation struct {
	hash    string
	cancel  context.CancelFunc
	done    chan struct{}
	receipt *models.Receipt
	err     error
}

// Watch starts WaitForTransaction in the background. The caller must either
// read Result or call Cancel.
func (w *Waiter) Watch(ctx context.Context, hash string, timeout time.Duration) *Confirmation {
	ctx, cancel := context.WithCancel(ctx)
	c := &Confirmation{
		hash:   hash,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(c.done)
		defer cancel()
		c.receipt, c.err = w.WaitForTransaction(ctx, hash, timeout)
	}()
	return c
}

// Hash returns the transaction hash being watched.
func (c *Confirmation) Hash() string {
	return c.hash
}

// Done is closed once polling has stopped.
func (c *Confirmation) Done() <-chan struct{} {
	return c.done
}

// Cancel stops polling. Result then reports context.Canceled unless a
// receipt had already been received.
func (c *Confirmation) Cancel() {
	c.cancel()
}

// Result blocks until polling stops and returns its outcome.
func (c *Confirmation) Result() (*models.Receipt, error) {
	<-c.done
	return c.receipt, c.err
}
