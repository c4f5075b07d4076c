package listener

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/OKaluzny/evm-account/pkg/models"
	"github.com/benbjohnson/clock"
)

const testHash = "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"

// mockFetcher answers receipt lookups from a per-call function and reports
// every call on calls.
type mockFetcher struct {
	mu    sync.Mutex
	n     int
	reply func(call int) (*models.Receipt, error)
	calls chan int
}

func newMockFetcher(reply func(call int) (*models.Receipt, error)) *mockFetcher {
	return &mockFetcher{reply: reply, calls: make(chan int, 100)}
}

func (f *mockFetcher) GetTransactionReceipt(ctx context.Context, hash string) (*models.Receipt, error) {
	f.mu.Lock()
	f.n++
	n := f.n
	f.mu.Unlock()

	r, err := f.reply(n)
	f.calls <- n
	return r, err
}

func (f *mockFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

func (f *mockFetcher) waitCall(t *testing.T) int {
	t.Helper()
	select {
	case n := <-f.calls:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for receipt poll")
		return 0
	}
}

func minedReceipt(status string) *models.Receipt {
	return &models.Receipt{
		TransactionHash: testHash,
		Status:          status,
		GasUsed:         "0x5208",
		BlockNumber:     "0x10",
	}
}

type waitResult struct {
	receipt *models.Receipt
	err     error
}

func startWait(w *Waiter, timeout time.Duration) <-chan waitResult {
	out := make(chan waitResult, 1)
	go func() {
		r, err := w.WaitForTransaction(context.Background(), testHash, timeout)
		out <- waitResult{r, err}
	}()
	return out
}

func awaitResult(t *testing.T, ch <-chan waitResult) waitResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for WaitForTransaction to return")
		return waitResult{}
	}
}

func TestWaiter_ImmediateReceipt(t *testing.T) {
	f := newMockFetcher(func(int) (*models.Receipt, error) { return minedReceipt("0x1"), nil })
	w := NewWaiter(f, 2*time.Second, WithClock(clock.NewMock()))

	receipt, err := w.WaitForTransaction(context.Background(), testHash, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if !receipt.Succeeded() {
		t.Errorf("expected successful receipt, got status %s", receipt.Status)
	}
	if f.count() != 1 {
		t.Errorf("expected exactly one poll, got %d", f.count())
	}
}

func TestWaiter_ReceiptAfterPolls(t *testing.T) {
	f := newMockFetcher(func(call int) (*models.Receipt, error) {
		if call < 3 {
			return nil, nil
		}
		return minedReceipt("0x1"), nil
	})
	mock := clock.NewMock()
	w := NewWaiter(f, 2*time.Second, WithClock(mock))

	done := startWait(w, time.Minute)

	f.waitCall(t)
	mock.Add(2 * time.Second)
	f.waitCall(t)
	mock.Add(2 * time.Second)
	if n := f.waitCall(t); n != 3 {
		t.Errorf("expected third poll, got %d", n)
	}

	res := awaitResult(t, done)
	if res.err != nil {
		t.Fatal(res.err)
	}
	if res.receipt.BlockNumber != "0x10" {
		t.Errorf("unexpected receipt: %+v", res.receipt)
	}
}

func TestWaiter_Timeout(t *testing.T) {
	f := newMockFetcher(func(int) (*models.Receipt, error) { return nil, nil })
	mock := clock.NewMock()
	w := NewWaiter(f, 2*time.Second, WithClock(mock))

	done := startWait(w, 6*time.Second)

	f.waitCall(t)
	mock.Add(2 * time.Second)
	f.waitCall(t)
	mock.Add(2 * time.Second)
	f.waitCall(t)
	mock.Add(2 * time.Second)

	res := awaitResult(t, done)
	if !errors.Is(res.err, models.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", res.err)
	}
	if res.receipt != nil {
		t.Error("timeout should not return a receipt")
	}
	if n := f.count(); n < 3 || n > 4 {
		t.Errorf("expected 3 or 4 polls within the window, got %d", n)
	}
}

// blockingFetcher never answers on its own; it returns only when the request
// context ends.
type blockingFetcher struct {
	mu    sync.Mutex
	calls int
}

func (f *blockingFetcher) GetTransactionReceipt(ctx context.Context, hash string) (*models.Receipt, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Second):
		return nil, nil
	}
}

func TestWaiter_TimeoutBoundsSlowFetch(t *testing.T) {
	f := &blockingFetcher{}
	w := NewWaiter(f, 50*time.Millisecond)

	start := time.Now()
	_, err := w.WaitForTransaction(context.Background(), testHash, 200*time.Millisecond)
	elapsed := time.Since(start)

	if !errors.Is(err, models.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed > time.Second {
		t.Errorf("wait took %s with a 200ms timeout", elapsed)
	}
	if f.calls != 1 {
		t.Errorf("expected the single in-flight fetch to be cut off, got %d calls", f.calls)
	}
}

func TestWaiter_SlowFetchCancelledByCaller(t *testing.T) {
	f := &blockingFetcher{}
	w := NewWaiter(f, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := w.WaitForTransaction(ctx, testHash, time.Minute)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("caller deadline should surface unchanged, got %v", err)
	}
	if errors.Is(err, models.ErrTimeout) {
		t.Error("caller cancellation must not be reported as ErrTimeout")
	}
}

func TestWaiter_Reverted(t *testing.T) {
	f := newMockFetcher(func(int) (*models.Receipt, error) { return minedReceipt("0x0"), nil })
	w := NewWaiter(f, time.Second, WithClock(clock.NewMock()))

	receipt, err := w.WaitForTransaction(context.Background(), testHash, time.Minute)
	if !errors.Is(err, models.ErrTransactionFailed) {
		t.Fatalf("expected ErrTransactionFailed, got %v", err)
	}
	if receipt == nil || receipt.Status != "0x0" {
		t.Errorf("reverted receipt should be returned, got %+v", receipt)
	}
}

func TestWaiter_FetchErrorNotRetried(t *testing.T) {
	rpcErr := &models.RPCError{Code: -32000, Message: "upstream unavailable"}
	f := newMockFetcher(func(int) (*models.Receipt, error) { return nil, rpcErr })
	w := NewWaiter(f, time.Second, WithClock(clock.NewMock()))

	_, err := w.WaitForTransaction(context.Background(), testHash, time.Minute)
	if !errors.Is(err, models.ErrRPC) {
		t.Fatalf("expected ErrRPC, got %v", err)
	}
	if f.count() != 1 {
		t.Errorf("errors must not be retried, got %d polls", f.count())
	}
}

func TestWaiter_InvalidTimeout(t *testing.T) {
	f := newMockFetcher(func(int) (*models.Receipt, error) { return nil, nil })
	w := NewWaiter(f, time.Second)

	for _, timeout := range []time.Duration{0, -time.Second} {
		if _, err := w.WaitForTransaction(context.Background(), testHash, timeout); !errors.Is(err, models.ErrValidation) {
			t.Errorf("timeout %s: expected ErrValidation, got %v", timeout, err)
		}
	}
	if f.count() != 0 {
		t.Error("no poll should happen with an invalid timeout")
	}
}

func TestNewWaiter_DefaultPollInterval(t *testing.T) {
	w := NewWaiter(newMockFetcher(nil), 0)
	if w.pollInterval != DefaultPollInterval {
		t.Errorf("poll interval = %s, want %s", w.pollInterval, DefaultPollInterval)
	}
}

func TestWatch_Result(t *testing.T) {
	f := newMockFetcher(func(call int) (*models.Receipt, error) {
		if call == 1 {
			return nil, nil
		}
		return minedReceipt("0x1"), nil
	})
	mock := clock.NewMock()
	w := NewWaiter(f, 2*time.Second, WithClock(mock))

	c := w.Watch(context.Background(), testHash, time.Minute)
	if c.Hash() != testHash {
		t.Errorf("Hash() = %s", c.Hash())
	}

	f.waitCall(t)
	select {
	case <-c.Done():
		t.Fatal("confirmation finished before the receipt was mined")
	default:
	}

	mock.Add(2 * time.Second)
	f.waitCall(t)

	receipt, err := c.Result()
	if err != nil {
		t.Fatal(err)
	}
	if !receipt.Succeeded() {
		t.Errorf("unexpected status %s", receipt.Status)
	}
}

func TestWatch_Cancel(t *testing.T) {
	f := newMockFetcher(func(int) (*models.Receipt, error) { return nil, nil })
	w := NewWaiter(f, 2*time.Second, WithClock(clock.NewMock()))

	c := w.Watch(context.Background(), testHash, time.Hour)
	f.waitCall(t)
	c.Cancel()

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Cancel did not stop polling")
	}

	_, err := c.Result()
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if f.count() != 1 {
		t.Errorf("expected no polls after cancel, got %d", f.count())
	}
}

func TestWatch_ParentContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := newMockFetcher(func(int) (*models.Receipt, error) { return nil, nil })
	w := NewWaiter(f, 2*time.Second, WithClock(clock.NewMock()))

	c := w.Watch(ctx, testHash, time.Hour)
	f.waitCall(t)
	cancel()

	if _, err := c.Result(); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestWatch_Concurrent(t *testing.T) {
	f := newMockFetcher(func(int) (*models.Receipt, error) { return minedReceipt("0x1"), nil })
	w := NewWaiter(f, time.Second, WithClock(clock.NewMock()))

	var confirmations []*Confirmation
	for i := 0; i < 5; i++ {
		confirmations = append(confirmations, w.Watch(context.Background(), fmt.Sprintf("0x%02x", i), time.Minute))
	}
	for _, c := range confirmations {
		if _, err := c.Result(); err != nil {
			t.Errorf("%s: %v", c.Hash(), err)
		}
	}
}
