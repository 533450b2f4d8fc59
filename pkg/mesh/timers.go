package mesh

import (
	"context"
	"sync"
	"time"
)

// TimerService is a ticker thread that can drive a Client's 10ms
// pending-RPC timeout sweep or a Server's 100ms handshake-timer sweep
// (spec.md §5). Rather than the source's hidden process-global client/
// server lists walked by a package-level timer thread, NewClient/NewServer
// each start a private TimerService by default; callers that own several
// Clients/Servers on the same process (driver.Driver's local server plus
// its hub client, for instance) can instead construct one TimerService and
// pass it in via ClientOptions.Timers/ServerOptions.Timers to share a
// single sweep goroutine — the alternative spec.md §9's design notes call
// out as preferable. A shared TimerService is not Stopped by the Client or
// Server it's injected into; whoever constructed it owns shutting it down.
type TimerService struct {
	interval time.Duration
	mu       sync.Mutex
	subs     map[int]func()
	nextID   int
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewTimerService starts a ticker-backed service immediately; call Stop
// to shut it down.
func NewTimerService(interval time.Duration) *TimerService {
	ctx, cancel := context.WithCancel(context.Background())
	s := &TimerService{interval: interval, subs: make(map[int]func()), cancel: cancel}
	s.wg.Add(1)
	go s.run(ctx)
	return s
}

func (s *TimerService) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			callbacks := make([]func(), 0, len(s.subs))
			for _, fn := range s.subs {
				callbacks = append(callbacks, fn)
			}
			s.mu.Unlock()
			for _, fn := range callbacks {
				fn()
			}
		}
	}
}

// Register adds fn to be invoked on every tick, returning a function that
// removes it.
func (s *TimerService) Register(fn func()) (unregister func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Stop halts the ticker loop and waits for it to exit.
func (s *TimerService) Stop() {
	s.cancel()
	s.wg.Wait()
}

// DefaultClientTimerInterval is the ~10ms pending-RPC sweep period (§5).
const DefaultClientTimerInterval = 10 * time.Millisecond

// DefaultServerTimerInterval is the ~100ms handshake-timer sweep period (§5).
const DefaultServerTimerInterval = 100 * time.Millisecond

// HandshakeTimeout is the grace period a connected-but-not-yet-servinfo'd
// client is given before the server destroys it (§4.2).
const HandshakeTimeout = 5 * time.Second
