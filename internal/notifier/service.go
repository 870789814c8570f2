package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"wabot/internal/eventbus"
	rtsup "wabot/internal/runtime/supervisor"
	logx "wabot/pkg/logx"
)

// Service implements an async publish pipeline:
// bounded queue + worker pool + rate limit, fanning out to the event bus.
//
// Publish never blocks and never reports an error to the caller: delivery
// to observers is best-effort by contract.
type Service struct {
	mu sync.Mutex

	log logx.Logger
	bus eventbus.Bus

	cfg     Config
	limiter *rate.Limiter

	queue    chan Event
	sup      *rtsup.Supervisor
	stopDone chan struct{} // non-nil while stopping

	// In-memory history ring (for status surfaces).
	hmu     sync.Mutex
	history []Event
}

func New(cfg Config, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{log: log, bus: bus}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 512
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 20
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 200
	}

	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Start is idempotent.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	// If stopping, wait for it to finish before restarting.
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil {
		s.mu.Unlock()
		return
	}
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}

	s.queue = make(chan Event, s.cfg.QueueSize)
	workers := s.cfg.Workers

	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "notifier"))),
		// Notifier failures must not take down the app; best-effort only.
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	q := s.queue
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		name := fmt.Sprintf("worker.%d", i)
		sup.GoRestart(name, func(c context.Context) error {
			s.workerLoop(c, q)
			return nil
		})
	}
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.queue == nil || s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		if done != nil {
			select {
			case <-done:
			case <-ctx.Done():
			}
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	sup := s.sup
	s.sup = nil
	s.queue = nil
	s.mu.Unlock()

	if sup != nil {
		_ = sup.Stop(ctx)
	}

	s.mu.Lock()
	s.stopDone = nil
	s.mu.Unlock()
	close(done)
}

// Publish enqueues an event. Fire-and-forget: a full queue or a stopped
// service drops the event with a debug log.
func (s *Service) Publish(e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}

	s.mu.Lock()
	q := s.queue
	enabled := s.cfg.Enabled
	s.mu.Unlock()

	if !enabled || q == nil {
		return
	}
	select {
	case q <- e:
	default:
		s.log.Debug("notifier queue full; event dropped", logx.String("kind", e.Kind))
	}
}

// History returns a copy of the retained events, oldest first.
func (s *Service) History() []Event {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	out := make([]Event, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Service) workerLoop(ctx context.Context, q <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-q:
			s.mu.Lock()
			lim := s.limiter
			s.mu.Unlock()
			if lim != nil {
				if err := lim.Wait(ctx); err != nil {
					return
				}
			}
			s.bus.Publish(eventbus.Event{Kind: e.Kind, Time: e.At, Data: e})
			s.remember(e)
		}
	}
}

func (s *Service) remember(e Event) {
	s.mu.Lock()
	maxN := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	s.history = append(s.history, e)
	if len(s.history) > maxN {
		s.history = s.history[len(s.history)-maxN:]
	}
	s.hmu.Unlock()
}
