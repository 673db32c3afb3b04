package conductor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/vibeweaver/internal/scheduler"
)

const inboxSize = 64

// session — горутина-владелец Scheduler одной сессии.
type session struct {
	id    uuid.UUID
	sched *scheduler.Scheduler
	clock *Clock

	inbox chan func(*session)
	stop  chan struct{}
	done  chan struct{}

	// lastActive — unix nano последней команды или выданного действия.
	lastActive atomic.Int64
}

func newSession(id uuid.UUID, sched *scheduler.Scheduler, clock *Clock, now time.Time) *session {
	s := &session{
		id:    id,
		sched: sched,
		clock: clock,
		inbox: make(chan func(*session), inboxSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	s.touch(now)
	return s
}

// run — цикл сессии: команды из inbox и периодическая проверка дедлайнов.
func (s *session) run(ctx context.Context, interval time.Duration, onTick func(*session)) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case fn := <-s.inbox:
			fn(s)
		case <-ticker.C:
			onTick(s)
		}
	}
}

// send ставит функцию в очередь сессии, не дожидаясь выполнения.
func (s *session) send(ctx context.Context, fn func(*session)) error {
	select {
	case s.inbox <- fn:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call выполняет функцию в горутине сессии и ждёт результата.
func (s *session) call(ctx context.Context, fn func(*session) error) error {
	errCh := make(chan error, 1)
	if err := s.send(ctx, func(s *session) { errCh <- fn(s) }); err != nil {
		return err
	}

	select {
	case err := <-errCh:
		return err
	case <-s.done:
		select {
		case err := <-errCh:
			return err
		default:
			return ErrSessionClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *session) touch(now time.Time) {
	s.lastActive.Store(now.UnixNano())
}

func (s *session) idleSince() time.Time {
	return time.Unix(0, s.lastActive.Load())
}
