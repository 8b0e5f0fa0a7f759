// Package syncer keeps a local copy of every court in step with the upstream
// service, combining full fetches with the pushed event stream.
package syncer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/court-queue-board/internal/court"
	"github.com/DoyleJ11/court-queue-board/internal/push"
)

const (
	DefaultRetryDelay   = 5 * time.Second
	DefaultFetchTimeout = 10 * time.Second
)

// Fetcher returns the full court list.
type Fetcher interface {
	ListCourts(ctx context.Context) ([]court.Court, error)
}

type reason string

const (
	reasonInitial reason = "initial"
	reasonRetry   reason = "retry"
	reasonManual  reason = "manual"
	reasonVisible reason = "visible"
)

type msg interface{ isSyncMsg() }

type pushed struct {
	gen int
	ev  push.Event
}

type channelDown struct {
	gen int
	err error
}

type fetched struct {
	id     int
	reason reason
	courts []court.Court
	err    error
}

type retryFired struct{ gen int }

type refreshReq struct{ reason reason }

// getState is test-only: reads loop-owned fields without data races.
type getState struct{ reply chan view }

type view struct {
	chanGen      int
	chanOpen     bool
	retryPending bool
	inflight     int
}

func (pushed) isSyncMsg()      {}
func (channelDown) isSyncMsg() {}
func (fetched) isSyncMsg()     {}
func (retryFired) isSyncMsg()  {}
func (refreshReq) isSyncMsg()  {}
func (getState) isSyncMsg()    {}

type journalEntry struct {
	seq uint64
	ev  push.Event
}

type Option func(*Synchronizer)

// WithRetryDelay sets how long to wait after a channel failure before refetching.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Synchronizer) { s.retryDelay = d }
}

func WithFetchTimeout(d time.Duration) Option {
	return func(s *Synchronizer) { s.fetchTimeout = d }
}

type Synchronizer struct {
	inbox   chan msg
	fetcher Fetcher
	channel push.Channel
	log     *zap.Logger

	retryDelay   time.Duration
	fetchTimeout time.Duration

	snap    atomic.Pointer[Snapshot]
	changes chan Snapshot

	// Owned by loop.
	cur        Snapshot
	chanGen    int
	chanCancel context.CancelFunc // nil while no channel is open
	chanLive   bool               // open channel has delivered at least one event
	retry      *time.Timer
	retryGen   int
	fetchID    int
	appliedID  int            // newest fetch whose result reached cur
	inflight   map[int]uint64 // fetch id -> event seq when the fetch was issued
	eventSeq   uint64
	journal    []journalEntry

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

// New starts synchronizing immediately: one full fetch plus the push channel.
// Everything it acquires is released by Close or by cancelling parent.
func New(parent context.Context, fetcher Fetcher, channel push.Channel, log *zap.Logger, opts ...Option) *Synchronizer {
	ctx, cancel := context.WithCancel(parent)

	s := &Synchronizer{
		inbox:        make(chan msg, 64),
		fetcher:      fetcher,
		channel:      channel,
		log:          log,
		retryDelay:   DefaultRetryDelay,
		fetchTimeout: DefaultFetchTimeout,
		changes:      make(chan Snapshot, 1),
		cur:          Snapshot{Status: StatusConnecting, Courts: []court.Court{}},
		inflight:     make(map[int]uint64),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	first := s.cur
	s.snap.Store(&first)

	go s.loop()
	return s
}

// Snapshot returns the latest published state.
func (s *Synchronizer) Snapshot() Snapshot { return *s.snap.Load() }

// Changes delivers the newest snapshot after each change. Only the latest
// undelivered snapshot is kept. The channel is closed when the synchronizer stops.
func (s *Synchronizer) Changes() <-chan Snapshot { return s.changes }

// Refresh issues one full fetch.
func (s *Synchronizer) Refresh() { s.post(refreshReq{reason: reasonManual}) }

// OnVisible issues one full fetch to cover events missed while a display was
// in the background. It does not depend on the connectivity state.
func (s *Synchronizer) OnVisible() { s.post(refreshReq{reason: reasonVisible}) }

// Close cancels the retry timer, closes the push channel and waits for every
// goroutine the synchronizer started. Safe to call more than once.
func (s *Synchronizer) Close() {
	s.cancel()
	<-s.done
	s.wg.Wait()
}

func (s *Synchronizer) post(m msg) {
	select {
	case s.inbox <- m:
	case <-s.ctx.Done():
	}
}

func (s *Synchronizer) loop() {
	defer close(s.done)

	s.startFetch(reasonInitial)
	s.openChannel()

	for {
		select {
		case <-s.ctx.Done():
			s.stopRetry()
			s.closeChannel()
			close(s.changes)
			return

		case m := <-s.inbox:
			switch m := m.(type) {
			case pushed:
				if m.gen != s.chanGen || s.chanCancel == nil {
					break // from a channel we already closed
				}
				s.applyEvent(m.ev)

			case channelDown:
				if m.gen != s.chanGen {
					break
				}
				s.onChannelError(m.err)

			case fetched:
				s.onFetched(m)

			case retryFired:
				if m.gen != s.retryGen || s.retry == nil {
					break
				}
				s.retry = nil
				s.startFetch(reasonRetry)

			case refreshReq:
				s.startFetch(m.reason)

			case getState:
				m.reply <- view{
					chanGen:      s.chanGen,
					chanOpen:     s.chanCancel != nil,
					retryPending: s.retry != nil,
					inflight:     len(s.inflight),
				}
			}
		}
	}
}

func (s *Synchronizer) applyEvent(ev push.Event) {
	s.eventSeq++
	if len(s.inflight) > 0 {
		s.journal = append(s.journal, journalEntry{seq: s.eventSeq, ev: ev})
	}

	s.cur.Courts = apply(s.cur.Courts, ev, s.log)
	switch ev := ev.(type) {
	case push.InitialData:
		s.cur.LastUpdate = ev.Timestamp
	case push.CourtUpdate:
		s.cur.LastUpdate = ev.Timestamp
	}
	s.cur.Status = StatusConnected
	s.chanLive = true
	s.publish()
}

// apply returns the court list after ev. It never writes to courts.
func apply(courts []court.Court, ev push.Event, log *zap.Logger) []court.Court {
	switch ev := ev.(type) {
	case push.InitialData:
		return ev.Courts
	case push.CourtUpdate:
		out, ok := court.Merge(courts, ev.Patch)
		if !ok {
			log.Debug("update for unknown court", zap.String("court_id", string(ev.Patch.ID)))
		}
		return out
	}
	return courts
}

func (s *Synchronizer) onChannelError(err error) {
	s.log.Warn("push channel failed", zap.Error(err), zap.Duration("retry_in", s.retryDelay))
	s.closeChannel()
	if s.cur.Status != StatusReconnecting {
		s.cur.Status = StatusReconnecting
		s.publish()
	}
	s.scheduleRetry()
}

func (s *Synchronizer) onFetched(f fetched) {
	since := s.inflight[f.id]
	delete(s.inflight, f.id)
	replay := s.journalSince(since)
	s.trimJournal()

	if f.err != nil {
		s.log.Warn("court fetch failed", zap.String("reason", string(f.reason)), zap.Error(f.err))
		if s.chanCancel == nil || !s.chanLive {
			if s.cur.Status != StatusDisconnected {
				s.cur.Status = StatusDisconnected
				s.publish()
			}
		}
		if s.chanCancel == nil {
			s.scheduleRetry()
		}
		return
	}

	if f.id < s.appliedID {
		s.log.Debug("dropping superseded fetch", zap.Int("fetch_id", f.id), zap.Int("applied_id", s.appliedID))
		return
	}
	s.appliedID = f.id

	// Events applied while the fetch was in flight may be newer than the
	// fetched list; re-apply them so the board never steps backwards.
	courts := f.courts
	for _, e := range replay {
		courts = apply(courts, e.ev, s.log)
	}
	s.cur.Courts = courts
	s.cur.Status = StatusConnected
	s.publish()

	// With a retry pending, the channel re-opens after that retry's fetch so
	// a failed channel always waits out the full delay.
	if s.chanCancel == nil && s.retry == nil {
		s.openChannel()
	}
}

func (s *Synchronizer) startFetch(r reason) {
	s.fetchID++
	id := s.fetchID
	s.inflight[id] = s.eventSeq

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.fetchTimeout)
		courts, err := s.fetcher.ListCourts(ctx)
		cancel()
		s.post(fetched{id: id, reason: r, courts: courts, err: err})
	}()
}

func (s *Synchronizer) openChannel() {
	s.chanGen++
	gen := s.chanGen
	ctx, cancel := context.WithCancel(s.ctx)
	s.chanCancel = cancel
	s.chanLive = false

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := s.channel.Run(ctx, func(ev push.Event) {
			s.post(pushed{gen: gen, ev: ev})
		})
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = push.ErrChannelClosed
		}
		s.post(channelDown{gen: gen, err: err})
	}()
}

func (s *Synchronizer) closeChannel() {
	if s.chanCancel == nil {
		return
	}
	s.chanCancel()
	s.chanCancel = nil
	s.chanLive = false
	s.chanGen++
}

// scheduleRetry arms the retry timer unless one is already pending.
func (s *Synchronizer) scheduleRetry() {
	if s.retry != nil {
		return
	}
	s.retryGen++
	gen := s.retryGen
	s.retry = time.AfterFunc(s.retryDelay, func() {
		s.post(retryFired{gen: gen})
	})
}

func (s *Synchronizer) stopRetry() {
	if s.retry == nil {
		return
	}
	s.retry.Stop()
	s.retry = nil
	s.retryGen++
}

func (s *Synchronizer) journalSince(seq uint64) []journalEntry {
	for i, e := range s.journal {
		if e.seq > seq {
			return s.journal[i:]
		}
	}
	return nil
}

// trimJournal drops entries no in-flight fetch can still need.
func (s *Synchronizer) trimJournal() {
	if len(s.inflight) == 0 {
		s.journal = nil
		return
	}
	oldest := s.eventSeq
	for _, seq := range s.inflight {
		if seq < oldest {
			oldest = seq
		}
	}
	s.journal = append([]journalEntry(nil), s.journalSince(oldest)...)
}

func (s *Synchronizer) publish() {
	s.cur.Version++
	snap := s.cur
	s.snap.Store(&snap)

	select {
	case <-s.changes:
	default:
	}
	s.changes <- snap
}
