// Package syncer reconciles a point-in-time book snapshot with the feed's
// sequenced delta stream. The only recovery mechanism is a full
// resnapshot-and-replay: a suspected-inconsistent book is never patched up
// in place.
package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"booksync/internal/book"
	"booksync/internal/feed"
)

// Status is the synchronizer's protocol state.
type Status int

const (
	// Unsynced means no baseline snapshot is applied and none is loading.
	Unsynced Status = iota
	// Loading means a snapshot fetch is in flight; messages are queued.
	Loading
	// Synced means live messages are applied as they arrive.
	Synced
)

func (s Status) String() string {
	switch s {
	case Loading:
		return "loading"
	case Synced:
		return "synced"
	default:
		return "unsynced"
	}
}

// Trade is raised for every match applied to the book.
type Trade struct {
	Price   decimal.Decimal
	Size    decimal.Decimal
	TradeID int64
}

// SnapshotProvider fetches a full level-3 book baseline. Retry and backoff
// policy belong to the caller, not here: a failed fetch fails the load.
type SnapshotProvider interface {
	FetchSnapshot(ctx context.Context) (*book.Snapshot, error)
}

// ErrStaleSnapshot reports a snapshot fetch that completed after a newer
// load attempt had already taken over the baseline. The result is dropped.
var ErrStaleSnapshot = errors.New("snapshot superseded by a newer load")

// Synchronizer owns a Book and drives its mutations from decoded feed
// messages, one per sequence number. It is single-threaded by design: the
// protocol's gap detection depends on messages being examined in arrival
// order, so exactly one goroutine may call its methods.
type Synchronizer struct {
	provider SnapshotProvider

	book   *book.Book
	cursor int64 // last applied sequence, -1 until a snapshot lands
	queue  []feed.Message
	status Status

	// generation tags load attempts; a reset bumps it, so a fetch that was
	// in flight across a reset sees a mismatch and discards its result.
	generation uint64

	onBookUpdate func()
	onTrade      func(Trade)
	onResync     func(reason error)
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// OnBookUpdate registers a callback invoked after every book mutation and
// after each snapshot load completes.
func OnBookUpdate(fn func()) Option {
	return func(s *Synchronizer) { s.onBookUpdate = fn }
}

// OnTrade registers a callback invoked for every applied match.
func OnTrade(fn func(Trade)) Option {
	return func(s *Synchronizer) { s.onTrade = fn }
}

// OnResync registers a callback invoked whenever a gap or an invariant
// violation forces a fresh snapshot load.
func OnResync(fn func(reason error)) Option {
	return func(s *Synchronizer) { s.onResync = fn }
}

// New returns an unsynced Synchronizer; call LoadSnapshot to seed it.
func New(provider SnapshotProvider, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		provider: provider,
		book:     book.New(),
		cursor:   -1,
		status:   Unsynced,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Book exposes the underlying book for queries. Callers on other
// goroutines must not touch it; consume the callbacks instead.
func (s *Synchronizer) Book() *book.Book { return s.book }

// Sequence is the last applied sequence number, -1 before the first
// snapshot.
func (s *Synchronizer) Sequence() int64 { return s.cursor }

// Status reports the protocol state.
func (s *Synchronizer) Status() Status { return s.status }

// QueueLen reports how many messages are staged for replay.
func (s *Synchronizer) QueueLen() int { return len(s.queue) }

// OnFeedMessage decodes a raw feed frame and either stages it (no baseline
// yet) or applies it live.
func (s *Synchronizer) OnFeedMessage(ctx context.Context, raw []byte) error {
	msg, err := feed.Parse(raw)
	if err != nil {
		return err
	}
	if s.cursor < 0 {
		s.queue = append(s.queue, msg)
		return nil
	}
	return s.ProcessMessage(ctx, msg)
}

// LoadSnapshot fetches a fresh baseline, seeds a new book from it, replays
// every queued message in arrival order, and goes live. A fetch failure is
// fatal to this attempt and leaves the synchronizer Unsynced.
func (s *Synchronizer) LoadSnapshot(ctx context.Context) error {
	gen := s.generation
	s.status = Loading

	snap, err := s.provider.FetchSnapshot(ctx)
	if gen != s.generation {
		// A newer load owns the baseline now; this result must not
		// overwrite it.
		return ErrStaleSnapshot
	}
	if err != nil {
		s.status = Unsynced
		return fmt.Errorf("load snapshot: %w", err)
	}

	fresh := book.New()
	if err := fresh.Load(snap); err != nil {
		s.status = Unsynced
		return fmt.Errorf("seed book: %w", err)
	}
	s.book = fresh
	s.cursor = snap.Sequence
	s.status = Synced

	gen = s.generation
	queued := s.queue
	s.queue = nil
	for _, m := range queued {
		if err := s.ProcessMessage(ctx, m); err != nil {
			return err
		}
		if s.generation != gen {
			// Replay hit a gap and a nested load already took over; the
			// rest of this batch predates the new baseline.
			return nil
		}
	}

	s.emitBookUpdate()
	return nil
}

// ProcessMessage applies one decoded message against the cursor.
// Duplicates are discarded, a gap forces a full resync, and the message
// that revealed the gap is dropped with it (it predates the fresh
// baseline).
func (s *Synchronizer) ProcessMessage(ctx context.Context, msg feed.Message) error {
	if s.cursor < 0 {
		// A resync is pending; the forthcoming snapshot covers this.
		return nil
	}
	if msg.Sequence <= s.cursor {
		// Duplicate or stale, already reflected in current state.
		return nil
	}
	if msg.Sequence != s.cursor+1 {
		return s.resync(ctx, fmt.Errorf("sequence gap: have %d, got %d", s.cursor, msg.Sequence))
	}

	s.cursor = msg.Sequence

	switch msg.Kind {
	case feed.KindOpen:
		s.book.Add(msg.Order())
		s.emitBookUpdate()
	case feed.KindDone:
		s.book.Remove(msg.OrderID)
		s.emitBookUpdate()
	case feed.KindMatch:
		if err := s.book.Match(msg.Fill()); err != nil {
			return s.resync(ctx, err)
		}
		if s.onTrade != nil {
			s.onTrade(Trade{Price: msg.Price, Size: msg.Size, TradeID: msg.TradeID})
		}
		s.emitBookUpdate()
	case feed.KindChange:
		if err := s.book.Change(msg.Resize()); err != nil {
			return s.resync(ctx, err)
		}
		s.emitBookUpdate()
	default:
		// Unrecognized kinds consume their sequence number but change
		// nothing (forward compatibility).
	}
	return nil
}

// resync throws the baseline away and starts over: a gap or an invariant
// violation means the book can no longer be trusted. The reason is
// reported to the caller for logging; the reload error, if any, wraps it.
func (s *Synchronizer) resync(ctx context.Context, reason error) error {
	s.generation++
	s.cursor = -1
	s.queue = nil
	s.status = Unsynced

	if s.onResync != nil {
		s.onResync(reason)
	}
	if err := s.LoadSnapshot(ctx); err != nil {
		return fmt.Errorf("resync (%v): %w", reason, err)
	}
	return nil
}

func (s *Synchronizer) emitBookUpdate() {
	if s.onBookUpdate != nil {
		s.onBookUpdate()
	}
}
