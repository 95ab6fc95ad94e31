package walk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"folio/internal/bundle"
	"folio/internal/envelope"
	"folio/internal/logging"
	"folio/internal/remote"
)

// Fetcher retrieves a single chapter node.
type Fetcher interface {
	Chapter(ctx context.Context, bookID, chapterID uint32) (*remote.Chapter, error)
}

// Visitor consumes a fetched chapter that is not yet stored locally. index
// is the chapter's resolved position in the book.
type Visitor func(ctx context.Context, ch *remote.Chapter, index uint32) error

// Options tunes a walk.
type Options struct {
	// ChapterAttempts bounds fetch+visit attempts for one chapter when the
	// visitor fails with a retriable error.
	ChapterAttempts int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	// Retriable classifies visitor errors; decrypt failures by default.
	Retriable func(error) bool
	Logger    *slog.Logger
}

// Result summarizes a finished walk.
type Result struct {
	Strategy State
	Final    State
	Steps    []Step
	// Fetches counts chapter requests, the resume anchor and re-fetches included.
	Fetches       int
	AnchorFetched bool
	Visited       int
	Traversed     int
	Retries       int
	Err           error
}

// Transitions returns the recorded transition names in order.
func (r Result) Transitions() []Transition {
	out := make([]Transition, len(r.Steps))
	for i, s := range r.Steps {
		out[i] = s.Transition
	}
	return out
}

// ErrCycle reports a chapter list that links back onto itself.
var ErrCycle = errors.New("chapter list cycle")

type controller struct {
	fetcher Fetcher
	visit   Visitor
	local   bundle.Info
	remote  Remote
	opts    Options
	logger  *slog.Logger

	state   State
	result  Result
	seen    map[uint32]struct{}
	visited map[uint32]struct{}
	prefix  uint32
}

// Run executes the walk for one book and always returns a Result whose
// Final state is Completed or Failed.
func Run(ctx context.Context, fetcher Fetcher, local bundle.Info, remoteState Remote, visit Visitor, opts Options) Result {
	if opts.ChapterAttempts < 1 {
		opts.ChapterAttempts = 1
	}
	if opts.Retriable == nil {
		opts.Retriable = func(err error) bool { return errors.Is(err, envelope.ErrDecrypt) }
	}
	if !local.Usable() {
		local.Indices = nil
	}
	c := &controller{
		fetcher: fetcher,
		visit:   visit,
		local:   local,
		remote:  remoteState,
		opts:    opts,
		logger:  logging.NewComponentLogger(opts.Logger, "walk"),
		state:   NotStarted,
		seen:    make(map[uint32]struct{}),
		visited: make(map[uint32]struct{}),
		prefix:  contiguousPrefix(local.Indices),
	}

	plan := Select(local, remoteState)
	c.result.Strategy = plan.Strategy
	c.transition(plan.Strategy, plan.Transition)

	for !c.state.Terminal() {
		switch c.state {
		case ForwardWalk:
			c.runForward(ctx, remoteState.FirstChapterID, 1)
		case ResumeWalk:
			c.runResume(ctx)
		case ReverseWalk:
			c.runReverse(ctx)
		default:
			c.fail(fmt.Errorf("walk: unexpected state %s", c.state))
		}
	}
	c.result.Final = c.state
	return c.result
}

func (c *controller) transition(to State, why Transition) {
	step := Step{From: c.state, To: to, Transition: why}
	c.result.Steps = append(c.result.Steps, step)
	c.logger.Debug("walk transition",
		logging.String(logging.FieldStrategy, to.String()),
		logging.String("transition", string(why)),
		logging.String("from", step.From.String()),
	)
	c.state = to
}

func (c *controller) fail(err error) {
	c.result.Err = err
	c.transition(Failed, TransitionFailure)
}

// runForward follows next links from startID. expected is the index assumed
// for startID when the payload carries none.
func (c *controller) runForward(ctx context.Context, startID, expected uint32) {
	id := startID
	if id == 0 {
		c.transition(Completed, TransitionEndOfList)
		return
	}
	for {
		ch, index, ok := c.step(ctx, id, expected)
		if !ok {
			return
		}
		next := ch.NextID()
		if next == 0 {
			c.transition(Completed, TransitionEndOfList)
			return
		}
		id = next
		expected = index + 1
	}
}

func (c *controller) runResume(ctx context.Context) {
	anchorID := c.local.AnchorRemoteID
	c.result.Fetches++
	c.result.AnchorFetched = true
	anchor, err := c.fetcher.Chapter(ctx, c.remote.BookID, anchorID)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			c.transition(ReverseWalk, TransitionAnchorMissing)
			return
		}
		c.fail(fmt.Errorf("fetch resume anchor %d: %w", anchorID, err))
		return
	}
	c.seen[anchorID] = struct{}{}
	next := anchor.NextID()
	if next == 0 {
		c.transition(Completed, TransitionEndOfList)
		return
	}
	c.transition(ForwardWalk, TransitionAnchorFound)
	c.runForward(ctx, next, c.local.AnchorIndex+1)
}

func (c *controller) runReverse(ctx context.Context) {
	latest := c.remote.LatestChapterID
	if latest == 0 {
		c.transition(ForwardWalk, TransitionLatestMissing)
		return
	}
	expected := c.remote.ChapterCount
	id := latest
	first := true
	for {
		ch, index, ok, notFound := c.stepReverse(ctx, id, expected, first)
		if notFound {
			c.transition(ForwardWalk, TransitionLatestMissing)
			return
		}
		if !ok {
			return
		}
		if c.state == Completed {
			return
		}
		first = false
		prev := ch.PreviousID()
		if prev == 0 || index <= 1 {
			c.transition(Completed, TransitionEndOfList)
			return
		}
		id = prev
		expected = index - 1
	}
}

// stepReverse is step with the reverse stop rule: the walk ends at the first
// locally present index below which no gaps remain.
func (c *controller) stepReverse(ctx context.Context, id, expected uint32, first bool) (*remote.Chapter, uint32, bool, bool) {
	var (
		ch    *remote.Chapter
		index uint32
	)
	for attempt := 1; ; attempt++ {
		fetched, err := c.fetch(ctx, id)
		if err != nil {
			if first && errors.Is(err, remote.ErrNotFound) {
				return nil, 0, false, true
			}
			c.fail(err)
			return nil, 0, false, false
		}
		ch = fetched
		index = resolveIndex(ch, expected)
		if index == 0 {
			c.fail(fmt.Errorf("chapter %d: cannot resolve index", id))
			return nil, 0, false, false
		}
		if c.local.HasIndex(index) && index <= c.prefix {
			c.transition(Completed, TransitionReachedLocal)
			return ch, index, true, false
		}
		retry, ok := c.deliver(ctx, ch, index, attempt)
		if retry {
			continue
		}
		return ch, index, ok, false
	}
}

// step fetches id, resolves its index, and visits it unless it is already
// stored. Retriable visitor errors trigger a re-fetch.
func (c *controller) step(ctx context.Context, id, expected uint32) (*remote.Chapter, uint32, bool) {
	for attempt := 1; ; attempt++ {
		ch, err := c.fetch(ctx, id)
		if err != nil {
			c.fail(err)
			return nil, 0, false
		}
		index := resolveIndex(ch, expected)
		if index == 0 {
			c.fail(fmt.Errorf("chapter %d: cannot resolve index", id))
			return nil, 0, false
		}
		retry, ok := c.deliver(ctx, ch, index, attempt)
		if retry {
			continue
		}
		return ch, index, ok
	}
}

func (c *controller) fetch(ctx context.Context, id uint32) (*remote.Chapter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.result.Fetches++
	ch, err := c.fetcher.Chapter(ctx, c.remote.BookID, id)
	if err != nil {
		return nil, fmt.Errorf("fetch chapter %d: %w", id, err)
	}
	return ch, nil
}

// deliver hands a chapter to the visitor. It reports whether the chapter
// should be fetched again and whether the walk may continue.
func (c *controller) deliver(ctx context.Context, ch *remote.Chapter, index uint32, attempt int) (bool, bool) {
	if _, dup := c.visited[index]; dup || c.local.HasIndex(index) {
		if _, looped := c.seen[ch.ID]; looped {
			c.fail(fmt.Errorf("chapter %d revisited: %w", ch.ID, ErrCycle))
			return false, false
		}
		c.seen[ch.ID] = struct{}{}
		c.result.Traversed++
		return false, true
	}
	if _, looped := c.seen[ch.ID]; looped && attempt == 1 {
		c.fail(fmt.Errorf("chapter %d revisited: %w", ch.ID, ErrCycle))
		return false, false
	}
	c.seen[ch.ID] = struct{}{}

	err := c.visit(ctx, ch, index)
	if err == nil {
		c.visited[index] = struct{}{}
		c.result.Visited++
		return false, true
	}
	if c.opts.Retriable(err) && attempt < c.opts.ChapterAttempts && ctx.Err() == nil {
		c.result.Retries++
		delay := remote.Backoff(attempt, c.opts.InitialBackoff, c.opts.MaxBackoff)
		logging.WarnWithContext(c.logger, "chapter visit failed; refetching", "chapter_retry",
			logging.Uint32(logging.FieldChapterID, ch.ID),
			logging.Uint32(logging.FieldIndex, index),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err),
		)
		if sleepErr := remote.SleepWithContext(ctx, delay); sleepErr != nil {
			c.fail(sleepErr)
			return false, false
		}
		return true, false
	}
	c.fail(fmt.Errorf("chapter %d (index %d) after %d attempts: %w", ch.ID, index, attempt, err))
	return false, false
}

// resolveIndex prefers the payload's index and falls back to the position
// implied by the walk direction.
func resolveIndex(ch *remote.Chapter, expected uint32) uint32 {
	if ch.Index != 0 {
		return ch.Index
	}
	return expected
}
