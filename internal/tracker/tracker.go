// Package tracker implements the conversation revenue tracker (spec
// §4.2): one session actor per active ConversationSession, serializing
// all updates to that session through a single goroutine reading a
// buffered mailbox channel. Grounded on the session-struct-plus-cache
// shape of services/distribution_service/src/services/session_manager.go,
// generalized from a Redis-backed session cache to an in-process
// single-writer actor supervised by a map, per SPEC_FULL.md §5.
package tracker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aurum-solar/core/internal/clock"
	"github.com/aurum-solar/core/internal/model"
)

// Hint is an optimization hint; after every update the hint
// conditions are checked and a Hint is published only when one holds
// (spec §4.2 "publishes any generated optimization hints").
type Hint struct {
	SessionID model.SessionID
	Message   string
	At        time.Time
}

// HintPublisher receives hints generated by session actors.
type HintPublisher interface {
	Publish(Hint)
}

// NoopPublisher discards hints; used where no downstream consumer is
// wired (tests, CLI tools).
type NoopPublisher struct{}

func (NoopPublisher) Publish(Hint) {}

// Snapshot is the consistent, read-only view of a tracked session
// (spec §4.2 "readers obtain a consistent snapshot").
type Snapshot struct {
	SessionID         model.SessionID
	State             model.TrackerState
	Stage             model.Stage
	StartTime         time.Time
	LastActivity      time.Time
	DurationMinutes   float64
	QuestionsAsked    int
	EngagementScore   float64
	UrgencyCreated    bool
	LatestSnapshot    *model.ScoreSnapshot
	RevenuePotential  float64
	RevenuePerMinute  float64
}

// update is one event delivered to a session actor's mailbox.
type update struct {
	kind     updateKind
	slots    map[string]model.SlotValue
	meta     model.MessageMeta
	score    *model.ScoreSnapshot
	now      time.Time
	reply    chan Snapshot
	dispatch bool
}

type updateKind int

const (
	kindMessage updateKind = iota
	kindRescore
	kindDispatched
	kindClosed
	kindSnapshotRequest
	kindTick
)

// sessionActor owns one ConversationSession's mutable state. All
// mutation happens on its own goroutine; external callers only ever
// send updates through mailbox.
type sessionActor struct {
	session         *model.ConversationSession
	state           model.TrackerState
	questionsAsked  int
	engagementAvg   float64
	engagementTurns int
	urgencyCreated  bool
	latestSnapshot  *model.ScoreSnapshot
	disqualified    bool

	mailbox chan update
	done    chan struct{}

	clk     clock.Clock
	idleTTL time.Duration
	hints   HintPublisher
	log     *zap.Logger
}

// Tracker supervises one sessionActor per active session (spec §4.2
// "the tracker is the sole writer of session state").
type Tracker struct {
	mu       sync.Mutex
	actors   map[model.SessionID]*sessionActor
	clk      clock.Clock
	idleTTL  time.Duration
	hints    HintPublisher
	log      *zap.Logger
}

// NewTracker builds a Tracker. idleTTL is the configured session TTL
// (spec §4.2 default 30 minutes, spec §6 `session.idle_ttl_seconds`).
func NewTracker(clk clock.Clock, idleTTL time.Duration, hints HintPublisher, log *zap.Logger) *Tracker {
	if hints == nil {
		hints = NoopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{
		actors:  make(map[model.SessionID]*sessionActor),
		clk:     clk,
		idleTTL: idleTTL,
		hints:   hints,
		log:     log,
	}
}

// Open starts a new session actor, or returns the existing one if the
// session id is already tracked.
func (t *Tracker) Open(ctx context.Context, id model.SessionID) *Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	if a, ok := t.actors[id]; ok {
		return a.snapshotSync()
	}

	now := t.clk.Now()
	a := &sessionActor{
		session: model.NewSession(id, now),
		state:   model.StateActive,
		mailbox: make(chan update, 64),
		done:    make(chan struct{}),
		clk:     t.clk,
		idleTTL: t.idleTTL,
		hints:   t.hints,
		log:     t.log,
	}
	t.actors[id] = a
	go a.run(ctx)

	snap := a.snapshotSync()
	return snap
}

// OnMessage feeds a new conversation turn into the session's actor
// (spec §4.2 "new message" event).
func (t *Tracker) OnMessage(id model.SessionID, slots map[string]model.SlotValue, meta model.MessageMeta, now time.Time) *Snapshot {
	a := t.get(id)
	if a == nil {
		return nil
	}
	reply := make(chan Snapshot, 1)
	a.mailbox <- update{kind: kindMessage, slots: slots, meta: meta, now: now, reply: reply}
	s := <-reply
	return &s
}

// OnRescore feeds a freshly computed ScoreSnapshot into the session's
// actor, driving the Active→Qualifying→Ready transitions.
func (t *Tracker) OnRescore(id model.SessionID, snapshot *model.ScoreSnapshot, requiredFieldsSatisfied bool, now time.Time) *Snapshot {
	a := t.get(id)
	if a == nil {
		return nil
	}
	reply := make(chan Snapshot, 1)
	a.mailbox <- update{kind: kindRescore, score: snapshot, dispatch: requiredFieldsSatisfied, now: now, reply: reply}
	s := <-reply
	return &s
}

// OnDispatched transitions the session to Dispatched (spec §4.2
// "routing decided").
func (t *Tracker) OnDispatched(id model.SessionID, now time.Time) *Snapshot {
	a := t.get(id)
	if a == nil {
		return nil
	}
	reply := make(chan Snapshot, 1)
	a.mailbox <- update{kind: kindDispatched, now: now, reply: reply}
	s := <-reply
	return &s
}

// Close transitions the session to Closed and stops its actor (spec
// §4.2 "session ended").
func (t *Tracker) Close(id model.SessionID, now time.Time) *Snapshot {
	a := t.get(id)
	if a == nil {
		return nil
	}
	reply := make(chan Snapshot, 1)
	a.mailbox <- update{kind: kindClosed, now: now, reply: reply}
	s := <-reply

	t.mu.Lock()
	delete(t.actors, id)
	t.mu.Unlock()
	close(a.done)
	return &s
}

// Tick drives idle-expiry for every tracked session (spec §4.2 "idle
// for longer than the configured session TTL" → Expired). Callers run
// this on a ticker.
func (t *Tracker) Tick(now time.Time) {
	t.mu.Lock()
	actors := make([]*sessionActor, 0, len(t.actors))
	for _, a := range t.actors {
		actors = append(actors, a)
	}
	t.mu.Unlock()

	for _, a := range actors {
		reply := make(chan Snapshot, 1)
		select {
		case a.mailbox <- update{kind: kindTick, now: now, reply: reply}:
			<-reply
		default:
			// mailbox full: this actor will catch up on its next tick.
		}
	}
}

// Snapshot returns a consistent read-only view of a tracked session,
// or nil if the session id is not (or no longer) tracked.
func (t *Tracker) Snapshot(id model.SessionID) *Snapshot {
	a := t.get(id)
	if a == nil {
		return nil
	}
	return a.snapshotSync()
}

func (t *Tracker) get(id model.SessionID) *sessionActor {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.actors[id]
}

func (a *sessionActor) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-a.mailbox:
			a.apply(u)
			if u.reply != nil {
				u.reply <- a.toSnapshot()
			}
			if a.state == model.StateClosed || a.state == model.StateExpired {
				return
			}
		}
	}
}

// snapshotSync reads the actor's state from outside its goroutine.
// Only safe to call before the actor has started (Open) or via a
// round-trip through the mailbox (all other Tracker methods).
func (a *sessionActor) snapshotSync() *Snapshot {
	s := a.toSnapshot()
	return &s
}

func (a *sessionActor) apply(u update) {
	switch u.kind {
	case kindMessage:
		a.session.MessageCount++
		a.session.LastActivity = u.now
		a.session.MergeSlots(u.slots)
		a.questionsAsked++
		a.engagementTurns++
		a.engagementAvg += (clampSentiment(u.meta.Sentiment) - a.engagementAvg) / float64(a.engagementTurns)
		if u.meta.UrgencyCreated {
			a.urgencyCreated = true
		}
		a.maybeExpire(u.now)

	case kindRescore:
		a.latestSnapshot = u.score
		a.session.LastActivity = u.now
		if u.score != nil && u.score.Tier != model.TierUnqualified && a.state == model.StateActive {
			a.state = model.StateQualifying
		}
		if u.score != nil && u.score.Tier.Eligible() && u.dispatch && a.state == model.StateQualifying {
			a.state = model.StateReady
		}
		if u.score != nil && u.score.Tier == model.TierUnqualified && a.state != model.StateDispatched {
			a.disqualified = true
		}
		a.maybeExpire(u.now)

	case kindDispatched:
		a.state = model.StateDispatched
		a.session.LastActivity = u.now

	case kindClosed:
		a.state = model.StateClosed
		a.session.LastActivity = u.now

	case kindTick:
		a.maybeExpire(u.now)
	}

	a.publishHints(u.now)
}

// maybeExpire enforces the idle-TTL edge case from any non-terminal
// state (spec §4.2).
func (a *sessionActor) maybeExpire(now time.Time) {
	if a.state == model.StateClosed || a.state == model.StateDispatched {
		return
	}
	if now.Sub(a.session.LastActivity) > a.idleTTL {
		a.state = model.StateExpired
	}
}

func (a *sessionActor) publishHints(now time.Time) {
	if a.engagementTurns > 0 && a.engagementAvg < -0.3 {
		a.hints.Publish(Hint{SessionID: a.session.ID, Message: "negative sentiment trend: consider objection handling", At: now})
	}
	if a.latestSnapshot != nil && a.latestSnapshot.Tier == model.TierPremium && a.state == model.StateQualifying {
		a.hints.Publish(Hint{SessionID: a.session.ID, Message: "premium-tier lead not yet ready: verify required fields", At: now})
	}
}

func (a *sessionActor) toSnapshot() Snapshot {
	duration := a.session.LastActivity.Sub(a.session.StartTime).Minutes()
	revenuePotential := 0.0
	if a.latestSnapshot != nil {
		revenuePotential, _ = a.latestSnapshot.RevenuePotential.Float64()
	}
	return Snapshot{
		SessionID:        a.session.ID,
		State:            a.state,
		Stage:            a.session.Stage,
		StartTime:        a.session.StartTime,
		LastActivity:      a.session.LastActivity,
		DurationMinutes:  duration,
		QuestionsAsked:   a.questionsAsked,
		EngagementScore:  a.engagementAvg,
		UrgencyCreated:   a.urgencyCreated,
		LatestSnapshot:   a.latestSnapshot,
		RevenuePotential: revenuePotential,
		RevenuePerMinute: revenuePotential / maxF(1, duration),
	}
}

func clampSentiment(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
