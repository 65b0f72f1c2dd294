package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurum-solar/core/internal/clock"
	"github.com/aurum-solar/core/internal/model"
)

var fixedNow = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu    sync.Mutex
	hints []Hint
}

func (p *recordingPublisher) Publish(h Hint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hints = append(p.hints, h)
}

func newSessionID() model.SessionID {
	return model.SessionID(uuid.New())
}

func TestOpenStartsInActiveState(t *testing.T) {
	tr := NewTracker(clock.Real{}, 30*time.Minute, nil, nil)
	id := newSessionID()
	snap := tr.Open(context.Background(), id)
	require.NotNil(t, snap)
	assert.Equal(t, model.StateActive, snap.State)
}

func TestMessageAdvancesEngagementAndQuestionCount(t *testing.T) {
	tr := NewTracker(clock.Real{}, 30*time.Minute, nil, nil)
	id := newSessionID()
	tr.Open(context.Background(), id)

	snap := tr.OnMessage(id, nil, model.MessageMeta{Sentiment: 0.5}, fixedNow)
	require.NotNil(t, snap)
	assert.Equal(t, 1, snap.QuestionsAsked)
	assert.InDelta(t, 0.5, snap.EngagementScore, 1e-9)
}

func TestRescoreTransitionsActiveToQualifyingToReady(t *testing.T) {
	tr := NewTracker(clock.Real{}, 30*time.Minute, nil, nil)
	id := newSessionID()
	tr.Open(context.Background(), id)

	snap := tr.OnRescore(id, &model.ScoreSnapshot{Tier: model.TierStandard, Total: 75}, false, fixedNow)
	require.NotNil(t, snap)
	assert.Equal(t, model.StateQualifying, snap.State)

	snap = tr.OnRescore(id, &model.ScoreSnapshot{Tier: model.TierStandard, Total: 78}, true, fixedNow)
	require.NotNil(t, snap)
	assert.Equal(t, model.StateReady, snap.State)
}

func TestDispatchedIsTerminalForRoutingPurposes(t *testing.T) {
	tr := NewTracker(clock.Real{}, 30*time.Minute, nil, nil)
	id := newSessionID()
	tr.Open(context.Background(), id)
	tr.OnRescore(id, &model.ScoreSnapshot{Tier: model.TierPremium, Total: 90}, true, fixedNow)

	snap := tr.OnDispatched(id, fixedNow)
	require.NotNil(t, snap)
	assert.Equal(t, model.StateDispatched, snap.State)
}

func TestCloseStopsTrackingSession(t *testing.T) {
	tr := NewTracker(clock.Real{}, 30*time.Minute, nil, nil)
	id := newSessionID()
	tr.Open(context.Background(), id)

	snap := tr.Close(id, fixedNow)
	require.NotNil(t, snap)
	assert.Equal(t, model.StateClosed, snap.State)
	assert.Nil(t, tr.Snapshot(id))
}

func TestTickExpiresIdleSessions(t *testing.T) {
	fake := clock.NewFake(fixedNow)
	tr := NewTracker(fake, 30*time.Minute, nil, nil)
	id := newSessionID()
	tr.Open(context.Background(), id)

	fake.Advance(31 * time.Minute)
	tr.Tick(fake.Now())

	snap := tr.Snapshot(id)
	require.NotNil(t, snap)
	assert.Equal(t, model.StateExpired, snap.State)
}

func TestRevenuePerMinuteUsesFloorOfOneMinute(t *testing.T) {
	tr := NewTracker(clock.Real{}, 30*time.Minute, nil, nil)
	id := newSessionID()
	tr.Open(context.Background(), id)

	snapshot := &model.ScoreSnapshot{
		Tier:             model.TierPremium,
		Total:            90,
		RevenuePotential: decimal.NewFromInt(200),
	}
	snap := tr.OnRescore(id, snapshot, true, fixedNow)
	require.NotNil(t, snap)
	assert.InDelta(t, 200.0, snap.RevenuePerMinute, 1e-6, "duration under a minute floors to 1 in the denominator")
}

func TestHintPublishedOnNegativeSentimentTrend(t *testing.T) {
	pub := &recordingPublisher{}
	tr := NewTracker(clock.Real{}, 30*time.Minute, pub, nil)
	id := newSessionID()
	tr.Open(context.Background(), id)

	tr.OnMessage(id, nil, model.MessageMeta{Sentiment: -0.8}, fixedNow)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.NotEmpty(t, pub.hints)
}

// Property: serial update per session id is guaranteed (spec §5) —
// concurrent senders to the same session never race on its state.
func TestConcurrentMessagesToSameSessionAreSerialized(t *testing.T) {
	tr := NewTracker(clock.Real{}, 30*time.Minute, nil, nil)
	id := newSessionID()
	tr.Open(context.Background(), id)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.OnMessage(id, nil, model.MessageMeta{Sentiment: 0.1}, fixedNow)
		}()
	}
	wg.Wait()

	snap := tr.Snapshot(id)
	require.NotNil(t, snap)
	assert.Equal(t, 100, snap.QuestionsAsked)
}
