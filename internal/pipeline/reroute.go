package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/aurum-solar/core/internal/model"
)

// RequestReroute implements internal/dispatch.RerouteRequester: a
// permanently-failed dispatch re-enters routing with the failing
// platform's daily capacity pinned to zero so the routing engine skips
// it (spec §4.5 "re-enters routing with the failed platform
// blacklisted"), bounded by routing.max_dispatch_attempts_per_lead.
func (p *Pipeline) RequestReroute(ctx context.Context, job *model.DispatchJob, blacklistPlatform string) {
	limit := p.maxRerouteAttempts
	if limit <= 0 {
		limit = 3
	}
	if job.AttemptCount >= limit {
		p.log.Warn("dropping lead after exhausting reroute attempts",
			zap.String("lead_id", job.Lead.ID.String()), zap.Int("attempts", job.AttemptCount))
		return
	}

	now := p.clk.Now()
	decision, err := p.router.Route(ctx, job.Lead, nil, map[string]int{blacklistPlatform: 0}, now)
	if err != nil {
		p.log.Info("reroute found no alternative platform",
			zap.String("lead_id", job.Lead.ID.String()), zap.Error(err))
		return
	}

	next := &model.DispatchJob{
		ID:           model.NewID(),
		Lead:         job.Lead,
		Decision:     *decision,
		AttemptCount: job.AttemptCount,
		SLADeadline:  job.SLADeadline,
		Tier:         job.Tier,
	}
	if !p.dispatcher.Enqueue(next) {
		p.log.Warn("reroute enqueue failed, dispatch queue full",
			zap.String("platform", decision.PlatformCode))
		_ = p.router.Rollback(ctx, decision.PlatformCode, now)
	}
}
