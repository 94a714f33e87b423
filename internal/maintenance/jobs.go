package maintenance

import (
	"context"
	"log/slog"

	"github.com/whrit/flow-agent-sub006/internal/engine"
	"github.com/whrit/flow-agent-sub006/internal/match"
)

// PruneJob drops expired matcher-cache decisions.
type PruneJob struct {
	Matcher *match.Matcher
	Spec    string
	Logger  *slog.Logger
}

func (j *PruneJob) Name() string     { return "matcher-prune" }
func (j *PruneJob) Schedule() string { return j.Spec }

func (j *PruneJob) Run(context.Context) error {
	dropped := j.Matcher.PruneCache()
	if dropped > 0 && j.Logger != nil {
		j.Logger.Debug("matcher cache pruned", "dropped", dropped)
	}
	return nil
}

// MetricsJob logs a flat metrics snapshot, giving headless deployments
// a periodic observability record without scraping the gateway.
type MetricsJob struct {
	Engine *engine.Engine
	Spec   string
	Logger *slog.Logger
}

func (j *MetricsJob) Name() string     { return "metrics-snapshot" }
func (j *MetricsJob) Schedule() string { return j.Spec }

func (j *MetricsJob) Run(context.Context) error {
	snap := j.Engine.MetricsSnapshot()
	j.Logger.Info("metrics snapshot",
		"hooks", snap["hooks.count"],
		"active", snap["executions.active"],
		"matcher_cache", snap["matcher.cache.size"],
		"executions", snap["executions.total"],
	)
	return nil
}
