package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/dockpipe/internal/domain/docking"
	"github.com/turtacn/dockpipe/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/dockpipe/pkg/errors"
)

// recentRuns bounds the list of remembered run IDs.
const recentRuns = 100

// Leaderboard stores run rankings in sorted sets.  Lower scores rank
// first, so ascending ZRANGE order is ranking order.
//
// Keys, relative to the prefix:
//
//	leaderboard:<receptor>  best score seen for each ligand
//	run:<id>                ranking of one run
//	run:<id>:summary        JSON run summary
//	runs                    recent run IDs, newest first
type Leaderboard struct {
	client *Client
	prefix string
	ttl    time.Duration
	log    logging.Logger
}

// NewLeaderboard returns a Leaderboard writing keys under prefix.  A zero ttl
// keeps per-run keys forever.
func NewLeaderboard(client *Client, prefix string, ttl time.Duration, log logging.Logger) *Leaderboard {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Leaderboard{client: client, prefix: prefix, ttl: ttl, log: log}
}

func (l *Leaderboard) boardKey(receptor string) string { return l.prefix + "leaderboard:" + receptor }
func (l *Leaderboard) runKey(id string) string         { return l.prefix + "run:" + id }
func (l *Leaderboard) summaryKey(id string) string     { return l.prefix + "run:" + id + ":summary" }
func (l *Leaderboard) runsKey() string                 { return l.prefix + "runs" }

func (l *Leaderboard) Name() string { return "redis" }

// Publish records a finished run.  The receptor board keeps each ligand's
// lowest score across runs.
func (l *Leaderboard) Publish(ctx context.Context, s *docking.RunSummary) error {
	if s == nil || s.ID == "" {
		return errors.New(errors.ErrCodeValidation, "run summary without id")
	}
	if l.client.isClosed() {
		return ErrClientClosed
	}
	data, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "encode run summary")
	}

	members := make([]redis.Z, 0, len(s.Ranking))
	for _, e := range s.Ranking {
		members = append(members, redis.Z{Score: e.Score, Member: e.Name})
	}

	pipe := l.client.TxPipeline()
	if len(members) > 0 {
		pipe.ZAdd(ctx, l.runKey(s.ID), members...)
		pipe.ZAddLT(ctx, l.boardKey(s.Receptor), members...)
		if l.ttl > 0 {
			pipe.Expire(ctx, l.runKey(s.ID), l.ttl)
		}
	}
	pipe.Set(ctx, l.summaryKey(s.ID), data, l.ttl)
	pipe.LPush(ctx, l.runsKey(), s.ID)
	pipe.LTrim(ctx, l.runsKey(), 0, recentRuns-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "publish run to redis").WithDetail(s.ID)
	}

	l.log.Debug("run published to leaderboard", logging.String("run_id", s.ID), logging.Int("ligands", len(members)))
	return nil
}

// Top returns the n best ligands ever docked against receptor.
func (l *Leaderboard) Top(ctx context.Context, receptor string, n int) (docking.Ranking, error) {
	if n <= 0 {
		return docking.Ranking{}, nil
	}
	return l.ranking(ctx, l.boardKey(receptor), int64(n-1))
}

// RunRanking returns the full ranking stored for a run.
func (l *Leaderboard) RunRanking(ctx context.Context, id string) (docking.Ranking, error) {
	return l.ranking(ctx, l.runKey(id), -1)
}

func (l *Leaderboard) ranking(ctx context.Context, key string, stop int64) (docking.Ranking, error) {
	zs, err := l.client.ZRangeWithScores(ctx, key, 0, stop).Result()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCacheError, "read ranking").WithDetail(key)
	}
	out := make(docking.Ranking, 0, len(zs))
	for i, z := range zs {
		name, _ := z.Member.(string)
		out = append(out, docking.RankedEntry{Rank: i + 1, Name: name, Score: z.Score})
	}
	return out, nil
}

// Summary returns the stored summary of a run.
func (l *Leaderboard) Summary(ctx context.Context, id string) (*docking.RunSummary, error) {
	data, err := l.client.Get(ctx, l.summaryKey(id)).Bytes()
	if err == redis.Nil {
		return nil, errors.NotFound("run " + id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCacheError, "read run summary").WithDetail(id)
	}
	var s docking.RunSummary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "decode run summary").WithDetail(id)
	}
	return &s, nil
}

// RecentRuns returns up to n run IDs, newest first.
func (l *Leaderboard) RecentRuns(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	ids, err := l.client.LRange(ctx, l.runsKey(), 0, int64(n-1)).Result()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCacheError, "list runs")
	}
	return ids, nil
}
