package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turtacn/dockpipe/internal/domain/docking"
	"github.com/turtacn/dockpipe/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/dockpipe/pkg/errors"
)

// RunRepository stores run history: one row per run plus its ranking.
type RunRepository struct {
	pool *pgxpool.Pool
	log  logging.Logger
}

func NewRunRepository(pool *pgxpool.Pool, log logging.Logger) *RunRepository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &RunRepository{pool: pool, log: log}
}

func (r *RunRepository) Name() string { return "postgres" }

// Publish saves s.  It satisfies the pipeline's result sink.
func (r *RunRepository) Publish(ctx context.Context, s *docking.RunSummary) error {
	return r.Save(ctx, s)
}

var scoreColumns = []string{"run_id", "rank", "ligand", "score"}

// scoreRows converts a ranking to COPY rows.
func scoreRows(runID string, ranking docking.Ranking) [][]interface{} {
	rows := make([][]interface{}, 0, len(ranking))
	for _, e := range ranking {
		rows = append(rows, []interface{}{runID, e.Rank, e.Name, e.Score})
	}
	return rows
}

// Save inserts the run row and bulk-loads its scores in one transaction.
func (r *RunRepository) Save(ctx context.Context, s *docking.RunSummary) error {
	if s == nil || s.ID == "" {
		return errors.New(errors.ErrCodeValidation, "run summary without id")
	}
	err := WithTransaction(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO runs (id, receptor, library, ph, workdir, status, docked, dock_failed,
				parse_failed, complexes, complex_failed, archive_path, started_at, finished_at, duration_ms)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			s.ID, s.Receptor, s.Library, s.PH, s.WorkDir, string(s.Status), s.Docked, s.DockFailed,
			s.ParseFailed, len(s.Complexes), s.ComplexFailed, s.ArchivePath, s.StartedAt, s.FinishedAt,
			s.Duration.Milliseconds())
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to insert run")
		}
		if len(s.Ranking) == 0 {
			return nil
		}
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"run_scores"}, scoreColumns, pgx.CopyFromRows(scoreRows(s.ID, s.Ranking)))
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to copy run scores")
		}
		r.log.Debug("run scores stored", logging.String("run_id", s.ID), logging.Int64("rows", n))
		return nil
	})
	return err
}

// FindByID loads a run and its ranking.
func (r *RunRepository) FindByID(ctx context.Context, id string) (*docking.RunSummary, error) {
	var (
		s          docking.RunSummary
		status     string
		complexes  int
		durationMs int64
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, receptor, library, ph, workdir, status, docked, dock_failed, parse_failed,
			complexes, complex_failed, archive_path, started_at, finished_at, duration_ms
		FROM runs WHERE id = $1`, id).Scan(
		&s.ID, &s.Receptor, &s.Library, &s.PH, &s.WorkDir, &status, &s.Docked, &s.DockFailed,
		&s.ParseFailed, &complexes, &s.ComplexFailed, &s.ArchivePath, &s.StartedAt, &s.FinishedAt, &durationMs)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("run " + id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load run")
	}
	s.Status = docking.Status(status)
	s.Duration = time.Duration(durationMs) * time.Millisecond

	s.Ranking, err = r.scores(ctx, id)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *RunRepository) scores(ctx context.Context, id string) (docking.Ranking, error) {
	rows, err := r.pool.Query(ctx, `SELECT rank, ligand, score FROM run_scores WHERE run_id = $1 ORDER BY rank`, id)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load run scores")
	}
	ranking, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (docking.RankedEntry, error) {
		var e docking.RankedEntry
		err := row.Scan(&e.Rank, &e.Name, &e.Score)
		return e, err
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan run scores")
	}
	return ranking, nil
}

// ListRecent returns up to limit runs, newest first, without rankings.
func (r *RunRepository) ListRecent(ctx context.Context, receptor string, limit int) ([]*docking.RunSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, receptor, status, docked, started_at, duration_ms
		FROM runs WHERE ($1 = '' OR receptor = $1)
		ORDER BY started_at DESC LIMIT $2`, receptor, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list runs")
	}
	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*docking.RunSummary, error) {
		var (
			s          docking.RunSummary
			status     string
			durationMs int64
		)
		err := row.Scan(&s.ID, &s.Receptor, &status, &s.Docked, &s.StartedAt, &durationMs)
		s.Status = docking.Status(status)
		s.Duration = time.Duration(durationMs) * time.Millisecond
		return &s, err
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan runs")
	}
	return runs, nil
}

// BestScores returns each ligand's best score against receptor across all
// stored runs, best first.
func (r *RunRepository) BestScores(ctx context.Context, receptor string, limit int) (docking.Ranking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.ligand, MIN(s.score) AS best
		FROM run_scores s JOIN runs r ON r.id = s.run_id
		WHERE r.receptor = $1
		GROUP BY s.ligand
		ORDER BY best, s.ligand
		LIMIT $2`, receptor, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query best scores")
	}
	var out docking.Ranking
	for rows.Next() {
		var e docking.RankedEntry
		if err := rows.Scan(&e.Name, &e.Score); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan best scores")
		}
		e.Rank = len(out) + 1
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read best scores")
	}
	return out, nil
}
