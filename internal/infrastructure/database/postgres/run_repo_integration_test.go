//go:build integration

package postgres

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turtacn/dockpipe/internal/domain/docking"
	"github.com/turtacn/dockpipe/pkg/errors"
)

// startPostgres launches a PostgreSQL container, migrates it and returns a
// repository over it.
func startPostgres(t *testing.T) *RunRepository {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "dockpipe_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	cfg := PostgresConfig{Host: host, Port: portNum, Database: "dockpipe_test", Username: "test", Password: "test"}
	require.NoError(t, NewMigrator(cfg, "", nil).Up())

	version, dirty, err := NewMigrator(cfg, "", nil).Status()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	pool, err := NewConnectionPool(ctx, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return NewRunRepository(pool, nil)
}

func TestRunRepository_RoundTrip(t *testing.T) {
	repo := startPostgres(t)
	ctx := context.Background()
	start := time.Now().UTC().Truncate(time.Millisecond)

	s := &docking.RunSummary{
		ID:          "run-1",
		Receptor:    "rec.pdbqt",
		Library:     "lib.sdf",
		PH:          7.4,
		WorkDir:     "/data/run",
		StartedAt:   start,
		FinishedAt:  start.Add(time.Minute),
		Docked:      3,
		DockFailed:  1,
		Ranking:     docking.Rank(docking.NewScoreTable(map[string]float64{"a": -7.2, "b": -9.1})),
		Complexes:   []string{"complex_b.pdb"},
		ArchivePath: "backup/run-1.tar.zst",
		Status:      docking.StatusPartial,
		Duration:    time.Minute,
	}
	require.NoError(t, repo.Publish(ctx, s))

	got, err := repo.FindByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "rec.pdbqt", got.Receptor)
	assert.Equal(t, docking.StatusPartial, got.Status)
	assert.Equal(t, time.Minute, got.Duration)
	assert.Equal(t, []string{"b", "a"}, got.Ranking.Names())
	assert.True(t, got.StartedAt.Equal(start))

	_, err = repo.FindByID(ctx, "missing")
	assert.True(t, errors.IsNotFound(err))

	assert.Error(t, repo.Save(ctx, s), "duplicate run id")
}

func TestRunRepository_BestScoresAcrossRuns(t *testing.T) {
	repo := startPostgres(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, scores := range []map[string]float64{
		{"a": -7.0, "b": -6.0},
		{"a": -5.0, "b": -8.0, "c": -6.5},
	} {
		require.NoError(t, repo.Save(ctx, &docking.RunSummary{
			ID:         "run-" + strconv.Itoa(i),
			Receptor:   "rec.pdbqt",
			StartedAt:  now.Add(time.Duration(i) * time.Hour),
			FinishedAt: now.Add(time.Duration(i) * time.Hour),
			Ranking:    docking.Rank(docking.NewScoreTable(scores)),
			Status:     docking.StatusSucceeded,
		}))
	}

	best, err := repo.BestScores(ctx, "rec.pdbqt", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, best.Names())
	assert.Equal(t, []float64{-8.0, -7.0, -6.5}, best.Scores())

	runs, err := repo.ListRecent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-1", runs[0].ID)
}
