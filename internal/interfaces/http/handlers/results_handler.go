package handlers

import (
	"context"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/dockpipe/internal/domain/docking"
	"github.com/turtacn/dockpipe/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/dockpipe/pkg/errors"
)

// ReportReader reads the ranked report of the served working directory.
type ReportReader interface {
	ReadRanking() (docking.Ranking, error)
}

// Leaderboard is the read side of the redis leaderboard.
type Leaderboard interface {
	Top(ctx context.Context, receptor string, n int) (docking.Ranking, error)
	Summary(ctx context.Context, id string) (*docking.RunSummary, error)
	RecentRuns(ctx context.Context, n int) ([]string, error)
}

// RunHistory is the read side of the run repository.
type RunHistory interface {
	FindByID(ctx context.Context, id string) (*docking.RunSummary, error)
	ListRecent(ctx context.Context, receptor string, limit int) ([]*docking.RunSummary, error)
}

// ArchiveLinks hands out download links for run archives.
type ArchiveLinks interface {
	DownloadURL(ctx context.Context, runID string, expiry time.Duration) (string, error)
}

// ResultsDeps wires the result sources.  Nil sources answer 503.
type ResultsDeps struct {
	Reports       ReportReader
	Leaderboard   Leaderboard
	History       RunHistory
	Archives      ArchiveLinks
	ArchiveExpiry time.Duration
	Logger        logging.Logger
}

type ResultsHandler struct {
	deps ResultsDeps
	log  logging.Logger
}

func NewResultsHandler(deps ResultsDeps) *ResultsHandler {
	if deps.ArchiveExpiry <= 0 {
		deps.ArchiveExpiry = 15 * time.Minute
	}
	log := deps.Logger
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &ResultsHandler{deps: deps, log: log.Named("results")}
}

func (h *ResultsHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/results", h.Ranking)
	r.GET("/results/top/:n", h.TopN)
	r.GET("/leaderboard/:receptor", h.Leaderboard)
	r.GET("/runs", h.ListRuns)
	r.GET("/runs/:id", h.GetRun)
	r.GET("/runs/:id/archive", h.Archive)
}

type RankingResponse struct {
	Count   int             `json:"count"`
	Entries docking.Ranking `json:"entries"`
}

func rankingResponse(r docking.Ranking) RankingResponse {
	if r == nil {
		r = docking.Ranking{}
	}
	return RankingResponse{Count: len(r), Entries: r}
}

// Ranking serves the full ranked report.
func (h *ResultsHandler) Ranking(c *gin.Context) {
	r, ok := h.readRanking(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, rankingResponse(r))
}

// TopN serves the n best entries of the ranked report.
func (h *ResultsHandler) TopN(c *gin.Context) {
	n, err := strconv.Atoi(c.Param("n"))
	if err != nil || n < 1 {
		writeError(c, http.StatusBadRequest, errors.CodeInvalidParam, "n must be a positive integer")
		return
	}
	r, ok := h.readRanking(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, rankingResponse(r.Top(n)))
}

func (h *ResultsHandler) readRanking(c *gin.Context) (docking.Ranking, bool) {
	if h.deps.Reports == nil {
		writeUnavailable(c, "report directory")
		return nil, false
	}
	r, err := h.deps.Reports.ReadRanking()
	if errors.Is(err, fs.ErrNotExist) {
		writeError(c, http.StatusNotFound, errors.CodeNotFound, "no ranked report yet")
		return nil, false
	}
	if err != nil {
		writeAppError(c, err)
		return nil, false
	}
	return r, true
}

// Leaderboard serves the best ligands across runs for one receptor.
func (h *ResultsHandler) Leaderboard(c *gin.Context) {
	if h.deps.Leaderboard == nil {
		writeUnavailable(c, "leaderboard")
		return
	}
	n := parseLimit(c, "limit", defaultLimit)
	r, err := h.deps.Leaderboard.Top(c.Request.Context(), c.Param("receptor"), n)
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, rankingResponse(r))
}

type RunListResponse struct {
	Count int                   `json:"count"`
	Runs  []*docking.RunSummary `json:"runs"`
}

// ListRuns serves recent runs, newest first.  The run repository is used
// when configured since it can filter by ?receptor=; otherwise the
// leaderboard's recent list is expanded to summaries.
func (h *ResultsHandler) ListRuns(c *gin.Context) {
	ctx := c.Request.Context()
	limit := parseLimit(c, "limit", defaultLimit)

	var runs []*docking.RunSummary
	switch {
	case h.deps.History != nil:
		var err error
		runs, err = h.deps.History.ListRecent(ctx, c.Query("receptor"), limit)
		if err != nil {
			writeAppError(c, err)
			return
		}
	case h.deps.Leaderboard != nil:
		ids, err := h.deps.Leaderboard.RecentRuns(ctx, limit)
		if err != nil {
			writeAppError(c, err)
			return
		}
		receptor := c.Query("receptor")
		for _, id := range ids {
			s, err := h.deps.Leaderboard.Summary(ctx, id)
			if errors.IsNotFound(err) {
				continue
			}
			if err != nil {
				writeAppError(c, err)
				return
			}
			if receptor != "" && s.Receptor != receptor {
				continue
			}
			runs = append(runs, s)
		}
	default:
		writeUnavailable(c, "run history")
		return
	}

	if runs == nil {
		runs = []*docking.RunSummary{}
	}
	c.JSON(http.StatusOK, RunListResponse{Count: len(runs), Runs: runs})
}

// GetRun serves one run summary.
func (h *ResultsHandler) GetRun(c *gin.Context) {
	id := c.Param("id")
	s, err := h.findRun(c.Request.Context(), id)
	if err != nil {
		if errors.GetCode(err) == errors.ErrCodeExternalService {
			writeUnavailable(c, "run history")
			return
		}
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// findRun prefers the run repository and falls back to the leaderboard,
// whose entries expire.
func (h *ResultsHandler) findRun(ctx context.Context, id string) (*docking.RunSummary, error) {
	if h.deps.History == nil && h.deps.Leaderboard == nil {
		return nil, errors.New(errors.ErrCodeExternalService, "no run history configured")
	}
	if h.deps.History != nil {
		s, err := h.deps.History.FindByID(ctx, id)
		if err == nil || !errors.IsNotFound(err) || h.deps.Leaderboard == nil {
			return s, err
		}
	}
	return h.deps.Leaderboard.Summary(ctx, id)
}

type ArchiveResponse struct {
	RunID     string    `json:"run_id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Archive serves a presigned download link for a run's archive.
func (h *ResultsHandler) Archive(c *gin.Context) {
	if h.deps.Archives == nil {
		writeUnavailable(c, "archive storage")
		return
	}
	id := c.Param("id")
	url, err := h.deps.Archives.DownloadURL(c.Request.Context(), id, h.deps.ArchiveExpiry)
	if err != nil {
		h.log.Warn("presign failed", logging.String("run_id", id), logging.Err(err))
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, ArchiveResponse{
		RunID:     id,
		URL:       url,
		ExpiresAt: time.Now().Add(h.deps.ArchiveExpiry).UTC(),
	})
}
