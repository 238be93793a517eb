package client

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

// Entry is one ranked ligand.
type Entry struct {
	Rank  int     `json:"rank"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

type Ranking struct {
	Count   int     `json:"count"`
	Entries []Entry `json:"entries"`
}

// Run is a run summary as stored by the server's backends.
type Run struct {
	ID            string        `json:"id"`
	Receptor      string        `json:"receptor"`
	Library       string        `json:"library,omitempty"`
	PH            float64       `json:"ph"`
	WorkDir       string        `json:"workdir"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
	Docked        int           `json:"docked"`
	DockFailed    int           `json:"dock_failed"`
	ParseFailed   int           `json:"parse_failed"`
	Ranking       []Entry       `json:"ranking"`
	Complexes     []string      `json:"complexes,omitempty"`
	ComplexFailed int           `json:"complex_failed,omitempty"`
	ArchivePath   string        `json:"archive_path,omitempty"`
	Status        string        `json:"status"`
	Duration      time.Duration `json:"duration"`
}

type RunList struct {
	Count int    `json:"count"`
	Runs  []*Run `json:"runs"`
}

type ArchiveLink struct {
	RunID     string    `json:"run_id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

const apiPrefix = "/api/v1"

// Results returns the full ranked report of the served working directory.
func (c *Client) Results(ctx context.Context) (*Ranking, error) {
	var out Ranking
	if err := c.get(ctx, apiPrefix+"/results", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Top returns the n best entries of the ranked report.
func (c *Client) Top(ctx context.Context, n int) (*Ranking, error) {
	var out Ranking
	if err := c.get(ctx, apiPrefix+"/results/top/"+strconv.Itoa(n), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Leaderboard returns up to limit best ligands across runs for receptor.
// limit <= 0 uses the server default.
func (c *Client) Leaderboard(ctx context.Context, receptor string, limit int) (*Ranking, error) {
	var out Ranking
	if err := c.get(ctx, apiPrefix+"/leaderboard/"+url.PathEscape(receptor), limitQuery(limit), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Runs lists recent runs, newest first, optionally for one receptor.
func (c *Client) Runs(ctx context.Context, receptor string, limit int) (*RunList, error) {
	q := limitQuery(limit)
	if receptor != "" {
		if q == nil {
			q = url.Values{}
		}
		q.Set("receptor", receptor)
	}
	var out RunList
	if err := c.get(ctx, apiPrefix+"/runs", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Run(ctx context.Context, id string) (*Run, error) {
	var out Run
	if err := c.get(ctx, apiPrefix+"/runs/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Archive returns a time-limited download link for a run's archive.
func (c *Client) Archive(ctx context.Context, id string) (*ArchiveLink, error) {
	var out ArchiveLink
	if err := c.get(ctx, apiPrefix+"/runs/"+url.PathEscape(id)+"/archive", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func limitQuery(limit int) url.Values {
	if limit <= 0 {
		return nil
	}
	return url.Values{"limit": {strconv.Itoa(limit)}}
}
