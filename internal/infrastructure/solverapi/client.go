// Package solverapi is a StepSolver backed by a remote solver service. The
// wire format carries candidates as a nullable array per cell; null entries
// normalize to empty sets on the way in.
package solverapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"svw.info/sudoku-replay/internal/domain"
)

// Client calls the remote solve endpoint with exponential-backoff retries on
// transient failures.
type Client struct {
	base     string
	http     *http.Client
	log      *slog.Logger
	maxTries uint
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithMaxTries caps retry attempts (default 3).
func WithMaxTries(n uint) Option { return func(c *Client) { c.maxTries = n } }

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.log = l } }

// New builds a client for the solver service at base (e.g. "http://host:9000").
func New(base string, opts ...Option) *Client {
	c := &Client{
		base:     base,
		http:     &http.Client{Timeout: 30 * time.Second},
		log:      slog.Default(),
		maxTries: 3,
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.With("component", "solverapi")
	return c
}

// --- wire shapes ---

type wireRequest struct {
	Board      []int   `json:"board"`
	Candidates [][]int `json:"candidates"`
	Givens     []int   `json:"givens"`
}

type wireMove struct {
	Step           int                  `json:"step"`
	Technique      string               `json:"technique,omitempty"`
	Action         string               `json:"action,omitempty"`
	Digit          uint8                `json:"digit,omitempty"`
	Cells          []domain.CellCoord   `json:"cells,omitempty"`
	Eliminations   []domain.Elimination `json:"eliminations,omitempty"`
	Explanation    string               `json:"explanation,omitempty"`
	Doc            domain.TechniqueDoc  `json:"doc,omitempty"`
	Highlight      domain.Highlight     `json:"highlight,omitempty"`
	UserEntryCount int                  `json:"userEntryCount,omitempty"`
	Board          []int                `json:"board"`
	Candidates     [][]int              `json:"candidates"`
}

type wireResponse struct {
	Solved bool       `json:"solved"`
	Moves  []wireMove `json:"moves"`
	Error  string     `json:"error,omitempty"`
}

// SolvePath implements ports.StepSolver against the remote service.
func (c *Client) SolvePath(ctx context.Context, req domain.SolveRequest) (*domain.MoveSequence, error) {
	body, err := json.Marshal(encodeRequest(req))
	if err != nil {
		return nil, fmt.Errorf("encode solve request: %w", err)
	}

	op := func() (*wireResponse, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/solve", bytes.NewReader(body))
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		resp, err := c.http.Do(httpReq)
		if err != nil {
			return nil, err // transient; retry
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			c.log.Warn("solver service error, retrying", "status", resp.StatusCode)
			return nil, fmt.Errorf("solver service: status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, backoff.Permanent(fmt.Errorf("solver service: status %d", resp.StatusCode))
		}
		var out wireResponse
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("decode solve response: %w", err))
		}
		if out.Error != "" {
			return nil, backoff.Permanent(fmt.Errorf("%s", out.Error))
		}
		return &out, nil
	}

	resp, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.maxTries),
	)
	if err != nil {
		return nil, err
	}
	return decodeResponse(resp)
}

func encodeRequest(req domain.SolveRequest) wireRequest {
	return wireRequest{
		Board:      encodeGrid(req.Board),
		Givens:     encodeGrid(req.Givens),
		Candidates: req.Candidates.Lists(),
	}
}

func encodeGrid(g domain.Grid) []int {
	out := make([]int, domain.GridSize)
	for i, v := range g {
		out[i] = int(v)
	}
	return out
}

func decodeResponse(w *wireResponse) (*domain.MoveSequence, error) {
	seq := &domain.MoveSequence{Solved: w.Solved, Moves: make([]domain.Move, 0, len(w.Moves))}
	for i := range w.Moves {
		m, err := decodeMove(&w.Moves[i])
		if err != nil {
			return nil, fmt.Errorf("move %d: %w", i, err)
		}
		seq.Moves = append(seq.Moves, m)
	}
	return seq, nil
}

func decodeMove(w *wireMove) (domain.Move, error) {
	board, err := decodeGrid(w.Board)
	if err != nil {
		return domain.Move{}, err
	}
	action := domain.ActionKind(w.Action)
	if action == "" {
		action = domain.ActionPlace
	}
	return domain.Move{
		Step:           w.Step,
		Technique:      w.Technique,
		Action:         action,
		Digit:          w.Digit,
		Cells:          w.Cells,
		Eliminations:   w.Eliminations,
		Explanation:    w.Explanation,
		Doc:            w.Doc,
		Highlight:      w.Highlight,
		UserEntryCount: w.UserEntryCount,
		Board:          board,
		Candidates:     domain.CandidatesFromLists(w.Candidates),
	}, nil
}

func decodeGrid(vals []int) (domain.Grid, error) {
	var g domain.Grid
	if len(vals) != domain.GridSize {
		return g, fmt.Errorf("board has %d cells, want %d", len(vals), domain.GridSize)
	}
	for i, v := range vals {
		if v < 0 || v > 9 {
			return g, fmt.Errorf("cell %d holds %d, want 0..9", i, v)
		}
		g[i] = uint8(v)
	}
	return g, nil
}
