package httpadapter

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"svw.info/sudoku-replay/internal/domain"
	"svw.info/sudoku-replay/internal/generator"
	"svw.info/sudoku-replay/internal/hint"
	"svw.info/sudoku-replay/internal/infrastructure/storage"
	"svw.info/sudoku-replay/internal/solver"
	"svw.info/sudoku-replay/internal/steps"
	"svw.info/sudoku-replay/internal/usecase"
	"svw.info/sudoku-replay/internal/validator"
)

var puzzleRows = [9][9]uint8{
	{5, 3, 0, 0, 7, 0, 0, 0, 0},
	{6, 0, 0, 1, 9, 5, 0, 0, 0},
	{0, 9, 8, 0, 0, 0, 0, 6, 0},
	{8, 0, 0, 0, 6, 0, 0, 0, 3},
	{4, 0, 0, 8, 0, 3, 0, 0, 1},
	{7, 0, 0, 0, 2, 0, 0, 0, 6},
	{0, 6, 0, 0, 0, 0, 2, 8, 0},
	{0, 0, 0, 4, 1, 9, 0, 0, 5},
	{0, 0, 0, 0, 8, 0, 0, 7, 9},
}

func puzzleGrid() domain.Grid {
	var g domain.Grid
	for r := 0; r < 9; r++ {
		for c := 0; c < 9; c++ {
			g[r*9+c] = puzzleRows[r][c]
		}
	}
	return g
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	full := solver.NewDLXSolver()
	uc := usecase.NewService(
		full,
		steps.NewEngine(full),
		generator.NewUniqueGenerator(full),
		validator.New(),
		hint.NewSingles(),
		storage.NewFS(t.TempDir()),
	)
	srv := httptest.NewServer(New(uc).Router())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any, out any) int {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestSolveEndpoint(t *testing.T) {
	srv := newTestServer(t)

	var out solveResp
	code := postJSON(t, srv.URL+"/api/solve", solveReq{Board: puzzleGrid()}, &out)
	require.Equal(t, http.StatusOK, code)
	require.True(t, out.Board.IsComplete())
	require.Equal(t, uint8(5), out.Board[0], "givens survive")
}

func TestSolveEndpointRejectsGarbage(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Post(srv.URL+"/api/solve", "application/json", bytes.NewReader([]byte("{")))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestValidateEndpoint(t *testing.T) {
	srv := newTestServer(t)

	var out validateResp
	code := postJSON(t, srv.URL+"/api/validate", validateReq{Board: puzzleGrid()}, &out)
	require.Equal(t, http.StatusOK, code)
	require.True(t, out.OK)
	require.Empty(t, out.Conflicts)

	bad := puzzleGrid()
	bad[2] = 5 // duplicates the 5 in row 1
	code = postJSON(t, srv.URL+"/api/validate", validateReq{Board: bad}, &out)
	require.Equal(t, http.StatusOK, code)
	require.False(t, out.OK)
	require.NotEmpty(t, out.Conflicts)
}

func TestSolvePathEndpoint(t *testing.T) {
	srv := newTestServer(t)

	g := puzzleGrid()
	var out solvePathResp
	code := postJSON(t, srv.URL+"/api/solvepath", solvePathReq{Board: g, Givens: g}, &out)
	require.Equal(t, http.StatusOK, code)
	if out.Solved {
		require.NotEmpty(t, out.Moves)
		last := out.Moves[len(out.Moves)-1]
		require.True(t, last.Board.IsComplete())
	}
	for i, m := range out.Moves {
		require.Equal(t, i, m.Step)
	}
}

func TestGenerateEndpoint(t *testing.T) {
	srv := newTestServer(t)

	var out generateResp
	code := postJSON(t, srv.URL+"/api/generate", generateReq{Difficulty: "easy", Seed: 7}, &out)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, int64(7), out.Seed)

	filled := 0
	for _, v := range out.Board.Values {
		if v != 0 {
			filled++
		}
	}
	require.Greater(t, filled, 16, "a valid puzzle needs at least 17 clues")
}

func TestSaveLoadListEndpoints(t *testing.T) {
	srv := newTestServer(t)

	p := domain.Puzzle{ID: "weekend", Name: "tricky one"}
	p.Board.Values = puzzleGrid()

	var saved saveResp
	code := postJSON(t, srv.URL+"/api/save", p, &saved)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "weekend", saved.ID)

	resp, err := http.Get(srv.URL + "/api/load/weekend")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var loaded loadResp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&loaded))
	require.Equal(t, "tricky one", loaded.Puzzle.Name)
	require.Equal(t, puzzleGrid(), loaded.Puzzle.Board.Values)

	resp2, err := http.Get(srv.URL + "/api/load/absent")
	require.NoError(t, err)
	resp2.Body.Close()
	require.Equal(t, http.StatusNotFound, resp2.StatusCode)

	resp3, err := http.Get(srv.URL + "/api/list")
	require.NoError(t, err)
	defer resp3.Body.Close()
	var list listResp
	require.NoError(t, json.NewDecoder(resp3.Body).Decode(&list))
	require.Len(t, list.Puzzles, 1)
	require.Equal(t, "weekend", list.Puzzles[0].ID)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
