package controller

import (
	"context"

	"codearena/internal/judge/repository"
	"codearena/internal/judge/window"
	"codearena/internal/ranking"
	"codearena/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// Ranker serves contest leaderboards.
type Ranker interface {
	Rank(ctx context.Context, contestID string) ([]ranking.Entry, error)
}

// ContestController serves contest phase, leaderboards and public problem views.
type ContestController struct {
	problems repository.ProblemRepository
	ranker   Ranker
	clock    window.Clock
}

// NewContestController creates a new controller. A nil clock uses the system clock.
func NewContestController(problems repository.ProblemRepository, ranker Ranker, clock window.Clock) *ContestController {
	if clock == nil {
		clock = window.SystemClock{}
	}
	return &ContestController{problems: problems, ranker: ranker, clock: clock}
}

// RankingResponse wraps a leaderboard.
type RankingResponse struct {
	ContestID string          `json:"contest_id"`
	Entries   []ranking.Entry `json:"entries"`
}

// Ranking returns the leaderboard of a contest.
func (h *ContestController) Ranking(c *gin.Context) {
	contestID := c.Param("id")
	if contestID == "" {
		response.BadRequest(c, "Invalid contest id")
		return
	}
	entries, err := h.ranker.Rank(c.Request.Context(), contestID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if entries == nil {
		entries = []ranking.Entry{}
	}
	response.Success(c, RankingResponse{ContestID: contestID, Entries: entries})
}

// Phase returns the live window status of a contest.
func (h *ContestController) Phase(c *gin.Context) {
	contestID := c.Param("id")
	if contestID == "" {
		response.BadRequest(c, "Invalid contest id")
		return
	}
	contest, err := h.problems.GetContest(c.Request.Context(), contestID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, window.Snapshot(&contest, h.clock.Now()))
}

// Problem returns the contestant facing view of a problem.
func (h *ContestController) Problem(c *gin.Context) {
	problemID := c.Param("id")
	if problemID == "" {
		response.BadRequest(c, "Invalid problem id")
		return
	}
	problem, err := h.problems.GetProblem(c.Request.Context(), problemID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, problem.Public())
}
