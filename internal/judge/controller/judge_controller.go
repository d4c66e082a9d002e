package controller

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"codearena/internal/judge/model"
	appErr "codearena/pkg/errors"
	"codearena/pkg/utils/contextkey"
	"codearena/pkg/utils/logger"
	"codearena/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const defaultWatchInterval = 500 * time.Millisecond

// JudgeService is the judge surface served over HTTP.
type JudgeService interface {
	Judge(ctx context.Context, req model.SubmissionRequest) (model.Submission, error)
	Status(ctx context.Context, submissionID string) (model.StatusUpdate, error)
}

// JudgeController handles submission judging and status requests.
type JudgeController struct {
	judge         JudgeService
	upgrader      websocket.Upgrader
	watchInterval time.Duration
}

// NewJudgeController creates a new controller. A zero watchInterval uses the default.
func NewJudgeController(judge JudgeService, watchInterval time.Duration) *JudgeController {
	if watchInterval <= 0 {
		watchInterval = defaultWatchInterval
	}
	return &JudgeController{
		judge: judge,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		watchInterval: watchInterval,
	}
}

// SubmitRequest is the body of a synchronous judge call.
type SubmitRequest struct {
	SubmissionID string `json:"submission_id"`
	ContestantID string `json:"contestant_id"`
	ProblemID    string `json:"problem_id" binding:"required"`
	ContestID    string `json:"contest_id"`
	Language     string `json:"language" binding:"required"`
	Code         string `json:"code"`
	SourceKey    string `json:"source_key"`
}

// SubmissionResponse is a recorded submission without its source.
type SubmissionResponse struct {
	SubmissionID string        `json:"submission_id"`
	ContestantID string        `json:"contestant_id"`
	ProblemID    string        `json:"problem_id"`
	ContestID    string        `json:"contest_id,omitempty"`
	Language     string        `json:"language"`
	CreatedAt    string        `json:"created_at"`
	Stage        model.Stage   `json:"stage,omitempty"`
	Verdict      model.Verdict `json:"verdict"`
}

// Submit judges one submission and waits for its verdict.
func (h *JudgeController) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	contestantID := strings.TrimSpace(req.ContestantID)
	if contestantID == "" {
		contestantID = c.GetString(contextkey.UserID.String())
	}
	lang, err := model.ParseLanguage(req.Language)
	if err != nil {
		response.Error(c, err)
		return
	}

	submission, err := h.judge.Judge(c.Request.Context(), model.SubmissionRequest{
		SubmissionID: req.SubmissionID,
		ContestantID: contestantID,
		ProblemID:    req.ProblemID,
		ContestID:    req.ContestID,
		Code:         req.Code,
		SourceKey:    req.SourceKey,
		Language:     lang,
	})
	if appErr.Is(err, appErr.SubmissionRequeued) {
		resp := newSubmissionResponse(submission)
		resp.Stage = model.StageRequeued
		response.Accepted(c, appErr.SubmissionRequeued, resp)
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, newSubmissionResponse(submission))
}

func newSubmissionResponse(submission model.Submission) SubmissionResponse {
	return SubmissionResponse{
		SubmissionID: submission.ID,
		ContestantID: submission.ContestantID,
		ProblemID:    submission.ProblemID,
		ContestID:    submission.ContestID,
		Language:     string(submission.Language),
		CreatedAt:    submission.CreatedAt.UTC().Format(time.RFC3339),
		Verdict:      submission.Verdict,
	}
}

// GetStatus returns status for one submission.
func (h *JudgeController) GetStatus(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	status, err := h.judge.Status(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, status)
}

// Watch streams status changes of one submission over a websocket until
// the submission reaches a terminal stage or the client goes away.
func (h *JudgeController) Watch(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	ctx := c.Request.Context()
	// fail before the upgrade so unknown ids get a plain HTTP error
	first, err := h.judge.Status(ctx, submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(ctx, "websocket upgrade failed", zap.String("submission_id", submissionID), zap.Error(err))
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	last := first
	if err := conn.WriteJSON(last); err != nil {
		return
	}
	ticker := time.NewTicker(h.watchInterval)
	defer ticker.Stop()
	for !last.Stage.Terminal() {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case <-ticker.C:
		}
		status, err := h.judge.Status(ctx, submissionID)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !appErr.Is(err, appErr.SubmissionNotFound) {
				logger.Warn(ctx, "watch status failed", zap.String("submission_id", submissionID), zap.Error(err))
			}
			continue
		}
		if status.Stage == last.Stage && status.CaseIndex == last.CaseIndex {
			continue
		}
		last = status
		if err := conn.WriteJSON(last); err != nil {
			return
		}
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(last.Stage)),
		time.Now().Add(time.Second))
}
