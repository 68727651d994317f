package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/mohammad-safakhou/wsorch/internal/jobs"
	"github.com/mohammad-safakhou/wsorch/internal/logging"
	"github.com/mohammad-safakhou/wsorch/internal/orchestrator"
	"github.com/mohammad-safakhou/wsorch/internal/queue/streams"
)

// Runner answers a query synchronously.
type Runner interface {
	Handle(ctx context.Context, req orchestrator.Request) (orchestrator.Response, error)
}

// QueryPublisher hands a submitted query to the worker stream.
type QueryPublisher interface {
	PublishQuery(ctx context.Context, q streams.QuerySubmitted) (string, error)
}

// QueryHandler serves query submission, status polling and synchronous
// orchestration.
type QueryHandler struct {
	runner      Runner
	jobs        jobs.Repository
	publisher   QueryPublisher
	defaultUser string
	onFinish    func(jobs.Status)
	log         *logrus.Entry
	spawn       func(fn func(ctx context.Context))
}

type QueryOption func(*QueryHandler)

// WithQueue hands submitted queries to p instead of running them in-process.
func WithQueue(p QueryPublisher) QueryOption {
	return func(h *QueryHandler) { h.publisher = p }
}

// WithJobHook is called with the terminal status of in-process jobs.
func WithJobHook(fn func(jobs.Status)) QueryOption {
	return func(h *QueryHandler) { h.onFinish = fn }
}

func WithQueryLogger(l *logrus.Entry) QueryOption {
	return func(h *QueryHandler) { h.log = l }
}

func NewQueryHandler(r Runner, repo jobs.Repository, defaultUser string, opts ...QueryOption) *QueryHandler {
	h := &QueryHandler{runner: r, jobs: repo, defaultUser: defaultUser}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		h.log = logging.Discard()
	}
	if h.spawn == nil {
		h.spawn = func(fn func(ctx context.Context)) { go fn(context.Background()) }
	}
	return h
}

func (h *QueryHandler) Register(g *echo.Group) {
	g.POST("/query", h.submit)
	g.GET("/query/:id", h.status)
	g.POST("/orchestrate", h.orchestrate)
}

type queryRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id"`
}

type submitResponse struct {
	TaskID string `json:"task_id"`
}

type statusResponse struct {
	Status jobs.Status     `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func (h *QueryHandler) bind(c echo.Context) (orchestrator.Request, error) {
	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return orchestrator.Request{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Query) == "" {
		return orchestrator.Request{}, echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	user := strings.TrimSpace(req.UserID)
	if user == "" {
		user = h.defaultUser
	}
	return orchestrator.Request{UserID: user, Query: req.Query}, nil
}

func (h *QueryHandler) submit(c echo.Context) error {
	req, err := h.bind(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	taskID := uuid.NewString()
	if err := h.jobs.Create(ctx, jobs.Job{ID: taskID, UserID: req.UserID, Query: req.Query}); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if h.publisher != nil {
		q := streams.QuerySubmitted{TaskID: taskID, UserID: req.UserID, Query: req.Query}
		if _, err := h.publisher.PublishQuery(ctx, q); err != nil {
			_ = h.jobs.Fail(context.WithoutCancel(ctx), taskID, err.Error())
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	} else {
		h.spawn(func(ctx context.Context) { h.runJob(ctx, taskID, req) })
	}
	return c.JSON(http.StatusAccepted, submitResponse{TaskID: taskID})
}

func (h *QueryHandler) runJob(ctx context.Context, taskID string, req orchestrator.Request) {
	log := h.log.WithField("task_id", taskID)
	if err := h.jobs.MarkRunning(ctx, taskID); err != nil {
		log.WithError(err).Warn("mark running")
		return
	}
	resp, err := h.runner.Handle(ctx, req)
	if err != nil {
		log.WithError(err).Warn("query failed")
		if ferr := h.jobs.Fail(context.WithoutCancel(ctx), taskID, err.Error()); ferr != nil {
			log.WithError(ferr).Error("mark failed")
		}
		h.finished(jobs.StatusFailed)
		return
	}
	if err := h.jobs.Complete(context.WithoutCancel(ctx), taskID, resp); err != nil {
		log.WithError(err).Error("mark completed")
		return
	}
	h.finished(jobs.StatusCompleted)
}

func (h *QueryHandler) finished(s jobs.Status) {
	if h.onFinish != nil {
		h.onFinish(s)
	}
}

func (h *QueryHandler) status(c echo.Context) error {
	job, err := h.jobs.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, jobs.ErrJobNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "task not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := statusResponse{Status: job.Status}
	switch job.Status {
	case jobs.StatusCompleted:
		resp.Result = job.Result
	case jobs.StatusFailed:
		resp.Error = job.Error
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *QueryHandler) orchestrate(c echo.Context) error {
	req, err := h.bind(c)
	if err != nil {
		return err
	}
	resp, err := h.runner.Handle(c.Request().Context(), req)
	if errors.Is(err, orchestrator.ErrEmptyQuery) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, resp)
}
