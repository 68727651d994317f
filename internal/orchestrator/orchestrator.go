// Package orchestrator runs a user query through classification, planning,
// wave execution and synthesis.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mohammad-safakhou/wsorch/internal/agent"
	"github.com/mohammad-safakhou/wsorch/internal/executor"
	"github.com/mohammad-safakhou/wsorch/internal/intent"
	"github.com/mohammad-safakhou/wsorch/internal/logging"
	"github.com/mohammad-safakhou/wsorch/internal/plan"
	"github.com/mohammad-safakhou/wsorch/internal/store"
	"github.com/mohammad-safakhou/wsorch/internal/synth"
)

// ErrEmptyQuery is returned for blank queries.
var ErrEmptyQuery = errors.New("query is empty")

// Planner turns an intent into an executable plan.
type Planner interface {
	BuildPlan(in intent.Intent) (*plan.Plan, error)
}

// History persists finished conversations.
type History interface {
	SaveConversation(ctx context.Context, c store.Conversation) (string, error)
}

// Request is a single user query.
type Request struct {
	UserID string `json:"user_id"`
	Query  string `json:"query"`
}

// Response is what a finished run hands back to the caller.
type Response struct {
	RunID   string                      `json:"run_id"`
	Message string                      `json:"message"`
	Intent  intent.Intent               `json:"intent"`
	Results map[string]agent.StepResult `json:"details"`
}

// Service wires the pipeline stages together. It is safe for concurrent use;
// every call to Handle gets its own plan and execution context.
type Service struct {
	classifier  intent.Classifier
	planner     Planner
	engine      *executor.Engine
	dispatcher  executor.Dispatcher
	synth       synth.Synthesizer
	history     History
	defaultUser string
	runTimeout  time.Duration
	log         *logrus.Entry
}

// Option configures a Service.
type Option func(*Service)

// WithHistory stores every answered query.
func WithHistory(h History) Option {
	return func(s *Service) { s.history = h }
}

// WithDefaultUser is used when a request carries no user id.
func WithDefaultUser(id string) Option {
	return func(s *Service) { s.defaultUser = id }
}

// WithRunTimeout bounds a whole run. Zero disables the bound.
func WithRunTimeout(d time.Duration) Option {
	return func(s *Service) { s.runTimeout = d }
}

func WithLogger(l *logrus.Entry) Option {
	return func(s *Service) { s.log = l }
}

// New builds a Service.
func New(c intent.Classifier, p Planner, e *executor.Engine, d executor.Dispatcher, sy synth.Synthesizer, opts ...Option) *Service {
	s := &Service{classifier: c, planner: p, engine: e, dispatcher: d, synth: sy}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	return s
}

// Handle answers req. Plans with no steps succeed with an empty result set.
func (s *Service) Handle(ctx context.Context, req Request) (Response, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return Response{}, ErrEmptyQuery
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = s.defaultUser
	}
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	in, err := s.classifier.Classify(ctx, query)
	if err != nil {
		return Response{}, fmt.Errorf("classify: %w", err)
	}
	p, err := s.planner.BuildPlan(in)
	if err != nil {
		return Response{}, err
	}

	runID := uuid.NewString()
	log := s.log.WithFields(logrus.Fields{"run_id": runID, "intent": in.Name, "user_id": userID})
	ec := agent.NewContext(userID, in)
	results, err := s.engine.Execute(ctx, runID, p, ec, s.dispatcher)
	if err != nil {
		log.WithError(err).Warn("run failed")
		return Response{RunID: runID, Intent: in}, fmt.Errorf("run %s: %w", runID, err)
	}

	resp := Response{
		RunID:   runID,
		Message: s.synth.Synthesize(in, results),
		Intent:  in,
		Results: results,
	}
	if s.history != nil {
		s.remember(ctx, log, userID, query, resp)
	}
	return resp, nil
}

func (s *Service) remember(ctx context.Context, log *logrus.Entry, userID, query string, resp Response) {
	raw, err := json.Marshal(resp.Intent)
	if err != nil {
		log.WithError(err).Warn("encode intent")
		return
	}
	id, err := s.history.SaveConversation(context.WithoutCancel(ctx), store.Conversation{
		UserID:   userID,
		Query:    query,
		Intent:   raw,
		Response: resp.Message,
	})
	if err != nil {
		log.WithError(err).Warn("save conversation")
		return
	}
	log.WithField("conversation_id", id).Debug("conversation saved")
}
