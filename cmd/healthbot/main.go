package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"healthbot/internal/app"
	"healthbot/internal/httputil"
	"healthbot/internal/llm"
	"healthbot/internal/session"
	"healthbot/internal/workflow"
)

//go:embed ui.html
var uiPage []byte

type topicRequest struct {
	Topic      string `json:"topic" validate:"required,min=2,max=200"`
	Difficulty string `json:"difficulty" validate:"required,oneof=easy medium hard"`
}

type quizRequest struct {
	Count int `json:"count" validate:"required,min=1"`
}

type answerRequest struct {
	Index  int    `json:"index" validate:"min=0"`
	Answer string `json:"answer"`
}

// questionView hides expected answers from the client.
type questionView struct {
	Index   int      `json:"index"`
	Prompt  string   `json:"prompt"`
	Choices []string `json:"choices,omitempty"`
}

func main() {
	deps, err := app.Build()
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	defer deps.Sessions.Close()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", deps.Config.Port),
		Handler: newRouter(deps),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		deps.Log.Info("healthbot listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		deps.Log.Error("server stopped", "err", err)
	}
}

func newRouter(deps app.Deps) *chi.Mux {
	r := httputil.NewRouter(deps.Log)

	r.Get("/", uiHandler())
	r.Post("/api/sessions", createSessionHandler(deps))
	r.Get("/api/sessions/{id}", getSessionHandler(deps))
	r.Delete("/api/sessions/{id}", deleteSessionHandler(deps))
	r.Post("/api/sessions/{id}/topic", topicHandler(deps))
	r.Post("/api/sessions/{id}/quiz", quizHandler(deps))
	r.Post("/api/sessions/{id}/answers", answerHandler(deps))
	r.Get("/api/sessions/{id}/results", resultsHandler(deps))
	r.Get("/api/sessions/{id}/related", relatedHandler(deps))
	r.Post("/api/sessions/{id}/reset", resetHandler(deps))
	r.Get("/healthz", httputil.HealthHandler(deps.Log))

	return r
}

func uiHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(uiPage)
	}
}

func createSessionHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := deps.Sessions.Create(r.Context())
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to create session", err, http.StatusInternalServerError)
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, map[string]any{
			"session_id":    sess.ID.String(),
			"state":         sess.State,
			"max_questions": deps.Workflow.MaxQuestions(),
		})
	}
}

func getSessionHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := loadSession(deps, w, r)
		if !ok {
			return
		}
		httputil.WriteJSON(w, http.StatusOK, sessionView(sess))
	}
}

func deleteSessionHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			httputil.Fail(deps.Log, w, "invalid session id", err, http.StatusBadRequest)
			return
		}
		if err := deps.Sessions.Delete(r.Context(), id); err != nil {
			failWorkflow(deps.Log, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func topicHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req topicRequest
		if !decodeAndValidate(deps.Log, w, r, &req) {
			return
		}
		sess, ok := loadSession(deps, w, r)
		if !ok {
			return
		}

		summary, err := deps.Workflow.StartTopic(r.Context(), sess, req.Topic, req.Difficulty)
		if err != nil {
			failWorkflow(deps.Log, w, err)
			return
		}
		if err := deps.Sessions.Save(r.Context(), sess); err != nil {
			httputil.Fail(deps.Log, w, "failed to save session", err, http.StatusInternalServerError)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"summary": summary,
			"state":   sess.State,
		})
	}
}

func quizHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req quizRequest
		if !decodeAndValidate(deps.Log, w, r, &req) {
			return
		}
		sess, ok := loadSession(deps, w, r)
		if !ok {
			return
		}

		questions, err := deps.Workflow.GenerateQuiz(r.Context(), sess, req.Count)
		if err != nil {
			failWorkflow(deps.Log, w, err)
			return
		}
		if err := deps.Sessions.Save(r.Context(), sess); err != nil {
			httputil.Fail(deps.Log, w, "failed to save session", err, http.StatusInternalServerError)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"questions": questionViews(questions),
			"state":     sess.State,
		})
	}
}

func answerHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req answerRequest
		if !decodeAndValidate(deps.Log, w, r, &req) {
			return
		}
		sess, ok := loadSession(deps, w, r)
		if !ok {
			return
		}

		fb, err := deps.Workflow.SubmitAnswer(r.Context(), sess, req.Index, req.Answer)
		if err != nil {
			failWorkflow(deps.Log, w, err)
			return
		}
		if err := deps.Sessions.Save(r.Context(), sess); err != nil {
			httputil.Fail(deps.Log, w, "failed to save session", err, http.StatusInternalServerError)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"correct":       fb.Correct,
			"feedback":      fb.Feedback,
			"score":         sess.Score(),
			"quiz_complete": sess.QuizComplete(),
			"state":         sess.State,
		})
	}
}

func resultsHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := loadSession(deps, w, r)
		if !ok {
			return
		}
		res, err := deps.Workflow.Results(sess)
		if err != nil {
			failWorkflow(deps.Log, w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, res)
	}
}

func relatedHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := loadSession(deps, w, r)
		if !ok {
			return
		}
		topics, err := deps.Workflow.RelatedTopics(r.Context(), sess)
		if err != nil {
			failWorkflow(deps.Log, w, err)
			return
		}
		if err := deps.Sessions.Save(r.Context(), sess); err != nil {
			httputil.Fail(deps.Log, w, "failed to save session", err, http.StatusInternalServerError)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"related_topics": topics,
			"state":          sess.State,
		})
	}
}

func resetHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := loadSession(deps, w, r)
		if !ok {
			return
		}
		deps.Workflow.Reset(r.Context(), sess)
		if err := deps.Sessions.Save(r.Context(), sess); err != nil {
			httputil.Fail(deps.Log, w, "failed to save session", err, http.StatusInternalServerError)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"session_id": sess.ID.String(),
			"state":      sess.State,
		})
	}
}

// loadSession parses the id URL param and fetches the session, writing the
// error response itself on failure.
func loadSession(deps app.Deps, w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.Fail(deps.Log, w, "invalid session id", err, http.StatusBadRequest)
		return nil, false
	}
	sess, err := deps.Sessions.Get(r.Context(), id)
	if err != nil {
		failWorkflow(deps.Log, w, err)
		return nil, false
	}
	return sess, true
}

func decodeAndValidate(log *slog.Logger, w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		httputil.Fail(log, w, "invalid payload", err, http.StatusBadRequest)
		return false
	}
	if err := httputil.Validator.Struct(req); err != nil {
		httputil.ValidationError(log, w, err)
		return false
	}
	return true
}

// failWorkflow maps workflow and store errors onto HTTP statuses. Retryable
// failures tell the patient to try the step again.
func failWorkflow(log *slog.Logger, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		httputil.Fail(log, w, "session not found", err, http.StatusNotFound)
	case errors.Is(err, workflow.ErrInvalidArgument):
		httputil.Fail(log, w, err.Error(), err, http.StatusBadRequest)
	case errors.Is(err, workflow.ErrInvalidState):
		httputil.Fail(log, w, err.Error(), err, http.StatusConflict)
	case errors.Is(err, llm.ErrMalformedOutput):
		httputil.Fail(log, w, "the model response could not be understood; please retry", err, http.StatusBadGateway)
	case errors.Is(err, workflow.ErrExternalService):
		httputil.Fail(log, w, "a downstream service failed; please retry", err, http.StatusBadGateway)
	default:
		httputil.Fail(log, w, "internal error", err, http.StatusInternalServerError)
	}
}

func sessionView(sess *session.Session) map[string]any {
	return map[string]any{
		"session_id":     sess.ID.String(),
		"state":          sess.State,
		"topic":          sess.Topic,
		"difficulty":     sess.Difficulty,
		"summary":        sess.Summary,
		"questions":      questionViews(sess.Quiz),
		"answered":       len(sess.Answers),
		"score":          sess.Score(),
		"related_topics": sess.RelatedTopics,
	}
}

func questionViews(questions []llm.Question) []questionView {
	views := make([]questionView, len(questions))
	for i, q := range questions {
		views[i] = questionView{Index: i, Prompt: q.Prompt, Choices: q.Choices}
	}
	return views
}
