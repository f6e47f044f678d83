package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"healthbot/internal/app"
	"healthbot/internal/config"
	"healthbot/internal/events"
	"healthbot/internal/llm"
	"healthbot/internal/search"
	"healthbot/internal/session"
	"healthbot/internal/workflow"
)

type testServer struct {
	deps   app.Deps
	search *search.MockClient
	llm    *llm.MockClient
	router http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mockSearch := new(search.MockClient)
	mockLLM := new(llm.MockClient)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := session.NewMemory(time.Minute)
	t.Cleanup(func() { _ = store.Close() })

	deps := app.Deps{
		Config:   config.Config{MaxQuizQuestions: 5},
		Log:      log,
		Sessions: store,
		Workflow: workflow.New(mockSearch, mockLLM, events.NewNoOp(), log, 5),
	}
	return &testServer{
		deps:   deps,
		search: mockSearch,
		llm:    mockLLM,
		router: newRouter(deps),
	}
}

// seedSession stores a session shaped by mutate and returns its id.
func (ts *testServer) seedSession(t *testing.T, mutate func(*session.Session)) uuid.UUID {
	t.Helper()
	sess, err := ts.deps.Sessions.Create(context.Background())
	if err != nil {
		t.Fatalf("failed to seed session: %v", err)
	}
	if mutate != nil {
		mutate(sess)
		if err := ts.deps.Sessions.Save(context.Background(), sess); err != nil {
			t.Fatalf("failed to save seeded session: %v", err)
		}
	}
	return sess.ID
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return out
}

func summarizedSession(s *session.Session) {
	s.State = session.StateSummarizing
	s.Topic = "asthma"
	s.Difficulty = session.DifficultyEasy
	s.Summary = "Asthma narrows the airways."
}

func quizzedSession(s *session.Session) {
	summarizedSession(s)
	s.State = session.StateQuizzing
	s.Quiz = []llm.Question{
		{Prompt: "What does asthma affect?", ExpectedAnswer: "The airways"},
		{Prompt: "Is asthma contagious?", ExpectedAnswer: "No"},
	}
	s.Answers = map[int]session.Answer{}
}

func TestCreateSessionHandler(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/sessions", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d. Body: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	id, err := uuid.Parse(body["session_id"].(string))
	if err != nil {
		t.Fatalf("expected parseable session_id, got %v", body["session_id"])
	}
	if body["state"] != string(session.StateTopicEntry) {
		t.Errorf("expected state %q, got %v", session.StateTopicEntry, body["state"])
	}
	if _, err := ts.deps.Sessions.Get(context.Background(), id); err != nil {
		t.Errorf("expected created session to be retrievable: %v", err)
	}
}

func TestTopicHandler(t *testing.T) {
	tests := []struct {
		name           string
		seed           func(*session.Session)
		requestBody    string
		setup          func(*search.MockClient, *llm.MockClient)
		wantStatusCode int
		checkResponse  func(*testing.T, map[string]any)
	}{
		{
			name:        "successful topic start",
			requestBody: `{"topic": "asthma", "difficulty": "easy"}`,
			setup: func(s *search.MockClient, l *llm.MockClient) {
				s.On("Search", mock.Anything, "asthma").
					Return([]search.Result{{Title: "Asthma", URL: "https://example.org/a", Content: "about asthma"}}, nil).Once()
				l.On("Summarize", mock.Anything, "asthma", mock.Anything, "easy").
					Return("Asthma narrows the airways.", nil).Once()
			},
			wantStatusCode: http.StatusOK,
			checkResponse: func(t *testing.T, body map[string]any) {
				if body["summary"] != "Asthma narrows the airways." {
					t.Errorf("unexpected summary: %v", body["summary"])
				}
				if body["state"] != string(session.StateSummarizing) {
					t.Errorf("expected state summarizing, got %v", body["state"])
				}
			},
		},
		{
			name:           "invalid JSON payload returns 400",
			requestBody:    `{invalid json}`,
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "unknown difficulty fails validation",
			requestBody:    `{"topic": "asthma", "difficulty": "expert"}`,
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "topic too short fails validation",
			requestBody:    `{"topic": "a", "difficulty": "easy"}`,
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "topic already started returns 409",
			seed:           summarizedSession,
			requestBody:    `{"topic": "diabetes", "difficulty": "easy"}`,
			wantStatusCode: http.StatusConflict,
		},
		{
			name:        "search failure returns 502",
			requestBody: `{"topic": "asthma", "difficulty": "easy"}`,
			setup: func(s *search.MockClient, l *llm.MockClient) {
				s.On("Search", mock.Anything, "asthma").
					Return(nil, errors.New("tavily unreachable")).Once()
			},
			wantStatusCode: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			if tt.setup != nil {
				tt.setup(ts.search, ts.llm)
			}
			id := ts.seedSession(t, tt.seed)

			w := ts.do(t, http.MethodPost, "/api/sessions/"+id.String()+"/topic", tt.requestBody)
			if w.Code != tt.wantStatusCode {
				t.Errorf("expected status %d, got %d. Body: %s", tt.wantStatusCode, w.Code, w.Body.String())
			}
			if tt.checkResponse != nil {
				tt.checkResponse(t, decodeBody(t, w))
			}
			ts.search.AssertExpectations(t)
			ts.llm.AssertExpectations(t)
		})
	}
}

func TestTopicHandlerUnknownSession(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/sessions/"+uuid.NewString()+"/topic", `{"topic": "asthma", "difficulty": "easy"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}

	w = ts.do(t, http.MethodPost, "/api/sessions/not-a-uuid/topic", `{"topic": "asthma", "difficulty": "easy"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for malformed id, got %d", w.Code)
	}
}

func TestQuizHandler(t *testing.T) {
	tests := []struct {
		name           string
		seed           func(*session.Session)
		requestBody    string
		setup          func(*llm.MockClient)
		wantStatusCode int
		checkResponse  func(*testing.T, map[string]any)
	}{
		{
			name:        "successful quiz generation",
			seed:        summarizedSession,
			requestBody: `{"count": 2}`,
			setup: func(l *llm.MockClient) {
				l.On("GenerateQuiz", mock.Anything, "asthma", mock.Anything, "easy", 2).
					Return([]llm.Question{
						{Prompt: "Q1", ExpectedAnswer: "A1"},
						{Prompt: "Q2", ExpectedAnswer: "A2"},
					}, nil).Once()
			},
			wantStatusCode: http.StatusOK,
			checkResponse: func(t *testing.T, body map[string]any) {
				questions := body["questions"].([]any)
				if len(questions) != 2 {
					t.Fatalf("expected 2 questions, got %d", len(questions))
				}
				first := questions[0].(map[string]any)
				if _, leaked := first["expected_answer"]; leaked {
					t.Error("expected answers must not reach the client")
				}
				if first["prompt"] != "Q1" {
					t.Errorf("unexpected prompt: %v", first["prompt"])
				}
			},
		},
		{
			name:           "zero count fails validation",
			seed:           summarizedSession,
			requestBody:    `{"count": 0}`,
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "count above bound returns 400",
			seed:           summarizedSession,
			requestBody:    `{"count": 6}`,
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "quiz before topic returns 409",
			requestBody:    `{"count": 2}`,
			wantStatusCode: http.StatusConflict,
		},
		{
			name:        "unparseable model output returns 502",
			seed:        summarizedSession,
			requestBody: `{"count": 2}`,
			setup: func(l *llm.MockClient) {
				l.On("GenerateQuiz", mock.Anything, "asthma", mock.Anything, "easy", 2).
					Return(nil, llm.ErrMalformedOutput).Once()
			},
			wantStatusCode: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			if tt.setup != nil {
				tt.setup(ts.llm)
			}
			id := ts.seedSession(t, tt.seed)

			w := ts.do(t, http.MethodPost, "/api/sessions/"+id.String()+"/quiz", tt.requestBody)
			if w.Code != tt.wantStatusCode {
				t.Errorf("expected status %d, got %d. Body: %s", tt.wantStatusCode, w.Code, w.Body.String())
			}
			if tt.checkResponse != nil {
				tt.checkResponse(t, decodeBody(t, w))
			}
			ts.llm.AssertExpectations(t)
		})
	}
}

func TestAnswerHandler(t *testing.T) {
	t.Run("exact match graded without model call", func(t *testing.T) {
		ts := newTestServer(t)
		id := ts.seedSession(t, quizzedSession)

		w := ts.do(t, http.MethodPost, "/api/sessions/"+id.String()+"/answers", `{"index": 0, "answer": "the airways"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d. Body: %s", w.Code, w.Body.String())
		}
		body := decodeBody(t, w)
		if body["correct"] != true {
			t.Errorf("expected correct=true, got %v", body["correct"])
		}
		if body["quiz_complete"] != false {
			t.Errorf("expected quiz_complete=false after first answer")
		}
		ts.llm.AssertExpectations(t)
	})

	t.Run("last answer completes the quiz", func(t *testing.T) {
		ts := newTestServer(t)
		ts.llm.On("Grade", mock.Anything, "Is asthma contagious?", "No", "I think so").
			Return(llm.Feedback{Correct: false, Feedback: "Asthma is not contagious."}, nil).Once()
		id := ts.seedSession(t, func(s *session.Session) {
			quizzedSession(s)
			s.Answers[0] = session.Answer{Response: "the airways", Correct: true}
		})

		w := ts.do(t, http.MethodPost, "/api/sessions/"+id.String()+"/answers", `{"index": 1, "answer": "I think so"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d. Body: %s", w.Code, w.Body.String())
		}
		body := decodeBody(t, w)
		if body["quiz_complete"] != true {
			t.Error("expected quiz_complete=true after last answer")
		}
		if body["state"] != string(session.StateGrading) {
			t.Errorf("expected state grading, got %v", body["state"])
		}
		score := body["score"].(map[string]any)
		if score["correct"] != float64(1) || score["total"] != float64(2) {
			t.Errorf("expected score 1/2, got %v", score)
		}
		ts.llm.AssertExpectations(t)
	})

	t.Run("answer without quiz returns 409", func(t *testing.T) {
		ts := newTestServer(t)
		id := ts.seedSession(t, summarizedSession)

		w := ts.do(t, http.MethodPost, "/api/sessions/"+id.String()+"/answers", `{"index": 0, "answer": "something"}`)
		if w.Code != http.StatusConflict {
			t.Errorf("expected status 409, got %d", w.Code)
		}
	})

	t.Run("index out of range returns 400", func(t *testing.T) {
		ts := newTestServer(t)
		id := ts.seedSession(t, quizzedSession)

		w := ts.do(t, http.MethodPost, "/api/sessions/"+id.String()+"/answers", `{"index": 5, "answer": "something"}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", w.Code)
		}
	})
}

func TestResultsHandler(t *testing.T) {
	ts := newTestServer(t)
	id := ts.seedSession(t, func(s *session.Session) {
		quizzedSession(s)
		s.State = session.StateGrading
		s.Answers[0] = session.Answer{Response: "the airways", Correct: true, Feedback: "Right."}
		s.Answers[1] = session.Answer{Response: "yes", Correct: false, Feedback: "It is not contagious."}
	})

	w := ts.do(t, http.MethodGet, "/api/sessions/"+id.String()+"/results", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d. Body: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	items := body["items"].([]any)
	if len(items) != 2 {
		t.Fatalf("expected 2 result items, got %d", len(items))
	}
	score := body["score"].(map[string]any)
	if score["correct"] != float64(1) || score["total"] != float64(2) {
		t.Errorf("expected score 1/2, got %v", score)
	}
}

func TestResultsHandlerBeforeQuizFinished(t *testing.T) {
	ts := newTestServer(t)
	id := ts.seedSession(t, quizzedSession)

	w := ts.do(t, http.MethodGet, "/api/sessions/"+id.String()+"/results", "")
	if w.Code != http.StatusConflict {
		t.Errorf("expected status 409, got %d", w.Code)
	}
}

func TestRelatedHandler(t *testing.T) {
	t.Run("suggestions exclude the current topic", func(t *testing.T) {
		ts := newTestServer(t)
		ts.llm.On("RelatedTopics", mock.Anything, "asthma", mock.Anything).
			Return([]string{"Asthma", "COPD", "allergies"}, nil).Once()
		id := ts.seedSession(t, summarizedSession)

		w := ts.do(t, http.MethodGet, "/api/sessions/"+id.String()+"/related", "")
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d. Body: %s", w.Code, w.Body.String())
		}
		body := decodeBody(t, w)
		topics := body["related_topics"].([]any)
		if len(topics) != 2 {
			t.Fatalf("expected 2 topics after filtering, got %v", topics)
		}
		for _, topic := range topics {
			if topic == "Asthma" {
				t.Error("current topic must not appear in suggestions")
			}
		}
		if body["state"] != string(session.StateSuggesting) {
			t.Errorf("expected state suggesting, got %v", body["state"])
		}
		ts.llm.AssertExpectations(t)
	})

	t.Run("related before summary returns 409", func(t *testing.T) {
		ts := newTestServer(t)
		id := ts.seedSession(t, nil)

		w := ts.do(t, http.MethodGet, "/api/sessions/"+id.String()+"/related", "")
		if w.Code != http.StatusConflict {
			t.Errorf("expected status 409, got %d", w.Code)
		}
	})
}

func TestResetHandler(t *testing.T) {
	ts := newTestServer(t)
	id := ts.seedSession(t, quizzedSession)

	w := ts.do(t, http.MethodPost, "/api/sessions/"+id.String()+"/reset", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d. Body: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["state"] != string(session.StateTopicEntry) {
		t.Errorf("expected state topic_entry after reset, got %v", body["state"])
	}

	stored, err := ts.deps.Sessions.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("expected session to survive reset: %v", err)
	}
	if stored.Topic != "" || len(stored.Quiz) != 0 {
		t.Error("expected reset to clear topic and quiz")
	}
}

func TestDeleteSessionHandler(t *testing.T) {
	ts := newTestServer(t)
	id := ts.seedSession(t, nil)

	w := ts.do(t, http.MethodDelete, "/api/sessions/"+id.String(), "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", w.Code)
	}

	w = ts.do(t, http.MethodGet, "/api/sessions/"+id.String(), "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 after delete, got %d", w.Code)
	}
}

func TestGetSessionHandlerHidesAnswers(t *testing.T) {
	ts := newTestServer(t)
	id := ts.seedSession(t, quizzedSession)

	w := ts.do(t, http.MethodGet, "/api/sessions/"+id.String(), "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d. Body: %s", w.Code, w.Body.String())
	}
	if bytes.Contains(w.Body.Bytes(), []byte("expected_answer")) {
		t.Error("session view must not expose expected answers")
	}
}
