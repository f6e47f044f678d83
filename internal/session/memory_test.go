package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"healthbot/internal/llm"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemory(0)
	defer store.Close()
	ctx := context.Background()

	sess, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if sess.State != StateTopicEntry {
		t.Errorf("expected new session in topic_entry, got %s", sess.State)
	}

	sess.Topic = "asthma"
	sess.Difficulty = DifficultyEasy
	sess.State = StateSummarizing
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Topic != "asthma" || got.State != StateSummarizing {
		t.Errorf("unexpected session after round trip: %+v", got)
	}
}

func TestMemoryStoreGetMissing(t *testing.T) {
	store := NewMemory(0)
	defer store.Close()

	_, err := store.Get(context.Background(), uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemory(0)
	defer store.Close()
	ctx := context.Background()

	sess, _ := store.Create(ctx)
	if err := store.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on double delete, got %v", err)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemory(0)
	defer store.Close()
	ctx := context.Background()

	sess, _ := store.Create(ctx)
	sess.Quiz = []llm.Question{{Prompt: "Q?", ExpectedAnswer: "A"}}
	store.Save(ctx, sess)

	got, _ := store.Get(ctx, sess.ID)
	got.Quiz[0].Prompt = "mutated"
	got.Topic = "mutated"

	again, _ := store.Get(ctx, sess.ID)
	if again.Quiz[0].Prompt != "Q?" || again.Topic != "" {
		t.Error("store handed out aliased state")
	}
}

func TestMemoryStoreSweepEvictsIdleSessions(t *testing.T) {
	store := NewMemory(10 * time.Millisecond)
	defer store.Close()
	ctx := context.Background()

	sess, _ := store.Create(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := store.Get(ctx, sess.ID); errors.Is(err, ErrNotFound) {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("idle session was never evicted")
}

func TestSessionReset(t *testing.T) {
	sess := New()
	id := sess.ID
	sess.Topic = "diabetes"
	sess.Summary = "some summary"
	sess.State = StateSuggesting
	sess.Quiz = []llm.Question{{Prompt: "Q?", ExpectedAnswer: "A"}}
	sess.Answers = map[int]Answer{0: {Response: "A", Correct: true}}
	sess.RelatedTopics = []string{"prediabetes"}

	sess.Reset()

	if sess.ID != id {
		t.Error("reset must keep the session id")
	}
	if sess.State != StateTopicEntry || sess.Topic != "" || sess.Summary != "" ||
		sess.Quiz != nil || sess.Answers != nil || sess.RelatedTopics != nil {
		t.Errorf("reset left residual state: %+v", sess)
	}
}

func TestSessionScore(t *testing.T) {
	sess := New()
	sess.Quiz = []llm.Question{
		{Prompt: "Q1", ExpectedAnswer: "A1"},
		{Prompt: "Q2", ExpectedAnswer: "A2"},
		{Prompt: "Q3", ExpectedAnswer: "A3"},
	}
	sess.Answers = map[int]Answer{
		0: {Correct: true},
		1: {Correct: false},
		2: {Correct: true},
	}

	score := sess.Score()
	if score.Correct != 2 || score.Total != 3 {
		t.Errorf("expected 2/3, got %d/%d", score.Correct, score.Total)
	}
	if !sess.QuizComplete() {
		t.Error("expected quiz complete")
	}
}

func TestParseDifficulty(t *testing.T) {
	for _, valid := range []string{"easy", "medium", "hard"} {
		if _, err := ParseDifficulty(valid); err != nil {
			t.Errorf("expected %q valid, got %v", valid, err)
		}
	}
	for _, invalid := range []string{"", "EASY", "expert"} {
		if _, err := ParseDifficulty(invalid); err == nil {
			t.Errorf("expected %q invalid", invalid)
		}
	}
}
