package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
)

// PostgresStore keeps live sessions in Postgres so they survive process
// restarts. Rows are deleted on reset or session end; nothing outlives a
// session.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	s := &PostgresStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	// Advisory lock so concurrent replicas do not race the migration.
	const lockID = 873201559

	var acquired bool
	err := s.db.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, lockID).Scan(&acquired)
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	if !acquired {
		time.Sleep(2 * time.Second)
		return nil
	}
	defer func() {
		_, _ = s.db.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, lockID)
	}()

	_, err = s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			id UUID PRIMARY KEY,
			state TEXT NOT NULL,
			topic TEXT,
			difficulty TEXT,
			summary TEXT,
			quiz JSONB,
			answers JSONB,
			related_topics TEXT[],
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context) (*Session, error) {
	sess := New()
	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT state, topic, difficulty, summary, quiz, answers, related_topics, created_at, updated_at
		FROM sessions WHERE id=$1`, id)

	sess := Session{ID: id}
	var (
		quizJSON    []byte
		answersJSON []byte
		related     []string
	)
	err := row.Scan(&sess.State, &sess.Topic, &sess.Difficulty, &sess.Summary,
		&quizJSON, &answersJSON, pq.Array(&related), &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}

	if len(quizJSON) > 0 {
		if err := json.Unmarshal(quizJSON, &sess.Quiz); err != nil {
			return nil, fmt.Errorf("failed to decode quiz for session %s: %w", id, err)
		}
	}
	if len(answersJSON) > 0 {
		if err := json.Unmarshal(answersJSON, &sess.Answers); err != nil {
			return nil, fmt.Errorf("failed to decode answers for session %s: %w", id, err)
		}
	}
	sess.RelatedTopics = related
	return &sess, nil
}

func (s *PostgresStore) Save(ctx context.Context, sess *Session) error {
	sess.UpdatedAt = time.Now().UTC()

	quizJSON, err := json.Marshal(sess.Quiz)
	if err != nil {
		return err
	}
	answersJSON, err := json.Marshal(sess.Answers)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions(id, state, topic, difficulty, summary, quiz, answers, related_topics, created_at, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
			state=excluded.state, topic=excluded.topic, difficulty=excluded.difficulty,
			summary=excluded.summary, quiz=excluded.quiz, answers=excluded.answers,
			related_topics=excluded.related_topics, updated_at=excluded.updated_at`,
		sess.ID, sess.State, sess.Topic, sess.Difficulty, sess.Summary,
		quizJSON, answersJSON, pq.Array(sess.RelatedTopics), sess.CreatedAt, sess.UpdatedAt)
	return err
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
