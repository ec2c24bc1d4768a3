package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/missionz/internal/mission"
)

var missionColumns = []string{
	colID, colUserID, colMissionDate, colSkillName, colDifficulty, colMissionOption,
	colStatus, colTotalQuestions, colCompletedQuestions, colCorrectAnswers,
	colTimeSpentSeconds, colStarsEarned, colCompletedAt, colCanRetry,
	colQuestionAttempts, colCreatedAt,
}

// missionRepo implements MissionRepo with ent's SQL builder.
type missionRepo struct {
	db *sql.DB
	b  *entsql.DialectBuilder
}

func (r *missionRepo) Get(ctx context.Context, userID, id string) (*mission.Mission, error) {
	query, args := r.b.Select(missionColumns...).
		From(r.b.Table(tableMissions)).
		Where(entsql.And(
			entsql.EQ(colID, id),
			entsql.EQ(colUserID, userID),
		)).
		Limit(1).
		Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query mission %s: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("query mission %s: %w", id, err)
		}
		return nil, &mission.NotFoundError{MissionID: id}
	}
	m, err := scanMission(rows)
	if err != nil {
		return nil, fmt.Errorf("scan mission %s: %w", id, err)
	}
	return m, nil
}

func (r *missionRepo) ListRange(ctx context.Context, userID string, from, to civil.Date) ([]mission.Mission, error) {
	query, args := r.b.Select(missionColumns...).
		From(r.b.Table(tableMissions)).
		Where(entsql.And(
			entsql.EQ(colUserID, userID),
			entsql.GTE(colMissionDate, from.String()),
			entsql.LTE(colMissionDate, to.String()),
		)).
		OrderBy(entsql.Asc(colMissionDate), entsql.Asc(colMissionOption)).
		Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list missions %s..%s: %w", from, to, err)
	}
	defer rows.Close()

	var out []mission.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mission: %w", err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list missions: %w", err)
	}
	return out, nil
}

func (r *missionRepo) Insert(ctx context.Context, m *mission.Mission) error {
	attempts, err := encodeAttempts(m.QuestionAttempts)
	if err != nil {
		return err
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if m.Status == "" {
		m.Status = mission.StatusPending
	}

	query, args := r.b.Insert(tableMissions).
		Columns(missionColumns...).
		Values(
			m.ID, m.UserID, m.MissionDate.String(), m.SkillName, string(m.Difficulty), m.MissionOption,
			string(m.Status), m.TotalQuestions, m.CompletedQuestions, m.CorrectAnswers,
			m.TimeSpentSeconds, m.StarsEarned, nullMillis(m.CompletedAt), m.CanRetry,
			attempts, m.CreatedAt.UnixMilli(),
		).
		Query()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert mission %s: %w", m.ID, err)
	}
	return nil
}

func (r *missionRepo) UpdateCompletion(ctx context.Context, userID, id string, c mission.Completion) (int64, error) {
	attempts, err := encodeAttempts(c.QuestionAttempts)
	if err != nil {
		return 0, err
	}

	query, args := r.b.Update(tableMissions).
		Set(colStatus, string(c.Status)).
		Set(colCompletedQuestions, c.CompletedQuestions).
		Set(colCorrectAnswers, c.CorrectAnswers).
		Set(colTimeSpentSeconds, c.TimeSpentSeconds).
		Set(colStarsEarned, c.StarsEarned).
		Set(colCompletedAt, c.CompletedAt.UnixMilli()).
		Set(colQuestionAttempts, attempts).
		Where(entsql.And(
			entsql.EQ(colID, id),
			entsql.EQ(colUserID, userID),
			entsql.EQ(colStatus, string(mission.StatusPending)),
		)).
		Query()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("update mission %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update mission %s: rows affected: %w", id, err)
	}
	return n, nil
}

func (r *missionRepo) SetStatus(ctx context.Context, userID, id string, status mission.Status) (int64, error) {
	query, args := r.b.Update(tableMissions).
		Set(colStatus, string(status)).
		Where(entsql.And(
			entsql.EQ(colID, id),
			entsql.EQ(colUserID, userID),
			entsql.EQ(colStatus, string(mission.StatusPending)),
		)).
		Query()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("set mission %s status: %w", id, err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMission(s rowScanner) (*mission.Mission, error) {
	var (
		m           mission.Mission
		date        string
		difficulty  string
		status      string
		completedAt sql.NullInt64
		attempts    sql.NullString
		createdAt   int64
	)
	err := s.Scan(
		&m.ID, &m.UserID, &date, &m.SkillName, &difficulty, &m.MissionOption,
		&status, &m.TotalQuestions, &m.CompletedQuestions, &m.CorrectAnswers,
		&m.TimeSpentSeconds, &m.StarsEarned, &completedAt, &m.CanRetry,
		&attempts, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	d, err := civil.ParseDate(date)
	if err != nil {
		return nil, fmt.Errorf("parse mission date %q: %w", date, err)
	}
	m.MissionDate = d
	m.Difficulty = mission.Difficulty(difficulty)
	m.Status = mission.Status(status)
	m.CreatedAt = time.UnixMilli(createdAt)
	if completedAt.Valid {
		t := time.UnixMilli(completedAt.Int64)
		m.CompletedAt = &t
	}
	if attempts.Valid && attempts.String != "" {
		if err := json.Unmarshal([]byte(attempts.String), &m.QuestionAttempts); err != nil {
			return nil, fmt.Errorf("decode question attempts: %w", err)
		}
	}
	return &m, nil
}

func encodeAttempts(a []mission.QuestionAttempt) (any, error) {
	if a == nil {
		return nil, nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode question attempts: %w", err)
	}
	return string(b), nil
}

func nullMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

// IsNotFound reports whether err is a missing-mission error.
func IsNotFound(err error) bool {
	var nf *mission.NotFoundError
	return errors.As(err, &nf)
}
