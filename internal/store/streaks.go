package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/missionz/internal/mission"
)

var streakColumns = []string{
	colUserID, colCurrentStreak, colLongestStreak, colTotalMissions,
	colTotalStars, colPerfectDays, colLastCompletedDate, colUpdatedAt,
}

// streakRepo implements StreakRepo with ent's SQL builder.
type streakRepo struct {
	db *sql.DB
	b  *entsql.DialectBuilder
}

func (r *streakRepo) Get(ctx context.Context, userID string) (*mission.UserStreak, error) {
	query, args := r.b.Select(streakColumns...).
		From(r.b.Table(tableStreaks)).
		Where(entsql.EQ(colUserID, userID)).
		Limit(1).
		Query()

	var (
		s         mission.UserStreak
		last      sql.NullString
		updatedAt int64
	)
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&s.UserID, &s.CurrentStreak, &s.LongestStreak, &s.TotalMissionsCompleted,
		&s.TotalStarsEarned, &s.PerfectDays, &last, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query streak %s: %w", userID, err)
	}

	if last.Valid && last.String != "" {
		d, err := civil.ParseDate(last.String)
		if err != nil {
			return nil, fmt.Errorf("parse last completed date %q: %w", last.String, err)
		}
		s.LastCompletedDate = &d
	}
	s.UpdatedAt = time.UnixMilli(updatedAt)
	return &s, nil
}

func (r *streakRepo) Insert(ctx context.Context, s *mission.UserStreak) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}
	query, args := r.b.Insert(tableStreaks).
		Columns(streakColumns...).
		Values(
			s.UserID, s.CurrentStreak, s.LongestStreak, s.TotalMissionsCompleted,
			s.TotalStarsEarned, s.PerfectDays, nullDate(s.LastCompletedDate), s.UpdatedAt.UnixMilli(),
		).
		Query()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert streak %s: %w", s.UserID, err)
	}
	return nil
}

func (r *streakRepo) Update(ctx context.Context, s *mission.UserStreak) error {
	s.UpdatedAt = time.Now()
	query, args := r.b.Update(tableStreaks).
		Set(colCurrentStreak, s.CurrentStreak).
		Set(colLongestStreak, s.LongestStreak).
		Set(colTotalMissions, s.TotalMissionsCompleted).
		Set(colTotalStars, s.TotalStarsEarned).
		Set(colPerfectDays, s.PerfectDays).
		Set(colLastCompletedDate, nullDate(s.LastCompletedDate)).
		Set(colUpdatedAt, s.UpdatedAt.UnixMilli()).
		Where(entsql.EQ(colUserID, s.UserID)).
		Query()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update streak %s: %w", s.UserID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update streak %s: no row", s.UserID)
	}
	return nil
}

func nullDate(d *civil.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}
