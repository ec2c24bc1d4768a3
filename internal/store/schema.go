package store

import (
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// Table and column names.
const (
	tableMissions = "missions"
	tableStreaks  = "user_streaks"
	tableKV       = "kv_entries"

	colID                 = "id"
	colUserID             = "user_id"
	colMissionDate        = "mission_date"
	colSkillName          = "skill_name"
	colDifficulty         = "difficulty"
	colMissionOption      = "mission_option"
	colStatus             = "status"
	colTotalQuestions     = "total_questions"
	colCompletedQuestions = "completed_questions"
	colCorrectAnswers     = "correct_answers"
	colTimeSpentSeconds   = "time_spent_seconds"
	colStarsEarned        = "stars_earned"
	colCompletedAt        = "completed_at"
	colCanRetry           = "can_retry"
	colQuestionAttempts   = "question_attempts"
	colCreatedAt          = "created_at"

	colCurrentStreak     = "current_streak"
	colLongestStreak     = "longest_streak"
	colTotalMissions     = "total_missions_completed"
	colTotalStars        = "total_stars_earned"
	colPerfectDays       = "perfect_days"
	colLastCompletedDate = "last_completed_date"
	colUpdatedAt         = "updated_at"

	colKey   = "key"
	colValue = "value"
)

var (
	// MissionsColumns holds the columns for the "missions" table.
	MissionsColumns = []*schema.Column{
		{Name: colID, Type: field.TypeString, Size: 36},
		{Name: colUserID, Type: field.TypeString},
		{Name: colMissionDate, Type: field.TypeString, Size: 10},
		{Name: colSkillName, Type: field.TypeString},
		{Name: colDifficulty, Type: field.TypeString, Default: "medium"},
		{Name: colMissionOption, Type: field.TypeInt, Default: 1},
		{Name: colStatus, Type: field.TypeString, Default: "pending"},
		{Name: colTotalQuestions, Type: field.TypeInt},
		{Name: colCompletedQuestions, Type: field.TypeInt, Default: 0},
		{Name: colCorrectAnswers, Type: field.TypeInt, Default: 0},
		{Name: colTimeSpentSeconds, Type: field.TypeInt, Default: 0},
		{Name: colStarsEarned, Type: field.TypeInt, Default: 0},
		{Name: colCompletedAt, Type: field.TypeInt64, Nullable: true},
		{Name: colCanRetry, Type: field.TypeBool, Default: true},
		{Name: colQuestionAttempts, Type: field.TypeString, Size: 1 << 20, Nullable: true},
		{Name: colCreatedAt, Type: field.TypeInt64},
	}
	// MissionsTable holds the schema information for the "missions" table.
	MissionsTable = &schema.Table{
		Name:       tableMissions,
		Columns:    MissionsColumns,
		PrimaryKey: []*schema.Column{MissionsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "mission_user_id_mission_date",
				Unique:  false,
				Columns: []*schema.Column{MissionsColumns[1], MissionsColumns[2]},
			},
		},
	}

	// UserStreaksColumns holds the columns for the "user_streaks" table.
	UserStreaksColumns = []*schema.Column{
		{Name: colUserID, Type: field.TypeString},
		{Name: colCurrentStreak, Type: field.TypeInt, Default: 0},
		{Name: colLongestStreak, Type: field.TypeInt, Default: 0},
		{Name: colTotalMissions, Type: field.TypeInt, Default: 0},
		{Name: colTotalStars, Type: field.TypeInt, Default: 0},
		{Name: colPerfectDays, Type: field.TypeInt, Default: 0},
		{Name: colLastCompletedDate, Type: field.TypeString, Size: 10, Nullable: true},
		{Name: colUpdatedAt, Type: field.TypeInt64},
	}
	// UserStreaksTable holds the schema information for the "user_streaks" table.
	UserStreaksTable = &schema.Table{
		Name:       tableStreaks,
		Columns:    UserStreaksColumns,
		PrimaryKey: []*schema.Column{UserStreaksColumns[0]},
	}

	// KVEntriesColumns holds the columns for the "kv_entries" table.
	KVEntriesColumns = []*schema.Column{
		{Name: colKey, Type: field.TypeString},
		{Name: colValue, Type: field.TypeBytes},
		{Name: colUpdatedAt, Type: field.TypeInt64},
	}
	// KVEntriesTable holds the schema information for the "kv_entries" table.
	KVEntriesTable = &schema.Table{
		Name:       tableKV,
		Columns:    KVEntriesColumns,
		PrimaryKey: []*schema.Column{KVEntriesColumns[0]},
	}

	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		MissionsTable,
		UserStreaksTable,
		KVEntriesTable,
	}
)
