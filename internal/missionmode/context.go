package missionmode

import "context"

type contextKey string

const (
	missionKey contextKey = "mission_id"
	catchUpKey contextKey = "mission_catch_up"
)

// WithMission marks the context as running inside mission mode for id.
func WithMission(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, missionKey, id)
}

// WithCatchUp marks the mission in the context as a late completion.
func WithCatchUp(ctx context.Context) context.Context {
	return context.WithValue(ctx, catchUpKey, true)
}

// MissionFrom extracts the mission id from the context.
func MissionFrom(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(missionKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// CatchUpFrom reports whether the context marks a late completion.
func CatchUpFrom(ctx context.Context) bool {
	v, _ := ctx.Value(catchUpKey).(bool)
	return v
}
