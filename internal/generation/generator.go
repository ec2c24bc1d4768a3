// Package generation asks a mission generator for a day's missions under
// a time box and maps its failures onto typed errors.
package generation

import (
	"context"

	"cloud.google.com/go/civil"

	"github.com/abhisek/missionz/internal/mission"
)

// Request is the generation call payload.
type Request struct {
	UserID           string     `json:"userId"`
	LocalDate        civil.Date `json:"localDate"`
	AddSingleMission bool       `json:"addSingleMission"`
}

// Response is the generation call result. A service that answers with
// Success false reports the reason in Error.
type Response struct {
	Success  bool              `json:"success"`
	Missions []mission.Mission `json:"missions,omitempty"`
	Mission  *mission.Mission  `json:"mission,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// All returns every mission carried by the response.
func (r *Response) All() []mission.Mission {
	if r == nil {
		return nil
	}
	out := append([]mission.Mission(nil), r.Missions...)
	if r.Mission != nil {
		out = append(out, *r.Mission)
	}
	return out
}

// Generator creates missions for one date.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}
