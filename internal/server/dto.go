package server

import (
	"missiondir/internal/domain"
)

// Request payloads

// CreateMissionInput is the mutation input: both fields required.
type CreateMissionInput struct {
	Name        string `json:"name" example:"mars-relay"`
	Description string `json:"description" example:"Establish the Mars relay uplink"`
}

// Response payloads

// MissionOutput is the query output shape. Fields are optional so a
// partial or absent result can be represented without inventing values.
type MissionOutput struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// CreateMissionOutput is the mutation output: both fields required.
type CreateMissionOutput struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type WhoAmIResponse struct {
	ActorID    string   `json:"actor_id"`
	Scope      string   `json:"scope"`
	Source     string   `json:"source"`
	Operations []string `json:"operations"`
}

func missionOutput(m domain.Mission) MissionOutput {
	return MissionOutput{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
	}
}

func createMissionOutput(m domain.Mission) CreateMissionOutput {
	return CreateMissionOutput{
		ID:   m.ID,
		Name: m.Name,
	}
}
