package dto

type ScoringConfigRequest struct {
	Tiers         []int `json:"tiers" validate:"required,min=1,dive,min=0"`
	DefaultPoints *int  `json:"default_points" validate:"required,min=0"`
}

type ScoringProfileResponse struct {
	Name          string `json:"name"`
	Tiers         []int  `json:"tiers"`
	DefaultPoints int    `json:"default_points"`
	Version       int    `json:"version"`
	UpdatedBy     string `json:"updated_by,omitempty"`
	Persisted     bool   `json:"persisted"`
}
