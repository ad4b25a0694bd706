package dto

// SetOverrideRequest payload for per-feature override changes. Flags maps
// flag name to desired value; true persists, false unsets.
type SetOverrideRequest struct {
	Feature string          `json:"feature"`
	Flags   map[string]bool `json:"flags"`
}

// AssignPondsRequest payload replacing a user's assigned pond list.
type AssignPondsRequest struct {
	PondIDs []string `json:"pond_ids"`
}
