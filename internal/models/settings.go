package models

// DemoSettings mirrors the demo block of the settings payload.
type DemoSettings struct {
	TeamID  string `json:"team_id"`
	Enabled bool   `json:"enabled"`
	Started string `json:"started"`
}

// Settings is the server connection configuration returned by the backend.
type Settings struct {
	Address string       `json:"address"`
	Header  string       `json:"header"`
	Secret  string       `json:"secret"`
	Demo    DemoSettings `json:"demo"`
}

// SettingsRequest is the save-settings request body.
type SettingsRequest struct {
	BoardID string `json:"board_id"`
	Address string `json:"address"`
	Header  string `json:"header"`
	Secret  string `json:"secret"`
	Demo    bool   `json:"demo"`
}
