package entity

// SetupRequest optionally carries credentials to install before the setup.
type SetupRequest struct {
	Portal         string `json:"portal,omitempty"`
	ClientEndpoint string `json:"clientEndpoint,omitempty"`
	AccessToken    string `json:"accessToken,omitempty"`
	RefreshToken   string `json:"refreshToken,omitempty"`
	ConnectorID    string `json:"connectorId,omitempty"`
	Name           string `json:"name,omitempty"`
	LineID         string `json:"lineId,omitempty"`
}

type SetupStep struct {
	Name  string `json:"name"`
	Ok    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type SetupResult struct {
	Ok          bool        `json:"ok"`
	Portal      string      `json:"portal"`
	ConnectorID string      `json:"connectorId"`
	Handler     string      `json:"handler"`
	Steps       []SetupStep `json:"steps"`
}
