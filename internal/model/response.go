package model

// Result is the envelope used by mutating endpoints. Failures carry Error and
// are still returned with HTTP 200 unless they are authentication or server
// errors.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ErrorResponse is the body of 401 responses from the credential guard.
type ErrorResponse struct {
	Error string `json:"error"`
}

// AppCreatedResponse is returned by POST /api/apps/create.
type AppCreatedResponse struct {
	Success bool            `json:"success"`
	App     *AppCredentials `json:"app"`
}

// AppListResponse is returned by GET /api/apps.
type AppListResponse struct {
	Success bool         `json:"success"`
	Apps    []AppSummary `json:"apps"`
}

// KeyGeneratedResponse is returned by POST /api/keys/generate.
type KeyGeneratedResponse struct {
	Success bool   `json:"success"`
	Key     string `json:"key"`
	Expires int64  `json:"expires"`
	Note    string `json:"note"`
}

// KeyListResponse is returned by GET /api/keys.
type KeyListResponse struct {
	Success bool      `json:"success"`
	Keys    []KeyView `json:"keys"`
}

// BanResponse is returned by POST /api/keys/ban.
type BanResponse struct {
	Success bool `json:"success"`
	Banned  bool `json:"banned"`
}

// DeleteResponse is returned by DELETE /api/keys/{key}.
type DeleteResponse struct {
	Success bool `json:"success"`
	Deleted bool `json:"deleted"`
}

// ExtendResponse is returned by POST /api/keys/extend.
type ExtendResponse struct {
	Success bool  `json:"success"`
	Expires int64 `json:"expires"`
}

// SettingsResponse is returned by GET and POST /api/settings.
type SettingsResponse struct {
	Success  bool     `json:"success"`
	Settings Settings `json:"settings"`
}
