package models

// Link is one named endpoint in a discovery document.
type Link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

// DiscoveryDocument is the root document of the IXON and LSI APIs.
type DiscoveryDocument struct {
	Links []Link `json:"links"`
}

type AccessTokenResponse struct {
	Data struct {
		SecretID  string `json:"secretId"`
		ExpiresIn int    `json:"expiresIn"`
	} `json:"data"`
}

type AuthorizationTokenResponse struct {
	Data struct {
		Token string `json:"token"`
	} `json:"data"`
}

// ExportRef selects one raw tag in an export request.
type ExportRef struct {
	Ref string `json:"ref"`
}

type ExportSelection struct {
	Raw []ExportRef `json:"raw"`
}

// ExportBody is keyed by device id, then tag id.
type ExportBody map[string]map[string]ExportSelection
