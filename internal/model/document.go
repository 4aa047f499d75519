package model

// Document is the whole-file JSON layout of the legacy file-backed panel
// (data.json). It is only used for import and export.
type Document struct {
	Apps     []DocumentApp     `json:"apps"`
	Settings map[string]string `json:"settings"`
}

// DocumentApp is one app inside a Document, keys inline. Legacy documents
// carry the raw SecretKey; exports carry SecretHash instead so that a dump can
// be restored without ever writing a usable secret to disk.
type DocumentApp struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	OwnerID    string       `json:"ownerId"`
	SecretKey  string       `json:"secretKey,omitempty"`
	SecretHash string       `json:"secretHash,omitempty"`
	Created    int64        `json:"created"`
	Keys       []LicenseKey `json:"keys"`
}
