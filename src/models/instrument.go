package models

// MInstrument is a tradable security. ID is assigned by storage.
type MInstrument struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}
