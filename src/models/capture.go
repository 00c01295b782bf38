package models

import "strconv"

// MCaptureResource describes one downloadable historical feed capture.
type MCaptureResource struct {
	URL      string `json:"link"`
	Date     string `json:"date"`
	Feed     string `json:"feed"`
	Version  string `json:"version"`
	Protocol string `json:"protocol"`
	Size     string `json:"size"`
}

// SizeBytes returns the declared size, or 0 when it does not parse.
func (c MCaptureResource) SizeBytes() int64 {
	n, err := strconv.ParseInt(c.Size, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
