package iex

import "stock-cache/src/models"

const (
	SupportedFeed     = "TOPS"
	SupportedProtocol = "IEXTP1"
	SupportedVersion  = "1.6"
)

// IsSupported reports whether this package can decode the described capture.
func IsSupported(feed, protocol, version string) bool {
	return feed == SupportedFeed && protocol == SupportedProtocol && version == SupportedVersion
}

// SelectCapture picks the largest supported capture. The bool is false when
// none qualifies.
func SelectCapture(candidates []models.MCaptureResource) (models.MCaptureResource, bool) {
	var best models.MCaptureResource
	found := false
	for _, c := range candidates {
		if !IsSupported(c.Feed, c.Protocol, c.Version) {
			continue
		}
		if !found || c.SizeBytes() >= best.SizeBytes() {
			best = c
			found = true
		}
	}
	return best, found
}
