package enums

import "fmt"

// Platform identifies an external advertising or analytics platform.
type Platform string

const (
	PlatformSearchAds Platform = "search_ads"
	PlatformSocialAds Platform = "social_ads"
	PlatformAnalytics Platform = "analytics"
)

var validPlatforms = []Platform{
	PlatformSearchAds,
	PlatformSocialAds,
	PlatformAnalytics,
}

// String implements fmt.Stringer.
func (p Platform) String() string {
	return string(p)
}

// IsValid reports whether the value is a known Platform.
func (p Platform) IsValid() bool {
	for _, candidate := range validPlatforms {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePlatform converts raw input into a Platform.
func ParsePlatform(value string) (Platform, error) {
	for _, candidate := range validPlatforms {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid platform %q", value)
}

// Platforms returns every known platform in stable order.
func Platforms() []Platform {
	out := make([]Platform, len(validPlatforms))
	copy(out, validPlatforms)
	return out
}
