package models

import (
	"fmt"
	"strings"
)

// UnknownCompany is the fallback when a profile text has no name line.
const UnknownCompany = "Unknown Company"

// ProfileTextField extracts the value of a "Prefix: value" line from a
// canonical profile text. Returns "" when no such line exists.
func ProfileTextField(profileText, prefix string) string {
	for _, line := range strings.Split(profileText, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, prefix+":"); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

// CompanyName extracts the provider name from the profile text.
func (p ProfileMatch) CompanyName() string {
	if name := ProfileTextField(p.ProfileText, "Company Name"); name != "" {
		return name
	}
	return UnknownCompany
}

// Country extracts the provider country from the profile text.
func (p ProfileMatch) Country() string {
	return ProfileTextField(p.ProfileText, "Country")
}

// ProviderType extracts the provider type from the profile text.
func (p ProfileMatch) ProviderType() string {
	return ProfileTextField(p.ProfileText, "Provider Type")
}

// DeepLink builds the portal URL for this profile.
func (p ProfileMatch) DeepLink(portalBase string) string {
	return fmt.Sprintf("%s/profiles/%d", strings.TrimRight(portalBase, "/"), p.ProfileID)
}
