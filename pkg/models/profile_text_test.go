package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const sampleProfile = `Company Name: Gulf Tax Advisors
Country: UAE
Provider Type: Tax Consultancy
Services: VAT registration, corporate tax filings
About: Boutique firm serving startups in Dubai free zones.`

func TestProfileTextField(t *testing.T) {
	assert.Equal(t, "Gulf Tax Advisors", ProfileTextField(sampleProfile, "Company Name"))
	assert.Equal(t, "UAE", ProfileTextField(sampleProfile, "Country"))
	assert.Equal(t, "Tax Consultancy", ProfileTextField(sampleProfile, "Provider Type"))
	assert.Equal(t, "", ProfileTextField(sampleProfile, "Website"))
	assert.Equal(t, "", ProfileTextField("", "Country"))
}

func TestProfileMatchAccessors(t *testing.T) {
	match := ProfileMatch{ProfileID: 42, ProfileText: sampleProfile}

	assert.Equal(t, "Gulf Tax Advisors", match.CompanyName())
	assert.Equal(t, "UAE", match.Country())
	assert.Equal(t, "Tax Consultancy", match.ProviderType())
	assert.Equal(t, "https://growbal.io/profiles/42", match.DeepLink("https://growbal.io/"))
}

func TestCompanyNameFallback(t *testing.T) {
	match := ProfileMatch{ProfileText: "Country: UAE"}
	assert.Equal(t, UnknownCompany, match.CompanyName())
}
