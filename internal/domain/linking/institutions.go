package linking

import (
	"fmt"
	"strings"
)

// InstitutionIDPrefix is the required prefix for provider institution ids.
// Manually entered ids that do not carry it are rejected before any
// provider call is made.
const InstitutionIDPrefix = "fcinst_"

// Institution is a linkable financial institution from the provider catalog.
type Institution struct {
	ID       string `json:"id"`
	BCID     string `json:"bcId"`
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl"`
}

// TestInstitutions is the fixed sandbox catalog. Live mode has no curated
// list; users enter an institution id manually.
var TestInstitutions = []Institution{
	{
		ID:       "fcinst_Qn1a7A4KhL42se",
		BCID:     "bcinst_Jg18xEfPHevfHP",
		Name:     "Test Institution",
		ImageURL: "https://b.stripecdn.com/connections-statics-srv/assets/BrandIcon--testmodeGreenBank-4x.png",
	},
	{
		ID:       "fcinst_Qn1a6jqpI0Gb84",
		BCID:     "bcinst_LLQZzmKZMjl0j0",
		Name:     "Test OAuth Institution",
		ImageURL: "https://b.stripecdn.com/connections-statics-srv/assets/BrandIcon--testmodeBlueExternal-4x.png",
	},
	{
		ID:       "fcinst_Qn1aly9zRRkWP1",
		BCID:     "bcinst_LLQZzmKZMjl0jf",
		Name:     "Ownership accounts",
		ImageURL: "https://b.stripecdn.com/connections-statics-srv/assets/BrandIcon--testmodeBlueFingerprint-4x.png",
	},
	{
		ID:       "fcinst_Qn1aNn8l07746s",
		BCID:     "bcinst_RJnR88CE2nmpVF",
		Name:     "Sandbox Bank (OAuth)",
		ImageURL: "https://b.stripecdn.com/connections-statics-srv/assets/BrandIcon--testmodeYellowSandbox-4x.png",
	},
	{
		ID:       "fcinst_Qn1aVTBBJ4ubmQ",
		BCID:     "bcinst_RpAh7cQLyntawr",
		Name:     "Sandbox Bank (Non-OAuth)",
		ImageURL: "https://b.stripecdn.com/connections-statics-srv/assets/BrandIcon--testmodeRedSandbox-4x.png",
	},
	{
		ID:       "fcinst_Qn1aporTsLJQH4",
		BCID:     "bcinst_JqZfPE8Ckm8kKU",
		Name:     "Invalid Payment Accounts",
		ImageURL: "https://b.stripecdn.com/connections-statics-srv/assets/BrandIcon--testmodeRedMoney-4x.png",
	},
	{
		ID:       "fcinst_Qn1a8Ynz2Il9zF",
		BCID:     "bcinst_Job0h4OGUcHbR3",
		Name:     "Down bank (unscheduled)",
		ImageURL: "https://b.stripecdn.com/connections-statics-srv/assets/BrandIcon--testmodeRedBankLightning-4x.png",
	},
	{
		ID:       "fcinst_Qn1aOU8Z6Qsvpn",
		BCID:     "bcinst_Jq8pfHc6UyAuCs",
		Name:     "Down Bank (Error)",
		ImageURL: "https://b.stripecdn.com/connections-statics-srv/assets/BrandIcon--testmodeOrangeBankLightning-4x.png",
	},
	{
		ID:       "fcinst_QH6l5zmRXAepbP",
		BCID:     "bcinst_LLQZ46ou9SRTNv",
		Name:     "Down Bank (scheduled)",
		ImageURL: "https://b.stripecdn.com/connections-statics-srv/assets/BrandIcon--stripe-4x.png",
	},
	{
		ID:       "fcinst_Qn1aC9A7bD2EED",
		BCID:     "bcinst_JoazV8C7lSyXt4",
		Name:     "Down Bank (scheduled)",
		ImageURL: "https://b.stripecdn.com/connections-statics-srv/assets/BrandIcon--stripe-4x.png",
	},
}

// LiveInstitutions is intentionally empty.
var LiveInstitutions = []Institution{}

// InstitutionsFor returns the catalog for the given environment partition.
func InstitutionsFor(testMode bool) []Institution {
	if testMode {
		return TestInstitutions
	}
	return LiveInstitutions
}

// ValidateInstitutionID checks the fixed prefix format for manually entered
// institution ids.
func ValidateInstitutionID(id string) error {
	if strings.TrimSpace(id) == "" {
		return &ValidationError{Field: "institutionId", Reason: "institution id is required"}
	}
	if !strings.HasPrefix(id, InstitutionIDPrefix) {
		return &ValidationError{
			Field:  "institutionId",
			Reason: fmt.Sprintf("institution id must start with %q", InstitutionIDPrefix),
		}
	}
	return nil
}
