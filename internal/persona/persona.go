// Package persona tracks the user's inferred or confirmed professional role
// and drives the confirmation/correction flow around it.
package persona

// ID identifies a professional role the coach tailors answers for.
type ID string

const (
	QualityCoach       ID = "QUALITY_COACH"
	EngineeringManager ID = "ENGINEERING_MANAGER"
	DeliveryLead       ID = "DELIVERY_LEAD"
	CEOExecutive       ID = "CEO_EXECUTIVE"
	SoftwareEngineer   ID = "SOFTWARE_ENGINEER"
	TestLead           ID = "TEST_LEAD"
	Other              ID = "OTHER"
)

// Correction reasons recorded with a persona switch, so the backend can
// tell card-driven confirmations apart from manual changes.
const (
	ReasonConfirmationCard = "confirmation_card"
	ReasonManualSwitch     = "manual_switch"
)

var displayNames = map[ID]string{
	QualityCoach:       "Quality Coach",
	EngineeringManager: "Engineering Manager",
	DeliveryLead:       "Delivery Lead",
	CEOExecutive:       "CEO/Executive",
	SoftwareEngineer:   "Software Engineer",
	TestLead:           "Test Lead",
	Other:              "Other",
}

// All returns the selectable personas in display order.
func All() []ID {
	return []ID{
		QualityCoach,
		EngineeringManager,
		DeliveryLead,
		CEOExecutive,
		SoftwareEngineer,
		TestLead,
		Other,
	}
}

// Valid reports whether id is a known persona.
func (id ID) Valid() bool {
	_, ok := displayNames[id]
	return ok
}

// DisplayName returns the human-readable role name. Unknown ids fall back to
// the raw identifier so a newer server value still renders.
func (id ID) DisplayName() string {
	if name, ok := displayNames[id]; ok {
		return name
	}
	return string(id)
}
