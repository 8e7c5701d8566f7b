package domain

// Clinical category tags a classifier may assign to a page.
const (
	TagClinicalDocumentation = "clinical_documentation"
	TagInvestigations        = "investigations"
	TagTreatment             = "treatment"
	TagAdministrative        = "administrative"
	TagOther                 = "other"
)

// KnownTags lists the accepted category tags.
var KnownTags = []string{
	TagClinicalDocumentation,
	TagInvestigations,
	TagTreatment,
	TagAdministrative,
	TagOther,
}

// PatientIdentity holds the identity fields recognised on a page.
// Any field may be empty when the page does not show it.
type PatientIdentity struct {
	Name       string `json:"name"`
	Identifier string `json:"identifier"`
	Age        string `json:"age"`
	Gender     string `json:"gender"`
}

// StructuredRecord is the classifier's output for one page.
type StructuredRecord struct {
	Identity PatientIdentity `json:"identity"`
	Tags     []string        `json:"tags"`
	Content  string          `json:"content"`
}
