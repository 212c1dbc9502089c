package models

// Eligibility error codes carried on ValidationIssue.Code. These are stable
// identifiers callers can branch on.
const (
	IssueCodeMissingStage            = "MISSING_REQUIRED_STAGE"
	IssueCodeStageChainIncomplete    = "STAGE_CHAIN_INCOMPLETE"
	IssueCodeInsufficientInspections = "INSUFFICIENT_INSPECTIONS"
	IssueCodeInsufficientPhotos      = "INSUFFICIENT_PHOTOS"
	IssueCodeInsufficientInputs      = "INSUFFICIENT_ORGANIC_INPUTS"
	IssueCodeMissingSatelliteReport  = "MISSING_SATELLITE_REPORT"
	IssueCodeSatelliteNotEligible    = "SATELLITE_NOT_ELIGIBLE"
	IssueCodeUnknownGrade            = "UNKNOWN_GRADE"
)

// ValidationIssue is one reason a certificate grade cannot be issued. For
// numeric minimums, Required and Actual carry the threshold and the observed
// count.
type ValidationIssue struct {
	Code     string `json:"code"`
	Field    string `json:"field"`
	Message  string `json:"message"`
	Required *int   `json:"required,omitempty"`
	Actual   *int   `json:"actual,omitempty"`
}

// ValidationResult is the outcome of an eligibility evaluation. Errors block
// issuance; warnings do not.
type ValidationResult struct {
	Valid    bool              `json:"is_valid"`
	Errors   []ValidationIssue `json:"errors"`
	Warnings []string          `json:"warnings"`
}

// AddError appends a blocking issue and marks the result invalid.
func (r *ValidationResult) AddError(issue ValidationIssue) {
	r.Valid = false
	r.Errors = append(r.Errors, issue)
}

// AddWarning appends a non-blocking note.
func (r *ValidationResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// EvidenceCounts is the EvidenceAggregator's summary of recent evidence for a
// field or batch within a trailing window.
type EvidenceCounts struct {
	Inspections           int `json:"inspections"`
	Photos                int `json:"photos"`
	VerifiedOrganicInputs int `json:"verified_organic_inputs"`
}
