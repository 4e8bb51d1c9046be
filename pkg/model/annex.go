package model

// The twelve Annex IV section keys. The set is closed: sections are
// lazily materialized for every version from exactly this list.
const (
	SectionGeneral              = "ANNEX4.GENERAL"
	SectionDevelopmentProcess   = "ANNEX4.DEVELOPMENT_PROCESS"
	SectionSystemArchitecture   = "ANNEX4.SYSTEM_ARCHITECTURE"
	SectionDataGovernance       = "ANNEX4.DATA_GOVERNANCE"
	SectionHumanOversight       = "ANNEX4.HUMAN_OVERSIGHT"
	SectionPerformanceMetrics   = "ANNEX4.PERFORMANCE_METRICS"
	SectionRiskManagement       = "ANNEX4.RISK_MANAGEMENT"
	SectionChangesLifecycle     = "ANNEX4.CHANGES_LIFECYCLE"
	SectionStandardsApplied     = "ANNEX4.STANDARDS_APPLIED"
	SectionConformityAssessment = "ANNEX4.CONFORMITY_ASSESSMENT"
	SectionPostMarketMonitoring = "ANNEX4.POST_MARKET_MONITORING"
	SectionInstructionsForUse   = "ANNEX4.INSTRUCTIONS_FOR_USE"
)

// SectionKeys lists all Annex IV section keys in their canonical order.
var SectionKeys = []string{
	SectionGeneral,
	SectionDevelopmentProcess,
	SectionSystemArchitecture,
	SectionDataGovernance,
	SectionHumanOversight,
	SectionPerformanceMetrics,
	SectionRiskManagement,
	SectionChangesLifecycle,
	SectionStandardsApplied,
	SectionConformityAssessment,
	SectionPostMarketMonitoring,
	SectionInstructionsForUse,
}

// ValidSectionKey reports whether key names one of the twelve sections.
func ValidSectionKey(key string) bool {
	_, ok := sectionRequiredFields[key]
	return ok
}

// sectionRequiredFields is the closed per-key dictionary of required field
// names used by completeness scoring.
var sectionRequiredFields = map[string][]string{
	SectionGeneral: {
		"system_name", "provider", "intended_purpose", "deployment_context", "target_users",
	},
	SectionDevelopmentProcess: {
		"development_methods", "third_party_components", "training_methodology", "validation_approach",
	},
	SectionSystemArchitecture: {
		"architecture_overview", "computational_resources", "integration_points",
	},
	SectionDataGovernance: {
		"data_sources", "data_preparation", "labelling_procedures", "bias_mitigation",
	},
	SectionHumanOversight: {
		"oversight_measures", "human_intervention_points", "operator_competence",
	},
	SectionPerformanceMetrics: {
		"accuracy_metrics", "robustness_metrics", "evaluation_results",
	},
	SectionRiskManagement: {
		"risk_identification", "risk_mitigation", "residual_risks", "testing_procedures",
	},
	SectionChangesLifecycle: {
		"change_management", "version_history",
	},
	SectionStandardsApplied: {
		"harmonised_standards", "other_specifications",
	},
	SectionConformityAssessment: {
		"assessment_procedure", "declaration_reference",
	},
	SectionPostMarketMonitoring: {
		"monitoring_plan", "incident_reporting",
	},
	SectionInstructionsForUse: {
		"user_instructions", "limitations", "maintenance_requirements",
	},
}

// RequiredFields returns the required field names for a section key. The
// returned slice must not be mutated.
func RequiredFields(key string) []string {
	return sectionRequiredFields[key]
}

// SectionWeights is the fixed per-section weights table used for the
// version-level completeness score. Sections with heavier documentation
// obligations weigh more.
var SectionWeights = map[string]float64{
	SectionGeneral:              1.5,
	SectionDevelopmentProcess:   1.0,
	SectionSystemArchitecture:   1.0,
	SectionDataGovernance:       1.5,
	SectionHumanOversight:       1.0,
	SectionPerformanceMetrics:   1.0,
	SectionRiskManagement:       1.5,
	SectionChangesLifecycle:     0.5,
	SectionStandardsApplied:     0.5,
	SectionConformityAssessment: 0.5,
	SectionPostMarketMonitoring: 1.0,
	SectionInstructionsForUse:   1.0,
}
