package constants

// Reserved group names. A SPECIFIC_SECTOR mapping may not use either of them.
const (
	GroupNameNonKLM = "Non KLM"
	GroupNameGreen  = "Green"
)

// Actor recorded in updated_by for engine-driven transitions
const SystemTransitionActor = "system_transition"

// Transition actions
const (
	TransitionDeactivated = "deactivated"
	TransitionActivated   = "activated"
)

// Transition run triggers for the transition_runs table
const (
	TransitionTriggerScheduled = "SCHEDULED"
	TransitionTriggerManual    = "MANUAL"
	TransitionTriggerSector    = "SECTOR_OVERRIDE"
)

// Transition run outcomes
const (
	TransitionRunSucceeded = "SUCCEEDED"
	TransitionRunFailed    = "FAILED"
)

// Audit actions emitted by the mapping service and transition engine
const (
	AuditActionCreate     = "mapping.create"
	AuditActionUpdate     = "mapping.update"
	AuditActionApprove    = "mapping.approve"
	AuditActionDelete     = "mapping.delete"
	AuditActionImport     = "mapping.import"
	AuditActionActivate   = "mapping.activate"
	AuditActionDeactivate = "mapping.deactivate"

	AuditResourceSectorMapping = "sector_mapping"
)

const (
	DefaultPage  = 1
	DefaultLimit = 50
	MaxLimit     = 500
)
