package graph

// Canonical node types contributed by the MES extension. The host ontology's
// Level 0-2 types (equipment, tags, process steps) live alongside these in
// the same graph; only "tag" is named here because CCPs reference tags
// directly.
const (
	// NodeTypeMaterial is a material definition (raw, intermediate, finished).
	NodeTypeMaterial = "material"

	// NodeTypeBatch is a production batch/lot.
	NodeTypeBatch = "batch"

	// NodeTypeCCP is a critical control point.
	NodeTypeCCP = "ccp"

	// NodeTypeDeviation is an out-of-limit reading or quality exception.
	// Deviations are append-only observation nodes.
	NodeTypeDeviation = "deviation"

	// NodeTypeTag is a Level 0-2 monitoring tag referenced by CCPs.
	NodeTypeTag = "tag"

	// NodeTypeProcessStep is a process step. Batches and CCPs both anchor to
	// step nodes, which is how RCA resolves the CCPs relevant to a batch.
	NodeTypeProcessStep = "process_step"
)

// Edge types contributed by the MES extension.
const (
	// EdgeTypeConsumed connects a batch to a material it consumed.
	// Carries the consumed quantity.
	EdgeTypeConsumed = "CONSUMED"

	// EdgeTypeProduces connects a batch to the material it produces.
	// The produced material is distinct from consumed materials; this
	// asymmetry is what makes genealogy traversal directional.
	EdgeTypeProduces = "PRODUCES"

	// EdgeTypeHasDeviation connects a batch or CCP to an attached deviation.
	EdgeTypeHasDeviation = "HAS_DEVIATION"

	// EdgeTypeMonitoredBy connects a CCP to the Level 0-2 tags that
	// monitor it.
	EdgeTypeMonitoredBy = "MONITORED_BY"

	// EdgeTypeAtStep connects a batch or CCP to its process step.
	EdgeTypeAtStep = "AT_STEP"
)

// Property name constants used across node and edge attribute maps.
const (
	PropName             = "name"
	PropCategory         = "category"
	PropMaterialCategory = "material_category"
	PropUnit             = "unit"
	PropNumber           = "number"
	PropMaterial         = "material"
	PropProcessStep      = "process_step"
	PropStatus           = "status"
	PropQuantity         = "quantity"
	PropStartedAt        = "started_at"
	PropCompletedAt      = "completed_at"
	PropID               = "id"
	PropLimitMin         = "limit_min"
	PropLimitMax         = "limit_max"
	PropLimitExpr        = "limit_expr"
	PropTags             = "tags"
	PropTimestamp        = "timestamp"
	PropValue            = "value"
	PropSeverity         = "severity"
	PropNote             = "note"
)
