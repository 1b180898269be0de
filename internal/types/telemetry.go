package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricVerdict          = "Verdict"
	MetricCommandIssued    = "CommandIssued"
	MetricCommandFailed    = "CommandFailed"
	MetricIngestLag        = "IngestLag"
	MetricSinkWriteFailure = "SinkWriteFailure"

	// Dimension Keys
	DimEquipment = "Equipment"
	DimRule      = "Rule"
	DimColor     = "Color"
	DimChannel   = "Channel"

	// Metric Namespace
	MetricNamespace = "AIRCx"
)
