package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricFiringDelivered = "FiringDelivered"
	MetricFiringDropped   = "FiringDropped"
	MetricFiringFailed    = "FiringFailed"
	MetricDeliveryLatency = "DeliveryLatency"
	MetricFiringQueueLag  = "FiringQueueLag"
	MetricAPILatency      = "APILatency"
	MetricSubjectsArmed   = "SubjectsArmed"

	// Dimension Keys
	DimReason   = "Reason"
	DimMethod   = "Method"
	DimEndpoint = "Endpoint"
	DimStatus   = "Status"

	// Metric Namespace
	MetricNamespace = "Occasions"
)
