package mq

// Routing keys on the events exchange.
const (
	RoutingPipelineRequested = "pipeline.requested"
	RoutingPipelineStarted   = "pipeline.started"
	RoutingPipelineCompleted = "pipeline.completed"
	RoutingPipelineFailed    = "pipeline.failed"
	RoutingRuleCreated       = "rule.created"
	RoutingRuleDeleted       = "rule.deleted"
)
