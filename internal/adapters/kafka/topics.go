package kafka

// Topic definitions for Kafka event streaming
const (
	// TopicAnalysisCompleted carries one message per analyzed ticker, keyed by ticker
	TopicAnalysisCompleted = "options.analysis.completed"

	// TopicBatchCompleted carries one summary message per batch run, keyed by run id
	TopicBatchCompleted = "options.batch.completed"
)
