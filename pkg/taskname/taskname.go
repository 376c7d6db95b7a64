package taskname

const (
	// Audit tasks
	AuditRecord = "audit:record"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)
