package rules

// Metrics receives outcomes of rule processing.
type Metrics interface {
	ActivationFinished(ruleName string, err error)
	ArchiveFinished(ruleName string, err error)
	ArchivePruned(ruleName string)
	ScheduledJobs(count int)
}

type noopMetrics struct{}

func (noopMetrics) ActivationFinished(string, error) {}
func (noopMetrics) ArchiveFinished(string, error)    {}
func (noopMetrics) ArchivePruned(string)             {}
func (noopMetrics) ScheduledJobs(int)                {}
