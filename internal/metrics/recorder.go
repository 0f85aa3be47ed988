package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultSkipped  ResultLabel = "skipped"
	ResultFatal    ResultLabel = "fatal"
	ResultCanceled ResultLabel = "canceled"
)

// Recorder defines observability hooks for jobs, stages and generation calls.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	ObserveJobDuration(d time.Duration)
	IncJobOutcome(status string)
	ObserveGenerationDuration(model string, d time.Duration, success bool)
	IncGenerationRetry()
	IncGenerationRetriesExhausted()
	SetGenerationInFlight(n int)
	IncJobsRequeued(n int)
	// IncJobRecordFailure counts final statuses that could not be written;
	// such jobs stay Processing until their lease expires.
	IncJobRecordFailure(status string)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration)            {}
func (NoopRecorder) IncStageResult(string, ResultLabel)                    {}
func (NoopRecorder) ObserveJobDuration(time.Duration)                      {}
func (NoopRecorder) IncJobOutcome(string)                                  {}
func (NoopRecorder) ObserveGenerationDuration(string, time.Duration, bool) {}
func (NoopRecorder) IncGenerationRetry()                                   {}
func (NoopRecorder) IncGenerationRetriesExhausted()                        {}
func (NoopRecorder) SetGenerationInFlight(int)                             {}
func (NoopRecorder) IncJobsRequeued(int)                                   {}
func (NoopRecorder) IncJobRecordFailure(string)                            {}
