package errors

// Convenience functions for common error patterns

// Config errors

func ConfigNotFound(path string) *DocWikiError {
	return New(CategoryConfig, SeverityFatal, "configuration file not found").
		WithContext("path", path)
}

func ValidationFailed(field, reason string) *DocWikiError {
	return New(CategoryValidation, SeverityFatal, "validation failed").
		WithContext("field", field).
		WithContext("reason", reason)
}

// Pipeline errors

// StageFailed marks an otherwise unclassified failure of a pipeline stage.
func StageFailed(stage string, cause error) *DocWikiError {
	return Wrap(cause, CategoryInternal, SeverityFatal, "stage failed").
		WithContext("stage", stage)
}

func AcquisitionFailed(source string, cause error) *DocWikiError {
	return Wrap(cause, CategoryAcquisition, SeverityFatal, "source acquisition failed").
		WithContext("source", source)
}

func AcquisitionUnauthorized(source string, cause error) *DocWikiError {
	return Wrap(cause, CategoryAuth, SeverityFatal, "source authentication failed").
		WithContext("source", source)
}

// GenerationAttemptFailed is a single failed backend call; the engine retries it.
func GenerationAttemptFailed(nodeID string, cause error) *DocWikiError {
	err := Wrap(cause, CategoryGeneration, SeverityWarning, "generation attempt failed").
		WithContext("node_id", nodeID)
	err.Retryable = true
	return err
}

// GenerationFailed is a generation failure that is fatal for the job.
func GenerationFailed(target string, cause error) *DocWikiError {
	return Wrap(cause, CategoryGeneration, SeverityFatal, "content generation failed").
		WithContext("target", target)
}

func RetriesExhausted(nodeID string, attempts int, cause error) *DocWikiError {
	return Wrap(cause, CategoryGeneration, SeverityFatal, "generation retries exhausted").
		WithContext("node_id", nodeID).
		WithContext("attempts", attempts)
}

func PersistenceFailed(operation string, cause error) *DocWikiError {
	return Wrap(cause, CategoryPersistence, SeverityFatal, "persistence operation failed").
		WithContext("operation", operation)
}

func WorkspaceError(operation string, cause error) *DocWikiError {
	return Wrap(cause, CategoryFileSystem, SeverityFatal, "workspace operation failed").
		WithContext("operation", operation)
}

// Internal errors

func InternalError(message string, cause error) *DocWikiError {
	return Wrap(cause, CategoryInternal, SeverityFatal, message)
}
