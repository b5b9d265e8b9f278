package jobModel

import "errors"

var (
	ErrPrerequisiteMissing = errors.New("prerequisite missing")
	ErrEmbedding           = errors.New("embedding failed")
	ErrLLMInvocation       = errors.New("llm invocation failed")
	ErrUnsupportedFormat   = errors.New("unsupported document format")
	ErrAlreadyProcessing   = errors.New("stage already processing")
	ErrInvalidTransition   = errors.New("invalid stage status transition")
	ErrUnknownAnalysisType = errors.New("unknown analysis type")
	ErrStageTimedOut       = errors.New("stage timed out")
)

// Retryable reports whether a stage failure may succeed on a later attempt.
// Missing inputs and unreadable formats will not fix themselves.
func Retryable(err error) bool {
	return !errors.Is(err, ErrPrerequisiteMissing) &&
		!errors.Is(err, ErrUnsupportedFormat) &&
		!errors.Is(err, ErrUnknownAnalysisType)
}
