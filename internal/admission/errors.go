package admission

import "errors"

var (
	ErrSchema        = errors.New("SCHEMA_INVALID")
	ErrBadSignature  = errors.New("BAD_SIGNATURE")
	ErrPromptUnknown = errors.New("PROMPT_UNKNOWN")
	ErrNoOpenCycle   = errors.New("NO_OPEN_CYCLE")
	ErrDuplicate     = errors.New("DUPLICATE_SUBMISSION")
	ErrRateLimited   = errors.New("RATE_LIMITED")
)
