package assemble

import "fmt"

// SourceError reports a single failure during assembly, with enough
// location information for a caller to underline the offending line.
type SourceError struct {
	Line    int
	Column  int
	Message string
}

func (e *SourceError) Error() string {
	if e.Line <= 0 {
		return e.Message
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

func errf(line int, format string, args ...interface{}) *SourceError {
	return &SourceError{Line: line, Message: fmt.Sprintf(format, args...)}
}
