package genome

import "fmt"

// UnknownGenomeError is returned when a genome id has no configured source.
type UnknownGenomeError struct {
	Genome    string
	Available []string
}

func (e *UnknownGenomeError) Error() string {
	return fmt.Sprintf("genome %q not configured (available: %v)", e.Genome, e.Available)
}

// SourceUnavailableError is returned when the file or service backing a
// genome cannot be reached.
type SourceUnavailableError struct {
	Genome string
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("genome %q source unavailable: %v", e.Genome, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error {
	return e.Err
}
