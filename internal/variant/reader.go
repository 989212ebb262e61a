package variant

import "errors"

// Options selects which records a Reader yields.
type Options struct {
	Skip         int  // data lines to discard after the header
	Limit        int  // maximum records to yield; 0 means no limit
	FilterIndels bool // drop records whose alleles are not single bases
}

// Reader applies Options to a Parser. Malformed lines are returned as
// *ParseError and count toward Limit; callers may continue after them.
type Reader struct {
	parser  Parser
	opts    Options
	count   int
	started bool
}

// NewReader wraps p.
func NewReader(p Parser, opts Options) *Reader {
	return &Reader{parser: p, opts: opts}
}

// Next returns the next selected record.
// Returns nil, nil when there are no more records or the limit is reached.
func (r *Reader) Next() (*Record, error) {
	if !r.started {
		r.started = true
		if r.opts.Skip > 0 {
			if err := r.parser.SkipLines(r.opts.Skip); err != nil {
				return nil, err
			}
		}
	}

	for {
		if r.opts.Limit > 0 && r.count >= r.opts.Limit {
			return nil, nil
		}

		rec, err := r.parser.Next()
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				r.count++
			}
			return nil, err
		}
		if rec == nil {
			return nil, nil
		}
		if r.opts.FilterIndels && !rec.IsSNV() {
			continue
		}

		r.count++
		return rec, nil
	}
}

// Count returns the number of records yielded so far, malformed lines
// included.
func (r *Reader) Count() int {
	return r.count
}

// Close closes the underlying parser.
func (r *Reader) Close() error {
	return r.parser.Close()
}

// CountRecords reads path to the end and returns the number of records the
// given options would select, for progress totals.
func CountRecords(path, format string, opts Options) (int, error) {
	p, err := Open(path, format)
	if err != nil {
		return 0, err
	}
	r := NewReader(p, opts)
	defer r.Close()

	for {
		rec, err := r.Next()
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				continue
			}
			return r.Count(), err
		}
		if rec == nil {
			return r.Count(), nil
		}
	}
}
