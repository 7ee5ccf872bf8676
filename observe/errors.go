package observe

import (
	"errors"
	"fmt"

	"github.com/delaneyj/bindparty/errs"
)

var (
	ErrMemberNotFound = errors.New("member not found")
	ErrNotReadable    = errors.New("member is not readable")
	ErrNotSettable    = errors.New("member is not settable")
	ErrNilSource      = errors.New("source is nil")
	ErrUnresolved     = errors.New("member is unresolved")
)

// SegmentError reports a path segment that could not be resolved.
type SegmentError struct {
	Path   string
	Index  int
	Member string
	Err    error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("path %q segment %d (%s): %v", e.Path, e.Index, e.Member, e.Err)
}

func (e *SegmentError) Unwrap() error { return e.Err }

func segmentError(path *MemberPath, index int, err error) error {
	return errs.Wrap(errs.CodeResolution, "observe.resolve", &SegmentError{
		Path:   path.String(),
		Index:  index,
		Member: path.Member(index),
		Err:    err,
	})
}

// SegmentIndex returns the failing segment of a resolution error, or -1.
func SegmentIndex(err error) int {
	var se *SegmentError
	if errors.As(err, &se) {
		return se.Index
	}
	return -1
}
