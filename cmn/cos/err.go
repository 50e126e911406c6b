// Package cos provides common low-level types and utilities shared by the
// pool, shard, and protocol packages: typed errors, UUID generation, and a
// deadline-aware queue helper.
package cos

import (
	"errors"
	"fmt"
)

type (
	// ErrNotFound covers missing metadata keys, shards, and node-registry
	// entries (spec.md §7).
	ErrNotFound struct{ what string }

	// ErrTimeout covers pool checkout and replication-lock deadlines.
	ErrTimeout struct{ what string }

	// ErrPoolClosed is returned by checkout after DatabasePool.finish().
	ErrPoolClosed struct{ endpoint string }

	// ErrResourceExhausted is returned when the fleet-wide reader cap is hit
	// with no room to wait (e.g. non-blocking checkout attempts).
	ErrResourceExhausted struct{ what string }

	// ErrInvalidArgument covers unknown weighting schemes, match-spies, and
	// message types (spec.md §7).
	ErrInvalidArgument struct{ what string }

	// ErrSerialisation covers malformed frames or lengths; fatal to the
	// connection that produced it.
	ErrSerialisation struct{ what string }

	// ErrProtocolVersion describes a peer advertising an incompatible major
	// protocol version (SPEC_FULL.md §4); no code path constructs it.
	ErrProtocolVersion struct {
		Ours, Theirs [2]int
	}
)

func NewErrNotFound(format string, a ...any) *ErrNotFound {
	return &ErrNotFound{fmt.Sprintf(format, a...)}
}
func (e *ErrNotFound) Error() string { return e.what + " does not exist" }
func IsErrNotFound(err error) bool {
	var e *ErrNotFound
	return errors.As(err, &e)
}

func NewErrTimeout(format string, a ...any) *ErrTimeout {
	return &ErrTimeout{fmt.Sprintf(format, a...)}
}
func (e *ErrTimeout) Error() string { return "timeout: " + e.what }
func IsErrTimeout(err error) bool {
	var e *ErrTimeout
	return errors.As(err, &e)
}

func NewErrPoolClosed(endpoint string) *ErrPoolClosed { return &ErrPoolClosed{endpoint} }
func (e *ErrPoolClosed) Error() string                { return "pool closed: " + e.endpoint }
func IsErrPoolClosed(err error) bool {
	var e *ErrPoolClosed
	return errors.As(err, &e)
}

func NewErrResourceExhausted(format string, a ...any) *ErrResourceExhausted {
	return &ErrResourceExhausted{fmt.Sprintf(format, a...)}
}
func (e *ErrResourceExhausted) Error() string { return "resource exhausted: " + e.what }

func NewErrInvalidArgument(format string, a ...any) *ErrInvalidArgument {
	return &ErrInvalidArgument{fmt.Sprintf(format, a...)}
}
func (e *ErrInvalidArgument) Error() string { return "invalid argument: " + e.what }

func NewErrSerialisation(format string, a ...any) *ErrSerialisation {
	return &ErrSerialisation{fmt.Sprintf(format, a...)}
}
func (e *ErrSerialisation) Error() string { return "serialisation: " + e.what }
func IsErrSerialisation(err error) bool {
	var e *ErrSerialisation
	return errors.As(err, &e)
}

func IsErrInvalidArgument(err error) bool {
	var e *ErrInvalidArgument
	return errors.As(err, &e)
}

func IsErrResourceExhausted(err error) bool {
	var e *ErrResourceExhausted
	return errors.As(err, &e)
}

func (e *ErrProtocolVersion) Error() string {
	return fmt.Sprintf("protocol version mismatch: ours=%d.%d theirs=%d.%d",
		e.Ours[0], e.Ours[1], e.Theirs[0], e.Theirs[1])
}

// Errs accumulates up to maxErrs distinct errors, de-duplicated by message,
// mirroring the teacher's cmn/cos.Errs used to collect batch-checkout
// failures without allocating per-failure.
type Errs struct {
	errs []error
}

const maxErrs = 8

func (e *Errs) Add(err error) {
	if err == nil {
		return
	}
	for _, a := range e.errs {
		if a.Error() == err.Error() {
			return
		}
	}
	if len(e.errs) < maxErrs {
		e.errs = append(e.errs, err)
	}
}

func (e *Errs) Empty() bool { return len(e.errs) == 0 }

func (e *Errs) Error() string {
	if len(e.errs) == 0 {
		return ""
	}
	s := e.errs[0].Error()
	for _, a := range e.errs[1:] {
		s += "; " + a.Error()
	}
	return s
}
