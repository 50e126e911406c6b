package remote

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/Kronuz/Xapiand-sub007/cmn/cos"
	"github.com/Kronuz/Xapiand-sub007/cmn/nlog"
	"github.com/Kronuz/Xapiand-sub007/wire"
)

var diagJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// exceptionDiag is the shape logged (not sent on the wire -- the wire
// payload is encodeException's fixed binary layout) so operators can grep
// structured context out of the log file for a REPLY_EXCEPTION.
type exceptionDiag struct {
	Context string `json:"context"`
	Kind    string `json:"kind"`
	Error   string `json:"error"`
}

// logException writes a one-line JSON diagnostic for err, the way
// stats/common_statsd.go logs jsoniter-marshaled snapshots for operators
// rather than shipping them over the wire.
func logException(ctx string, err error) {
	code := exceptionCode(err)
	b, mErr := diagJSON.Marshal(exceptionDiag{Context: ctx, Kind: exceptionLabel(code), Error: err.Error()})
	if mErr != nil {
		nlog.Warningln(mErr)
		return
	}
	nlog.Warningln(string(b))
}

// exception type-codes for the REPLY_EXCEPTION payload (spec.md §7's error
// kinds, minus the network-level ones that never reach this far: those
// tear the connection down in package transport before a handler runs).
const (
	excInvalidArgument byte = iota
	excNotFound
	excDatabaseError
	excTimeout
	excPoolClosed
	excResourceExhausted
	excSerialisation
)

func exceptionCode(err error) byte {
	switch {
	case cos.IsErrInvalidArgument(err):
		return excInvalidArgument
	case cos.IsErrNotFound(err):
		return excNotFound
	case cos.IsErrTimeout(err):
		return excTimeout
	case cos.IsErrPoolClosed(err):
		return excPoolClosed
	case cos.IsErrResourceExhausted(err):
		return excResourceExhausted
	case cos.IsErrSerialisation(err):
		return excSerialisation
	default:
		return excDatabaseError
	}
}

// encodeException builds a REPLY_EXCEPTION payload (spec.md §6):
// type-code(1) | ctx-len:var-uint | ctx | msg-len:var-uint | msg | error-string (rest).
// ctx is the session-identifying context (e.g. the endpoint in play); msg is
// a short, fixed, human-readable label for the error kind; the remainder is
// err.Error() verbatim.
func encodeException(ctx string, err error) []byte {
	code := exceptionCode(err)
	msg := exceptionLabel(code)
	out := make([]byte, 0, 2+len(ctx)+len(msg)+32)
	out = append(out, code)
	out = wire.EncodeString(out, []byte(ctx))
	out = wire.EncodeString(out, []byte(msg))
	out = append(out, []byte(err.Error())...)
	return out
}

func exceptionLabel(code byte) string {
	switch code {
	case excInvalidArgument:
		return "InvalidArgument"
	case excNotFound:
		return "NotFound"
	case excTimeout:
		return "Timeout"
	case excPoolClosed:
		return "PoolClosed"
	case excResourceExhausted:
		return "ResourceExhausted"
	case excSerialisation:
		return "Serialisation"
	default:
		return "DatabaseError"
	}
}
