package cos

import (
	"sync"
	"time"

	"github.com/OneOfOne/xxhash"
	"github.com/teris-io/shortid"
)

// uuidABC mirrors the teacher's alphabet for shortid-generated identifiers:
// URL-safe, fixed length, no padding.
const uuidABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

var (
	sidOnce sync.Once
	sid     *shortid.Shortid
)

// InitShortID seeds the process-wide short-id generator; called once at
// startup the way the teacher's cos.InitShortID is.
func InitShortID(seed uint64) {
	sidOnce.Do(func() {
		var err error
		sid, err = shortid.New(1, uuidABC, seed)
		if err != nil {
			sid = shortid.MustNew(1, uuidABC, seed)
		}
	})
}

// GenUUID returns a short, URL-safe unique id, used for the mock engine's
// database UUIDs and for replication switch-in directory names.
func GenUUID() string {
	if sid == nil {
		InitShortID(uint64(time.Now().UnixNano()))
	}
	id, err := sid.Generate()
	if err != nil {
		// extremely unlikely (generator exhaustion within the same tick);
		// fall back to a hex hash of the current time.
		return xxhashHex(time.Now().UnixNano())
	}
	return id
}

func xxhashHex(n int64) string {
	h := xxhash.New64()
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(n >> (8 * i))
	}
	h.Write(b[:])
	const hextable = "0123456789abcdef"
	sum := h.Sum64()
	out := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		out[i] = hextable[sum&0xf]
		sum >>= 4
	}
	return string(out)
}

// HashString returns a stable 64-bit digest of s; meta.Endpoint.Digest
// hashes an endpoint's URI form with it.
func HashString(s string) uint64 {
	h := xxhash.New64()
	h.WriteString(s)
	return h.Sum64()
}
