// Package shard implements the Shard handle (spec.md §3, §4.C): a wrapper
// around one opened index database, read or write, delegating the actual
// storage and query engine to an embedded Xapian-compatible Engine that is
// explicitly out of this core's scope (spec.md §1). We specify only the
// interface the core depends on, the way the teacher specifies
// ais/backend.Provider for its remote cloud backends without implementing
// them in the core target package.
package shard

import "time"

// Kind distinguishes a readable from a writable handle (spec.md §3).
type Kind int

const (
	Readable Kind = iota
	Writable
)

func (k Kind) String() string {
	if k == Writable {
		return "writable"
	}
	return "readable"
}

// OpenFlags mirror spec.md §4.D's checkout flags, reused here for the
// underlying engine Open call.
type OpenFlags int

const (
	OPEN OpenFlags = 1 << iota
	CREATE_OR_OPEN
	WRITABLE
)

func (f OpenFlags) Has(bit OpenFlags) bool { return f&bit != 0 }

// Document is the engine-agnostic document representation the core passes
// across the Engine boundary: opaque term/value/data payloads the query
// layer (out of scope) produces and consumes.
type Document struct {
	Terms  []string
	Values map[int][]byte
	Data   []byte
}

// ValueStats summarizes one value slot, as required by MSG_VALUESTATS.
type ValueStats struct {
	Count int
	Lower []byte
	Upper []byte
}

// Stats is the aggregate per-shard summary sent in REPLY_UPDATE handshakes
// and MSG_UPDATE replies (spec.md §4.H, §6).
type Stats struct {
	DocCount       uint64
	LastDocID      uint64
	DocLengthLower uint64
	DocLengthUpper uint64
	HasPositions   bool
	TotalLength    uint64
	UUID           string
}

// Engine opens index databases on disk; the embedded Xapian-compatible
// engine implements this in production, a fake engine backs unit tests.
type Engine interface {
	Open(path string, flags OpenFlags) (DB, error)
	// Rename replaces whatever is at newPath with the database at oldPath,
	// the commit step of package replication's switch-in directory scheme
	// (spec.md §4.I: "Replication writes to a sibling 'switch-in' directory
	// and renames on commit").
	Rename(oldPath, newPath string) error
}

// DB is one opened index database -- the engine-side counterpart of a
// Shard, matching the read/write operation surface of spec.md §4.C.
type DB interface {
	Revision() uint64
	Reopen() (advanced bool, err error)
	Stats() Stats

	GetDoc(docID uint64) (*Document, error)
	AddDocument(doc *Document) (docID uint64, err error)
	ReplaceDocument(idOrTerm string, doc *Document) (docID uint64, err error)
	DeleteDocument(idOrTerm string) error
	Commit() error
	Cancel() error
	BeginTransaction() error

	GetMetadata(key string) ([]byte, error)
	SetMetadata(key string, value []byte) error
	MetadataKeys(prefix string) ([]string, error)

	AddSpelling(term string, freqDelta int) error
	RemoveSpelling(term string, freqDelta int) error

	AllTerms(prefix string) ([]string, error)
	TermExists(term string) (bool, error)
	TermFreq(term string) (uint64, error)
	CollFreq(term string) (uint64, error)
	Freqs(term string) (termFreq, collFreq uint64, err error)
	ValueStats(slot int) (ValueStats, error)

	TermList(docID uint64) ([]string, error)
	PostList(term string) ([]uint64, error)
	PositionList(docID uint64, term string) ([]uint64, error)
	PositionListCount(docID uint64, term string) (uint64, error)
	DocLength(docID uint64) (uint64, error)
	UniqueTerms(docID uint64) (uint64, error)

	// PrepareQuery parses an opaque, engine-specific query/RSet/weighting
	// payload (the query language itself is out of this core's scope, spec.md
	// §1) and returns an opaque handle plus the aggregate stats needed for
	// MSG_QUERY's REPLY_STATS round-trip. GetMSet later materializes the
	// window of results the handle refers to.
	PrepareQuery(payload []byte) (handle []byte, stats QueryStats, err error)
	GetMSet(handle []byte, first, maxItems, checkAtLeast int) (MSet, error)

	// SnapshotFiles returns the on-disk paths making up this database's
	// current committed state, for package replication's full-snapshot
	// transfer (spec.md §4.I step 1). Order matters: the receiver writes
	// them to the switch-in directory in the order returned.
	SnapshotFiles() ([]string, error)
	// Changesets returns, in apply order, the paths of the WAL changeset
	// files needed to bring a replica from fromRevision to toRevision
	// (spec.md §4.I step 2). An empty slice with a nil error means the two
	// revisions are already equal.
	Changesets(fromRevision, toRevision uint64) ([]string, error)
	// ApplySnapshot replaces this (switch-in) database's entire state from
	// a file produced by a peer's SnapshotFiles, in the order it was sent.
	ApplySnapshot(path string) error
	// ApplyChangeset replays one WAL changeset file against this (switch-in)
	// database, advancing its revision.
	ApplyChangeset(path string) error

	Close() error
}

// QueryStats is exchanged between MSG_QUERY's REPLY_STATS and the later
// MSG_GETMSET (spec.md §4.H: "Stats from client to server are passed
// verbatim between them so distributed merge can happen"), encoded on the
// wire with EncodeMsg/DecodeMsg (package remote).
type QueryStats struct {
	Matches     uint64
	MaxPossible float64
	MaxReceived float64
	Opaque      []byte // engine-specific weighting/match-spy partials
}

// MSet is the materialized result window for MSG_GETMSET / REPLY_RESULTS.
type MSet struct {
	Firstitem    uint64
	Matches      uint64
	MaxPossible  float64
	MaxAttained  float64
	Items        []MSetItem
}

type MSetItem struct {
	DocID  uint64
	Weight float64
	Rank   uint64
}

// RemoteLink is the counterpart used when a Shard refers to a database
// living on another node: it speaks the remote binary protocol (package
// remote) on the core's behalf. KeepAlive is the only operation the spec
// calls out explicitly for remote shards (spec.md §4.C); the rest of DB's
// surface is available too so a remote Shard can satisfy the same
// operations contract.
type RemoteLink interface {
	DB
	Ping() error
}

// nowNano is the clock Shard.touch reads: wall-clock Unix nanoseconds from
// time.Now. It is a package var so it can be swapped out, for symmetry
// with the teacher's dependency-injectable time sources.
var nowNano = func() int64 { return time.Now().UnixNano() }
