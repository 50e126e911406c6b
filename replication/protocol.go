// Package replication implements the changeset/snapshot streaming protocol
// between shards (spec.md §4.I): a requester asks a source shard for the
// revisions it is missing, the source replies with an optional full
// snapshot followed by zero or more changesets, and the requester applies
// everything to a temporary "switch-in" shard before atomically replacing
// the live one under the ShardEndpoint lock (spec.md §4.D). Grounded on the
// same request/reply dispatch idiom as package remote, reusing package
// transport's framed-message and file-stream modes (spec.md §4.G) for the
// snapshot/changeset file bodies instead of inventing a second wire
// encoding.
package replication

// MsgType enumerates inbound replication requests. Only one message type
// exists on this protocol (spec.md §4.I); the type remains so the dispatch
// shape matches package remote's and so the wire format stays uniform.
type MsgType byte

const (
	MsgGetChangesets MsgType = iota
)

// ReplyType enumerates outbound replication replies, in the order spec.md
// §4.I lists them: optional snapshot header/filename/footer, then zero or
// more changesets, then an end marker.
type ReplyType byte

const (
	ReplyDBHeader ReplyType = iota
	ReplyDBFilename
	ReplyDBFooter
	ReplyChangeset
	ReplyEndOfChanges
	ReplyFail
)

// File-stream user types distinguish a snapshot file body from a changeset
// file body inside transport's FILE_FOLLOWS framing (spec.md §4.G); the
// REPLY_DB_FILENAME/REPLY_CHANGESET frames that precede each file carry the
// file's base name, this byte only tells the receiver which queue to
// apply the incoming bytes to.
const (
	fileTypeSnapshot byte = iota
	fileTypeChangeset
)
