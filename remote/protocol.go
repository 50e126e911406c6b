// Package remote implements the remote binary protocol state machine
// (spec.md §4.H): the INIT_REMOTE handshake, the REMOTE_SERVER message
// dispatch table, and REPLY_EXCEPTION error serialization. Grounded on
// the teacher's request/response handler idiom in ais/prxtrless.go and
// ais/tgtobj.go (a big message-type switch, one handler method per case),
// adapted to this spec's length-prefixed framing instead of HTTP. Message
// and reply ordinal values are taken from the original implementation's
// remote_protocol_client.h enum order for wire compatibility in spirit.
package remote

// ProtocolMajor/ProtocolMinor identify this implementation's wire version,
// sent as the first two bytes of the handshake REPLY_UPDATE payload
// (spec.md §6). The server does not check a client's version.
const (
	ProtocolMajor = 2
	ProtocolMinor = 0
)

// MsgType enumerates inbound message types (spec.md §4.H), ordered per
// original_source/src/server/remote_protocol_client.h.
type MsgType byte

const (
	MsgAllTerms MsgType = iota
	MsgCollFreq
	MsgDocument
	MsgTermExists
	MsgTermFreq
	MsgValueStats
	MsgKeepAlive
	MsgDocLength
	MsgQuery
	MsgTermList
	MsgPositionList
	MsgPostList
	MsgReopen
	MsgUpdate
	MsgAddDocument
	MsgCancel
	MsgDeleteDocumentTerm
	MsgCommit
	MsgReplaceDocument
	MsgReplaceDocumentTerm
	MsgDeleteDocument
	MsgWriteAccess
	MsgGetMetadata
	MsgSetMetadata
	MsgAddSpelling
	MsgRemoveSpelling
	MsgGetMSet
	MsgShutdown
	MsgMetadataKeyList
	MsgFreqs
	MsgUniqueTerms
	MsgPositionListCount
	MsgReadAccess
)

// ReplyType enumerates outbound reply types.
type ReplyType byte

const (
	ReplyUpdate ReplyType = iota
	ReplyException
	ReplyDone
	ReplyAllTerms
	ReplyCollFreq
	ReplyDocData
	ReplyTermDoesntExist
	ReplyTermExists
	ReplyTermFreq
	ReplyValueStats
	ReplyDocLength
	ReplyStats
	ReplyTermList
	ReplyPositionList
	ReplyPostListStart
	ReplyPostListItem
	ReplyValue
	ReplyAddDocument
	ReplyResults
	ReplyMetadata
	ReplyMetadataKeyList
	ReplyFreqs
	ReplyUniqueTerms
	ReplyPositionListCount
	ReplyRemoveSpelling
)

// String names a MsgType for metric labels (package stats) and log lines;
// it is not part of the wire format.
func (t MsgType) String() string {
	switch t {
	case MsgAllTerms:
		return "all_terms"
	case MsgCollFreq:
		return "coll_freq"
	case MsgDocument:
		return "document"
	case MsgTermExists:
		return "term_exists"
	case MsgTermFreq:
		return "term_freq"
	case MsgValueStats:
		return "value_stats"
	case MsgKeepAlive:
		return "keep_alive"
	case MsgDocLength:
		return "doc_length"
	case MsgQuery:
		return "query"
	case MsgTermList:
		return "term_list"
	case MsgPositionList:
		return "position_list"
	case MsgPostList:
		return "post_list"
	case MsgReopen:
		return "reopen"
	case MsgUpdate:
		return "update"
	case MsgAddDocument:
		return "add_document"
	case MsgCancel:
		return "cancel"
	case MsgDeleteDocumentTerm:
		return "delete_document_term"
	case MsgCommit:
		return "commit"
	case MsgReplaceDocument:
		return "replace_document"
	case MsgReplaceDocumentTerm:
		return "replace_document_term"
	case MsgDeleteDocument:
		return "delete_document"
	case MsgWriteAccess:
		return "write_access"
	case MsgGetMetadata:
		return "get_metadata"
	case MsgSetMetadata:
		return "set_metadata"
	case MsgAddSpelling:
		return "add_spelling"
	case MsgRemoveSpelling:
		return "remove_spelling"
	case MsgGetMSet:
		return "get_mset"
	case MsgShutdown:
		return "shutdown"
	case MsgMetadataKeyList:
		return "metadata_key_list"
	case MsgFreqs:
		return "freqs"
	case MsgUniqueTerms:
		return "unique_terms"
	case MsgPositionListCount:
		return "position_list_count"
	case MsgReadAccess:
		return "read_access"
	default:
		return "unknown"
	}
}
