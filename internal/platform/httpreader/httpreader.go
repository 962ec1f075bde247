// Package httpreader is the HTTP/1.1 tokenizer interface for the IP
// transport (spec §6): a pure byte-at-a-time state machine that consumes
// a byte buffer and emits method/URI/version/status/reason/header tokens.
// No concrete adapter is in scope — the retrieval pack carries no HTTP
// server stack this spec's IP transport could be built on — so this
// package defines only the iterator contract the rest of the engine
// (session request dispatch) is written against.
package httpreader

// TokenKind enumerates the events the tokenizer emits, following
// util_http_reader's event set (spec §6).
type TokenKind uint8

const (
	TokenMethod TokenKind = iota
	TokenURI
	TokenVersion
	TokenStatus
	TokenReason
	TokenHeaderName
	TokenHeaderValue
	TokenDone
	TokenError
)

// Token is one tokenizer event: a kind plus the raw bytes it carries
// (empty for TokenDone) and its offset into the source buffer.
type Token struct {
	Kind   TokenKind
	Value  []byte
	Offset int
}

// Reader is the narrow iterator interface the IP transport's request
// dispatch is written against: feed bytes in, pull tokens out until
// TokenDone or TokenError.
type Reader interface {
	// Feed appends newly received bytes to the reader's internal buffer.
	Feed(b []byte)
	// NextToken returns the next available token, or an error if the byte
	// stream is malformed per RFC 7230 token-class rules.
	NextToken() (Token, error)
}
