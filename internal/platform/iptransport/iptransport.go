// Package iptransport is the IP (TCP) transport interface (spec §6):
// listen/accept/read/write/close over one HTTP/1.1 request per exchange,
// bodies typed as application/hap+json, application/pairing+tlv8, or
// application/octet-stream. No concrete adapter is in scope for this
// spec — the retrieval pack carries no HTTP server stack this transport
// could be built on (the HTTP/1.1 byte tokenizer itself is the named
// external collaborator in internal/platform/httpreader) — so this
// package defines only the contract the accessory server dispatches
// against.
package iptransport

// ContentType identifies a HAP IP request or response body's wire
// encoding.
type ContentType uint8

const (
	ContentTypeHAPJSON ContentType = iota
	ContentTypePairingTLV8
	ContentTypeOctetStream
)

// Stream is one accepted TCP connection carrying HTTP/1.1 exchanges.
type Stream interface {
	Read(buf []byte) (n int, err error)
	Write(buf []byte) (n int, err error)
	Close() error
}

// Listener is the narrow server-socket interface the accessory server
// depends on for the IP transport.
type Listener interface {
	Accept() (Stream, error)
	Close() error
}
