// Package protocol implements the wire-neutral remote broker protocol
// adapter (spec §4.8): a transport-agnostic request/response/stream facade
// that a local broker and a remote client speak over any byte stream,
// following the teacher's runtime/host/protocol Runtime Host Protocol
// connection almost verbatim, generalized from a single runtime worker
// connection to a many-client broker-facing one.
package protocol

import (
	ngerrors "github.com/nextgraph-org/ng-repo-go/common/errors"
)

const moduleName = "protocol"

var (
	// ErrProtocol is returned for a malformed or out-of-sequence message.
	ErrProtocol = ngerrors.New(moduleName, 1, "protocol: malformed message")
	// ErrConnection is returned when the underlying transport fails.
	ErrConnection = ngerrors.New(moduleName, 2, "protocol: connection error")
	// ErrAuthFailed is returned when ClientAuth does not establish a valid session.
	ErrAuthFailed = ngerrors.New(moduleName, 3, "protocol: authentication failed")
	// ErrTimeout is returned when a call does not complete before its
	// context deadline.
	ErrTimeout = ngerrors.New(moduleName, 4, "protocol: timeout")
	// ErrNotReady is returned when Call is invoked before authentication
	// completes.
	ErrNotReady = ngerrors.New(moduleName, 5, "protocol: connection not ready")
)

// ClientAuth is the first frame a client sends: proof of identity for the
// session about to be established (spec §4.8 "ClientAuth").
type ClientAuth struct {
	UserID    []byte `cbor:"1,keyasint"`
	PublicKey []byte `cbor:"2,keyasint"`
	Signature []byte `cbor:"3,keyasint"`
}

// AuthResult is the broker's reply to ClientAuth.
type AuthResult struct {
	OK      bool   `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint,omitempty"`
}

// Error is the wire form of a module/code error (see common/errors), so the
// receiving side can reconstruct the sentinel without string matching.
type Error struct {
	Module  string `cbor:"1,keyasint"`
	Code    uint32 `cbor:"2,keyasint"`
	Message string `cbor:"3,keyasint"`
}

// ClientRequest carries an opaque AppRequest payload (the broker layer
// owns encoding/decoding its own request types; this layer only routes and
// correlates them).
type ClientRequest struct {
	Payload []byte `cbor:"1,keyasint"`
}

// ClientResponse answers one ClientRequest. For a streaming call, every
// response but the last carries Final=false; the stream's terminating
// sentinel carries Final=true (spec §4.8: "terminated by a sentinel
// response carrying result != 0" — expressed here as an explicit boolean
// flag rather than an overloaded result code, see DESIGN.md "protocol").
type ClientResponse struct {
	Payload []byte `cbor:"1,keyasint,omitempty"`
	Err     *Error `cbor:"2,keyasint,omitempty"`
	Final   bool   `cbor:"3,keyasint,omitempty"`
}

// Event is an unsolicited, broker-initiated push (e.g. a topic.Event or
// subscription patch) with no corresponding ClientRequest id.
type Event struct {
	Payload []byte `cbor:"1,keyasint"`
}

// ExtRequest is a broker-initiated request needing a client-side answer
// (e.g. a permission prompt); ExtResponse is its reply, correlated by ID
// exactly like ClientRequest/ClientResponse but routed in the opposite
// direction.
type ExtRequest struct {
	Payload []byte `cbor:"1,keyasint"`
}

type ExtResponse struct {
	Payload []byte `cbor:"1,keyasint"`
	Err     *Error `cbor:"2,keyasint,omitempty"`
}

// frameKind tags which variant of Frame is populated (spec §4.8 "Messages
// (framed, length-prefixed)").
type frameKind uint8

const (
	frameClientAuth frameKind = iota
	frameAuthResult
	frameClientRequest
	frameClientResponse
	frameEvent
	frameExtRequest
	frameExtResponse
)

// Frame is the one wire envelope every message is carried in: an ID for
// request/response correlation (spec §4.8: "All requests carry a
// monotonically increasing integer ID; responses correlate by ID") plus
// exactly one populated payload variant.
type Frame struct {
	ID   uint64    `cbor:"1,keyasint"`
	Kind frameKind `cbor:"2,keyasint"`

	Auth           *ClientAuth     `cbor:"3,keyasint,omitempty"`
	AuthResult     *AuthResult     `cbor:"4,keyasint,omitempty"`
	ClientRequest  *ClientRequest  `cbor:"5,keyasint,omitempty"`
	ClientResponse *ClientResponse `cbor:"6,keyasint,omitempty"`
	Event          *Event          `cbor:"7,keyasint,omitempty"`
	ExtRequest     *ExtRequest     `cbor:"8,keyasint,omitempty"`
	ExtResponse    *ExtResponse    `cbor:"9,keyasint,omitempty"`
}

func errorToFrameError(err error) *Error {
	module, code := ngerrors.Code(err)
	return &Error{Module: module, Code: code, Message: err.Error()}
}
