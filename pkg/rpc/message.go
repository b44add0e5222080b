// Package rpc defines the wire message union and the datagram
// send/receive boundary over it.
package rpc

import (
	"fmt"

	"github.com/mod/kadnet/pkg/id"
	"github.com/mod/kadnet/pkg/peer"
)

// RequestKind discriminates RequestPayload variants on the wire.
type RequestKind string

const (
	KindPing      RequestKind = "ping"
	KindStore     RequestKind = "store"
	KindFindNode  RequestKind = "find_node"
	KindFindValue RequestKind = "find_value"
)

// ResponseKind discriminates ResponsePayload variants on the wire.
type ResponseKind string

const (
	KindPong         ResponseKind = "pong"
	KindNodes        ResponseKind = "nodes"
	KindValue        ResponseKind = "value"
	KindValueMissing ResponseKind = "value_missing" // carries closest nodes as a FindNode-style fallback
)

// RequestPayload is the tagged union of request variants: Ping,
// Store{key,value}, FindNode{id}, and the FindValue{key} extension
// point spec.md §9 leaves optional and SPEC_FULL.md §5 implements.
type RequestPayload struct {
	Kind RequestKind `json:"kind"`

	StoreKey   string `json:"store_key,omitempty"`
	StoreValue string `json:"store_value,omitempty"`

	FindNodeId id.Id `json:"find_node_id"`

	FindValueKey string `json:"find_value_key,omitempty"`
}

// ResponsePayload is the tagged union of response variants: Pong,
// FindNode{closest}, and FindValue's two outcomes (value found, or the
// closest-nodes fallback).
type ResponsePayload struct {
	Kind ResponseKind `json:"kind"`

	Closest []peer.Info `json:"closest,omitempty"`

	Value string `json:"value,omitempty"`
}

// Request carries a fresh request Id, the source peer, and a payload.
type Request struct {
	Id      id.Id          `json:"id"`
	Source  peer.Info      `json:"source"`
	Payload RequestPayload `json:"payload"`
}

// Response carries its own message Id, the responder's peer, the
// request Id it correlates with, and a payload.
type Response struct {
	Id        id.Id           `json:"id"`
	Source    peer.Info       `json:"source"`
	RequestId id.Id           `json:"request_id"`
	Payload   ResponsePayload `json:"payload"`
}

// messageKind discriminates the top-level Request/Response union.
type messageKind string

const (
	messageRequest  messageKind = "request"
	messageResponse messageKind = "response"
)

// Message is the tagged union transmitted as a single datagram: either
// a Request or a Response.
type Message struct {
	Kind     messageKind `json:"type"`
	Request  *Request    `json:"request,omitempty"`
	Response *Response   `json:"response,omitempty"`
}

// NewRequestMessage wraps r as a Message.
func NewRequestMessage(r Request) Message {
	return Message{Kind: messageRequest, Request: &r}
}

// NewResponseMessage wraps r as a Message.
func NewResponseMessage(r Response) Message {
	return Message{Kind: messageResponse, Response: &r}
}

// IsRequest reports whether m carries a Request.
func (m Message) IsRequest() bool {
	return m.Kind == messageRequest && m.Request != nil
}

// IsResponse reports whether m carries a Response.
func (m Message) IsResponse() bool {
	return m.Kind == messageResponse && m.Response != nil
}

// Validate reports a codec-shaped error if the message doesn't carry
// exactly one well-formed variant. Used right after deserialization so
// the receive loop can treat malformed-but-parseable JSON the same as
// malformed JSON (spec.md §7: codec errors are non-fatal, log-and-continue).
func (m Message) Validate() error {
	switch m.Kind {
	case messageRequest:
		if m.Request == nil {
			return fmt.Errorf("rpc: request message missing request body")
		}
	case messageResponse:
		if m.Response == nil {
			return fmt.Errorf("rpc: response message missing response body")
		}
	default:
		return fmt.Errorf("rpc: unknown message kind %q", m.Kind)
	}
	return nil
}
