// Package p2p implements the wire protocol peers use to exchange blocks,
// transactions, and chain state: length-prefixed JSON frames, a per-peer
// token-bucket rate limiter, and the sync state machine that drives a
// connection from handshake through live gossip.
package p2p

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ProtocolVersion is the version this node speaks. A peer announcing a
// different major version is rejected during the handshake.
const ProtocolVersion uint32 = 1

// MaxFrameSize bounds how large a single framed message may be, closing
// off memory-exhaustion attacks from a malicious or buggy peer.
const MaxFrameSize = 10 * 1024 * 1024

// MessageType identifies the payload carried by a Message.
type MessageType string

// The full set of message types this node's protocol understands.
const (
	MsgHandshake  MessageType = "handshake"
	MsgPing       MessageType = "ping"
	MsgPong       MessageType = "pong"
	MsgInvBlock   MessageType = "inv_block"
	MsgGetBlock   MessageType = "get_block"
	MsgBlock      MessageType = "block"
	MsgInvTx      MessageType = "inv_tx"
	MsgGetTx      MessageType = "get_tx"
	MsgTx         MessageType = "tx"
	MsgGetHeaders MessageType = "get_headers"
	MsgHeaders    MessageType = "headers"
)

// knownMessageTypes backs ValidateMessage's membership check.
var knownMessageTypes = map[MessageType]bool{
	MsgHandshake:  true,
	MsgPing:       true,
	MsgPong:       true,
	MsgInvBlock:   true,
	MsgGetBlock:   true,
	MsgBlock:      true,
	MsgInvTx:      true,
	MsgGetTx:      true,
	MsgTx:         true,
	MsgGetHeaders: true,
	MsgHeaders:    true,
}

// ValidateMessage checks a decoded frame against the protocol's format
// rules, beyond the max-frame-size check ReadMessage already applies: the
// type must be one this node understands, and the payload must be a JSON
// object (or absent), never a bare scalar or array pretending to be one.
func ValidateMessage(msg Message) error {
	if !knownMessageTypes[msg.Type] {
		return fmt.Errorf("p2p: unknown message type %q", msg.Type)
	}

	if len(msg.Payload) == 0 {
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(msg.Payload, &obj); err != nil {
		return fmt.Errorf("p2p: payload is not a JSON object: %w", err)
	}

	return nil
}

// Message is the envelope every frame carries. Payload is left raw so a
// handler can decode it into the concrete type its MessageType implies
// without this package needing to know about block or transaction shapes.
type Message struct {
	Type    MessageType     `json:"type"`
	Version uint32          `json:"version"`
	Payload json.RawMessage `json:"payload"`
}

// HandshakePayload is carried by a handshake message, exchanged by both
// sides immediately after a connection is established.
type HandshakePayload struct {
	Version   uint32 `json:"version"`
	NetworkID string `json:"network_id"`
	NodeID    string `json:"node_id"`
	Height    uint64 `json:"height"`
	BlockHash string `json:"block_hash"`
}

// PingPayload and PongPayload carry a nonce so a ping can be matched to
// its pong.
type PingPayload struct {
	Nonce uint64 `json:"nonce"`
}

// PongPayload echoes the nonce from the ping it answers.
type PongPayload struct {
	Nonce uint64 `json:"nonce"`
}

// InvBlockPayload announces a block this node has accepted.
type InvBlockPayload struct {
	BlockHash string `json:"block_hash"`
	Height    uint64 `json:"height"`
}

// GetBlockPayload requests a full block by hash.
type GetBlockPayload struct {
	BlockHash string `json:"block_hash"`
}

// InvTxPayload announces a transaction this node has accepted into its
// mempool.
type InvTxPayload struct {
	TxID string `json:"txid"`
}

// GetTxPayload requests a transaction by id from the responder's mempool.
type GetTxPayload struct {
	TxID string `json:"txid"`
}

// GetHeadersPayload requests headers starting after fromHeight, used to
// drive the Syncing state.
type GetHeadersPayload struct {
	FromHeight uint64 `json:"from_height"`
}

// HeaderSummary is one entry in a headers response: enough to drive
// get_block requests and verify the linkage of a run of blocks without
// shipping full bodies.
type HeaderSummary struct {
	Height uint64 `json:"height"`
	Hash   string `json:"hash"`
}

// HeadersPayload answers a get_headers request with every header the
// responder has after the requested height, oldest first.
type HeadersPayload struct {
	Headers []HeaderSummary `json:"headers"`
}

// NewMessage marshals payload and wraps it in an envelope of the given
// type at this node's protocol version.
func NewMessage(msgType MessageType, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}

	return Message{
		Type:    msgType,
		Version: ProtocolVersion,
		Payload: raw,
	}, nil
}

// Decode unmarshals m's payload into v.
func (m Message) Decode(v any) error {
	return json.Unmarshal(m.Payload, v)
}

// WriteMessage frames msg as a 4-byte big-endian length prefix followed by
// its JSON encoding, and writes it to w.
func WriteMessage(w io.Writer, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	if len(body) > MaxFrameSize {
		return errors.New("p2p: outgoing message exceeds max frame size")
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))

	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}

	return nil
}

// ReadMessage reads one length-prefixed JSON frame from r and decodes its
// envelope. It rejects frames larger than MaxFrameSize before allocating a
// buffer for them.
func ReadMessage(r io.Reader) (Message, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Message{}, err
	}

	size := binary.BigEndian.Uint32(header[:])
	if size > MaxFrameSize {
		return Message{}, errors.New("p2p: incoming message exceeds max frame size")
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return Message{}, err
	}

	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return Message{}, err
	}

	if err := ValidateMessage(msg); err != nil {
		return Message{}, err
	}

	return msg, nil
}
