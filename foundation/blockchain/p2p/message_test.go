package p2p_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/fractalchain/node/foundation/blockchain/p2p"
)

func TestWriteReadMessageRoundTrip(t *testing.T) {
	msg, err := p2p.NewMessage(p2p.MsgHandshake, p2p.HandshakePayload{
		Version:   p2p.ProtocolVersion,
		NetworkID: "fractalchain-test",
		NodeID:    "node-a",
		Height:    42,
		BlockHash: "deadbeef",
	})
	if err != nil {
		t.Fatalf("building message: %s", err)
	}

	var buf bytes.Buffer
	if err := p2p.WriteMessage(&buf, msg); err != nil {
		t.Fatalf("writing message: %s", err)
	}

	got, err := p2p.ReadMessage(&buf)
	if err != nil {
		t.Fatalf("reading message: %s", err)
	}

	if got.Type != p2p.MsgHandshake {
		t.Fatalf("expected type %s, got %s", p2p.MsgHandshake, got.Type)
	}

	var payload p2p.HandshakePayload
	if err := got.Decode(&payload); err != nil {
		t.Fatalf("decoding payload: %s", err)
	}
	if payload.NodeID != "node-a" || payload.Height != 42 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestReadMessageRejectsOversizeFrame(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})

	if _, err := p2p.ReadMessage(&buf); err == nil {
		t.Fatal("expected oversize frame to be rejected")
	}
}

func TestReadMessageRejectsUnknownType(t *testing.T) {
	var buf bytes.Buffer
	if err := p2p.WriteMessage(&buf, p2p.Message{Type: "bogus", Version: p2p.ProtocolVersion}); err != nil {
		t.Fatalf("writing message: %s", err)
	}

	if _, err := p2p.ReadMessage(&buf); err == nil {
		t.Fatal("expected an unknown message type to be rejected")
	}
}

func TestReadMessageRejectsNonObjectPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := p2p.WriteMessage(&buf, p2p.Message{
		Type:    p2p.MsgPing,
		Version: p2p.ProtocolVersion,
		Payload: []byte(`[1,2,3]`),
	}); err != nil {
		t.Fatalf("writing message: %s", err)
	}

	if _, err := p2p.ReadMessage(&buf); err == nil {
		t.Fatal("expected a non-object payload to be rejected")
	}
}

func TestRateLimiterAllowsThenBlacklists(t *testing.T) {
	rl := p2p.NewRateLimiter(2, time.Hour, time.Hour)

	if !rl.Allow("peer-1") {
		t.Fatal("expected first message to be allowed")
	}
	if !rl.Allow("peer-1") {
		t.Fatal("expected second message to be allowed")
	}
	if rl.Allow("peer-1") {
		t.Fatal("expected third message to exceed the limit")
	}
	if !rl.IsBlacklisted("peer-1") {
		t.Fatal("expected peer to be blacklisted after exceeding the limit")
	}
}

func TestRateLimiterResetClearsBlacklist(t *testing.T) {
	rl := p2p.NewRateLimiter(1, time.Hour, time.Hour)
	rl.Allow("peer-2")
	rl.Allow("peer-2")

	if !rl.IsBlacklisted("peer-2") {
		t.Fatal("expected peer to be blacklisted")
	}

	rl.Reset("peer-2")
	if rl.IsBlacklisted("peer-2") {
		t.Fatal("expected blacklist to clear after reset")
	}
}
