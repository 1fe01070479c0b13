package state

import (
	"fmt"
	"net"

	"github.com/fractalchain/node/foundation/blockchain/database"
	"github.com/fractalchain/node/foundation/blockchain/p2p"
	"github.com/fractalchain/node/foundation/blockchain/peer"
)

// Listen accepts inbound peer connections on addr until the listener is
// closed, handing each one to serveConn on its own goroutine. The returned
// net.Listener is owned by the caller, who is responsible for closing it on
// shutdown.
func (s *State) Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	go func() {
		for {
			raw, err := ln.Accept()
			if err != nil {
				return
			}
			go s.serveConn(raw)
		}
	}()

	return ln, nil
}

// serveConn drives one inbound connection through the handshake and then
// the request/response loop for as long as the peer keeps talking within
// ReadIdleTimeout.
func (s *State) serveConn(raw net.Conn) {
	conn := p2p.NewConn(raw)
	defer conn.Close()

	req, err := conn.ReceiveWithin(p2p.HandshakeTimeout)
	if err != nil {
		s.evHandler("state: serveConn: handshake: ERROR: %s", err)
		return
	}
	if req.Type != p2p.MsgHandshake {
		s.evHandler("state: serveConn: handshake: expected handshake, got %s", req.Type)
		return
	}

	var theirs p2p.HandshakePayload
	if err := req.Decode(&theirs); err != nil {
		s.evHandler("state: serveConn: handshake: ERROR: %s", err)
		return
	}

	s.AddKnownPeer(peer.New(theirs.NodeID))
	defer s.rateLimiter.Reset(theirs.NodeID)

	tip := s.Tip()
	reply, err := p2p.NewMessage(p2p.MsgHandshake, p2p.HandshakePayload{
		Version:   p2p.ProtocolVersion,
		NetworkID: theirs.NetworkID,
		NodeID:    s.RetrieveHost(),
		Height:    tip.Header.Index,
		BlockHash: tip.Hash(),
	})
	if err != nil {
		s.evHandler("state: serveConn: handshake reply: ERROR: %s", err)
		return
	}
	if err := conn.Send(reply); err != nil {
		s.evHandler("state: serveConn: handshake reply: ERROR: %s", err)
		return
	}

	for {
		if !s.rateLimiter.Allow(theirs.NodeID) {
			s.evHandler("state: serveConn: %s: closing: rate limit exceeded", theirs.NodeID)
			return
		}

		msg, err := conn.Receive()
		if err != nil {
			s.evHandler("state: serveConn: %s: closing: %s", theirs.NodeID, err)
			return
		}

		if err := s.handleMessage(conn, msg); err != nil {
			s.evHandler("state: serveConn: %s: %s: ERROR: %s", theirs.NodeID, msg.Type, err)
		}
	}
}

// handleMessage dispatches one framed message from an already-handshaked
// peer to the right responder.
func (s *State) handleMessage(conn *p2p.Conn, msg p2p.Message) error {
	switch msg.Type {
	case p2p.MsgPing:
		var ping p2p.PingPayload
		if err := msg.Decode(&ping); err != nil {
			return err
		}
		pong, err := p2p.NewMessage(p2p.MsgPong, p2p.PongPayload{Nonce: ping.Nonce})
		if err != nil {
			return err
		}
		return conn.Send(pong)

	case p2p.MsgGetHeaders:
		var req p2p.GetHeadersPayload
		if err := msg.Decode(&req); err != nil {
			return err
		}
		headers, err := s.ServeHeaders(req.FromHeight)
		if err != nil {
			return err
		}
		resp, err := p2p.NewMessage(p2p.MsgHeaders, p2p.HeadersPayload{Headers: headers})
		if err != nil {
			return err
		}
		return conn.Send(resp)

	case p2p.MsgGetBlock:
		var req p2p.GetBlockPayload
		if err := msg.Decode(&req); err != nil {
			return err
		}
		block, err := s.ServeBlock(req.BlockHash)
		if err != nil {
			return err
		}
		resp, err := p2p.NewMessage(p2p.MsgBlock, block)
		if err != nil {
			return err
		}
		return conn.Send(resp)

	case p2p.MsgGetTx:
		var req p2p.GetTxPayload
		if err := msg.Decode(&req); err != nil {
			return err
		}
		tx, err := s.GetTransaction(req.TxID)
		if err != nil {
			return err
		}
		resp, err := p2p.NewMessage(p2p.MsgTx, tx)
		if err != nil {
			return err
		}
		return conn.Send(resp)

	case p2p.MsgInvBlock:
		return s.fetchAnnouncedBlock(conn, msg)

	case p2p.MsgInvTx:
		return s.fetchAnnouncedTx(conn, msg)

	default:
		return nil
	}
}

// fetchAnnouncedBlock handles an inv_block by requesting the full block
// over the same connection when we don't already have it.
func (s *State) fetchAnnouncedBlock(conn *p2p.Conn, msg p2p.Message) error {
	var inv p2p.InvBlockPayload
	if err := msg.Decode(&inv); err != nil {
		return err
	}
	if _, err := s.GetBlockByHash(inv.BlockHash); err == nil {
		return nil
	}

	req, err := p2p.NewMessage(p2p.MsgGetBlock, p2p.GetBlockPayload{BlockHash: inv.BlockHash})
	if err != nil {
		return err
	}
	if err := conn.Send(req); err != nil {
		return err
	}

	resp, err := conn.ReceiveWithin(p2p.ResponseTimeout)
	if err != nil {
		return err
	}
	if resp.Type != p2p.MsgBlock {
		return fmt.Errorf("expected block, got %s", resp.Type)
	}

	var block database.Block
	if err := resp.Decode(&block); err != nil {
		return err
	}

	return s.AddBlock(block)
}

// fetchAnnouncedTx handles an inv_tx by requesting the full transaction
// over the same connection when it isn't already pooled.
func (s *State) fetchAnnouncedTx(conn *p2p.Conn, msg p2p.Message) error {
	var inv p2p.InvTxPayload
	if err := msg.Decode(&inv); err != nil {
		return err
	}
	if s.mempool.Exists(inv.TxID) {
		return nil
	}

	req, err := p2p.NewMessage(p2p.MsgGetTx, p2p.GetTxPayload{TxID: inv.TxID})
	if err != nil {
		return err
	}
	if err := conn.Send(req); err != nil {
		return err
	}

	resp, err := conn.ReceiveWithin(p2p.ResponseTimeout)
	if err != nil {
		return err
	}
	if resp.Type != p2p.MsgTx {
		return fmt.Errorf("expected tx, got %s", resp.Type)
	}

	var tx database.BlockTx
	if err := resp.Decode(&tx); err != nil {
		return err
	}

	return s.UpsertMempool(tx)
}
