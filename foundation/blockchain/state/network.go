package state

import (
	"fmt"
	"net"

	"github.com/fractalchain/node/foundation/blockchain/database"
	"github.com/fractalchain/node/foundation/blockchain/p2p"
	"github.com/fractalchain/node/foundation/blockchain/peer"
)

// dial opens a connection to pr and performs the handshake both sides are
// required to do before exchanging anything else. The peer's announced
// identity and height are returned alongside the framed connection.
func (s *State) dial(pr peer.Peer) (*p2p.Conn, p2p.HandshakePayload, error) {
	raw, err := net.DialTimeout("tcp", pr.Host, p2p.HandshakeTimeout)
	if err != nil {
		return nil, p2p.HandshakePayload{}, err
	}
	conn := p2p.NewConn(raw)

	tip := s.db.LatestBlock()
	hello, err := p2p.NewMessage(p2p.MsgHandshake, p2p.HandshakePayload{
		Version:   p2p.ProtocolVersion,
		NetworkID: fmt.Sprintf("%d", s.genesis.NetworkID),
		NodeID:    s.host,
		Height:    tip.Header.Index,
		BlockHash: tip.Hash(),
	})
	if err != nil {
		conn.Close()
		return nil, p2p.HandshakePayload{}, err
	}

	if err := conn.Send(hello); err != nil {
		conn.Close()
		return nil, p2p.HandshakePayload{}, err
	}

	reply, err := conn.ReceiveWithin(p2p.HandshakeTimeout)
	if err != nil {
		conn.Close()
		return nil, p2p.HandshakePayload{}, err
	}
	if reply.Type != p2p.MsgHandshake {
		conn.Close()
		return nil, p2p.HandshakePayload{}, fmt.Errorf("expected handshake, got %s", reply.Type)
	}

	var peerHello p2p.HandshakePayload
	if err := reply.Decode(&peerHello); err != nil {
		conn.Close()
		return nil, p2p.HandshakePayload{}, err
	}

	return conn, peerHello, nil
}

// NetSendBlockToPeers announces a newly accepted block to every known peer
// by sending inv_block. Peers that want the full block follow up with
// get_block, per the announce-only rule.
func (s *State) NetSendBlockToPeers(block database.Block) error {
	s.evHandler("state: NetSendBlockToPeers: started")
	defer s.evHandler("state: NetSendBlockToPeers: completed")

	inv, err := p2p.NewMessage(p2p.MsgInvBlock, p2p.InvBlockPayload{
		BlockHash: block.Hash(),
		Height:    block.Header.Index,
	})
	if err != nil {
		return err
	}

	for _, pr := range s.RetrieveKnownPeers() {
		if err := s.announce(pr, inv); err != nil {
			s.evHandler("state: NetSendBlockToPeers: %s: WARNING: %s", pr.Host, err)
		}
	}

	return nil
}

// NetSendTxToPeers announces a newly accepted transaction to every known
// peer by sending inv_tx.
func (s *State) NetSendTxToPeers(tx database.BlockTx) {
	s.evHandler("state: NetSendTxToPeers: started")
	defer s.evHandler("state: NetSendTxToPeers: completed")

	inv, err := p2p.NewMessage(p2p.MsgInvTx, p2p.InvTxPayload{TxID: tx.TxIDHex()})
	if err != nil {
		s.evHandler("state: NetSendTxToPeers: ERROR: %s", err)
		return
	}

	for _, pr := range s.RetrieveKnownPeers() {
		if err := s.announce(pr, inv); err != nil {
			s.evHandler("state: NetSendTxToPeers: %s: WARNING: %s", pr.Host, err)
		}
	}
}

// announce dials pr, exchanges handshakes, and sends one message. It is
// used for fire-and-forget inv_block/inv_tx gossip where no response is
// expected.
func (s *State) announce(pr peer.Peer, msg p2p.Message) error {
	conn, _, err := s.dial(pr)
	if err != nil {
		return err
	}
	defer conn.Close()

	return conn.Send(msg)
}

// NetRequestPeerStatus dials pr, completes the handshake, and reports its
// announced height and known peers so this node's peer set and sync state
// can be updated.
func (s *State) NetRequestPeerStatus(pr peer.Peer) (peer.PeerStatus, error) {
	s.evHandler("state: NetRequestPeerStatus: started: %s", pr)
	defer s.evHandler("state: NetRequestPeerStatus: completed: %s", pr)

	conn, hello, err := s.dial(pr)
	if err != nil {
		return peer.PeerStatus{}, err
	}
	defer conn.Close()

	return peer.PeerStatus{
		LatestBlockHash:   hello.BlockHash,
		LatestBlockNumber: hello.Height,
	}, nil
}

// NetQueryPeerStatus is an alias for NetRequestPeerStatus used by the sync
// loop, kept distinct so its call sites read like what they're doing:
// checking in on a peer already known, not discovering a new one.
func (s *State) NetQueryPeerStatus(pr peer.Peer) (peer.PeerStatus, error) {
	return s.NetRequestPeerStatus(pr)
}

// NetRequestAddPeer dials pr purely to let it learn this node's address
// through the handshake, used to keep both sides' peer sets converging.
func (s *State) NetRequestAddPeer(pr peer.Peer) error {
	conn, _, err := s.dial(pr)
	if err != nil {
		return err
	}
	defer conn.Close()

	return nil
}

// NetRetrievePeerBlocks syncs every block pr has beyond this node's current
// height, fetching each by hash via get_block and applying it in order.
func (s *State) NetRetrievePeerBlocks(pr peer.Peer) error {
	s.evHandler("state: NetRetrievePeerBlocks: started: %s", pr)
	defer s.evHandler("state: NetRetrievePeerBlocks: completed: %s", pr)

	conn, hello, err := s.dial(pr)
	if err != nil {
		return err
	}
	defer conn.Close()

	localHeight := s.Height()
	if hello.Height <= localHeight {
		return nil
	}

	headersReq, err := p2p.NewMessage(p2p.MsgGetHeaders, p2p.GetHeadersPayload{FromHeight: localHeight})
	if err != nil {
		return err
	}
	if err := conn.Send(headersReq); err != nil {
		return err
	}

	headersResp, err := conn.ReceiveWithin(p2p.ResponseTimeout)
	if err != nil {
		return err
	}
	if headersResp.Type != p2p.MsgHeaders {
		return fmt.Errorf("expected headers, got %s", headersResp.Type)
	}

	var headers p2p.HeadersPayload
	if err := headersResp.Decode(&headers); err != nil {
		return err
	}

	for _, h := range headers.Headers {
		req, err := p2p.NewMessage(p2p.MsgGetBlock, p2p.GetBlockPayload{BlockHash: h.Hash})
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

		if err := s.AddBlock(block); err != nil {
			return fmt.Errorf("height %d: %w", h.Height, err)
		}
	}

	return nil
}

// ServeHeaders answers a get_headers request with every header summary this
// node has after fromHeight.
func (s *State) ServeHeaders(fromHeight uint64) ([]p2p.HeaderSummary, error) {
	height := s.Height()

	var out []p2p.HeaderSummary
	for h := fromHeight + 1; h <= height; h++ {
		block, err := s.GetBlockByIndex(h)
		if err != nil {
			return nil, err
		}
		out = append(out, p2p.HeaderSummary{Height: h, Hash: block.Hash()})
	}

	return out, nil
}

// ServeBlock answers a get_block request with the block the local chain
// holds at the requested hash, used by the connection handler that accepts
// inbound peer connections.
func (s *State) ServeBlock(hash string) (database.Block, error) {
	return s.db.GetBlockByHash(hash)
}
