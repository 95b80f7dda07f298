package server

import (
	"sort"
	"sync"

	"golang.org/x/net/websocket"
)

// peer is one websocket client. Writes are serialized per peer.
type peer struct {
	id   string
	mu   sync.Mutex
	conn *websocket.Conn
}

func (p *peer) write(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.conn.Write(frame)
	return err
}

// hub tracks connected clients.
type hub struct {
	mu    sync.Mutex
	peers map[string]*peer
}

func newHub() *hub {
	return &hub{peers: make(map[string]*peer)}
}

func (h *hub) add(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peers[p.id] = p
}

func (h *hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.peers, id)
}

func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// snapshot returns the connected peers ordered by id.
func (h *hub) snapshot() []*peer {
	h.mu.Lock()
	out := make([]*peer, 0, len(h.peers))
	for _, p := range h.peers {
		out = append(out, p)
	}
	h.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}
