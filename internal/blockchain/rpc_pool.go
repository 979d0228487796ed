package blockchain

import (
	"sync"

	"github.com/gagliardetto/solana-go/rpc"
)

// RPCPool rotates requests across the configured RPC endpoints so a single
// throttled endpoint does not stall confirmation polling.
type RPCPool struct {
	clients []*rpc.Client
	mu      sync.Mutex
	index   int
}

// NewRPCPool creates a round-robin pool over rpcList.
func NewRPCPool(rpcList []string) *RPCPool {
	clients := make([]*rpc.Client, 0, len(rpcList))
	for _, url := range rpcList {
		clients = append(clients, rpc.New(url))
	}
	return &RPCPool{clients: clients}
}

// Next returns the next client in rotation.
func (p *RPCPool) Next() *rpc.Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	client := p.clients[p.index]
	p.index = (p.index + 1) % len(p.clients)
	return client
}

// Size reports how many endpoints are in the pool.
func (p *RPCPool) Size() int {
	return len(p.clients)
}
