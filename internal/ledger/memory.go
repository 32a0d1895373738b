package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/birthmark-protocol/birthmark/pkg/logging"
	"github.com/birthmark-protocol/birthmark/pkg/model"
)

const (
	// DefaultBaseBlock is the block number a fresh MemoryLedger starts at.
	DefaultBaseBlock int64 = 1000
	// DefaultBlockSize is how many transactions close one block.
	DefaultBlockSize = 10
	// DefaultNetworkTag tags records from an unnamed MemoryLedger.
	DefaultNetworkTag = "local"

	// SubmitLatency and LookupLatency are the simulated round-trips.
	SubmitLatency = 100 * time.Millisecond
	LookupLatency = 50 * time.Millisecond

	txIDPrefix = "mock_tx_"
)

// MemoryOptions configures a MemoryLedger.
type MemoryOptions struct {
	NetworkTag      string
	SimulateLatency bool
	BlockSize       int
}

// MemoryLedger is the reference in-process backend. It is not durable:
// records live as long as the value does.
//
// Transaction ids are "mock_tx_" plus an 8-digit sequence, strictly
// increasing in issuance order. The block number starts at
// DefaultBaseBlock and advances by one each time the transaction count
// reaches a multiple of BlockSize. A record carries the block that was
// current when it was accepted.
type MemoryLedger struct {
	mu      sync.RWMutex
	records map[string]*model.Record
	txCount int64
	block   int64

	network   string
	latency   bool
	blockSize int64
	sleep     func(time.Duration)
	log       *logging.Logger
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger(opts MemoryOptions) *MemoryLedger {
	network := opts.NetworkTag
	if network == "" {
		network = DefaultNetworkTag
	}
	blockSize := opts.BlockSize
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &MemoryLedger{
		records:   make(map[string]*model.Record),
		block:     DefaultBaseBlock,
		network:   network,
		latency:   opts.SimulateLatency,
		blockSize: int64(blockSize),
		sleep:     time.Sleep,
		log:       logging.WithFields(map[string]any{"backend": "memory", "network": network}),
	}
}

// Submit never fails. Counter increment, insertion and block advancement
// happen in one critical section; the simulated latency is paid after the
// lock is released and cannot be cancelled.
func (m *MemoryLedger) Submit(_ context.Context, s model.Submission) (string, error) {
	m.mu.Lock()
	m.txCount++
	txID := fmt.Sprintf("%s%08d", txIDPrefix, m.txCount)
	m.records[s.Fingerprint] = s.Accept(txID, m.block, m.network)
	advanced := m.txCount%m.blockSize == 0
	if advanced {
		m.block++
	}
	block := m.block
	m.mu.Unlock()

	if advanced {
		m.log.Debug("block advanced", map[string]any{"block": block, "transaction_id": txID})
	}
	if m.latency {
		m.sleep(SubmitLatency)
	}
	return txID, nil
}

// Lookup returns a copy of the stored record, or nil if absent.
func (m *MemoryLedger) Lookup(_ context.Context, fingerprint string) (*model.Record, error) {
	if m.latency {
		m.sleep(LookupLatency)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.records[fingerprint].Clone(), nil
}

// SubmitBatch submits each entry in order with no cross-record atomicity.
func (m *MemoryLedger) SubmitBatch(ctx context.Context, subs []model.Submission) ([]string, error) {
	return submitEach(ctx, m, subs)
}

// Stats reports aggregate counts.
func (m *MemoryLedger) Stats(_ context.Context) (model.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return model.Stats{
		TotalRecords:      len(m.records),
		TotalTransactions: m.txCount,
		CurrentBlock:      m.block,
		NetworkTag:        m.network,
	}, nil
}

// NetworkTag returns the tag stamped on every record.
func (m *MemoryLedger) NetworkTag() string {
	return m.network
}
