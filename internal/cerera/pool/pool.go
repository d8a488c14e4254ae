// Package pool implements the transaction pool: admission, ordering,
// replacement and eviction of signed transactions awaiting inclusion in a
// consensus value.
package pool

import (
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/cerera/internal/cerera/cerr"
	"github.com/cerera/internal/cerera/common"
	"github.com/cerera/internal/cerera/config"
	"github.com/cerera/internal/cerera/logger"
	"github.com/cerera/internal/cerera/observer"
	"github.com/cerera/internal/cerera/types"
	"github.com/prometheus/client_golang/prometheus"
)

var plogger = logger.Named("pool")

var (
	poolSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pool_size",
		Help: "Current number of transactions held in the pool",
	})
	poolBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pool_bytes",
		Help: "Current total byte size of pooled transactions",
	})
	poolTxAddedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pool_tx_added_total",
		Help: "Total number of transactions admitted into the pool",
	})
	poolTxRemovedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pool_tx_removed_total",
		Help: "Total number of transactions removed from the pool (commit, timeout, eviction)",
	})
	poolTxRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pool_tx_rejected_total",
		Help: "Total number of transactions rejected during admission, by reason",
	}, []string{"reason"})
	poolMaxSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pool_max_size",
		Help: "Configured queue_limit for the pool",
	})
)

func init() {
	prometheus.MustRegister(poolSize, poolBytes, poolTxAddedTotal, poolTxRemovedTotal, poolTxRejectedTotal, poolMaxSize)
}

type sourceNonceKey struct {
	source types.Address
	nonce  uint64
}

type entry struct {
	tx         *types.GTransaction
	enqueuedAt time.Time
}

// Result classifies the outcome of Import.
type Result int

const (
	Admitted Result = iota
	Duplicate
	Rejected
)

// AdmitOutcome is the result of an admission attempt.
type AdmitOutcome struct {
	Result Result
	Err    error
}

// Pool is a three-index transaction pool: a
// content-hash map for membership, a (source,nonce) map for replacement,
// and a priority order for proposal selection.
type Pool struct {
	mu sync.RWMutex

	cfg config.ConsensusConfig

	byHash         map[common.Hash]*entry
	bySourceNonce  map[sourceNonceKey]*entry
	lastKnownNonce map[types.Address]uint64

	observers []observer.Observer
}

func New(cfg config.ConsensusConfig) *Pool {
	poolMaxSize.Set(float64(cfg.QueueLimit))
	return &Pool{
		cfg:            cfg,
		byHash:         make(map[common.Hash]*entry),
		bySourceNonce:  make(map[sourceNonceKey]*entry),
		lastKnownNonce: make(map[types.Address]uint64),
	}
}

func (p *Pool) AddObserver(o observer.Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, o)
}

func (p *Pool) notifyLocked(tx *types.GTransaction) {
	for _, o := range p.observers {
		o.Update(tx)
	}
}

// Import admits tx into the pool.
// currentSourceNonce is the caller's most recently applied nonce for
// tx.From(); the pool folds it into its cached last-known nonce.
func (p *Pool) Import(tx *types.GTransaction, currentSourceNonce uint64) AdmitOutcome {
	p.mu.Lock()
	defer p.mu.Unlock()

	hash := tx.Hash()
	if _, ok := p.byHash[hash]; ok {
		return AdmitOutcome{Result: Duplicate}
	}

	source := tx.From()
	if currentSourceNonce > p.lastKnownNonce[source] {
		p.lastKnownNonce[source] = currentSourceNonce
	}
	known := p.lastKnownNonce[source]

	if !tx.IsSigned() {
		poolTxRejectedTotal.WithLabelValues("invalid_signature").Inc()
		return AdmitOutcome{Result: Rejected, Err: cerr.New("pool.Import", cerr.InvalidSignature, nil)}
	}
	if tx.Nonce() <= known {
		poolTxRejectedTotal.WithLabelValues("nonce_gap").Inc()
		return AdmitOutcome{Result: Rejected, Err: cerr.New("pool.Import", cerr.NonceGap, nil)}
	}
	if tx.GasPrice() == nil || tx.GasPrice().Sign() < 0 {
		poolTxRejectedTotal.WithLabelValues("fee_not_enough").Inc()
		return AdmitOutcome{Result: Rejected, Err: cerr.New("pool.Import", cerr.FeeNotEnough, nil)}
	}
	if p.cfg.TxLimitBytes > 0 && int(tx.Size()) >= p.cfg.TxLimitBytes {
		poolTxRejectedTotal.WithLabelValues("invalid_parameter").Inc()
		return AdmitOutcome{Result: Rejected, Err: cerr.New("pool.Import", cerr.InvalidParameter, nil)}
	}

	key := sourceNonceKey{source, tx.Nonce()}
	replaced := false
	if old, ok := p.bySourceNonce[key]; ok {
		if !underpricedReplacement(old.tx.GasPrice(), tx.GasPrice(), p.cfg.ReplacementBumpPermille) {
			delete(p.byHash, old.tx.Hash())
			delete(p.bySourceNonce, key)
			replaced = true
			plogger.Debugw("transaction replaced", "source", source, "nonce", tx.Nonce())
		} else {
			poolTxRejectedTotal.WithLabelValues("underpriced_replacement").Inc()
			return AdmitOutcome{Result: Rejected, Err: cerr.New("pool.Import", cerr.UnderpricedReplacement, nil)}
		}
	}

	if !replaced && p.countForSourceLocked(source) >= p.cfg.QueuePerAccountTxsLimit {
		poolTxRejectedTotal.WithLabelValues("per_account_cap").Inc()
		return AdmitOutcome{Result: Rejected, Err: cerr.New("pool.Import", cerr.PerAccountCap, nil)}
	}

	e := &entry{tx: tx, enqueuedAt: time.Now()}
	p.byHash[hash] = e
	p.bySourceNonce[key] = e
	poolTxAddedTotal.Inc()
	p.notifyLocked(tx)

	if len(p.byHash) > p.cfg.QueueLimit {
		dropped := p.evictLowestPriorityLocked()
		if dropped == hash {
			poolTxRejectedTotal.WithLabelValues("pool_full").Inc()
			p.refreshMetricsLocked()
			return AdmitOutcome{Result: Rejected, Err: cerr.New("pool.Import", cerr.PoolFull, nil)}
		}
	}

	p.refreshMetricsLocked()
	plogger.Debugw("transaction admitted", "hash", hash, "source", source, "nonce", tx.Nonce())
	return AdmitOutcome{Result: Admitted}
}

// underpricedReplacement reports whether newPrice fails to clear the
// replacement bump threshold over oldPrice (>= bumpPermille/1000 increase).
func underpricedReplacement(oldPrice, newPrice *big.Int, bumpPermille int64) bool {
	if oldPrice == nil || newPrice == nil {
		return true
	}
	threshold := new(big.Int).Mul(oldPrice, big.NewInt(1000+bumpPermille))
	threshold.Div(threshold, big.NewInt(1000))
	return newPrice.Cmp(threshold) < 0
}

func (p *Pool) countForSourceLocked(source types.Address) int {
	n := 0
	for k := range p.bySourceNonce {
		if k.source == source {
			n++
		}
	}
	return n
}

func (p *Pool) refreshMetricsLocked() {
	poolSize.Set(float64(len(p.byHash)))
	var bytes int
	for _, e := range p.byHash {
		bytes += int(e.tx.Size())
	}
	poolBytes.Set(float64(bytes))
}

// priorityOrderLocked returns entries ordered for proposal: primary key
// nonce-minus-last-known-nonce ascending, tie-break gas_price descending.
func (p *Pool) priorityOrderLocked() []*entry {
	out := make([]*entry, 0, len(p.byHash))
	for _, e := range p.byHash {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		gi := out[i].tx.Nonce() - p.lastKnownNonce[out[i].tx.From()]
		gj := out[j].tx.Nonce() - p.lastKnownNonce[out[j].tx.From()]
		if gi != gj {
			return gi < gj
		}
		return out[i].tx.GasPrice().Cmp(out[j].tx.GasPrice()) > 0
	})
	return out
}

func (p *Pool) evictLowestPriorityLocked() common.Hash {
	order := p.priorityOrderLocked()
	if len(order) == 0 {
		return common.Hash{}
	}
	worst := order[len(order)-1]
	hash := worst.tx.Hash()
	key := sourceNonceKey{worst.tx.From(), worst.tx.Nonce()}
	delete(p.byHash, hash)
	delete(p.bySourceNonce, key)
	poolTxRemovedTotal.Inc()
	return hash
}

// Top returns up to limit admissible transactions for proposal, respecting
// the byte budget txSetLimitBytes and contiguous per-source nonce ordering.
func (p *Pool) Top(limit int) []*types.GTransaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	order := p.priorityOrderLocked()
	nextExpected := make(map[types.Address]uint64, len(p.lastKnownNonce))
	for addr, nonce := range p.lastKnownNonce {
		nextExpected[addr] = nonce + 1
	}

	out := make([]*types.GTransaction, 0, limit)
	budget := p.cfg.TxSetLimitBytes
	used := 0
	for _, e := range order {
		if len(out) >= limit {
			break
		}
		source := e.tx.From()
		want, ok := nextExpected[source]
		if !ok {
			want = 1
		}
		if e.tx.Nonce() != want {
			continue
		}
		size := int(e.tx.Size())
		if used+size > budget {
			continue
		}
		out = append(out, e.tx)
		used += size
		nextExpected[source] = want + 1
	}
	return out
}

// Remove drops transactions whose (source,nonce) appear in a committed
// block. If closed is true, the source's cached last-known nonce is raised
// to the committed nonce.
func (p *Pool) Remove(batch []*types.GTransaction, closed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, tx := range batch {
		key := sourceNonceKey{tx.From(), tx.Nonce()}
		if e, ok := p.bySourceNonce[key]; ok {
			delete(p.byHash, e.tx.Hash())
			delete(p.bySourceNonce, key)
			poolTxRemovedTotal.Inc()
		}
		if closed && tx.Nonce() > p.lastKnownNonce[tx.From()] {
			p.lastKnownNonce[tx.From()] = tx.Nonce()
		}
	}
	p.refreshMetricsLocked()
}

// CheckTimeout removes and returns entries older than PoolTimeoutSeconds.
func (p *Pool) CheckTimeout(now time.Time) []*types.GTransaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	timeout := time.Duration(p.cfg.PoolTimeoutSeconds) * time.Second
	var expired []*types.GTransaction
	for hash, e := range p.byHash {
		if now.Sub(e.enqueuedAt) > timeout {
			expired = append(expired, e.tx)
			delete(p.byHash, hash)
			delete(p.bySourceNonce, sourceNonceKey{e.tx.From(), e.tx.Nonce()})
			poolTxRemovedTotal.Inc()
		}
	}
	if len(expired) > 0 {
		p.refreshMetricsLocked()
	}
	return expired
}

func (p *Pool) Contains(hash common.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.byHash[hash]
	return ok
}

func (p *Pool) QueryByHash(hash common.Hash) *types.GTransaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if e, ok := p.byHash[hash]; ok {
		return e.tx
	}
	return nil
}

func (p *Pool) QueryBySourceNonce(source types.Address, nonce uint64) *types.GTransaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if e, ok := p.bySourceNonce[sourceNonceKey{source, nonce}]; ok {
		return e.tx
	}
	return nil
}

func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byHash)
}
