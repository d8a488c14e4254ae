package storage

import (
	"fmt"
	"sync"

	"github.com/cerera/internal/cerera/types"
	"github.com/tyler-smith/go-bip32"
)

// structure stores accounts in memory in two plain maps: by address and
// by insertion index
type AccountsTrie struct {
	mu         sync.RWMutex
	index      map[int64]*types.StateAccount
	accounts   map[types.Address]*types.StateAccount
	lastInsert int64
}

func GetAccountsTrie() *AccountsTrie {
	// this smth like init function
	return &AccountsTrie{
		index:      make(map[int64]*types.StateAccount),
		accounts:   make(map[types.Address]*types.StateAccount),
		lastInsert: 0,
	}
}

// add account with address to Account Tree
func (at *AccountsTrie) Append(addr types.Address, sa *types.StateAccount) {
	at.mu.Lock()
	defer at.mu.Unlock()
	at.accounts[addr] = sa
	at.index[at.lastInsert] = sa
	at.lastInsert++
}

func (at *AccountsTrie) Clear() error {
	at.mu.Lock()
	defer at.mu.Unlock()
	at.accounts = make(map[types.Address]*types.StateAccount)
	at.index = make(map[int64]*types.StateAccount)
	at.lastInsert = 0
	return nil
}

func (at *AccountsTrie) GetAccount(addr types.Address) *types.StateAccount {
	at.mu.RLock()
	defer at.mu.RUnlock()
	return at.accounts[addr]
}

func (at *AccountsTrie) Size() int {
	at.mu.RLock()
	defer at.mu.RUnlock()
	return len(at.accounts)
}

func (at *AccountsTrie) GetAll() map[types.Address]float64 {
	at.mu.RLock()
	defer at.mu.RUnlock()
	res := make(map[types.Address]float64)
	for addr, v := range at.accounts {
		res[addr] = v.GetBalance()
	}
	return res
}

func (at *AccountsTrie) GetByIndex(idx int64) *types.StateAccount {
	at.mu.RLock()
	defer at.mu.RUnlock()
	return at.index[idx]
}

// FindAddrByPub resolves the address whose stored master public key
// matches the b58-serialized key.
func (at *AccountsTrie) FindAddrByPub(pub string) (types.Address, error) {
	var want [78]byte
	copy(want[:], []byte(pub))
	at.mu.RLock()
	defer at.mu.RUnlock()
	for addr, sa := range at.accounts {
		if sa != nil && sa.MPub == want {
			return addr, nil
		}
	}
	return types.EmptyAddress(), fmt.Errorf("no account for public key")
}

// GetKBytes returns the stored master-public-key bytes for the account
// matching pubKey, or nil if no account holds it.
func (at *AccountsTrie) GetKBytes(pubKey *bip32.Key) []byte {
	var want [78]byte
	copy(want[:], []byte(pubKey.B58Serialize()))
	at.mu.RLock()
	defer at.mu.RUnlock()
	for _, sa := range at.accounts {
		if sa != nil && sa.MPub == want {
			return sa.MPub[:]
		}
	}
	return nil
}
