// Package validator implements the pre-execution oracle and per-transaction
// validation/execution logic consumed by the glue driver and the ledger
// applier. It has no dependency on
// internal/cerera/chain: the chain package calls into validator, not the
// other way around, so ledger application and transaction execution can
// compose without an import cycle.
package validator

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/cerera/internal/cerera/logger"
	"github.com/cerera/internal/cerera/storage"
	"github.com/cerera/internal/cerera/types"
	"github.com/prometheus/client_golang/prometheus"
)

var vlogger = logger.Named("validator")

var (
	ErrNoRecipient       = errors.New("validator: transaction missing recipient address")
	ErrInsufficientFunds = errors.New("validator: sender balance below value + gas cost")
	ErrGasBelowMinimum   = errors.New("validator: gas cost below configured minimum")
)

var (
	valTxValidated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "validator_tx_validated_total",
		Help: "Total number of transactions validated successfully",
	})
	valTxRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "validator_tx_rejected_total",
		Help: "Total number of transactions rejected during validation",
	})
	valExecuteSuccess = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "validator_execute_success_total",
		Help: "Total number of executed transactions successfully applied",
	})
	valExecuteError = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "validator_execute_error_total",
		Help: "Total number of transaction execution errors",
	})
	valOracleDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "validator_oracle_dropped_total",
		Help: "Total number of transactions dropped by the pre-execution oracle",
	})
)

func init() {
	prometheus.MustRegister(
		valTxValidated,
		valTxRejected,
		valExecuteSuccess,
		valExecuteError,
		valOracleDropped,
	)
}

// ValidateTransaction checks that from can afford tx (value + gas cost)
// against the current vault balance, without mutating any state.
func ValidateTransaction(tx *types.GTransaction, from types.Address) bool {
	localVault := storage.GetVault()
	val := tx.Value()
	gasCost := new(big.Int).Mul(tx.GasPrice(), new(big.Int).SetUint64(tx.Gas()))
	need := new(big.Int).Add(new(big.Int).Set(val), gasCost)

	senderAcc := localVault.Get(from)
	if senderAcc == nil {
		valTxRejected.Inc()
		return false
	}
	if senderAcc.GetBalanceBI().Cmp(need) < 0 {
		valTxRejected.Inc()
		return false
	}
	r, s, _ := tx.RawSignatureValues()
	localVault.CheckRunnable(r, s, tx)
	valTxValidated.Inc()
	return true
}

// ExecuteTransaction applies tx to the account vault: balance/gas checks
// for legacy transfers, direct credit for faucet/coinbase.
func ExecuteTransaction(tx *types.GTransaction, minGasPrice *big.Int) error {
	localVault := storage.GetVault()
	val := tx.Value()

	switch tx.Type() {
	case types.FaucetTxType:
		if tx.To() == nil {
			return ErrNoRecipient
		}
		if err := localVault.DropFaucet(*tx.To(), val, tx.Hash()); err != nil {
			valExecuteError.Inc()
			return err
		}
		valExecuteSuccess.Inc()
		return nil

	case types.CoinbaseTxType:
		if tx.To() == nil {
			return ErrNoRecipient
		}
		if err := localVault.RewardMiner(*tx.To(), val, tx.Hash()); err != nil {
			valExecuteError.Inc()
			return err
		}
		valExecuteSuccess.Inc()
		return nil

	case types.LegacyTxType:
		if tx.To() == nil {
			return ErrNoRecipient
		}
		senderAcc := localVault.Get(tx.From())
		if senderAcc == nil {
			valExecuteError.Inc()
			return ErrInsufficientFunds
		}
		gasCost := new(big.Int).Mul(tx.GasPrice(), new(big.Int).SetUint64(tx.Gas()))
		totalDebit := new(big.Int).Add(new(big.Int).Set(val), gasCost)
		senderBal := senderAcc.GetBalanceBI()
		if senderBal.Cmp(totalDebit) < 0 {
			valExecuteError.Inc()
			return ErrInsufficientFunds
		}
		if minGasPrice != nil && gasCost.Sign() > 0 && gasCost.Cmp(minGasPrice) < 0 {
			valExecuteError.Inc()
			return ErrGasBelowMinimum
		}
		senderAcc.SetBalanceBI(new(big.Int).Sub(senderBal, gasCost))
		localVault.UpdateBalance(tx.From(), *tx.To(), val, tx.Hash())
		valExecuteSuccess.Inc()
		return nil

	default:
		vlogger.Warnw("unknown transaction type", "type", tx.Type(), "from", tx.From())
		valExecuteError.Inc()
		return fmt.Errorf("validator: unknown transaction type %d", tx.Type())
	}
}

// Oracle is the pre-execution oracle: given a candidate
// transaction set, report whether the close should time out, which
// transactions must be dropped, and free-form validation annotations. It
// takes a plain transaction slice (not a chain.ConsensusValue) precisely
// so this package never needs to import chain.
type Oracle struct {
	minGasPrice *big.Int
}

func NewOracle(minGasPrice *big.Int) *Oracle {
	return &Oracle{minGasPrice: minGasPrice}
}

// PreProcess validates each transaction against the current vault state;
// it backs both value acceptance and the propose-time filtering done
// before a node nominates its own value. proposeFlag
// distinguishes "I am about to propose this set" (invalid transactions are
// dropped silently) from "I am checking someone else's proposal" (any
// invalid transaction fails the whole value, signalled via dropIdx).
func (o *Oracle) PreProcess(txs []*types.GTransaction, proposeFlag bool) (timeout bool, dropIdx []int, annotations map[string]string) {
	annotations = make(map[string]string)
	for i, tx := range txs {
		if tx == nil {
			dropIdx = append(dropIdx, i)
			annotations[fmt.Sprintf("tx[%d]", i)] = "nil transaction"
			continue
		}
		if !ValidateTransaction(tx, tx.From()) {
			dropIdx = append(dropIdx, i)
			annotations[fmt.Sprintf("tx[%d]", i)] = "failed balance/signature validation"
			valOracleDropped.Inc()
			continue
		}
		gasCost := new(big.Int).Mul(tx.GasPrice(), new(big.Int).SetUint64(tx.Gas()))
		if o.minGasPrice != nil && gasCost.Sign() > 0 && gasCost.Cmp(o.minGasPrice) < 0 {
			dropIdx = append(dropIdx, i)
			annotations[fmt.Sprintf("tx[%d]", i)] = "gas below minimum"
			valOracleDropped.Inc()
		}
	}
	if !proposeFlag && len(dropIdx) > 0 {
		return true, dropIdx, annotations
	}
	return false, dropIdx, annotations
}
