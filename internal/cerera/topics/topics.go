// Package topics names the gossip transport topics consumed by the
// consensus core.
package topics

const (
	Transaction         = "TRANSACTION"
	PBFT                = "PBFT"
	LedgerUpgradeNotify = "LEDGER_UPGRADE_NOTIFY"
	Ledgers             = "LEDGERS"
)
