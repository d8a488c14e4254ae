package validator

import "github.com/cerera/internal/cerera/types"

const ORACLE_SERVICE_NAME = "CERERA_VALIDATOR_54013.10.25"

func (o *Oracle) ServiceName() string {
	return ORACLE_SERVICE_NAME
}

// Exec wires Oracle into the service registry (cerera.transaction.*), the
// same dispatch pattern vault/chain/pool use.
func (o *Oracle) Exec(method string, params []interface{}) interface{} {
	switch method {
	case "validate":
		tx, ok := params[0].(*types.GTransaction)
		if !ok || tx == nil {
			return false
		}
		return ValidateTransaction(tx, tx.From())
	default:
		return nil
	}
}
