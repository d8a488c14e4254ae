package pool

import (
	"github.com/cerera/internal/cerera/common"
)

const POOL_SERVICE_NAME = "POOL_CERERA_001_1_3"

func (p *Pool) ServiceName() string {
	return POOL_SERVICE_NAME
}

// Exec wires Pool into the service registry (cerera.pool.*) so RPC/CLI
// callers can inspect and query the pool the same way they do the vault.
func (p *Pool) Exec(method string, params []interface{}) interface{} {
	switch method {
	case "size":
		return p.Size()
	case "contains":
		hashStr, ok := params[0].(string)
		if !ok {
			return nil
		}
		return p.Contains(common.HexToHash(hashStr))
	case "getByHash":
		hashStr, ok := params[0].(string)
		if !ok {
			return nil
		}
		return p.QueryByHash(common.HexToHash(hashStr))
	case "top":
		limit, ok := params[0].(int)
		if !ok {
			limit = p.cfg.MaxTransPerLedger
		}
		return p.Top(limit)
	default:
		return nil
	}
}
