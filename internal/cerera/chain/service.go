package chain

const CHAIN_SERVICE_NAME = "CHAIN_CERERA_001_1_7"

func (c *Chain) ServiceName() string {
	return CHAIN_SERVICE_NAME
}

// Exec wires Chain into the service registry (cerera.chain.*), mirroring
// the vault's RPC dispatch pattern for ledger/validator queries.
func (c *Chain) Exec(method string, params []interface{}) interface{} {
	switch method {
	case "lastClosedLedger":
		return c.LastClosedLedger()
	case "lastBlock":
		return c.LastBlock()
	case "getValidators":
		seq, ok := params[0].(uint64)
		if !ok {
			seq = 0
		}
		return c.GetValidators(seq)
	case "getBySeq":
		seq, ok := params[0].(uint64)
		if !ok {
			return nil
		}
		cv, proof, err := c.ConsensusValueFromDB(seq)
		if err != nil {
			return err.Error()
		}
		return struct {
			Value *ConsensusValue
			Proof int
		}{cv, len(proof)}
	default:
		return nil
	}
}
