package oracle

import "fmt"

// REST paths exposed by the chain data provider. Consolidated here so a
// provider swap only touches this file.
const (
	chainInfoPath = "/v1/chain/info"
	txPathFmt     = "/v1/tx/%s"
	balancePathFmt = "/v1/address/%s/balance"
)

func txPath(txid string) string {
	return fmt.Sprintf(txPathFmt, txid)
}

func balancePath(address string) string {
	return fmt.Sprintf(balancePathFmt, address)
}
