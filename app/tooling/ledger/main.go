// This program provides tooling to manage keys, submit transactions and
// check a ledger node or a stored chain.
package main

import "github.com/contentledger/blockchain/app/tooling/ledger/cmd"

func main() {
	cmd.Execute()
}
