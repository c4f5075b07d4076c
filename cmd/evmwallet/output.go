package main

import (
	"fmt"
	"io"
	"math/big"

	"github.com/OKaluzny/evm-account/internal/rpc"
	"github.com/OKaluzny/evm-account/internal/tx"
	"github.com/OKaluzny/evm-account/internal/wallet"
	"github.com/OKaluzny/evm-account/pkg/models"
	"github.com/spf13/cobra"
)

// sendRequest builds a one-shot send. Idempotency keys are left to library
// callers that keep a TxStore across calls; each CLI run starts empty.
func sendRequest(acct *wallet.Account, to string, value *big.Int, gasLimit uint64) tx.SendRequest {
	return tx.SendRequest{
		To:         to,
		Value:      value,
		GasLimit:   gasLimit,
		PrivateKey: acct.PrivateKey,
	}
}

// report prints a broadcast transaction and optionally waits for its receipt.
func (a *app) report(cmd *cobra.Command, client *rpc.Client, signed *models.SignedTransaction, wait bool) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Tx hash:   %s\n", signed.TxHash)
	fmt.Fprintf(out, "Nonce:     %d\n", signed.Tx.Nonce)
	fmt.Fprintf(out, "Value:     %s ETH\n", wallet.FormatEthBalance(signed.Tx.Value))
	fmt.Fprintf(out, "Gas price: %s wei\n", signed.Tx.GasPrice)
	if !wait {
		return nil
	}

	receipt, err := a.waiter(client).WaitForTransaction(cmd.Context(), signed.TxHash, a.cfg.ConfirmTimeout)
	if receipt != nil {
		printReceipt(out, receipt)
	}
	return err
}

func printReceipt(out io.Writer, r *models.Receipt) {
	status := "failed"
	if r.Succeeded() {
		status = "success"
	}
	fmt.Fprintf(out, "Status:    %s (%s)\n", status, r.Status)
	fmt.Fprintf(out, "Block:     %s\n", r.BlockNumber)
	fmt.Fprintf(out, "Gas used:  %s\n", r.GasUsed)
}
