package main

import (
	"fmt"

	"github.com/OKaluzny/evm-account/internal/wallet"
	"github.com/OKaluzny/evm-account/pkg/models"
	"github.com/spf13/cobra"
)

func (a *app) addressCmd() *cobra.Command {
	var index int

	cmd := &cobra.Command{
		Use:   "address",
		Short: "Print the account address and public key derived from the mnemonic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			derived, err := a.derive(cmd, wallet.NewETHGenerator(), index)
			if err != nil {
				return err
			}
			addr, err := wallet.ParseAddress(derived.Address)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Address:    %s\n", addr.Checksum())
			fmt.Fprintf(out, "Path:       %s\n", derived.DerivationPath)
			fmt.Fprintf(out, "Public key: 0x%s\n", derived.PublicKey)
			return nil
		},
	}
	cmd.Flags().IntVar(&index, "index", -1, "address index under m/44'/60'/0'/0 (default: configured path)")
	return cmd
}

func (a *app) balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance [address]",
		Short: "Print the balance of an address, or of the mnemonic's account",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var address string
			if len(args) == 1 {
				addr, err := wallet.ParseAddress(args[0])
				if err != nil {
					return err
				}
				address = addr.Hex()
			} else {
				acct, err := a.account(cmd, -1)
				if err != nil {
					return err
				}
				acct.Zero()
				address = acct.Address.Hex()
			}

			balance, err := a.client().GetBalance(cmd.Context(), address)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s ETH\n", wallet.FormatEthBalance(balance))
			return nil
		},
	}
}

func (a *app) sendCmd() *cobra.Command {
	var (
		to       string
		amount   string
		gasLimit uint64
		wait     bool
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send ETH from the mnemonic's account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !wallet.IsValidAddress(to) {
				return fmt.Errorf("%w: invalid recipient %q", models.ErrValidation, to)
			}
			value, err := wallet.ParseEthToWei(amount)
			if err != nil {
				return err
			}

			acct, err := a.account(cmd, -1)
			if err != nil {
				return err
			}
			defer acct.Zero()

			client := a.client()
			signed, err := a.sender(client).Send(cmd.Context(), sendRequest(acct, to, value, gasLimit))
			if err != nil {
				return err
			}
			return a.report(cmd, client, signed, wait)
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "recipient address")
	cmd.Flags().StringVar(&amount, "amount", "", "amount in ETH, e.g. 0.01")
	cmd.Flags().Uint64Var(&gasLimit, "gas-limit", 0, "gas limit (default from config)")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the receipt")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func (a *app) selfTestCmd() *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "selftest",
		Short: "Send 1 wei to the account itself to check signing and connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			acct, err := a.account(cmd, -1)
			if err != nil {
				return err
			}
			defer acct.Zero()

			client := a.client()
			signed, err := a.sender(client).SendSelfTest(cmd.Context(), acct.PrivateKey, "")
			if err != nil {
				return err
			}
			return a.report(cmd, client, signed, wait)
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the receipt")
	return cmd
}

func (a *app) waitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wait <tx-hash>",
		Short: "Wait until a transaction is mined",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			receipt, err := a.waiter(a.client()).WaitForTransaction(cmd.Context(), args[0], a.cfg.ConfirmTimeout)
			if receipt != nil {
				printReceipt(cmd.OutOrStdout(), receipt)
			}
			return err
		},
	}
}
