package account

import (
	"encoding/hex"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/solana-playground/playnet/cmd/playnet/session"
	"github.com/spf13/cobra"
)

var (
	Cmd = cobra.Command{
		Use:   "account <pubkey>",
		Short: "Show an account",
		Args:  cobra.ExactArgs(1),
		RunE:  runAccount,
	}
	BalanceCmd = cobra.Command{
		Use:   "balance <pubkey>",
		Short: "Show the lamport balance of an account",
		Args:  cobra.ExactArgs(1),
		RunE:  runBalance,
	}

	dumpData bool
)

func init() {
	Cmd.Flags().BoolVar(&dumpData, "data", false, "Print account data as hex")
}

func openAndParse(arg string) (*session.Session, solana.PublicKey, error) {
	pubkey, err := solana.PublicKeyFromBase58(arg)
	if err != nil {
		return nil, solana.PublicKey{}, fmt.Errorf("invalid pubkey %s: %w", arg, err)
	}
	s, err := session.Open(false)
	if err != nil {
		return nil, solana.PublicKey{}, fmt.Errorf("opening bank: %w", err)
	}
	return s, pubkey, nil
}

func runBalance(c *cobra.Command, args []string) error {
	s, pubkey, err := openAndParse(args[0])
	if err != nil {
		return err
	}
	defer s.Close()

	var lamports uint64
	if acct := s.Bank.GetAccount(pubkey); acct != nil {
		lamports = acct.Lamports
	}
	fmt.Println(lamports)
	return nil
}

func runAccount(c *cobra.Command, args []string) error {
	s, pubkey, err := openAndParse(args[0])
	if err != nil {
		return err
	}
	defer s.Close()

	acct := s.Bank.GetAccount(pubkey)
	if acct == nil {
		return fmt.Errorf("account %s not found", pubkey)
	}

	fmt.Printf("pubkey:     %s\n", pubkey)
	fmt.Printf("lamports:   %d\n", acct.Lamports)
	fmt.Printf("owner:      %s\n", solana.PublicKey(acct.Owner))
	fmt.Printf("executable: %t\n", acct.Executable)
	fmt.Printf("rent epoch: %d\n", acct.RentEpoch)
	fmt.Printf("data len:   %d\n", len(acct.Data))
	if dumpData {
		fmt.Print(hex.Dump(acct.Data))
	}
	return nil
}
