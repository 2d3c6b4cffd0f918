package airdrop

import (
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/solana-playground/playnet/cmd/playnet/session"
	"github.com/spf13/cobra"
)

var Cmd = cobra.Command{
	Use:   "airdrop <pubkey> <lamports>",
	Short: "Transfer lamports from the airdrop authority",
	Args:  cobra.ExactArgs(2),
	RunE:  run,
}

func run(c *cobra.Command, args []string) error {
	to, err := solana.PublicKeyFromBase58(args[0])
	if err != nil {
		return fmt.Errorf("invalid pubkey %s: %w", args[0], err)
	}
	lamports, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid lamports %s: %w", args[1], err)
	}

	s, err := session.Open(false)
	if err != nil {
		return fmt.Errorf("opening bank: %w", err)
	}
	defer s.Close()

	sig, err := s.Bank.Airdrop(to, lamports)
	if err != nil {
		return fmt.Errorf("airdrop failed: %w", err)
	}
	if err := s.Save(); err != nil {
		return fmt.Errorf("saving bank: %w", err)
	}
	fmt.Println(sig)
	return nil
}
