package genesis

import (
	"fmt"

	"github.com/solana-playground/playnet/cmd/playnet/session"
	"github.com/spf13/cobra"
)

var (
	Cmd = cobra.Command{
		Use:   "genesis",
		Short: "Create a bank at genesis, replacing any stored snapshot",
		Args:  cobra.NoArgs,
		RunE:  run,
	}
)

func run(c *cobra.Command, args []string) error {
	s, err := session.Open(true)
	if err != nil {
		return fmt.Errorf("opening bank: %w", err)
	}
	defer s.Close()

	if err := s.Save(); err != nil {
		return fmt.Errorf("saving bank: %w", err)
	}

	fmt.Printf("genesis hash:      %s\n", s.Bank.GenesisHash())
	fmt.Printf("airdrop authority: %s\n", s.Bank.AirdropPubkey())
	return nil
}
