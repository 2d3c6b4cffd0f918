package status

import (
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/solana-playground/playnet/cmd/playnet/session"
	"github.com/spf13/cobra"
)

var Cmd = cobra.Command{
	Use:   "status",
	Short: "Show slot, hashes and the airdrop authority of the bank",
	Args:  cobra.NoArgs,
	RunE:  run,
}

func run(c *cobra.Command, args []string) error {
	s, err := session.Open(false)
	if err != nil {
		return fmt.Errorf("opening bank: %w", err)
	}
	defer s.Close()
	b := s.Bank

	hash := b.AccountsHash()
	fmt.Printf("slot:              %d\n", b.Slot())
	fmt.Printf("block height:      %d\n", b.BlockHeight())
	fmt.Printf("latest blockhash:  %s\n", b.LatestBlockhash())
	fmt.Printf("genesis hash:      %s\n", b.GenesisHash())
	fmt.Printf("accounts hash:     %s\n", base58.Encode(hash[:]))
	fmt.Printf("airdrop authority: %s\n", b.AirdropPubkey())
	return nil
}
