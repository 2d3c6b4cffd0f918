package send

import (
	"encoding/base64"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/solana-playground/playnet/cmd/playnet/session"
	"github.com/solana-playground/playnet/pkg/bank"
	"github.com/spf13/cobra"
)

var (
	Cmd = cobra.Command{
		Use:   "send <transaction>",
		Short: "Process a serialized transaction",
		Args:  cobra.ExactArgs(1),
		RunE:  run,
	}

	encoding string
	simulate bool
)

func init() {
	Cmd.Flags().StringVar(&encoding, "encoding", "base64", "Transaction encoding: base64 or base58")
	Cmd.Flags().BoolVar(&simulate, "simulate", false, "Execute without committing")
}

func decodeTransaction(arg string) (*solana.Transaction, error) {
	var raw []byte
	var err error
	switch encoding {
	case "base64":
		raw, err = base64.StdEncoding.DecodeString(arg)
	case "base58":
		raw, err = base58.Decode(arg)
	default:
		return nil, fmt.Errorf("unknown encoding %q", encoding)
	}
	if err != nil {
		return nil, err
	}
	return solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
}

func printSimulation(result *bank.SimulationResult) {
	for _, line := range result.Logs {
		fmt.Println(line)
	}
	fmt.Printf("units consumed: %d\n", result.UnitsConsumed)
	if result.ReturnData != nil {
		fmt.Printf("return data: %s %s\n", result.ReturnData.ProgramId, base64.StdEncoding.EncodeToString(result.ReturnData.Data))
	}
	if result.Err != nil {
		fmt.Printf("error: %s\n", result.Err)
	}
}

func run(c *cobra.Command, args []string) error {
	tx, err := decodeTransaction(args[0])
	if err != nil {
		return fmt.Errorf("decoding transaction: %w", err)
	}

	s, err := session.Open(false)
	if err != nil {
		return fmt.Errorf("opening bank: %w", err)
	}
	defer s.Close()

	if simulate {
		printSimulation(s.Bank.Simulate(tx))
		return nil
	}

	sig, err := s.Bank.Process(tx)
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}
	if err := s.Save(); err != nil {
		return fmt.Errorf("saving bank: %w", err)
	}
	fmt.Println(sig)
	return nil
}
