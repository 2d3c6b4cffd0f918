package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/solana-playground/playnet/cmd/playnet/account"
	"github.com/solana-playground/playnet/cmd/playnet/airdrop"
	"github.com/solana-playground/playnet/cmd/playnet/genesis"
	"github.com/solana-playground/playnet/cmd/playnet/send"
	"github.com/solana-playground/playnet/cmd/playnet/session"
	"github.com/solana-playground/playnet/cmd/playnet/status"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

var cmd = cobra.Command{
	Use:          "playnet",
	Short:        "In-memory Solana execution bank",
	SilenceUsage: true,
}

func init() {
	klogFlags := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(klogFlags)
	cmd.PersistentFlags().AddGoFlagSet(klogFlags)

	cmd.PersistentFlags().StringVar(&session.DbPath, "db", "playnet.db", "Snapshot database path")
	cmd.PersistentFlags().StringVar(&session.Name, "name", "default", "Name of the bank snapshot to operate on")
	cmd.PersistentFlags().StringVar(&session.ConfigPath, "config", "", "YAML bank configuration")

	cmd.AddCommand(
		&genesis.Cmd,
		&airdrop.Cmd,
		&account.BalanceCmd,
		&account.Cmd,
		&send.Cmd,
		&status.Cmd,
	)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	cobra.CheckErr(cmd.ExecuteContext(ctx))
}
