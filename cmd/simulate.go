package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/floodrescue/simulator"
)

var simOpts struct {
	broker   string
	maxDelay time.Duration
	dropRate float64
	seed     int64
}

var simulateCmd = &cobra.Command{
	Use:   "simulate <rescuer-id>...",
	Short: "Run simulated rescuer devices that accept missions over MQTT",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if simOpts.dropRate < 0 || simOpts.dropRate > 1 {
			return fmt.Errorf("drop-rate must be within [0,1]")
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		strat := simulator.NewRandomAccept(simOpts.maxDelay, simOpts.dropRate, simOpts.seed)
		devices := simulator.RunFleet(ctx, args, simOpts.broker, strat)
		for _, d := range devices {
			s := d.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "%s missions=%d accepted=%d won=%d lost=%d\n", d.ID, s.Missions, s.Accepted, s.Won, s.Lost)
		}
		return nil
	},
}

func init() {
	f := simulateCmd.Flags()
	f.StringVar(&simOpts.broker, "broker", "tcp://localhost:1883", "MQTT broker URL")
	f.DurationVar(&simOpts.maxDelay, "max-delay", 2*time.Second, "upper bound of the random accept delay")
	f.Float64Var(&simOpts.dropRate, "drop-rate", 0, "probability of ignoring a mission")
	f.Int64Var(&simOpts.seed, "seed", 0, "random seed, 0 uses the clock")
	rootCmd.AddCommand(simulateCmd)
}
