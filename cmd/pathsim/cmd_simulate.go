package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/signalsfoundry/commodity-pathsim/internal/api"
	"github.com/signalsfoundry/commodity-pathsim/internal/config"
	"github.com/signalsfoundry/commodity-pathsim/internal/engine"
	"github.com/signalsfoundry/commodity-pathsim/internal/logging"
	"github.com/signalsfoundry/commodity-pathsim/internal/session"
	"github.com/signalsfoundry/commodity-pathsim/internal/simulation"
	"github.com/signalsfoundry/commodity-pathsim/model"
	"github.com/spf13/cobra"
)

func newSimulateCmd() *cobra.Command {
	var (
		in     simulation.Inputs
		noTerm bool
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run one simulation on the engine and print the path",
		Long: `Run one simulation on the engine and print the path.

The engine address and script come from the configuration file, with the
usual environment overrides. The session is detached afterwards so the
engine can be reused; pass --exit to shut the engine down instead.

Examples:
  pathsim simulate --spot 8 --cy 0.1 --mu 0.05 --sigma-spot 0.3 --kappa 1.2 \
    --alpha 0.06 --sigma-cy 0.25 --interest 0.02 --rho 0.7 --lambda 0.1
  pathsim simulate --engine localhost:50061 --no-term-structure --json ...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			engineAddr, _ := cmd.Flags().GetString("engine")
			exit, _ := cmd.Flags().GetBool("exit")
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if engineAddr != "" {
				cfg.Engine.Addr = engineAddr
			}
			in.IncludeTermStructure = !noTerm

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			connector := engine.NewGRPCConnector(cfg.Engine.Addr)
			connector.CallTimeout = cfg.Engine.CallTimeout
			connector.ConnectTimeout = cfg.Engine.ConnectTimeout
			log := logging.New(cfg.Logging)
			manager := session.NewManager(connector, cfg.Engine.Session(), session.WithLogger(log))

			task, p, err := simulateOnce(ctx, manager, in, cfg, log, exit)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), api.NewPathResponse(task, p))
			}
			printPath(cmd.OutOrStdout(), p)
			return nil
		},
	}

	cmd.Flags().String("config", "", "Path to the YAML configuration file")
	cmd.Flags().String("engine", "", "Engine address (overrides the configuration)")
	cmd.Flags().Bool("exit", false, "Shut the engine down after the run instead of detaching")
	cmd.Flags().BoolVar(&noTerm, "no-term-structure", false, "Skip the futures term structure")

	cmd.Flags().Float64Var(&in.InitialSpot, "spot", 0, "Initial spot price")
	cmd.Flags().Float64Var(&in.InitialConvenienceYield, "cy", 0, "Initial convenience yield")
	cmd.Flags().Float64Var(&in.Parameters.Mu, "mu", 0, "Spot drift")
	cmd.Flags().Float64Var(&in.Parameters.SigmaSpot, "sigma-spot", 0, "Spot volatility")
	cmd.Flags().Float64Var(&in.Parameters.Kappa, "kappa", 0, "Convenience yield mean-reversion speed")
	cmd.Flags().Float64Var(&in.Parameters.Alpha, "alpha", 0, "Long-run convenience yield")
	cmd.Flags().Float64Var(&in.Parameters.SigmaConvenienceYield, "sigma-cy", 0, "Convenience yield volatility")
	cmd.Flags().Float64Var(&in.Parameters.Interest, "interest", 0, "Risk-free interest rate")
	cmd.Flags().Float64Var(&in.Parameters.Rho, "rho", 0, "Correlation of the two factors")
	cmd.Flags().Float64Var(&in.Parameters.Lambda, "lambda", 0, "Market price of convenience yield risk")
	_ = cmd.MarkFlagRequired("spot")
	_ = cmd.MarkFlagRequired("cy")
	return cmd
}

// simulateOnce acquires a session, runs one task and releases the session,
// either detaching or shutting the engine down.
func simulateOnce(ctx context.Context, m session.Manager, in simulation.Inputs, cfg config.Config, log logging.Logger, exit bool) (string, *model.SimulatedPath, error) {
	if err := in.Validate(); err != nil {
		return "", nil, err
	}
	s, err := m.Acquire(ctx)
	if err != nil {
		return "", nil, err
	}
	defer func() {
		if exit {
			if res := m.Terminate(context.Background(), s); res.ExitErr != nil {
				log.Warn(ctx, "engine did not exit cleanly", logging.Err(res.ExitErr))
			}
			return
		}
		m.Disconnect(s)
	}()

	task, err := simulation.NewTask(s, in, simulation.WithScript(cfg.Script), simulation.WithTaskLogger(log))
	if err != nil {
		return "", nil, err
	}
	if cfg.Runner.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Runner.TaskTimeout)
		defer cancel()
	}
	p, err := simulation.NewRunner(1).Submit(ctx, task).Wait(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("task %s: %w", task.ID, err)
	}
	return task.ID, p, nil
}
