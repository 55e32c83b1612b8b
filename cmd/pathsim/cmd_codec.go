package main

import (
	"fmt"
	"io"

	"github.com/signalsfoundry/commodity-pathsim/internal/api"
	"github.com/signalsfoundry/commodity-pathsim/internal/codec"
	"github.com/signalsfoundry/commodity-pathsim/model"
	"github.com/spf13/cobra"
)

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <matrix.json|->",
		Short: "Decode an engine result matrix into a path",
		Long: `Decode an engine result matrix into a path.

The matrix is a JSON array of rows with null for NaN. Row 0 holds time
steps, rows 1 and 2 spot price and convenience yield, and each further
pair of rows one forward quote slot (time to maturity, futures price).

Examples:
  pathsim decode result.json
  pathsim decode --json - < result.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openInput(args[0])
			if err != nil {
				return err
			}
			defer in.Close()

			m, err := readMatrix(in)
			if err != nil {
				return err
			}
			p, err := codec.DecodePath(m)
			if err != nil {
				return err
			}
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), api.NewPathResponse("", p))
			}
			printPath(cmd.OutOrStdout(), p)
			return nil
		},
	}
}

func newEncodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encode <path.json|->",
		Short: "Encode a path into an engine result matrix",
		Long: `Encode a path, in the JSON form printed by 'decode --json', into the
NaN-padded matrix layout (null for NaN).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openInput(args[0])
			if err != nil {
				return err
			}
			defer in.Close()

			p, err := readPath(in)
			if err != nil {
				return err
			}
			return writeMatrix(cmd.OutOrStdout(), codec.EncodePath(p))
		},
	}
}

func printPath(w io.Writer, p *model.SimulatedPath) {
	fmt.Fprintf(w, "%d steps, up to %d forward quotes per step\n", p.Len(), p.MaxQuoteCount())
	for _, s := range p.Steps() {
		fmt.Fprintf(w, "t=%-5d spot=%-12g cy=%-12g", s.Time, s.SpotPrice, s.ConvenienceYield)
		for _, q := range s.ForwardQuotes {
			fmt.Fprintf(w, " [%g: %g]", q.TimeToMaturity, q.FuturesPrice)
		}
		fmt.Fprintln(w)
	}
}
