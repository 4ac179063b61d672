package main

import (
	"context"
	"os"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qgemm/internal/cpufeat"
)

func cpuinfoCmd() *cli.Command {
	return &cli.Command{
		Name:  "cpuinfo",
		Usage: "Print detected SIMD features as JSON",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(cpufeat.Collect()); err != nil {
				return cli.Exit("error: encode: "+err.Error(), 1)
			}
			return nil
		},
	}
}
