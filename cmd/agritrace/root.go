package main

import (
	"encoding/json"
	"fmt"
	"io"

	"agritrace/internal/core"
	"agritrace/internal/platform/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "dev"

// cli carries the state shared by every subcommand.
type cli struct {
	v          *viper.Viper
	cfg        config.Config
	out        io.Writer
	configFile string
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{v: config.New(), out: out}

	rootCmd := &cobra.Command{
		Use:   "agritrace",
		Short: "Farm-to-shelf traceability for produce lots",
		Long: `agritrace records cultivation lots, their wash/pack/quality-control
transformations and the cold-chain logistics that deliver them.

A traceability code is assigned when a shipment is marked DELIVERED.`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: c.loadConfig,
	}
	rootCmd.SetOut(out)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&c.configFile, "config", "", "Config file (yaml, json or toml)")
	pf.String("storage-driver", string(core.StorageSQLite), "Storage driver: memory, sqlite, postgres")
	pf.String("sqlite-path", config.DefaultSQLitePath, "SQLite database file")
	pf.String("postgres-dsn", "", "PostgreSQL connection string")
	pf.String("blob-driver", "fs", "Report blob driver: fs, s3, memory")
	pf.String("blob-root", "./blobdata", "Root directory of the fs blob driver")
	pf.String("s3-bucket", "", "S3 bucket for trace reports")
	pf.String("s3-region", "", "S3 region")
	pf.String("s3-endpoint", "", "Custom S3 endpoint (MinIO, localstack)")
	pf.Bool("s3-path-style", false, "Use path-style S3 addressing")
	pf.String("http-addr", config.DefaultHTTPAddr, "HTTP listen address")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.String("log-format", "json", "Log format: json, console")

	rootCmd.AddCommand(newServeCmd(c))
	rootCmd.AddCommand(newSeedCmd(c))
	rootCmd.AddCommand(newTraceCmd(c))
	rootCmd.AddCommand(newLookupCmd(c))
	return rootCmd
}

func (c *cli) loadConfig(cmd *cobra.Command, _ []string) error {
	if err := config.BindFlags(c.v, cmd.Root().PersistentFlags()); err != nil {
		return err
	}
	if c.configFile != "" {
		c.v.SetConfigFile(c.configFile)
		if err := c.v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config %s: %w", c.configFile, err)
		}
	}
	cfg, err := config.Load(c.v)
	if err != nil {
		return err
	}
	c.cfg = cfg
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
