package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rileyhilliard/vector/internal/config"
	"github.com/rileyhilliard/vector/internal/errors"
	"github.com/rileyhilliard/vector/internal/logger"
	"github.com/rileyhilliard/vector/internal/metric"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	fetchHostFlag string
	fetchPMCDFlag string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <metric> [metric...]",
	Short: "Fetch metrics once and print them as YAML",
	Long: `Create a short-lived pmwebapi context, fetch the named metrics once and
print their instances and values.

Examples:
  vector fetch kernel.all.load
  vector fetch --host perf01 disk.dev.read disk.dev.write`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if fetchHostFlag != "" {
			cfg.Host = fetchHostFlag
		}
		if fetchPMCDFlag != "" {
			cfg.PMCD = fetchPMCDFlag
		}
		return runFetch(cmd.Context(), cfg, args, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringVar(&fetchHostFlag, "host", "", "pmwebapi host (overrides config)")
	fetchCmd.Flags().StringVar(&fetchPMCDFlag, "pmcd", "", "pmcd hostspec (overrides config)")
}

type fetchOutput struct {
	Host      string          `yaml:"host"`
	Context   int             `yaml:"context"`
	Timestamp string          `yaml:"timestamp"`
	Metrics   []fetchedMetric `yaml:"metrics"`
}

type fetchedMetric struct {
	Name      string            `yaml:"name"`
	Instances []fetchedInstance `yaml:"instances"`
}

type fetchedInstance struct {
	ID    *int   `yaml:"id,omitempty"`
	Name  string `yaml:"name,omitempty"`
	Value any    `yaml:"value"`
}

func runFetch(ctx context.Context, cfg *config.Config, names []string, w io.Writer) error {
	if cfg.Host == "" {
		return errors.New(errors.ErrConfig,
			"No host configured",
			"Pass --host, set VECTOR_HOST, or run 'vector host set <host>'")
	}

	client, tunnel := newClient(cfg, logger.Default())
	if tunnel != nil {
		defer tunnel.Close()
	}

	// The context only needs to outlive this one request.
	id, err := client.CreateContext(ctx, cfg.Host, cfg.PMCD, time.Minute)
	if err != nil {
		return err
	}
	resp, err := client.Fetch(ctx, cfg.Host, id, names)
	if err != nil {
		return err
	}

	out := fetchOutput{
		Host:      cfg.Host,
		Context:   id,
		Timestamp: metric.Point{Timestamp: float64(resp.Timestamp)}.Time().UTC().Format(time.RFC3339Nano),
	}
	for _, mv := range resp.Values {
		fm := fetchedMetric{Name: mv.Name}
		for _, inst := range mv.Instances {
			fi := fetchedInstance{ID: inst.Instance}
			if inst.Instance != nil {
				fi.Name = resp.InstanceName(mv.Name, *inst.Instance)
			}
			if v, ok := inst.Value.Float(); ok {
				fi.Value = v
			} else {
				fi.Value = inst.Value.String()
			}
			fm.Instances = append(fm.Instances, fi)
		}
		out.Metrics = append(out.Metrics, fm)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return enc.Close()
}
