package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"devbridge-go/internal/cli/output"
	"devbridge-go/internal/observability"
)

// newHealthCommand queries /readyz of a running gateway.
func newHealthCommand(v *viper.Viper) *cobra.Command {
	var (
		format string
		target string
	)
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the readiness of a running gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resolved := output.ResolveFormat(format, os.LookupEnv)
			f, err := output.NewFormatter(resolved)
			if err != nil {
				return err
			}
			if target == "" {
				cfg, err := loadConfig(v)
				if err != nil {
					return err
				}
				target = cfg.PublicBaseURL
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), healthCheckTimeout)
			defer cancel()

			resp, err := fetchReadiness(ctx, target)
			if err != nil {
				return err
			}
			var out string
			if resolved == output.JSON || resolved == output.YAML {
				out, err = f.Format(resp)
			} else {
				rows := make([][]string, 0, len(resp.Components))
				for _, c := range resp.Components {
					rows = append(rows, []string{c.Name, c.Status, c.Latency, c.Error})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Status: %s\n", resp.Status)
				out, err = f.FormatTable([]string{"COMPONENT", "STATUS", "LATENCY", "ERROR"}, rows)
			}
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			if resp.Status != "healthy" && resp.Status != "ok" && resp.Status != "ready" {
				return fmt.Errorf("gateway is not ready: %s", resp.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "", "Output format (table, json, yaml)")
	cmd.Flags().StringVar(&target, "url", "", "Gateway base URL (default: public base URL from config)")
	return cmd
}

func fetchReadiness(ctx context.Context, baseURL string) (*observability.HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/readyz", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway unreachable at %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	var out observability.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("unexpected readiness response (HTTP %d): %w", resp.StatusCode, err)
	}
	if out.Status == "" {
		out.Status = http.StatusText(resp.StatusCode)
	}
	return &out, nil
}
