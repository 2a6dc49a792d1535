package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/edgeredirect/internal/redirect"
)

func newEvalCmd() *cobra.Command {
	var configPath string
	var rawURL string
	var host, path, query string

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate one request against the rule table without serving",
		Example: "  edgeredirect eval -c edgeredirect.yaml --url 'https://www.blackwell-systems.com/oss?x=1'\n" +
			"  edgeredirect eval -c edgeredirect.yaml --host blackwell-systems.com --path /random-page",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			table, err := cfg.Table()
			if err != nil {
				return err
			}

			req, err := buildRequest(rawURL, host, path, query)
			if err != nil {
				return err
			}
			result, err := table.Evaluate(req)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.Flags().StringVar(&rawURL, "url", "", "Request URL (sets host, path, and query)")
	cmd.Flags().StringVar(&host, "host", "", "Request host")
	cmd.Flags().StringVar(&path, "path", "", "Request path")
	cmd.Flags().StringVar(&query, "query", "", "Raw query string without '?'")

	return cmd
}

func buildRequest(rawURL, host, path, query string) (redirect.Request, error) {
	if rawURL == "" {
		return redirect.Request{Host: host, Path: path, Query: query}, nil
	}
	if host != "" || path != "" || query != "" {
		return redirect.Request{}, errors.New("--url cannot be combined with --host, --path, or --query")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return redirect.Request{}, fmt.Errorf("parse url: %w", err)
	}
	reqPath := parsed.EscapedPath()
	if reqPath == "" {
		reqPath = "/"
	}
	return redirect.Request{Host: parsed.Host, Path: reqPath, Query: parsed.RawQuery}, nil
}

func newRulesCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Print the rule table in evaluation order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			table, err := cfg.Table()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tNAME\tHOST\tPATH PREFIX\tTARGET")
			for i, rule := range table.Rules() {
				prefix := rule.PathPrefix
				if prefix == "" {
					prefix = "*"
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i, rule.Name, rule.Host, prefix, rule.Target)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	return cmd
}
