// Command b24ctl runs relay operations from a shell using the same
// configuration and store as the server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"B24Relay/entity"
	"B24Relay/impl/core"
	"B24Relay/internal/config"
	repository "B24Relay/internal/database"
	"B24Relay/internal/service/bitrix"
	"B24Relay/internal/service/evolution"
	"B24Relay/internal/service/oauth"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

func main() {
	root := &cobra.Command{
		Use:          "b24ctl",
		Short:        "Operate the Bitrix24 open line relay",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "conf", "c", "config.yml", "path to config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(setupCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(refreshCmd())
	root.AddCommand(sendCmd())
	root.AddCommand(statsCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// relay is the wired core plus the pieces commands use directly.
type relay struct {
	core    *core.Core
	tokens  *oauth.Manager
	gateway *evolution.Client
	close   func()
}

func open() (*relay, error) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	conf, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	store, _, err := repository.Open(conf, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	gateway, err := evolution.NewClient(conf, log)
	if err != nil {
		return nil, fmt.Errorf("gateway client: %w", err)
	}
	tokens := oauth.NewManager(conf, store, log)

	c := core.New(conf, log)
	c.SetRepository(store)
	c.SetTokenManager(tokens)
	c.SetCrmClient(bitrix.NewClient(tokens, log))
	c.SetGatewayClient(gateway)
	c.Init(context.Background())

	r := &relay{core: c, tokens: tokens, gateway: gateway, close: func() {}}
	if closer, ok := store.(io.Closer); ok {
		r.close = func() { _ = closer.Close() }
	}
	return r, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func setupCmd() *cobra.Command {
	var req entity.SetupRequest
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Register and activate the connector and bind its events",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := open()
			if err != nil {
				return err
			}
			defer r.close()

			result, err := r.core.SetupConnector(cmd.Context(), req)
			if err != nil {
				return err
			}
			if err = printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if !result.Ok {
				return fmt.Errorf("setup finished with failed steps")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Portal, "portal", "", "portal domain (default: configured portal)")
	cmd.Flags().StringVar(&req.ClientEndpoint, "endpoint", "", "REST endpoint to install with the tokens below")
	cmd.Flags().StringVar(&req.AccessToken, "access-token", "", "access token to install")
	cmd.Flags().StringVar(&req.RefreshToken, "refresh-token", "", "refresh token to install")
	cmd.Flags().StringVar(&req.ConnectorID, "connector", "", "connector id (default: configured)")
	cmd.Flags().StringVar(&req.Name, "name", "", "connector name")
	cmd.Flags().StringVar(&req.LineID, "line", "", "open line id")
	return cmd
}

func statusCmd() *cobra.Command {
	var portal string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the connector status and the gateway connection state",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := open()
			if err != nil {
				return err
			}
			defer r.close()

			out := map[string]interface{}{}
			if status, err := r.core.ConnectorStatus(cmd.Context(), portal); err != nil {
				out["connector_error"] = err.Error()
			} else {
				out["connector"] = status
			}
			if state, err := r.core.TestConnection(cmd.Context()); err != nil {
				out["gateway_error"] = err.Error()
			} else {
				out["gateway"] = state
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&portal, "portal", "", "portal domain (default: configured portal)")
	return cmd
}

func refreshCmd() *cobra.Command {
	var portal string
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Force a token refresh and store the rotated credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := open()
			if err != nil {
				return err
			}
			defer r.close()

			auth, err := r.tokens.ForceRefresh(cmd.Context(), portal)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: token valid until %s\n",
				auth.PortalDomain, auth.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
			return err
		},
	}
	cmd.Flags().StringVar(&portal, "portal", "", "portal domain (default: configured portal)")
	return cmd
}

func sendCmd() *cobra.Command {
	var req entity.GatewaySendRequest
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a WhatsApp message through the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.Recipient == "" || (req.Text == "" && req.MediaURL == "") {
				return fmt.Errorf("--to and one of --text or --media are required")
			}
			r, err := open()
			if err != nil {
				return err
			}
			defer r.close()

			var result interface{}
			if req.MediaURL != "" {
				result, err = r.gateway.SendMedia(cmd.Context(), req)
			} else {
				result, err = r.gateway.SendText(cmd.Context(), req)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVar(&req.Recipient, "to", "", "recipient digits, e.g. 5511999999999")
	cmd.Flags().StringVar(&req.Text, "text", "", "message text")
	cmd.Flags().StringVar(&req.MediaURL, "media", "", "media URL")
	cmd.Flags().StringVar(&req.MediaName, "file-name", "", "media file name")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print relay counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := open()
			if err != nil {
				return err
			}
			defer r.close()

			stats, err := r.core.GetStats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
}
