package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"photobooth/internal/adapter/primary/web"
)

var httpClient = &http.Client{Timeout: 5 * time.Second}

// boothURL turns a listen address into a URL for a local client.
func boothURL(addr, path string) (string, error) {
	if addr == "" {
		return "", errors.New("the web trigger is disabled (web.addr is empty); pass --addr")
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + path, nil
}

// resolveAddr prefers --addr and falls back to web.addr from the config.
func resolveAddr(cmd *cobra.Command, flagAddr string) (string, error) {
	if cmd.Flags().Changed("addr") {
		return flagAddr, nil
	}
	_, cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.Web.Addr, nil
}

func newTriggerCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Ask a running booth to take a picture now",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := resolveAddr(cmd, addr)
			if err != nil {
				return err
			}
			url, err := boothURL(addr, "/api/trigger")
			if err != nil {
				return err
			}
			resp, err := httpClient.Post(url, "application/json", http.NoBody)
			if err != nil {
				return fmt.Errorf("booth not reachable: %w", err)
			}
			defer resp.Body.Close()

			var ack struct {
				Status    string `json:"status"`
				RequestID string `json:"requestId"`
				Error     string `json:"error"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
				return fmt.Errorf("unexpected answer (%s): %w", resp.Status, err)
			}
			if resp.StatusCode != http.StatusAccepted {
				return fmt.Errorf("trigger %s: %s", ack.Status, ack.Error)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (request %s)\n", ack.Status, ack.RequestID)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "booth address host:port (default: web.addr from the config)")
	return cmd
}

func newStatusCmd() *cobra.Command {
	var (
		addr   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of a running booth",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := resolveAddr(cmd, addr)
			if err != nil {
				return err
			}
			url, err := boothURL(addr, "/api/status")
			if err != nil {
				return err
			}
			resp, err := httpClient.Get(url)
			if err != nil {
				return fmt.Errorf("booth not reachable: %w", err)
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("status: %s", resp.Status)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				var buf bytes.Buffer
				if err := json.Indent(&buf, body, "", "  "); err != nil {
					return err
				}
				fmt.Fprintln(out, buf.String())
				return nil
			}
			var view web.StatusView
			if err := json.Unmarshal(body, &view); err != nil {
				return fmt.Errorf("decode status: %w", err)
			}
			printStatus(out, view)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "booth address host:port (default: web.addr from the config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw JSON")
	return cmd
}

func printStatus(w io.Writer, view web.StatusView) {
	if view.Trigger != "" {
		fmt.Fprintf(w, "trigger:  %s\n", view.Trigger)
	}
	if b := view.Booth; b != nil {
		fmt.Fprintf(w, "uptime:   %s\n", view.Uptime)
		fmt.Fprintf(w, "pictures: %d taken, %d failed\n", b.Taken, b.Failed)
		if b.Busy {
			fmt.Fprintln(w, "busy:     taking a picture")
		}
		if b.LastFile != "" {
			fmt.Fprintf(w, "last:     %s (%s, %s)\n", b.LastFile, b.LastSource, humanize.Time(b.LastTakenAt))
		}
		if b.LastError != "" {
			fmt.Fprintf(w, "error:    %s\n", b.LastError)
		}
	}
	if e := view.Events; e != nil {
		fmt.Fprintf(w, "events:   %d published, %d delivered, %d replaced, %d subscribers\n",
			e.Published, e.Delivered, e.Replaced, e.Subscribers)
	}
}
