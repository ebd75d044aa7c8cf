package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/onnwee/copilot/character"
	"github.com/onnwee/copilot/command"
	"github.com/onnwee/copilot/event"
	"github.com/onnwee/copilot/obs"
	"github.com/onnwee/copilot/transform"
)

var (
	obsAddr         string
	obsPassword     string
	timeout         time.Duration
	serverURL       string
	adminToken      string
	charactersFile  string
	charactersScene string
)

var rootCmd = &cobra.Command{
	Use:           "obsctl",
	Short:         "Drive OBS with co-pilot chat commands",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run <chat command>",
	Short: "Parse and apply one chat command as the broadcaster",
	Long: `Parse one chat line, route it with broadcaster rights and apply the
resulting OBS effects directly. Feedback events (text, visibility, speech)
are printed instead of published, since no event loop is running.

Example:
  obsctl run '!blur 50'
  obsctl run '!3d rotation_z 90 1500'`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		client, err := dial(ctx)
		if err != nil {
			return err
		}
		defer client.Close()
		return runLine(ctx, client, transform.DefaultSettle(), strings.Join(args, " "), cmd.OutOrStdout())
	},
}

var itemsCmd = &cobra.Command{
	Use:   "items <scene>",
	Short: "List the scene items of a scene",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		client, err := dial(ctx)
		if err != nil {
			return err
		}
		defer client.Close()
		items, err := client.ListSceneItems(ctx, args[0])
		if err != nil {
			return err
		}
		return printItems(cmd.OutOrStdout(), items)
	},
}

var filterCmd = &cobra.Command{
	Use:   "filter <source> <filter>",
	Short: "Print a filter's settings",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		client, err := dial(ctx)
		if err != nil {
			return err
		}
		defer client.Close()
		st, err := client.GetFilter(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, st.Settings, "", "  "); err != nil {
			return fmt.Errorf("decode settings: %w", err)
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) enabled=%t\n%s\n", args[1], st.Kind, st.Enabled, pretty.String())
		return err
	},
}

var sayCmd = &cobra.Command{
	Use:   "say <user> <text>",
	Short: "Ask a running co-pilot to voice a line as a user's character",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		return say(ctx, serverURL, adminToken, args[0], strings.Join(args[1:], " "), cmd.OutOrStdout())
	},
}

var charactersCmd = &cobra.Command{
	Use:   "characters",
	Short: "Check that every character source exists in the characters scene",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := character.Load(charactersFile)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		client, err := dial(ctx)
		if err != nil {
			return err
		}
		defer client.Close()
		return checkCharacters(ctx, client, table, charactersScene, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&obsAddr, "addr", envOr("OBS_ADDR", "localhost:4455"), "obs-websocket address")
	rootCmd.PersistentFlags().StringVar(&obsPassword, "password", os.Getenv("OBS_PASSWORD"), "obs-websocket password")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "overall timeout")

	sayCmd.Flags().StringVar(&serverURL, "server", envOr("COPILOT_URL", "http://localhost:8080"), "co-pilot HTTP address")
	sayCmd.Flags().StringVar(&adminToken, "token", os.Getenv("ADMIN_TOKEN"), "admin token")

	charactersCmd.Flags().StringVar(&charactersFile, "file", os.Getenv("CHARACTERS_FILE"), "character tables YAML (built-in tables when empty)")
	charactersCmd.Flags().StringVar(&charactersScene, "scene", envOr("OBS_CHARACTERS_SCENE", "Characters"), "scene holding the character sources")

	rootCmd.AddCommand(runCmd, itemsCmd, filterCmd, sayCmd, charactersCmd)
}

func dial(ctx context.Context) (*obs.Client, error) {
	url := obsAddr
	if !strings.Contains(url, "://") {
		url = "ws://" + url
	}
	return obs.Dial(ctx, url, obsPassword)
}

// printer stands in for the bus and prints every feedback event.
type printer struct{ w io.Writer }

func (p printer) Publish(ev event.Event) int {
	fmt.Fprintf(p.w, "event %s: %+v\n", ev.Kind(), ev)
	return 0
}

func runLine(ctx context.Context, client obs.Controller, settle transform.Settle, line string, w io.Writer) error {
	cmd, err := command.Parse(line)
	if err != nil {
		return err
	}
	if _, ok := cmd.(command.Unknown); ok {
		return fmt.Errorf("unknown command %q", line)
	}
	reqs := command.Route(cmd, command.Caller{Login: "obsctl", Roles: event.Roles{Broadcaster: true}}, command.StandardDefaults())
	orch := transform.New(client, settle)
	for _, r := range reqs {
		if err := orch.Execute(ctx, printer{w}, r); err != nil {
			return fmt.Errorf("%s: %w", r.Op(), err)
		}
		fmt.Fprintf(w, "applied %s\n", r.Op())
	}
	return nil
}

func printItems(w io.Writer, items []obs.SceneItem) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSOURCE\tENABLED\tKIND")
	for _, it := range items {
		fmt.Fprintf(tw, "%d\t%s\t%t\t%s\n", it.ID, it.SourceName, it.Enabled, it.InputKind)
	}
	return tw.Flush()
}

// checkCharacters prints each character source with its scene item state
// and fails when any source is missing from scene.
func checkCharacters(ctx context.Context, client obs.Controller, table *character.Table, scene string, w io.Writer) error {
	items, err := client.ListSceneItems(ctx, scene)
	if err != nil {
		return fmt.Errorf("list %s: %w", scene, err)
	}
	byName := make(map[string]obs.SceneItem, len(items))
	for _, it := range items {
		byName[it.SourceName] = it
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tTEXT\tSTATE")
	var missing []string
	for _, src := range table.Sources() {
		state := "missing"
		if it, ok := byName[src]; ok {
			state = "hidden"
			if it.Enabled {
				state = "visible"
			}
		} else {
			missing = append(missing, src)
		}
		text := "missing"
		if _, ok := byName[src+"-text"]; ok {
			text = "ok"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", src, text, state)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("%d character source(s) missing from %s: %s", len(missing), scene, strings.Join(missing, ", "))
	}
	return nil
}

func say(ctx context.Context, base, token, user, text string, w io.Writer) error {
	body, err := json.Marshal(map[string]string{"username": user, "message": text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(base, "/")+"/admin/speak", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Admin-Token", token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("co-pilot answered %d: %s", resp.StatusCode, strings.TrimSpace(string(out)))
	}
	_, err = w.Write(out)
	return err
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
