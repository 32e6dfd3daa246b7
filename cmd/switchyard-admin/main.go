// ABOUTME: Admin CLI for switchyard agent and session management
// ABOUTME: Talks to the HTTP admin API with JWT authentication

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
)

const banner = `
               _ _       _                         _             _           _
  _____      _(_) |_ ___| |__  _   _  __ _ _ __ __| |       __ _| | _ _ _ __ (_)_ _
 / __\ \ /\ / / | __/ __| '_ \| | | |/ _' | '__/ _' |_____ / _' | |/ ' | '_ \| | ' \
 \__ \\ V  V /| | || (__| | | | |_| | (_| | | | (_| |_____| (_| | | | | | | | | | | |
 |___/ \_/\_/ |_|\__\___|_| |_|\__, |\__,_|_|  \__,_|      \__,_|_|_|_|_|_| |_|_|_|_|
                               |___/
`

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	baseURL := os.Getenv("SWITCHYARD_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	client := &adminClient{
		baseURL: baseURL,
		token:   getToken(),
		http:    &http.Client{Timeout: 30 * time.Second},
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "agents":
		err = runAgents(ctx, client, args)
	case "sessions":
		err = runSessions(ctx, client, args)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	fmt.Println("Usage: switchyard-admin <command> [args]")
	fmt.Println()
	fmt.Println("Agent commands:")
	fmt.Println("  agents list [--status S] [--type T] [--tag G]   List registered agents")
	fmt.Println("  agents show NAME                                Show one agent")
	fmt.Println("  agents register --file spec.json                Register a remote agent")
	fmt.Println("  agents approve NAME                             Approve a pending remote")
	fmt.Println("  agents suspend NAME                             Suspend a remote agent")
	fmt.Println("  agents enable NAME                              Enable routing")
	fmt.Println("  agents disable NAME                             Disable routing")
	fmt.Println("  agents deregister NAME                          Remove an agent")
	fmt.Println()
	fmt.Println("Session commands:")
	fmt.Println("  sessions list                                   List your sessions")
	fmt.Println("  sessions show ID                                Show a session with history")
	fmt.Println("  sessions delete ID                              Hard delete a session (admin)")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  SWITCHYARD_URL     Server base URL (default http://localhost:8080)")
	fmt.Println("  SWITCHYARD_TOKEN   JWT, or put it in ~/.config/switchyard/token")
}

// getToken reads the JWT from the environment or the token file.
func getToken() string {
	if token := os.Getenv("SWITCHYARD_TOKEN"); token != "" {
		return token
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	data, err := os.ReadFile(filepath.Join(configDir, "switchyard", "token"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// adminClient wraps authenticated calls to the HTTP API.
type adminClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func (c *adminClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (status %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// agentView mirrors the admin API's agent shape.
type agentView struct {
	Name           string   `json:"name"`
	Type           string   `json:"type"`
	Enabled        bool     `json:"enabled"`
	Status         string   `json:"status"`
	Endpoint       string   `json:"endpoint"`
	Tags           []string `json:"tags"`
	RegistrationID string   `json:"registration_id"`
	Capability     struct {
		Domains  []string `json:"domains"`
		Keywords []string `json:"keywords"`
		Priority int      `json:"priority"`
	} `json:"capability"`
}

func runAgents(ctx context.Context, client *adminClient, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("agents requires a subcommand (list, show, register, approve, suspend, enable, disable, deregister)")
	}

	sub := args[0]
	rest := args[1:]

	switch sub {
	case "list":
		return listAgents(ctx, client, rest)
	case "show":
		if len(rest) != 1 {
			return fmt.Errorf("usage: agents show NAME")
		}
		var agent agentView
		if err := client.do(ctx, http.MethodGet, "/api/admin/agents/"+rest[0], nil, &agent); err != nil {
			return err
		}
		return printJSON(agent)
	case "register":
		return registerAgent(ctx, client, rest)
	case "approve", "suspend", "enable", "disable":
		if len(rest) != 1 {
			return fmt.Errorf("usage: agents %s NAME", sub)
		}
		if err := client.do(ctx, http.MethodPost, "/api/admin/agents/"+rest[0]+"/"+sub, nil, nil); err != nil {
			return err
		}
		color.Green("%s: %s", sub, rest[0])
		return nil
	case "deregister":
		if len(rest) != 1 {
			return fmt.Errorf("usage: agents deregister NAME")
		}
		if err := client.do(ctx, http.MethodDelete, "/api/admin/agents/"+rest[0], nil, nil); err != nil {
			return err
		}
		color.Green("deregistered: %s", rest[0])
		return nil
	default:
		return fmt.Errorf("unknown agents subcommand: %s", sub)
	}
}

func listAgents(ctx context.Context, client *adminClient, args []string) error {
	query := ""
	sep := "?"
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--status", "--type", "--tag":
			if i+1 >= len(args) {
				return fmt.Errorf("%s requires a value", args[i])
			}
			query += sep + strings.TrimPrefix(args[i], "--") + "=" + args[i+1]
			sep = "&"
			i++
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	var agents []agentView
	if err := client.do(ctx, http.MethodGet, "/api/admin/agents"+query, nil, &agents); err != nil {
		return err
	}

	if len(agents) == 0 {
		fmt.Println("no agents registered")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tENABLED\tSTATUS\tDOMAINS\tENDPOINT")
	for _, a := range agents {
		status := a.Status
		if status == "" {
			status = "-"
		}
		endpoint := a.Endpoint
		if endpoint == "" {
			endpoint = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\t%s\n",
			a.Name, a.Type, a.Enabled, status,
			strings.Join(a.Capability.Domains, ","), endpoint)
	}
	return w.Flush()
}

func registerAgent(ctx context.Context, client *adminClient, args []string) error {
	var specPath string
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--file" || args[i] == "-f":
			if i+1 >= len(args) {
				return fmt.Errorf("--file requires a value")
			}
			specPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--file="):
			specPath = strings.TrimPrefix(args[i], "--file=")
		default:
			return fmt.Errorf("unknown argument: %s", args[i])
		}
	}
	if specPath == "" {
		return fmt.Errorf("--file flag is required")
	}

	data, err := os.ReadFile(specPath)
	if err != nil {
		return fmt.Errorf("reading spec file: %w", err)
	}

	var spec map[string]any
	if err := json.Unmarshal(data, &spec); err != nil {
		return fmt.Errorf("parsing spec file: %w", err)
	}

	var created struct {
		RegistrationID string `json:"registration_id"`
		Status         string `json:"status"`
	}
	if err := client.do(ctx, http.MethodPost, "/api/admin/agents", spec, &created); err != nil {
		return err
	}

	color.Green("registered (status %s)", created.Status)
	fmt.Printf("registration_id: %s\n", created.RegistrationID)
	fmt.Println("run 'switchyard-admin agents approve NAME' to make it routable")
	return nil
}

// sessionView mirrors the API's session summary shape.
type sessionView struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func runSessions(ctx context.Context, client *adminClient, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("sessions requires a subcommand (list, show, delete)")
	}

	switch args[0] {
	case "list":
		var sessions []sessionView
		if err := client.do(ctx, http.MethodGet, "/api/sessions", nil, &sessions); err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("no sessions")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUSER\tSTATUS\tUPDATED")
		for _, s := range sessions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.UserID, s.Status, s.UpdatedAt)
		}
		return w.Flush()
	case "show":
		if len(args) != 2 {
			return fmt.Errorf("usage: sessions show ID")
		}
		var detail map[string]any
		if err := client.do(ctx, http.MethodGet, "/api/sessions/"+args[1], nil, &detail); err != nil {
			return err
		}
		return printJSON(detail)
	case "delete":
		if len(args) != 2 {
			return fmt.Errorf("usage: sessions delete ID")
		}
		if err := client.do(ctx, http.MethodDelete, "/api/sessions/"+args[1], nil, nil); err != nil {
			return err
		}
		color.Green("deleted: %s", args[1])
		return nil
	default:
		return fmt.Errorf("unknown sessions subcommand: %s", args[0])
	}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
