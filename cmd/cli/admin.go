package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	defaultTimeout = 10 * time.Second
	adminBasePath  = "/admin/ratelimit"
)

// adminClient calls the /admin/ratelimit endpoints of a running server.
type adminClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func clientFromViper(v *viper.Viper) (*adminClient, error) {
	base := strings.TrimRight(v.GetString("server"), "/")
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid --server %q: %w", base, err)
	}
	timeout := v.GetDuration("timeout")
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &adminClient{
		baseURL: base,
		token:   v.GetString("token"),
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// call sends the request and returns the raw JSON body. Non-2xx responses
// are returned as errors carrying the server's message.
func (c *adminClient) call(ctx context.Context, method, path string, query url.Values, body interface{}) (json.RawMessage, error) {
	u := c.baseURL + adminBasePath + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return raw, fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)
		}
		return raw, fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return raw, nil
}

func printJSON(w io.Writer, raw json.RawMessage) error {
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		_, err = w.Write(raw)
		return err
	}
	out.WriteByte('\n')
	_, err := out.WriteTo(w)
	return err
}

// newAdminCmd builds the admin command group.
// newAdminCmd 构建 admin 命令组。
func newAdminCmd(v *viper.Viper) *cobra.Command {
	adminCmd := &cobra.Command{
		Use:   "admin",
		Short: "Administer the rate limiter",
	}

	// run wraps a request so every subcommand shares client setup and output.
	run := func(fn func(ctx context.Context, c *adminClient, cmd *cobra.Command, args []string) (json.RawMessage, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			c, err := clientFromViper(v)
			if err != nil {
				return err
			}
			raw, err := fn(cmd.Context(), c, cmd, args)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), raw)
		}
	}

	statusCmd := &cobra.Command{
		Use:   "status <key>",
		Short: "Show window and block state for a key",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, c *adminClient, cmd *cobra.Command, args []string) (json.RawMessage, error) {
			q := url.Values{"key": {args[0]}}
			if lt, _ := cmd.Flags().GetString("type"); lt != "" {
				q.Set("limitType", lt)
			}
			return c.call(ctx, http.MethodGet, "/status", q, nil)
		}),
	}
	statusCmd.Flags().String("type", "", "limit type; all types when omitted")

	resetCmd := &cobra.Command{
		Use:   "reset <key>",
		Short: "Clear the window and block of a key",
		Long: `Clear the window and block of a key for one limit type.
Use --type failures to lift a suspicious-activity block on a client IP.`,
		Args: cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, c *adminClient, cmd *cobra.Command, args []string) (json.RawMessage, error) {
			lt, _ := cmd.Flags().GetString("type")
			return c.call(ctx, http.MethodPost, "/reset", nil, map[string]string{
				"key":       args[0],
				"limitType": lt,
			})
		}),
	}
	resetCmd.Flags().String("type", "", "limit type, or \"failures\"")
	_ = resetCmd.MarkFlagRequired("type")

	blocksCmd := &cobra.Command{
		Use:   "blocks",
		Short: "List active blocks",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, c *adminClient, _ *cobra.Command, _ []string) (json.RawMessage, error) {
			return c.call(ctx, http.MethodGet, "/blocks", nil, nil)
		}),
	}

	systemCmd := &cobra.Command{
		Use:   "system",
		Short: "Show circuit breaker and bypass state of the server instance",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, c *adminClient, _ *cobra.Command, _ []string) (json.RawMessage, error) {
			return c.call(ctx, http.MethodGet, "/system", nil, nil)
		}),
	}

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Run the maintenance sweep now",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, c *adminClient, _ *cobra.Command, _ []string) (json.RawMessage, error) {
			return c.call(ctx, http.MethodPost, "/cleanup", nil, nil)
		}),
	}

	adminCmd.AddCommand(statusCmd, resetCmd, blocksCmd, systemCmd, cleanupCmd)
	return adminCmd
}

//Personal.AI order the ending
