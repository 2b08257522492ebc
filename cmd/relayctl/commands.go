package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/phrazzld/relay-api/internal/api"
	"github.com/phrazzld/relay-api/internal/api/middleware"
	"github.com/phrazzld/relay-api/internal/auth"
	"github.com/phrazzld/relay-api/internal/config"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultServer  = "http://localhost:8080"
	requestTimeout = 30 * time.Second
)

// globalOptions are shared by the commands that call the server.
type globalOptions struct {
	server   string
	adminKey string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "relayctl",
		Short:         "Operator CLI for the relay API",
		Long:          `relayctl mints admin credentials and submits or inspects tasks on a running relay API server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv()
		},
	}

	root.PersistentFlags().StringVarP(&opts.server, "server", "s", envOr("RELAY_SERVER_URL", defaultServer),
		"Base URL of the relay API server")
	root.PersistentFlags().StringVar(&opts.adminKey, "admin-key", "",
		"Admin API key or token for admin endpoints (default: $RELAY_AUTH_ADMIN_API_KEY)")

	root.AddCommand(
		newHashKeyCmd(),
		newMintTokenCmd(),
		newSubmitCmd(opts),
		newStatusCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func newHashKeyCmd() *cobra.Command {
	var cost int

	cmd := &cobra.Command{
		Use:   "hash-key [key]",
		Short: "Print a bcrypt hash of an admin API key",
		Long:  `Print a bcrypt hash suitable for auth.admin_api_key_hash. The key is read from stdin when no argument is given.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key string
			if len(args) == 1 {
				key = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return fmt.Errorf("failed to read key: %w", err)
				}
				key = strings.TrimSpace(line)
			}
			if key == "" {
				return errors.New("key cannot be empty")
			}

			hash, err := auth.HashAPIKey(key, cost)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost factor")
	return cmd
}

func newMintTokenCmd() *cobra.Command {
	var (
		secret  string
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "mint-token",
		Short: "Mint an admin JWT signed with the server's secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv(config.EnvPrefix + "_AUTH_ADMIN_JWT_SECRET")
			}
			jwtAuth, err := auth.NewJWTAuthenticator(secret)
			if err != nil {
				return err
			}
			token, err := jwtAuth.Issue(cmd.Context(), subject, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "HMAC signing secret (default: $RELAY_AUTH_ADMIN_JWT_SECRET)")
	cmd.Flags().StringVar(&subject, "subject", auth.AdminSubject, "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}

func newSubmitCmd(opts *globalOptions) *cobra.Command {
	var (
		text        string
		callbackURL string
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit text for processing and print the task ID",
		RunE: func(cmd *cobra.Command, args []string) error {
			if text == "" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read text: %w", err)
				}
				text = string(data)
			}

			body, err := json.Marshal(api.SubmitTaskRequest{Text: text, CallbackURL: callbackURL})
			if err != nil {
				return err
			}

			var resp api.SubmitTaskResponse
			if err := doJSON(cmd.Context(), opts, http.MethodPost, "/tasks", body, &resp); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVarP(&text, "text", "t", "", "Text to relay (default: read stdin)")
	cmd.Flags().StringVar(&callbackURL, "callback-url", "", "Webhook to notify when the task finishes")
	return cmd
}

func newStatusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id>",
		Short: "Print the current state of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp api.TaskResponse
			if err := doJSON(cmd.Context(), opts, http.MethodGet, "/tasks/"+args[0], nil, &resp); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func newConfigCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the server's effective configuration (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.adminKey == "" {
				opts.adminKey = os.Getenv(config.EnvPrefix + "_AUTH_ADMIN_API_KEY")
			}
			if opts.adminKey == "" {
				return errors.New("an admin key is required; pass --admin-key")
			}

			var resp api.AdminConfigResponse
			if err := doJSON(cmd.Context(), opts, http.MethodGet, "/admin/config", nil, &resp); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}

// apiError is returned for non-2xx responses.
type apiError struct {
	Status  int
	Message string
	TraceID string
}

func (e *apiError) Error() string {
	if e.TraceID != "" {
		return fmt.Sprintf("server returned %d: %s (trace %s)", e.Status, e.Message, e.TraceID)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// doJSON sends body to path and decodes a JSON response into out.
func doJSON(ctx context.Context, opts *globalOptions, method, path string, body []byte, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(opts.server, "/")+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if opts.adminKey != "" {
		req.Header.Set(middleware.AdminKeyHeader, opts.adminKey)
	}

	resp, err := cleanhttp.DefaultClient().Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody struct {
			Error   string `json:"error"`
			TraceID string `json:"trace_id"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		if errBody.Error == "" {
			errBody.Error = http.StatusText(resp.StatusCode)
		}
		return &apiError{Status: resp.StatusCode, Message: errBody.Error, TraceID: errBody.TraceID}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
