package command

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/tokgate/internal/cli/connection"
	"github.com/yndnr/tokgate/internal/server/httpserver/handler"
)

const validateKeyPath = "/api/auth/internal/validate-key"

// KeyStatus is the admission decision for one API key check. A check
// consumes one request from the key's window.
type KeyStatus struct {
	Valid      bool   `json:"valid"`
	Code       string `json:"code,omitempty"`
	Limit      string `json:"limit,omitempty"`
	Remaining  string `json:"remaining,omitempty"`
	Reset      string `json:"reset,omitempty"`
	RetryAfter string `json:"retry_after,omitempty"`
}

// KeyCommand returns the key subcommand group.
func KeyCommand() *cli.Command {
	return &cli.Command{
		Name:  "key",
		Usage: "API key operations",
		Subcommands: []*cli.Command{
			{
				Name:      "check",
				Usage:     "Validate an API key and show its rate limit window",
				ArgsUsage: "[API_KEY]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "key",
						Aliases: []string{"k"},
						Usage:   "API key to check",
						EnvVars: []string{"TOKGATE_API_KEY"},
					},
				},
				Action: keyCheck,
			},
		},
	}
}

func keyCheck(c *cli.Context) error {
	key := strings.TrimSpace(c.Args().First())
	if key == "" {
		key = strings.TrimSpace(c.String("key"))
	}
	if key == "" {
		return fmt.Errorf("API key required")
	}
	client, err := NewClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := client.Do(ctx, http.MethodPost, validateKeyPath, nil, http.Header{
		handler.HeaderAPIKey: {key},
	})
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	status := KeyStatus{
		Limit:      resp.Header.Get(handler.HeaderRateLimitLimit),
		Remaining:  resp.Header.Get(handler.HeaderRateLimitRemaining),
		Reset:      resp.Header.Get(handler.HeaderRateLimitReset),
		RetryAfter: resp.Header.Get("Retry-After"),
	}
	checkErr := connection.ParseResponse(resp, nil)
	status.Valid = checkErr == nil
	status.Code = connection.ErrorCode(checkErr)

	// Only admission outcomes are rendered; auth and transport errors are returned as is.
	if checkErr != nil && resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusTooManyRequests {
		return checkErr
	}
	if err := render(c, status, status); err != nil {
		return err
	}
	return checkErr
}
