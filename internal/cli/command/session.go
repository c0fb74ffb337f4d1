package command

import (
	"fmt"
	"net/url"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/tokgate/internal/cli/connection"
	"github.com/yndnr/tokgate/internal/cli/output"
	"github.com/yndnr/tokgate/internal/server/httpserver/handler"
)

var sessionColumns = []string{"id", "state", "device", "ip_address", "created_at", "last_used_at", "expires_at"}

// SessionCommand returns the session subcommand group.
func SessionCommand() *cli.Command {
	return &cli.Command{
		Name:    "session",
		Aliases: []string{"sess"},
		Usage:   "Inspect and revoke sessions",
		Subcommands: []*cli.Command{
			{
				Name:      "list",
				Aliases:   []string{"ls"},
				Usage:     "List a user's sessions",
				ArgsUsage: "USER_ID",
				Action:    sessionList,
			},
			{
				Name:      "revoke",
				Usage:     "Revoke a session",
				ArgsUsage: "SESSION_ID",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "Skip confirmation",
					},
				},
				Action: sessionRevoke,
			},
		},
	}
}

// UserCommand returns the user subcommand group.
func UserCommand() *cli.Command {
	return &cli.Command{
		Name:  "user",
		Usage: "User-wide session operations",
		Subcommands: []*cli.Command{
			{
				Name:      "revoke-all",
				Usage:     "Revoke every active session of a user",
				ArgsUsage: "USER_ID",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "Skip confirmation",
					},
				},
				Action: userRevokeAll,
			},
		},
	}
}

func sessionList(c *cli.Context) error {
	userID, err := firstArg(c, "user ID")
	if err != nil {
		return err
	}
	client, err := requireAdmin(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := client.Get(ctx, "/api/admin/users/"+url.PathEscape(userID)+"/sessions")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	var result handler.ListSessionsResponse
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}
	if err := render(c, result.Sessions, result, sessionColumns...); err != nil {
		return err
	}
	if ParseGlobalFlags(c).Output == output.FormatTable {
		fmt.Fprintf(c.App.Writer, "\nTotal: %d sessions\n", len(result.Sessions))
	}
	return nil
}

func sessionRevoke(c *cli.Context) error {
	sessionID, err := firstArg(c, "session ID")
	if err != nil {
		return err
	}
	if !c.Bool("force") && !confirm(c, fmt.Sprintf("Are you sure you want to revoke session '%s'? [y/N]: ", sessionID), "y", "Y") {
		return nil
	}
	client, err := requireAdmin(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := client.Post(ctx, "/api/admin/sessions/"+url.PathEscape(sessionID)+"/revoke", nil)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if err := connection.ParseResponse(resp, nil); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Session %s revoked.\n", sessionID)
	return nil
}

func userRevokeAll(c *cli.Context) error {
	userID, err := firstArg(c, "user ID")
	if err != nil {
		return err
	}
	if !c.Bool("force") && !confirm(c, fmt.Sprintf("This will revoke all sessions for user '%s'. Type '%s' to confirm: ", userID, userID), userID) {
		return nil
	}
	client, err := requireAdmin(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := client.Post(ctx, "/api/admin/users/"+url.PathEscape(userID)+"/revoke-all", nil)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	var result handler.RevokeAllResponse
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}
	if ParseGlobalFlags(c).Output != output.FormatTable {
		return render(c, nil, result)
	}
	fmt.Fprintf(c.App.Writer, "%d sessions revoked for user '%s'.\n", result.Revoked, userID)
	return nil
}
