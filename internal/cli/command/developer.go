package command

import (
	"fmt"
	"net/url"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/tokgate/internal/cli/connection"
	"github.com/yndnr/tokgate/internal/cli/output"
	"github.com/yndnr/tokgate/internal/server/httpserver/handler"
)

const developersPath = "/api/admin/developers"

var developerColumns = []string{"id", "app_id", "client_id", "api_key_hint", "rate_limit", "active", "created_at"}

// DeveloperCommand returns the developer subcommand group.
func DeveloperCommand() *cli.Command {
	return &cli.Command{
		Name:    "developer",
		Aliases: []string{"dev"},
		Usage:   "Manage developer applications",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Register a developer application",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "app-id",
						Aliases:  []string{"a"},
						Usage:    "application id (lowercase, 3-64 chars)",
						Required: true,
					},
					&cli.Int64Flag{
						Name:    "rate-limit",
						Aliases: []string{"r"},
						Usage:   "requests per minute; 0 uses the server default",
					},
				},
				Action: developerCreate,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List developers",
				Action:  developerList,
			},
			{
				Name:      "disable",
				Usage:     "Disable a developer's API key",
				ArgsUsage: "DEVELOPER_ID",
				Action:    developerSetActive(false),
			},
			{
				Name:      "enable",
				Usage:     "Re-enable a developer's API key",
				ArgsUsage: "DEVELOPER_ID",
				Action:    developerSetActive(true),
			},
		},
	}
}

func developerCreate(c *cli.Context) error {
	client, err := requireAdmin(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := client.Post(ctx, developersPath, handler.CreateDeveloperRequest{
		AppID:     c.String("app-id"),
		RateLimit: c.Int64("rate-limit"),
	})
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	var result handler.CreateDeveloperResponse
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}

	if ParseGlobalFlags(c).Output != output.FormatTable {
		return render(c, nil, result)
	}
	w := c.App.Writer
	fmt.Fprintf(w, "Developer %s created.\n\n", result.Developer.ID)
	if err := render(c, result, result); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nSave these credentials - they cannot be retrieved later.\n")
	return nil
}

func developerList(c *cli.Context) error {
	client, err := requireAdmin(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := client.Get(ctx, developersPath)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	var result handler.ListDevelopersResponse
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}
	if err := render(c, result.Developers, result, developerColumns...); err != nil {
		return err
	}
	if ParseGlobalFlags(c).Output == output.FormatTable {
		fmt.Fprintf(c.App.Writer, "\nTotal: %d developers\n", len(result.Developers))
	}
	return nil
}

func developerSetActive(active bool) cli.ActionFunc {
	action, verb := "disable", "disabled"
	if active {
		action, verb = "enable", "enabled"
	}
	return func(c *cli.Context) error {
		id, err := firstArg(c, "developer ID")
		if err != nil {
			return err
		}
		client, err := requireAdmin(c)
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(c)
		defer cancel()

		resp, err := client.Post(ctx, developersPath+"/"+url.PathEscape(id)+"/"+action, nil)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if err := connection.ParseResponse(resp, nil); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Developer %s %s.\n", id, verb)
		return nil
	}
}
