package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/tokgate/internal/cli/connection"
	"github.com/yndnr/tokgate/internal/server/httpserver/handler"
)

// HealthCommand returns the health command.
func HealthCommand() *cli.Command {
	return &cli.Command{
		Name:   "health",
		Usage:  "Check that the auth core is serving",
		Action: health,
	}
}

func health(c *cli.Context) error {
	client, err := NewClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := client.Get(ctx, "/health")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	var result handler.HealthResponse
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}
	return render(c, result, result)
}
