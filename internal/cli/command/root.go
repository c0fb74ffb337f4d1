package command

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/tokgate/internal/cli/connection"
	"github.com/yndnr/tokgate/internal/cli/output"
	"github.com/yndnr/tokgate/internal/infra/buildinfo"
	"github.com/yndnr/tokgate/internal/server/config"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "tokgate-cli",
		Usage:   "tokgate auth core administration tool",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			DeveloperCommand(),
			SessionCommand(),
			UserCommand(),
			KeyCommand(),
			HealthCommand(),
		},
		Before: func(c *cli.Context) error {
			_, err := output.ParseFormat(c.String("output"))
			return err
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "auth core base URL",
			EnvVars: []string{"TOKGATE_SERVER"},
			Value:   config.DefaultAuthCoreURL,
		},
		&cli.StringFlag{
			Name:    "admin-token",
			Usage:   "admin token sent as X-Admin-Token",
			EnvVars: []string{"TOKGATE_ADMIN_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "internal-token",
			Usage:   "internal token sent as X-Internal-Token",
			EnvVars: []string{"TOKGATE_INTERNAL_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output format: table, json, yaml",
			Value:   string(output.FormatTable),
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "show all columns",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "per-request timeout",
			Value: connection.DefaultTimeout,
		},
	}
}

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	Server        string
	AdminToken    string
	InternalToken string
	Output        output.Format
	Wide          bool
	Timeout       time.Duration
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	format, _ := output.ParseFormat(c.String("output"))
	return &GlobalFlags{
		Server:        c.String("server"),
		AdminToken:    c.String("admin-token"),
		InternalToken: c.String("internal-token"),
		Output:        format,
		Wide:          c.Bool("wide"),
		Timeout:       c.Duration("timeout"),
	}
}

// NewClient builds the HTTP client from the global flags.
func NewClient(c *cli.Context) (*connection.HTTPClient, error) {
	flags := ParseGlobalFlags(c)
	return connection.NewHTTPClient(flags.Server,
		connection.WithAdminToken(flags.AdminToken),
		connection.WithInternalToken(flags.InternalToken),
		connection.WithTimeout(flags.Timeout))
}

// requireAdmin fails fast when no admin token is configured.
func requireAdmin(c *cli.Context) (*connection.HTTPClient, error) {
	if strings.TrimSpace(c.String("admin-token")) == "" {
		return nil, fmt.Errorf("admin token required (--admin-token or TOKGATE_ADMIN_TOKEN)")
	}
	return NewClient(c)
}

func requestContext(c *cli.Context) (context.Context, context.CancelFunc) {
	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, ParseGlobalFlags(c).Timeout)
}

// render writes rows as a table, or raw as JSON/YAML.
func render(c *cli.Context, rows, raw any, columns ...string) error {
	flags := ParseGlobalFlags(c)
	if flags.Output != output.FormatTable {
		rows = raw
	}
	return output.NewFormatter(flags.Output, flags.Wide, columns...).Format(c.App.Writer, rows)
}

// confirm reads one line from the app's Reader and compares it to want.
func confirm(c *cli.Context, prompt string, want ...string) bool {
	fmt.Fprint(c.App.Writer, prompt)
	var answer string
	fmt.Fscanln(c.App.Reader, &answer)
	for _, w := range want {
		if answer == w {
			return true
		}
	}
	fmt.Fprintln(c.App.Writer, "Cancelled.")
	return false
}

// firstArg returns the single positional argument named what.
func firstArg(c *cli.Context, what string) (string, error) {
	arg := strings.TrimSpace(c.Args().First())
	if arg == "" {
		return "", fmt.Errorf("%s required", what)
	}
	return arg, nil
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
