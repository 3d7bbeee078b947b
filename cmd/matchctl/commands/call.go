package commands

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/matchctl/internal/app"
)

func callCommand() *cli.Command {
	return &cli.Command{
		Name:      "call",
		Usage:     "send an authenticated request and print the response body",
		ArgsUsage: "METHOD PATH",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Usage:   "request body, @file to read a file or - for stdin",
			},
			&cli.StringSliceFlag{
				Name:    "header",
				Aliases: []string{"H"},
				Usage:   "extra request header as 'Name: value'",
			},
			&cli.BoolFlag{
				Name:    "include",
				Aliases: []string{"i"},
				Usage:   "print the response status line first",
			},
		},
		Action: withApp(callAction),
	}
}

func callAction(ctx context.Context, cmd *cli.Command, application *app.App) error {
	if cmd.NArg() != 2 {
		return fmt.Errorf("expected METHOD and PATH, got %d arguments", cmd.NArg())
	}
	method := strings.ToUpper(cmd.Args().Get(0))
	path := cmd.Args().Get(1)

	body, err := requestBody(cmd)
	if err != nil {
		return err
	}

	req, err := application.Client().NewRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, h := range cmd.StringSlice("header") {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return fmt.Errorf("invalid header %q, expected 'Name: value'", h)
		}
		req.Header.Set(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	resp, err := application.Client().Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	out := stdout(cmd)
	if cmd.Bool("include") {
		_, _ = fmt.Fprintf(out, "%s %s\n\n", resp.Proto, resp.Status)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return nil
}

func requestBody(cmd *cli.Command) (io.Reader, error) {
	data := cmd.String("data")
	switch {
	case data == "":
		return nil, nil
	case data == "-":
		return stdin(cmd), nil
	case strings.HasPrefix(data, "@"):
		f, err := os.ReadFile(strings.TrimPrefix(data, "@"))
		if err != nil {
			return nil, fmt.Errorf("reading request body: %w", err)
		}
		return strings.NewReader(string(f)), nil
	default:
		return strings.NewReader(data), nil
	}
}
