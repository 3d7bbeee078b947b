package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/florianilch/matchctl/internal/app"
	"github.com/florianilch/matchctl/internal/credstore"
)

var errNotLoggedIn = errors.New("not logged in, run `matchctl login`")

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "sign in with e-mail and password",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "email",
				Aliases:  []string{"e"},
				Usage:    "account e-mail",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "password-stdin",
				Usage: "read the password from stdin",
			},
		},
		Action: withApp(loginAction),
	}
}

func loginAction(ctx context.Context, cmd *cli.Command, application *app.App) error {
	if !application.Writable() {
		return fmt.Errorf("login needs writable storage: %w", credstore.ErrReadOnly)
	}

	password, err := readPassword(cmd)
	if err != nil {
		return err
	}

	result, err := application.Client().Login(ctx, cmd.String("email"), password)
	if err != nil {
		return err
	}

	out := stdout(cmd)
	if result.RequiresConfirmation {
		msg := result.Message
		if msg == "" {
			msg = "Your account needs to be confirmed before you can sign in."
		}
		_, _ = fmt.Fprintln(out, msg)
		return nil
	}

	_, _ = fmt.Fprintf(out, "Logged in as %s\n", displayName(&result.Bundle.User))
	return nil
}

// readPassword reads one line from stdin with --password-stdin, or prompts on the terminal.
func readPassword(cmd *cli.Command) (string, error) {
	if cmd.Bool("password-stdin") {
		line, err := bufio.NewReader(stdin(cmd)).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("reading password from stdin: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal, use --password-stdin")
	}

	_, _ = fmt.Fprint(stderr(cmd), "Password: ")
	password, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(stderr(cmd))
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(password), nil
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "end the session and remove stored credentials",
		Action: withApp(func(ctx context.Context, cmd *cli.Command, application *app.App) error {
			if err := application.Client().Logout(ctx); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(stdout(cmd), "Logged out")
			return nil
		}),
	}
}

func whoamiCommand() *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "show the signed-in user",
		Action: withApp(func(ctx context.Context, cmd *cli.Command, application *app.App) error {
			user, err := application.Store().User(ctx)
			if err != nil {
				return err
			}
			if user == nil {
				return errNotLoggedIn
			}

			out := stdout(cmd)
			_, _ = fmt.Fprintf(out, "ID:      %s\n", user.ID)
			_, _ = fmt.Fprintf(out, "Name:    %s\n", strings.TrimSpace(user.FirstName+" "+user.LastName))
			_, _ = fmt.Fprintf(out, "Email:   %s\n", user.Email)
			_, _ = fmt.Fprintf(out, "Tenants: %s\n", strings.Join(user.Tenants, ", "))
			return nil
		}),
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show the local session state",
		Action: withApp(func(ctx context.Context, cmd *cli.Command, application *app.App) error {
			status, err := application.Client().Status(ctx)
			if err != nil {
				return err
			}

			out := stdout(cmd)
			if !status.LoggedIn {
				_, _ = fmt.Fprintln(out, "Not logged in")
				return nil
			}

			state := "valid"
			if status.Expired {
				state = "expired, refreshed on next request"
			}
			_, _ = fmt.Fprintf(out, "Logged in as %s\n", displayName(status.User))
			_, _ = fmt.Fprintf(out, "Access token %s (expires %s)\n", state, status.ExpiresAt.Local().Format(time.RFC3339))
			return nil
		}),
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "print a valid access token, refreshing it if needed",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "id",
				Usage: "print the ID token instead",
			},
		},
		Action: withApp(func(ctx context.Context, cmd *cli.Command, application *app.App) error {
			tokens, err := application.Client().Tokens(ctx)
			if errors.Is(err, credstore.ErrNoSession) {
				return errNotLoggedIn
			}
			if err != nil {
				return err
			}

			token := tokens.AccessToken
			if cmd.Bool("id") {
				token = tokens.IDToken
			}
			_, _ = fmt.Fprintln(stdout(cmd), token)
			return nil
		}),
	}
}

func displayName(user *credstore.User) string {
	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	if name == "" {
		return user.Email
	}
	return fmt.Sprintf("%s <%s>", name, user.Email)
}
