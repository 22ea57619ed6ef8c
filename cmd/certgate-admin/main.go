// ABOUTME: Admin CLI for certgate certificate issuance and revocation
// ABOUTME: Talks to a running server over HTTP using the shared admin secret

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
)

const banner = `
                _                  _                 _           _
  ___ ___ _ __| |_ __ _  __ _| |_ ___      __ _  __| |_ __ ___ (_)_ __
 / __/ _ \ '__| __/ _' |/ _' | __/ _ \____ / _' |/ _' | '_ ' _ \| | '_ \
| (_|  __/ |  | || (_| | (_| | ||  __/____| (_| | (_| | | | | | | | | | |
 \___\___|_|   \__\__, |\__,_|\__\___|     \__,_|\__,_|_| |_| |_|_|_| |_|
                  |___/
`

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}

	baseURL := os.Getenv("CERTGATE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	client := NewClient(baseURL, os.Getenv("CERTGATE_ADMIN_SECRET"))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, client, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

// run dispatches one command. Split from main so tests can drive it.
func run(ctx context.Context, client *Client, cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "status":
		return cmdStatus(ctx, client, out)
	case "issue":
		return cmdIssue(ctx, client, args, out)
	case "list", "ls":
		return cmdList(ctx, client, args, out)
	case "revoke":
		return cmdRevoke(ctx, client, args, out)
	case "audit":
		return cmdAudit(ctx, client, args, out)
	case "login":
		return cmdLogin(ctx, client, args, out, false)
	case "verify":
		return cmdLogin(ctx, client, args, out, true)
	case "public-key":
		return cmdPublicKey(ctx, client, out)
	case "help", "-h", "--help":
		printUsage(out)
		return nil
	default:
		printUsage(out)
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func printUsage(out io.Writer) {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Fprint(out, banner)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Usage: certgate-admin <command> [args]")
	fmt.Fprintln(out)
	yellow.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  status                              Show server readiness and key id")
	fmt.Fprintln(out, "  issue --name N --email E [--days D] Issue a client certificate")
	fmt.Fprintln(out, "  list [--status S] [--limit N]       List certificates (all, active, revoked)")
	fmt.Fprintln(out, "  revoke <certificate-id>             Revoke a certificate")
	fmt.Fprintln(out, "  audit [--certificate ID] [--action A] [--limit N]")
	fmt.Fprintln(out, "                                      Show the admin audit log")
	fmt.Fprintln(out, "  login [certificate]                 Check a certificate via /auth/login")
	fmt.Fprintln(out, "  verify [certificate]                Check a certificate as a bearer credential")
	fmt.Fprintln(out, "  public-key                          Print the authority public key")
	fmt.Fprintln(out)
	yellow.Fprintln(out, "Environment:")
	fmt.Fprintln(out, "  CERTGATE_URL             Server URL (default: http://localhost:8080)")
	fmt.Fprintln(out, "  CERTGATE_ADMIN_SECRET    Admin shared secret (required for admin commands)")
	fmt.Fprintln(out, "  CERTGATE_CERTIFICATE     Certificate used by login and verify when no argument is given")
	fmt.Fprintln(out)
}

func requireSecret(client *Client) error {
	if client.adminSecret == "" {
		return errors.New("CERTGATE_ADMIN_SECRET environment variable is required")
	}
	return nil
}

// parseArgs reads "--flag value" pairs for the allowed flags and returns the
// remaining positional arguments.
func parseArgs(args []string, allowed ...string) (map[string]string, []string, error) {
	flags := make(map[string]string)
	var rest []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			rest = append(rest, arg)
			continue
		}
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		found := false
		for _, a := range allowed {
			if a == name {
				found = true
				break
			}
		}
		if !found {
			return nil, nil, fmt.Errorf("unknown flag: %s", arg)
		}
		if !hasValue {
			if i+1 >= len(args) {
				return nil, nil, fmt.Errorf("--%s requires a value", name)
			}
			value = args[i+1]
			i++
		}
		flags[name] = value
	}
	return flags, rest, nil
}

func intFlag(flags map[string]string, name string) (int, error) {
	v, ok := flags[name]
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("--%s must be a number: %q", name, v)
	}
	return n, nil
}

func cmdStatus(ctx context.Context, client *Client, out io.Writer) error {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	fmt.Fprintln(out)
	ready, err := client.Ready(ctx)
	if err != nil {
		yellow.Fprint(out, "  Server:  ")
		red.Fprintf(out, "NOT READY (%v)\n", err)
		fmt.Fprintln(out)
		return nil
	}
	green.Fprint(out, "  Server:  ")
	fmt.Fprintf(out, "%s at %s\n", ready, client.baseURL)

	if client.adminSecret == "" {
		yellow.Fprint(out, "  Admin:   ")
		fmt.Fprintln(out, "(no secret - set CERTGATE_ADMIN_SECRET)")
	} else if _, err := client.List(ctx, "", 1); err != nil {
		yellow.Fprint(out, "  Admin:   ")
		red.Fprintf(out, "rejected (%v)\n", err)
	} else {
		green.Fprint(out, "  Admin:   ")
		fmt.Fprintln(out, "authorized")
	}
	fmt.Fprintln(out)
	return nil
}

func cmdIssue(ctx context.Context, client *Client, args []string, out io.Writer) error {
	if err := requireSecret(client); err != nil {
		return err
	}
	flags, rest, err := parseArgs(args, "name", "email", "days")
	if err != nil {
		return err
	}
	if len(rest) > 0 || flags["name"] == "" || flags["email"] == "" {
		return errors.New("usage: issue --name <name> --email <email> [--days <n>]")
	}
	days, err := intFlag(flags, "days")
	if err != nil {
		return err
	}

	cert, err := client.Issue(ctx, flags["name"], flags["email"], days)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Fprintf(out, "✓ Issued certificate: %s\n", cert.CertificateID)
	fmt.Fprintf(out, "  Client:   %s <%s>\n", cert.ClientName, cert.ClientEmail)
	fmt.Fprintf(out, "  Expires:  %s\n", cert.ExpiresAt.Format(time.RFC3339))
	fmt.Fprintln(out)
	fmt.Fprintln(out, cert.Certificate)
	return nil
}

func cmdList(ctx context.Context, client *Client, args []string, out io.Writer) error {
	if err := requireSecret(client); err != nil {
		return err
	}
	flags, _, err := parseArgs(args, "status", "limit")
	if err != nil {
		return err
	}
	limit, err := intFlag(flags, "limit")
	if err != nil {
		return err
	}

	certs, err := client.List(ctx, flags["status"], limit)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Fprintln(out)
	cyan.Fprintln(out, "  Certificates")
	cyan.Fprintln(out, "  ------------")

	if len(certs) == 0 {
		fmt.Fprintln(out, "  (no certificates)")
		fmt.Fprintln(out)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tCLIENT\tEMAIL\tEXPIRES\tSTATUS")
	fmt.Fprintln(w, "  --\t------\t-----\t-------\t------")
	for _, c := range certs {
		state := "active"
		if !c.IsActive {
			state = "revoked"
		} else if time.Now().After(c.ExpiresAt) {
			state = "expired"
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n",
			c.CertificateID, c.ClientName, c.ClientEmail, c.ExpiresAt.Format("Jan 02 2006"), state)
	}
	w.Flush()
	fmt.Fprintln(out)
	return nil
}

func cmdRevoke(ctx context.Context, client *Client, args []string, out io.Writer) error {
	if err := requireSecret(client); err != nil {
		return err
	}
	if len(args) != 1 {
		return errors.New("usage: revoke <certificate-id>")
	}

	resp, err := client.Revoke(ctx, args[0])
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Fprintf(out, "✓ Revoked certificate: %s\n", resp.CertificateID)
	if resp.RevokedAt != nil {
		fmt.Fprintf(out, "  Revoked:  %s\n", resp.RevokedAt.Format(time.RFC3339))
	}
	return nil
}

func cmdAudit(ctx context.Context, client *Client, args []string, out io.Writer) error {
	if err := requireSecret(client); err != nil {
		return err
	}
	flags, _, err := parseArgs(args, "certificate", "action", "limit")
	if err != nil {
		return err
	}
	limit, err := intFlag(flags, "limit")
	if err != nil {
		return err
	}

	entries, err := client.Audit(ctx, flags["certificate"], flags["action"], limit)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Fprintln(out)
	cyan.Fprintln(out, "  Audit Log")
	cyan.Fprintln(out, "  ---------")

	if len(entries) == 0 {
		fmt.Fprintln(out, "  (no entries)")
		fmt.Fprintln(out)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  TIME\tACTOR\tACTION\tTARGET")
	fmt.Fprintln(w, "  ----\t-----\t------\t------")
	for _, e := range entries {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", e.Timestamp.Format("Jan 02 15:04:05"), e.Actor, e.Action, e.Target)
	}
	w.Flush()
	fmt.Fprintln(out)
	return nil
}

// cmdLogin checks a certificate, either through the login body or as a
// bearer credential.
func cmdLogin(ctx context.Context, client *Client, args []string, out io.Writer, bearer bool) error {
	certificate := os.Getenv("CERTGATE_CERTIFICATE")
	if len(args) > 0 {
		certificate = args[0]
	}
	if certificate == "" {
		return errors.New("pass a certificate or set CERTGATE_CERTIFICATE")
	}

	check := client.Login
	if bearer {
		check = client.Verify
	}

	identity, err := check(ctx, strings.TrimSpace(certificate))
	if errors.Is(err, errUnauthorized) {
		return errors.New("certificate rejected")
	}
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	fmt.Fprintln(out)
	cyan.Fprintln(out, "  Identity")
	cyan.Fprintln(out, "  --------")
	fmt.Fprintf(out, "  Certificate:  %s\n", identity.CertificateID)
	fmt.Fprintf(out, "  Client:       %s <%s>\n", identity.ClientName, identity.ClientEmail)
	fmt.Fprintf(out, "  Issuer:       %s\n", identity.Issuer)
	fmt.Fprintf(out, "  Expires:      %s\n", identity.ExpiresAt.Format(time.RFC3339))
	green.Fprintf(out, "  Permissions:  %s\n", strings.Join(identity.Permissions, ", "))
	fmt.Fprintln(out)
	return nil
}

func cmdPublicKey(ctx context.Context, client *Client, out io.Writer) error {
	pem, err := client.PublicKey(ctx)
	if err != nil {
		return err
	}
	_, err = out.Write(pem)
	return err
}
