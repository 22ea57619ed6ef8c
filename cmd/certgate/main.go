// ABOUTME: Entry point for the certgate certificate authority server
// ABOUTME: Serves the API and offers offline issue, revoke and list against the local store

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/certgate/internal/api"
	"github.com/2389/certgate/internal/auth"
	"github.com/2389/certgate/internal/config"
	"github.com/2389/certgate/internal/gateway"
	"github.com/2389/certgate/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                _                  _
  ___ ___ _ __| |_ __ _  __ _| |_ ___
 / __/ _ \ '__| __/ _' |/ _' | __/ _ \
| (_|  __/ |  | || (_| | (_| | ||  __/
 \___\___|_|   \__\__, |\__,_|\__\___|
                  |___/
`

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: certgate <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                                 Start the certgate server")
		fmt.Println("  init                                  Create a new config file interactively")
		fmt.Println("  issue --name NAME --email EMAIL       Issue a certificate offline")
		fmt.Println("        [--days N]")
		fmt.Println("  revoke <certificate-id>               Revoke a certificate offline")
		fmt.Println("  list [--status all|active|revoked]    List issued certificates")
		fmt.Println("  health                                Check server health")
		fmt.Println("  version                               Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "issue":
		err = runIssue(ctx, os.Args[2:])
	case "revoke":
		err = runRevoke(ctx, os.Args[2:])
	case "list":
		err = runList(ctx, os.Args[2:])
	case "health":
		err = runHealth(ctx)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := config.Path()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Store:     %s (%s)\n", cfg.Database.Path, cfg.Database.Driver)
	green.Print("    ▶ ")
	fmt.Printf("Keys:      %s\n", cfg.Keys.Dir)
	fmt.Println()

	gw, err := gateway.New(cfg, logger, api.WithVersion(version))
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	logger.Info("starting certgate",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"kid", gw.KeyID(),
	)

	return gw.Run(ctx)
}

// openOffline loads config, keys and store for the offline commands. The
// returned close function must be called when done.
func openOffline() (*auth.Issuer, store.Store, func(), error) {
	cfg, err := config.Load(config.Path())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(config.LoggingConfig{Level: "warn", Format: cfg.Logging.Format})
	slog.SetDefault(logger)

	keys, err := gateway.InitKeys(cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	s, err := gateway.InitStore(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	issuer := gateway.NewIssuer(cfg, keys, s, logger)
	return issuer, s, func() { _ = s.Close() }, nil
}

// runIssue issues a certificate directly against the local store. Useful
// before the server is running, or for the first client of a new install.
func runIssue(ctx context.Context, args []string) error {
	flags, rest, err := parseFlags(args, "name", "email", "days")
	if err != nil {
		return err
	}
	if len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}
	if flags["name"] == "" || flags["email"] == "" {
		return fmt.Errorf("usage: certgate issue --name NAME --email EMAIL [--days N]")
	}

	var days int
	if v := flags["days"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("--days must be a number: %q", v)
		}
		days = n
	}

	issuer, _, closeFn, err := openOffline()
	if err != nil {
		return err
	}
	defer closeFn()

	cert, err := issuer.Issue(auth.WithActor(ctx, "cli"), auth.IssueRequest{
		ClientName:   flags["name"],
		ClientEmail:  flags["email"],
		LifetimeDays: days,
	})
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	fmt.Println()
	green.Printf("  ✓ Issued certificate: %s\n", cert.CertificateID)
	fmt.Println()
	cyan.Println("  Certificate")
	cyan.Println("  -----------")
	fmt.Printf("  Client:   %s <%s>\n", cert.ClientName, cert.ClientEmail)
	fmt.Printf("  Issued:   %s\n", cert.IssuedAt.Format(time.RFC3339))
	fmt.Printf("  Expires:  %s\n", cert.ExpiresAt.Format(time.RFC3339))
	fmt.Println()
	fmt.Println(cert.Certificate)
	fmt.Println()
	return nil
}

func runRevoke(ctx context.Context, args []string) error {
	if len(args) != 1 || strings.HasPrefix(args[0], "-") {
		return fmt.Errorf("usage: certgate revoke <certificate-id>")
	}

	issuer, _, closeFn, err := openOffline()
	if err != nil {
		return err
	}
	defer closeFn()

	rec, err := issuer.Revoke(auth.WithActor(ctx, "cli"), args[0])
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Revoked certificate: %s\n", rec.ID)
	fmt.Printf("  Client:   %s <%s>\n", rec.ClientName, rec.ClientEmail)
	if rec.RevokedAt != nil {
		fmt.Printf("  Revoked:  %s\n", rec.RevokedAt.Format(time.RFC3339))
	}
	return nil
}

func runList(ctx context.Context, args []string) error {
	flags, rest, err := parseFlags(args, "status")
	if err != nil {
		return err
	}
	if len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}
	status, err := store.ParseCertificateStatus(flags["status"])
	if err != nil {
		return err
	}

	_, s, closeFn, err := openOffline()
	if err != nil {
		return err
	}
	defer closeFn()

	certs, err := s.ListCertificates(ctx, store.CertificateFilter{Status: status})
	if err != nil {
		return fmt.Errorf("listing certificates: %w", err)
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Certificates")
	cyan.Println("  ------------")

	if len(certs) == 0 {
		fmt.Println("  (no certificates)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tCLIENT\tEMAIL\tISSUED\tEXPIRES\tSTATUS")
	fmt.Fprintln(w, "  --\t------\t-----\t------\t-------\t------")
	for _, c := range certs {
		state := color.GreenString("active")
		if c.Revoked() {
			state = color.RedString("revoked")
		} else if time.Now().After(c.ExpiresAt) {
			state = color.YellowString("expired")
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\t%s\n",
			c.ID, c.ClientName, c.ClientEmail,
			c.IssuedAt.Format("Jan 02 2006"), c.ExpiresAt.Format("Jan 02 2006"), state)
	}
	w.Flush()
	fmt.Println()
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(config.Path())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health/ready", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

// generateSecret returns a random admin secret well above the minimum length.
func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating admin secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("certgate configuration setup")
	fmt.Println("============================")
	fmt.Println()

	defaultConfigPath := config.Path()
	defaultDataPath := config.DataDir()

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")

	fmt.Println("\n--- Storage Configuration ---")
	driver := prompt(reader, "Store driver (sqlite/bbolt)", "sqlite")
	dbPath := prompt(reader, "Database path", filepath.Join(defaultDataPath, "certgate.db"))
	keysDir := prompt(reader, "Key directory", filepath.Join(defaultDataPath, "keys"))

	fmt.Println("\n--- Certificate Configuration ---")
	issuer := prompt(reader, "Issuer label", auth.DefaultAuthority)

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	secret, err := generateSecret()
	if err != nil {
		return err
	}

	content := renderConfig(initAnswers{
		HTTPAddr:    httpAddr,
		Driver:      driver,
		DBPath:      dbPath,
		KeysDir:     keysDir,
		Issuer:      issuer,
		AdminSecret: secret,
		LogLevel:    logLevel,
		LogFormat:   logFormat,
	})

	// Refuse to write something the server would reject on start.
	if _, err := config.Parse([]byte(content), config.FormatYAML); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// The file holds the admin secret.
	if err := os.WriteFile(outputFile, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	fmt.Println()
	green.Printf("  ✓ Config written to %s\n", outputFile)
	yellow.Println("  Admin secret (store it somewhere safe):")
	fmt.Printf("    %s\n", secret)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  certgate serve\n")

	return nil
}

type initAnswers struct {
	HTTPAddr    string
	Driver      string
	DBPath      string
	KeysDir     string
	Issuer      string
	AdminSecret string
	LogLevel    string
	LogFormat   string
}

func renderConfig(a initAnswers) string {
	var cfg strings.Builder
	cfg.WriteString("# certgate configuration\n")
	cfg.WriteString("# Generated by certgate init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: %q\n", a.HTTPAddr))
	cfg.WriteString("  read_timeout: \"15s\"\n")
	cfg.WriteString("  write_timeout: \"30s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  driver: %q\n", a.Driver))
	cfg.WriteString(fmt.Sprintf("  path: %q\n", a.DBPath))
	cfg.WriteString("\n")

	cfg.WriteString("keys:\n")
	cfg.WriteString(fmt.Sprintf("  dir: %q\n", a.KeysDir))
	cfg.WriteString("  bits: 2048\n")
	cfg.WriteString("  on_corrupt: \"fail\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	cfg.WriteString(fmt.Sprintf("  admin_secret: %q\n", a.AdminSecret))
	cfg.WriteString("\n")

	cfg.WriteString("certificates:\n")
	cfg.WriteString(fmt.Sprintf("  issuer: %q\n", a.Issuer))
	cfg.WriteString("  default_lifetime_days: 365\n")
	cfg.WriteString("  max_lifetime_days: 3650\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", a.LogLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", a.LogFormat))

	return cfg.String()
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

// parseFlags reads "--name value" and "--name=value" pairs for the allowed
// names. Anything not starting with "-" is returned as a positional argument.
func parseFlags(args []string, allowed ...string) (map[string]string, []string, error) {
	known := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		known[a] = true
	}

	flags := make(map[string]string)
	var rest []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			rest = append(rest, arg)
			continue
		}

		name := strings.TrimLeft(arg, "-")
		value, hasValue := "", false
		if k, v, ok := strings.Cut(name, "="); ok {
			name, value, hasValue = k, v, true
		}
		if !known[name] {
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
