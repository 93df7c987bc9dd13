package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	dbutils "github.com/tendant/db-utils/db"
	"github.com/tendant/simple-credential/pkg/bootstrap"
	"github.com/tendant/simple-credential/pkg/config"
	"github.com/tendant/simple-credential/pkg/credential"
	"github.com/tendant/simple-credential/pkg/db"
	"golang.org/x/term"
)

const usage = `Usage: credctl [-config file] <command> [flags]

Commands:
  migrate          apply database migrations
  create-member    create a member, generating a password unless -password-stdin
  set-password     replace a member's password without policy checks
  temp-token       issue a one-time login token for a member
  migrate-legacy   import credentials from the legacy member table
`

func main() {
	configPath := flag.String("config", "", "optional configuration file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{AddSource: true})))

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed loading configuration", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	dbConfig := cfg.Database.ToDbConfig()
	pool, err := dbutils.NewDbPool(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed creating dbpool", "db", dbConfig.Database, "host", dbConfig.Host, "port", dbConfig.Port, "user", dbConfig.User)
		os.Exit(1)
	}
	defer pool.Close()

	command, args := flag.Arg(0), flag.Args()[1:]
	switch command {
	case "migrate":
		err = db.Migrate(ctx, pool)
	case "create-member":
		err = createMember(ctx, cfg, pool, args)
	case "set-password":
		err = setPassword(ctx, cfg, pool, args)
	case "temp-token":
		err = tempToken(ctx, cfg, pool, args)
	case "migrate-legacy":
		err = migrateLegacy(ctx, pool)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error("Command failed", "command", command, "err", err)
		os.Exit(1)
	}
}

func services(cfg config.SecurityConfig, pool *pgxpool.Pool) (*bootstrap.Services, error) {
	// Operator tasks never email members.
	cfg.Email.Enabled = false
	cfg.Credential.NotifyPasswordChange = false
	return bootstrap.NewServices(cfg, bootstrap.PostgresRepositories(pool))
}

func createMember(ctx context.Context, cfg config.SecurityConfig, pool *pgxpool.Pool, args []string) error {
	fs := flag.NewFlagSet("create-member", flag.ExitOnError)
	email := fs.String("email", "", "email address")
	username := fs.String("username", "", "username")
	displayName := fs.String("name", "", "display name")
	promptPassword := fs.Bool("password-stdin", false, "read the password from the terminal instead of generating one")
	fs.Parse(args)

	memberCfg := bootstrap.MemberConfig{Email: *email, Username: *username, DisplayName: *displayName}
	if *promptPassword {
		password, err := readPassword()
		if err != nil {
			return err
		}
		memberCfg.Password = password
	}

	svc, err := services(cfg, pool)
	if err != nil {
		return err
	}
	result, err := bootstrap.CreateMember(ctx, svc, memberCfg)
	if err != nil {
		return err
	}
	bootstrap.PrintMemberResult(os.Stdout, result)
	return nil
}

func setPassword(ctx context.Context, cfg config.SecurityConfig, pool *pgxpool.Pool, args []string) error {
	fs := flag.NewFlagSet("set-password", flag.ExitOnError)
	identifier := fs.String("identifier", "", "member email or username (required)")
	fs.Parse(args)
	if *identifier == "" {
		return fmt.Errorf("-identifier is required")
	}

	password, err := readPassword()
	if err != nil {
		return err
	}
	svc, err := services(cfg, pool)
	if err != nil {
		return err
	}
	ident, err := bootstrap.SetPassword(ctx, svc, *identifier, password)
	if err != nil {
		return err
	}
	fmt.Printf("Password updated for %s\n", ident.ID)
	return nil
}

func tempToken(ctx context.Context, cfg config.SecurityConfig, pool *pgxpool.Pool, args []string) error {
	fs := flag.NewFlagSet("temp-token", flag.ExitOnError)
	identifier := fs.String("identifier", "", "member email or username (required)")
	fs.Parse(args)
	if *identifier == "" {
		return fmt.Errorf("-identifier is required")
	}

	svc, err := services(cfg, pool)
	if err != nil {
		return err
	}
	result, err := bootstrap.IssueTempToken(ctx, svc, *identifier)
	if err != nil {
		return err
	}
	bootstrap.PrintTempToken(os.Stdout, result)
	return nil
}

func migrateLegacy(ctx context.Context, pool *pgxpool.Pool) error {
	n, err := credential.MigrateLegacyMembers(ctx,
		credential.NewPostgresLegacySource(pool),
		credential.NewPostgresRepository(pool))
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d legacy credentials\n", n)
	return nil
}

// readPassword prompts twice without echo when stdin is a terminal and reads
// a single line otherwise.
func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		var password string
		if _, err := fmt.Fscanln(os.Stdin, &password); err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return password, nil
	}

	fmt.Fprint(os.Stderr, "New password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Fprint(os.Stderr, "Repeat password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if string(first) != string(second) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(first), nil
}
