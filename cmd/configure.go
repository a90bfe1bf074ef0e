package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jonandersen/tda/internal/config"
	"github.com/jonandersen/tda/internal/keyring"
	"github.com/jonandersen/tda/internal/tokenstore"
)

// passwordReader abstracts terminal password input for testing.
type passwordReader interface {
	ReadPassword() (string, error)
	IsTerminal() bool
}

// terminalReader reads passwords from the terminal using golang.org/x/term.
type terminalReader struct {
	fd int
}

// newTerminalReader creates a reader for the given file descriptor.
func newTerminalReader(fd int) *terminalReader {
	return &terminalReader{fd: fd}
}

func (r *terminalReader) ReadPassword() (string, error) {
	password, err := term.ReadPassword(r.fd)
	if err != nil {
		return "", err
	}
	return string(password), nil
}

func (r *terminalReader) IsTerminal() bool {
	return term.IsTerminal(r.fd)
}

// prompter abstracts interactive menu selection for testing.
type prompter interface {
	SelectOption(options []string) (int, error)
	ReadLine(prompt string) (string, error)
}

// terminalPrompter implements prompter using stdin.
type terminalPrompter struct {
	scanner *bufio.Scanner
	writer  io.Writer
}

func newTerminalPrompter(r io.Reader, w io.Writer) *terminalPrompter {
	return &terminalPrompter{scanner: bufio.NewScanner(r), writer: w}
}

func (p *terminalPrompter) SelectOption(options []string) (int, error) {
	for {
		if !p.scanner.Scan() {
			if err := p.scanner.Err(); err != nil {
				return 0, err
			}
			return 0, fmt.Errorf("no input")
		}
		input := strings.TrimSpace(p.scanner.Text())
		idx, err := strconv.Atoi(input)
		if err != nil || idx < 1 || idx > len(options) {
			_, _ = fmt.Fprintf(p.writer, "Please enter a number between 1 and %d: ", len(options))
			continue
		}
		return idx - 1, nil // Convert to 0-indexed
	}
}

func (p *terminalPrompter) ReadLine(prompt string) (string, error) {
	_, _ = fmt.Fprint(p.writer, prompt)
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", nil
	}
	return strings.TrimSpace(p.scanner.Text()), nil
}

// configureOptions holds dependencies for the configure command.
// This allows for dependency injection in tests.
type configureOptions struct {
	configPath     func() string
	store          keyring.Store
	passwordReader passwordReader
	prompt         prompter
}

// configureFlags are the values given on the command line.
type configureFlags struct {
	clientID    string
	redirectURI string
	backend     string
}

func (f configureFlags) empty() bool {
	return f.clientID == "" && f.redirectURI == "" && f.backend == ""
}

// backendOptions is the token store menu, in display order.
var backendOptions = []struct {
	name  string
	label string
}{
	{tokenstore.BackendFile, "Plain file (tokens.json)"},
	{tokenstore.BackendEncrypted, "Encrypted file (passphrase kept in the system keyring)"},
	{tokenstore.BackendSQLite, "SQLite database (tokens.db)"},
	{tokenstore.BackendKeyring, "System keyring"},
}

// newConfigureCmd creates the configure command with the given options.
func newConfigureCmd(opts configureOptions) *cobra.Command {
	var flags configureFlags

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Configure the OAuth application and token storage",
		Long: `Configure the CLI with your TD Ameritrade developer application.

You will be prompted for anything not given as a flag. The client ID is the
consumer key of your app; the redirect URI must match the app's callback URL.

Examples:
  tda configure
  tda configure --client-id ABC123 --redirect-uri http://127.0.0.1:8080/callback
  tda configure --backend encrypted`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigure(cmd, opts, flags)
		},
	}

	cmd.Flags().StringVar(&flags.clientID, "client-id", "", "OAuth client ID (consumer key)")
	cmd.Flags().StringVar(&flags.redirectURI, "redirect-uri", "", "OAuth redirect URI")
	cmd.Flags().StringVar(&flags.backend, "backend", "", "Token store backend: file, encrypted, sqlite or keyring")

	// Don't show usage info on validation errors - just show the error
	cmd.SilenceUsage = true

	return cmd
}

// reconfigureMenuOptions defines the menu options when already configured.
var reconfigureMenuOptions = []string{
	"Change client ID and redirect URI",
	"Change token store backend",
	"View current configuration",
	"Clear token passphrase",
}

func runConfigure(cmd *cobra.Command, opts configureOptions, flags configureFlags) error {
	path := opts.configPath()
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.ClientID != "" {
		if flags.empty() {
			return runReconfigureMenu(cmd, opts, cfg)
		}
		// Flags update an existing configuration; the rest is kept.
		if flags.clientID == "" {
			flags.clientID = cfg.ClientID
		}
		if flags.redirectURI == "" {
			flags.redirectURI = cfg.RedirectURI
		}
		if flags.backend == "" {
			flags.backend = cfg.Store.Backend
		}
	}

	return runInitialSetup(cmd, opts, cfg, flags)
}

// runReconfigureMenu shows the reconfigure menu when already configured.
func runReconfigureMenu(cmd *cobra.Command, opts configureOptions, cfg *config.Config) error {
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(out, "CLI is already configured. What would you like to do?")
	_, _ = fmt.Fprintln(out)

	for i, opt := range reconfigureMenuOptions {
		_, _ = fmt.Fprintf(out, "  %d. %s\n", i+1, opt)
	}
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprint(out, "Select option: ")

	choice, err := opts.prompt.SelectOption(reconfigureMenuOptions)
	if err != nil {
		return fmt.Errorf("failed to read selection: %w", err)
	}

	switch choice {
	case 0:
		return runInitialSetup(cmd, opts, cfg, configureFlags{backend: cfg.Store.Backend})
	case 1:
		return runInitialSetup(cmd, opts, cfg, configureFlags{clientID: cfg.ClientID, redirectURI: cfg.RedirectURI})
	case 2:
		return runViewConfiguration(cmd, opts, cfg)
	case 3:
		return runClearPassphrase(cmd, opts)
	default:
		return fmt.Errorf("invalid selection")
	}
}

// runInitialSetup prompts for every value not given in flags and saves
// the result.
func runInitialSetup(cmd *cobra.Command, opts configureOptions, cfg *config.Config, flags configureFlags) error {
	out := cmd.OutOrStdout()

	clientID := flags.clientID
	if clientID == "" {
		var err error
		clientID, err = opts.prompt.ReadLine("Client ID (consumer key): ")
		if err != nil {
			return fmt.Errorf("failed to read client ID: %w", err)
		}
	}
	if err := validateClientID(clientID); err != nil {
		return err
	}

	redirectURI := flags.redirectURI
	if redirectURI == "" {
		var err error
		redirectURI, err = opts.prompt.ReadLine("Redirect URI: ")
		if err != nil {
			return fmt.Errorf("failed to read redirect URI: %w", err)
		}
	}
	if err := validateRedirectURI(redirectURI); err != nil {
		return err
	}

	backend := flags.backend
	if backend == "" {
		var err error
		backend, err = promptBackend(cmd, opts)
		if err != nil {
			return err
		}
	}

	cfg.ClientID = clientID
	cfg.RedirectURI = redirectURI
	cfg.Store.Backend = backend
	if err := cfg.Validate(); err != nil {
		return err
	}

	if backend == tokenstore.BackendEncrypted {
		if err := ensurePassphrase(cmd, opts); err != nil {
			return err
		}
	}

	if err := config.Save(opts.configPath(), cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	_, _ = fmt.Fprintln(out, "Configuration saved successfully!")
	_, _ = fmt.Fprintln(out, "Run 'tda login' to authorize the CLI.")
	return nil
}

func validateClientID(id string) error {
	if id == "" {
		return fmt.Errorf("client ID cannot be empty")
	}
	if strings.ContainsAny(id, " \t") {
		return fmt.Errorf("client ID must not contain whitespace")
	}
	return nil
}

func validateRedirectURI(raw string) error {
	if raw == "" {
		return fmt.Errorf("redirect URI cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid redirect URI %q: expected an absolute URL", raw)
	}
	return nil
}

// promptBackend shows the token store menu.
func promptBackend(cmd *cobra.Command, opts configureOptions) (string, error) {
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, "Where should tokens be stored?")

	labels := make([]string, len(backendOptions))
	for i, b := range backendOptions {
		labels[i] = b.label
		_, _ = fmt.Fprintf(out, "  %d. %s\n", i+1, b.label)
	}
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprint(out, "Select backend: ")

	choice, err := opts.prompt.SelectOption(labels)
	if err != nil {
		return "", fmt.Errorf("failed to read selection: %w", err)
	}
	return backendOptions[choice].name, nil
}

// ensurePassphrase stores a token passphrase in the keyring unless one is
// already there.
func ensurePassphrase(cmd *cobra.Command, opts configureOptions) error {
	_, err := opts.store.Get(keyring.ServiceName, keyring.KeyTokenPassphrase)
	if err == nil {
		return nil
	}
	if !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to read keyring: %w", err)
	}

	if !opts.passwordReader.IsTerminal() {
		return fmt.Errorf("setting a token passphrase requires an interactive terminal\nSet %s instead when running in a script", keyring.EnvTokenPassphrase)
	}

	_, _ = fmt.Fprint(cmd.OutOrStdout(), "Enter a passphrase for the token file: ")
	passphrase, err := opts.passwordReader.ReadPassword()
	if err != nil {
		return fmt.Errorf("failed to read passphrase: %w", err)
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout()) // Print newline after hidden input

	if passphrase == "" {
		return fmt.Errorf("passphrase cannot be empty")
	}

	if err := opts.store.Set(keyring.ServiceName, keyring.KeyTokenPassphrase, passphrase); err != nil {
		return fmt.Errorf("failed to store passphrase in keyring: %w", err)
	}
	return nil
}

// runViewConfiguration displays the current configuration.
func runViewConfiguration(cmd *cobra.Command, opts configureOptions, cfg *config.Config) error {
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, "Current Configuration:")
	_, _ = fmt.Fprintln(out, "----------------------")
	_, _ = fmt.Fprintf(out, "Client ID: %s\n", cfg.ClientID)
	_, _ = fmt.Fprintf(out, "Redirect URI: %s\n", cfg.RedirectURI)
	_, _ = fmt.Fprintf(out, "API base URL: %s\n", cfg.APIBaseURL)

	path := cfg.Store.Path
	if path == "" && cfg.Store.Backend != tokenstore.BackendKeyring {
		path = tokenstore.DefaultPath(cfg.Store.Backend, config.ConfigDir())
	}
	_, _ = fmt.Fprintf(out, "Token store: %s %s\n", cfg.Store.Backend, path)

	if cfg.Store.Backend == tokenstore.BackendEncrypted {
		if _, err := opts.store.Get(keyring.ServiceName, keyring.KeyTokenPassphrase); err == nil {
			_, _ = fmt.Fprintln(out, "Token passphrase: Configured")
		} else {
			_, _ = fmt.Fprintln(out, "Token passphrase: Not configured")
		}
	}

	if cfg.AccountID != "" {
		_, _ = fmt.Fprintf(out, "Default account: %s\n", cfg.AccountID)
	} else {
		_, _ = fmt.Fprintln(out, "Default account: Not set")
	}
	return nil
}

// runClearPassphrase removes the stored token passphrase.
func runClearPassphrase(cmd *cobra.Command, opts configureOptions) error {
	if err := opts.store.Delete(keyring.ServiceName, keyring.KeyTokenPassphrase); err != nil {
		return fmt.Errorf("failed to clear passphrase: %w", err)
	}

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Token passphrase cleared successfully.")
	return nil
}

func init() {
	// Create configure command with production dependencies
	configureCmd := newConfigureCmd(configureOptions{
		configPath:     configPath,
		store:          keyring.Default(),
		passwordReader: newTerminalReader(int(os.Stdin.Fd())),
		prompt:         newTerminalPrompter(os.Stdin, os.Stdout),
	})
	rootCmd.AddCommand(configureCmd)
}
