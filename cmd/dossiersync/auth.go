package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"dossiersync/pkg/auth"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage provider credentials",
	Long: `Manage stored provider credentials securely.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (read-only fallback)

Never share your credentials or config files!`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [profile]",
	Short: "Store provider credentials securely",
	Long: `Store provider API credentials in the system keychain or an
encrypted file.

You will be prompted for:
  - Profile name (if not provided; "default" is used when left empty)
  - API username
  - API password (hidden as you type)`,
	Example: `  # Interactive login under the default profile
  dossiersync auth login

  # Store credentials under a named profile
  dossiersync auth login production`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout [profile]",
	Short: "Remove stored credentials",
	Long: `Remove stored provider credentials for a profile. Without a
profile name all stored profiles are listed for selection.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogout,
}

// authListCmd represents the auth list command
var authListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored credential profiles",
	Long:  `List all stored credential profiles with passwords masked.`,
	Args:  cobra.NoArgs,
	RunE:  runAuthList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(authListCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	reader := bufio.NewReader(os.Stdin)

	var profile string
	if len(args) > 0 {
		profile = args[0]
	} else {
		fmt.Print("Profile name [default]: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read profile name: %w", err)
		}
		profile = strings.TrimSpace(input)
		if profile == "" {
			profile = "default"
		}
	}

	if existing, _ := manager.Retrieve(profile); existing != nil {
		fmt.Printf("Profile %q already exists. Update credentials? (y/N): ", profile)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Print("API username: ")
	usernameInput, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read username: %w", err)
	}
	username := strings.TrimSpace(usernameInput)
	if username == "" {
		return fmt.Errorf("username is required")
	}

	fmt.Print("API password: ")
	password, err := readPassword()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Println()
	if password == "" {
		return fmt.Errorf("password is required")
	}

	creds := &auth.Credentials{
		Profile:  profile,
		Username: username,
		Password: password,
	}
	if err := manager.Store(creds); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	fmt.Printf("Credentials stored for profile %q.\n", profile)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	var profile string
	if len(args) > 0 {
		profile = args[0]
	} else {
		profiles, err := manager.List()
		if err != nil || len(profiles) == 0 {
			fmt.Println("No stored credentials.")
			return nil
		}

		fmt.Println("Stored profiles:")
		for i, creds := range profiles {
			fmt.Printf("  %d) %s (%s)\n", i+1, creds.Profile, creds.Username)
		}
		fmt.Print("Profile to remove: ")
		input, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		profile = strings.TrimSpace(input)
		if profile == "" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := manager.Delete(profile); err != nil {
		return fmt.Errorf("failed to remove credentials: %w", err)
	}

	fmt.Printf("Credentials removed for profile %q.\n", profile)
	return nil
}

func runAuthList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	profiles, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list credentials: %w", err)
	}
	if len(profiles) == 0 {
		fmt.Println("No stored credentials. Run 'dossiersync auth login' to add some.")
		return nil
	}

	fmt.Println("Stored profiles:")
	for _, creds := range profiles {
		safe := auth.Sanitize(creds)
		fmt.Printf("  %-16s username=%s password=%s modified=%s\n",
			safe.Profile, safe.Username, safe.Password,
			safe.LastModified.Format(time.RFC3339))
	}
	return nil
}

// readPassword reads a line without echoing it
func readPassword() (string, error) {
	data, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
