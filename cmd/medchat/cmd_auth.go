package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/comigor/medchat-go/internal/backend"
	"github.com/comigor/medchat-go/internal/logger"
)

var (
	loginEmail    string
	loginPassword string

	profileName      string
	profileBirthDate string
	profileGender    string

	settingsTheme string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the API token",
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke the API token and forget it",
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE:  runWhoami,
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or update your profile",
	Long: `Without flags, prints your profile. With any of --name, --birth-date or
--gender, updates those fields. An empty --birth-date clears it.`,
	RunE: runProfile,
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or update client settings",
	RunE:  runSettings,
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "account password (prompted when omitted)")
	_ = loginCmd.MarkFlagRequired("email")

	profileCmd.Flags().StringVar(&profileName, "name", "", "full name")
	profileCmd.Flags().StringVar(&profileBirthDate, "birth-date", "", "birth date as YYYY-MM-DD")
	profileCmd.Flags().StringVar(&profileGender, "gender", "", "gender")

	settingsCmd.Flags().StringVar(&settingsTheme, "theme", "", "preferred theme: light or dark")
}

func runLogin(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()
	client, err := a.api()
	if err != nil {
		return err
	}

	password := loginPassword
	if password == "" {
		if password, err = readPassword(cmd); err != nil {
			return err
		}
	}

	token, user, err := client.TokenLogin(cmd.Context(), loginEmail, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if err := saveToken(cfg.Auth.TokenFile, token); err != nil {
		return err
	}
	logger.L.Info("signed in", "user", user.Email)
	fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", displayName(user))
	return nil
}

// readPassword prompts without echo on a terminal and reads one line
// otherwise.
func readPassword(cmd *cobra.Command) (string, error) {
	pw, err := readPasswords(cmd, "Password: ")
	if err != nil {
		return "", err
	}
	return pw[0], nil
}

// readPasswords reads one password per prompt, one line each when stdin is
// not a terminal.
func readPasswords(cmd *cobra.Command, prompts ...string) ([]string, error) {
	out := make([]string, 0, len(prompts))
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		for _, prompt := range prompts {
			fmt.Fprint(cmd.ErrOrStderr(), prompt)
			b, err := term.ReadPassword(int(f.Fd()))
			fmt.Fprintln(cmd.ErrOrStderr())
			if err != nil {
				return nil, fmt.Errorf("read password: %w", err)
			}
			out = append(out, string(b))
		}
		return out, nil
	}

	r := bufio.NewReader(cmd.InOrStdin())
	for range prompts {
		line, err := r.ReadString('\n')
		if err != nil && line == "" {
			return nil, fmt.Errorf("read password: %w", err)
		}
		out = append(out, strings.TrimRight(line, "\r\n"))
	}
	return out, nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()
	client, err := a.api()
	if err != nil {
		return err
	}

	// The local token is forgotten even when the server call fails.
	logoutErr := client.TokenLogout(cmd.Context())
	if err := removeToken(cfg.Auth.TokenFile); err != nil {
		return err
	}
	if logoutErr != nil && !backend.IsClientFault(logoutErr) {
		return fmt.Errorf("logout: %w", logoutErr)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()
	client, err := a.api()
	if err != nil {
		return err
	}

	u, err := client.Me(cmd.Context())
	if err != nil {
		return fmt.Errorf("whoami: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s <%s>\n", displayName(u), u.Email)
	var roles []string
	if u.IsStaff {
		roles = append(roles, "staff")
	}
	if u.IsAdmin || u.IsSuperuser {
		roles = append(roles, "admin")
	}
	if len(roles) > 0 {
		fmt.Fprintf(out, "roles: %s\n", strings.Join(roles, ", "))
	}
	if !u.IsVerified {
		fmt.Fprintln(out, "email not verified")
	}
	return nil
}

func displayName(u backend.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

func runProfile(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()
	client, err := a.api()
	if err != nil {
		return err
	}

	p, err := client.Profile(cmd.Context())
	if err != nil {
		return fmt.Errorf("profile: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("name") || flags.Changed("birth-date") || flags.Changed("gender") {
		upd := backend.ProfileUpdate{Name: p.Name, BirthDate: p.BirthDate, Gender: p.Gender}
		if flags.Changed("name") {
			upd.Name = profileName
		}
		if flags.Changed("birth-date") {
			upd.BirthDate = nil
			if profileBirthDate != "" {
				upd.BirthDate = &profileBirthDate
			}
		}
		if flags.Changed("gender") {
			upd.Gender = profileGender
		}
		if p, err = client.UpdateProfile(cmd.Context(), upd); err != nil {
			printFieldErrors(cmd, err)
			return fmt.Errorf("update profile: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	birth := "-"
	if p.BirthDate != nil && *p.BirthDate != "" {
		birth = *p.BirthDate
	}
	fmt.Fprintf(out, "name:       %s\n", p.Name)
	fmt.Fprintf(out, "email:      %s\n", p.Email)
	fmt.Fprintf(out, "birth date: %s\n", birth)
	fmt.Fprintf(out, "gender:     %s\n", orDash(p.Gender))
	fmt.Fprintf(out, "theme:      %s\n", orDash(p.PreferredTheme))
	return nil
}

func runSettings(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()
	client, err := a.api()
	if err != nil {
		return err
	}

	var s backend.Settings
	if cmd.Flags().Changed("theme") {
		s, err = client.UpdateTheme(cmd.Context(), settingsTheme)
	} else {
		s, err = client.Settings(cmd.Context())
	}
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "theme: %s\n", orDash(s.PreferredTheme))
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
