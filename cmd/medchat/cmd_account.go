package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/comigor/medchat-go/internal/backend"
)

var (
	registerName     string
	registerEmail    string
	registerPassword string
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	Long: `Creates an account on the backend. The password is prompted twice when
--password is omitted. The account has to be verified by email before
medchat login accepts it.`,
	RunE: runRegister,
}

var changePasswordCmd = &cobra.Command{
	Use:   "change-password",
	Short: "Change the signed-in user's password",
	Long: `Reads the current password and then the new password twice, without
echo on a terminal and one per line otherwise.`,
	RunE: runChangePassword,
}

func init() {
	registerCmd.Flags().StringVar(&registerName, "name", "", "full name")
	registerCmd.Flags().StringVar(&registerEmail, "email", "", "account email")
	registerCmd.Flags().StringVar(&registerPassword, "password", "", "account password (prompted when omitted)")
	_ = registerCmd.MarkFlagRequired("email")
}

func runRegister(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()
	client, err := a.api()
	if err != nil {
		return err
	}

	reg := backend.Registration{Name: registerName, Email: registerEmail, Password: registerPassword}
	if reg.Password == "" {
		pw, err := readPasswords(cmd, "Password: ", "Confirm password: ")
		if err != nil {
			return err
		}
		reg.Password, reg.ConfirmPassword = pw[0], pw[1]
	}

	msg, err := client.Register(cmd.Context(), reg)
	if err != nil {
		printFieldErrors(cmd, err)
		return fmt.Errorf("registration failed: %w", err)
	}
	if msg == "" {
		msg = "Account created. Verify your email, then run medchat login."
	}
	fmt.Fprintln(cmd.OutOrStdout(), msg)
	return nil
}

func runChangePassword(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()
	client, err := a.api()
	if err != nil {
		return err
	}

	pw, err := readPasswords(cmd, "Current password: ", "New password: ", "Confirm new password: ")
	if err != nil {
		return err
	}
	if pw[1] != pw[2] {
		return errors.New("new passwords do not match")
	}

	msg, err := client.ChangePassword(cmd.Context(), pw[0], pw[1])
	if err != nil {
		printFieldErrors(cmd, err)
		return fmt.Errorf("password change failed: %w", err)
	}
	if msg == "" {
		msg = "Password changed."
	}
	fmt.Fprintln(cmd.OutOrStdout(), msg)
	return nil
}

// printFieldErrors writes the backend's per-field validation messages to
// stderr, sorted by field.
func printFieldErrors(cmd *cobra.Command, err error) {
	var apiErr *backend.APIError
	if !errors.As(err, &apiErr) {
		return
	}
	fields := make([]string, 0, len(apiErr.Fields))
	for field := range apiErr.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", field, apiErr.Fields[field])
	}
}
