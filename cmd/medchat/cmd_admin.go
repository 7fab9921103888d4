package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/comigor/medchat-go/internal/backend"
)

var (
	adminSearch string
	adminPage   int
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Staff tools",
	Long: `Staff-only views of the backend.

Subcommands:
  overview    - Dashboard counters
  users       - List accounts
  health      - Backend health report
  audit-logs  - Recorded staff and system actions`,
}

var adminOverviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Print the staff dashboard counters",
	RunE:  runAdminOverview,
}

var adminUsersCmd = &cobra.Command{
	Use:   "users",
	Short: "List accounts",
	RunE:  runAdminUsers,
}

var adminHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Print the backend health report",
	RunE:  runAdminHealth,
}

var adminAuditLogsCmd = &cobra.Command{
	Use:   "audit-logs",
	Short: "List recorded staff and system actions",
	RunE:  runAdminAuditLogs,
}

func init() {
	adminCmd.AddCommand(adminOverviewCmd, adminUsersCmd, adminHealthCmd, adminAuditLogsCmd)
	adminCmd.PersistentFlags().IntVar(&adminPage, "page", 1, "page of a paged listing")
	adminUsersCmd.Flags().StringVar(&adminSearch, "search", "", "filter by name or email")
}

func adminClient() (*backend.Client, func(), error) {
	a, err := newApp(cfg)
	if err != nil {
		return nil, nil, err
	}
	client, err := a.api()
	if err != nil {
		a.close()
		return nil, nil, err
	}
	return client, a.close, nil
}

// adminError explains a rejection to non-staff users.
func adminError(what string, err error) error {
	if backend.IsClientFault(err) && !backend.IsNotFound(err) {
		return fmt.Errorf("%s is only available to staff: %w", what, err)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func runAdminOverview(cmd *cobra.Command, args []string) error {
	client, done, err := adminClient()
	if err != nil {
		return err
	}
	defer done()

	data, err := client.AdminOverview(cmd.Context())
	if err != nil {
		return adminError("admin overview", err)
	}
	printSorted(cmd.OutOrStdout(), data)
	return nil
}

func runAdminHealth(cmd *cobra.Command, args []string) error {
	client, done, err := adminClient()
	if err != nil {
		return err
	}
	defer done()

	data, err := client.AdminHealth(cmd.Context())
	if err != nil {
		return adminError("admin health", err)
	}
	printSorted(cmd.OutOrStdout(), data)
	return nil
}

func runAdminUsers(cmd *cobra.Command, args []string) error {
	client, done, err := adminClient()
	if err != nil {
		return err
	}
	defer done()

	users, page, err := client.AdminUsers(cmd.Context(), adminSearch, adminPage)
	if err != nil {
		return adminError("admin users", err)
	}

	out := cmd.OutOrStdout()
	if len(users) == 0 {
		fmt.Fprintln(out, "No users found.")
		return nil
	}
	for _, u := range users {
		role := "user"
		if u.IsStaff {
			role = "staff"
		}
		status := "active"
		if !u.IsActive {
			status = "inactive"
		}
		fmt.Fprintf(out, "%-6s  %-32s  %-24s  %-5s  %s\n", u.ID, u.Email, orDash(u.Name), role, status)
	}
	printPage(cmd, page)
	return nil
}

func runAdminAuditLogs(cmd *cobra.Command, args []string) error {
	client, done, err := adminClient()
	if err != nil {
		return err
	}
	defer done()

	logs, page, err := client.AdminAuditLogs(cmd.Context(), adminPage)
	if err != nil {
		return adminError("admin audit logs", err)
	}

	out := cmd.OutOrStdout()
	if len(logs) == 0 {
		fmt.Fprintln(out, "No audit entries.")
		return nil
	}
	for _, l := range logs {
		actor := l.ActorEmail
		if actor == "" {
			actor = "system"
		}
		fmt.Fprintf(out, "%-20s  %-24s  %-20s  %s:%s", orDash(l.CreatedAt), actor, l.Action, l.EntityType, orDash(l.EntityID.String()))
		if len(l.Details) > 0 && string(l.Details) != "null" && string(l.Details) != "{}" {
			fmt.Fprintf(out, "  %s", compactJSON(l.Details))
		}
		fmt.Fprintln(out)
	}
	printPage(cmd, page)
	return nil
}

// printSorted writes loosely typed JSON objects one key per line.
func printSorted(out io.Writer, data map[string]json.RawMessage) {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "%-24s %s\n", k+":", compactJSON(data[k]))
	}
}

func printPage(cmd *cobra.Command, p backend.Pagination) {
	if p.TotalPages > 1 {
		fmt.Fprintf(cmd.ErrOrStderr(), "page %d of %d (%d total)\n", p.Page, p.TotalPages, p.Total)
	}
}

func compactJSON(raw json.RawMessage) string {
	var b bytes.Buffer
	if err := json.Compact(&b, raw); err != nil {
		return string(raw)
	}
	return b.String()
}
