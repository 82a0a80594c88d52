package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/protomem/chatik/internal/auth"
)

var (
	authEmail    string
	authPassword string
	authNickname string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the session",
	Long: `Logs in with email and password. The password is read from --password,
then CHATIK_PASSWORD, then the first line of stdin.`,
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		password, err := readPassword(cmd.InOrStdin())
		if err != nil {
			return err
		}
		user, err := a.client.Login(cmd.Context(), authEmail, password)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s <%s>\n", user.Nickname, user.Email)
		return nil
	}),
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and store the session",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		password, err := readPassword(cmd.InOrStdin())
		if err != nil {
			return err
		}
		user, err := a.client.Register(cmd.Context(), authNickname, authEmail, password)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Registered %s <%s>\n", user.Nickname, user.Email)
		return nil
	}),
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		if err := a.client.Logout(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
		return nil
	}),
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session and connection settings",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "API:         %s\n", a.cfg.APIURL)
		fmt.Fprintf(out, "Stream:      %s\n", a.cfg.StreamBase())
		fmt.Fprintf(out, "Transport:   %s\n", a.client.Transport())
		fmt.Fprintf(out, "Credentials: %s\n", a.cfg.Credentials)

		if !a.client.Resume() {
			fmt.Fprintln(out, "Session:     none")
			return nil
		}
		session := a.client.State().Session()
		if session.User != nil {
			fmt.Fprintf(out, "User:        %s <%s>\n", session.User.Nickname, session.User.Email)
		}
		if exp, ok := auth.ExpiresAt(session.Token); ok {
			fmt.Fprintf(out, "Expires:     %s (in %s)\n", exp.Local().Format(time.RFC3339), time.Until(exp).Round(time.Second))
		}
		return nil
	}),
}

func init() {
	for _, cmd := range []*cobra.Command{loginCmd, registerCmd} {
		cmd.Flags().StringVarP(&authEmail, "email", "e", "", "Account email")
		cmd.Flags().StringVarP(&authPassword, "password", "p", "", "Account password")
		cmd.MarkFlagRequired("email")
	}
	registerCmd.Flags().StringVarP(&authNickname, "nickname", "n", "", "Display name")
	registerCmd.MarkFlagRequired("nickname")
}

func readPassword(stdin io.Reader) (string, error) {
	if authPassword != "" {
		return authPassword, nil
	}
	if p := os.Getenv("CHATIK_PASSWORD"); p != "" {
		return p, nil
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
