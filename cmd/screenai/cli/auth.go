package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	username string
	password string
	remember bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the relay server",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		res := app.Auth.Login(ctx, username, password, remember)
		if !res.Success {
			fmt.Fprintf(os.Stderr, "Login failed: %s\n", res.Message)
			os.Exit(1)
		}
		fmt.Printf("Logged in as %s\n", username)
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account on the relay server",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		res := app.Auth.Register(ctx, username, password, remember)
		if !res.Success {
			fmt.Fprintf(os.Stderr, "Registration failed: %s\n", res.Message)
			os.Exit(1)
		}
		fmt.Printf("Registered and logged in as %s\n", username)
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out and forget stored credentials",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		app.Auth.Logout(ctx)
		fmt.Println("Logged out")
	},
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, registerCmd} {
		c.Flags().StringVarP(&username, "username", "u", "", "account username")
		c.Flags().StringVarP(&password, "password", "p", "", "account password")
		c.Flags().BoolVar(&remember, "remember", false, "persist the session on this machine")
		_ = c.MarkFlagRequired("username")
		_ = c.MarkFlagRequired("password")
	}
	rootCmd.AddCommand(loginCmd, registerCmd, logoutCmd)
}
