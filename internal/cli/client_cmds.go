package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Gopher0727/MiniChat/internal/client"
	"github.com/Gopher0727/MiniChat/internal/tui"
)

func (a *app) chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the interactive chat client",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := a.clientLogger()
			if err != nil {
				return err
			}
			defer log.Close()

			return tui.New(a.api(), a.cfg.Client.PollInterval, log.Logger).Run(cmd.Context())
		},
	}
	flags := cmd.Flags()
	flags.Duration("poll-interval", 0, "snapshot polling interval")
	_ = a.v.BindPFlag("client.poll_interval", flags.Lookup("poll-interval"))
	return cmd
}

func (a *app) registerCmd() *cobra.Command {
	var form client.RegisterForm
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a new account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			form.Confirm = form.Password
			if err := form.Validate(); err != nil {
				return err
			}
			api := a.api()
			me, err := api.Register(cmd.Context(), form.Name, form.Info, form.Password)
			if err != nil {
				return explain(err, "username is already taken")
			}
			printIdentity(cmd.OutOrStdout(), me, api.Token())
			return nil
		},
	}
	cmd.Flags().StringVarP(&form.Name, "name", "n", "", "username")
	cmd.Flags().StringVarP(&form.Password, "password", "p", "", "password")
	cmd.Flags().StringVarP(&form.Info, "info", "i", "", "about you")
	return cmd
}

func (a *app) loginCmd() *cobra.Command {
	var form client.LoginForm
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and mark the account online",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := form.Validate(); err != nil {
				return err
			}
			api := a.api()
			me, err := api.Login(cmd.Context(), form.Name, form.Password)
			if err != nil {
				return explain(err, "wrong username or password")
			}
			printIdentity(cmd.OutOrStdout(), me, api.Token())
			return nil
		},
	}
	cmd.Flags().StringVarP(&form.Name, "name", "n", "", "username")
	cmd.Flags().StringVarP(&form.Password, "password", "p", "", "password")
	return cmd
}

func (a *app) sendCmd() *cobra.Command {
	var name, password, token, text string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Post a message",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if name == "" && token == "" {
				return client.ErrEmptyName
			}
			api := a.api()
			api.SetToken(token)
			// 带密码时先登录，服务器要求会话时需要
			if password != "" {
				if _, err := api.Login(cmd.Context(), name, password); err != nil {
					return explain(err, "wrong username or password")
				}
			}
			if err := api.SendMessage(cmd.Context(), name, text); err != nil {
				return explain(err, "unknown author")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "sent")
			return nil
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "author username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "log in first with this password")
	cmd.Flags().StringVar(&token, "token", "", "bearer token from a previous login")
	cmd.Flags().StringVarP(&text, "text", "t", "", "message text")
	return cmd
}

func (a *app) usersCmd() *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List users and their presence",
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, err := a.api().Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATE\tINFO")
			for _, u := range client.FilterUsers(snap.Users, filter) {
				state := "offline"
				if u.Online {
					state = "online"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", u.ID, u.Name, state, u.Info)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "case-insensitive name filter")
	return cmd
}

func (a *app) messagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "messages",
		Short: "Print the message feed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, err := a.api().Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range snap.Messages {
				fmt.Fprintf(out, "%s: %s\n", m.Author, m.Text)
			}
			return nil
		},
	}
}

func (a *app) offlineCmd() *cobra.Command {
	var id uint
	var token string
	cmd := &cobra.Command{
		Use:   "offline",
		Short: "Mark a profile offline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			api := a.api()
			api.SetToken(token)
			if err := api.GoOffline(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	cmd.Flags().UintVar(&id, "id", 0, "profile id")
	cmd.Flags().StringVar(&token, "token", "", "bearer token from a previous login")
	return cmd
}

func printIdentity(w io.Writer, me client.Identity, token string) {
	fmt.Fprintf(w, "id:    %d\nname:  %s\ninfo:  %s\n", me.ID, me.Name, me.Info)
	if token != "" {
		fmt.Fprintf(w, "token: %s\n", token)
	}
}

func explain(err error, rejected string) error {
	if errors.Is(err, client.ErrRejected) {
		return errors.New(rejected)
	}
	return err
}
