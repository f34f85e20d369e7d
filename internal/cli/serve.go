package cli

import (
	"github.com/spf13/cobra"

	"github.com/Gopher0727/MiniChat/internal/server"
	logger "github.com/Gopher0727/MiniChat/middleware/log"
)

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := logger.NewLogger(&a.cfg.Logging)
			if err != nil {
				return err
			}
			defer log.Close()

			srv, err := server.New(a.cfg, log)
			if err != nil {
				return err
			}
			defer srv.Close()

			return srv.Run(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.Int("port", 0, "listen port")
	flags.String("db", "", "sqlite database path")
	flags.Bool("require-session", false, "require a bearer token for writes")
	_ = a.v.BindPFlag("server.port", flags.Lookup("port"))
	_ = a.v.BindPFlag("database.path", flags.Lookup("db"))
	_ = a.v.BindPFlag("server.require_session", flags.Lookup("require-session"))
	return cmd
}
