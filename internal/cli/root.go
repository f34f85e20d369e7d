package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Gopher0727/MiniChat/config"
	"github.com/Gopher0727/MiniChat/internal/client"
	logger "github.com/Gopher0727/MiniChat/middleware/log"
)

const Version = "1.0.0"

// app 所有子命令共享的状态，由 PersistentPreRunE 填充
type app struct {
	v          *viper.Viper
	configPath string
	cfg        *config.Config
}

// NewRootCmd 构建完整的命令树
func NewRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:   "minichat",
		Short: "minimal chat server and terminal client",
		Long: fmt.Sprintf(`MiniChat (v%s)

A small chat backend with a legacy HTTP+JSON interface
and a polling terminal client.`, Version),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "config.toml", "path to the config file")
	flags.String("server", "", "chat server base URL (client commands)")
	flags.Duration("timeout", 0, "HTTP timeout for client requests")
	_ = a.v.BindPFlag("client.server_url", flags.Lookup("server"))
	_ = a.v.BindPFlag("client.timeout", flags.Lookup("timeout"))

	root.AddCommand(
		a.serveCmd(),
		a.chatCmd(),
		a.registerCmd(),
		a.loginCmd(),
		a.sendCmd(),
		a.usersCmd(),
		a.messagesCmd(),
		a.offlineCmd(),
		versionCmd(),
	)
	return root
}

// Execute 由 main 调用
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func (a *app) load() error {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	cfg, err := config.Load(a.v, a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func (a *app) api() *client.API {
	return client.NewAPI(client.Config{
		BaseURL: a.cfg.Client.ServerURL,
		Timeout: a.cfg.Client.Timeout,
	})
}

// clientLogger 客户端日志写入文件，避免干扰终端界面
func (a *app) clientLogger() (*logger.Logger, error) {
	return logger.NewFileLogger(a.cfg.Logging.Level, a.cfg.Client.LogFile)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of MiniChat",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "MiniChat v%s\n", Version)
		},
	}
}
