package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/logang-di/dsx-connect/internal/api_common"
	"github.com/logang-di/dsx-connect/internal/config"
	"github.com/logang-di/dsx-connect/internal/service"
	api "github.com/logang-di/dsx-connect/internal/service/api"
	"github.com/logang-di/dsx-connect/internal/service/worker"
)

// version is stamped at build time via -ldflags.
var version = "dev"

var cfgFile string
var cfg config.C

func loadConfig() error {
	if cfgFile == "" {
		cfgFile = os.Getenv("DSX_CONNECT_CONFIG")
	}

	if cfgFile == "" {
		return errors.New("no configuration file found; must be specified with --config or DSX_CONNECT_CONFIG environment variable")
	}

	var err error
	cfg, err = config.LoadConfig(cfgFile)
	return errors.Wrapf(err, "failed to load configuration from '%s'", cfgFile)
}

func runServices(noBanner bool, servicesList string) error {
	services := strings.Split(servicesList, ",")
	servers := make([]func(cfg config.C), 0, len(services))

	if len(services) == 0 {
		return errors.New("no services provided")
	}
	for _, svc := range services {
		switch svc {
		case "api":
			servers = append(servers, api.Serve)
		case "worker":
			servers = append(servers, worker.Serve)
		case "all":
			servers = append(servers, api.Serve, worker.Serve)
		default:
			return errors.New("unknown service: " + svc)
		}
	}

	if !noBanner {
		banner()
	}

	wg := new(sync.WaitGroup)
	for _, server := range servers {
		wg.Add(1)
		go func(server func(cfg config.C)) {
			defer wg.Done()
			server(cfg)
		}(server)
	}

	wg.Wait()

	return nil
}

func banner() {
	banner := `
    ____  _______  __                                     __
   / __ \/ ___/ |/ /     _________  ____  ____  ___  ____/ /_
  / / / /\__ \|   /_____/ ___/ __ \/ __ \/ __ \/ _ \/ ___/ __/
 / /_/ /___/ /   /_____/ /__/ /_/ / / / / / / /  __/ /__/ /_
/_____//____/_/|_|     \___/\____/_/ /_/_/ /_/\___/\___/\__/
`
	color.Green(banner)
}

func cmdRoutes() *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "Print routes exposed by the API service",
		Run: func(cmd *cobra.Command, args []string) {
			gin.SetMode(gin.ReleaseMode)
			dm := service.NewDependencyManager("api", cfg)
			srv := api.GetGinServer(dm)
			api_common.PrintRoutes(srv.Handler.(*gin.Engine))
		},
	}
}

func cmdServe() *cobra.Command {
	var noBanner bool

	cmd := &cobra.Command{
		Use:   "serve [api|worker|all]",
		Short: "Start services",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServices(noBanner, args[0])
		},
	}

	cmd.Flags().BoolVar(&noBanner, "no-banner", false, "Don't show banner")

	return cmd
}

func cmdMigrate() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			dm := service.NewDependencyManager("migrate", cfg)
			return errors.Wrap(dm.GetDatabase().Migrate(context.Background()), "migration failed")
		},
	}
}

func cmdVersion() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version and exit",
		// Version does not need a config file.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

func main() {
	// Optionally load environment variables from a .env file.
	_ = godotenv.Load()

	var rootCmd = &cobra.Command{
		Use: "dsx-connect",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig()
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file; may also be specified in DSX_CONNECT_CONFIG")

	rootCmd.AddCommand(cmdRoutes())
	rootCmd.AddCommand(cmdServe())
	rootCmd.AddCommand(cmdMigrate())
	rootCmd.AddCommand(cmdDeadLetters())
	rootCmd.AddCommand(cmdRequeue())
	rootCmd.AddCommand(cmdVersion())
	rootCmd.Execute()
}
