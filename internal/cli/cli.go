package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/grussorusso/serverledge-estimator/internal/api"
	"github.com/grussorusso/serverledge-estimator/internal/config"
	"github.com/grussorusso/serverledge-estimator/internal/logging"
	"github.com/grussorusso/serverledge-estimator/internal/metrics"
	"github.com/grussorusso/serverledge-estimator/internal/telemetry"
	"github.com/grussorusso/serverledge-estimator/internal/workload"
	"github.com/grussorusso/serverledge-estimator/utils"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
)

type RemoteServerConf struct {
	Host string
	Port int
}

var ServerConfig = RemoteServerConf{Host: "127.0.0.1", Port: 1323}

var rootCmd = &cobra.Command{
	Use:   "serverledge-estimator",
	Short: "Latency bounds for FaaS traces",
	Long: `Computes lower bounds, and a local search upper bound, on the total
latency of a FaaS workload trace, either locally or through a remote
estimation server.`,
	PersistentPreRunE: setup,
	SilenceUsage:      true,
}

var lpCmd = &cobra.Command{
	Use:   "lp <trace>",
	Short: "LP lower bound (no packing)",
	Args:  cobra.ExactArgs(1),
	RunE:  estimate("lp"),
}

var bendersCmd = &cobra.Command{
	Use:   "benders <trace>",
	Short: "Decomposition lower bound with packing and verification cuts",
	Args:  cobra.ExactArgs(1),
	RunE:  estimate("benders"),
}

var pathCoverCmd = &cobra.Command{
	Use:   "pathcover <trace>",
	Short: "Path cover lower bound",
	Args:  cobra.ExactArgs(1),
	RunE:  estimate("pathcover"),
}

var localSearchCmd = &cobra.Command{
	Use:   "localsearch <trace>",
	Short: "Upper bound from the best schedule found by local search",
	Args:  cobra.ExactArgs(1),
	RunE:  estimate("localsearch"),
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the estimation server",
	Args:  cobra.NoArgs,
	RunE:  serve,
}

var pollCmd = &cobra.Command{
	Use:   "poll <reqId>",
	Short: "Polls the result of an asynchronous estimation",
	Args:  cobra.ExactArgs(1),
	RunE:  poll,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Prints the status of the estimation server",
	Args:  cobra.NoArgs,
	RunE:  status,
}

var configFile, logLevel string
var remote, async, integerStarts bool
var roundMul, keepalive float64
var iterations, maxCuts, workers, moves, seed int

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&ServerConfig.Host, "host", "H", ServerConfig.Host, "remote estimation server host")
	rootCmd.PersistentFlags().IntVarP(&ServerConfig.Port, "port", "P", ServerConfig.Port, "remote estimation server port")

	for _, cmd := range []*cobra.Command{lpCmd, bendersCmd, pathCoverCmd, localSearchCmd} {
		cmd.Flags().BoolVarP(&remote, "remote", "r", false, "submit the trace to the remote server")
		cmd.Flags().BoolVar(&async, "async", false, "with --remote, return a request id to poll")
		cmd.Flags().Float64Var(&roundMul, "round-mul", 1.0, "multiplier applied to trace times before rounding")
		cmd.Flags().Float64Var(&keepalive, "keepalive", 0, "keepalive window overriding the trace one")
		rootCmd.AddCommand(cmd)
	}
	lpCmd.Flags().BoolVar(&integerStarts, "integer", false, "integer start times")
	bendersCmd.Flags().IntVarP(&iterations, "iterations", "i", 30, "maximum master iterations")
	bendersCmd.Flags().IntVar(&maxCuts, "max-cuts", 3000, "live cut budget")
	bendersCmd.Flags().IntVarP(&workers, "workers", "w", 8, "feasibility check workers")
	localSearchCmd.Flags().IntVar(&moves, "moves", 2000, "neighbours evaluated after the greedy schedule")
	localSearchCmd.Flags().IntVar(&seed, "seed", 1, "random seed of the search")

	rootCmd.AddCommand(serveCmd, pollCmd, statusCmd)
}

// Init runs the command line and exits on failure.
func Init() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the configuration, then lets explicit flags override it.
func setup(cmd *cobra.Command, _ []string) error {
	config.ReadConfiguration(configFile)
	if cmd.Flags().Changed("log-level") {
		config.Set(config.LOG_LEVEL, logLevel)
	}
	if err := logging.SetLogLevel(config.GetString(config.LOG_LEVEL, "info")); err != nil {
		return err
	}

	overrides := []struct {
		flag, key string
		value     any
	}{
		{"round-mul", config.ROUND_MUL, roundMul},
		{"keepalive", config.KEEPALIVE, keepalive},
		{"integer", config.LP_INTEGER_STARTS, integerStarts},
		{"iterations", config.BENDERS_ITERATIONS, iterations},
		{"max-cuts", config.BENDERS_MAX_CUTS, maxCuts},
		{"workers", config.CP_WORKERS, workers},
		{"moves", config.LOCALSEARCH_ITERATIONS, moves},
		{"seed", config.LOCALSEARCH_SEED, seed},
	}
	for _, o := range overrides {
		if f := cmd.Flags().Lookup(o.flag); f != nil && f.Changed {
			config.Set(o.key, o.value)
		}
	}
	return nil
}

func estimate(method string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if remote {
			return submit(cmd, method, args[0])
		}
		trace, err := workload.LoadTrace(args[0])
		if err != nil {
			return err
		}
		in, err := api.InstanceFromTrace(trace)
		if err != nil {
			return err
		}
		est, err := api.NewEstimator(method)
		if err != nil {
			return err
		}
		e, err := est.Estimate(cmd.Context(), in)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(api.Response{Success: true, Method: method, Estimation: &e})
		if err != nil {
			return err
		}
		return utils.PrintJson(cmd.OutOrStdout(), payload)
	}
}

func submit(cmd *cobra.Command, method, path string) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("http://%s:%d/estimate/%s?async=%v", ServerConfig.Host, ServerConfig.Port, method, async)
	resp, err := utils.Post(url, "application/yaml", body)
	if err != nil {
		return fmt.Errorf("estimation failed: %w", err)
	}
	return utils.PrintJsonResponse(cmd.OutOrStdout(), resp.Body)
}

func poll(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("http://%s:%d/poll/%s", ServerConfig.Host, ServerConfig.Port, args[0])
	resp, err := utils.Get(url)
	if err != nil {
		return fmt.Errorf("polling failed: %w", err)
	}
	return utils.PrintJsonResponse(cmd.OutOrStdout(), resp.Body)
}

func status(cmd *cobra.Command, _ []string) error {
	url := fmt.Sprintf("http://%s:%d/status", ServerConfig.Host, ServerConfig.Port)
	resp, err := utils.Get(url)
	if err != nil {
		return fmt.Errorf("status request failed: %w", err)
	}
	return utils.PrintJsonResponse(cmd.OutOrStdout(), resp.Body)
}

func serve(cmd *cobra.Command, _ []string) error {
	if metrics.Init() {
		go metrics.Serve()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if config.GetBool(config.TRACING_ENABLED, false) {
		shutdown, err := telemetry.SetupOTelSDK(ctx, os.Stdout)
		if err != nil {
			return err
		}
		defer shutdown(context.Background())
	}
	e := echo.New()
	api.RegisterTerminationHandler(e, cancel)
	return api.StartAPIServer(ctx, e)
}
