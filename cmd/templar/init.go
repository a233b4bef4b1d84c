package main

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var (
	initListenAddr string
	initDataDir    string
	initAPIKey     string
	initOutput     string
	initMetrics    bool
	initForce      bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize templar configuration",
	Long: `Interactive wizard to create a templar configuration file.

Examples:
  # Interactive mode - prompts for missing values
  templar init

  # Non-interactive with all flags
  templar init --listen 127.0.0.1:8787 --data-dir ~/.templar -o config.yaml`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initListenAddr, "listen", "127.0.0.1:8787", "Control API listen address")
	initCmd.Flags().StringVar(&initDataDir, "data-dir", "", "Data directory for storage (default: ~/.templar)")
	initCmd.Flags().StringVar(&initAPIKey, "api-key", "", "Control API key (auto-generated if not provided)")
	initCmd.Flags().StringVarP(&initOutput, "output", "o", "config.yaml", "Output configuration file path")
	initCmd.Flags().BoolVar(&initMetrics, "metrics", false, "Enable the Prometheus metrics server")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config file")

	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("Templar Configuration Wizard")
	fmt.Println("============================")
	fmt.Println()

	initListenAddr = prompt(reader, "Control API listen address", initListenAddr)

	if initDataDir == "" {
		defaultDir := "~/.templar"
		if home, err := os.UserHomeDir(); err == nil {
			defaultDir = filepath.Join(home, ".templar")
		}
		initDataDir = prompt(reader, "Data directory", defaultDir)
	}

	if initAPIKey == "" {
		initAPIKey = generateRandomString(32)
		fmt.Printf("Generated API key: %s\n", initAPIKey)
	}

	if !initMetrics {
		answer := prompt(reader, "Enable Prometheus metrics? [y/N]", "n")
		initMetrics = strings.ToLower(answer) == "y" || strings.ToLower(answer) == "yes"
	}

	if _, err := os.Stat(initOutput); err == nil && !initForce {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", initOutput)
	}

	content := generateConfig()
	if err := os.WriteFile(initOutput, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Println()
	fmt.Printf("Configuration written to %s\n", initOutput)
	fmt.Printf("Start the daemon with: templar serve -c %s\n", initOutput)
	return nil
}

func prompt(reader *bufio.Reader, question, defaultValue string) string {
	if defaultValue != "" {
		fmt.Printf("%s [%s]: ", question, defaultValue)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultValue
	}
	return input
}

func generateRandomString(length int) string {
	bytes := make([]byte, length/2)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

func generateConfig() string {
	metricsEnabled := "false"
	if initMetrics {
		metricsEnabled = "true"
	}

	return fmt.Sprintf(`# Templar configuration
api:
  listen_addr: "%s"
  api_key: "%s"

storage:
  path: "%s"

sync:
  interval: 30s
  pacing: 1s
  write_delay: 500ms

logging:
  level: "info"
  format: "text"

metrics:
  enabled: %s
  listen_addr: "127.0.0.1:9090"
  path: "/metrics"
  # allowed_ips:
  #   - "127.0.0.1"
`, initListenAddr, initAPIKey, filepath.Join(initDataDir, "templar.db"), metricsEnabled)
}
