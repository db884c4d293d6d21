package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"longdoc-translator/internal/provider"
	"longdoc-translator/internal/store"
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Manage the block translation memory",
}

var memoryClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop all remembered block translations",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.New(viper.GetString("db"))
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		n, err := db.ClearBlockMemory(context.Background())
		if err != nil {
			return fmt.Errorf("failed to clear memory: %w", err)
		}
		fmt.Printf("Cleared %d entries.\n", n)
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the translation backend is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := provider.NewOpenAIClient(provider.OpenAIConfig{
			APIKey:  viper.GetString("api_key"),
			Model:   viper.GetString("model"),
			BaseURL: viper.GetString("base_url"),
		})
		if err != nil {
			return err
		}
		if err := client.TestConnection(cmd.Context()); err != nil {
			return fmt.Errorf("backend check failed: %w", err)
		}
		fmt.Println("Backend connection OK.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(memoryCmd, checkCmd)
	memoryCmd.AddCommand(memoryClearCmd)
}
