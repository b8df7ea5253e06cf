package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/signalforge/signalforge/internal/storage"
	"github.com/spf13/cobra"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Inspect scan snapshots in Azure Blob Storage",
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots of the organization, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, err := openArchive(cmd)
		if err != nil {
			return err
		}
		names, err := archive.List(cmd.Context(), storage.SnapshotPrefix(orgID))
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println("No snapshots.")
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

var archiveShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Print one snapshot as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, err := openArchive(cmd)
		if err != nil {
			return err
		}
		scan, err := storage.LoadSnapshot(cmd.Context(), archive, args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(scan)
	},
}

func init() {
	archiveCmd.AddCommand(archiveListCmd)
	archiveCmd.AddCommand(archiveShowCmd)
}

func openArchive(cmd *cobra.Command) (storage.Archive, error) {
	if !cfg.ArchiveEnabled() {
		return nil, fmt.Errorf("AZURE_STORAGE_ACCOUNT is not set")
	}
	return storage.NewAzureArchive(cmd.Context(), cfg.StorageAccount, cfg.StorageContainer)
}
