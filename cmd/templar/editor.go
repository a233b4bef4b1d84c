package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/templar/internal/editor"
	"github.com/foxzi/templar/internal/store"
)

var (
	editorAddType     string
	editorAddURL      string
	editorAddSyncMode string
	editorAddCredType string
	editorAddCreds    []string
)

var editorCmd = &cobra.Command{
	Use:   "editor",
	Short: "Editor profile management commands",
}

var editorListCmd = &cobra.Command{
	Use:   "list",
	Short: "List editor profiles",
	RunE:  runEditorList,
}

var editorShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show an editor profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runEditorShow,
}

var editorAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add an editor profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runEditorAdd,
}

var editorRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove an editor profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runEditorRemove,
}

func init() {
	editorAddCmd.Flags().StringVar(&editorAddType, "type", "docify", "Editor type: docify or notify")
	editorAddCmd.Flags().StringVar(&editorAddURL, "url", "", "Remote API base URL")
	editorAddCmd.Flags().StringVar(&editorAddSyncMode, "sync-mode", "online", "Sync mode: online or local")
	editorAddCmd.Flags().StringVar(&editorAddCredType, "credentials-type", "header", "Where credentials go: header or query")
	editorAddCmd.Flags().StringArrayVar(&editorAddCreds, "credential", nil, "Credential pair as key=value (repeatable)")

	editorCmd.AddCommand(editorListCmd, editorShowCmd, editorAddCmd, editorRemoveCmd)
	rootCmd.AddCommand(editorCmd)
}

func openStorage() (*bolt.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return db, nil
}

func openEditorStore() (*editor.Store, *bolt.DB, error) {
	db, err := openStorage()
	if err != nil {
		return nil, nil, err
	}
	s, err := editor.NewStore(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return s, db, nil
}

func runEditorList(cmd *cobra.Command, args []string) error {
	editors, db, err := openEditorStore()
	if err != nil {
		return err
	}
	defer db.Close()

	configs, err := editors.List()
	if err != nil {
		return err
	}
	if len(configs) == 0 {
		fmt.Println("No editor profiles configured")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tSYNC\tAPI URL\tUPDATED")
	for _, c := range configs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			c.Name, c.Type, c.SyncMode, c.APIURL, c.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runEditorShow(cmd *cobra.Command, args []string) error {
	editors, db, err := openEditorStore()
	if err != nil {
		return err
	}
	defer db.Close()

	cfg, err := editors.GetByName(args[0])
	if err != nil {
		return err
	}
	if cfg == nil {
		return fmt.Errorf("editor %q not found", args[0])
	}

	fmt.Printf("ID:               %s\n", cfg.ID)
	fmt.Printf("Name:             %s\n", cfg.Name)
	fmt.Printf("Type:             %s\n", cfg.Type)
	fmt.Printf("Sync mode:        %s\n", cfg.SyncMode)
	fmt.Printf("API URL:          %s\n", cfg.APIURL)
	fmt.Printf("Credentials type: %s\n", cfg.CredentialsType)
	fmt.Printf("Credentials:      %d pair(s)\n", len(cfg.ActiveCredentials()))
	fmt.Printf("Created:          %s\n", cfg.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Updated:          %s\n", cfg.UpdatedAt.Format("2006-01-02 15:04:05"))
	return nil
}

func runEditorAdd(cmd *cobra.Command, args []string) error {
	editors, db, err := openEditorStore()
	if err != nil {
		return err
	}
	defer db.Close()

	cfg := &editor.Config{
		Name:            args[0],
		Type:            editor.Type(editorAddType),
		SyncMode:        editor.SyncMode(editorAddSyncMode),
		APIURL:          editorAddURL,
		CredentialsType: editor.CredentialsType(editorAddCredType),
	}

	for _, pair := range editorAddCreds {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			return fmt.Errorf("invalid credential %q, expected key=value", pair)
		}
		cfg.Credentials = append(cfg.Credentials, editor.Credential{Key: key, Value: value})
	}

	if err := editors.Save(cfg); err != nil {
		return err
	}

	fmt.Printf("Editor %q created (id %s)\n", cfg.Name, cfg.ID)
	return nil
}

func runEditorRemove(cmd *cobra.Command, args []string) error {
	editors, db, err := openEditorStore()
	if err != nil {
		return err
	}
	defer db.Close()

	cfg, err := editors.GetByName(args[0])
	if err != nil {
		return err
	}
	if cfg == nil {
		return fmt.Errorf("editor %q not found", args[0])
	}

	if err := editors.Delete(cfg.ID); err != nil {
		return err
	}

	fmt.Printf("Editor %q removed\n", cfg.Name)
	return nil
}
