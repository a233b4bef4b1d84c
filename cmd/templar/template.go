package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/templar/internal/cache"
)

var templateListChannel string

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Cached template commands",
}

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached templates",
	RunE:  runTemplateList,
}

var templateShowCmd = &cobra.Command{
	Use:   "show <template_id>",
	Short: "Show a cached template",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateShow,
}

var templateClearCmd = &cobra.Command{
	Use:   "clear <template_id>...",
	Short: "Remove templates from the cache",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTemplateClear,
}

func init() {
	templateListCmd.Flags().StringVar(&templateListChannel, "channel", "", "Filter by channel (docify, notify)")

	templateCmd.AddCommand(templateListCmd, templateShowCmd, templateClearCmd)
	rootCmd.AddCommand(templateCmd)
}

func openTemplateCache() (*cache.Store, func(), error) {
	db, err := openStorage()
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := cache.NewStore(db, logger)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return s, func() { db.Close() }, nil
}

func runTemplateList(cmd *cobra.Command, args []string) error {
	templates, cleanup, err := openTemplateCache()
	if err != nil {
		return err
	}
	defer cleanup()

	records, err := templates.List(cache.Channel(templateListChannel))
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No cached templates")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TEMPLATE ID\tCHANNEL\tNAME\tEDITOR\tEXPIRES")
	for _, r := range records {
		expiry := "-"
		if r.Expiry > 0 {
			expiry = time.UnixMilli(r.Expiry).Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.TemplateID, r.Channel, r.DisplayName(), r.EditorID, expiry)
	}
	return w.Flush()
}

func runTemplateShow(cmd *cobra.Command, args []string) error {
	templates, cleanup, err := openTemplateCache()
	if err != nil {
		return err
	}
	defer cleanup()

	rec, err := templates.Fetch(args[0])
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("template %q not cached", args[0])
	}

	fmt.Printf("Template ID: %s\n", rec.TemplateID)
	fmt.Printf("Channel:     %s\n", rec.Channel)
	fmt.Printf("Name:        %s\n", rec.DisplayName())
	fmt.Printf("Editor:      %s\n", rec.EditorID)
	if rec.Expiry > 0 {
		fmt.Printf("Expires:     %s\n", time.UnixMilli(rec.Expiry).Format("2006-01-02 15:04:05"))
	}
	if rec.LastOpened > 0 {
		fmt.Printf("Last opened: %s\n", time.UnixMilli(rec.LastOpened).Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("Has content: %v\n", rec.HasContent())
	return nil
}

func runTemplateClear(cmd *cobra.Command, args []string) error {
	templates, cleanup, err := openTemplateCache()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := templates.ClearSynced(args); err != nil {
		return err
	}

	fmt.Printf("Removed %d template(s) from the cache\n", len(args))
	return nil
}
