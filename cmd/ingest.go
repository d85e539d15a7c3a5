package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/elite-command/refinery/internal/ingest"
	"github.com/elite-command/refinery/internal/model"
)

var (
	ingestSheetName string
	ingestSkipRows  int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Import metric reports as pending entries",
}

var ingestXLSXCmd = &cobra.Command{
	Use:   "xlsx <company-id> <file>",
	Short: "Import an xlsx workbook, one entry per data row",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("ingest"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		im := ingest.NewImporter(st, ingest.Options{
			SheetName:  ingestSheetName,
			SkipRows:   ingestSkipRows,
			SheetLimit: cfg.Ingest.SheetLimit,
			RowLimit:   cfg.Ingest.RowLimit,
		})
		sum, err := im.ImportXLSX(ctx, args[0], args[1])
		if err != nil {
			return err
		}

		fmt.Printf("imported %d entries from %d sheets (%d rows, %d skipped)\n",
			sum.Entries, sum.Sheets, sum.Rows, sum.Skipped)
		return nil
	},
}

var ingestFTPCmd = &cobra.Command{
	Use:   "ftp <company-id> <url>",
	Short: "Fetch a workbook from an FTP drop zone and import it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("ingest"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		im := ingest.NewImporter(st, ingest.Options{
			SheetLimit: cfg.Ingest.SheetLimit,
			RowLimit:   cfg.Ingest.RowLimit,
		})
		fetcher := ingest.NewFTPFetcher(ingest.FTPOptions{Timeout: cfg.Ingest.FTPTimeout})

		sum, err := im.ImportFTP(ctx, fetcher, args[0], args[1])
		if err != nil {
			return err
		}

		fmt.Printf("imported %d entries from %d sheets (%d rows, %d skipped)\n",
			sum.Entries, sum.Sheets, sum.Rows, sum.Skipped)
		return nil
	},
}

var ingestTextCmd = &cobra.Command{
	Use:   "text <company-id> <category> <report-text>",
	Short: "Extract metrics from a loose text report into one pending entry",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("ingest"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		im := ingest.NewImporter(st, ingest.Options{})
		entry, err := im.ImportText(ctx, args[0], model.DataCategory(args[1]), args[2])
		if err != nil {
			return err
		}
		if entry == nil {
			fmt.Println("no metrics recognized")
			return nil
		}

		fmt.Printf("entry %s with %d fields\n", entry.ID, len(entry.Fields))
		return nil
	},
}

func init() {
	ingestXLSXCmd.Flags().StringVar(&ingestSheetName, "sheet", "", "import only the named sheet")
	ingestXLSXCmd.Flags().IntVar(&ingestSkipRows, "skip-rows", 0, "rows to skip before the header")
	ingestCmd.AddCommand(ingestXLSXCmd)
	ingestCmd.AddCommand(ingestFTPCmd)
	ingestCmd.AddCommand(ingestTextCmd)
	rootCmd.AddCommand(ingestCmd)
}
