package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/said46/autoSOC/internal/capture"
	"github.com/said46/autoSOC/internal/overrides/infrastructure/soc"
	"github.com/said46/autoSOC/internal/overrides/interfaces/xlsx"
)

var (
	importFile        string
	importCertificate string
	importDryRun      bool
	importRecord      string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Submit the overrides of a spreadsheet to a certificate",
	Args:  cobra.NoArgs,
	RunE:  runImport,
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "Spreadsheet to import")
	importCmd.Flags().StringVar(&importCertificate, "certificate", "", "Certificate id, full or partial")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Validate without submitting")
	importCmd.Flags().StringVar(&importRecord, "record", "", "Write the generated payload to this file")
	_ = importCmd.MarkFlagRequired("file")
	_ = importCmd.MarkFlagRequired("certificate")
}

func runImport(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.log.Sync()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	certificateID, err := resolveCertificate(ctx, e.cfg, importCertificate)
	if err != nil {
		return err
	}

	f, err := os.Open(importFile)
	if err != nil {
		return err
	}
	rows, err := xlsx.ReadIntents(f)
	_ = f.Close()
	if err != nil {
		return err
	}

	intents, err := e.service.ResolveTitled(ctx, rows)
	if err != nil {
		return err
	}
	set, err := e.service.Prepare(ctx, certificateID, intents)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, rec := range set.Records {
		fmt.Fprintf(out, "%d\t%s\t%s\n", rec.OrderIndex, rec.TagNumber, rec.Label)
	}

	if importDryRun {
		fmt.Fprintf(out, "dry run: %d overrides for certificate %d are valid\n", set.Len(), certificateID)
		if importRecord == "" {
			return nil
		}
		form, err := soc.EncodeForm(set, e.cfg.Credential.RequestToken, e.cfg.EmptyAsNull())
		if err != nil {
			return err
		}
		return capture.Captured{
			URL:        e.client.SubmitURL(),
			Method:     "POST",
			Body:       form.Encode(),
			CapturedAt: time.Now().UTC(),
		}.WriteFile(importRecord)
	}

	result, err := e.service.Submit(ctx, set, credential(e.cfg))
	if err != nil {
		return err
	}
	if importRecord != "" {
		if last, ok := e.recorder.Last(); ok {
			if err := last.WriteFile(importRecord); err != nil {
				return err
			}
		} else {
			return errors.New("no submission was recorded")
		}
	}
	if err := result.Err(); err != nil {
		return fmt.Errorf("attempt %s: %w", result.AttemptID, err)
	}
	fmt.Fprintf(out, "submitted %d overrides to certificate %d (attempt %s)\n", set.Len(), certificateID, result.AttemptID)
	return nil
}
