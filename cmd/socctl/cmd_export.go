package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	overrides "github.com/said46/autoSOC/internal/overrides/domain"
	"github.com/said46/autoSOC/internal/overrides/infrastructure/soc"
	"github.com/said46/autoSOC/internal/overrides/interfaces/report"
	"github.com/said46/autoSOC/internal/overrides/interfaces/xlsx"
)

var (
	exportCertificate string
	exportFromJSON    string
	exportOut         string
	exportPDF         string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the overrides of a certificate to a workbook",
	Long: `Export reads the overrides of a certificate from the SOC application
(--certificate) or from a saved grid JSON file (--from-json) and writes
them to a workbook, optionally with a PDF listing.`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportCertificate, "certificate", "", "Certificate id, full or partial")
	exportCmd.Flags().StringVar(&exportFromJSON, "from-json", "", "Grid JSON file saved from the SOC application")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "Workbook to write")
	exportCmd.Flags().StringVar(&exportPDF, "pdf", "", "Also write a PDF listing to this file")
	_ = exportCmd.MarkFlagRequired("out")
	exportCmd.MarkFlagsMutuallyExclusive("certificate", "from-json")
}

func runExport(cmd *cobra.Command, args []string) error {
	var (
		certificate string
		rows        []overrides.ExistingOverride
	)
	switch {
	case exportFromJSON != "":
		data, err := os.ReadFile(exportFromJSON)
		if err != nil {
			return err
		}
		rows, err = soc.DecodeGridJSON(data)
		if err != nil {
			return err
		}
		certificate = exportCertificate
	case exportCertificate != "":
		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.log.Sync()
		ctx, cancel := commandContext(cmd)
		defer cancel()
		id, err := resolveCertificate(ctx, e.cfg, exportCertificate)
		if err != nil {
			return err
		}
		rows, err = e.client.ListOverrides(ctx, id, credential(e.cfg))
		if err != nil {
			return err
		}
		certificate = formatID(id)
	default:
		return errors.New("one of --certificate or --from-json is required")
	}

	now := time.Now()
	data, err := xlsx.WriteOverrides(certificate, rows, now)
	if err != nil {
		return err
	}
	if err := os.WriteFile(exportOut, data, 0o644); err != nil {
		return err
	}
	if exportPDF != "" {
		pdf, err := report.BuildPDF(certificate, rows, now)
		if err != nil {
			return err
		}
		if err := os.WriteFile(exportPDF, pdf, 0o644); err != nil {
			return err
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "exported %d overrides to %s\n", len(rows), exportOut)
	return nil
}
