package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Aashish23092/invoice-flow/dto"
)

var ocrVendor string

var ocrCmd = &cobra.Command{
	Use:   "ocr <file>",
	Short: "Recognize an invoice image or PDF and print the extracted fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		result, payment := env.Processor.RecognizeDocument(cmd.Context(), dto.Invoice{
			VendorName: ocrVendor,
			FilePath:   args[0],
		})
		if result.Failed() {
			return eris.Errorf("no text recognized in %s", args[0])
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"result":  result,
			"payment": payment,
		})
	},
}

func init() {
	ocrCmd.Flags().StringVar(&ocrVendor, "vendor", "", "vendor name used to pick a layout template")
	rootCmd.AddCommand(ocrCmd)
}
