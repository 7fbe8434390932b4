package main

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Aashish23092/invoice-flow/dto"
)

var processCmd = &cobra.Command{
	Use:   "process <invoice-id>",
	Short: "Run OCR, scoring and routing for a stored invoice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Wrapf(err, "invalid invoice id %q", args[0])
		}
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Processor.ProcessNewInvoice(cmd.Context(), id)
		if perr := printJSON(cmd.OutOrStdout(), report); perr != nil {
			return perr
		}
		return err
	},
}

var scoreCmd = &cobra.Command{
	Use:   "score <invoice.json>",
	Short: "Score an invoice projection read from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readInvoiceData(args[0])
		if err != nil {
			return err
		}
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		ctx := cmd.Context()
		return printJSON(cmd.OutOrStdout(), dto.ScoreResponse{
			Anomaly:  env.Anomaly.Detect(ctx, data),
			Priority: env.Priority.Score(data),
			Delay:    env.Delay.Predict(ctx, data),
		})
	},
}

func readInvoiceData(path string) (dto.InvoiceData, error) {
	var data dto.InvoiceData
	raw, err := os.ReadFile(path)
	if err != nil {
		return data, eris.Wrapf(err, "read %s", path)
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return data, eris.Wrapf(err, "parse %s", path)
	}
	return data, nil
}

func init() {
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(scoreCmd)
}
