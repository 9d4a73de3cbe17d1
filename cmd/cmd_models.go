// cmd_models.go - Models Command: zeigt alle trainierbaren Modellnamen
// Hauptfunktionen: ModelsHandler
package cmd

import (
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/memegle/cnocr/crnn"
	"github.com/memegle/cnocr/hyperparams"
)

// newModelsCmd - Erstellt den models Command
func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List all trainable model variants",
		Args:  cobra.ExactArgs(0),
		RunE:  ModelsHandler,
	}
}

// ModelsHandler - Listet alle emb/seq Kombinationen auf
func ModelsHandler(cmd *cobra.Command, _ []string) error {
	var data [][]string

	for _, emb := range crnn.EmbModelTypes {
		for _, seq := range crnn.SeqModelTypes {
			opts := hyperparams.DefaultOptions()
			opts.SeqModelType = seq
			hp, err := hyperparams.New(opts)
			if err != nil {
				return err
			}

			net, hp, err := crnn.GenNetwork(emb+"-"+seq, hp)
			if err != nil {
				return err
			}

			data = append(data, []string{
				net.Name,
				emb,
				seq,
				strconv.Itoa(hp.SeqLength),
				strconv.Itoa(len(net.Layers)),
			})
		}
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"NAME", "EMB", "SEQ", "SEQ LENGTH", "LAYERS"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	return nil
}
