package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kairoai/engine/core/intent"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <text>",
	Short: "Show the ranked capability classification for a request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		classification, err := intent.NewClassifier().Classify(args[0])
		if err != nil {
			return err
		}

		if len(classification.Ranked) == 0 {
			fmt.Println("no capability matched")
			return nil
		}
		for i, candidate := range classification.Ranked {
			fmt.Printf("%d. %-14s score=%.0f confidence=%.2f\n",
				i+1, candidate.Capability, candidate.Score, candidate.Confidence)
		}
		if classification.MultiCapability {
			fmt.Println("note: top candidates are within the tie margin; multi-capability coordination recommended")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}
