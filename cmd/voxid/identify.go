package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marcant0n/voxid/pkg/speaker"
)

// embeddingInput is the accepted JSON shape for `voxid identify`: either a
// bare float array or an object with an "embedding" field (and optional
// transcript text).
type embeddingInput struct {
	Embedding []float32 `json:"embedding"`
	Text      string    `json:"text,omitempty"`
}

func readEmbedding(path string) (embeddingInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return embeddingInput{}, fmt.Errorf("read embedding file: %w", err)
	}

	var in embeddingInput
	if err := json.Unmarshal(data, &in); err == nil && len(in.Embedding) > 0 {
		return in, nil
	}
	if err := json.Unmarshal(data, &in.Embedding); err != nil {
		return embeddingInput{}, fmt.Errorf("parse embedding file %q: %w", path, err)
	}
	return in, nil
}

func newIdentifyCmd(a *app) *cobra.Command {
	var (
		embeddingPath string
		group         string
		text          string
	)

	cmd := &cobra.Command{
		Use:   "identify",
		Short: "Identify the speaker of one embedding",
		Long: "Identify reads a JSON embedding (a float array, or an object with an\n" +
			"\"embedding\" field) and ranks it against the stored voiceprints.\n" +
			"The result is printed as JSON; an unidentified segment is a normal\n" +
			"result, not an error.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := readEmbedding(embeddingPath)
			if err != nil {
				return err
			}
			if text != "" {
				in.Text = text
			}

			labeled, err := a.engine.IdentifySegment(cmd.Context(), speaker.Segment{
				Text:      in.Text,
				Embedding: in.Embedding,
			}, group)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Identity   string             `json:"identity,omitempty"`
				Score      float64            `json:"score"`
				Confidence speaker.Confidence `json:"confidence"`
			}{labeled.Identity, labeled.Score, labeled.Confidence})
		},
	}

	cmd.Flags().StringVarP(&embeddingPath, "embedding", "e", "", "path to the JSON embedding file")
	cmd.Flags().StringVarP(&group, "group", "g", "", "restrict candidates to one group")
	cmd.Flags().StringVarP(&text, "text", "t", "", "transcript text used for near-tie disambiguation")
	_ = cmd.MarkFlagRequired("embedding")
	return cmd
}
