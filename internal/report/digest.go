// Package report turns a finished run's statistics into a short operator
// digest via the OpenAI API.
package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/lox/stanhopewx/internal/impute"
	"github.com/lox/stanhopewx/internal/quality"
)

const systemPrompt = "You are a weather data engineer reviewing a nightly " +
	"cleaning run. Summarize data health in at most three sentences for a " +
	"station operator: call out columns with heavy gaps or heavy imputation, " +
	"and say whether the run looks routine."

// Digester writes one-paragraph run summaries.
type Digester struct {
	client openai.Client
	model  string
}

// NewDigester reads OPENAI_API_KEY from the environment.
func NewDigester() (*Digester, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
	)

	return &Digester{
		client: client,
		model:  "gpt-4o-mini", // cheap and plenty for three sentences
	}, nil
}

// Digest summarizes the run. The quality records are reduced to the
// network-wide rollup rows before prompting.
func (d *Digester) Digest(ctx context.Context, res impute.Result, records []quality.Record) (string, error) {
	resp, err := d.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: d.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(buildPrompt(res, records)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("digest: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("digest: no choices returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func buildPrompt(res impute.Result, records []quality.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run totals: %d values missing before cleaning, %d filled (%d interpolated, %d neighbor-filled, %d derived), %d still missing.\n\n",
		res.OriginalMissing, res.TotalFilled, res.Tier1Filled, res.Tier2Filled, res.Tier3Filled, res.Remaining)

	b.WriteString("Per-column health across all stations:\n")
	for _, rec := range records {
		if rec.Station != quality.AllStations {
			continue
		}
		fmt.Fprintf(&b, "- %s: %.2f%% missing, %.2f%% imputed", rec.Column, rec.MissingPercent, rec.ImputationPercent)
		if rec.Mean.Valid {
			fmt.Fprintf(&b, ", mean %.2f", rec.Mean.Float64)
		}
		b.WriteString("\n")
	}
	return b.String()
}
