package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	urfave "github.com/urfave/cli/v2"

	"github.com/soaringjerry/Spotcheck/internal/classifier"
	"github.com/soaringjerry/Spotcheck/internal/retry"
	"github.com/soaringjerry/Spotcheck/internal/services"
)

var (
	answersFlag = &urfave.StringFlag{
		Name:     "answers",
		Aliases:  []string{"a"},
		Usage:    "Path to the questionnaire answers JSON file (- for stdin)",
		Required: true,
	}

	predictionsFlag = &urfave.StringFlag{
		Name:    "predictions",
		Aliases: []string{"p"},
		Usage:   "Path to a classifier predictions JSON file (array or {\"predictions\": [...]})",
	}

	endpointFlag = &urfave.StringFlag{
		Name:     "endpoint",
		Usage:    "Classifier endpoint URL",
		EnvVars:  []string{"SPOTCHECK_CLASSIFIER_ENDPOINT"},
		Required: true,
	}

	apiKeyFlag = &urfave.StringFlag{
		Name:    "api-key",
		Usage:   "Classifier API key",
		EnvVars: []string{"SPOTCHECK_CLASSIFIER_API_KEY"},
	}

	minConfidenceFlag = &urfave.Float64Flag{
		Name:  "min-confidence",
		Usage: "Drop detections below this confidence (0-1, default keeps all)",
		Value: 0,
	}

	timeoutFlag = &urfave.DurationFlag{
		Name:  "timeout",
		Usage: "Overall classifier timeout",
		Value: 30 * time.Second,
	}

	scoreCmd = &urfave.Command{
		Name:  "score",
		Usage: "Score questionnaire answers, optionally with classifier predictions",
		UsageText: `spotcheck score --answers answers.json
   spotcheck score --answers answers.json --predictions predictions.json
   cat answers.json | spotcheck --format yaml score --answers -`,
		Action: cmdScore,
		Flags: []urfave.Flag{
			answersFlag,
			predictionsFlag,
		},
	}

	classifyCmd = &urfave.Command{
		Name:      "classify",
		Usage:     "Send an image to the classifier and print its predictions",
		UsageText: `spotcheck classify --endpoint https://detect.example.com/skin-rash/3 --api-key KEY rash.jpg`,
		Action:    cmdClassify,
		Flags: []urfave.Flag{
			endpointFlag,
			apiKeyFlag,
			minConfidenceFlag,
			timeoutFlag,
		},
	}

	vocabularyCmd = &urfave.Command{
		Name:    "vocabulary",
		Aliases: []string{"vocab"},
		Usage:   "Print the accepted questionnaire values",
		Action: func(c *urfave.Context) error {
			return encode(c, services.QuestionnaireVocabulary())
		},
	}
)

func cmdScore(c *urfave.Context) error {
	raw, err := readInput(c, c.String(answersFlag.Name))
	if err != nil {
		return fmt.Errorf("reading answers: %w", err)
	}
	var answers services.QuestionnaireAnswers
	if err := json.Unmarshal(raw, &answers); err != nil {
		return fmt.Errorf("parsing answers: %w", err)
	}
	if err := answers.Validate(); err != nil {
		return fmt.Errorf("invalid answers: %w", err)
	}

	var preds []services.Prediction
	if p := c.String(predictionsFlag.Name); p != "" {
		b, err := readInput(c, p)
		if err != nil {
			return fmt.Errorf("reading predictions: %w", err)
		}
		if preds, err = parsePredictions(b); err != nil {
			return fmt.Errorf("parsing predictions: %w", err)
		}
	}

	res := services.Score(answers, preds)
	logger := getLogger(c)
	logger.Debug().Int("score", res.Score).Str("likelihood", string(res.Likelihood)).Msg("scored")
	return encode(c, res)
}

// parsePredictions accepts a bare array or a full classifier response.
func parsePredictions(b []byte) ([]services.Prediction, error) {
	var list []services.Prediction
	if err := json.Unmarshal(b, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Predictions []services.Prediction `json:"predictions"`
	}
	if err := json.Unmarshal(b, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Predictions, nil
}

func cmdClassify(c *urfave.Context) error {
	if c.NArg() != 1 {
		return urfave.ShowSubcommandHelp(c)
	}
	image, err := readInput(c, c.Args().First())
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	logger := getLogger(c)
	client := classifier.NewClient(c.String(endpointFlag.Name), c.String(apiKeyFlag.Name),
		classifier.WithMinConfidence(c.Float64(minConfidenceFlag.Name)),
		classifier.WithRetry(retry.DefaultConfig()),
		classifier.WithLogger(logger),
	)

	ctx := c.Context
	if d := c.Duration(timeoutFlag.Name); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	preds, err := client.Classify(ctx, image)
	if err != nil {
		return err
	}
	logger.Debug().Int("predictions", len(preds)).Msg("classified")
	return encode(c, map[string]any{"predictions": preds})
}
