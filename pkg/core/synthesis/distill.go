// Package synthesis distills the rating summary into the short commentary
// shown at the top of a report.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"creditiq/pkg/core/llm"
	"creditiq/pkg/core/logging"
	"creditiq/pkg/core/prompt"
	"creditiq/pkg/core/utils"

	"github.com/sirupsen/logrus"
)

const DefaultMaxTokens = 2000

// ErrMalformedSummary is returned when a distilled summary lacks one of its
// sections, or has them out of order.
var ErrMalformedSummary = errors.New("distilled summary is malformed")

// Headings of a distilled summary, in the order they must appear.
var Headings = []string{
	"Commentary Summary",
	"Risk Flags",
	"System Preliminary Rating Guidance",
}

var headingPatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(Headings))
	for i, h := range Headings {
		words := strings.Fields(h)
		for j, w := range words {
			words[j] = regexp.QuoteMeta(w)
		}
		// markup may sit between the words: "**Risk** Flags"
		out[i] = regexp.MustCompile(`(?i)` + strings.Join(words, `[\s*_]+`))
	}
	return out
}()

// Distillation is a well-formed distilled summary.
type Distillation struct {
	Commentary []string `json:"commentary"`
	RiskFlags  string   `json:"risk_flags"`
	Guidance   string   `json:"guidance"`
	Text       string   `json:"text"`
}

// Distiller reformats a rating summary into commentary bullets followed by
// its risk flags and rating guidance.
type Distiller struct {
	provider    llm.Provider
	prompts     *prompt.Registry
	temperature float32
	maxTokens   int
	log         *logrus.Entry
}

func NewDistiller(provider llm.Provider, prompts *prompt.Registry, temperature float32, log *logrus.Entry) *Distiller {
	return &Distiller{
		provider:    provider,
		prompts:     prompts,
		temperature: temperature,
		maxTokens:   DefaultMaxTokens,
		log:         logging.OrDiscard(log),
	}
}

// Distill asks the model for the short summary and checks its shape. A reply
// missing a section fails with StatusMalformed and ErrMalformedSummary; the
// Result text is then a placeholder naming what is missing.
func (d *Distiller) Distill(ctx context.Context, rating string) (*Distillation, llm.Result) {
	if strings.TrimSpace(rating) == "" {
		return nil, llm.Result{Status: llm.StatusSkipped}
	}
	text, err := d.prompts.Render(prompt.DistillCommentary, map[string]interface{}{
		"RatingSummary": rating,
	})
	if err != nil {
		return nil, llm.Failure(err, fmt.Sprintf("Error in summary distillation: %v", err))
	}

	out, err := d.provider.GenerateResponse(ctx, llm.Request{
		Prompt:      text,
		Temperature: d.temperature,
		MaxTokens:   d.maxTokens,
	})
	if err != nil {
		d.log.WithError(err).Error("summary distillation failed")
		return nil, llm.Failure(err, fmt.Sprintf("Error in summary distillation: %v", err))
	}

	dist, err := Parse(out)
	if err != nil {
		d.log.WithError(err).WithField("reply_chars", len(out)).Warn("distilled summary rejected")
		return nil, llm.Result{
			Text:     fmt.Sprintf("Error: %v", err),
			Status:   llm.StatusMalformed,
			Err:      err,
			Attempts: 1,
		}
	}
	res := llm.Success(dist.Text)
	res.Attempts = 1
	return dist, res
}

// Parse checks that text carries the three headings in order and splits it
// into its sections.
func Parse(text string) (*Distillation, error) {
	text = utils.CleanMarkdown(text)

	plain := utils.PlainText(text)
	var missing []string
	pos := 0
	for i, re := range headingPatterns {
		loc := re.FindStringIndex(plain[pos:])
		if loc == nil {
			missing = append(missing, Headings[i])
			continue
		}
		pos += loc[1]
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformedSummary, strings.Join(missing, ", "))
	}

	// Locate the same headings in the Markdown source to keep list markup.
	starts := make([]int, len(Headings))
	bodies := make([]int, len(Headings))
	pos = 0
	for i, re := range headingPatterns {
		loc := re.FindStringIndex(text[pos:])
		if loc == nil {
			return nil, fmt.Errorf("%w: cannot locate %s", ErrMalformedSummary, Headings[i])
		}
		starts[i] = pos + loc[0]
		bodies[i] = pos + loc[1]
		pos = bodies[i]
	}
	section := func(i int) string {
		end := len(text)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		body := strings.TrimLeft(text[bodies[i]:end], " \t*_:#")
		return strings.TrimRight(strings.TrimSpace(body), " \n\t*_#>")
	}

	return &Distillation{
		Commentary: bullets(section(0)),
		RiskFlags:  section(1),
		Guidance:   section(2),
		Text:       text,
	}, nil
}

// bullets returns the list items of s, or its non-blank lines when s has no list.
func bullets(s string) []string {
	var items, lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
		for _, marker := range []string{"- ", "* ", "• "} {
			if strings.HasPrefix(line, marker) {
				items = append(items, strings.TrimSpace(strings.TrimPrefix(line, marker)))
				break
			}
		}
	}
	if len(items) == 0 {
		return lines
	}
	return items
}
