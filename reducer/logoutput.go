package reducer

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/hupe1980/llmflow/core"
	"github.com/hupe1980/llmflow/logging"
	"github.com/hupe1980/llmflow/tokens"
)

// errorLine matches log lines worth keeping when the middle of a message is
// thinned out.
var errorLine = regexp.MustCompile(`(?i)(error|warning|fatal|fail|not.found|notfound|\bE[A-Z][A-Z]+:)`)

const ellipsis = "\n...\n"

// LogOutput reduces tool and command output. The largest messages are
// shortened first, each one to its head and tail lines plus the most
// relevant lines of the middle (errors and warnings first, then lines with
// rare words).
type LogOutput struct {
	counter tokens.Counter
	logger  logging.Logger
}

// LogOutputOptions configures a LogOutput reducer.
type LogOutputOptions struct {
	Counter tokens.Counter
	Logger  logging.Logger
}

// NewLogOutput creates a LogOutput reducer.
func NewLogOutput(optFns ...func(o *LogOutputOptions)) *LogOutput {
	opts := LogOutputOptions{Counter: tokens.Default}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Counter == nil {
		opts.Counter = tokens.Default
	}
	return &LogOutput{counter: opts.Counter, logger: logging.OrNoOp(opts.Logger)}
}

var _ Reducer = (*LogOutput)(nil)

// Reduce implements Reducer. It returns nil when msgs already fit target.
func (r *LogOutput) Reduce(ctx context.Context, msgs []core.Message, target int) ([]core.Message, error) {
	type sized struct {
		index  int
		tokens int
	}

	items := make([]sized, len(msgs))
	total := 0
	for i, m := range msgs {
		n := tokens.CountMessage(r.counter, m)
		items[i] = sized{index: i, tokens: n}
		total += n
	}
	if total <= target {
		return nil, nil
	}

	ratio := float64(target) / float64(total) / 2
	r.logger.Info("reducer.log_output.start", "messages", len(msgs), "tokens", total, "target", target,
		"estimate", int(math.Round(float64(total)*ratio)))

	out := make([]core.Message, len(msgs))
	copy(out, msgs)

	sort.SliceStable(items, func(i, j int) bool { return items[i].tokens > items[j].tokens })
	for _, it := range items {
		if total <= target {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m := out[it.index]
		text, ok := textOnly(m)
		if !ok {
			continue
		}
		reduced := m
		reduced.Parts = []core.Part{core.TextPart{Text: ReduceText(text, ratio)}}
		out[it.index] = reduced
		total += tokens.CountMessage(r.counter, reduced) - it.tokens
	}

	r.logger.Info("reducer.log_output.done", "tokens", total)
	return out, nil
}

// textOnly returns the text of messages made only of text parts.
func textOnly(m core.Message) (string, bool) {
	for _, p := range m.Parts {
		if _, ok := p.(core.TextPart); !ok {
			return "", false
		}
	}
	return m.Text(), true
}

// ReduceText keeps floor(lines*ratio/4) head and tail lines and selects
// about lines*ratio*0.45 lines of the middle, joined by "..." separators.
func ReduceText(text string, ratio float64) string {
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	edge := int(math.Floor(float64(len(lines)) * ratio * 0.25))
	if 2*edge > len(lines) {
		edge = len(lines) / 2
	}
	head := lines[:edge]
	tail := lines[len(lines)-edge:]
	middle := selectLines(lines[edge:len(lines)-edge], ratio*0.45)

	return strings.Join(head, "\n") + ellipsis + strings.Join(middle, "\n") + ellipsis + strings.Join(tail, "\n")
}

// selectLines keeps ceil(len(lines)*ratio) lines in order of occurrence.
// Error lines rank first, the rest by the inverse frequency of their words.
func selectLines(lines []string, ratio float64) []string {
	keep := int(math.Ceil(float64(len(lines)) * ratio))
	if keep <= 0 {
		return nil
	}
	if keep >= len(lines) {
		return lines
	}

	freq := make(map[string]int)
	for _, l := range lines {
		for _, w := range words(l) {
			freq[w]++
		}
	}

	type scored struct {
		index int
		score float64
	}
	scores := make([]scored, len(lines))
	for i, l := range lines {
		s := 0.0
		ws := words(l)
		for _, w := range ws {
			s += 1 / float64(freq[w])
		}
		if len(ws) > 0 {
			s /= float64(len(ws))
		}
		if errorLine.MatchString(l) {
			s += 10
		}
		scores[i] = scored{index: i, score: s}
	}

	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	picked := scores[:keep]
	sort.Slice(picked, func(i, j int) bool { return picked[i].index < picked[j].index })

	out := make([]string, len(picked))
	for i, p := range picked {
		out[i] = lines[p.index]
	}
	return out
}

func words(line string) []string {
	fields := strings.FieldsFunc(strings.ToLower(line), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 2 {
			out = append(out, f)
		}
	}
	return out
}
