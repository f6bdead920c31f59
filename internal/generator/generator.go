// Package generator produces viva question sets from an OpenAI-compatible
// chat completion API.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/stemsi/exstem-viva/internal/proctor"
)

const (
	systemPrompt = "Generate lab viva MCQs as JSON. Be concise."

	defaultModel     = "sonar"
	defaultCount     = 10
	maxTokens        = 2500
	temperature      = 0.7
	uniqueIDLength   = 8
	fallbackIDLength = 6
)

// ErrNotConfigured is returned by New without an API key.
var ErrNotConfigured = errors.New("generator API key is required")

// Config selects the provider.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Count   int
}

type completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Generator turns a topic into a shuffled, validated question set.
type Generator struct {
	client completer
	model  string
	count  int
	log    zerolog.Logger

	// nonce varies the shuffle between requests for the same session.
	nonce func() string
}

// New creates a Generator backed by go-openai.
func New(cfg Config, log zerolog.Logger) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	return newGenerator(openai.NewClientWithConfig(config), cfg, log), nil
}

func newGenerator(client completer, cfg Config, log zerolog.Logger) *Generator {
	g := &Generator{
		client: client,
		model:  cfg.Model,
		count:  cfg.Count,
		log:    log.With().Str("component", "generator").Logger(),
		nonce:  uuid.NewString,
	}
	if g.model == "" {
		g.model = defaultModel
	}
	if g.count <= 0 {
		g.count = defaultCount
	}
	return g
}

// Count is the number of questions requested per set.
func (g *Generator) Count() int { return g.count }

// prepare validates raw before shuffling so ids stay contiguous.
func (g *Generator) prepare(raw []proctor.Question, uniqueID, topic string) ([]proctor.Question, error) {
	valid, dropped := proctor.SanitizeQuestions(raw)
	if dropped > 0 {
		g.log.Warn().Int("dropped", dropped).Int("kept", len(valid)).Msg("Dropped malformed questions")
	}
	if len(valid) == 0 {
		return nil, proctor.ErrLoadValidation
	}
	Shuffle(valid, uniqueID, topic, g.nonce())
	return valid, nil
}

// Generate asks the model for a question set, drops malformed items, then
// shuffles question order and option letters and renumbers the survivors 1..N.
func (g *Generator) Generate(ctx context.Context, req proctor.GenerateRequest) ([]proctor.Question, error) {
	uniqueID := shortID(req.StudentSession)
	chatReq := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(req.Topic, g.count, uniqueID)},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}

	resp, err := g.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, mapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in completion", proctor.ErrLoadValidation)
	}

	raw, err := ParseQuestions(resp.Choices[0].Message.Content)
	if err != nil {
		g.log.Warn().Err(err).Str("topic", req.Topic).Msg("Unparseable question set")
		return nil, err
	}

	valid, err := g.prepare(raw, uniqueID, req.Topic)
	if err != nil {
		return nil, err
	}
	g.log.Info().
		Str("topic", req.Topic).
		Str("experiment_id", req.ExperimentID).
		Int("questions", len(valid)).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("Question set generated")
	return valid, nil
}

// BuildPrompt renders the user prompt for n questions on topic.
func BuildPrompt(topic string, n int, uniqueID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate %d MCQs for lab experiment: %q\n\n", n, topic)
	fmt.Fprintf(&b, "Session: %s\n\n", uniqueID)
	b.WriteString("Format (JSON only):\n")
	b.WriteString(`{"questions":[{"id":1,"question":"...","options":{"A":"...","B":"...","C":"...","D":"..."},"correct_answer":"A","explanation":"..."}]}`)
	b.WriteString("\n\nRules:\n")
	b.WriteString("- Viva-style conceptual questions about this experiment\n")
	b.WriteString("- 4 plausible options per question, 1 correct answer\n")
	b.WriteString("- Brief explanations\n")
	b.WriteString("- No generic questions")
	return b.String()
}

// StripFences removes a surrounding markdown code fence, if any.
func StripFences(content string) string {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```json") {
		s = s[len("```json"):]
	} else if strings.HasPrefix(s, "```") {
		s = s[len("```"):]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

type questionSet struct {
	Questions []proctor.Question `json:"questions"`
}

// ParseQuestions decodes the model output into raw, unvalidated questions.
func ParseQuestions(content string) ([]proctor.Question, error) {
	var set questionSet
	if err := json.Unmarshal([]byte(StripFences(content)), &set); err != nil {
		return nil, fmt.Errorf("%w: %v", proctor.ErrLoadValidation, err)
	}
	return set.Questions, nil
}

// Shuffle reorders qs and the options of each question from seeds derived
// from the session, the topic and nonce, remaps each correct letter and
// renumbers ids 1..N. The same inputs always give the same order.
func Shuffle(qs []proctor.Question, uniqueID, topic, nonce string) {
	rng := newRand(uniqueID, topic, nonce)
	rng.Shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })

	for i := range qs {
		optRng := newRand(uniqueID, fmt.Sprintf("%s-%d", topic, i), nonce)
		shuffleOptions(&qs[i], optRng)
		qs[i].ID = i + 1
	}
}

// shuffleOptions relabels the options A-D in a random order. Questions
// without exactly the four letters are left for validation to reject.
func shuffleOptions(q *proctor.Question, rng *rand.Rand) {
	if len(q.Options) != len(proctor.OptionLetters) {
		return
	}
	old := make([]string, 0, len(q.Options))
	for k := range q.Options {
		old = append(old, k)
	}
	sort.Strings(old)
	rng.Shuffle(len(old), func(i, j int) { old[i], old[j] = old[j], old[i] })

	opts := make(map[string]string, len(old))
	correct := q.CorrectAnswer
	for i, from := range old {
		to := proctor.OptionLetters[i]
		opts[to] = q.Options[from]
		if from == q.CorrectAnswer {
			correct = to
		}
	}
	q.Options = opts
	q.CorrectAnswer = correct
}

func newRand(parts ...string) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.Join(parts, "-")))
	seed := h.Sum64()
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func shortID(session string) string {
	if session == "" {
		return uuid.NewString()[:fallbackIDLength]
	}
	if len(session) > uniqueIDLength {
		return session[:uniqueIDLength]
	}
	return session
}

func mapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden {
			return fmt.Errorf("%w: provider rejected credentials: %s", proctor.ErrNetwork, apiErr.Message)
		}
		return fmt.Errorf("%w: provider returned %d: %s", proctor.ErrNetwork, apiErr.HTTPStatusCode, apiErr.Message)
	}
	return fmt.Errorf("%w: %v", proctor.ErrNetwork, err)
}

// Backend asks the web application for a question set first and generates
// in-process when it is unreachable. Every other call is delegated.
type Backend struct {
	proctor.Backend
	Generator *Generator
	Log       zerolog.Logger
}

// GenerateQuestions implements proctor.Backend.
func (b Backend) GenerateQuestions(ctx context.Context, req proctor.GenerateRequest) ([]proctor.Question, error) {
	qs, err := b.Backend.GenerateQuestions(ctx, req)
	if err == nil {
		return b.Generator.prepare(qs, shortID(req.StudentSession), req.Topic)
	}
	if !errors.Is(err, proctor.ErrNetwork) || ctx.Err() != nil {
		return nil, err
	}

	b.Log.Warn().Err(err).Str("experiment_id", req.ExperimentID).Msg("Web application generation failed, generating in-process")
	qs, genErr := b.Generator.Generate(ctx, req)
	if genErr != nil {
		return nil, errors.Join(err, genErr)
	}
	return qs, nil
}
