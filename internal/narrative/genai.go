package narrative

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"twinsim/internal/clinical"
)

const systemInstruction = `You are a clinical decision support assistant explaining a "what-if" simulation of type 2 diabetes risk to a clinician.
Write two short paragraphs of plain Markdown. Describe which risk factors were changed, how the projected risk moved, and what sustaining those targets would involve.
Do not invent measurements that are not given. Do not give a diagnosis.`

// GenAIClient generates reports with Google's Gemini API.
type GenAIClient struct {
	client *genai.Client
	model  string
}

// NewGenAIClient creates a Gemini-backed narrative client.
func NewGenAIClient(ctx context.Context, apiKey, model string) (*GenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAIClient{client: client, model: model}, nil
}

// Narrate asks the model to explain the scenario.
func (c *GenAIClient) Narrate(ctx context.Context, req Request) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model,
		genai.Text(Prompt(req)),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
			Temperature:       genai.Ptr[float32](0.3),
		},
	)
	if err != nil {
		return "", fmt.Errorf("%w: generate content: %w", ErrNarrative, err)
	}
	return checkText(resp.Text())
}

// Prompt renders the scenario as the user turn sent to the model.
func Prompt(req Request) string {
	p := req.Patient
	var b strings.Builder
	b.WriteString("Patient baseline:\n")
	fmt.Fprintf(&b, "- Gender: %s\n", p.Gender)
	fmt.Fprintf(&b, "- Age: %g\n", p.Age)
	fmt.Fprintf(&b, "- Hypertension: %s\n", yesNo(p.Hypertension))
	fmt.Fprintf(&b, "- Heart disease: %s\n", yesNo(p.HeartDisease))
	fmt.Fprintf(&b, "- Smoking history: %s\n", p.SmokingHistory)

	b.WriteString("\nSimulated changes:\n")
	for _, bnd := range clinical.DefaultTable().Sorted() {
		target, ok := req.Modifications[bnd.Field]
		if !ok {
			continue
		}
		from := p.Value(bnd.Field)
		if target == from {
			fmt.Fprintf(&b, "- %s: unchanged at %g%s\n", bnd.Field, from, unitSuffix(bnd.Unit))
			continue
		}
		fmt.Fprintf(&b, "- %s: %g%s -> %g%s\n", bnd.Field, from, unitSuffix(bnd.Unit), target, unitSuffix(bnd.Unit))
	}

	fmt.Fprintf(&b, "\nProjected diabetes risk: %.1f%% (%s) -> %.1f%% (%s)\n",
		req.OriginalRisk*100, clinical.LevelFor(req.OriginalRisk),
		req.NewRisk*100, clinical.LevelFor(req.NewRisk))
	return b.String()
}

func yesNo(v int) string {
	if v != 0 {
		return "yes"
	}
	return "no"
}

func unitSuffix(unit string) string {
	if unit == "" {
		return ""
	}
	return " " + unit
}
