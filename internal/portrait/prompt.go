// Package portrait turns customer pet photos into styled portrait
// variations with a generative image model.
package portrait

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnknownStyle        = errors.New("unknown portrait style")
	ErrSourceImageRequired = errors.New("source image is required")
	ErrInstructionsTooLong = errors.New("extra instructions are too long")
)

const (
	maxPetNameLength      = 50
	maxInstructionsLength = 500
)

// Style is a preset the storefront offers.
type Style struct {
	Name        string
	Description string
	Palette     string
	Composition string
}

var styles = map[string]Style{
	"renaissance": {
		Name:        "Renaissance",
		Description: "a Renaissance oil portrait in the manner of the Italian masters, with soft sfumato shading and rich glazes",
		Palette:     "deep umbers, warm ochres and muted gold",
		Composition: "three-quarter view against a dark draped background",
	},
	"royal": {
		Name:        "Royal",
		Description: "a regal court portrait with the pet dressed in an ermine-trimmed velvet robe and a jewelled collar",
		Palette:     "crimson, royal blue and polished gold",
		Composition: "seated upright on a cushion, facing the viewer with a dignified expression",
	},
	"watercolor": {
		Name:        "Watercolour",
		Description: "a loose watercolour painting with visible paper texture and soft bleeding edges",
		Palette:     "light washes of the pet's natural colours with gentle pastel accents",
		Composition: "head and shoulders on a plain white background",
	},
	"pop_art": {
		Name:        "Pop Art",
		Description: "a bold pop art print with flat colour blocks, thick outlines and halftone dots",
		Palette:     "saturated magenta, cyan, yellow and black",
		Composition: "centred head shot on a single bright background colour",
	},
	"pencil_sketch": {
		Name:        "Pencil Sketch",
		Description: "a detailed graphite pencil drawing with fine cross-hatching",
		Palette:     "greyscale graphite on warm cream paper",
		Composition: "head and shoulders with the edges fading into the paper",
	},
	"cartoon": {
		Name:        "Cartoon",
		Description: "a friendly animated-film character illustration with expressive eyes and smooth shading",
		Palette:     "bright, cheerful colours",
		Composition: "full body in a playful pose on a simple gradient background",
	},
}

// Styles lists the available style keys in a stable order.
func Styles() []string {
	keys := make([]string, 0, len(styles))
	for k := range styles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Request describes the variation a customer asked for.
type Request struct {
	Style        string `json:"style"`
	PetName      string `json:"pet_name,omitempty"`
	Species      string `json:"species,omitempty"`
	Breed        string `json:"breed,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

func normalizeStyle(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
}

// BuildVariationPrompt assembles the generation prompt for a request.
func BuildVariationPrompt(req Request) (string, error) {
	style, ok := styles[normalizeStyle(req.Style)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStyle, req.Style)
	}
	instructions := strings.TrimSpace(req.Instructions)
	if len(instructions) > maxInstructionsLength {
		return "", ErrInstructionsTooLong
	}

	subject := strings.TrimSpace(req.Species)
	if subject == "" {
		subject = "pet"
	}
	if breed := strings.TrimSpace(req.Breed); breed != "" {
		subject = breed + " " + subject
	}
	name := strings.TrimSpace(req.PetName)
	if len(name) > maxPetNameLength {
		name = name[:maxPetNameLength]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Transform the attached photo of a %s", subject)
	if name != "" {
		fmt.Fprintf(&b, " named %s", name)
	}
	fmt.Fprintf(&b, " into %s. ", style.Description)
	fmt.Fprintf(&b, "Use a colour palette of %s. ", style.Palette)
	fmt.Fprintf(&b, "Composition: %s. ", style.Composition)
	b.WriteString("Keep the animal instantly recognisable: preserve its markings, fur colour and pattern, eye colour, ear shape and proportions exactly as in the photo. ")
	b.WriteString("Show a single animal only, with no text, watermarks, signatures or frames. ")
	b.WriteString("Produce a high resolution square image suitable for printing on canvas.")
	if instructions != "" {
		fmt.Fprintf(&b, " Additional customer requests: %s", instructions)
	}
	return b.String(), nil
}
