// Package prompt defines the run request and the structured prompt package
// the image model is asked to return, together with the JSON Schema that
// package must satisfy before anything downstream trusts it.
package prompt

// DefaultSize is the output size used when a request does not set one.
const DefaultSize = "1024x1024"

// AnchorImageID identifies the TAL reference image every package is locked to.
const AnchorImageID = "TAL_ANCHOR_IMAGE"

// DefaultNegativePrompt suppresses non-photoreal styles and public-figure likeness.
const DefaultNegativePrompt = "cartoon, anime, illustration, 3d, cgi, render, painting, sketch, comic, " +
	"unreal engine, pixar, disney, doll-like, plastic skin, oversharpened, " +
	"extra limbs, deformed face, blurry, watermark, text, logo, brand marks, " +
	"celebrity, politician, public figure, deformed, bad anatomy, bad proportions"

// StyleBaseline is the photographic baseline applied when no preset is chosen.
const StyleBaseline = "photorealistic, natural light, candid lifestyle photo, realistic skin texture, " +
	"subtle depth of field, 35mm photography, high quality, detailed"

// RunRequest is the validated caller input for one run. It is not modified
// after the run starts.
type RunRequest struct {
	UserRequest string  `json:"user_request"`
	Seed        *int64  `json:"seed"`
	Size        string  `json:"size"`
	StylePreset *string `json:"style_preset"`
}

// Package is the model's structured answer: everything an image generator
// needs to render one TAL scene.
type Package struct {
	FinalPrompt       string   `json:"final_prompt"`
	NegativePrompt    string   `json:"negative_prompt"`
	ReferenceImageIDs []string `json:"reference_image_ids"`
	ReferenceStrength float64  `json:"reference_strength"`
	Size              string   `json:"size"`
	Count             int      `json:"count"`
	Seed              *int64   `json:"seed"`
	Assumptions       []string `json:"assumptions"`
	PolicyNotes       []string `json:"policy_notes"`
}

// AddPolicyNotes appends notes not already present, preserving order.
func (p *Package) AddPolicyNotes(notes ...string) {
	seen := make(map[string]bool, len(p.PolicyNotes))
	for _, n := range p.PolicyNotes {
		seen[n] = true
	}
	for _, n := range notes {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		p.PolicyNotes = append(p.PolicyNotes, n)
	}
}

// normalize replaces nil slices with empty ones so packages always serialize
// with arrays, never null.
func (p *Package) normalize() {
	if p.ReferenceImageIDs == nil {
		p.ReferenceImageIDs = []string{}
	}
	if p.Assumptions == nil {
		p.Assumptions = []string{}
	}
	if p.PolicyNotes == nil {
		p.PolicyNotes = []string{}
	}
}
