package config

import "time"

const (
	// AI request timeout
	RequestTimeout = 90 * time.Second

	// Settings key holding the analysis credential
	CredentialKey = "gemini_api_key"

	// Prompt used when the user submits an empty analysis request
	DefaultPrompt = "Analyze this screen."

	// Reply used when the analysis response carries no usable text
	FallbackReply = "Error reading screen."

	// JPEG quality for sampled frames
	FrameQuality = 70

	// MIME type assigned to assembled media when negotiation produced none
	DefaultMediaType = "video/webm"

	// Display timestamp layouts
	DateLayout = time.DateTime
	TimeLayout = time.TimeOnly
)

// MediaTypePreference is the ordered encoding preference list for new
// recordings. The first type the encoder supports wins; if none are
// supported the encoder negotiates with an empty hint.
var MediaTypePreference = []string{
	"video/webm;codecs=vp9",
	"video/webm",
	"video/mp4",
}
