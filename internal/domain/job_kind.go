package domain

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// JobKind identifies what a generation job produces
type JobKind string

const (
	JobKindTextToSpeech     JobKind = "text_to_speech"
	JobKindSpeechToText     JobKind = "speech_to_text"
	JobKindSpeechToSpeech   JobKind = "speech_to_speech"
	JobKindVoiceClone       JobKind = "voice_clone"
	JobKindTextToImage      JobKind = "text_to_image"
	JobKindImageToVideo     JobKind = "image_to_video"
	JobKindVideoTranslation JobKind = "video_translation"
	JobKindVideoDubbing     JobKind = "video_dubbing"
	JobKindLipSync          JobKind = "lip_sync"
)

// Input limits
const (
	MaxSpeechTextLength = 5000
	MaxPromptLength     = 4000
	MaxReferenceLength  = 2048
	MaxVoiceSamples     = 25
)

// creditPrices is the canonical credits-per-job price list
var creditPrices = map[JobKind]int64{
	JobKindTextToSpeech:     1,
	JobKindSpeechToText:     2,
	JobKindSpeechToSpeech:   3,
	JobKindVoiceClone:       5,
	JobKindTextToImage:      1,
	JobKindImageToVideo:     3,
	JobKindVideoTranslation: 3,
	JobKindVideoDubbing:     5,
	JobKindLipSync:          5,
}

// AllJobKinds lists the kinds in a stable order
var AllJobKinds = []JobKind{
	JobKindTextToSpeech,
	JobKindSpeechToText,
	JobKindSpeechToSpeech,
	JobKindVoiceClone,
	JobKindTextToImage,
	JobKindImageToVideo,
	JobKindVideoTranslation,
	JobKindVideoDubbing,
	JobKindLipSync,
}

// IsValid reports whether k is a known kind
func (k JobKind) IsValid() bool {
	_, ok := creditPrices[k]
	return ok
}

// CreditPrice returns the fixed price of a kind
func CreditPrice(kind JobKind) (int64, bool) {
	price, ok := creditPrices[kind]
	return price, ok
}

type inputValidator func(in JobInput) []FieldError

// inputValidators holds the structural requirements of each kind
var inputValidators = map[JobKind]inputValidator{
	JobKindTextToSpeech: func(in JobInput) []FieldError {
		return collect(requireText("text", in.Text, MaxSpeechTextLength))
	},
	JobKindSpeechToText: func(in JobInput) []FieldError {
		return collect(requireReference("audioUrl", in.AudioURL))
	},
	JobKindSpeechToSpeech: func(in JobInput) []FieldError {
		return collect(
			requireReference("audioUrl", in.AudioURL),
			requireText("voiceId", in.VoiceID, MaxReferenceLength),
		)
	},
	JobKindVoiceClone: func(in JobInput) []FieldError {
		errs := collect(requireText("name", in.Name, MaxWorkspaceNameLength))
		if len(in.SampleURLs) == 0 {
			return append(errs, FieldError{Field: "sampleUrls", Message: "At least one voice sample is required"})
		}
		if len(in.SampleURLs) > MaxVoiceSamples {
			return append(errs, FieldError{Field: "sampleUrls", Message: fmt.Sprintf("At most %d voice samples are allowed", MaxVoiceSamples)})
		}
		for i, sample := range in.SampleURLs {
			if fe := requireReference(fmt.Sprintf("sampleUrls[%d]", i), sample); fe != nil {
				errs = append(errs, *fe)
			}
		}
		return errs
	},
	JobKindTextToImage: func(in JobInput) []FieldError {
		return collect(requireText("prompt", in.Prompt, MaxPromptLength))
	},
	JobKindImageToVideo: func(in JobInput) []FieldError {
		return collect(
			requireReference("imageUrl", in.ImageURL),
			optionalText("prompt", in.Prompt, MaxPromptLength),
		)
	},
	JobKindVideoTranslation: func(in JobInput) []FieldError {
		return collect(
			requireReference("videoUrl", in.VideoURL),
			requireText("targetLanguage", in.TargetLanguage, 16),
		)
	},
	JobKindVideoDubbing: func(in JobInput) []FieldError {
		return collect(
			requireReference("videoUrl", in.VideoURL),
			requireText("targetLanguage", in.TargetLanguage, 16),
		)
	},
	JobKindLipSync: func(in JobInput) []FieldError {
		return collect(
			requireReference("videoUrl", in.VideoURL),
			requireReference("audioUrl", in.AudioURL),
		)
	},
}

// ValidateJobInput checks in against the requirements of kind.
// The returned error is a *ValidationError listing every offending field.
func ValidateJobInput(kind JobKind, in JobInput) error {
	validate, ok := inputValidators[kind]
	if !ok {
		return NewValidationError("kind", "Unknown job kind")
	}
	if errs := validate(in); len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func collect(errs ...*FieldError) []FieldError {
	var out []FieldError
	for _, e := range errs {
		if e != nil {
			out = append(out, *e)
		}
	}
	return out
}

func requireText(field, value string, maxLen int) *FieldError {
	if strings.TrimSpace(value) == "" {
		return &FieldError{Field: field, Message: "This field is required"}
	}
	return optionalText(field, value, maxLen)
}

func optionalText(field, value string, maxLen int) *FieldError {
	if utf8.RuneCountInString(value) > maxLen {
		return &FieldError{Field: field, Message: fmt.Sprintf("Must be %d characters or less", maxLen)}
	}
	return nil
}

// requireReference accepts an http(s) URL or a storage key
func requireReference(field, value string) *FieldError {
	if fe := requireText(field, value, MaxReferenceLength); fe != nil {
		return fe
	}
	if strings.Contains(value, "://") {
		u, err := url.Parse(value)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return &FieldError{Field: field, Message: "Must be an http(s) URL or a storage key"}
		}
	}
	return nil
}
