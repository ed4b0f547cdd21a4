package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// maxCaptionRunes is Telegram's caption length limit.
const maxCaptionRunes = 1024

// EnhanceInstruction asks the text model for a richer English restatement.
const EnhanceInstruction = "You rewrite short user requests into detailed prompts for an image or video generation model. " +
	"Reply in English with a single paragraph describing subject, setting, composition, lighting and style. " +
	"Keep the user's intent, do not add text overlays, and reply with the prompt only, without quotes or commentary."

func (k Kind) noun() string {
	if k == KindVideo {
		return "video"
	}
	return "image"
}

func usageHint(k Kind) string {
	if k == KindVideo {
		return "Please describe the video you want, e.g. /video a paper boat sailing through a storm"
	}
	return "Please describe the image you want, e.g. /photo a cat in space, watercolor"
}

func acceptedText(k Kind, enhancing bool) string {
	if enhancing {
		return fmt.Sprintf("⏳ Request accepted. 1/2: enhancing prompt for your %s…", k.noun())
	}
	return fmt.Sprintf("⏳ Request accepted. Generating your %s…", k.noun())
}

func generatingText(k Kind, prompt string) string {
	wait := "up to a minute"
	if k == KindVideo {
		wait = "a few minutes"
	}
	return fmt.Sprintf("🎨 2/2: generating %s (this can take %s)\n\nPrompt: %s", k.noun(), wait, prompt)
}

func captionFor(k Kind, prompt string) string {
	return truncateRunes(fmt.Sprintf("✅ Your %s is ready: %s", k.noun(), prompt), maxCaptionRunes)
}

// UserMessage turns a terminal error into the text shown in the chat.
func UserMessage(k Kind, err error) string {
	var (
		subErr  *SubmissionError
		pollErr *PollingError
		provErr *ProviderFailure
	)
	switch {
	case errors.Is(err, ErrEmptyPrompt):
		return usageHint(k)
	case errors.Is(err, ErrEmptyResult):
		return fmt.Sprintf("❌ The service finished but returned no %s (empty result). Please try another prompt.", k.noun())
	case errors.Is(err, ErrTimeout):
		return fmt.Sprintf("⌛ Generating your %s took too long (timeout). Please try again later.", k.noun())
	case errors.As(err, &provErr) && provErr.Blocked:
		msg := fmt.Sprintf("🚫 The %s was rejected by the content safety filter.", k.noun())
		if provErr.Reason != "" {
			msg += "\nReason: " + provErr.Reason
		}
		return msg + "\nPlease rephrase your prompt."
	case errors.As(err, &provErr):
		msg := fmt.Sprintf("❌ Could not generate the %s.", k.noun())
		if provErr.Reason != "" {
			msg += "\nReason: " + provErr.Reason
		}
		return msg
	case errors.As(err, &subErr):
		return fmt.Sprintf("❌ The generation service did not accept the request: %v", subErr.Err)
	case errors.As(err, &pollErr):
		return "❌ Lost contact with the generation service while waiting for the result. Please try again."
	case errors.Is(err, context.Canceled):
		return "⚠️ Generation was cancelled because the bot is shutting down. Please try again shortly."
	default:
		return fmt.Sprintf("❌ Sorry, something went wrong while generating the %s.", k.noun())
	}
}

// quotePairs maps an opening quote to its closing counterpart.
var quotePairs = map[rune]rune{'"': '"', '\'': '\'', '`': '`', '“': '”', '«': '»'}

// cleanEnhanced trims whitespace and matching pairs of surrounding quotes
// from model output. Unpaired quotes are part of the text and stay.
func cleanEnhanced(s string) string {
	s = strings.TrimSpace(s)
	for {
		r := []rune(s)
		if len(r) < 2 {
			return s
		}
		closing, ok := quotePairs[r[0]]
		if !ok || r[len(r)-1] != closing {
			return s
		}
		s = strings.TrimSpace(string(r[1 : len(r)-1]))
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
