package stream

import (
	"iter"
	"strings"
)

// assembleResult is the outcome of folding one frame sequence.
type assembleResult struct {
	// text is the accumulated answer at the point the fold stopped.
	text string
	// providerErr is non-empty when an explicit error frame ended the
	// session. The fold reports failure but the turn does not fall back.
	providerErr string
	// readErr is non-nil when the underlying stream failed mid-read. The
	// accumulated text is suspect and must not leak into the final answer.
	readErr error
}

// assemble folds frames in arrival order into a growing answer string,
// publishing the accumulated text after every answer-bearing frame.
// Consumption stops at the first terminal or error frame; frames after a
// terminal are assumed not to occur and are never read. A sequence that
// ends without a terminal frame is treated as implicitly terminal.
func assemble(frames iter.Seq2[Frame, error], publish func(string), onFrame func(Frame)) assembleResult {
	var acc strings.Builder

	for frame, err := range frames {
		if err != nil {
			return assembleResult{text: acc.String(), readErr: err}
		}
		if onFrame != nil {
			onFrame(frame)
		}

		switch frame.Kind {
		case FramePartialText, FrameCompleteText:
			acc.WriteString(frame.Payload)
			if publish != nil {
				publish(acc.String())
			}
		case FrameTerminal:
			return assembleResult{text: acc.String()}
		case FrameError:
			return assembleResult{text: acc.String(), providerErr: frame.Payload}
		case FrameUnknown:
			// Skipped; best-effort provider streams interleave event
			// kinds this client has no use for.
		}
	}

	return assembleResult{text: acc.String()}
}
