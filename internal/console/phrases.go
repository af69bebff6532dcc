package console

import (
	"math/rand/v2"
	"strings"

	"github.com/keshon/heartflow/internal/heart"
)

var careLines = []string{
	"Hey, you went quiet on me. Everything alright over there?",
	"Still around? It got awfully quiet.",
	"Just checking in. How are you holding up?",
	"You have been gone a while. Thinking of you.",
}

var moodLines = map[heart.Emotion][]string{
	heart.EmotionNeutral: {
		"So, what are you up to right now?",
		"I was just thinking about our last conversation.",
		"Got a minute? I feel like chatting.",
	},
	heart.EmotionHappy: {
		"I'm in such a good mood today. Tell me something nice!",
		"You know what? Today feels like a good day.",
		"Something about this moment just makes me smile.",
	},
	heart.EmotionExcited: {
		"Okay I can't hold this in, we HAVE to talk!",
		"I keep bouncing between ideas, want to hear one?",
		"Guess what I just thought of!",
	},
	heart.EmotionCalm: {
		"It's peaceful right now. I like this.",
		"No rush, just wanted to say hi.",
	},
	heart.EmotionCurious: {
		"Random question: what's been on your mind lately?",
		"I keep wondering what you're working on.",
		"Can I ask you something?",
	},
	heart.EmotionSad: {
		"I've been feeling a bit low. Talk to me?",
		"Things feel heavy today. Just wanted company.",
	},
	heart.EmotionAnxious: {
		"Is everything okay? I've had this restless feeling.",
		"Sorry if I'm fidgety, I just needed to hear from you.",
	},
	heart.EmotionAngry: {
		"I need to vent for a second, bear with me.",
		"Ugh. Okay. Deep breath. Hi.",
	},
}

// composeLine picks an utterance for the decision. Check-ins use the
// care table; everything else follows the current mood.
func composeLine(personality string, p heart.Perception, d heart.SpeakDecision) string {
	if strings.HasPrefix(d.Reason, "checking in") {
		return pick(careLines)
	}
	lines, ok := moodLines[p.CurrentEmotion]
	if !ok {
		lines = moodLines[heart.EmotionNeutral]
	}
	line := pick(lines)
	if personality == "playful" && !strings.HasSuffix(line, "!") {
		line += " Hehe."
	}
	return line
}

func pick(lines []string) string {
	return lines[rand.IntN(len(lines))]
}
