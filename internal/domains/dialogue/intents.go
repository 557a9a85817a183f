package dialogue

import (
	"regexp"
	"strconv"
	"strings"
)

// Intent is the result of the cheap deterministic classifiers that run
// before any model is consulted.
type Intent int

const (
	IntentUnknown Intent = iota
	IntentOptOut
	IntentTransfer
	IntentAffirm
	IntentDecline
	IntentWait
	IntentRepeat
	IntentSmalltalk
)

func (i Intent) String() string {
	switch i {
	case IntentOptOut:
		return "opt_out"
	case IntentTransfer:
		return "transfer"
	case IntentAffirm:
		return "affirm"
	case IntentDecline:
		return "decline"
	case IntentWait:
		return "wait"
	case IntentRepeat:
		return "repeat"
	case IntentSmalltalk:
		return "smalltalk"
	default:
		return "unknown"
	}
}

var (
	optOutPhrases = []string{
		"do not call", "don't call", "stop calling", "remove me",
		"take me off", "unsubscribe", "never call",
	}
	transferPhrases = []string{
		"transfer me", "put me through", "connect me", "speak to a human",
		"talk to a person", "talk to someone", "real person",
	}
	affirmWords = map[string]bool{
		"yes": true, "yeah": true, "yep": true, "yup": true, "sure": true,
		"absolutely": true, "definitely": true, "correct": true, "right": true,
		"interested": true, "ok": true, "okay": true, "fine": true,
	}
	affirmPhrases = []string{
		"sounds good", "why not", "go ahead", "of course", "i am interested",
		"i'm interested", "tell me more",
	}
	declineWords = map[string]bool{
		"no": true, "nope": true, "nah": true,
	}
	declinePhrases = []string{
		"not interested", "no thanks", "no thank you", "not right now",
		"not for me", "i'm busy", "i am busy", "no time",
	}
	waitPhrases = []string{
		"hold on", "one moment", "one second", "just a second", "just a sec",
		"give me a minute", "wait", "hang on",
	}
	repeatPhrases = []string{
		"say that again", "repeat", "come again", "pardon", "didn't hear",
		"didn't catch", "what was that", "excuse me",
	}
	smalltalkPhrases = []string{
		"how are you", "who is this", "who are you", "good morning",
		"good afternoon", "good evening", "hello", "hi there",
	}
)

// Classify runs the deterministic matchers in priority order. Opt-out
// always wins so a "no, stop calling me" never reads as a plain decline.
func Classify(text string) Intent {
	t := normalize(text)
	if t == "" {
		return IntentUnknown
	}

	if containsAny(t, optOutPhrases) {
		return IntentOptOut
	}
	if containsAny(t, transferPhrases) {
		return IntentTransfer
	}
	if containsAny(t, declinePhrases) || leadWordIn(t, declineWords) {
		return IntentDecline
	}
	if containsAny(t, affirmPhrases) || leadWordIn(t, affirmWords) {
		return IntentAffirm
	}
	if containsAny(t, waitPhrases) {
		return IntentWait
	}
	if containsAny(t, repeatPhrases) {
		return IntentRepeat
	}
	if containsAny(t, smalltalkPhrases) {
		return IntentSmalltalk
	}
	return IntentUnknown
}

// IsAckOnly reports whether the text is a bare acknowledgment like
// "thanks" or "ok" that must never advance a slot-filling step.
func IsAckOnly(text string) bool {
	t := normalize(text)
	switch t {
	case "ok", "okay", "alright", "all right", "thanks", "thank you",
		"got it", "i see", "mhm", "uh huh", "right", "sure", "yes", "yeah":
		return true
	}
	return false
}

var digitRe = regexp.MustCompile(`\d+`)

var wordNumbers = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14,
	"fifteen": 15, "sixteen": 16, "seventeen": 17, "eighteen": 18,
	"nineteen": 19, "twenty": 20, "thirty": 30, "forty": 40,
	"fifty": 50, "sixty": 60, "seventy": 70, "eighty": 80,
	"ninety": 90, "hundred": 100,
}

// ExtractNumber finds the first number in the text, spoken as digits or
// as a common number word. Returns false when no number is present.
func ExtractNumber(text string) (int, bool) {
	if m := digitRe.FindString(text); m != "" {
		n, err := strconv.Atoi(m)
		if err == nil {
			return n, true
		}
	}
	for _, word := range strings.Fields(normalize(text)) {
		if n, ok := wordNumbers[word]; ok {
			return n, true
		}
	}
	return 0, false
}

func normalize(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	t = strings.Map(func(r rune) rune {
		switch r {
		case '.', ',', '!', '?', ';', ':':
			return -1
		}
		return r
	}, t)
	return strings.Join(strings.Fields(t), " ")
}

func containsAny(t string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(t, p) {
			return true
		}
	}
	return false
}

// leadWordIn checks the first couple of words so a sentence like
// "yes, tomorrow works" still reads as an affirmation.
func leadWordIn(t string, words map[string]bool) bool {
	fields := strings.Fields(t)
	limit := 2
	if len(fields) < limit {
		limit = len(fields)
	}
	for _, f := range fields[:limit] {
		if words[f] {
			return true
		}
	}
	return false
}
