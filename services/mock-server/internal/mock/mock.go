package mock

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Mode controls how the fake text-generation endpoints answer
type Mode string

const (
	ModeOK    Mode = "ok"
	ModeError Mode = "error" // respond 503
	ModeEmpty Mode = "empty" // respond 200 with no usable text
	ModeSlow  Mode = "slow"  // sleep SlowDelay before answering
)

var (
	openers = []string{
		"I hope your week is going well.",
		"I hope all is well on your side.",
		"Thanks again for reaching out earlier.",
	}
	asks = []string{
		"Would a 15 minute call later this week be useful?",
		"Is there anything else I can send over to help with the decision?",
		"Do you have any questions I can answer in the meantime?",
	}

	recipientRE = regexp.MustCompile(`(?m)^Recipient name:[ \t]*(.*)$`)
	subjectRE   = regexp.MustCompile(`(?m)^Previous subject:[ \t]*(.*)$`)

	state     = ModeOK
	stateMu   sync.RWMutex
	requests  int
	SlowDelay = 45 * time.Second
)

// SetMode switches the failure mode for subsequent requests
func SetMode(m Mode) error {
	switch m {
	case ModeOK, ModeError, ModeEmpty, ModeSlow:
	default:
		return fmt.Errorf("unknown mode %q", m)
	}
	stateMu.Lock()
	defer stateMu.Unlock()
	state = m
	return nil
}

// CurrentMode returns the active mode and counts the request
func CurrentMode() Mode {
	stateMu.Lock()
	defer stateMu.Unlock()
	requests++
	return state
}

// Requests returns how many generation requests were served
func Requests() int {
	stateMu.RLock()
	defer stateMu.RUnlock()
	return requests
}

// GenerateFollowUp returns a canned "Subject: ...\n\n<body>" completion
// personalised from the prompt's recipient and subject lines.
func GenerateFollowUp(prompt string) string {
	name := firstMatch(recipientRE, prompt)
	subject := firstMatch(subjectRE, prompt)
	if subject == "" {
		subject = "our conversation"
	}

	greeting := "Hi there,"
	if name != "" {
		greeting = fmt.Sprintf("Hi %s,", strings.Fields(name)[0])
	}

	return fmt.Sprintf("Subject: Following up on %s\n\n%s\n\n%s I wanted to follow up on %s. %s\n\nBest regards",
		subject,
		greeting,
		openers[rand.Intn(len(openers))],
		subject,
		asks[rand.Intn(len(asks))],
	)
}

func firstMatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
