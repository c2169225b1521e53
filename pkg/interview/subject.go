package interview

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"saga/pkg/llm"
	"saga/pkg/logx"
	"saga/pkg/session"
)

// SubjectSource supplies the subject's side of the interview. The console
// source wraps a human at a terminal; the simulated source plays a persona
// for batch runs.
type SubjectSource interface {
	// Answer returns the subject's reply to a question. An error means no
	// answer could be produced this round; the coordinator treats the round
	// as skipped.
	Answer(ctx context.Context, state *session.SessionState, question string) (string, error)
}

// ConsoleSubject reads answers from a terminal. The question is printed to
// out before reading, so the source is self-contained in interactive runs.
type ConsoleSubject struct {
	scanner *bufio.Scanner
	out     io.Writer
}

// NewConsoleSubject creates a console source reading from in and prompting
// on out.
func NewConsoleSubject(in io.Reader, out io.Writer) *ConsoleSubject {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &ConsoleSubject{scanner: scanner, out: out}
}

// Answer prints the question and blocks for a line of input. EOF returns an
// error so the round is skipped rather than recorded empty.
func (c *ConsoleSubject) Answer(ctx context.Context, _ *session.SessionState, question string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	fmt.Fprintf(c.out, "\nInterviewer: %s\n\nYou: ", question)
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return "", fmt.Errorf("failed to read answer: %w", err)
		}
		return "", fmt.Errorf("input closed")
	}

	answer := strings.TrimSpace(c.scanner.Text())
	if answer == "" {
		return "", fmt.Errorf("empty answer")
	}
	return answer, nil
}

// maxPromptTimelineEvents bounds how much of the timeline rides along with
// each simulated answer request.
const maxPromptTimelineEvents = 10

// SimulatedSubject answers as a persona, for batch runs and demos. Answers
// are generated from the persona sheet; when the backend fails it falls back
// to short canned replies keyed off the question.
type SimulatedSubject struct {
	persona *Persona
	client  llm.LLMClient
	logger  *logx.Logger
}

// NewSimulatedSubject creates a simulation of the given persona.
func NewSimulatedSubject(persona *Persona, client llm.LLMClient, logger *logx.Logger) *SimulatedSubject {
	if logger == nil {
		logger = logx.NewLogger("subject-sim")
	}
	return &SimulatedSubject{persona: persona, client: client, logger: logger}
}

// Persona returns the persona being played.
func (s *SimulatedSubject) Persona() *Persona { return s.persona }

// Answer generates the persona's reply to a question.
func (s *SimulatedSubject) Answer(ctx context.Context, _ *session.SessionState, question string) (string, error) {
	req := llm.NewCompletionRequest(
		llm.NewSystemMessage(s.rolePrompt()),
		llm.NewUserMessage(fmt.Sprintf("Interviewer's question: %s\n\nAnswer in the first person, staying in character.", question)),
	)
	req.Temperature = 0.8
	req.MaxTokens = 1024

	resp, err := s.client.Complete(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		s.logger.Warn("simulated answer failed for %s, using canned reply: %v", s.persona.Name, err)
		return s.fallbackAnswer(question), nil
	}

	answer := strings.TrimSpace(resp.Content)
	if answer == "" {
		return s.fallbackAnswer(question), nil
	}
	return answer, nil
}

// rolePrompt renders the persona sheet as a roleplay instruction.
func (s *SimulatedSubject) rolePrompt() string {
	p := s.persona
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s, being interviewed for your own biography.\n\n", p.Name)
	b.WriteString("Who you are:\n")
	fmt.Fprintf(&b, "- Name: %s\n", p.Name)
	fmt.Fprintf(&b, "- Age: %d\n", p.Age)
	if p.Gender != "" {
		fmt.Fprintf(&b, "- Gender: %s\n", p.Gender)
	}
	if p.Personality != "" {
		fmt.Fprintf(&b, "- Personality: %s\n", p.Personality)
	}
	if p.Behavior != "" {
		fmt.Fprintf(&b, "- Way of speaking: %s\n", p.Behavior)
	}
	if p.Birthplace != "" {
		fmt.Fprintf(&b, "- Birthplace: %s\n", p.Birthplace)
	}

	if len(p.Timeline) > 0 {
		b.WriteString("\nYour life so far:\n")
		events := p.Timeline
		if len(events) > maxPromptTimelineEvents {
			events = events[:maxPromptTimelineEvents]
		}
		for _, ev := range events {
			fmt.Fprintf(&b, "- At %d: %s\n", ev.Age, ev.Description)
			if ev.Details != "" {
				fmt.Fprintf(&b, "  Details: %s\n", ev.Details)
			}
		}
	}

	if p.Background != "" {
		fmt.Fprintf(&b, "\nBackground notes:\n%s\n", p.Background)
	}

	b.WriteString(`
How to answer:
- First person, always in character, in a natural spoken tone.
- Keep each answer between 50 and 200 words.
- Ground what you say in your life events; add plausible everyday detail.
- If asked about something you never experienced, say so honestly instead of inventing it.`)
	return b.String()
}

// fallbackGroup maps question keywords to the canned reply used when the
// backend is unavailable.
type fallbackGroup struct {
	keywords []string
	reply    func(p *Persona) string
}

//nolint:gochecknoglobals // Static fallback script.
var fallbackGroups = []fallbackGroup{
	{
		keywords: []string{"childhood", "child", "young", "grew up", "family background"},
		reply: func(p *Persona) string {
			if ev := earliestEvent(p); ev != nil {
				return fmt.Sprintf("When I was little... at %d, %s. That's the time I remember most from back then.", ev.Age, lowerFirst(ev.Description))
			}
			return "My childhood was plain, but there are a few scenes I still see clearly when I close my eyes."
		},
	},
	{
		keywords: []string{"school", "study", "education", "teacher", "classmate"},
		reply: func(p *Persona) string {
			if ev := matchEvent(p, "school", "study", "graduat", "universit", "college"); ev != nil {
				return fmt.Sprintf("About my schooling — at %d, %s. It mattered more than I understood at the time.", ev.Age, lowerFirst(ev.Description))
			}
			return "I didn't have many years of schooling, but what I learned I held on to."
		},
	},
	{
		keywords: []string{"work", "job", "career", "factory", "company"},
		reply: func(p *Persona) string {
			if ev := matchEvent(p, "work", "job", "factory", "company", "business"); ev != nil {
				return fmt.Sprintf("Work, yes. At %d, %s. Work like that shapes a person.", ev.Age, lowerFirst(ev.Description))
			}
			return "I worked hard all my life. It wasn't glamorous, but it kept the family going."
		},
	},
	{
		keywords: []string{"marriage", "married", "partner", "wife", "husband", "love"},
		reply: func(p *Persona) string {
			if ev := matchEvent(p, "marri", "wife", "husband", "met"); ev != nil {
				return fmt.Sprintf("At %d, %s. We didn't talk about love the way people do now, but we looked after each other.", ev.Age, lowerFirst(ev.Description))
			}
			return "Marriage in my day was simpler. You built a life together, day by day."
		},
	},
	{
		keywords: []string{"difficult", "hard", "struggle", "challenge", "worst"},
		reply: func(*Persona) string {
			return "The hard years... everyone had them. What I remember is not the hardship itself but how we got through it together."
		},
	},
	{
		keywords: []string{"proud", "achievement", "accomplish", "satisfied"},
		reply: func(p *Persona) string {
			return fmt.Sprintf("Proud? I never thought in those terms. But looking at what my family became, I think %s did all right.", p.Name)
		},
	},
}

// fallbackAnswer produces a short in-character reply without the backend.
func (s *SimulatedSubject) fallbackAnswer(question string) string {
	q := strings.ToLower(question)
	for i := range fallbackGroups {
		for _, kw := range fallbackGroups[i].keywords {
			if strings.Contains(q, kw) {
				return fallbackGroups[i].reply(s.persona)
			}
		}
	}

	p := s.persona
	if p.Birthplace != "" {
		return fmt.Sprintf("I'm %s, %d this year, born in %s. Where should I start... there's a lot of road behind me.", p.Name, p.Age, p.Birthplace)
	}
	return fmt.Sprintf("I'm %s, %d this year. Give me a moment — at my age the memories come in their own order.", p.Name, p.Age)
}

func earliestEvent(p *Persona) *TimelineEvent {
	if len(p.Timeline) == 0 {
		return nil
	}
	best := &p.Timeline[0]
	for i := 1; i < len(p.Timeline); i++ {
		if p.Timeline[i].Age < best.Age {
			best = &p.Timeline[i]
		}
	}
	return best
}

func matchEvent(p *Persona, fragments ...string) *TimelineEvent {
	for i := range p.Timeline {
		text := strings.ToLower(p.Timeline[i].Description + " " + p.Timeline[i].Details)
		for _, frag := range fragments {
			if strings.Contains(text, frag) {
				return &p.Timeline[i]
			}
		}
	}
	return nil
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = []rune(strings.ToLower(string(runes[0])))[0]
	return string(runes)
}
