// Command healthbot-cli runs the patient education workflow as a terminal
// REPL: pick a topic, read the summary, optionally take a quiz, then follow
// related topics or start over.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"healthbot/internal/app"
	"healthbot/internal/llm"
	"healthbot/internal/session"
	"healthbot/internal/workflow"
)

func main() {
	deps, err := app.BuildCLI()
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}

	r := &repl{
		in:  bufio.NewScanner(os.Stdin),
		out: os.Stdout,
		wf:  deps.Workflow,
		log: deps.Log,
	}
	r.run(context.Background())
}

type repl struct {
	in  *bufio.Scanner
	out io.Writer
	wf  *workflow.Controller
	log *slog.Logger
}

// nextAction is what the patient chose after seeing related topics.
type nextAction struct {
	Exit     bool
	NewTopic bool
	Pick     int // index into the related topics list when >= 0
}

func (r *repl) run(ctx context.Context) {
	r.printf("Welcome to HealthBot! Learn about any health topic at your own pace.\n")
	r.printf("Type 'exit' at any prompt to quit.\n\n")

	sess := session.New()
	topic := ""

	for {
		if topic == "" {
			t, ok := r.prompt("What health topic would you like to learn about? ")
			if !ok || isExit(t) {
				break
			}
			topic = t
		}

		difficulty, ok := r.promptDifficulty()
		if !ok {
			break
		}
		count, ok := r.promptCount()
		if !ok {
			break
		}

		summary, err := r.wf.StartTopic(ctx, sess, topic, difficulty)
		if err != nil {
			r.printf("Sorry, that didn't work: %v\n\n", stepError(err))
			topic = ""
			continue
		}
		r.printf("\n%s\n\n", summary)

		if r.promptYes(fmt.Sprintf("Would you like to take a %d-question quiz? (yes/no) ", count)) {
			r.runQuiz(ctx, sess, count)
		}

		topics, err := r.wf.RelatedTopics(ctx, sess)
		if err != nil {
			r.printf("Could not fetch related topics: %v\n", stepError(err))
		} else {
			r.printf("Related topics you might explore:\n")
			for i, t := range topics {
				r.printf("  %d. %s\n", i+1, t)
			}
		}

		action, ok := r.promptNextAction(len(topics))
		if !ok || action.Exit {
			break
		}
		r.wf.Reset(ctx, sess)
		if action.NewTopic {
			topic = ""
		} else {
			topic = topics[action.Pick]
		}
		r.printf("\n")
	}

	r.printf("Take care! Remember to consult a healthcare professional for medical advice.\n")
}

func (r *repl) runQuiz(ctx context.Context, sess *session.Session, count int) {
	questions, err := r.wf.GenerateQuiz(ctx, sess, count)
	if err != nil {
		r.printf("Could not generate a quiz: %v\n", stepError(err))
		return
	}

	for i, q := range questions {
		r.printf("\nQuestion %d: %s\n", i+1, q.Prompt)
		answer, ok := r.prompt("Your answer: ")
		if !ok {
			answer = ""
		}
		fb, err := r.wf.SubmitAnswer(ctx, sess, i, answer)
		if err != nil {
			r.printf("Could not grade that answer: %v\n", stepError(err))
			// Record a blank so the quiz can still finish.
			if fb, err = r.wf.SubmitAnswer(ctx, sess, i, ""); err != nil {
				r.printf("Skipping question %d: %v\n", i+1, stepError(err))
				continue
			}
		}
		r.printf("%s\n", fb.Feedback)
	}

	res, err := r.wf.Results(sess)
	if err != nil {
		r.printf("Could not build the scorecard: %v\n", stepError(err))
		return
	}
	r.printf("\n%s\n", renderResults(res))
}

func (r *repl) promptDifficulty() (string, bool) {
	for {
		input, ok := r.prompt("How detailed should the summary be? (easy/medium/hard) ")
		if !ok || isExit(input) {
			return "", false
		}
		if input == "" {
			return string(session.DifficultyMedium), true
		}
		if _, err := session.ParseDifficulty(input); err == nil {
			return input, true
		}
		r.printf("Please answer easy, medium, or hard.\n")
	}
}

func (r *repl) promptCount() (int, bool) {
	max := r.wf.MaxQuestions()
	for {
		input, ok := r.prompt(fmt.Sprintf("How many quiz questions? (1-%d) ", max))
		if !ok || isExit(input) {
			return 0, false
		}
		n, err := parseCount(input, max)
		if err != nil {
			r.printf("%v\n", err)
			continue
		}
		return n, true
	}
}

func (r *repl) promptYes(question string) bool {
	input, ok := r.prompt(question)
	if !ok {
		return false
	}
	switch strings.ToLower(input) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func (r *repl) promptNextAction(numTopics int) (nextAction, bool) {
	for {
		input, ok := r.prompt("Pick a topic number, type 'new' for a new topic, or 'exit': ")
		if !ok {
			return nextAction{Exit: true}, true
		}
		action, err := parseNextAction(input, numTopics)
		if err != nil {
			r.printf("%v\n", err)
			continue
		}
		return action, true
	}
}

func (r *repl) prompt(question string) (string, bool) {
	r.printf("%s", question)
	if !r.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(r.in.Text()), true
}

func (r *repl) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

func isExit(s string) bool {
	return strings.EqualFold(s, "exit") || strings.EqualFold(s, "quit")
}

// parseCount reads a question count, defaulting to 1 on empty input.
func parseCount(input string, max int) (int, error) {
	if input == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(input)
	if err != nil || n < 1 || n > max {
		return 0, fmt.Errorf("please enter a number between 1 and %d", max)
	}
	return n, nil
}

// parseNextAction interprets the post-quiz router input: a 1-based topic
// number, "new", or "exit".
func parseNextAction(input string, numTopics int) (nextAction, error) {
	switch {
	case isExit(input):
		return nextAction{Exit: true}, nil
	case strings.EqualFold(input, "new"):
		return nextAction{NewTopic: true}, nil
	}
	n, err := strconv.Atoi(input)
	if err != nil || n < 1 || n > numTopics {
		if numTopics == 0 {
			return nextAction{}, errors.New("type 'new' for a new topic or 'exit' to quit")
		}
		return nextAction{}, fmt.Errorf("pick a number between 1 and %d, 'new', or 'exit'", numTopics)
	}
	return nextAction{Pick: n - 1}, nil
}

// renderResults formats the scorecard the way it is read back to the patient.
func renderResults(res workflow.Results) string {
	var b strings.Builder
	b.WriteString("Quiz Results:\n")
	for i, item := range res.Items {
		fmt.Fprintf(&b, "\nQuestion %d: %s\n%s\n", i+1, item.Prompt, item.Feedback)
	}
	fmt.Fprintf(&b, "\nScore: %d/%d", res.Score.Correct, res.Score.Total)
	return b.String()
}

// stepError strips wrapping noise for terminal display while keeping the
// retry hint for recoverable failures.
func stepError(err error) string {
	switch {
	case errors.Is(err, llm.ErrMalformedOutput):
		return "the model response could not be understood; please try again"
	case errors.Is(err, workflow.ErrExternalService):
		return "a downstream service failed; please try again"
	default:
		return err.Error()
	}
}
