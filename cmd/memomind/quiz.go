package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/hpungsan/memomind/internal/document"
	"github.com/hpungsan/memomind/internal/workflow"
)

var (
	correctColor = color.New(color.FgGreen, color.Bold)
	wrongColor   = color.New(color.FgRed, color.Bold)
	answerColor  = color.New(color.FgCyan)
	hintColor    = color.New(color.Faint)
)

// runMCQQuiz asks every question once and prints the score.
func runMCQQuiz(in io.Reader, out io.Writer, set *document.MCQSet) *workflow.MCQSession {
	s := workflow.NewMCQSession(set)
	if s.Len() == 0 {
		fmt.Fprintln(out, "No questions to practise.")
		return s
	}

	sc := bufio.NewScanner(in)
	for {
		q := s.Current()
		fmt.Fprintf(out, "\nQuestion %d/%d: %s\n", s.Index+1, s.Len(), q.Question)
		for i, opt := range q.Options {
			fmt.Fprintf(out, "  %d) %s\n", i+1, opt)
		}

		choice, ok := readChoice(sc, out, len(q.Options))
		if !ok {
			break
		}
		outcome, err := s.Select(choice)
		if err != nil {
			fmt.Fprintln(out, err.Error())
			continue
		}
		switch {
		case outcome.Correct:
			correctColor.Fprintln(out, "Correct!")
		case outcome.Answer < len(q.Options):
			wrongColor.Fprintf(out, "Incorrect. The answer is %d) %s\n", outcome.Answer+1, q.Options[outcome.Answer])
		default:
			wrongColor.Fprintln(out, "Incorrect.")
		}
		if q.Explanation != "" {
			hintColor.Fprintln(out, q.Explanation)
		}
		if !s.Next() {
			break
		}
	}

	fmt.Fprintf(out, "\nScore: %d/%d\n", s.Score, s.Len())
	return s
}

// readChoice prompts until a valid 1-based option or quit. Returns the
// 0-based option.
func readChoice(sc *bufio.Scanner, out io.Writer, n int) (int, bool) {
	for {
		fmt.Fprintf(out, "Answer (1-%d, q to quit): ", n)
		if !sc.Scan() {
			return 0, false
		}
		input := strings.TrimSpace(sc.Text())
		if strings.EqualFold(input, "q") {
			return 0, false
		}
		v, err := strconv.Atoi(input)
		if err != nil || v < 1 || v > n {
			fmt.Fprintf(out, "Enter a number from 1 to %d.\n", n)
			continue
		}
		return v - 1, true
	}
}

const deckHelp = "[enter] flip  [n]ext  [p]rev  [r]estart  [q]uit: "

// runFlashcards steps through a deck until the input ends or the user quits.
func runFlashcards(in io.Reader, out io.Writer, deck *document.Deck) *workflow.DeckSession {
	s := workflow.NewDeckSession(deck)
	if s.Len() == 0 {
		fmt.Fprintln(out, "No flashcards to study.")
		return s
	}

	sc := bufio.NewScanner(in)
	showCard(out, s)
	for {
		fmt.Fprint(out, deckHelp)
		if !sc.Scan() {
			break
		}
		switch strings.ToLower(strings.TrimSpace(sc.Text())) {
		case "":
			if s.ToggleAnswer() {
				answerColor.Fprintf(out, "Answer: %s\n", s.Current().Answer)
			} else {
				showCard(out, s)
			}
		case "n":
			if !s.Next() {
				hintColor.Fprintln(out, "Last card. r to restart, q to quit.")
				continue
			}
			showCard(out, s)
		case "p":
			if !s.Prev() {
				hintColor.Fprintln(out, "First card.")
				continue
			}
			showCard(out, s)
		case "r":
			s.Restart()
			showCard(out, s)
		case "q":
			return s
		default:
			fmt.Fprintln(out, "Unknown command.")
		}
	}
	return s
}

func showCard(out io.Writer, s *workflow.DeckSession) {
	c := s.Current()
	label := ""
	if c.Category != "" {
		label = " [" + c.Category + "]"
	}
	fmt.Fprintf(out, "\nCard %d/%d%s: %s\n", s.Index+1, s.Len(), label, c.Question)
}
